package usecase

import (
	"sort"
	"sync"

	"TradeSync/internal/domain/models"
)

// SubscriptionRegistry is the single source of truth for which symbols the
// push channel should carry. The channel's state is reconciled to it, never
// the reverse.
type SubscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string]*models.Subscription
}

// NewSubscriptionRegistry creates a registry seeded with desired symbols.
func NewSubscriptionRegistry(initial ...string) *SubscriptionRegistry {
	r := &SubscriptionRegistry{subs: make(map[string]*models.Subscription)}
	for _, s := range initial {
		r.Subscribe(s)
	}
	return r
}

// Subscribe marks symbol as desired. It reports whether a subscribe frame
// should be sent: false when the symbol is already desired and pending or
// active.
func (r *SubscriptionRegistry) Subscribe(symbol string) bool {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[symbol]
	if !ok {
		r.subs[symbol] = &models.Subscription{
			Symbol:  symbol,
			Desired: models.DesiredSubscribed,
			Channel: models.ChannelPending,
		}
		return true
	}
	if sub.Desired == models.DesiredSubscribed && sub.Channel != models.ChannelFailed {
		return false
	}
	sub.Desired = models.DesiredSubscribed
	if sub.Channel == models.ChannelFailed {
		sub.Channel = models.ChannelPending
	}
	return true
}

// Unsubscribe marks symbol as not desired. It reports whether an
// unsubscribe frame should be sent.
func (r *SubscriptionRegistry) Unsubscribe(symbol string) bool {
	symbol = models.NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[symbol]
	if !ok || sub.Desired == models.DesiredUnsubscribed {
		return false
	}
	sub.Desired = models.DesiredUnsubscribed
	return true
}

// DesiredSet returns the sorted symbols the channel must carry.
func (r *SubscriptionRegistry) DesiredSet() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subs))
	for s, sub := range r.subs {
		if sub.Desired == models.DesiredSubscribed {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Accepts reports whether push events for symbol may reach the store.
func (r *SubscriptionRegistry) Accepts(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[models.NormalizeSymbol(symbol)]
	return ok && sub.Desired == models.DesiredSubscribed
}

// Acknowledge applies a channel ack. An unsubscribe ack for a symbol that is
// no longer desired removes its record.
func (r *SubscriptionRegistry) Acknowledge(symbol string, subscribed bool) {
	symbol = models.NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[symbol]
	if !ok {
		return
	}
	switch {
	case subscribed:
		sub.Channel = models.ChannelActive
	case sub.Desired == models.DesiredUnsubscribed:
		delete(r.subs, symbol)
	default:
		sub.Channel = models.ChannelPending
	}
}

// Fail records a channel refusal for symbol.
func (r *SubscriptionRegistry) Fail(symbol string) {
	symbol = models.NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[symbol]; ok {
		sub.Channel = models.ChannelFailed
	}
}

// ResetChannelState is called on disconnect: every desired record returns to
// pending and records no longer desired are dropped.
func (r *SubscriptionRegistry) ResetChannelState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s, sub := range r.subs {
		if sub.Desired == models.DesiredUnsubscribed {
			delete(r.subs, s)
			continue
		}
		sub.Channel = models.ChannelPending
	}
}

// List returns a sorted copy of every record.
func (r *SubscriptionRegistry) List() []models.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
