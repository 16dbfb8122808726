package usecase

import (
	"context"

	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	domsvc "TradeSync/internal/domain/service"
	"TradeSync/pkg/logger"
)

// MarketIngest runs push price updates through validation, gating and the
// store.
type MarketIngest interface {
	Process(ctx context.Context, m models.MarketSnapshot) (bool, error)
}

// EventRouter dispatches push channel events to the store, the
// subscription registry and the reconciliation scheduler.
type EventRouter struct {
	market    MarketIngest
	store     domsvc.StateWriter
	subs      domsvc.SubscriptionTracker
	refresher domsvc.Refresher
	log       *logger.Logger
	metrics   drepo.Metrics
}

func NewEventRouter(
	market MarketIngest,
	store domsvc.StateWriter,
	subs domsvc.SubscriptionTracker,
	refresher domsvc.Refresher,
	log *logger.Logger,
	metrics drepo.Metrics,
) *EventRouter {
	return &EventRouter{
		market:    market,
		store:     store,
		subs:      subs,
		refresher: refresher,
		log:       log.Component("router"),
		metrics:   metrics,
	}
}

// Run routes events until ctx ends or events is closed.
func (r *EventRouter) Run(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Route(ctx, ev)
		}
	}
}

// Route handles one event.
func (r *EventRouter) Route(ctx context.Context, ev models.Event) {
	switch ev.Type {
	case models.EventPriceUpdate:
		if ev.Market == nil {
			break
		}
		m := *ev.Market
		m.Source = models.SourcePush
		applied, err := r.market.Process(ctx, m)
		if err != nil {
			r.log.Debug("price update not recorded", logger.String("symbol", m.Symbol), logger.Error(err))
		}
		if applied {
			r.metrics.RecordLastPrice(models.NormalizeSymbol(m.Symbol), m.Price)
		}
		return

	case models.EventSignalUpdate:
		if ev.Signal == nil {
			break
		}
		sig := *ev.Signal
		sig.Symbol = models.NormalizeSymbol(sig.Symbol)
		if !r.subs.Accepts(sig.Symbol) {
			r.metrics.RecordDroppedEvent("unsubscribed")
			return
		}
		sig.Source = models.SourcePush
		r.store.ApplySignal(sig)
		return

	case models.EventPortfolioUpdate:
		if ev.Portfolio == nil {
			break
		}
		p := ev.Portfolio.Clone()
		p.Source = models.SourcePush
		r.store.ApplyPortfolio(p, models.AnyVersion)
		return

	case models.EventTradeExecuted:
		if ev.Trade != nil {
			r.log.Info("trade executed",
				logger.String("symbol", ev.Trade.Symbol),
				logger.String("action", string(ev.Trade.Action)),
				logger.Float64("quantity", ev.Trade.Quantity),
				logger.Float64("price", ev.Trade.Price),
			)
		}
		r.store.InvalidatePortfolio()
		r.refresher.ForceRefresh()
		return

	case models.EventSubscriptionAck:
		if ev.Ack == nil {
			break
		}
		if ev.Ack.Failed {
			r.log.Warn("subscription failed", logger.String("symbol", ev.Ack.Symbol), logger.String("reason", ev.Ack.Reason))
			r.subs.Fail(ev.Ack.Symbol)
			return
		}
		r.subs.Acknowledge(ev.Ack.Symbol, ev.Ack.Subscribed)
		return

	case models.EventConnectionStateChanged:
		if ev.Connection == nil {
			break
		}
		switch ev.Connection.State {
		case models.ConnDisconnected, models.ConnError:
			r.subs.ResetChannelState()
		}
		return
	}

	r.metrics.RecordDroppedEvent("malformed")
}
