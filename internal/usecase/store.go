package usecase

import (
	"sync"

	"TradeSync/internal/domain/fault"
	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	"TradeSync/pkg/logger"
)

const (
	sliceMarket    = "market"
	sliceSignal    = "signal"
	slicePortfolio = "portfolio"
)

// Snapshot is a consistent copy of all three slices taken under one lock.
type Snapshot struct {
	Markets        map[string]models.MarketSnapshot `json:"markets"`
	Signals        map[string]models.Signal         `json:"signals"`
	Portfolio      *models.PortfolioState           `json:"portfolio,omitempty"`
	PortfolioStale bool                             `json:"portfolio_stale"`
}

// StateStore is the canonical in-memory view. Every fact from either channel
// is merged here through the Apply methods, each of which checks staleness
// and swaps under the same lock. It never performs I/O.
type StateStore struct {
	mu           sync.RWMutex
	markets      map[string]models.MarketSnapshot
	signals      map[string]models.Signal
	portfolio    models.PortfolioState
	hasPortfolio bool
	stale        bool
	// highest backend-assigned version merged; local bumps never touch it
	backendVersion int64

	log     *logger.Logger
	metrics drepo.Metrics
}

// NewStateStore creates an empty store.
func NewStateStore(log *logger.Logger, metrics drepo.Metrics) *StateStore {
	return &StateStore{
		markets: make(map[string]models.MarketSnapshot),
		signals: make(map[string]models.Signal),
		log:     log.Component("store"),
		metrics: metrics,
	}
}

// ApplyMarket stores m unless a snapshot at least as new is already held for
// its symbol. Push wins ties against poll.
func (s *StateStore) ApplyMarket(m models.MarketSnapshot) bool {
	m.Symbol = models.NormalizeSymbol(m.Symbol)

	s.mu.Lock()
	cur, ok := s.markets[m.Symbol]
	if ok && !m.ObservedAt.Newer(m.Source, cur.ObservedAt, cur.Source) {
		s.mu.Unlock()
		s.rejected(sliceMarket, m.Symbol, "older observation")
		return false
	}
	s.markets[m.Symbol] = m
	s.mu.Unlock()

	s.metrics.RecordFactApplied(sliceMarket, m.Source)
	s.metrics.RecordLastPrice(m.Symbol, m.Price)
	return true
}

// ApplySignal stores sig unless a signal generated at the same time or later
// is held for its symbol. Stored signals are replaced, never mutated.
func (s *StateStore) ApplySignal(sig models.Signal) bool {
	sig.Symbol = models.NormalizeSymbol(sig.Symbol)

	s.mu.Lock()
	cur, ok := s.signals[sig.Symbol]
	if ok && !sig.GeneratedAt.Newer(sig.Source, cur.GeneratedAt, cur.Source) {
		s.mu.Unlock()
		s.rejected(sliceSignal, sig.Symbol, "older signal")
		return false
	}
	s.signals[sig.Symbol] = sig
	s.mu.Unlock()

	s.metrics.RecordFactApplied(sliceSignal, sig.Source)
	return true
}

// ApplyPortfolio merges p when the stored version has not moved past
// expectedMinVersion and p is newer than the stored state. Updates carrying
// a backend version are ordered against the highest backend version seen,
// not the local counter, so InvalidatePortfolio bumps never shadow them.
// While the portfolio is stale a refresh repeating that backend version is
// accepted as confirmation. Others are ordered by ObservedAt. The stored
// version always advances on merge. Partial updates keep the fields they do
// not carry.
func (s *StateStore) ApplyPortfolio(p models.PortfolioState, expectedMinVersion int64) bool {
	s.mu.Lock()
	cur := s.portfolio
	reason := ""
	if expectedMinVersion < cur.Version {
		reason = "version advanced during request"
	} else if s.hasPortfolio {
		switch {
		case p.Version > 0 && p.Version < s.backendVersion:
			reason = "older version"
		case p.Version > 0 && p.Version == s.backendVersion && !s.stale && !(p.Source == models.SourcePush && cur.Source == models.SourcePoll):
			reason = "same version"
		case p.Version <= 0 && !p.ObservedAt.Newer(p.Source, cur.ObservedAt, cur.Source):
			reason = "older observation"
		}
	}
	if reason != "" {
		s.mu.Unlock()
		s.rejected(slicePortfolio, "", reason)
		return false
	}

	if p.Partial && s.hasPortfolio {
		p.Cash = cur.Cash
		p.InitialCash = cur.InitialCash
		p.WinRate = cur.WinRate
		p.TotalTrades = cur.TotalTrades
		p.RecentTrades = cur.RecentTrades
	}
	p.Partial = false
	if p.Version > 0 {
		s.backendVersion = p.Version
	}
	p.Version = max(p.Version, cur.Version+1)
	s.portfolio = p.Clone()
	s.hasPortfolio = true
	s.stale = false
	version := p.Version
	s.mu.Unlock()

	s.metrics.RecordFactApplied(slicePortfolio, p.Source)
	s.log.Debug("portfolio merged", logger.Int64("version", version), logger.String("source", string(p.Source)))
	return true
}

// PortfolioVersion returns the stored version, zero before the first merge.
func (s *StateStore) PortfolioVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portfolio.Version
}

// InvalidatePortfolio marks the stored portfolio untrusted and bumps its
// local version so responses to requests issued earlier are rejected. The
// backend version is left alone. The next accepted merge clears the mark.
func (s *StateStore) InvalidatePortfolio() {
	s.mu.Lock()
	s.portfolio.Version++
	s.stale = true
	v := s.portfolio.Version
	s.mu.Unlock()
	s.log.Debug("portfolio invalidated", logger.Int64("version", v))
}

// Read returns a consistent copy of the whole state.
func (s *StateStore) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Markets:        make(map[string]models.MarketSnapshot, len(s.markets)),
		Signals:        make(map[string]models.Signal, len(s.signals)),
		PortfolioStale: s.stale,
	}
	for k, v := range s.markets {
		snap.Markets[k] = v
	}
	for k, v := range s.signals {
		snap.Signals[k] = v
	}
	if s.hasPortfolio {
		p := s.portfolio.Clone()
		snap.Portfolio = &p
	}
	return snap
}

// Market returns the stored snapshot for symbol.
func (s *StateStore) Market(symbol string) (models.MarketSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[models.NormalizeSymbol(symbol)]
	return m, ok
}

// Signal returns the stored signal for symbol.
func (s *StateStore) Signal(symbol string) (models.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[models.NormalizeSymbol(symbol)]
	return sig, ok
}

func (s *StateStore) rejected(slice, key, reason string) {
	s.metrics.RecordStaleWrite(slice)
	s.log.Debug("merge rejected",
		logger.String("slice", slice),
		logger.String("key", key),
		logger.Error(&fault.Error{Kind: fault.ErrStaleWrite, Op: "apply " + slice, Reason: reason}),
	)
}
