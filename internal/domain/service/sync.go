package service

import "TradeSync/internal/domain/models"

// Refresher triggers an out-of-cadence reconciliation poll.
type Refresher interface {
	ForceRefresh()
}

// StateWriter is the merge surface of the state store.
type StateWriter interface {
	ApplyMarket(m models.MarketSnapshot) bool
	ApplySignal(s models.Signal) bool
	ApplyPortfolio(p models.PortfolioState, expectedMinVersion int64) bool
	PortfolioVersion() int64
	InvalidatePortfolio()
}

// SubscriptionTracker records channel acknowledgements against the
// desired subscription set.
type SubscriptionTracker interface {
	Accepts(symbol string) bool
	Acknowledge(symbol string, subscribed bool)
	Fail(symbol string)
	ResetChannelState()
}
