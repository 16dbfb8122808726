package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	domsvc "TradeSync/internal/domain/service"
	"TradeSync/pkg/logger"
)

// ReconciliationScheduler polls portfolio and tickers on a fixed cadence as
// the correctness backstop for the push channel. Results go through the
// store's merge rules, so a poll can only move state forward.
type ReconciliationScheduler struct {
	api     drepo.TradingAPI
	store   domsvc.StateWriter
	subs    drepo.SubscriptionSource
	log     *logger.Logger
	metrics drepo.Metrics

	forceCh chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ domsvc.Refresher = (*ReconciliationScheduler)(nil)

// NewReconciliationScheduler creates a scheduler. subs limits which ticker
// symbols are applied.
func NewReconciliationScheduler(api drepo.TradingAPI, store domsvc.StateWriter, subs drepo.SubscriptionSource, log *logger.Logger, metrics drepo.Metrics) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		api:     api,
		store:   store,
		subs:    subs,
		log:     log.Component("reconciler"),
		metrics: metrics,
		forceCh: make(chan struct{}, 1),
	}
}

// Start runs the cadence loop until ctx ends or Stop is called.
func (r *ReconciliationScheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.loop(runCtx, interval, done)
}

// Stop ends the cadence loop and waits for an in-progress poll.
func (r *ReconciliationScheduler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ForceRefresh requests an immediate poll and resets the cadence. Requests
// arriving while one is already queued coalesce.
func (r *ReconciliationScheduler) ForceRefresh() {
	select {
	case r.forceCh <- struct{}{}:
	default:
	}
}

func (r *ReconciliationScheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		forced := false
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-r.forceCh:
			forced = true
		}

		if err := r.PollOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("reconciliation poll failed", logger.Bool("forced", forced), logger.Error(err))
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}
}

// PollOnce fetches portfolio and tickers and merges them. The portfolio is
// applied with the version captured before the request, so a state advanced
// while the request was in flight is not overwritten.
func (r *ReconciliationScheduler) PollOnce(ctx context.Context) error {
	start := time.Now()
	defer func() { r.metrics.RecordLatency("reconcile", time.Since(start).Seconds()) }()

	var errs []error

	version := r.store.PortfolioVersion()
	p, err := r.api.FetchPortfolio(ctx)
	if err != nil {
		r.metrics.RecordError("reconcile_portfolio")
		errs = append(errs, err)
	} else {
		p.Source = models.SourcePoll
		r.store.ApplyPortfolio(p, version)
	}

	tickers, err := r.api.FetchTickers(ctx)
	if err != nil {
		r.metrics.RecordError("reconcile_market")
		errs = append(errs, err)
	} else {
		desired := make(map[string]struct{})
		for _, s := range r.subs.DesiredSet() {
			desired[s] = struct{}{}
		}
		for _, m := range tickers {
			if _, ok := desired[m.Symbol]; !ok {
				continue
			}
			m.Source = models.SourcePoll
			r.store.ApplyMarket(m)
		}
	}

	return errors.Join(errs...)
}
