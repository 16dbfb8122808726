package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	mid "TradeSync/internal/middleware"
	"TradeSync/pkg/logger"
)

// Session wires the push channel, the event router and the reconciliation
// loop into one lifecycle.
type Session struct {
	channel   drepo.PushChannel
	registry  *SubscriptionRegistry
	router    *EventRouter
	pipe      *mid.RealtimePipeline
	scheduler *ReconciliationScheduler
	recorder  *FactRecorder
	interval  time.Duration
	log       *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	unsub  func()
	done   chan struct{}
}

func NewSession(
	channel drepo.PushChannel,
	registry *SubscriptionRegistry,
	router *EventRouter,
	pipe *mid.RealtimePipeline,
	scheduler *ReconciliationScheduler,
	recorder *FactRecorder,
	interval time.Duration,
	log *logger.Logger,
) *Session {
	return &Session{
		channel:   channel,
		registry:  registry,
		router:    router,
		pipe:      pipe,
		scheduler: scheduler,
		recorder:  recorder,
		interval:  interval,
		log:       log.Component("session"),
	}
}

// Start connects the push channel, begins routing its events and starts
// reconciliation with an immediate poll.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("session already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, unsub := s.channel.Events()
	if err := s.channel.Connect(runCtx); err != nil {
		unsub()
		cancel()
		return err
	}
	if s.pipe != nil {
		s.pipe.Start(runCtx)
	}

	s.cancel = cancel
	s.unsub = unsub
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.router.Run(runCtx, events)
	}(s.done)

	s.scheduler.Start(runCtx, s.interval)
	s.scheduler.ForceRefresh()
	s.log.Info("session started", logger.Strings("symbols", s.registry.DesiredSet()))
	return nil
}

// Subscribe adds symbol to the desired set and tells the channel when the
// registry asks for it.
func (s *Session) Subscribe(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if !s.registry.Subscribe(symbol) {
		return nil
	}
	return s.channel.Subscribe(ctx, symbol)
}

// Unsubscribe removes symbol from the desired set.
func (s *Session) Unsubscribe(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if !s.registry.Unsubscribe(symbol) {
		return nil
	}
	return s.channel.Unsubscribe(ctx, symbol)
}

// Subscriptions lists every tracked symbol with its desired and channel
// state.
func (s *Session) Subscriptions() []models.Subscription { return s.registry.List() }

// ConnectionState reports the push channel state.
func (s *Session) ConnectionState() models.ConnectionState { return s.channel.State() }

// Refresh requests an out-of-cadence reconciliation.
func (s *Session) Refresh() { s.scheduler.ForceRefresh() }

// Shutdown stops reconciliation, closes the channel and flushes the
// recorder.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, unsub, done := s.cancel, s.unsub, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	s.scheduler.Stop()
	var errs []error
	if err := s.channel.Disconnect(); err != nil {
		errs = append(errs, err)
	}
	unsub()
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	if s.pipe != nil {
		s.pipe.Stop()
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.Info("session stopped")
	return errors.Join(errs...)
}
