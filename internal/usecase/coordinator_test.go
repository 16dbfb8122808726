package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"TradeSync/internal/domain/fault"
	"TradeSync/internal/domain/models"
	xhttp "TradeSync/pkg/http"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(api *fakeAPI, store *StateStore, r *countingRefresher, opts ...CoordinatorOption) *ActionCoordinator {
	opts = append([]CoordinatorOption{WithRetryPolicy(2, time.Millisecond)}, opts...)
	return NewActionCoordinator(api, store, r, logger.Nop(), metrics.Nop{}, opts...)
}

func seededStore(t *testing.T) *StateStore {
	t.Helper()
	s := newStore()
	require.True(t, s.ApplyPortfolio(models.PortfolioState{TotalValue: 1000, Cash: 1000, ObservedAt: stampSec(10), Source: models.SourcePoll}, models.AnyVersion))
	return s
}

func TestDuplicateActionIsRejectedWithoutRequest(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		trade: func(context.Context, models.TradeRequest) (models.TradeResult, error) {
			<-release
			return models.TradeResult{Accepted: true}, nil
		},
	}
	c := newCoordinator(api, seededStore(t), &countingRefresher{})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 100)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return api.count("trade") == 1 }, time.Second, time.Millisecond)

	_, err := c.ExecuteTrade(context.Background(), "btc/usdt", models.ActionBuy, 100)
	require.ErrorIs(t, err, fault.ErrAlreadyInFlight)
	assert.Equal(t, 1, api.count("trade"))

	// a different symbol is independent
	_, err = c.TrainModel(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-errCh)

	_, err = c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionSell, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("trade"))
}

func TestExecutedTradeInvalidatesAndForcesOneRefresh(t *testing.T) {
	store := seededStore(t)
	before := store.PortfolioVersion()
	r := &countingRefresher{}
	c := newCoordinator(&fakeAPI{}, store, r)

	res, err := c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 100)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	assert.Equal(t, int32(1), r.n.Load())
	view := store.Read()
	assert.True(t, view.PortfolioStale)
	assert.Greater(t, store.PortfolioVersion(), before)

	pending := c.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusSucceeded, pending[0].Status)
	assert.NotNil(t, pending[0].FinishedAt)
}

func TestTradeTimeoutIsAmbiguousAndNotRetried(t *testing.T) {
	api := &fakeAPI{
		trade: func(context.Context, models.TradeRequest) (models.TradeResult, error) {
			return models.TradeResult{}, fault.Timeout("executeTrade", context.DeadlineExceeded)
		},
	}
	store := seededStore(t)
	before := store.Read()
	r := &countingRefresher{}
	c := newCoordinator(api, store, r)

	_, err := c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 100)
	require.ErrorIs(t, err, fault.ErrAmbiguousOutcome)
	assert.ErrorIs(t, err, fault.ErrTimeout)
	assert.Equal(t, 1, api.count("trade"))

	after := store.Read()
	assert.Equal(t, before.Portfolio.Version, after.Portfolio.Version)
	assert.False(t, after.PortfolioStale)
	assert.Equal(t, before.Portfolio.TotalValue, after.Portfolio.TotalValue)
	assert.Equal(t, int32(1), r.n.Load())

	pending := c.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusAmbiguous, pending[0].Status)
}

func TestTradeMalformedBodyIsAmbiguous(t *testing.T) {
	api := &fakeAPI{
		trade: func(context.Context, models.TradeRequest) (models.TradeResult, error) {
			return models.TradeResult{}, fault.Network("executeTrade", xhttp.ErrMalformedBody)
		},
	}
	c := newCoordinator(api, seededStore(t), &countingRefresher{})

	_, err := c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 100)
	assert.ErrorIs(t, err, fault.ErrAmbiguousOutcome)
	assert.Equal(t, 1, api.count("trade"))
}

func TestTradeNetworkErrorFailsWithoutRetry(t *testing.T) {
	api := &fakeAPI{
		trade: func(context.Context, models.TradeRequest) (models.TradeResult, error) {
			return models.TradeResult{}, fault.Network("executeTrade", errors.New("connection refused"))
		},
	}
	r := &countingRefresher{}
	c := newCoordinator(api, seededStore(t), r)

	_, err := c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 100)
	require.ErrorIs(t, err, fault.ErrNetwork)
	assert.NotErrorIs(t, err, fault.ErrAmbiguousOutcome)
	assert.Equal(t, 1, api.count("trade"))
	assert.Equal(t, int32(0), r.n.Load())
	assert.Equal(t, models.StatusFailed, c.Pending()[0].Status)
}

func TestTradeNotAcceptedIsRejected(t *testing.T) {
	api := &fakeAPI{
		trade: func(context.Context, models.TradeRequest) (models.TradeResult, error) {
			return models.TradeResult{Accepted: false, Reason: "insufficient cash"}, nil
		},
	}
	store := seededStore(t)
	r := &countingRefresher{}
	c := newCoordinator(api, store, r)

	_, err := c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 100)
	require.ErrorIs(t, err, fault.ErrRejected)
	assert.Equal(t, "insufficient cash", fault.Reason(err))
	assert.Equal(t, int32(0), r.n.Load())
	assert.False(t, store.Read().PortfolioStale)
}

func TestIdempotentActionsRetryTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	api := &fakeAPI{
		train: func(_ context.Context, symbol string) (models.TrainStatus, error) {
			if attempts.Add(1) < 3 {
				return models.TrainStatus{}, fault.Network("trainModel", errors.New("reset by peer"))
			}
			return models.TrainStatus{Status: "training", Symbol: symbol}, nil
		},
	}
	c := newCoordinator(api, newStore(), &countingRefresher{})

	res, err := c.TrainModel(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "training", res.Status)
	assert.Equal(t, 3, api.count("train"))

	pending := c.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].RetriesRemaining)
	assert.Equal(t, models.StatusSucceeded, pending[0].Status)
}

func TestRetriesStopAtLimit(t *testing.T) {
	api := &fakeAPI{
		config: func(context.Context, models.BackendConfig) (models.ConfigStatus, error) {
			return models.ConfigStatus{}, fault.Timeout("updateConfig", context.DeadlineExceeded)
		},
	}
	c := newCoordinator(api, newStore(), &countingRefresher{})

	_, err := c.UpdateConfig(context.Background(), models.BackendConfig{"risk": 0.1})
	require.ErrorIs(t, err, fault.ErrTimeout)
	assert.Equal(t, 3, api.count("config"))
	assert.Equal(t, models.StatusFailed, c.Pending()[0].Status)
}

func TestRejectedIsNeverRetried(t *testing.T) {
	api := &fakeAPI{
		analyze: func(context.Context, models.AnalyzeRequest) (models.Analysis, error) {
			return models.Analysis{}, fault.Rejected("analyze", 422, "no data")
		},
	}
	c := newCoordinator(api, newStore(), &countingRefresher{})

	_, err := c.Analyze(context.Background(), "market", "SOL/USDT")
	require.ErrorIs(t, err, fault.ErrRejected)
	assert.Equal(t, 1, api.count("analyze"))
}

func TestGenerateSignalIsNotRetriedAndAppliesResult(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	api := &fakeAPI{
		signal: func(_ context.Context, symbol string) (models.Signal, error) {
			if fail.Load() {
				return models.Signal{}, fault.Network("generateSignal", errors.New("eof"))
			}
			return models.Signal{Symbol: symbol, Action: models.ActionBuy, Confidence: 0.8, GeneratedAt: stampSec(50)}, nil
		},
	}
	store := newStore()
	c := newCoordinator(api, store, &countingRefresher{})

	_, err := c.GenerateSignal(context.Background(), "BTC/USDT")
	require.ErrorIs(t, err, fault.ErrNetwork)
	assert.Equal(t, 1, api.count("signal"))

	fail.Store(false)
	sig, err := c.GenerateSignal(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	stored, ok := store.Signal("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, models.ActionBuy, stored.Action)
	assert.NotEmpty(t, stored.RequestID)
	assert.Equal(t, sig.RequestID, stored.RequestID)
}

func TestAbandonedCallerStillSettlesAction(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		signal: func(_ context.Context, symbol string) (models.Signal, error) {
			<-release
			return models.Signal{Symbol: symbol, Action: models.ActionSell, GeneratedAt: stampSec(5)}, nil
		},
	}
	store := newStore()
	journal := &memJournal{}
	c := newCoordinator(api, store, &countingRefresher{}, WithJournal(journal))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GenerateSignal(ctx, "BTC/USDT")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return api.count("signal") == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		p := c.Pending()
		return len(p) == 1 && p[0].Status == models.StatusSucceeded
	}, time.Second, time.Millisecond)

	_, ok := store.Signal("BTC/USDT")
	assert.True(t, ok)
	require.Eventually(t, func() bool { return journal.len() == 1 }, time.Second, time.Millisecond)
}

func TestAcknowledgeOnlyRemovesTerminalActions(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		train: func(_ context.Context, symbol string) (models.TrainStatus, error) {
			<-release
			return models.TrainStatus{Status: "training", Symbol: symbol}, nil
		},
	}
	c := newCoordinator(api, newStore(), &countingRefresher{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.TrainModel(context.Background(), "BTC/USDT")
	}()
	require.Eventually(t, func() bool { return len(c.Pending()) == 1 }, time.Second, time.Millisecond)

	id := c.Pending()[0].ID
	assert.False(t, c.Acknowledge(id))

	close(release)
	<-done
	assert.True(t, c.Acknowledge(id))
	assert.Empty(t, c.Pending())
	assert.False(t, c.Acknowledge("missing"))
}

func TestInvalidRequestIssuesNothing(t *testing.T) {
	api := &fakeAPI{}
	c := newCoordinator(api, newStore(), &countingRefresher{})

	_, err := c.ExecuteTrade(context.Background(), "BTC/USDT", "moon", 100)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 0)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.Analyze(context.Background(), "weather", "")
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, api.count("trade"))
	assert.Equal(t, 0, api.count("analyze"))
	assert.Empty(t, c.Pending())
}

func TestRetainedActionsArePruned(t *testing.T) {
	c := newCoordinator(&fakeAPI{}, newStore(), &countingRefresher{}, WithRetainedActions(2))
	for _, s := range []string{"A/USDT", "B/USDT", "C/USDT"} {
		_, err := c.TrainModel(context.Background(), s)
		require.NoError(t, err)
	}
	pending := c.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "B/USDT", pending[0].Symbol)
}
