package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"TradeSync/internal/domain/fault"
	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	domsvc "TradeSync/internal/domain/service"
	xhttp "TradeSync/pkg/http"
	"TradeSync/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// ErrInvalidRequest is returned before any request is issued when the
// action parameters fail validation.
var ErrInvalidRequest = errors.New("invalid action request")

// ActionJournal receives actions once they are terminal.
type ActionJournal interface {
	RecordActions(ctx context.Context, actions []models.PendingAction) error
}

type actionKey struct {
	kind models.ActionKind
	key  string
}

// ActionCoordinator owns the lifecycle of user-initiated backend requests:
// in-flight tracking, de-duplication per (kind, symbol), retries for
// idempotent kinds, ambiguous trade outcomes and post-trade reconciliation.
type ActionCoordinator struct {
	api       drepo.TradingAPI
	store     domsvc.StateWriter
	refresher domsvc.Refresher
	journal   ActionJournal
	log       *logger.Logger
	metrics   drepo.Metrics

	maxRetries int
	spacing    time.Duration
	retain     int
	newID      func() string
	now        func() time.Time

	mu       sync.Mutex
	actions  map[string]*models.PendingAction
	inFlight map[actionKey]string
}

// CoordinatorOption configures ActionCoordinator.
type CoordinatorOption func(*ActionCoordinator)

// WithRetryPolicy sets how many times idempotent actions are reissued and
// the fixed spacing between attempts.
func WithRetryPolicy(maxRetries int, spacing time.Duration) CoordinatorOption {
	return func(c *ActionCoordinator) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if spacing > 0 {
			c.spacing = spacing
		}
	}
}

// WithJournal records terminal actions.
func WithJournal(j ActionJournal) CoordinatorOption {
	return func(c *ActionCoordinator) { c.journal = j }
}

// WithRetainedActions caps how many unacknowledged terminal actions are kept.
func WithRetainedActions(n int) CoordinatorOption {
	return func(c *ActionCoordinator) {
		if n > 0 {
			c.retain = n
		}
	}
}

// NewActionCoordinator creates a coordinator.
func NewActionCoordinator(
	api drepo.TradingAPI,
	store domsvc.StateWriter,
	refresher domsvc.Refresher,
	log *logger.Logger,
	metrics drepo.Metrics,
	opts ...CoordinatorOption,
) *ActionCoordinator {
	c := &ActionCoordinator{
		api:        api,
		store:      store,
		refresher:  refresher,
		log:        log.Component("coordinator"),
		metrics:    metrics,
		maxRetries: 2,
		spacing:    2 * time.Second,
		retain:     256,
		newID:      uuid.NewString,
		now:        time.Now,
		actions:    make(map[string]*models.PendingAction),
		inFlight:   make(map[actionKey]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateSignal requests a fresh signal for symbol and applies it to the
// store. It is not retried.
func (c *ActionCoordinator) GenerateSignal(ctx context.Context, symbol string) (models.Signal, error) {
	req := models.SymbolRequest{Symbol: models.NormalizeSymbol(symbol)}
	if err := xhttp.ValidateStruct(ctx, &req); err != nil {
		return models.Signal{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var id string
	return run(c, ctx, models.KindGenerateSignal, req.Symbol, req.Symbol, &id,
		func(ctx context.Context) (models.Signal, error) {
			return c.api.GenerateSignal(ctx, req.Symbol)
		},
		func(sig models.Signal, err error) (models.Signal, error) {
			if err != nil {
				return sig, err
			}
			sig.RequestID = id
			c.store.ApplySignal(sig)
			return sig, nil
		})
}

// ExecuteTrade submits a trade. It is never retried. A timeout, or a
// transport failure after the request was written, becomes AmbiguousOutcome
// and triggers reconciliation without touching the stored portfolio; a
// confirmed trade invalidates the portfolio and forces exactly one
// reconciliation.
func (c *ActionCoordinator) ExecuteTrade(ctx context.Context, symbol string, action models.TradeAction, price float64) (models.TradeResult, error) {
	req := models.TradeRequest{Symbol: models.NormalizeSymbol(symbol), Action: action, Price: price}
	if err := xhttp.ValidateStruct(ctx, &req); err != nil {
		return models.TradeResult{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var id string
	return run(c, ctx, models.KindExecuteTrade, req.Symbol, req.Symbol, &id,
		func(ctx context.Context) (models.TradeResult, error) {
			return c.api.ExecuteTrade(ctx, req)
		},
		func(res models.TradeResult, err error) (models.TradeResult, error) {
			switch {
			case errors.Is(err, fault.ErrTimeout), errors.Is(err, xhttp.ErrMalformedBody),
				errors.Is(err, fault.ErrNetwork) && fault.Delivered(err):
				c.refresher.ForceRefresh()
				return res, fault.Ambiguous(string(models.KindExecuteTrade), err)
			case err != nil:
				return res, err
			case !res.Accepted:
				return res, fault.Rejected(string(models.KindExecuteTrade), http.StatusOK, res.Reason)
			}
			c.store.InvalidatePortfolio()
			c.refresher.ForceRefresh()
			return res, nil
		})
}

// TrainModel starts model training for symbol.
func (c *ActionCoordinator) TrainModel(ctx context.Context, symbol string) (models.TrainStatus, error) {
	req := models.SymbolRequest{Symbol: models.NormalizeSymbol(symbol)}
	if err := xhttp.ValidateStruct(ctx, &req); err != nil {
		return models.TrainStatus{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return run(c, ctx, models.KindTrainModel, req.Symbol, req.Symbol, nil,
		func(ctx context.Context) (models.TrainStatus, error) {
			return c.api.TrainModel(ctx, req.Symbol)
		}, passThrough[models.TrainStatus])
}

// Analyze requests a portfolio or market analysis. Without a symbol the
// de-duplication key is the analysis type.
func (c *ActionCoordinator) Analyze(ctx context.Context, typ, symbol string) (models.Analysis, error) {
	req := models.AnalyzeRequest{Type: typ, Symbol: models.NormalizeSymbol(symbol)}
	if err := xhttp.ValidateStruct(ctx, &req); err != nil {
		return models.Analysis{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	key := req.Symbol
	if key == "" {
		key = "@" + req.Type
	}
	return run(c, ctx, models.KindAnalyze, req.Symbol, key, nil,
		func(ctx context.Context) (models.Analysis, error) {
			return c.api.Analyze(ctx, req)
		}, passThrough[models.Analysis])
}

// UpdateConfig forwards an opaque configuration blob.
func (c *ActionCoordinator) UpdateConfig(ctx context.Context, cfg models.BackendConfig) (models.ConfigStatus, error) {
	req := models.ConfigRequest{Config: cfg}
	if err := xhttp.ValidateStruct(ctx, &req); err != nil {
		return models.ConfigStatus{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return run(c, ctx, models.KindUpdateConfig, "", "", nil,
		func(ctx context.Context) (models.ConfigStatus, error) {
			return c.api.UpdateConfig(ctx, req.Config)
		}, passThrough[models.ConfigStatus])
}

// Pending returns copies of every tracked action, oldest first.
func (c *ActionCoordinator) Pending() []models.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.PendingAction, 0, len(c.actions))
	for _, a := range c.actions {
		out = append(out, copyAction(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Acknowledge removes a terminal action once the caller has observed it.
// It reports whether the action was removed.
func (c *ActionCoordinator) Acknowledge(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.actions[id]
	if !ok || !a.Status.Terminal() {
		return false
	}
	delete(c.actions, id)
	return true
}

func passThrough[T any](v T, err error) (T, error) { return v, err }

// run registers the action, issues the request on a context detached from
// the caller and waits for either the outcome or the caller giving up. An
// abandoned request still settles and reaches a terminal state.
func run[T any](
	c *ActionCoordinator,
	ctx context.Context,
	kind models.ActionKind,
	symbol, key string,
	idOut *string,
	attempt func(context.Context) (T, error),
	settle func(T, error) (T, error),
) (T, error) {
	var zero T
	id, err := c.begin(kind, symbol, key)
	if err != nil {
		return zero, err
	}
	if idOut != nil {
		*idOut = id
	}

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		var (
			val T
			err error
		)
		if kind.Idempotent() {
			val, err = retry(c, detached, id, attempt)
		} else {
			val, err = attempt(detached)
		}
		val, err = settle(val, err)
		finished := c.finish(id, err)
		done <- outcome{val: val, err: err}
		c.record(detached, finished)
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		c.log.Debug("action abandoned by caller", logger.String("id", id), logger.String("kind", string(kind)))
		return zero, ctx.Err()
	}
}

func retry[T any](c *ActionCoordinator, ctx context.Context, id string, attempt func(context.Context) (T, error)) (T, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.spacing), uint64(c.maxRetries)),
		ctx,
	)
	op := func() (T, error) {
		v, err := attempt(ctx)
		if err != nil && !fault.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		c.mu.Lock()
		if a, ok := c.actions[id]; ok && a.RetriesRemaining > 0 {
			a.RetriesRemaining--
		}
		c.mu.Unlock()
		c.log.Info("retrying action", logger.String("id", id), logger.Duration("wait", wait), logger.Error(err))
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

func (c *ActionCoordinator) begin(kind models.ActionKind, symbol, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := actionKey{kind: kind, key: key}
	if _, busy := c.inFlight[k]; busy {
		c.metrics.RecordAction(kind, "duplicate")
		return "", fault.AlreadyInFlight(string(kind), key)
	}

	retries := 0
	if kind.Idempotent() {
		retries = c.maxRetries
	}
	a := &models.PendingAction{
		ID:               c.newID(),
		Kind:             kind,
		Symbol:           symbol,
		SubmittedAt:      c.now(),
		Status:           models.StatusInFlight,
		RetriesRemaining: retries,
	}
	c.actions[a.ID] = a
	c.inFlight[k] = a.ID
	return a.ID, nil
}

func (c *ActionCoordinator) finish(id string, err error) models.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.actions[id]
	finishedAt := c.now()
	a.FinishedAt = &finishedAt
	switch {
	case err == nil:
		a.Status = models.StatusSucceeded
	case errors.Is(err, fault.ErrAmbiguousOutcome):
		a.Status = models.StatusAmbiguous
	default:
		a.Status = models.StatusFailed
	}
	if err != nil {
		a.Error = err.Error()
	}
	for k, v := range c.inFlight {
		if v == id {
			delete(c.inFlight, k)
		}
	}
	c.pruneLocked()

	c.metrics.RecordAction(a.Kind, string(a.Status))
	if err != nil {
		c.log.Warn("action finished",
			logger.String("id", id),
			logger.String("kind", string(a.Kind)),
			logger.String("status", string(a.Status)),
			logger.Error(err),
		)
	}
	return copyAction(a)
}

// pruneLocked drops the oldest terminal actions beyond the retention cap.
func (c *ActionCoordinator) pruneLocked() {
	var terminal []*models.PendingAction
	for _, a := range c.actions {
		if a.Status.Terminal() {
			terminal = append(terminal, a)
		}
	}
	if len(terminal) <= c.retain {
		return
	}
	sort.Slice(terminal, func(i, j int) bool { return terminal[i].FinishedAt.Before(*terminal[j].FinishedAt) })
	for _, a := range terminal[:len(terminal)-c.retain] {
		delete(c.actions, a.ID)
	}
}

func (c *ActionCoordinator) record(ctx context.Context, a models.PendingAction) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.journal.RecordActions(ctx, []models.PendingAction{a}); err != nil {
		c.log.Warn("journal action failed", logger.String("id", a.ID), logger.Error(err))
	}
}

func copyAction(a *models.PendingAction) models.PendingAction {
	out := *a
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
