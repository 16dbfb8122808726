package usecase

import (
	"context"
	"fmt"
	"time"

	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
)

// Recorder backends.
const (
	RecorderNone       = "none"
	RecorderKafka      = "kafka"
	RecorderClickHouse = "clickhouse"
)

// FactRecorder routes accepted market facts and terminal actions to the
// configured sink. With backend "none" every call succeeds without I/O.
type FactRecorder struct {
	sink    drepo.FactSink
	metrics drepo.Metrics
	backend string
}

// NewFactRecorder creates a recorder. sink may be nil for backend "none".
func NewFactRecorder(sink drepo.FactSink, metrics drepo.Metrics, backend string) *FactRecorder {
	if backend == "" {
		backend = RecorderNone
	}
	return &FactRecorder{sink: sink, metrics: metrics, backend: backend}
}

// Backend returns the configured backend name.
func (r *FactRecorder) Backend() string { return r.backend }

// Process records one accepted market fact.
func (r *FactRecorder) Process(ctx context.Context, m models.MarketSnapshot) error {
	return r.RecordMarket(ctx, []models.MarketSnapshot{m})
}

// RecordMarket records accepted market facts.
func (r *FactRecorder) RecordMarket(ctx context.Context, snaps []models.MarketSnapshot) error {
	if len(snaps) == 0 || r.backend == RecorderNone {
		return nil
	}
	start := time.Now()
	sink, err := r.target()
	if err == nil {
		err = sink.RecordMarket(ctx, snaps)
	}
	if err != nil {
		r.metrics.RecordError("record_market")
		return fmt.Errorf("record market: %w", err)
	}
	for _, m := range snaps {
		r.metrics.RecordMessageSent(r.backend, m.Symbol)
	}
	r.metrics.RecordLatency("record_market", time.Since(start).Seconds())
	return nil
}

// RecordActions journals terminal actions.
func (r *FactRecorder) RecordActions(ctx context.Context, actions []models.PendingAction) error {
	if len(actions) == 0 || r.backend == RecorderNone {
		return nil
	}
	start := time.Now()
	sink, err := r.target()
	if err == nil {
		err = sink.RecordActions(ctx, actions)
	}
	if err != nil {
		r.metrics.RecordError("record_actions")
		return fmt.Errorf("record actions: %w", err)
	}
	for _, a := range actions {
		r.metrics.RecordMessageSent(r.backend, string(a.Kind))
	}
	r.metrics.RecordLatency("record_actions", time.Since(start).Seconds())
	return nil
}

func (r *FactRecorder) target() (drepo.FactSink, error) {
	switch r.backend {
	case RecorderKafka, RecorderClickHouse:
		if r.sink == nil {
			return nil, fmt.Errorf("%s sink not configured", r.backend)
		}
		return r.sink, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", r.backend)
	}
}

// Close closes the sink if any.
func (r *FactRecorder) Close() error {
	if r.sink != nil {
		return r.sink.Close()
	}
	return nil
}
