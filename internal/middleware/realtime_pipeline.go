package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	domsvc "TradeSync/internal/domain/service"
	xhttp "TradeSync/pkg/http"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Proc is the downstream that receives facts the store accepted.
type Proc interface {
	Process(ctx context.Context, m models.MarketSnapshot) error
}

// Gate decides whether push events for a symbol may enter the store.
type Gate interface {
	Accepts(symbol string) bool
}

// RealtimePipeline sits between the push channel and the state store.
// It validates, drops unsubscribed symbols, applies to the store and
// forwards accepted facts downstream, optionally throttled per symbol and
// buffered while the downstream is unavailable.
type RealtimePipeline struct {
	store   domsvc.StateWriter
	gate    Gate
	proc    Proc
	metrics domrepo.Metrics

	maxRPS  float64
	bufSize int
	bufCh   chan models.MarketSnapshot
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex

	limiters map[string]*rate.Limiter
	retry    func() backoff.BackOff
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps how many accepted updates per second per symbol are
// forwarded downstream. The store always sees every update. Zero disables it.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the buffer used while the downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithDownstream sets where accepted facts are forwarded.
func WithDownstream(proc Proc) PipelineOption {
	return func(p *RealtimePipeline) { p.proc = proc }
}

// WithFlushBackOff sets the retry policy of the background flush.
func WithFlushBackOff(f func() backoff.BackOff) PipelineOption {
	return func(p *RealtimePipeline) { p.retry = f }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(store domsvc.StateWriter, gate Gate, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		store:    store,
		gate:     gate,
		metrics:  metrics,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		limiters: make(map[string]*rate.Limiter),
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.MarketSnapshot, p.bufSize)
	return p
}

// Start launches background flushing of buffered facts.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.proc == nil {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flush(ctx)
}

func (p *RealtimePipeline) flush(ctx context.Context) {
	policy := p.retry()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case m := <-p.bufCh:
			if err := p.proc.Process(ctx, m); err != nil {
				p.metrics.RecordError("pipeline_flush")
				wait := policy.NextBackOff()
				if wait == backoff.Stop {
					wait = 2 * time.Second
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				case <-p.stopCh:
					return
				}
				select {
				case p.bufCh <- m:
				default:
					p.metrics.RecordDroppedEvent("buffer_full")
				}
				continue
			}
			policy.Reset()
		}
	}
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Buffered returns the number of facts waiting for the downstream.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process runs one push update through the pipeline. It reports whether the
// store accepted it. A downstream failure is returned after the fact has
// been applied and buffered.
func (p *RealtimePipeline) Process(ctx context.Context, m models.MarketSnapshot) (bool, error) {
	start := time.Now()
	m.Symbol = models.NormalizeSymbol(m.Symbol)
	if err := xhttp.ValidateStruct(ctx, &m); err != nil {
		p.metrics.RecordDroppedEvent("invalid")
		return false, fmt.Errorf("pipeline validate: %w", err)
	}
	if p.gate != nil && !p.gate.Accepts(m.Symbol) {
		p.metrics.RecordDroppedEvent("unsubscribed")
		return false, nil
	}
	if !p.store.ApplyMarket(m) {
		return false, nil
	}
	if p.proc == nil {
		return true, nil
	}
	if !p.allow(m.Symbol) {
		p.metrics.RecordDroppedEvent("throttled")
		return true, nil
	}

	if err := p.proc.Process(ctx, m); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- m:
		default:
			p.metrics.RecordDroppedEvent("buffer_full")
		}
		return true, fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return true, nil
}

func (p *RealtimePipeline) allow(symbol string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	lim, ok := p.limiters[symbol]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.maxRPS), 1)
		p.limiters[symbol] = lim
	}
	p.mu.Unlock()
	return lim.Allow()
}
