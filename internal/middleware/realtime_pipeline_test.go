package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TradeSync/internal/domain/models"
	"TradeSync/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	applied []models.MarketSnapshot
	reject  bool
}

func (s *memStore) ApplyMarket(m models.MarketSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.applied = append(s.applied, m)
	return true
}
func (s *memStore) ApplySignal(models.Signal) bool                   { return true }
func (s *memStore) ApplyPortfolio(models.PortfolioState, int64) bool { return true }
func (s *memStore) PortfolioVersion() int64                          { return 0 }
func (s *memStore) InvalidatePortfolio()                             {}

type setGate map[string]bool

func (g setGate) Accepts(symbol string) bool { return g[symbol] }

type flakyProc struct {
	mu       sync.Mutex
	fail     bool
	received []models.MarketSnapshot
}

func (p *flakyProc) Process(_ context.Context, m models.MarketSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("sink down")
	}
	p.received = append(p.received, m)
	return nil
}

func (p *flakyProc) setFail(v bool) {
	p.mu.Lock()
	p.fail = v
	p.mu.Unlock()
}

func (p *flakyProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

func price(symbol string, ms int64) models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol:     symbol,
		Price:      100,
		ObservedAt: models.Stamp{Logical: ms},
		Source:     models.SourcePush,
	}
}

func TestPipelineDropsUnsubscribedSymbols(t *testing.T) {
	store := &memStore{}
	p := NewRealtimePipeline(store, setGate{"BTC/USDT": true}, metrics.Nop{})

	ok, err := p.Process(context.Background(), price("DOGE/USDT", 1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Process(context.Background(), price("btc/usdt", 1))
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, store.applied, 1)
	assert.Equal(t, "BTC/USDT", store.applied[0].Symbol)
}

func TestPipelineRejectsInvalidFacts(t *testing.T) {
	p := NewRealtimePipeline(&memStore{}, nil, metrics.Nop{})
	bad := price("BTC/USDT", 1)
	bad.Price = -1
	_, err := p.Process(context.Background(), bad)
	assert.Error(t, err)

	noSymbol := price("", 1)
	_, err = p.Process(context.Background(), noSymbol)
	assert.Error(t, err)
}

func TestPipelineThrottlesForwardingNotTheStore(t *testing.T) {
	store := &memStore{}
	proc := &flakyProc{}
	p := NewRealtimePipeline(store, nil, metrics.Nop{}, WithMaxRPS(1), WithDownstream(proc))
	ctx := context.Background()

	first, _ := p.Process(ctx, price("BTC/USDT", 1))
	second, _ := p.Process(ctx, price("BTC/USDT", 2))
	other, _ := p.Process(ctx, price("ETH/USDT", 2))

	assert.True(t, first)
	assert.True(t, second)
	assert.True(t, other)
	require.Len(t, store.applied, 3)
	assert.Equal(t, int64(2), store.applied[1].ObservedAt.Logical)

	assert.Equal(t, 2, proc.count())
	symbols := []string{proc.received[0].Symbol, proc.received[1].Symbol}
	assert.ElementsMatch(t, []string{"BTC/USDT", "ETH/USDT"}, symbols)
}

func TestPipelineDoesNotForwardStaleFacts(t *testing.T) {
	proc := &flakyProc{}
	p := NewRealtimePipeline(&memStore{reject: true}, nil, metrics.Nop{}, WithDownstream(proc))

	ok, err := p.Process(context.Background(), price("BTC/USDT", 1))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, proc.count())
}

func TestPipelineBuffersWhileDownstreamIsDown(t *testing.T) {
	proc := &flakyProc{fail: true}
	p := NewRealtimePipeline(&memStore{}, nil, metrics.Nop{},
		WithDownstream(proc),
		WithBufferSize(4),
		WithFlushBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }),
	)

	for i := int64(1); i <= 3; i++ {
		ok, err := p.Process(context.Background(), price("BTC/USDT", i))
		assert.True(t, ok, "store still applies the fact")
		assert.Error(t, err)
	}
	assert.Equal(t, 3, p.Buffered())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	proc.setFail(false)
	require.Eventually(t, func() bool { return proc.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Buffered())
}
