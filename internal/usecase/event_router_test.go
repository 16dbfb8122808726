package usecase

import (
	"context"
	"testing"
	"time"

	"TradeSync/internal/domain/models"
	mid "TradeSync/internal/middleware"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	store    *StateStore
	registry *SubscriptionRegistry
	refresh  *countingRefresher
	router   *EventRouter
}

func newRouterFixture(symbols ...string) *routerFixture {
	f := &routerFixture{
		store:    newStore(),
		registry: NewSubscriptionRegistry(symbols...),
		refresh:  &countingRefresher{},
	}
	pipe := mid.NewRealtimePipeline(f.store, f.registry, metrics.Nop{})
	f.router = NewEventRouter(pipe, f.store, f.registry, f.refresh, logger.Nop(), metrics.Nop{})
	return f
}

func TestRoutePriceUpdateRespectsSubscriptions(t *testing.T) {
	f := newRouterFixture("BTC/USDT")
	f.registry.Acknowledge("BTC/USDT", true)
	ctx := context.Background()

	btc := snap("btc/usdt", 101, 10, "")
	f.router.Route(ctx, models.Event{Type: models.EventPriceUpdate, Market: &btc})
	eth := snap("ETH/USDT", 5, 10, "")
	f.router.Route(ctx, models.Event{Type: models.EventPriceUpdate, Market: &eth})

	got, ok := f.store.Market("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, 101.0, got.Price)
	assert.Equal(t, models.SourcePush, got.Source)
	_, ok = f.store.Market("ETH/USDT")
	assert.False(t, ok)
}

func TestRouteSignalAndPortfolio(t *testing.T) {
	f := newRouterFixture("SOL/USDT")
	ctx := context.Background()

	f.router.Route(ctx, models.Event{Type: models.EventSignalUpdate, Signal: &models.Signal{
		Symbol: "sol/usdt", Action: models.ActionBuy, GeneratedAt: stampSec(3),
	}})
	sig, ok := f.store.Signal("SOL/USDT")
	require.True(t, ok)
	assert.Equal(t, models.SourcePush, sig.Source)

	f.router.Route(ctx, models.Event{Type: models.EventPortfolioUpdate, Portfolio: &models.PortfolioState{
		TotalValue: 1200, ObservedAt: stampSec(4), Partial: true,
	}})
	view := f.store.Read()
	require.NotNil(t, view.Portfolio)
	assert.Equal(t, 1200.0, view.Portfolio.TotalValue)
	assert.Equal(t, models.SourcePush, view.Portfolio.Source)
}

func TestRouteSignalForUnsubscribedSymbolIsDropped(t *testing.T) {
	f := newRouterFixture("BTC/USDT")
	f.registry.Acknowledge("BTC/USDT", true)
	ctx := context.Background()

	f.router.Route(ctx, models.Event{Type: models.EventSignalUpdate, Signal: &models.Signal{
		Symbol: "DOGE/USDT", Action: models.ActionBuy, GeneratedAt: stampSec(3),
	}})
	_, ok := f.store.Signal("DOGE/USDT")
	assert.False(t, ok)

	f.registry.Unsubscribe("BTC/USDT")
	f.router.Route(ctx, models.Event{Type: models.EventSignalUpdate, Signal: &models.Signal{
		Symbol: "BTC/USDT", Action: models.ActionSell, GeneratedAt: stampSec(4),
	}})
	_, ok = f.store.Signal("BTC/USDT")
	assert.False(t, ok)
}

func TestRouteTradeExecutedInvalidatesAndRefreshes(t *testing.T) {
	f := newRouterFixture()
	require.True(t, f.store.ApplyPortfolio(models.PortfolioState{TotalValue: 1000, ObservedAt: stampSec(1)}, models.AnyVersion))
	v := f.store.PortfolioVersion()

	f.router.Route(context.Background(), models.Event{Type: models.EventTradeExecuted, Trade: &models.Trade{
		Symbol: "BTC/USDT", Action: models.ActionBuy, Quantity: 0.1, Price: 100, ExecutedAt: time.Unix(5, 0),
	}})

	assert.True(t, f.store.Read().PortfolioStale)
	assert.Equal(t, v+1, f.store.PortfolioVersion())
	assert.Equal(t, int32(1), f.refresh.n.Load())
}

func TestRouteAcksAndConnectionLoss(t *testing.T) {
	f := newRouterFixture("BTC/USDT", "ETH/USDT")
	ctx := context.Background()

	f.router.Route(ctx, models.Event{Type: models.EventSubscriptionAck, Ack: &models.SubscriptionAck{Symbol: "BTC/USDT", Subscribed: true}})
	f.router.Route(ctx, models.Event{Type: models.EventSubscriptionAck, Ack: &models.SubscriptionAck{Symbol: "ETH/USDT", Failed: true, Reason: "unknown symbol"}})

	states := channelStates(f.registry)
	assert.Equal(t, models.ChannelActive, states["BTC/USDT"])
	assert.Equal(t, models.ChannelFailed, states["ETH/USDT"])

	f.router.Route(ctx, models.Event{Type: models.EventConnectionStateChanged, Connection: &models.ConnectionChange{State: models.ConnDisconnected}})
	states = channelStates(f.registry)
	assert.Equal(t, models.ChannelPending, states["BTC/USDT"])
}

func TestRunStopsWhenEventsClose(t *testing.T) {
	f := newRouterFixture("BTC/USDT")
	events := make(chan models.Event, 1)
	events <- models.Event{Type: models.EventSignalUpdate, Signal: &models.Signal{Symbol: "BTC/USDT", GeneratedAt: stampSec(1)}}
	close(events)

	done := make(chan struct{})
	go func() {
		f.router.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
	_, ok := f.store.Signal("BTC/USDT")
	assert.True(t, ok)
}

func channelStates(r *SubscriptionRegistry) map[string]models.ChannelState {
	out := make(map[string]models.ChannelState)
	for _, s := range r.List() {
		out[s.Symbol] = s.Channel
	}
	return out
}
