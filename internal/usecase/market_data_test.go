package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeSync/internal/domain/fault"
	"TradeSync/internal/domain/models"
	"TradeSync/pkg/cache"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMarketData(t *testing.T, api *fakeAPI) *MarketDataService {
	t.Helper()
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	return NewMarketDataService(api, mem, time.Minute, time.Minute, logger.Nop(), metrics.Nop{})
}

func TestGetCandlesCachesAndOrders(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		marketData: func(_ context.Context, req models.MarketDataRequest) ([]models.Candle, error) {
			assert.Equal(t, "BTC/USDT", req.Symbol)
			return []models.Candle{
				{Bucket: base.Add(2 * time.Minute), Close: 3},
				{Bucket: base, Close: 1},
				{Bucket: base.Add(time.Minute), Close: 2},
			}, nil
		},
	}
	svc := newMarketData(t, api)

	res, err := svc.GetCandles(context.Background(), models.MarketDataRequest{Symbol: "btc/usdt", Limit: 2})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "1m", res.Timeframe)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, 2.0, res.Candles[0].Close)
	assert.Equal(t, 3.0, res.Candles[1].Close)

	res, err = svc.GetCandles(context.Background(), models.MarketDataRequest{Symbol: "BTC/USDT", Limit: 2})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 1, api.count("marketData"))
}

func TestGetCandlesRejectsBadRequest(t *testing.T) {
	api := &fakeAPI{}
	svc := newMarketData(t, api)

	_, err := svc.GetCandles(context.Background(), models.MarketDataRequest{Symbol: "BTC/USDT", Timeframe: "7m"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.GetCandles(context.Background(), models.MarketDataRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, api.count("marketData"))
}

func TestMarketsErrorIsNotCached(t *testing.T) {
	fail := true
	api := &fakeAPI{
		markets: func(context.Context) ([]string, error) {
			if fail {
				return nil, fault.Network("fetchMarketsList", errors.New("refused"))
			}
			return []string{"BTC/USDT", "ETH/USDT"}, nil
		},
	}
	svc := newMarketData(t, api)

	_, err := svc.Markets(context.Background())
	require.ErrorIs(t, err, fault.ErrNetwork)

	fail = false
	got, err := svc.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, got)

	_, err = svc.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("markets"))
}
