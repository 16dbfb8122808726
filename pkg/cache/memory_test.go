package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bar struct {
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "candles", []bar{{Close: 1, Volume: 2}}, time.Minute))

	var got []bar
	require.NoError(t, mc.Get(ctx, "candles", &got))
	assert.Equal(t, []bar{{Close: 1, Volume: 2}}, got)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)

	var n int
	require.NoError(t, mc.Get(ctx, "a", &n))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &n), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &n))
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"BTC/USDT", "ETH/USDT"}, nil
	}

	v, hit, err := GetOrLoad(ctx, mc, "markets", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, v, 2)

	v, hit, err = GetOrLoad(ctx, mc, "markets", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, v, 2)
	assert.Equal(t, 1, calls)

	_, _, err = GetOrLoad(ctx, mc, "broken", time.Minute, func(context.Context) (int, error) {
		return 0, errors.New("backend down")
	})
	assert.EqualError(t, err, "backend down")
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "candles:BTC/USDT:1m:500", GenerateKeyWithParams("candles", "BTC/USDT", "1m", 500))
}
