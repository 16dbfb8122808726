package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"TradeSync/internal/domain/fault"
	"TradeSync/internal/domain/models"
	"TradeSync/internal/service/backend"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradeAgainst(t *testing.T, h http.HandlerFunc) (*ActionCoordinator, *countingRefresher, *StateStore, error) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store := seededStore(t)
	r := &countingRefresher{}
	c := NewActionCoordinator(backend.New(srv.URL), store, r, logger.Nop(), metrics.Nop{})
	_, err := c.ExecuteTrade(context.Background(), "ETH/USDT", models.ActionBuy, 3250)
	return c, r, store, err
}

func TestTradeGatewayTimeoutIsAmbiguous(t *testing.T) {
	c, r, store, err := tradeAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"upstream timeout"}`, http.StatusGatewayTimeout)
	})

	require.ErrorIs(t, err, fault.ErrAmbiguousOutcome)
	assert.ErrorIs(t, err, fault.ErrTimeout)
	assert.Equal(t, int32(1), r.n.Load())
	assert.False(t, store.Read().PortfolioStale)
	assert.Equal(t, models.StatusAmbiguous, c.Pending()[0].Status)
}

func TestTradeConnectionLostAfterSendIsAmbiguous(t *testing.T) {
	c, r, _, err := tradeAgainst(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.Copy(io.Discard, req.Body)
		conn, _, herr := w.(http.Hijacker).Hijack()
		if herr == nil {
			_ = conn.Close()
		}
	})

	require.ErrorIs(t, err, fault.ErrAmbiguousOutcome)
	assert.ErrorIs(t, err, fault.ErrNetwork)
	assert.Equal(t, int32(1), r.n.Load())
	assert.Equal(t, models.StatusAmbiguous, c.Pending()[0].Status)
}

func TestTradeDeliveredNetworkErrorIsAmbiguous(t *testing.T) {
	api := &fakeAPI{
		trade: func(context.Context, models.TradeRequest) (models.TradeResult, error) {
			return models.TradeResult{}, fault.Network("executeTrade", io.ErrUnexpectedEOF).Sent(true)
		},
	}
	r := &countingRefresher{}
	c := newCoordinator(api, seededStore(t), r)

	_, err := c.ExecuteTrade(context.Background(), "BTC/USDT", models.ActionBuy, 100)
	require.ErrorIs(t, err, fault.ErrAmbiguousOutcome)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, 1, api.count("trade"))
	assert.Equal(t, int32(1), r.n.Load())
}
