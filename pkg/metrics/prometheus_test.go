package metrics

import (
	"testing"

	"TradeSync/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordFactApplied("market", models.SourcePush)
	r.RecordFactApplied("market", models.SourcePush)
	r.RecordStaleWrite("portfolio")
	r.RecordAction(models.KindExecuteTrade, "ambiguous")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.factsApplied.WithLabelValues("market", "push")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.staleWrites.WithLabelValues("portfolio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.actions.WithLabelValues("executeTrade", "ambiguous")))
}

func TestConnectionStateIsOneHot(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordConnectionState(models.ConnConnected)
	r.RecordConnectionState(models.ConnDisconnected)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.connState.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.connState.WithLabelValues("disconnected")))
}
