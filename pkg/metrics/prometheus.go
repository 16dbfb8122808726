package metrics

import (
	"TradeSync/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	factsApplied  *prometheus.CounterVec
	staleWrites   *prometheus.CounterVec
	droppedEvents *prometheus.CounterVec
	connState     *prometheus.GaugeVec
	reconnects    prometheus.Counter
	actions       *prometheus.CounterVec
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New registers the collectors on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		factsApplied: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_facts_applied_total",
				Help: "Facts accepted by the state store",
			},
			[]string{"slice", "source"},
		),
		staleWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_stale_writes_total",
				Help: "Merges rejected by the staleness rule",
			},
			[]string{"slice"},
		),
		droppedEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_dropped_events_total",
				Help: "Push events dropped before reaching the store",
			},
			[]string{"reason"},
		),
		connState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradesync_push_connection_state",
				Help: "1 for the current push channel state, 0 otherwise",
			},
			[]string{"state"},
		),
		reconnects: f.NewCounter(
			prometheus.CounterOpts{
				Name: "tradesync_push_reconnects_total",
				Help: "Push channel reconnect attempts",
			},
		),
		actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_actions_total",
				Help: "Coordinated actions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_messages_sent_total",
				Help: "Facts sent to the recorder backend",
			},
			[]string{"backend", "key"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradesync_last_price",
				Help: "Last accepted price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradesync_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

var connStates = []models.ConnectionState{
	models.ConnConnecting,
	models.ConnConnected,
	models.ConnDisconnected,
	models.ConnError,
}

func (r *Recorder) RecordFactApplied(slice string, source models.Source) {
	r.factsApplied.WithLabelValues(slice, string(source)).Inc()
}

func (r *Recorder) RecordStaleWrite(slice string) {
	r.staleWrites.WithLabelValues(slice).Inc()
}

func (r *Recorder) RecordDroppedEvent(reason string) {
	r.droppedEvents.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordConnectionState(state models.ConnectionState) {
	for _, s := range connStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.connState.WithLabelValues(string(s)).Set(v)
	}
}

func (r *Recorder) RecordReconnect() { r.reconnects.Inc() }

func (r *Recorder) RecordAction(kind models.ActionKind, outcome string) {
	r.actions.WithLabelValues(string(kind), outcome).Inc()
}

// RecordMessageSent records a fact sent to a recorder backend.
func (r *Recorder) RecordMessageSent(backend, key string) {
	r.messagesSent.WithLabelValues(backend, key).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
