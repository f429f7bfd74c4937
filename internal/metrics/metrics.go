package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coinbase"

// Metrics holds every collector the gatherer and server export.
type Metrics struct {
	Envelopes       *prometheus.CounterVec // channel, result
	QueueDropped    *prometheus.CounterVec // queue
	QueueDepth      *prometheus.GaugeVec   // queue
	WriterInserts   *prometheus.CounterVec // table
	WriterConflicts *prometheus.CounterVec // table
	WriterErrors    *prometheus.CounterVec // table
	RollupRefresh   *prometheus.CounterVec // result
	RollupDuration  prometheus.Histogram
	SubscriberState prometheus.Gauge
	Reconnects      prometheus.Counter
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_envelopes_total",
			Help:      "Feed envelopes processed, by channel and result.",
		}, []string{"channel", "result"}),
		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Records evicted from a full ingestion queue.",
		}, []string{"queue"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Records waiting in an ingestion queue.",
		}, []string{"queue"}),
		WriterInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_inserts_total",
			Help:      "Rows inserted by the ingestion writers.",
		}, []string{"table"}),
		WriterConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_conflicts_total",
			Help:      "Rows skipped because they were already stored.",
		}, []string{"table"}),
		WriterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_errors_total",
			Help:      "Rows dropped after a failed insert.",
		}, []string{"table"}),
		RollupRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollup_refresh_total",
			Help:      "Rollup refresh cycles, by result.",
		}, []string{"result"}),
		RollupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollup_refresh_seconds",
			Help:      "Duration of a full rollup refresh cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		SubscriberState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriber_state",
			Help:      "Feed subscriber state (0=disconnected 1=connecting 2=subscribed 3=reconnecting 4=closed).",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_reconnects_total",
			Help:      "Feed reconnect attempts.",
		}),
	}

	reg.MustRegister(
		m.Envelopes,
		m.QueueDropped,
		m.QueueDepth,
		m.WriterInserts,
		m.WriterConflicts,
		m.WriterErrors,
		m.RollupRefresh,
		m.RollupDuration,
		m.SubscriberState,
		m.Reconnects,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveEnvelope counts one processed envelope.
func (m *Metrics) ObserveEnvelope(channel, result string) {
	if m == nil {
		return
	}
	m.Envelopes.WithLabelValues(channel, result).Inc()
}

// IncDropped counts one record evicted from queue.
func (m *Metrics) IncDropped(queue string) {
	if m == nil {
		return
	}
	m.QueueDropped.WithLabelValues(queue).Inc()
}

// SetQueueDepth records the current length of queue.
func (m *Metrics) SetQueueDepth(queue string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(n))
}

// AddWrites records the outcome of one flush against table.
func (m *Metrics) AddWrites(table string, inserted, conflicts, failed int) {
	if m == nil {
		return
	}
	m.WriterInserts.WithLabelValues(table).Add(float64(inserted))
	m.WriterConflicts.WithLabelValues(table).Add(float64(conflicts))
	m.WriterErrors.WithLabelValues(table).Add(float64(failed))
}

// ObserveRefresh records one rollup refresh cycle.
func (m *Metrics) ObserveRefresh(seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RollupRefresh.WithLabelValues(result).Inc()
	m.RollupDuration.Observe(seconds)
}

// SetSubscriberState records the subscriber state as its numeric value.
func (m *Metrics) SetSubscriberState(state int) {
	if m == nil {
		return
	}
	m.SubscriberState.Set(float64(state))
}

// IncReconnects counts one reconnect attempt.
func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}
