package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick outcomes.
const (
	OutcomeEmitted   = "emitted"
	OutcomeNoWindow  = "no_window"
	OutcomeCapture   = "capture_failed"
	OutcomeEmitError = "emit_failed"
)

// Request results of the remote emitter's queue dispatcher.
const (
	RequestDelivered = "delivered"
	RequestDropped   = "dropped"
	RequestRetried   = "retried"
)

// Heartbeat results of the collection service.
const (
	HeartbeatMerged   = "merged"
	HeartbeatInserted = "inserted"
	HeartbeatRejected = "rejected"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver so
// callers without a registry need no checks.
type Metrics struct {
	Ticks            *prometheus.CounterVec
	SampleErrors     *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	Requests         *prometheus.CounterVec
	ServerHeartbeats *prometheus.CounterVec
	PollSeconds      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shotwatch_ticks_total",
			Help: "Heartbeat loop ticks by outcome",
		}, []string{"outcome"}),
		SampleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shotwatch_sample_errors_total",
			Help: "Window sampling failures by severity",
		}, []string{"severity"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shotwatch_queue_depth",
			Help: "Collector requests waiting in the persistent queue",
		}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shotwatch_collector_requests_total",
			Help: "Queued collector requests by delivery result",
		}, []string{"result"}),
		ServerHeartbeats: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shotwatch_server_heartbeats_total",
			Help: "Heartbeats received by the collection service by result",
		}, []string{"result"}),
		PollSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shotwatch_poll_interval_seconds",
			Help: "Configured poll interval",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SampleError(severity string) {
	if m == nil {
		return
	}
	m.SampleErrors.WithLabelValues(severity).Inc()
}

func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) Request(result string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(result).Inc()
}

func (m *Metrics) ServerHeartbeat(result string) {
	if m == nil {
		return
	}
	m.ServerHeartbeats.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPollInterval(seconds float64) {
	if m == nil {
		return
	}
	m.PollSeconds.Set(seconds)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
