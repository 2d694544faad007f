package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec

	TimersStarted    prometheus.Counter
	TimerTransitions *prometheus.CounterVec
	Breaches         *prometheus.CounterVec
	WorkflowActions  *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	SweepTimerErrors prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		httpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_http_errors_total",
			Help: "HTTP error responses by path, method and error code.",
		}, []string{"path", "method", "code"}),
		TimersStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_timers_started_total",
			Help: "SLA timers created.",
		}),
		TimerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_timer_transitions_total",
			Help: "Timer state transitions by target state.",
		}, []string{"state"}),
		Breaches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_breaches_total",
			Help: "Breach records written by breach type.",
		}, []string{"type"}),
		WorkflowActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_workflow_actions_total",
			Help: "Workflow actions executed by kind and outcome.",
		}, []string{"action", "outcome"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sla_sweep_duration_seconds",
			Help:    "Duration of periodic evaluation sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		SweepTimerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_sweep_timer_errors_total",
			Help: "Timers whose evaluation failed during a sweep.",
		}),
	}
}

// Registry returns the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}
