package metrics

import "github.com/prometheus/client_golang/prometheus"

// RemoteMetrics holds Prometheus metrics for calls to the planner service.
type RemoteMetrics struct {
	RequestDuration     *prometheus.HistogramVec
	RequestsTotal       *prometheus.CounterVec
	CircuitBreakerState prometheus.Gauge
	CircuitStateChanges *prometheus.CounterVec
}

// NewRemoteMetrics creates and registers remote client metrics on the given registry.
func NewRemoteMetrics(reg prometheus.Registerer) *RemoteMetrics {
	m := &RemoteMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Duration of planner service calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Total planner service calls by outcome.",
		}, []string{"call", "outcome"}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		CircuitStateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"to_state"}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.CircuitBreakerState, m.CircuitStateChanges)
	return m
}
