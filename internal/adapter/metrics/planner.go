package metrics

import "github.com/prometheus/client_golang/prometheus"

// PlannerMetrics holds Prometheus metrics for the planner core.
type PlannerMetrics struct {
	CommandsTotal       *prometheus.CounterVec
	CommandChannelDepth prometheus.Gauge
	ClicksRejected      *prometheus.CounterVec
	Waypoints           *prometheus.GaugeVec
	SolvesTotal         *prometheus.CounterVec
	SolveDuration       prometheus.Histogram
	TransfersTotal      *prometheus.CounterVec
	ResyncsTotal        *prometheus.CounterVec
	ResyncDuration      prometheus.Histogram
	PublishErrors       prometheus.Counter
}

// NewPlannerMetrics creates and registers planner metrics on the given registry.
func NewPlannerMetrics(reg prometheus.Registerer) *PlannerMetrics {
	m := &PlannerMetrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "core",
			Name:      "commands_total",
			Help:      "Total number of commands processed by the planner loop.",
		}, []string{"command"}),
		CommandChannelDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "core",
			Name:      "command_channel_depth",
			Help:      "Number of commands waiting in the planner loop.",
		}),
		ClicksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "core",
			Name:      "clicks_rejected_total",
			Help:      "Map clicks ignored by the interaction guard.",
		}, []string{"reason"}),
		Waypoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "core",
			Name:      "waypoints",
			Help:      "Current number of waypoints by kind.",
		}, []string{"kind"}),
		SolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solve",
			Name:      "requests_total",
			Help:      "Completed solve requests by outcome.",
		}, []string{"outcome"}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solve",
			Name:      "duration_seconds",
			Help:      "Time from solve request to completion.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "attempts_total",
			Help:      "Settled transfer attempts by outcome.",
		}, []string{"outcome"}),
		ResyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resync",
			Name:      "runs_total",
			Help:      "Full resyncs applied by result.",
		}, []string{"result"}),
		ResyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resync",
			Name:      "duration_seconds",
			Help:      "Duration of a full resync.",
			Buckets:   prometheus.DefBuckets,
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "publish_errors_total",
			Help:      "Snapshot publications that failed.",
		}),
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandChannelDepth,
		m.ClicksRejected,
		m.Waypoints,
		m.SolvesTotal,
		m.SolveDuration,
		m.TransfersTotal,
		m.ResyncsTotal,
		m.ResyncDuration,
		m.PublishErrors,
	)
	return m
}
