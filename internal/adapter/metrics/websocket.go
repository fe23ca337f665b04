package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for WebSocket connections.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	MessagesPublished   prometheus.Counter
	MessagesReceived    *prometheus.CounterVec
	SlowClientsEvicted  prometheus.Counter
	PingFailures        prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Total number of WebSocket messages published.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_received_total",
			Help:      "Total number of inbound WebSocket messages by type.",
		}, []string{"type"}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Clients disconnected because their send buffer was full.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Pings that could not be written.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Upgrade requests refused by connection limits, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesPublished, m.MessagesReceived, m.SlowClientsEvicted, m.PingFailures, m.ConnectionsRejected)
	return m
}
