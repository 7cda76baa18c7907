package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry so
// tests can instantiate isolated sets. All methods are nil-safe; components
// treat metrics as optional.
type Metrics struct {
	registry *prometheus.Registry

	connectedUsers  prometheus.Gauge
	liveConnections prometheus.Gauge
	transitions     *prometheus.CounterVec
	delivered       prometheus.Counter
	dropped         prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_connected_users",
			Help: "Users with at least one live websocket connection.",
		}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_live_connections",
			Help: "Total live websocket connections across all users.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_workflow_transitions_total",
			Help: "Workflow transitions applied, labelled by resulting state.",
		}, []string{"state"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_notifications_delivered_total",
			Help: "Notifications pushed to at least one live session.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_notifications_dropped_total",
			Help: "Notifications persisted but not deliverable live.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.connectedUsers,
		m.liveConnections,
		m.transitions,
		m.delivered,
		m.dropped,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnections(users, connections int) {
	if m == nil {
		return
	}
	m.connectedUsers.Set(float64(users))
	m.liveConnections.Set(float64(connections))
}

func (m *Metrics) TransitionApplied(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) NotificationDelivered(live bool) {
	if m == nil {
		return
	}
	if live {
		m.delivered.Inc()
	} else {
		m.dropped.Inc()
	}
}
