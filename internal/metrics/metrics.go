package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway collectors on a private registry so several
// gateways (tests) never collide on registration.
type Metrics struct {
	Connections      prometheus.Gauge
	BoundUsers       prometheus.Gauge
	PendingOffline   prometheus.Gauge
	Rooms            prometheus.Gauge
	DroppedEvents    prometheus.Counter
	StatusBroadcasts *prometheus.CounterVec
	Corrections      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_connections",
			Help: "Active websocket connections",
		}),
		BoundUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_bound_users",
			Help: "Users with a presence-authoritative connection",
		}),
		PendingOffline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_pending_offline",
			Help: "Users inside the disconnect grace period",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_rooms",
			Help: "Conversation rooms with at least one member",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_dropped_events_total",
			Help: "Events dropped because a connection buffer was full",
		}),
		StatusBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_status_broadcasts_total",
			Help: "user:status_changed broadcasts by resulting state",
		}, []string{"state"}),
		Corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_reconcile_corrections_total",
			Help: "Presence corrections applied by the reconciliation loop",
		}, []string{"direction"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Connections,
		m.BoundUsers,
		m.PendingOffline,
		m.Rooms,
		m.DroppedEvents,
		m.StatusBroadcasts,
		m.Corrections,
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
