package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors Stats into Prometheus. It registers against the given
// registerer so tests can use a private registry.
type Metrics struct {
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	disconnectsTotal   *prometheus.CounterVec
	connectionDuration prometheus.Histogram
	rejectedJoins      *prometheus.CounterVec
	messagesRelayed    prometheus.Counter
	rateLimited        prometheus.Counter
	sendFailures       prometheus.Counter
	roomsExpired       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total number of connections that joined a room",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Current number of joined connections",
		}),
		disconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_disconnects_total",
			Help: "Total disconnections by cause",
		}, []string{"cause"}),
		connectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_connection_duration_seconds",
			Help:    "Time between join and disconnect",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 86400},
		}),
		rejectedJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rejected_joins_total",
			Help: "Connection attempts rejected before joining, by reason",
		}, []string{"reason"}),
		messagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "Total client messages broadcast to a room",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_rate_limited_messages_total",
			Help: "Total messages rejected by the per-connection rate limit",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Total outbound messages that could not be queued",
		}),
		roomsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_rooms_expired_total",
			Help: "Total rooms closed by the expiry sweep",
		}),
	}

	reg.MustRegister(
		m.connectionsTotal,
		m.connectionsActive,
		m.disconnectsTotal,
		m.connectionDuration,
		m.rejectedJoins,
		m.messagesRelayed,
		m.rateLimited,
		m.sendFailures,
		m.roomsExpired,
	)
	return m
}

func (m *Metrics) connected() {
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) disconnected(cause string, d time.Duration) {
	m.connectionsActive.Dec()
	m.disconnectsTotal.WithLabelValues(cause).Inc()
	m.connectionDuration.Observe(d.Seconds())
}

// ObserveRegistry exports the live room count straight from the registry.
func ObserveRegistry(reg prometheus.Registerer, r *Registry) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Current number of rooms",
	}, func() float64 {
		return float64(r.RoomCount())
	}))
}
