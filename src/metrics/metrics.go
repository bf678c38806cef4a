// Package metrics exposes Prometheus instruments for the chat hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message outcomes recorded by the hub.
const (
	OutcomeBroadcast   = "broadcast"
	OutcomeFlagged     = "flagged"
	OutcomeSpamDropped = "spam_dropped"
	OutcomeNotActive   = "not_active"
	OutcomeRateLimited = "rate_limited"
	OutcomeEmpty       = "empty"
)

// Metrics holds the hub's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessions         prometheus.Gauge
	activeSessions   prometheus.Gauge
	messages         *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	bridgeRelayed    prometheus.Counter
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "sessions",
			Help:      "Connected sessions.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "active_sessions",
			Help:      "Sessions that have announced a nickname.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_total",
			Help:      "Inbound chat messages by outcome.",
		}, []string{"outcome"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "delivery_failures_total",
			Help:      "Per-recipient send failures.",
		}),
		bridgeRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "bridge_relayed_total",
			Help:      "Events received from other instances.",
		}),
	}
	m.registry.MustRegister(
		m.sessions,
		m.activeSessions,
		m.messages,
		m.deliveryFailures,
		m.bridgeRelayed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SetSessions(total, active int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(total))
	m.activeSessions.Set(float64(active))
}

func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) Relayed() {
	if m == nil {
		return
	}
	m.bridgeRelayed.Inc()
}
