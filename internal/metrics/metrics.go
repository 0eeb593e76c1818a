// Package metrics defines the Prometheus collectors of the chat service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections   prometheus.Gauge
	Events        *prometheus.CounterVec
	AuthFailures  *prometheus.CounterVec
	Claims        *prometheus.CounterVec
	Messages      prometheus.Counter
	FanoutDropped prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Authenticated websocket sessions currently open.",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Inbound socket events by name.",
		}, []string{"event"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_auth_failures_total",
			Help: "Rejected connection or request authentications by code.",
		}, []string{"code"}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_claims_total",
			Help: "Claim attempts by result (won, lost).",
		}, []string{"result"}),
		Messages: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages persisted.",
		}),
		FanoutDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_fanout_dropped_total",
			Help: "Sessions dropped because their outbound queue was full.",
		}),
		gatherer: reg,
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) Event(name string) {
	if m != nil {
		m.Events.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) AuthFailure(code string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(code).Inc()
	}
}

// Claim records a claim attempt; won is false when the chat was no longer unclaimed.
func (m *Metrics) Claim(won bool) {
	if m == nil {
		return
	}
	result := "lost"
	if won {
		result = "won"
	}
	m.Claims.WithLabelValues(result).Inc()
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.Messages.Inc()
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.FanoutDropped.Inc()
	}
}
