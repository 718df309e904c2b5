// Package metrics exposes Prometheus collectors for the launchpad service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors recorded by the service and HTTP layers.
type Metrics struct {
	registry *prometheus.Registry

	Commands      *prometheus.CounterVec
	Events        *prometheus.CounterVec
	Payouts       *prometheus.CounterVec
	ApplySeconds  *prometheus.HistogramVec
	PersistErrors prometheus.Counter
	Tokens        prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpfight",
			Name:      "commands_total",
			Help:      "Write commands by kind and result.",
		}, []string{"kind", "result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpfight",
			Name:      "events_total",
			Help:      "Emitted events by name.",
		}, []string{"name"}),
		Payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpfight",
			Name:      "payouts_total",
			Help:      "CHZ transfers by reason.",
		}, []string{"reason"}),
		ApplySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pumpfight",
			Name:      "apply_seconds",
			Help:      "Time spent applying and persisting a command.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpfight",
			Name:      "persist_errors_total",
			Help:      "Failures writing side records after a command was logged.",
		}),
		Tokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pumpfight",
			Name:      "tokens",
			Help:      "Tokens registered with the factory.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpfight",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
	}
	m.registry.MustRegister(
		m.Commands, m.Events, m.Payouts, m.ApplySeconds,
		m.PersistErrors, m.Tokens, m.HTTPRequests,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
