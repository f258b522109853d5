package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the gateway counters on a private registry so tests
// can run multiple servers without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	Requests    *prometheus.CounterVec
	Mints       *prometheus.CounterVec
	Submissions *prometheus.CounterVec
	RateLimited prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warrand",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	m.Mints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warrand",
		Subsystem: "gateway",
		Name:      "mints_total",
		Help:      "Warranty mint attempts by outcome.",
	}, []string{"outcome"})
	m.Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warrand",
		Subsystem: "gateway",
		Name:      "submissions_total",
		Help:      "Transaction submissions by outcome.",
	}, []string{"outcome"})
	m.RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warrand",
		Subsystem: "gateway",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
	m.registry.MustRegister(m.Requests, m.Mints, m.Submissions, m.RateLimited)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
