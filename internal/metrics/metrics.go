// Package metrics exposes Prometheus instrumentation for the BFF.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP-level collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	upstreamErrors  *prometheus.CounterVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taqa_bff_http_requests_total",
			Help: "HTTP requests processed, by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taqa_bff_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taqa_bff_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taqa_bff_upstream_errors_total",
			Help: "Backend API failures, by status.",
		}, []string{"status"}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.inFlight, m.upstreamErrors)
	return m
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest(method, route, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordUpstreamError counts a backend failure.
func (m *Metrics) RecordUpstreamError(status string) {
	m.upstreamErrors.WithLabelValues(status).Inc()
}

// IncInFlight increments the in-flight gauge.
func (m *Metrics) IncInFlight() { m.inFlight.Inc() }

// DecInFlight decrements the in-flight gauge.
func (m *Metrics) DecInFlight() { m.inFlight.Dec() }

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
