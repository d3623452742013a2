package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks request counts and latency, partitioned by endpoint,
// status, and which cache tier (if any) served the response.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_requests_total",
			Help: "Total requests, by endpoint, status, and cache tier.",
		}, []string{"endpoint", "status", "cache"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_request_duration_seconds",
			Help:    "Request latency, by endpoint and cache tier.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "cache"}),
	}
	reg.MustRegister(
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records a sample per request. Nil Metrics is a no-op so the
// chain can include it unconditionally.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		cacheTier := sw.Header().Get("X-Cache")
		if cacheTier == "" {
			cacheTier = "none"
		}
		m.requests.WithLabelValues(r.URL.Path, strconv.Itoa(sw.status), cacheTier).Inc()
		m.duration.WithLabelValues(r.URL.Path, cacheTier).Observe(time.Since(start).Seconds())
	})
}
