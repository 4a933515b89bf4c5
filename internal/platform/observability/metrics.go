package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	orderOutcomes *prometheus.CounterVec
}

// NewMetrics constructs a registry with HTTP and order instrumentation.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greengrocer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "greengrocer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		orderOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greengrocer",
			Subsystem: "orders",
			Name:      "operations_total",
			Help:      "Order operations by name and outcome.",
		}, []string{"operation", "outcome"}),
	}

	registry.MustRegister(m.httpRequests, m.httpDuration, m.orderOutcomes)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := newResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)

			route := SanitizeRoute(routePattern(r))
			method := SanitizeMethod(r.Method)
			m.httpRequests.WithLabelValues(route, method, strconv.Itoa(recorder.Status())).Inc()
			m.httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		})
	}
}

// RecordOrderOutcome counts one order operation result, e.g. ("place", "ok")
// or ("assign", "conflict").
func (m *Metrics) RecordOrderOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.orderOutcomes.WithLabelValues(operation, outcome).Inc()
}
