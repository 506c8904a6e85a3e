package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AmirIqbalKhan/dashboard/internal/fanout"
)

// Metrics collects Prometheus metrics for the dashboard.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	fanoutRuns      *prometheus.CounterVec
	fanoutTargets   *prometheus.HistogramVec
}

// NewMetrics initialises the registry and the dashboard collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_authz_decisions_total",
		Help: "Authorization decisions by capability, result and reason.",
	}, []string{"capability", "result", "reason"})
	fanoutRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_fanout_runs_total",
		Help: "Fan-out runs by action and outcome.",
	}, []string{"action", "outcome"})
	fanoutTargets := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_fanout_targets",
		Help:    "Targets written per committed fan-out run.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"action"})
	registry.MustRegister(
		requests, duration, decisions, fanoutRuns, fanoutTargets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisions:       decisions,
		fanoutRuns:      fanoutRuns,
		fanoutTargets:   fanoutTargets,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts an authorization outcome.
func (m *Metrics) ObserveDecision(capability string, allowed bool, reason string) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.decisions.WithLabelValues(capability, result, reason).Inc()
}

// ObserveFanout counts a fan-out run and, when committed, its size.
func (m *Metrics) ObserveFanout(action string, count int, err error) {
	if m == nil {
		return
	}
	m.fanoutRuns.WithLabelValues(action, fanout.Outcome(err)).Inc()
	if err == nil {
		m.fanoutTargets.WithLabelValues(action).Observe(float64(count))
	}
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
