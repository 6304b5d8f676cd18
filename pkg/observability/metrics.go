package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors exposed by the server.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	actions        *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewMetrics creates and registers the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_http_requests_total",
			Help: "HTTP requests by method, route pattern, and status code.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concierge_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_actions_total",
			Help: "Dispatched protocol actions by action name.",
		}, []string{"action"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "concierge_sessions_active",
			Help: "Sessions currently resident in memory.",
		}),
	}

	registry.MustRegister(m.requests, m.duration, m.actions, m.activeSessions)
	return m
}

// Handler exposes the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAction counts one dispatched protocol action.
func (m *Metrics) ObserveAction(action string) {
	m.actions.WithLabelValues(action).Inc()
}

// SessionStarted and SessionEnded track the resident-session gauge.
func (m *Metrics) SessionStarted() { m.activeSessions.Inc() }
func (m *Metrics) SessionEnded()   { m.activeSessions.Dec() }

// Middleware instruments an HTTP handler with request counts and latency.
// The path label uses the raw URL path grouped to its first segment to keep
// cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		path := routeGroup(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// routeGroup collapses /sessions/<id>/... to /sessions to avoid a label per
// session ID.
func routeGroup(path string) string {
	const prefix = "/sessions/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return "/sessions"
	}
	return path
}
