// Package metrics provides Prometheus instrumentation for the ledger engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PostingsTotal counts registry entries written, partitioned by entry type.
	PostingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bullionpro_postings_total",
		Help: "Total registry entries written",
	}, []string{"type"})

	// ReversalsTotal counts reversal computations, partitioned by the
	// lifecycle operation that triggered them.
	ReversalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bullionpro_reversals_total",
		Help: "Total ledger reversals computed",
	}, []string{"operation"})

	// LifecycleLatency tracks the duration of atomic lifecycle operations.
	LifecycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bullionpro_lifecycle_duration_seconds",
		Help:    "Fixing transaction lifecycle operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// LifecycleFailures counts aborted lifecycle operations by operation
	// and failure kind (validation, not_found, conflict, consistency, store).
	LifecycleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bullionpro_lifecycle_failures_total",
		Help: "Aborted lifecycle operations",
	}, []string{"operation", "kind"})

	// WebSocketClients tracks connected WebSocket dashboard clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bullionpro_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bullionpro_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bullionpro_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
