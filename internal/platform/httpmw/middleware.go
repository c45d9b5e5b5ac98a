// Package httpmw carries the request-scoped middleware shared by both HTTP
// facades: Prometheus instrumentation (promauto.NewCounterVec /
// NewHistogramVec) and correlation-id propagation via an explicit context
// value threaded by net/http middleware, rather than any thread-local
// context.
package httpmw

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ledgerops/platform/internal/platform/reqctx"
)

// Metrics holds the counters/histogram a facade instruments its routes
// with. Each facade constructs its own so the metric names stay distinct.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: namespace + "_http_requests_total",
			Help: "Total HTTP requests processed, labeled by status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    namespace + "_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// Instrument wraps handler h, recording latency and a status-labeled
// counter for the named route.
func (m *Metrics) Instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(m.requestDuration.WithLabelValues(r.Method, route))
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		timer.ObserveDuration()
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestID is net/http middleware that reads X-Request-ID, synthesizes one
// when absent, echoes it back on the response, and stores it on the
// request context for the lifetime of the request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = reqctx.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := reqctx.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Deadline is net/http middleware that bounds every request's context by d;
// an earlier deadline already on the context is kept. Every external
// request thus carries a deadline propagated end-to-end.
func Deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
