package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatched = "unmatched"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensord_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Run submission answers in well under a millisecond while eager ops and
	// large tensor uploads run tens of milliseconds to minutes, so the
	// buckets stretch both below and above the Prometheus defaults.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tensord_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{.0005, .002, .01, .05, .25, 1, 5, 15, 60},
		},
		[]string{"method", "path"},
	)

	// Exponential buckets from 1 KiB up to the 64 MiB request body cap.
	httpRequestBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tensord_http_request_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestBytes)
}

// metricsMiddleware records count, duration, and body size for every HTTP
// request. Uses the chi route pattern (not the raw path) to avoid unbounded
// cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		if r.ContentLength > 0 {
			httpRequestBytes.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
		}
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// metricsHandler returns the Prometheus metrics handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
