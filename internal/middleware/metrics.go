package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics, registered in the default registry and exposed at
// /metrics.
var (
	// httpRequestsTotal counts requests by method, path, and status.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration measures processing time for latency analysis.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// authAttemptsTotal counts login/signup attempts by result, for
	// security monitoring.
	//
	// Labels: result (success, invalid_credentials, email_taken, ...)
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// tokenRefreshTotal counts refresh attempts by result, for detecting
	// rotation abuse.
	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	// emailConfirmationsTotal counts completed email verifications.
	emailConfirmationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_email_confirmations_total",
			Help: "Total number of confirmed email addresses",
		},
	)

	// tableQueriesTotal counts data-plane operations by table and verb.
	tableQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "table_queries_total",
			Help: "Total number of table data operations",
		},
		[]string{"table", "operation", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpResponseSize)
	prometheus.MustRegister(authAttemptsTotal)
	prometheus.MustRegister(tokenRefreshTotal)
	prometheus.MustRegister(emailConfirmationsTotal)
	prometheus.MustRegister(tableQueriesTotal)
}

// Metrics records request count, duration, and response size for every
// request. The response writer is wrapped to capture status and bytes
// written.
//
// Example Prometheus queries:
//
//	rate(http_requests_total[5m])
//	histogram_quantile(0.95, rate(http_request_duration_seconds_bucket[5m]))
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := strconv.Itoa(ww.Status())
			httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
			httpResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(ww.BytesWritten()))
		})
	}
}

// MetricsHandler exposes registered metrics in Prometheus text format.
//
// Usage:
//
//	r.Get("/metrics", middleware.MetricsHandler().ServeHTTP)
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// IncrementAuthAttempts records a login or signup outcome.
//
// Example:
//
//	middleware.IncrementAuthAttempts("invalid_credentials")
func IncrementAuthAttempts(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// IncrementTokenRefresh records a token refresh outcome.
func IncrementTokenRefresh(result string) {
	tokenRefreshTotal.WithLabelValues(result).Inc()
}

// IncrementEmailConfirmations records a completed email verification.
func IncrementEmailConfirmations() {
	emailConfirmationsTotal.Inc()
}

// RecordTableQuery records a data-plane table operation.
//
// Example:
//
//	middleware.RecordTableQuery("friend_requests", "insert", "duplicate")
func RecordTableQuery(table, operation, status string) {
	tableQueriesTotal.WithLabelValues(table, operation, status).Inc()
}
