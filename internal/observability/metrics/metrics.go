package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zennotes_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zennotes_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zennotes_auth_attempts_total",
		Help: "Registration and login attempts by result",
	}, []string{"action", "result"})

	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zennotes_auth_rejections_total",
		Help: "Requests rejected by the authorization middleware by reason",
	}, []string{"reason"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zennotes_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"scope"})

	noteOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zennotes_note_operations_total",
		Help: "Note mutations by operation and result",
	}, []string{"operation", "result"})

	tagOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zennotes_tag_operations_total",
		Help: "Tag mutations by operation and result",
	}, []string{"operation", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveAuthAttempt records a register or login outcome
func ObserveAuthAttempt(action, result string) {
	authAttempts.WithLabelValues(action, result).Inc()
}

// ObserveAuthFailure records a middleware rejection
func ObserveAuthFailure(reason string) {
	authFailures.WithLabelValues(reason).Inc()
}

// ObserveRateLimited records a throttled request
func ObserveRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

// ObserveNoteOperation records a note mutation with a result label
func ObserveNoteOperation(operation, result string) {
	noteOperations.WithLabelValues(operation, result).Inc()
}

// ObserveTagOperation records a tag mutation with a result label
func ObserveTagOperation(operation, result string) {
	tagOperations.WithLabelValues(operation, result).Inc()
}

// Result maps an error to a metric result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
