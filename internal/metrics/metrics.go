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
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsentry",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by method, path, and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobsentry",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsentry",
		Name:      "webhook_events_total",
		Help:      "Total webhook deliveries by sender and verification outcome.",
	}, []string{"sender", "outcome"})

	JobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsentry",
		Name:      "job_transitions_total",
		Help:      "Total job status transitions by source status, target status, and outcome.",
	}, []string{"from", "to", "outcome"})

	ToolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsentry",
		Name:      "tool_executions_total",
		Help:      "Total tool executions by tool and outcome.",
	}, []string{"tool", "outcome"})

	ConfirmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsentry",
		Name:      "confirm_tokens_total",
		Help:      "Confirm token lifecycle events (issued, consumed, rejected, expired).",
	}, []string{"event"})
)

// Handler returns an http.Handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps an http.Handler to record request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start).Seconds()

		path := normalizePath(r.URL.Path)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath buckets URL paths to avoid high cardinality.
// It keeps the first two path segments and drops the rest, so
// /jobs/<id>/approve counts under /jobs.
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	switch p {
	case "/healthz", "/readyz", "/metrics", "/version":
		return p
	}
	segments := 0
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			segments++
			if segments >= 2 {
				return p[:i]
			}
		}
	}
	return p
}
