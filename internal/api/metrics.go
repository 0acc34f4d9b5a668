package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archpilot_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archpilot_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	generationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archpilot_generations_total",
		Help: "Design generations by provider and credential tier.",
	}, []string{"provider", "tier"})

	tierExhaustionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archpilot_tier_exhaustions_total",
		Help: "Generation requests that exhausted every credential tier.",
	})

	rateLimitDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archpilot_rate_limit_denials_total",
		Help: "Requests denied by a rate-limit policy.",
	}, []string{"policy"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, generationsTotal, tierExhaustionsTotal, rateLimitDenials)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur)
	})
}
