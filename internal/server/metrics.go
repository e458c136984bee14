package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	civicRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	civicRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civic_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	civicReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_reports_created_total",
		Help: "Total reports submitted.",
	})

	civicValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_validations_total",
		Help: "Background validations finished, by outcome (valid, invalid, error).",
	}, []string{"outcome"})

	civicModelRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_model_retries_total",
		Help: "Model calls retried after a quota rejection.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		civicRequestsTotal.WithLabelValues(method, path, status).Inc()
		civicRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordReportCreated counts a submitted report.
func RecordReportCreated() {
	civicReportsTotal.Inc()
}

// RecordValidationOutcome counts a finished background validation.
func RecordValidationOutcome(outcome string) {
	civicValidationsTotal.WithLabelValues(outcome).Inc()
}

// RecordModelRetry counts a quota-driven model retry.
func RecordModelRetry() {
	civicModelRetriesTotal.Inc()
}
