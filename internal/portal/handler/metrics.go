package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	waveRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveportal_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	waveRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "waveportal_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	waveAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveportal_waves_total",
		Help: "Wave append attempts by outcome.",
	}, []string{"outcome"})

	waveApprovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveportal_approvals_total",
		Help: "Approval toggles by requested value and outcome.",
	}, []string{"approved", "outcome"})

	waveLedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waveportal_ledger_waves",
		Help: "Number of waves stored in the ledger.",
	})

	waveEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waveportal_events_dropped_total",
		Help: "NewWave notifications dropped because a subscriber buffer was full.",
	})

	waveWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveportal_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	waveDependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "waveportal_dependency_up",
		Help: "1 if the last probe of a dependency succeeded, 0 otherwise.",
	}, []string{"check"})
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
			path = "unmatched"
		}

		waveRequestsTotal.WithLabelValues(method, path, status).Inc()
		waveRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// PrometheusRecorder feeds ledger outcomes from the portal service into Prometheus.
type PrometheusRecorder struct{}

// RecordWave counts a wave append attempt.
func (PrometheusRecorder) RecordWave(outcome string) {
	waveAppendsTotal.WithLabelValues(outcome).Inc()
}

// RecordApproval counts an approval toggle.
func (PrometheusRecorder) RecordApproval(approved bool, outcome string) {
	waveApprovalsTotal.WithLabelValues(strconv.FormatBool(approved), outcome).Inc()
}

// SetTotalWaves sets the ledger size gauge.
func (PrometheusRecorder) SetTotalWaves(n int) {
	waveLedgerSize.Set(float64(n))
}

// RecordDroppedEvent counts a notification dropped for a slow subscriber.
// It matches events.DropRecorder.
func RecordDroppedEvent(string) {
	waveEventsDropped.Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		waveWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		waveWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordDependencyCheck records the outcome of a dependency health probe.
func RecordDependencyCheck(name string, success bool) {
	v := 0.0
	if success {
		v = 1
	}
	waveDependencyUp.WithLabelValues(name).Set(v)
}
