// Package metrics exposes Prometheus instrumentation for the pipeline.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zenanotify_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	eventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_events_received_total",
			Help: "Domain events handed to the pipeline, by event key",
		},
		[]string{"event_key"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_events_dropped_total",
			Help: "Events dropped before evaluation, by reason",
		},
		[]string{"reason"},
	)

	rulesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_rules_matched_total",
			Help: "Rule matches produced by the evaluator, by event key",
		},
		[]string{"event_key"},
	)

	notificationsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_notifications_written_total",
			Help: "Durable notification rows written, by priority",
		},
		[]string{"priority"},
	)

	notificationWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zenanotify_notification_write_failures_total",
			Help: "Notification rows that failed to persist",
		},
	)

	deliveriesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_deliveries_enqueued_total",
			Help: "Delivery jobs enqueued, by channel",
		},
		[]string{"channel"},
	)

	enqueueFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_enqueue_failures_total",
			Help: "Delivery jobs that failed to enqueue, by channel",
		},
		[]string{"channel"},
	)

	deliveriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_deliveries_processed_total",
			Help: "Delivery attempts completed by the worker, by status and channel",
		},
		[]string{"status", "channel"},
	)

	deliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zenanotify_delivery_latency_seconds",
			Help:    "Time from enqueue to delivery",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"channel"},
	)

	broadcastsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_broadcasts_published_total",
			Help: "Real-time broadcast events published, by channel kind",
		},
		[]string{"kind"},
	)

	broadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zenanotify_broadcast_failures_total",
			Help: "Broadcast publishes that failed (best-effort, not retried)",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenanotify_rate_limit_rejections_total",
			Help: "Requests rejected by the per-user rate limiter",
		},
		[]string{"user_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEventReceived counts a domain event handed to the pipeline.
func RecordEventReceived(eventKey string) {
	eventsReceived.WithLabelValues(eventKey).Inc()
}

// RecordEventDropped counts an event dropped before evaluation.
func RecordEventDropped(reason string) {
	eventsDropped.WithLabelValues(reason).Inc()
}

// RecordRuleMatched counts one rule match produced by the evaluator.
func RecordRuleMatched(eventKey string) {
	rulesMatched.WithLabelValues(eventKey).Inc()
}

// RecordNotificationWritten counts a persisted notification row.
func RecordNotificationWritten(priority string) {
	notificationsWritten.WithLabelValues(priority).Inc()
}

// RecordNotificationWriteFailure counts a failed notification insert.
func RecordNotificationWriteFailure() {
	notificationWriteFailures.Inc()
}

// RecordDeliveryEnqueued counts an enqueued delivery job.
func RecordDeliveryEnqueued(channel string) {
	deliveriesEnqueued.WithLabelValues(channel).Inc()
}

// RecordEnqueueFailure counts a delivery job that could not be enqueued.
func RecordEnqueueFailure(channel string) {
	enqueueFailures.WithLabelValues(channel).Inc()
}

// RecordDeliveryProcessed records the outcome of a worker delivery attempt.
func RecordDeliveryProcessed(status, channel string) {
	deliveriesProcessed.WithLabelValues(status, channel).Inc()
}

// RecordDeliveryLatency records end-to-end delivery time.
func RecordDeliveryLatency(channel string, latency time.Duration) {
	deliveryLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

// RecordBroadcastPublished counts a published broadcast, kind is "user" or "project".
func RecordBroadcastPublished(kind string) {
	broadcastsPublished.WithLabelValues(kind).Inc()
}

// RecordBroadcastFailure counts a failed broadcast publish.
func RecordBroadcastFailure() {
	broadcastFailures.Inc()
}

// RecordRateLimitRejection counts a request rejected by the rate limiter.
func RecordRateLimitRejection(userID string) {
	rateLimitRejections.WithLabelValues(userID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
