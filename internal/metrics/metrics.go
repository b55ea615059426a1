// Package metrics exposes Prometheus collectors for the API, the job
// workers and provider traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "templar_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	jobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_jobs_enqueued_total",
			Help: "Jobs accepted by kind",
		},
		[]string{"kind"},
	)

	jobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_jobs_completed_total",
			Help: "Jobs finished by kind and terminal state",
		},
		[]string{"kind", "state"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "templar_job_duration_seconds",
			Help:    "Time from dequeue to terminal state",
			Buckets: []float64{.05, .1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	jobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_job_retries_total",
			Help: "Retries scheduled after retryable failures",
		},
		[]string{"kind"},
	)

	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "templar_jobs_in_flight",
			Help: "Jobs currently held by workers",
		},
	)

	providerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_provider_calls_total",
			Help: "Provider API calls by provider, operation, and outcome",
		},
		[]string{"provider", "op", "outcome"},
	)

	providerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "templar_provider_call_duration_seconds",
			Help:    "Provider API latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider", "op"},
	)

	mediaUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_media_uploads_total",
			Help: "Sample media uploads by outcome",
		},
		[]string{"outcome"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_webhook_events_total",
			Help: "Provider webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	syncWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_sync_records_total",
			Help: "Remote template records processed by sync action",
		},
		[]string{"action"},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "templar_idempotency_hits_total",
			Help: "Requests served from idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templar_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"org_id"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "templar_circuit_breaker_state",
			Help: "Breaker state per provider app (0 closed, 1 open, 2 half-open)",
		},
		[]string{"app_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordJobEnqueued counts an accepted job.
func RecordJobEnqueued(kind string) {
	jobsEnqueued.WithLabelValues(kind).Inc()
}

// RecordJobCompleted counts a job reaching a terminal state.
func RecordJobCompleted(kind, state string, d time.Duration) {
	jobsCompleted.WithLabelValues(kind, state).Inc()
	jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordJobRetry counts a scheduled retry.
func RecordJobRetry(kind string) {
	jobRetries.WithLabelValues(kind).Inc()
}

// AddJobsInFlight adjusts the in-flight gauge by delta.
func AddJobsInFlight(delta int) {
	jobsInFlight.Add(float64(delta))
}

// RecordProviderCall records one provider HTTP round trip.
func RecordProviderCall(provider, op, outcome string, d time.Duration) {
	providerCalls.WithLabelValues(provider, op, outcome).Inc()
	providerLatency.WithLabelValues(provider, op).Observe(d.Seconds())
}

// RecordMediaUpload counts a finished media upload sequence.
func RecordMediaUpload(outcome string) {
	mediaUploads.WithLabelValues(outcome).Inc()
}

// RecordWebhookEvent counts a processed webhook event.
func RecordWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordSyncRecords adds n to the sync counter for action.
func RecordSyncRecords(action string, n int) {
	if n <= 0 {
		return
	}
	syncWrites.WithLabelValues(action).Add(float64(n))
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(orgID string) {
	rateLimitRejections.WithLabelValues(orgID).Inc()
}

// SetBreakerState publishes the numeric breaker state for an app.
func SetBreakerState(appID string, state int) {
	breakerState.WithLabelValues(appID).Set(float64(state))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics labelled by chi route pattern, so ids in
// the path do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, routePattern(r), wrapped.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
