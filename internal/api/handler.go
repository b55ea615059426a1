package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/circuitbreaker"
	"github.com/lalithlochan/templar/internal/db"
	"github.com/lalithlochan/templar/internal/jobs"
	"github.com/lalithlochan/templar/internal/metrics"
	"github.com/lalithlochan/templar/internal/redis"
	"github.com/lalithlochan/templar/internal/template"
	"github.com/lalithlochan/templar/internal/webhook"
)

// maxWebhookBody caps a provider webhook delivery.
const maxWebhookBody = 1 << 20

// TemplateLookup lets the API reject jobs for templates that do not exist.
type TemplateLookup interface {
	GetTemplate(ctx context.Context, id uuid.UUID, orgID, appID string) (*template.Template, error)
}

// BreakerStats reports the per-app circuit breakers.
type BreakerStats interface {
	Stats() []circuitbreaker.Stats
}

// JobResponse is returned for every accepted job.
type JobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	queue       jobs.Queue
	statuses    jobs.StatusStore
	templates   TemplateLookup             // nil skips the existence check
	idempotency *redis.IdempotencyService // nil if Redis not configured
	dedup       *redis.WebhookDeduper     // nil if Redis not configured
	breakers    BreakerStats
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, queue jobs.Queue, statuses jobs.StatusStore) *Handler {
	return &Handler{
		logger:   logger,
		queue:    queue,
		statuses: statuses,
	}
}

// WithTemplates enables the template existence check on job creation.
func (h *Handler) WithTemplates(templates TemplateLookup) *Handler {
	h.templates = templates
	return h
}

// WithIdempotency enables Idempotency-Key handling on job creation.
func (h *Handler) WithIdempotency(svc *redis.IdempotencyService) *Handler {
	h.idempotency = svc
	return h
}

// WithWebhookDedup drops replayed webhook deliveries.
func (h *Handler) WithWebhookDedup(d *redis.WebhookDeduper) *Handler {
	h.dedup = d
	return h
}

// WithBreakers exposes circuit breaker stats on /v1/breakers.
func (h *Handler) WithBreakers(b BreakerStats) *Handler {
	h.breakers = b
	return h
}

// SubmitTemplate handles POST /v1/orgs/{orgID}/apps/{appID}/templates/{templateID}/submit
func (h *Handler) SubmitTemplate(w http.ResponseWriter, r *http.Request) {
	h.enqueueTemplateJob(w, r, jobs.KindSubmit)
}

// UpdateTemplate handles POST /v1/orgs/{orgID}/apps/{appID}/templates/{templateID}/update
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	h.enqueueTemplateJob(w, r, jobs.KindUpdate)
}

// DeleteTemplate handles DELETE /v1/orgs/{orgID}/apps/{appID}/templates/{templateID}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	h.enqueueTemplateJob(w, r, jobs.KindDelete)
}

func (h *Handler) enqueueTemplateJob(w http.ResponseWriter, r *http.Request, kind jobs.Kind) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")
	appID := chi.URLParam(r, "appID")

	templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid template ID", "templateID must be a valid UUID")
		return
	}

	if h.templates != nil {
		if _, err := h.templates.GetTemplate(ctx, templateID, orgID, appID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "not_found", "Template not found", "")
				return
			}
			h.logger.Error("failed to look up template",
				zap.Error(err),
				zap.String("template_id", templateID.String()),
			)
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to look up template", "")
			return
		}
	}

	h.accept(w, r, orgID, jobs.NewTemplateJob(kind, templateID, appID, orgID))
}

// SyncTemplates handles POST /v1/orgs/{orgID}/apps/{appID}/sync
func (h *Handler) SyncTemplates(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	appID := chi.URLParam(r, "appID")
	h.accept(w, r, orgID, jobs.NewSyncJob(appID, orgID))
}

// accept enqueues job and answers 202, honouring the Idempotency-Key header.
func (h *Handler) accept(w http.ResponseWriter, r *http.Request, orgID string, job *jobs.Job) {
	ctx := r.Context()
	idempotencyKey := r.Header.Get("Idempotency-Key")

	if orgID == "" || job.AppID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "orgID and appID are required")
		return
	}

	reserved := false
	if idempotencyKey != "" && h.idempotency != nil {
		cachedResult, err := h.idempotency.CheckOrReserve(ctx, orgID, idempotencyKey)

		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cachedResult != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("X-Idempotency-Replayed", "true")
			h.writeJSON(w, cachedResult.StatusCode, JobResponse{
				JobID:  cachedResult.JobID,
				Status: string(jobs.StatePending),
			})
			return
		} else {
			reserved = true
		}
	}

	if err := h.statuses.Put(ctx, jobs.PendingStatus(job)); err != nil {
		h.logger.Warn("failed to store pending job status",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
		)
	}

	if err := h.queue.Enqueue(ctx, job); err != nil {
		h.logger.Error("failed to enqueue job",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
		)
		if reserved {
			if relErr := h.idempotency.Release(ctx, orgID, idempotencyKey); relErr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		h.writeError(w, http.StatusServiceUnavailable, "enqueue_error", "Failed to enqueue job", "")
		return
	}
	metrics.RecordJobEnqueued(string(job.Kind))

	h.logger.Info("job accepted",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("org_id", orgID),
		zap.String("app_id", job.AppID),
	)

	if reserved {
		result := &redis.IdempotencyResult{
			JobID:      job.ID.String(),
			StatusCode: http.StatusAccepted,
			CreatedAt:  time.Now().Unix(),
		}
		if err := h.idempotency.Store(ctx, orgID, idempotencyKey, result, redis.IdempotencyTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	h.writeJSON(w, http.StatusAccepted, JobResponse{
		JobID:  job.ID.String(),
		Status: string(jobs.StatePending),
	})
}

// GetJob handles GET /v1/jobs/{jobID}. When X-Org-ID is sent, jobs of other
// organisations are reported as not found.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := uuid.Parse(jobID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid job ID", "ID must be a valid UUID")
		return
	}

	status, err := h.statuses.Get(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Job not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job status", zap.Error(err), zap.String("job_id", jobID))
		h.writeError(w, http.StatusInternalServerError, "status_error", "Failed to load job status", "")
		return
	}

	if org := r.Header.Get("X-Org-ID"); org != "" && status.OrgID != "" && status.OrgID != org {
		h.writeError(w, http.StatusNotFound, "not_found", "Job not found", "")
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// GupshupWebhook handles POST /v1/webhooks/gupshup
func (h *Handler) GupshupWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unreadable body", err.Error())
		return
	}

	ev, err := webhook.Parse(body)
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "invalid")
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid webhook event", err.Error())
		return
	}

	if !ev.IsTemplateEvent() {
		metrics.RecordWebhookEvent("other", "ignored")
		h.logger.Debug("ignoring non-template webhook", zap.String("type", ev.Type))
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	kind, ok := ev.Kind()
	if !ok {
		kind = "unknown"
	}

	if h.dedup != nil {
		first, err := h.dedup.FirstSeen(ctx, body)
		if err != nil {
			h.logger.Warn("webhook dedup check failed, proceeding", zap.Error(err))
		} else if !first {
			metrics.RecordWebhookEvent(string(kind), "duplicate")
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	job := jobs.NewWebhookJob(body)
	if err := h.statuses.Put(ctx, jobs.PendingStatus(job)); err != nil {
		h.logger.Warn("failed to store pending job status", zap.Error(err))
	}
	if err := h.queue.Enqueue(ctx, job); err != nil {
		h.logger.Error("failed to enqueue webhook job", zap.Error(err))
		if h.dedup != nil {
			if fErr := h.dedup.Forget(ctx, body); fErr != nil {
				h.logger.Warn("failed to forget webhook delivery", zap.Error(fErr))
			}
		}
		h.writeError(w, http.StatusServiceUnavailable, "enqueue_error", "Failed to enqueue webhook", "")
		return
	}
	metrics.RecordJobEnqueued(string(job.Kind))
	metrics.RecordWebhookEvent(string(kind), "accepted")

	h.logger.Info("webhook accepted",
		zap.String("job_id", job.ID.String()),
		zap.String("event_type", string(kind)),
		zap.String("provider_template_id", ev.Payload.String("id")),
	)

	h.writeJSON(w, http.StatusAccepted, JobResponse{
		JobID:  job.ID.String(),
		Status: string(jobs.StatePending),
	})
}

// ListBreakers handles GET /v1/breakers
func (h *Handler) ListBreakers(w http.ResponseWriter, _ *http.Request) {
	stats := []circuitbreaker.Stats{}
	if h.breakers != nil {
		stats = h.breakers.Stats()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":  stats,
		"count": len(stats),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
