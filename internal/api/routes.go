package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lalithlochan/templar/internal/redis"
)

// Mount registers the /v1 routes on r. limiter may be nil.
func (h *Handler) Mount(r chi.Router, limiter *redis.RateLimiter) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/orgs/{orgID}/apps/{appID}", func(r chi.Router) {
			r.Use(RateLimitMiddleware(limiter, h.logger, OrgKeyFunc))

			r.Post("/templates/{templateID}/submit", h.SubmitTemplate)
			r.Post("/templates/{templateID}/update", h.UpdateTemplate)
			r.Delete("/templates/{templateID}", h.DeleteTemplate)
			r.Post("/sync", h.SyncTemplates)
		})

		r.Get("/jobs/{jobID}", h.GetJob)
		r.Get("/breakers", h.ListBreakers)

		// Provider callbacks are limited per source address.
		r.With(RateLimitMiddleware(limiter, h.logger, IPKeyFunc)).
			Post("/webhooks/gupshup", h.GupshupWebhook)
	})

	r.Get("/health", Health)
}

// Health handles GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
