package session

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers table session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/sessions/start", h.Start)
	r.Get("/v1/sessions/{sessionId}", h.Validate)
	r.Post("/v1/sessions/{sessionId}/devices", h.RegisterDevice)
	r.Get("/v1/sessions/{sessionId}/orders", h.Orders)
}
