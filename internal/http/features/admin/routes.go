package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers admin routes. Login is guarded by loginLimit, the
// rest by authMiddleware.
func (h *Handler) RegisterRoutes(r chi.Router, authMiddleware, loginLimit func(http.Handler) http.Handler) {
	r.With(loginLimit).Post("/v1/admin/login", h.Login)
	r.Post("/v1/admin/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/v1/admin/sessions", h.ListSessions)
		r.Post("/v1/admin/sessions/sweep", h.SweepExpired)
		r.Post("/v1/admin/sessions/{sessionId}/close", h.CloseSession)
		r.Post("/v1/admin/sessions/{sessionId}/flag", h.FlagSession)
		r.Post("/v1/admin/sessions/{sessionId}/unflag", h.UnflagSession)
	})
}
