package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/qr-table-ordering/internal/http/middleware"
	"github.com/tendant/qr-table-ordering/internal/httputil"
	"github.com/tendant/qr-table-ordering/pkg/adminauth"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/tablesession"
)

// Handler handles the admin back-office endpoints.
type Handler struct {
	logger       *slog.Logger
	auth         *adminauth.Service
	console      *tablesession.Console
	validator    *tablesession.Validator
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new admin handler.
func NewHandler(logger *slog.Logger, auth *adminauth.Service, console *tablesession.Console, validator *tablesession.Validator, cookieSecure bool) *Handler {
	cookieConfig := httputil.DefaultCookieConfig()
	cookieConfig.Secure = cookieSecure
	return &Handler{
		logger:       logger,
		auth:         auth,
		console:      console,
		validator:    validator,
		cookieConfig: cookieConfig,
	}
}

// LoginRequest represents an admin login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// TokenResponse represents an admin token.
type TokenResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ReasonRequest carries an optional reason for close and flag.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ListResponse is the admin session listing.
type ListResponse struct {
	Sessions []tablesession.SessionView `json:"sessions"`
	Count    int                        `json:"count"`
	Stats    *tablesession.Stats        `json:"stats,omitempty"`
}

// Login authenticates an admin.
// POST /v1/admin/login
//
// Browser clients (X-Client-Type: web) receive the token as an HttpOnly
// cookie instead of in the body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := h.auth.Login(req.Username, req.Password, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOTP):
			httputil.Error(w, http.StatusUnauthorized, "invalid verification code")
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusUnauthorized, "invalid credentials")
		default:
			h.logger.Error("admin login failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "login failed")
		}
		h.logger.Warn("admin login rejected", "username", req.Username, "ip", r.RemoteAddr)
		return
	}

	h.logger.Info("admin logged in", "username", req.Username)
	resp := TokenResponse{
		TokenType: "Bearer",
		ExpiresIn: int(h.auth.TokenTTL().Seconds()),
	}
	if httputil.IsBrowserClient(r) {
		httputil.SetAdminTokenCookie(w, token, h.auth.TokenTTL(), h.cookieConfig)
	} else {
		resp.AccessToken = token
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Logout clears the admin cookie.
// POST /v1/admin/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	httputil.ClearAdminTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions lists sessions.
// GET /v1/admin/sessions?status=&suspicious=&tableNumber=&stats=true&limit=
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	filter, msg := parseListFilter(r)
	if msg != "" {
		httputil.Error(w, http.StatusBadRequest, msg)
		return
	}

	views, stats, err := h.console.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, tablesession.ErrInvalidStatusFilter) {
			httputil.Error(w, http.StatusBadRequest, "status must be one of active, expired, closed, all")
			return
		}
		h.logger.Error("failed to list sessions", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	if views == nil {
		views = []tablesession.SessionView{}
	}
	httputil.JSON(w, http.StatusOK, ListResponse{Sessions: views, Count: len(views), Stats: stats})
}

func parseListFilter(r *http.Request) (tablesession.ListFilter, string) {
	q := r.URL.Query()
	filter := tablesession.ListFilter{
		Status:       q.Get("status"),
		IncludeStats: q.Get("stats") == "true",
	}

	if v := q.Get("suspicious"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, "suspicious must be true or false"
		}
		filter.Suspicious = &b
	}
	if v := q.Get("tableNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, "tableNumber must be a positive integer"
		}
		filter.TableNumber = &n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return filter, "limit must be a positive integer"
		}
		filter.Limit = n
	}
	return filter, ""
}

// CloseSession closes a session and releases its table.
// POST /v1/admin/sessions/{sessionId}/close
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	req, ok := decodeReason(w, r)
	if !ok {
		return
	}

	admin, _ := middleware.GetAdmin(r.Context())
	if err := h.console.Close(r.Context(), sessionID, req.Reason, admin); err != nil {
		h.writeCommandError(w, "close", sessionID, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// FlagSession marks a session suspicious.
// POST /v1/admin/sessions/{sessionId}/flag
func (h *Handler) FlagSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	req, ok := decodeReason(w, r)
	if !ok {
		return
	}

	admin, _ := middleware.GetAdmin(r.Context())
	if err := h.console.Flag(r.Context(), sessionID, req.Reason, admin); err != nil {
		h.writeCommandError(w, "flag", sessionID, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "flagged"})
}

// UnflagSession clears the suspicious flag of a session.
// POST /v1/admin/sessions/{sessionId}/unflag
func (h *Handler) UnflagSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if err := h.console.Unflag(r.Context(), sessionID); err != nil {
		h.writeCommandError(w, "unflag", sessionID, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "unflagged"})
}

// SweepExpired expires every active session past its deadline.
// POST /v1/admin/sessions/sweep
func (h *Handler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	n, err := h.validator.SweepExpired(r.Context())
	if err != nil {
		h.logger.Error("failed to sweep expired sessions", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to sweep expired sessions")
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]int64{"expired": n})
}

func decodeReason(w http.ResponseWriter, r *http.Request) (ReasonRequest, bool) {
	var req ReasonRequest
	if r.ContentLength == 0 {
		return req, true
	}
	return req, httputil.DecodeJSON(w, r, &req)
}

func (h *Handler) writeCommandError(w http.ResponseWriter, action, sessionID string, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		httputil.Error(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Error("admin session command failed", "action", action, "session_id", sessionID, "error", err)
	httputil.Error(w, http.StatusInternalServerError, "failed to "+action+" session")
}
