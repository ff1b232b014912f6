package session

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/qr-table-ordering/internal/http/features/common"
	"github.com/tendant/qr-table-ordering/internal/httputil"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/ordering"
	"github.com/tendant/qr-table-ordering/pkg/tablesession"
)

// Handler handles table session endpoints used by ordering clients.
type Handler struct {
	logger     *slog.Logger
	validator  *tablesession.Validator
	orders     *ordering.Service
	trustProxy bool
}

// NewHandler creates a new table session handler.
func NewHandler(logger *slog.Logger, validator *tablesession.Validator, orders *ordering.Service, trustProxy bool) *Handler {
	return &Handler{
		logger:     logger,
		validator:  validator,
		orders:     orders,
		trustProxy: trustProxy,
	}
}

// StartRequest represents a QR scan at a table.
type StartRequest struct {
	TableNumber int `json:"tableNumber"`
}

// StartResponse represents the session a scan joined.
type StartResponse struct {
	Session *domain.Session `json:"session"`
	IsNew   bool            `json:"isNew"`
}

// RegisterDeviceRequest represents a device joining a session. Fingerprint
// is derived from the client IP and User-Agent when omitted.
type RegisterDeviceRequest struct {
	Fingerprint string `json:"fingerprint"`
	DeviceInfo  string `json:"deviceInfo"`
}

// Start returns the table's active session or starts a new one.
// POST /v1/sessions/start
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.TableNumber <= 0 {
		httputil.Error(w, http.StatusBadRequest, "tableNumber is required")
		return
	}

	session, isNew, err := h.validator.StartSession(r.Context(), req.TableNumber)
	if err != nil {
		if errors.Is(err, domain.ErrTableNotFound) {
			httputil.Error(w, http.StatusNotFound, "table not found")
			return
		}
		h.logger.Error("failed to start session", "table_number", req.TableNumber, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, StartResponse{Session: session, IsNew: isNew})
}

// Validate validates a session and marks it active.
// GET /v1/sessions/{sessionId}
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	result := h.validator.Validate(r.Context(), sessionID)
	if !result.Valid {
		common.WriteValidationFailure(w, result)
		return
	}

	h.validator.TouchActivity(r.Context(), sessionID)
	httputil.JSON(w, http.StatusOK, result)
}

// RegisterDevice adds the calling device to a valid session.
// POST /v1/sessions/{sessionId}/devices
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req RegisterDeviceRequest
	if r.ContentLength != 0 {
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
	}

	result := h.validator.Validate(r.Context(), sessionID)
	if !result.Valid {
		common.WriteValidationFailure(w, result)
		return
	}

	device := tablesession.DeviceFromRequest(r, req.Fingerprint, req.DeviceInfo, h.trustProxy)
	reg := h.validator.RegisterDevice(r.Context(), sessionID, device)
	if !reg.Success {
		httputil.Error(w, http.StatusInternalServerError, "failed to register device")
		return
	}

	status := http.StatusOK
	if reg.IsNew {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, reg)
}

// Orders lists the orders placed in a valid session.
// GET /v1/sessions/{sessionId}/orders
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	orders, validation, err := h.orders.ListOrders(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to list session orders", "session_id", sessionID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if validation != nil {
		common.WriteValidationFailure(w, *validation)
		return
	}

	if orders == nil {
		orders = []*domain.Order{}
	}
	httputil.JSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"count":  len(orders),
	})
}
