package order

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/qr-table-ordering/internal/http/features/common"
	"github.com/tendant/qr-table-ordering/internal/httputil"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/ordering"
	"github.com/tendant/qr-table-ordering/pkg/tablesession"
)

// Handler handles order placement.
type Handler struct {
	logger     *slog.Logger
	service    *ordering.Service
	trustProxy bool
}

// NewHandler creates a new order handler.
func NewHandler(logger *slog.Logger, service *ordering.Service, trustProxy bool) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		trustProxy: trustProxy,
	}
}

// PlaceOrderRequest represents an order submitted from a table.
type PlaceOrderRequest struct {
	SessionID   string             `json:"sessionId"`
	Fingerprint string             `json:"fingerprint"`
	DeviceInfo  string             `json:"deviceInfo"`
	Items       []domain.OrderItem `json:"items"`
}

// PlaceOrder places an order for a session.
// POST /v1/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if req.SessionID == "" {
		httputil.ErrorCode(w, http.StatusBadRequest, string(tablesession.CodeSessionIDRequired), "Session ID is required")
		return
	}
	if len(req.Items) == 0 {
		httputil.Error(w, http.StatusBadRequest, "items are required")
		return
	}

	outcome, err := h.service.PlaceOrder(r.Context(), ordering.PlaceOrderRequest{
		SessionID: req.SessionID,
		Device:    tablesession.DeviceFromRequest(r, req.Fingerprint, req.DeviceInfo, h.trustProxy),
		Items:     req.Items,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyOrder):
			httputil.Error(w, http.StatusBadRequest, "items are required")
		case errors.Is(err, domain.ErrTooManyItems):
			httputil.Error(w, http.StatusBadRequest, "too many items in order")
		case errors.Is(err, domain.ErrInvalidItem):
			httputil.Error(w, http.StatusBadRequest, "invalid order item")
		default:
			h.logger.Error("failed to place order", "session_id", req.SessionID, "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to place order")
		}
		return
	}

	switch {
	case outcome.Validation != nil:
		common.WriteValidationFailure(w, *outcome.Validation)
	case !outcome.Accepted():
		common.WriteRateLimited(w, *outcome.RateLimit)
	default:
		httputil.JSON(w, http.StatusCreated, outcome.Order)
	}
}
