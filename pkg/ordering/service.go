// Package ordering places orders for a table session after the session has
// been validated and the rate limiter has accepted the order.
package ordering

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/ratelimit"
	"github.com/tendant/qr-table-ordering/pkg/tablesession"
)

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Order, error)
}

// SessionTotals credits an accepted order to its session and device.
type SessionTotals interface {
	AddOrderAmount(ctx context.Context, sessionID, fingerprint string, amount float64, now time.Time) error
}

// PlaceOrderRequest is an order submitted from a device in a session.
type PlaceOrderRequest struct {
	SessionID string
	Device    tablesession.DeviceInfo
	Items     []domain.OrderItem
}

// Outcome reports what happened to a request. Exactly one of Validation
// (session rejected), RateLimit with Allowed false (order throttled) or
// Order (order stored) describes the result.
type Outcome struct {
	Order      *domain.Order
	Validation *tablesession.ValidationResult
	RateLimit  *ratelimit.Result
}

// Accepted reports whether the order was stored.
func (o *Outcome) Accepted() bool {
	return o.Order != nil
}

// Service places orders.
type Service struct {
	validator *tablesession.Validator
	limiter   *ratelimit.Limiter
	orders    OrderStore
	totals    SessionTotals
	logger    *slog.Logger
	now       func() time.Time
	maxItems  int
}

// DefaultMaxItems caps the line items of a single order.
const DefaultMaxItems = 50

// NewService creates a new ordering service.
func NewService(validator *tablesession.Validator, limiter *ratelimit.Limiter, orders OrderStore, totals SessionTotals, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		validator: validator,
		limiter:   limiter,
		orders:    orders,
		totals:    totals,
		logger:    logger,
		now:       time.Now,
		maxItems:  DefaultMaxItems,
	}
}

// SetMaxItems changes the line item cap. Non-positive values are ignored.
func (s *Service) SetMaxItems(n int) {
	if n > 0 {
		s.maxItems = n
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// PlaceOrder validates the session, applies the session and device rate
// rules and stores the order. Only store failures while inserting the order
// are returned as errors.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Outcome, error) {
	if err := validateItems(req.Items, s.maxItems); err != nil {
		return nil, err
	}

	validation := s.validator.Validate(ctx, req.SessionID)
	if !validation.Valid {
		return &Outcome{Validation: &validation}, nil
	}
	session := validation.Session

	if reg := s.validator.RegisterDevice(ctx, session.SessionID, req.Device); !reg.Success {
		s.logger.Warn("device registration failed while ordering",
			"session_id", session.SessionID,
			"error", reg.Error,
		)
	}

	now := s.now()
	check := s.limiter.CheckOrderAllowed(ctx, session, now)
	if !check.Allowed {
		s.logDenied(session, req.Device.Fingerprint, check)
		return &Outcome{RateLimit: &check}, nil
	}
	deviceCheck := s.limiter.CheckDeviceOrderAllowed(ctx, session.SessionID, req.Device.Fingerprint, now)
	if !deviceCheck.Allowed {
		s.logDenied(session, req.Device.Fingerprint, deviceCheck)
		return &Outcome{RateLimit: &deviceCheck}, nil
	}

	order := &domain.Order{
		OrderID:           uuid.NewString(),
		SessionID:         session.SessionID,
		DeviceFingerprint: req.Device.Fingerprint,
		TableNumber:       session.TableNumber,
		Items:             req.Items,
		Status:            domain.OrderPending,
		CreatedAt:         now,
	}
	order.TotalAmount = order.Total()

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.totals.AddOrderAmount(ctx, session.SessionID, req.Device.Fingerprint, order.TotalAmount, now); err != nil {
		s.logger.Warn("failed to add order amount to session", "session_id", session.SessionID, "error", err)
	}
	s.limiter.RecordOrder(ctx, session.SessionID)

	s.logger.Info("order placed",
		"order_id", order.OrderID,
		"session_id", session.SessionID,
		"table_number", session.TableNumber,
		"total_amount", order.TotalAmount,
	)
	return &Outcome{Order: order, RateLimit: &check}, nil
}

// ListOrders returns the orders of a valid session, oldest first. A failed
// validation is returned instead of orders.
func (s *Service) ListOrders(ctx context.Context, sessionID string) ([]*domain.Order, *tablesession.ValidationResult, error) {
	validation := s.validator.Validate(ctx, sessionID)
	if !validation.Valid {
		return nil, &validation, nil
	}
	orders, err := s.orders.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return orders, nil, nil
}

func (s *Service) logDenied(session *domain.Session, fingerprint string, r ratelimit.Result) {
	s.logger.Warn("order rate limited",
		"session_id", session.SessionID,
		"table_number", session.TableNumber,
		"device", fingerprint,
		"reason", r.Reason,
	)
}

func validateItems(items []domain.OrderItem, max int) error {
	if len(items) == 0 {
		return domain.ErrEmptyOrder
	}
	if len(items) > max {
		return domain.ErrTooManyItems
	}
	for _, it := range items {
		if it.MenuItemID == "" || it.Quantity <= 0 || it.UnitPrice < 0 {
			return domain.ErrInvalidItem
		}
	}
	return nil
}
