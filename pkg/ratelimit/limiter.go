// Package ratelimit decides whether a table session may place another order.
//
// Checks run as an ordered policy chain over live order counts. Unlike
// session validation, the limiter fails open: when the store cannot be read
// the order is allowed with ReasonErrorFallback.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tendant/qr-table-ordering/pkg/domain"
)

// Reason identifies the rule that decided a check.
type Reason string

const (
	ReasonOK            Reason = "OK"
	ReasonGracePeriod   Reason = "INITIAL_GRACE_PERIOD"
	ReasonShortWindow   Reason = "RATE_LIMIT_5MIN"
	ReasonMediumWindow  Reason = "RATE_LIMIT_1HOUR"
	ReasonTotalLimit    Reason = "TOTAL_LIMIT_REACHED"
	ReasonDeviceLimit   Reason = "DEVICE_RATE_LIMIT"
	ReasonErrorFallback Reason = "ERROR_FALLBACK"
)

// Policy constants.
const (
	// GracePeriod is the time after session start during which no rate
	// rule applies.
	GracePeriod = 15 * time.Minute

	ShortWindow       = 5 * time.Minute
	ShortWindowOrders = 8

	MediumWindow           = time.Hour
	MediumWindowOrders     = 30
	MediumWindowRetryAfter = 300 // seconds

	// SessionOrderLimit caps the lifetime orders of a session.
	SessionOrderLimit = 100

	DeviceWindow           = time.Minute
	DeviceWindowOrders     = 3
	DeviceWindowRetryAfter = 60 // seconds
)

// Result is the outcome of a check. RetryAfter is in seconds and nil when no
// wait would help.
type Result struct {
	Allowed    bool   `json:"allowed"`
	Reason     Reason `json:"reason"`
	Message    string `json:"message,omitempty"`
	RetryAfter *int   `json:"retryAfter"`
}

// OrderCounter reads windowed order counts.
type OrderCounter interface {
	CountSince(ctx context.Context, sessionID string, since time.Time) (int64, error)
	CountByDeviceSince(ctx context.Context, sessionID, fingerprint string, since time.Time) (int64, error)
	OldestSince(ctx context.Context, sessionID string, since time.Time) (*domain.Order, error)
}

// OrderRecorder updates the session's order statistics.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, sessionID string, now time.Time) error
}

// Limiter applies the order rate policy.
type Limiter struct {
	orders   OrderCounter
	sessions OrderRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewLimiter creates a new order rate limiter.
func NewLimiter(orders OrderCounter, sessions OrderRecorder, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		orders:   orders,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source used by RecordOrder.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// CheckOrderAllowed evaluates the session-wide rules in order; the first rule
// that matches decides.
func (l *Limiter) CheckOrderAllowed(ctx context.Context, session *domain.Session, now time.Time) Result {
	if now.Sub(session.StartTime) < GracePeriod {
		return l.decide(Result{Allowed: true, Reason: ReasonGracePeriod})
	}

	shortSince := now.Add(-ShortWindow)
	recent, err := l.orders.CountSince(ctx, session.SessionID, shortSince)
	if err != nil {
		return l.fallback(session.SessionID, err)
	}
	if recent >= ShortWindowOrders {
		retryAfter := int(ShortWindow / time.Second)
		oldest, err := l.orders.OldestSince(ctx, session.SessionID, shortSince)
		if err != nil {
			return l.fallback(session.SessionID, err)
		}
		if oldest != nil {
			retryAfter = ceilSeconds(oldest.CreatedAt.Add(ShortWindow).Sub(now))
		}
		if retryAfter < 1 {
			retryAfter = 1
		}
		minutes := int(math.Ceil(float64(retryAfter) / 60))
		return l.decide(Result{
			Reason:     ReasonShortWindow,
			Message:    fmt.Sprintf("Too many orders in a short time. Please wait %d minute(s) before ordering again.", minutes),
			RetryAfter: intPtr(retryAfter),
		})
	}

	hourly, err := l.orders.CountSince(ctx, session.SessionID, now.Add(-MediumWindow))
	if err != nil {
		return l.fallback(session.SessionID, err)
	}
	if hourly >= MediumWindowOrders {
		return l.decide(Result{
			Reason:     ReasonMediumWindow,
			Message:    "Hourly order limit reached. Please wait a few minutes before ordering again.",
			RetryAfter: intPtr(MediumWindowRetryAfter),
		})
	}

	if session.OrderCount >= SessionOrderLimit {
		return l.decide(Result{
			Reason:  ReasonTotalLimit,
			Message: "This session has reached its order limit. Please ask a member of staff for help.",
		})
	}

	return l.decide(Result{Allowed: true, Reason: ReasonOK})
}

// CheckDeviceOrderAllowed throttles a single device within a session,
// independently of the session-wide rules.
func (l *Limiter) CheckDeviceOrderAllowed(ctx context.Context, sessionID, fingerprint string, now time.Time) Result {
	n, err := l.orders.CountByDeviceSince(ctx, sessionID, fingerprint, now.Add(-DeviceWindow))
	if err != nil {
		return l.fallback(sessionID, err)
	}
	if n >= DeviceWindowOrders {
		return l.decide(Result{
			Reason:     ReasonDeviceLimit,
			Message:    "You are ordering too quickly. Please wait a minute before ordering again.",
			RetryAfter: intPtr(DeviceWindowRetryAfter),
		})
	}
	return l.decide(Result{Allowed: true, Reason: ReasonOK})
}

// RecordOrder bumps the session's order counter after an order was stored.
// It must run once per accepted order; failures are logged only.
func (l *Limiter) RecordOrder(ctx context.Context, sessionID string) {
	if err := l.sessions.RecordOrder(ctx, sessionID, l.now()); err != nil {
		l.logger.Warn("failed to record order on session", "session_id", sessionID, "error", err)
	}
}

func (l *Limiter) fallback(sessionID string, err error) Result {
	l.logger.Error("rate limit check failed, allowing order", "session_id", sessionID, "error", err)
	return l.decide(Result{Allowed: true, Reason: ReasonErrorFallback})
}

func (l *Limiter) decide(r Result) Result {
	decisionsTotal.WithLabelValues(string(r.Reason)).Inc()
	return r
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func intPtr(v int) *int {
	return &v
}
