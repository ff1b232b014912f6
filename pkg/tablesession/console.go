package tablesession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/repository"
)

// Reasons recorded when an admin acts without giving one.
const (
	DefaultFlagReason  = "Manually flagged by admin"
	DefaultCloseReason = "Closed by admin"
)

// Status buckets accepted by List.
const (
	BucketActive  = "active"
	BucketExpired = "expired"
	BucketClosed  = "closed"
	BucketAll     = "all"
)

// ErrInvalidStatusFilter is returned by List for an unknown status bucket.
var ErrInvalidStatusFilter = errors.New("invalid status filter")

// ListFilter selects sessions for the admin listing.
type ListFilter struct {
	Status       string
	Suspicious   *bool
	TableNumber  *int
	IncludeStats bool
	Limit        int64
}

// SessionView is a session with its derived duration in whole minutes.
type SessionView struct {
	*domain.Session
	Duration int `json:"duration"`
}

// Stats aggregates the currently active, unexpired sessions.
type Stats struct {
	TotalSessions        int     `json:"totalSessions"`
	TotalDevices         int     `json:"totalDevices"`
	TotalOrders          int     `json:"totalOrders"`
	TotalRevenue         float64 `json:"totalRevenue"`
	SuspiciousSessions   int     `json:"suspiciousSessions"`
	AvgDevicesPerSession float64 `json:"avgDevicesPerSession"`
	AvgOrdersPerSession  float64 `json:"avgOrdersPerSession"`
}

// Console implements the admin session commands.
type Console struct {
	sessions SessionStore
	tables   TableStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewConsole creates a new admin session console.
func NewConsole(sessions SessionStore, tables TableStore, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		sessions: sessions,
		tables:   tables,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (c *Console) SetClock(now func() time.Time) {
	c.now = now
}

// Close closes a session in any status and releases its table.
func (c *Console) Close(ctx context.Context, sessionID, reason, closedBy string) error {
	if reason == "" {
		reason = DefaultCloseReason
	}
	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	now := c.now()
	if err := c.sessions.Close(ctx, sessionID, reason, closedBy, now); err != nil {
		return err
	}
	c.logger.Info("session closed",
		"session_id", sessionID,
		"table_number", session.TableNumber,
		"closed_by", closedBy,
		"reason", reason,
	)

	if session.TableID == "" {
		return nil
	}
	// Not transactional: if this write fails the table keeps pointing at
	// the closed session until an admin retries the close. A table that has
	// already moved on to a newer session is left alone.
	if err := c.tables.ReleaseSession(ctx, session.TableID, sessionID, now); err != nil {
		c.logger.Error("failed to release table after closing session",
			"session_id", sessionID,
			"table_id", session.TableID,
			"error", err,
		)
		return fmt.Errorf("release table %s: %w", session.TableID, err)
	}
	return nil
}

// Flag marks a session suspicious on behalf of an admin. The reason is
// appended even when the same text is already present.
func (c *Console) Flag(ctx context.Context, sessionID, reason, flaggedBy string) error {
	if reason == "" {
		reason = DefaultFlagReason
	}
	if err := c.sessions.Flag(ctx, sessionID, reason, flaggedBy, c.now()); err != nil {
		return err
	}
	sessionsFlaggedTotal.WithLabelValues("manual").Inc()
	c.logger.Info("session flagged", "session_id", sessionID, "flagged_by", flaggedBy, "reason", reason)
	return nil
}

// Unflag clears the suspicious and manual flags. Reasons and the auto flag
// stay as recorded.
func (c *Console) Unflag(ctx context.Context, sessionID string) error {
	if err := c.sessions.Unflag(ctx, sessionID, c.now()); err != nil {
		return err
	}
	c.logger.Info("session unflagged", "session_id", sessionID)
	return nil
}

// List returns the sessions matching filter and, when requested, aggregate
// statistics over active sessions.
func (c *Console) List(ctx context.Context, filter ListFilter) ([]SessionView, *Stats, error) {
	now := c.now()

	q, err := bucketQuery(filter.Status, now)
	if err != nil {
		return nil, nil, err
	}
	q.Suspicious = filter.Suspicious
	q.TableNumber = filter.TableNumber
	q.Limit = filter.Limit

	sessions, err := c.sessions.List(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	views := make([]SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = SessionView{
			Session:  s,
			Duration: int(now.Sub(s.StartTime) / time.Minute),
		}
	}

	if !filter.IncludeStats {
		return views, nil, nil
	}

	stats, err := c.stats(ctx, now)
	if err != nil {
		return nil, nil, err
	}
	return views, stats, nil
}

func (c *Console) stats(ctx context.Context, now time.Time) (*Stats, error) {
	q, _ := bucketQuery(BucketActive, now)
	active, err := c.sessions.List(ctx, q)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalSessions: len(active)}
	for _, s := range active {
		stats.TotalDevices += s.TotalDevices
		stats.TotalOrders += s.OrderCount
		stats.TotalRevenue += s.TotalAmount
		if s.Flags.IsSuspicious {
			stats.SuspiciousSessions++
		}
	}
	if stats.TotalSessions > 0 {
		stats.AvgDevicesPerSession = roundTenth(float64(stats.TotalDevices) / float64(stats.TotalSessions))
		stats.AvgOrdersPerSession = roundTenth(float64(stats.TotalOrders) / float64(stats.TotalSessions))
	}
	return stats, nil
}

func bucketQuery(bucket string, now time.Time) (repository.SessionQuery, error) {
	active := domain.SessionActive
	closed := domain.SessionClosed

	switch bucket {
	case BucketActive:
		return repository.SessionQuery{Status: &active, ValidAt: &now}, nil
	case BucketExpired:
		return repository.SessionQuery{Status: &active, ExpiredBy: &now}, nil
	case BucketClosed:
		return repository.SessionQuery{Status: &closed}, nil
	case BucketAll, "":
		return repository.SessionQuery{}, nil
	default:
		return repository.SessionQuery{}, fmt.Errorf("%w: %q", ErrInvalidStatusFilter, bucket)
	}
}

func roundTenth(x float64) float64 {
	return math.Round(x*10) / 10
}
