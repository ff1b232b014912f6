// Package tablesession owns the lifetime of a dining session at a table: it
// validates session ids presented by ordering clients, registers the devices
// that join a session, flags excessive device fan-out and expires stale
// sessions.
package tablesession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/repository"
)

const (
	// DefaultSessionTTL is how long a session started by a QR scan lasts.
	DefaultSessionTTL = 3 * time.Hour
	// DefaultDeviceThreshold is the number of distinct devices at which a
	// session is flagged as suspicious.
	DefaultDeviceThreshold = 15
)

// ValidationCode identifies the outcome of Validate.
type ValidationCode string

const (
	CodeValid             ValidationCode = "OK"
	CodeSessionIDRequired ValidationCode = "SESSION_ID_REQUIRED"
	CodeSessionNotFound   ValidationCode = "SESSION_NOT_FOUND"
	CodeSessionExpired    ValidationCode = "SESSION_EXPIRED"
	CodeValidationError   ValidationCode = "VALIDATION_ERROR"
)

// ValidationResult is the outcome of Validate. A store failure yields
// CodeValidationError with Valid false: an unknown session is never trusted.
type ValidationResult struct {
	Valid   bool            `json:"valid"`
	Code    ValidationCode  `json:"code"`
	Message string          `json:"message,omitempty"`
	Session *domain.Session `json:"session,omitempty"`
}

// DeviceInfo identifies a client joining a session.
type DeviceInfo struct {
	Fingerprint string `json:"fingerprint"`
	IPAddress   string `json:"ipAddress"`
	UserAgent   string `json:"userAgent"`
	DeviceInfo  string `json:"deviceInfo,omitempty"`
}

// DeviceRegistration is the outcome of RegisterDevice.
type DeviceRegistration struct {
	Success      bool   `json:"success"`
	IsNew        bool   `json:"isNew"`
	TotalDevices int    `json:"totalDevices"`
	Error        string `json:"error,omitempty"`
}

// SessionStore is the persistence the validator and console need.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	GetActive(ctx context.Context, sessionID string) (*domain.Session, error)
	MarkExpired(ctx context.Context, sessionID string, now time.Time) error
	TouchDevice(ctx context.Context, sessionID, fingerprint string, now time.Time) (bool, error)
	AddDevice(ctx context.Context, sessionID string, device domain.Device, now time.Time) (bool, error)
	GetTotalDevices(ctx context.Context, sessionID string) (int, error)
	AutoFlag(ctx context.Context, sessionID, reason string, now time.Time) error
	TouchActivity(ctx context.Context, sessionID string, now time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	Close(ctx context.Context, sessionID, reason, closedBy string, now time.Time) error
	Flag(ctx context.Context, sessionID, reason, flaggedBy string, now time.Time) error
	Unflag(ctx context.Context, sessionID string, now time.Time) error
	List(ctx context.Context, q repository.SessionQuery) ([]*domain.Session, error)
}

// TableStore is the table persistence used when sessions start and close.
type TableStore interface {
	GetByNumber(ctx context.Context, number int) (*domain.Table, error)
	AssignSession(ctx context.Context, tableID, sessionID string, now time.Time) error
	ReleaseSession(ctx context.Context, tableID, sessionID string, now time.Time) error
}

// Config holds validator configuration.
type Config struct {
	SessionTTL      time.Duration
	DeviceThreshold int
}

// Validator validates sessions and registers devices.
type Validator struct {
	config   Config
	sessions SessionStore
	tables   TableStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewValidator creates a new session validator.
func NewValidator(config Config, sessions SessionStore, tables TableStore, logger *slog.Logger) *Validator {
	if config.SessionTTL == 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if config.DeviceThreshold == 0 {
		config.DeviceThreshold = DefaultDeviceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		config:   config,
		sessions: sessions,
		tables:   tables,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Validate checks that sessionID names an active, unexpired session. An
// active session found past its deadline is persisted as expired before
// the failure is reported.
func (v *Validator) Validate(ctx context.Context, sessionID string) ValidationResult {
	if sessionID == "" {
		validationsTotal.WithLabelValues(string(CodeSessionIDRequired)).Inc()
		return ValidationResult{Code: CodeSessionIDRequired, Message: "Session ID is required"}
	}

	session, err := v.sessions.GetActive(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		validationsTotal.WithLabelValues(string(CodeSessionNotFound)).Inc()
		return ValidationResult{Code: CodeSessionNotFound, Message: "Session not found or no longer active"}
	}
	if err != nil {
		return v.validationError(sessionID, err)
	}

	now := v.now()
	if session.IsExpired(now) {
		if err := v.sessions.MarkExpired(ctx, sessionID, now); err != nil {
			return v.validationError(sessionID, err)
		}
		sessionsExpiredTotal.WithLabelValues("lazy").Inc()
		validationsTotal.WithLabelValues(string(CodeSessionExpired)).Inc()
		v.logger.Info("session expired", "session_id", sessionID, "table_number", session.TableNumber)
		return ValidationResult{
			Code:    CodeSessionExpired,
			Message: "Session has expired. Please scan the QR code again.",
		}
	}

	validationsTotal.WithLabelValues(string(CodeValid)).Inc()
	return ValidationResult{Valid: true, Code: CodeValid, Session: session}
}

func (v *Validator) validationError(sessionID string, err error) ValidationResult {
	v.logger.Error("session validation failed", "session_id", sessionID, "error", err)
	validationsTotal.WithLabelValues(string(CodeValidationError)).Inc()
	return ValidationResult{Code: CodeValidationError, Message: "Failed to validate session"}
}

// RegisterDevice records a device joining a session. The session is looked
// up by id alone, whatever its status. A fingerprint already present only
// refreshes lastSeen; a new one is appended and may trigger the excessive
// device flag.
func (v *Validator) RegisterDevice(ctx context.Context, sessionID string, info DeviceInfo) DeviceRegistration {
	if info.Fingerprint == "" {
		return DeviceRegistration{Error: "Device fingerprint is required"}
	}

	session, err := v.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return DeviceRegistration{Error: "Session not found"}
	}
	if err != nil {
		return v.registrationError(sessionID, err)
	}

	now := v.now()
	if session.HasDevice(info.Fingerprint) {
		return v.touchDevice(ctx, session, info.Fingerprint, now)
	}

	added, err := v.sessions.AddDevice(ctx, sessionID, domain.Device{
		Fingerprint: info.Fingerprint,
		IPAddress:   info.IPAddress,
		UserAgent:   info.UserAgent,
		DeviceInfo:  info.DeviceInfo,
		FirstSeen:   now,
		LastSeen:    now,
		OrderCount:  0,
	}, now)
	if err != nil {
		return v.registrationError(sessionID, err)
	}
	if !added {
		// A concurrent request registered the same fingerprint first.
		return v.touchDevice(ctx, session, info.Fingerprint, now)
	}
	devicesRegisteredTotal.WithLabelValues("new").Inc()

	total, err := v.sessions.GetTotalDevices(ctx, sessionID)
	if err != nil {
		return v.registrationError(sessionID, err)
	}

	if total >= v.config.DeviceThreshold {
		if err := v.sessions.AutoFlag(ctx, sessionID, domain.ReasonExcessiveDevices, now); err != nil {
			return v.registrationError(sessionID, err)
		}
		// Later devices re-assert the flag but only the first one counts.
		if !session.Flags.AutoFlagged {
			sessionsFlaggedTotal.WithLabelValues("auto").Inc()
			v.logger.Warn("session flagged for excessive devices",
				"session_id", sessionID,
				"table_number", session.TableNumber,
				"total_devices", total,
			)
		}
	}

	return DeviceRegistration{Success: true, IsNew: true, TotalDevices: total}
}

func (v *Validator) touchDevice(ctx context.Context, session *domain.Session, fingerprint string, now time.Time) DeviceRegistration {
	if _, err := v.sessions.TouchDevice(ctx, session.SessionID, fingerprint, now); err != nil {
		return v.registrationError(session.SessionID, err)
	}
	devicesRegisteredTotal.WithLabelValues("returning").Inc()
	return DeviceRegistration{Success: true, IsNew: false, TotalDevices: session.TotalDevices}
}

func (v *Validator) registrationError(sessionID string, err error) DeviceRegistration {
	v.logger.Error("device registration failed", "session_id", sessionID, "error", err)
	return DeviceRegistration{Error: err.Error()}
}

// TouchActivity marks the session as active now. Failures are logged only.
func (v *Validator) TouchActivity(ctx context.Context, sessionID string) {
	if err := v.sessions.TouchActivity(ctx, sessionID, v.now()); err != nil {
		v.logger.Warn("failed to update session activity", "session_id", sessionID, "error", err)
	}
}

// SweepExpired moves every active session past its deadline to expired in
// one bulk update and returns how many sessions changed.
func (v *Validator) SweepExpired(ctx context.Context) (int64, error) {
	n, err := v.sessions.ExpireStale(ctx, v.now())
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	if n > 0 {
		sessionsExpiredTotal.WithLabelValues("sweep").Add(float64(n))
		v.logger.Info("expired stale sessions", "count", n)
	}
	return n, nil
}

// StartSession returns the table's current session when it is still active,
// or starts a new one and assigns it to the table. The boolean reports
// whether a new session was created.
func (v *Validator) StartSession(ctx context.Context, tableNumber int) (*domain.Session, bool, error) {
	table, err := v.tables.GetByNumber(ctx, tableNumber)
	if err != nil {
		return nil, false, err
	}

	now := v.now()
	if table.CurrentSessionID != "" {
		current, err := v.sessions.GetActive(ctx, table.CurrentSessionID)
		switch {
		case err == nil && !current.IsExpired(now):
			return current, false, nil
		case err == nil:
			if err := v.sessions.MarkExpired(ctx, current.SessionID, now); err != nil {
				return nil, false, err
			}
			sessionsExpiredTotal.WithLabelValues("lazy").Inc()
		case !errors.Is(err, domain.ErrSessionNotFound):
			return nil, false, err
		}
	}

	session := domain.NewSession(uuid.NewString(), table.ID, table.TableNumber, now, v.config.SessionTTL)
	if err := v.sessions.Create(ctx, session); err != nil {
		return nil, false, err
	}
	if err := v.tables.AssignSession(ctx, table.ID, session.SessionID, now); err != nil {
		return nil, false, err
	}

	v.logger.Info("session started",
		"session_id", session.SessionID,
		"table_number", table.TableNumber,
		"expires_at", session.ExpiryTime,
	)
	return session, true, nil
}
