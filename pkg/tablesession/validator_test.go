package tablesession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/repository/memory"
)

var t0 = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	validator *Validator
	console   *Console
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	f := &fixture{store: store, now: t0}

	f.validator = NewValidator(Config{}, store.Sessions(), store.Tables(), logger)
	f.validator.SetClock(func() time.Time { return f.now })
	f.console = NewConsole(store.Sessions(), store.Tables(), logger)
	f.console.SetClock(func() time.Time { return f.now })
	return f
}

// seed stores a session started at t0 with the default TTL.
func (f *fixture) seed(t *testing.T, id, tableID string) *domain.Session {
	t.Helper()
	s := domain.NewSession(id, tableID, 4, t0, DefaultSessionTTL)
	require.NoError(t, f.store.Sessions().Create(context.Background(), s))
	return s
}

func (f *fixture) get(t *testing.T, id string) *domain.Session {
	t.Helper()
	s, err := f.store.Sessions().GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func device(fp string) DeviceInfo {
	return DeviceInfo{Fingerprint: fp, IPAddress: "192.0.2.1", UserAgent: "phone"}
}

func TestValidate_Valid(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")

	res := f.validator.Validate(context.Background(), "s1")
	assert.True(t, res.Valid)
	assert.Equal(t, CodeValid, res.Code)
	require.NotNil(t, res.Session)
	assert.Equal(t, "s1", res.Session.SessionID)
}

func TestValidate_SessionIDRequired(t *testing.T) {
	f := newFixture(t)

	res := f.validator.Validate(context.Background(), "")
	assert.False(t, res.Valid)
	assert.Equal(t, CodeSessionIDRequired, res.Code)
}

func TestValidate_NotFoundForInactiveSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "expired", "")
	f.seed(t, "closed", "")
	require.NoError(t, f.store.Sessions().MarkExpired(ctx, "expired", t0))
	require.NoError(t, f.store.Sessions().Close(ctx, "closed", "done", "admin", t0))

	for _, id := range []string{"expired", "closed", "unknown"} {
		t.Run(id, func(t *testing.T) {
			res := f.validator.Validate(ctx, id)
			assert.False(t, res.Valid)
			assert.Equal(t, CodeSessionNotFound, res.Code)
		})
	}
}

func TestValidate_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")
	f.now = t0.Add(DefaultSessionTTL + time.Second)

	res := f.validator.Validate(context.Background(), "s1")
	assert.False(t, res.Valid)
	assert.Equal(t, CodeSessionExpired, res.Code)
	assert.Equal(t, "Session has expired. Please scan the QR code again.", res.Message)

	stored := f.get(t, "s1")
	assert.Equal(t, domain.SessionExpired, stored.Status)
	assert.Equal(t, f.now, stored.UpdatedAt)

	res = f.validator.Validate(context.Background(), "s1")
	assert.Equal(t, CodeSessionNotFound, res.Code)
}

func TestValidate_ExpiryIsExclusive(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")
	f.now = t0.Add(DefaultSessionTTL)

	res := f.validator.Validate(context.Background(), "s1")
	assert.True(t, res.Valid, "session is still valid at exactly its expiry time")
}

type failingSessions struct {
	SessionStore
	err error
}

func (s failingSessions) GetActive(context.Context, string) (*domain.Session, error) {
	return nil, s.err
}

func (s failingSessions) GetByID(context.Context, string) (*domain.Session, error) {
	return nil, s.err
}

func TestValidate_StoreFailureIsFailClosed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := NewValidator(Config{}, failingSessions{err: errors.New("connection refused")}, nil, logger)

	res := v.Validate(context.Background(), "s1")
	assert.False(t, res.Valid)
	assert.Equal(t, CodeValidationError, res.Code)
	assert.Nil(t, res.Session)

	reg := v.RegisterDevice(context.Background(), "s1", device("a"))
	assert.False(t, reg.Success)
	assert.Contains(t, reg.Error, "connection refused")
}

func TestRegisterDevice_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")

	f.now = t0.Add(time.Minute)
	reg := f.validator.RegisterDevice(context.Background(), "s1", device("a"))
	require.True(t, reg.Success)
	assert.True(t, reg.IsNew)
	assert.Equal(t, 1, reg.TotalDevices)

	f.now = t0.Add(2 * time.Minute)
	reg = f.validator.RegisterDevice(context.Background(), "s1", device("a"))
	require.True(t, reg.Success)
	assert.False(t, reg.IsNew)
	assert.Equal(t, 1, reg.TotalDevices)

	stored := f.get(t, "s1")
	require.Len(t, stored.Devices, 1)
	assert.Equal(t, 1, stored.TotalDevices)
	assert.Equal(t, t0.Add(time.Minute), stored.Devices[0].FirstSeen)
	assert.Equal(t, t0.Add(2*time.Minute), stored.Devices[0].LastSeen)
}

func TestRegisterDevice_Errors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")

	reg := f.validator.RegisterDevice(context.Background(), "s1", DeviceInfo{})
	assert.False(t, reg.Success)
	assert.Equal(t, "Device fingerprint is required", reg.Error)

	reg = f.validator.RegisterDevice(context.Background(), "missing", device("a"))
	assert.False(t, reg.Success)
	assert.Equal(t, "Session not found", reg.Error)
}

func TestRegisterDevice_AnyStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")
	require.NoError(t, f.store.Sessions().Close(context.Background(), "s1", "done", "admin", t0))

	reg := f.validator.RegisterDevice(context.Background(), "s1", device("a"))
	assert.True(t, reg.Success)
	assert.True(t, reg.IsNew)
}

// autoFlagCount reads the auto-flag counter; the registry is process-wide so
// tests compare deltas.
func autoFlagCount(t *testing.T) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, sessionsFlaggedTotal.WithLabelValues("auto").Write(m))
	return m.GetCounter().GetValue()
}

func TestRegisterDevice_FlagsExcessiveDevicesOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")
	ctx := context.Background()
	before := autoFlagCount(t)

	for i := 1; i < DefaultDeviceThreshold; i++ {
		reg := f.validator.RegisterDevice(ctx, "s1", device(fmt.Sprintf("fp-%d", i)))
		require.True(t, reg.Success)
	}
	assert.False(t, f.get(t, "s1").Flags.IsSuspicious, "14 devices is below the threshold")

	reg := f.validator.RegisterDevice(ctx, "s1", device("fp-15"))
	require.True(t, reg.Success)
	assert.Equal(t, DefaultDeviceThreshold, reg.TotalDevices)

	for i := 16; i <= 18; i++ {
		require.True(t, f.validator.RegisterDevice(ctx, "s1", device(fmt.Sprintf("fp-%d", i))).Success)
	}

	stored := f.get(t, "s1")
	assert.True(t, stored.Flags.IsSuspicious)
	assert.True(t, stored.Flags.AutoFlagged)
	assert.False(t, stored.Flags.ManuallyFlagged)
	assert.Equal(t, []string{domain.ReasonExcessiveDevices}, stored.Flags.Reasons)
	assert.Equal(t, 18, stored.TotalDevices)
	assert.Equal(t, 1.0, autoFlagCount(t)-before, "one session flagged")
}

func TestRegisterDevice_CustomThreshold(t *testing.T) {
	f := newFixture(t)
	f.validator = NewValidator(Config{DeviceThreshold: 2}, f.store.Sessions(), f.store.Tables(), nil)
	f.seed(t, "s1", "")

	f.validator.RegisterDevice(context.Background(), "s1", device("a"))
	assert.False(t, f.get(t, "s1").Flags.IsSuspicious)
	f.validator.RegisterDevice(context.Background(), "s1", device("b"))
	assert.True(t, f.get(t, "s1").Flags.IsSuspicious)
}

func TestTouchActivity(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")
	f.now = t0.Add(30 * time.Minute)

	f.validator.TouchActivity(context.Background(), "s1")
	assert.Equal(t, f.now, f.get(t, "s1").LastActivity)

	// Unknown sessions are logged, not surfaced
	f.validator.TouchActivity(context.Background(), "missing")
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "old-1", "")
	f.seed(t, "old-2", "")
	f.seed(t, "closed", "")
	require.NoError(t, f.store.Sessions().Close(ctx, "closed", "done", "admin", t0))

	fresh := domain.NewSession("fresh", "", 5, t0.Add(2*time.Hour), DefaultSessionTTL)
	require.NoError(t, f.store.Sessions().Create(ctx, fresh))

	f.now = t0.Add(DefaultSessionTTL + time.Minute)

	n, err := f.validator.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, domain.SessionExpired, f.get(t, "old-1").Status)
	assert.Equal(t, domain.SessionClosed, f.get(t, "closed").Status)
	assert.Equal(t, domain.SessionActive, f.get(t, "fresh").Status)

	n, err = f.validator.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Tables().Create(ctx, &domain.Table{ID: "table-4", TableNumber: 4, Status: domain.TableAvailable}))

	first, isNew, err := f.validator.StartSession(ctx, 4)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "table-4", first.TableID)
	assert.Equal(t, t0.Add(DefaultSessionTTL), first.ExpiryTime)

	table, err := f.store.Tables().Get(ctx, "table-4")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, table.CurrentSessionID)
	assert.Equal(t, domain.TableOccupied, table.Status)

	again, isNew, err := f.validator.StartSession(ctx, 4)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.SessionID, again.SessionID)

	// Past expiry the old session is expired and replaced
	f.now = t0.Add(DefaultSessionTTL + time.Minute)
	next, isNew, err := f.validator.StartSession(ctx, 4)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, first.SessionID, next.SessionID)
	assert.Equal(t, domain.SessionExpired, f.get(t, first.SessionID).Status)

	_, _, err = f.validator.StartSession(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrTableNotFound)
}
