package tablesession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qr-table-ordering/pkg/domain"
)

func TestConsole_CloseReleasesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Tables().Create(ctx, &domain.Table{ID: "table-7", TableNumber: 7, Status: domain.TableAvailable}))

	session, _, err := f.validator.StartSession(ctx, 7)
	require.NoError(t, err)

	f.now = t0.Add(time.Hour)
	require.NoError(t, f.console.Close(ctx, session.SessionID, "", "manager"))

	stored := f.get(t, session.SessionID)
	assert.Equal(t, domain.SessionClosed, stored.Status)
	assert.Equal(t, DefaultCloseReason, stored.ClosedReason)
	assert.Equal(t, "manager", stored.ClosedBy)
	require.NotNil(t, stored.ClosedAt)
	assert.Equal(t, f.now, *stored.ClosedAt)

	table, err := f.store.Tables().Get(ctx, "table-7")
	require.NoError(t, err)
	assert.Equal(t, domain.TableAvailable, table.Status)
	assert.Empty(t, table.CurrentSessionID)
}

func TestConsole_CloseStaleSessionKeepsNewerTableSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Tables().Create(ctx, &domain.Table{ID: "table-7", TableNumber: 7, Status: domain.TableAvailable}))

	first, _, err := f.validator.StartSession(ctx, 7)
	require.NoError(t, err)

	f.now = t0.Add(DefaultSessionTTL + time.Minute)
	second, isNew, err := f.validator.StartSession(ctx, 7)
	require.NoError(t, err)
	require.True(t, isNew)

	require.NoError(t, f.console.Close(ctx, first.SessionID, "", "manager"))
	assert.Equal(t, domain.SessionClosed, f.get(t, first.SessionID).Status)

	table, err := f.store.Tables().Get(ctx, "table-7")
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, table.CurrentSessionID)
	assert.Equal(t, domain.TableOccupied, table.Status)

	again, isNew, err := f.validator.StartSession(ctx, 7)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, second.SessionID, again.SessionID)
}

func TestConsole_CloseWithoutTable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")

	require.NoError(t, f.console.Close(context.Background(), "s1", "Guests left", "manager"))
	assert.Equal(t, "Guests left", f.get(t, "s1").ClosedReason)
}

func TestConsole_CloseAnyStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "s1", "")
	require.NoError(t, f.store.Sessions().MarkExpired(ctx, "s1", t0))

	require.NoError(t, f.console.Close(ctx, "s1", "", "manager"))
	assert.Equal(t, domain.SessionClosed, f.get(t, "s1").Status)
}

func TestConsole_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.console.Close(ctx, "missing", "", "manager"), domain.ErrSessionNotFound)
	assert.ErrorIs(t, f.console.Flag(ctx, "missing", "", "manager"), domain.ErrSessionNotFound)
	assert.ErrorIs(t, f.console.Unflag(ctx, "missing"), domain.ErrSessionNotFound)
}

func TestConsole_FlagAppendsReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "s1", "")

	require.NoError(t, f.console.Flag(ctx, "s1", "", "manager"))
	require.NoError(t, f.console.Flag(ctx, "s1", "Rude", "manager"))
	require.NoError(t, f.console.Flag(ctx, "s1", "Rude", "host"))

	stored := f.get(t, "s1")
	assert.True(t, stored.Flags.IsSuspicious)
	assert.True(t, stored.Flags.ManuallyFlagged)
	assert.False(t, stored.Flags.AutoFlagged)
	assert.Equal(t, "host", stored.Flags.FlaggedBy)
	assert.Equal(t, []string{DefaultFlagReason, "Rude", "Rude"}, stored.Flags.Reasons)
}

func TestConsole_UnflagKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "s1", "")
	require.NoError(t, f.store.Sessions().AutoFlag(ctx, "s1", domain.ReasonExcessiveDevices, t0))
	require.NoError(t, f.console.Flag(ctx, "s1", "Rude", "manager"))

	require.NoError(t, f.console.Unflag(ctx, "s1"))

	stored := f.get(t, "s1")
	assert.False(t, stored.Flags.IsSuspicious)
	assert.False(t, stored.Flags.ManuallyFlagged)
	assert.True(t, stored.Flags.AutoFlagged)
	assert.Equal(t, []string{domain.ReasonExcessiveDevices, "Rude"}, stored.Flags.Reasons)
}

func TestConsole_ListBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := f.store.Sessions()

	// Started at t0 and past expiry by the time the list runs
	f.seed(t, "stale", "")
	f.seed(t, "closed", "")
	require.NoError(t, sessions.Close(ctx, "closed", "done", "manager", t0))
	require.NoError(t, sessions.Create(ctx, domain.NewSession("live-1", "", 1, t0.Add(2*time.Hour), DefaultSessionTTL)))
	require.NoError(t, sessions.Create(ctx, domain.NewSession("live-2", "", 2, t0.Add(2*time.Hour+30*time.Minute), DefaultSessionTTL)))
	require.NoError(t, sessions.AutoFlag(ctx, "live-2", domain.ReasonExcessiveDevices, t0))

	f.now = t0.Add(3*time.Hour + time.Minute)

	ids := func(views []SessionView) []string {
		out := make([]string, len(views))
		for i, v := range views {
			out[i] = v.SessionID
		}
		return out
	}
	yes := true
	two := 2

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{name: "active", filter: ListFilter{Status: BucketActive}, want: []string{"live-2", "live-1"}},
		{name: "expired", filter: ListFilter{Status: BucketExpired}, want: []string{"stale"}},
		{name: "closed", filter: ListFilter{Status: BucketClosed}, want: []string{"closed"}},
		{name: "all", filter: ListFilter{Status: BucketAll}, want: []string{"live-2", "live-1", "stale", "closed"}},
		{name: "suspicious", filter: ListFilter{Status: BucketAll, Suspicious: &yes}, want: []string{"live-2"}},
		{name: "table number", filter: ListFilter{Status: BucketActive, TableNumber: &two}, want: []string{"live-2"}},
		{name: "limit", filter: ListFilter{Status: BucketActive, Limit: 1}, want: []string{"live-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views, stats, err := f.console.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Nil(t, stats)
			if tt.name == "all" {
				assert.ElementsMatch(t, tt.want, ids(views))
				return
			}
			assert.Equal(t, tt.want, ids(views))
		})
	}
}

func TestConsole_ListDuration(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1", "")
	f.now = t0.Add(47*time.Minute + 59*time.Second)

	views, _, err := f.console.List(context.Background(), ListFilter{Status: BucketActive})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 47, views[0].Duration)
}

func TestConsole_ListStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := f.store.Sessions()

	for _, id := range []string{"a", "b", "c"} {
		f.seed(t, id, "")
	}
	f.seed(t, "closed", "")
	require.NoError(t, sessions.Close(ctx, "closed", "", "manager", t0))

	// a: 2 devices, 1 order; b: 1 device, 1 order; c: idle but flagged
	for _, d := range []string{"a1", "a2"} {
		_, err := sessions.AddDevice(ctx, "a", domain.Device{Fingerprint: d, FirstSeen: t0, LastSeen: t0}, t0)
		require.NoError(t, err)
	}
	_, err := sessions.AddDevice(ctx, "b", domain.Device{Fingerprint: "b1", FirstSeen: t0, LastSeen: t0}, t0)
	require.NoError(t, err)
	require.NoError(t, sessions.RecordOrder(ctx, "a", t0))
	require.NoError(t, sessions.AddOrderAmount(ctx, "a", "a1", 12.5, t0))
	require.NoError(t, sessions.RecordOrder(ctx, "b", t0))
	require.NoError(t, sessions.AddOrderAmount(ctx, "b", "b1", 7.25, t0))
	require.NoError(t, f.console.Flag(ctx, "c", "", "manager"))

	_, stats, err := f.console.List(ctx, ListFilter{Status: BucketAll, IncludeStats: true})
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 3, stats.TotalDevices)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.InDelta(t, 19.75, stats.TotalRevenue, 0.001)
	assert.Equal(t, 1, stats.SuspiciousSessions)
	assert.Equal(t, 1.0, stats.AvgDevicesPerSession)
	assert.Equal(t, 0.7, stats.AvgOrdersPerSession)
}

func TestConsole_ListStatsEmpty(t *testing.T) {
	f := newFixture(t)

	_, stats, err := f.console.List(context.Background(), ListFilter{IncludeStats: true})
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, Stats{}, *stats)
}

func TestConsole_ListInvalidStatus(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.console.List(context.Background(), ListFilter{Status: "pending"})
	assert.ErrorIs(t, err, ErrInvalidStatusFilter)
}

func TestRoundTenth(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 0, want: 0},
		{in: 2.0 / 3.0, want: 0.7},
		{in: 1.25, want: 1.3},
		{in: 4.04, want: 4.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, roundTenth(tt.in))
	}
}
