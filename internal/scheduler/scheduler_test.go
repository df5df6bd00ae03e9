package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egcoder/telegram-ai-bot/internal/access"
	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/ledger"
	"github.com/egcoder/telegram-ai-bot/internal/testutil"
)

func TestNewScheduler(t *testing.T) {
	t.Run("with valid timezone", func(t *testing.T) {
		s := NewScheduler(Config{Timezone: "UTC"})
		if s.timezone != time.UTC {
			t.Errorf("timezone = %v, want UTC", s.timezone)
		}
	})

	t.Run("with invalid timezone uses local", func(t *testing.T) {
		s := NewScheduler(Config{Timezone: "Invalid/Timezone"})
		if s.timezone != time.Local {
			t.Errorf("timezone = %v, want Local", s.timezone)
		}
	})
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	noop := func(context.Context) error { return nil }

	t.Run("valid task", func(t *testing.T) {
		task := IntervalTask("sweep", "Sweep", time.Minute, noop)
		require.NoError(t, s.Register(task))

		got, ok := s.GetTask("sweep")
		require.True(t, ok)
		assert.True(t, got.Enabled)
		assert.Equal(t, DefaultTimeout, got.Timeout)
		require.NotNil(t, got.NextRun)
	})

	tests := []struct {
		name string
		task *Task
	}{
		{"missing id", IntervalTask("", "x", time.Minute, noop)},
		{"missing handler", IntervalTask("h", "x", time.Minute, nil)},
		{"zero interval", IntervalTask("z", "x", 0, noop)},
		{"duplicate", IntervalTask("sweep", "x", time.Minute, noop)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Register(tt.task))
		})
	}
}

func TestScheduler_CalculateNextRun(t *testing.T) {
	s := NewScheduler(Config{Timezone: "UTC"})
	s.now = func() time.Time { return testutil.RefNow } // 10:00 UTC

	tests := []struct {
		name     string
		schedule Schedule
		want     time.Time
	}{
		{"interval", Schedule{Type: ScheduleInterval, Interval: 15 * time.Minute}, testutil.RefNow.Add(15 * time.Minute)},
		{"daily later today", Schedule{Type: ScheduleDaily, At: "18:30"}, time.Date(2024, 1, 10, 18, 30, 0, 0, time.UTC)},
		{"daily already passed", Schedule{Type: ScheduleDaily, At: "03:00"}, time.Date(2024, 1, 11, 3, 0, 0, 0, time.UTC)},
		{"daily right now", Schedule{Type: ScheduleDaily, At: "10:00"}, time.Date(2024, 1, 11, 10, 0, 0, 0, time.UTC)},
		{"unknown", Schedule{Type: "cron"}, testutil.RefNow.Add(time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.calculateNextRun(tt.schedule)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	var runs atomic.Int32
	require.NoError(t, s.Register(IntervalTask("tick", "Tick", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})))

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start must fail")
	assert.True(t, s.GetStats().Started)

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	stats := s.GetStats()
	assert.False(t, stats.Started)
	assert.Equal(t, 0, stats.RunningTasks)

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after stop")

	s.Stop() // idempotent
}

func TestScheduler_RegisterWhileRunning(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	require.NoError(t, s.Start())
	defer s.Stop()

	done := make(chan struct{}, 1)
	require.NoError(t, s.Register(IntervalTask("late", "Late", 5*time.Millisecond, func(context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task registered after start never ran")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	ctx := testutil.TestContext(t)
	boom := errors.New("boom")
	fail := true

	require.NoError(t, s.Register(IntervalTask("flaky", "Flaky", time.Hour, func(context.Context) error {
		if fail {
			return boom
		}
		return nil
	})))

	err := s.RunNow(ctx, "flaky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	fail = false
	require.NoError(t, s.RunNow(ctx, "flaky"))

	got, _ := s.GetTask("flaky")
	assert.Equal(t, int64(2), got.RunCount)
	assert.Equal(t, int64(1), got.ErrorCount)
	assert.Empty(t, got.LastError)

	assert.Error(t, s.RunNow(ctx, "missing"))

	s.Unregister("flaky")
	_, ok := s.GetTask("flaky")
	assert.False(t, ok)
}

func TestScheduler_TaskTimeout(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	task := IntervalTask("slow", "Slow", time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	task.Timeout = 10 * time.Millisecond
	require.NoError(t, s.Register(task))

	err := s.RunNow(testutil.TestContext(t), "slow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

// =============================================================================
// Jobs
// =============================================================================

func TestInvitationSweep(t *testing.T) {
	ctx := testutil.TestContext(t)
	db := testutil.TestDB(t)
	store := ledger.NewStore(db.Conn())
	rec := ledger.NewRecorder(store)

	clock := testutil.NewClock(testutil.RefNow)
	admin := core.Identity("1")
	gate := access.NewGate(access.NewMemoryStore(), []core.Identity{admin}, access.WithClock(clock.Now))

	_, err := gate.IssueInvitation(ctx, admin, time.Hour)
	require.NoError(t, err)
	_, err = gate.IssueInvitation(ctx, admin, 2*time.Hour)
	require.NoError(t, err)
	_, err = gate.IssueInvitation(ctx, admin, 0)
	require.NoError(t, err)

	sweep := InvitationSweep(gate, rec)

	// nothing expired yet, nothing recorded
	require.NoError(t, sweep(ctx))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(90 * time.Minute)
	require.NoError(t, sweep(ctx))

	entries, err := store.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "invitation.purged", entries[0].Action)

	pending, err := gate.ListPending(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// a nil recorder only purges
	clock.Advance(time.Hour)
	require.NoError(t, InvitationSweep(gate, nil)(ctx))
	pending, err = gate.ListPending(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

type purgerFunc func(ctx context.Context) (int, error)

func (f purgerFunc) PurgeExpired(ctx context.Context) (int, error) { return f(ctx) }

type verifierFunc func(ctx context.Context) error

func (f verifierFunc) VerifyChain(ctx context.Context) error { return f(ctx) }

func TestJobs_Errors(t *testing.T) {
	ctx := testutil.TestContext(t)
	boom := errors.New("store down")

	err := InvitationSweep(purgerFunc(func(context.Context) (int, error) { return 0, boom }), nil)(ctx)
	assert.ErrorIs(t, err, boom)

	err = LedgerVerify(verifierFunc(func(context.Context) error { return boom }))(ctx)
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, LedgerVerify(verifierFunc(func(context.Context) error { return nil }))(ctx))
}
