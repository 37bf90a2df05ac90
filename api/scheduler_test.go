package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/auditor"
	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/checklist/store"
	applog "github.com/warp/checklist-engine/internal/log"
	"github.com/warp/checklist-engine/recurrence"
)

type recordingNotifier struct {
	sent   []Reminder
	fail   bool
	during func()
}

func (n *recordingNotifier) Notify(_ context.Context, r Reminder) error {
	if n.during != nil {
		n.during()
	}
	if n.fail {
		return errors.New("smtp down")
	}
	n.sent = append(n.sent, r)
	return nil
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *store.Memory, *recordingNotifier) {
	t.Helper()
	mem := store.NewMemory()
	mem.AddUser(checklist.User{ID: "alice", Username: "alice", Fullname: "Alice Martin"})

	cal := calendar.NewService(nil).WithLogger(applog.Discard())
	exp := recurrence.New(cal)
	exp.Logger = applog.Discard()
	exp.Now = func() time.Time { return now }
	asm := assembler.New(mem, exp)
	asm.Logger = applog.Discard()
	aud := auditor.New(asm, mem)
	aud.Logger = applog.Discard()

	s := NewScheduler(asm, aud, "FR")
	s.Logger = applog.Discard()
	n := &recordingNotifier{}
	s.Notifier = n
	return s, mem, n
}

func TestRemindNow_EndingSoon(t *testing.T) {
	// GIVEN a daily task whose window closes at 23:59 Paris (22:59Z)
	now := time.Date(2024, 1, 10, 22, 40, 0, 0, time.UTC)
	s, mem, n := newTestScheduler(t, now)
	require.NoError(t, mem.SaveTask(context.Background(), checklist.Task{
		ID: "t1", Description: "Close the shift", Periodicity: checklist.Daily,
		StartDate: calendar.MustParseDate("2024-01-01"), SkipWeekends: true, SkipHolidays: true,
		AssignedUserIDs: []checklist.UserID{"alice"},
	}))

	// WHEN the scan runs twice
	first, err := s.RemindNow(context.Background())
	require.NoError(t, err)
	second, err := s.RemindNow(context.Background())
	require.NoError(t, err)

	// THEN exactly one "ending" reminder goes to alice
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	require.Len(t, n.sent, 1)
	assert.Equal(t, ReminderEnding, n.sent[0].Kind)
	assert.Equal(t, []string{"alice"}, n.sent[0].Recipients)
}

func TestRemindNow_NothingDue(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	s, mem, n := newTestScheduler(t, now)
	require.NoError(t, mem.SaveTask(context.Background(), checklist.Task{
		ID: "t1", Description: "Close the shift", Periodicity: checklist.Daily,
		StartDate: calendar.MustParseDate("2024-01-01"), SkipWeekends: true, SkipHolidays: true,
	}))

	sent, err := s.RemindNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, n.sent)
}

func TestRemindNow_NotifierFailureRetries(t *testing.T) {
	now := time.Date(2024, 1, 10, 22, 40, 0, 0, time.UTC)
	s, mem, n := newTestScheduler(t, now)
	require.NoError(t, mem.SaveTask(context.Background(), checklist.Task{
		ID: "t1", Description: "Close the shift", Periodicity: checklist.Daily,
		StartDate: calendar.MustParseDate("2024-01-01"), AssignedGroups: []string{"ops"},
	}))

	// GIVEN a failing notifier, nothing is marked as sent
	n.fail = true
	sent, err := s.RemindNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	// WHEN it recovers the reminder goes out
	n.fail = false
	sent, err = s.RemindNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"ops"}, n.sent[0].Recipients)
}

func TestRemindNow_NotifiesWithoutHoldingLock(t *testing.T) {
	now := time.Date(2024, 1, 10, 22, 40, 0, 0, time.UTC)
	s, mem, n := newTestScheduler(t, now)
	require.NoError(t, mem.SaveTask(context.Background(), checklist.Task{
		ID: "t1", Description: "Close the shift", Periodicity: checklist.Daily,
		StartDate: calendar.MustParseDate("2024-01-01"),
	}))

	// GIVEN a notifier that needs the scheduler lock while it runs
	locked := false
	n.during = func() {
		if s.mu.TryLock() {
			locked = true
			s.mu.Unlock()
		}
	}

	// WHEN a reminder goes out
	sent, err := s.RemindNow(context.Background())

	// THEN Start/Stop would not have been blocked by the notification
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, locked)
}

func TestReminderFor(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	inst := func(start, end time.Duration) checklist.Instance {
		return checklist.Instance{Start: now.Add(start), End: now.Add(end)}
	}

	kind, due := reminderFor(inst(10*time.Minute, time.Hour), now, 30*time.Minute)
	assert.True(t, due)
	assert.Equal(t, ReminderStarting, kind)

	_, due = reminderFor(inst(time.Hour, 2*time.Hour), now, 30*time.Minute)
	assert.False(t, due)

	kind, due = reminderFor(inst(-time.Hour, 20*time.Minute), now, 30*time.Minute)
	assert.True(t, due)
	assert.Equal(t, ReminderEnding, kind)

	_, due = reminderFor(inst(-2*time.Hour, -time.Hour), now, 30*time.Minute)
	assert.False(t, due)
}

func TestScheduler_StartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Now())

	s.AuditSpec = "not a cron spec"
	assert.Error(t, s.Start())

	s.AuditSpec = DefaultAuditSpec
	s.ReminderSpec = ""
	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	s.Stop()
	s.Stop()
}
