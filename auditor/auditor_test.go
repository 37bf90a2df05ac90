package auditor_test

import (
	"context"
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

func setup(t *testing.T, now time.Time) (*auditor.Auditor, *assembler.Assembler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.AddUser(checklist.User{ID: "alice", Username: "alice", Fullname: "Alice Martin"})

	exp := recurrence.New(calendar.NewService(nil).WithLogger(applog.Discard()))
	exp.Logger = applog.Discard()
	exp.Now = func() time.Time { return now }

	asm := assembler.New(mem, exp)
	asm.Logger = applog.Discard()

	a := auditor.New(asm, mem)
	a.Log = mem
	a.Logger = applog.Discard()
	return a, asm, mem
}

func TestAuditor_WritesMissingForPastDueInstances(t *testing.T) {
	// GIVEN a daily task started five days ago, now mid-morning in Paris
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	a, _, mem := setup(t, now)
	require.NoError(t, mem.SaveTask(context.Background(), checklist.Task{
		ID: "t1", Periodicity: checklist.Daily, StartDate: calendar.MustParseDate("2024-01-05"),
	}))

	// WHEN the auditor runs
	result, err := a.Run(context.Background(), "FR")

	// THEN the five finished days (05..09) are persisted as missing, today is not
	require.NoError(t, err)
	assert.Equal(t, 1, result.TasksScanned)
	assert.Equal(t, 6, result.InstancesExamined)
	assert.Equal(t, 5, result.RecordsWritten)

	overrides, err := mem.ListOverrides(context.Background())
	require.NoError(t, err)
	require.Len(t, overrides, 5)
	for _, o := range overrides {
		assert.Equal(t, checklist.StatusMissing, o.Status)
		assert.Equal(t, checklist.SystemUser, o.UpdatedBy.UserID)
	}
}

func TestAuditor_NeverClobbersManualStatus(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	a, asm, mem := setup(t, now)
	ctx := context.Background()
	require.NoError(t, mem.SaveTask(ctx, checklist.Task{
		ID: "t1", Periodicity: checklist.Daily, StartDate: calendar.MustParseDate("2024-01-08"),
	}))

	list, err := asm.List(ctx, assembler.Query{From: "2024-01-08", To: "2024-01-08", Country: "FR"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = asm.SetStatus(ctx, list[0].Key(), "alice", checklist.StatusValidated, "", "FR")
	require.NoError(t, err)

	result, err := a.Run(ctx, "FR")
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsWritten, "only 2024-01-09")

	o, err := mem.GetOverride(ctx, list[0].Key())
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, checklist.StatusValidated, o.Status)
}

func TestAuditor_IsIdempotent(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	a, _, mem := setup(t, now)
	ctx := context.Background()
	require.NoError(t, mem.SaveTask(ctx, checklist.Task{
		ID: "t1", Periodicity: checklist.Daily, StartDate: calendar.MustParseDate("2024-01-08"),
	}))

	first, err := a.Run(ctx, "FR")
	require.NoError(t, err)
	second, err := a.Run(ctx, "FR")
	require.NoError(t, err)

	assert.Equal(t, 2, first.RecordsWritten)
	assert.Equal(t, 0, second.RecordsWritten)

	runs, err := mem.ListAuditRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0].RecordsWritten, "most recent first")
	assert.Equal(t, "FR", runs[0].Country)
}

func TestAuditor_RespectsLookback(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _, mem := setup(t, now)
	a.LookbackDays = 3
	ctx := context.Background()
	require.NoError(t, mem.SaveTask(ctx, checklist.Task{
		ID: "t1", Periodicity: checklist.Daily, StartDate: calendar.MustParseDate("2024-01-01"),
	}))

	result, err := a.Run(ctx, "FR")

	require.NoError(t, err)
	assert.Equal(t, 3, result.RecordsWritten)
	assert.Equal(t, "2024-02-27", result.Period.Start.String())
}
