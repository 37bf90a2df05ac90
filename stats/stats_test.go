package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/stats"
)

func inst(id string, start, end time.Time, s checklist.Status) checklist.Instance {
	return checklist.Instance{TaskID: checklist.TaskID(id), Start: start, End: end, Status: s}
}

func TestSummarize_PerDayCountsAndRate(t *testing.T) {
	day1 := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	list := []checklist.Instance{
		inst("a", day1, day1.Add(time.Hour), checklist.StatusValidated),
		inst("b", day1, day1.Add(time.Hour), checklist.StatusFailed),
		inst("c", day1, day1.Add(time.Hour), checklist.StatusMissing),
		inst("d", day2, day2.Add(time.Hour), checklist.StatusValidated),
	}

	s := stats.Summarize(list, calendar.UTC, day2.Add(2*time.Hour), 0)

	require.Len(t, s.Days, 2)
	assert.Equal(t, "2024-01-15", s.Days[0].Date.String())
	assert.Equal(t, 3, s.Days[0].Total)
	assert.Equal(t, 1, s.Days[0].Failed)
	assert.Equal(t, "33.33", s.Days[0].CompletionRate().String())
	assert.Equal(t, "100", s.Days[1].CompletionRate().String())
	assert.Equal(t, 4, s.Totals.Total)
	assert.Equal(t, "50", s.Totals.CompletionRate().String())
}

func TestSummarize_EmptyRateIsZero(t *testing.T) {
	s := stats.Summarize(nil, calendar.UTC, time.Now(), time.Hour)
	assert.Empty(t, s.Days)
	assert.True(t, s.Totals.CompletionRate().IsZero())
}

func TestSummarize_AtRisk(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	list := []checklist.Instance{
		inst("soon", now.Add(-time.Hour), now.Add(30*time.Minute), checklist.StatusPending),
		inst("later", now.Add(-time.Hour), now.Add(5*time.Hour), checklist.StatusPending),
		inst("done", now.Add(-time.Hour), now.Add(30*time.Minute), checklist.StatusValidated),
		inst("future", now.Add(10*time.Minute), now.Add(40*time.Minute), checklist.StatusPending),
	}

	s := stats.Summarize(list, calendar.UTC, now, time.Hour)

	require.Len(t, s.AtRisk, 1)
	assert.Equal(t, checklist.TaskID("soon"), s.AtRisk[0].TaskID)
}
