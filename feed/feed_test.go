package feed_test

import (
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/feed"
)

func TestBuild_RoundTripsThroughParser(t *testing.T) {
	// GIVEN two instances, one validated
	start := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	list := []checklist.Instance{
		{
			TaskID: "t1", Periodicity: checklist.Daily, Description: "Check backups", ProcedureRef: "PRC-1",
			Start: start, End: start.Add(10 * time.Hour), Status: checklist.StatusValidated,
			Assignment: checklist.Assignment{Usernames: []string{"alice"}, Fullnames: []string{""}},
		},
		{
			TaskID: "t2", Periodicity: checklist.Weekly,
			Start: start, End: start.Add(96 * time.Hour), Status: checklist.StatusPending,
		},
	}

	// WHEN rendering and parsing back
	out := feed.Build("Ops checklist", list, start)
	cal, err := ics.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)

	// THEN every instance is an event keyed by its instance key
	events := cal.Events()
	require.Len(t, events, 2)
	assert.Equal(t, list[0].Key().String(), events[0].Id())
	assert.Equal(t, "Check backups", events[0].GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, "t2", events[1].GetProperty(ics.ComponentPropertySummary).Value)

	gotStart, err := events[0].GetStartAt()
	require.NoError(t, err)
	assert.True(t, gotStart.Equal(start))
	assert.Contains(t, out, "VALIDATED")
	assert.Contains(t, out, "Ops checklist")
}
