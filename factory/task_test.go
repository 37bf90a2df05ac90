package factory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/factory"
)

func TestParseTask_Defaults(t *testing.T) {
	f := factory.NewTaskFactory()

	task, err := f.ParseTask(`{
		"description": "Verify nightly backups",
		"periodicity": "Daily",
		"start_date": "2024-01-01",
		"assigned_user_ids": ["alice", " "],
		"assigned_groups": ["ops"]
	}`)

	require.NoError(t, err)
	assert.NotEmpty(t, task.ID, "id generated")
	assert.Equal(t, checklist.Daily, task.Periodicity)
	assert.True(t, task.SkipWeekends)
	assert.True(t, task.SkipHolidays)
	assert.Equal(t, []checklist.UserID{"alice"}, task.AssignedUserIDs)
	assert.Equal(t, []string{"ops"}, task.AssignedGroups)
	assert.Nil(t, task.ActiveUntil)
}

func TestParseTask_ExplicitFlagsAndBounds(t *testing.T) {
	f := factory.NewTaskFactory()

	task, err := f.ParseTask(`{
		"id": "close",
		"description": "Year-end close",
		"periodicity": "yearly",
		"start_date": "2023-12-15",
		"end_date": "2024-01-15",
		"active_until": "2030-01-01",
		"skip_weekends": false,
		"skip_holidays": false
	}`)

	require.NoError(t, err)
	assert.Equal(t, checklist.TaskID("close"), task.ID)
	assert.Equal(t, "2024-01-15", task.EndDate.String())
	require.NotNil(t, task.ActiveUntil)
	assert.Equal(t, "2030-01-01", task.ActiveUntil.String())
	assert.False(t, task.SkipWeekends)
	assert.False(t, task.SkipHolidays)
}

func TestParseTask_ValidationErrors(t *testing.T) {
	f := factory.NewTaskFactory()
	cases := map[string]struct {
		json  string
		field string
	}{
		"unknown periodicity": {`{"description":"x","periodicity":"fortnightly","start_date":"2024-01-01"}`, "periodicity"},
		"missing description": {`{"periodicity":"daily","start_date":"2024-01-01"}`, "description"},
		"bad start date":      {`{"description":"x","periodicity":"daily","start_date":"01/02/2024"}`, "start_date"},
		"yearly without end":  {`{"description":"x","periodicity":"yearly","start_date":"2024-01-01"}`, "end_date"},
		"hno without group":   {`{"description":"x","periodicity":"hno","start_date":"2024-01-01"}`, "hno_group_id"},
		"active_until early":  {`{"description":"x","periodicity":"daily","start_date":"2024-01-10","active_until":"2024-01-01"}`, "active_until"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParseTask(tc.json)
			require.Error(t, err)
			assert.True(t, errors.Is(err, checklist.ErrInvalidTask))
			var ve *checklist.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestParseTask_MalformedJSON(t *testing.T) {
	_, err := factory.NewTaskFactory().ParseTask(`{"description":`)
	require.Error(t, err)
	assert.False(t, errors.Is(err, checklist.ErrInvalidTask))
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewTaskFactory()
	task, err := f.ParseTask(`{"id":"h1","description":"Night watch","periodicity":"hno","start_date":"2024-01-01","hno_group_id":"night","skip_weekends":false}`)
	require.NoError(t, err)

	again, err := f.FromJSON(f.ToJSON(*task))

	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID)
	assert.Equal(t, task.HnoGroupID, again.HnoGroupID)
	assert.Equal(t, task.SkipWeekends, again.SkipWeekends)
	assert.Equal(t, task.StartDate, again.StartDate)
}

func TestHnoGroupFromJSON(t *testing.T) {
	f := factory.NewTaskFactory()

	g, err := f.HnoGroupFromJSON(factory.HnoGroupJSON{Name: "Nights", Days: []int{1, 3, 5}, StartTime: "22:00", EndTime: "06:00"})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, g.Days)

	_, err = f.HnoGroupFromJSON(factory.HnoGroupJSON{Days: []int{7}, StartTime: "22:00", EndTime: "06:00"})
	assert.True(t, errors.Is(err, checklist.ErrInvalidTask))

	_, err = f.HnoGroupFromJSON(factory.HnoGroupJSON{Days: []int{1}, StartTime: "25:00", EndTime: "06:00"})
	assert.True(t, errors.Is(err, checklist.ErrInvalidTask))
}

func TestDelegationFromJSON(t *testing.T) {
	f := factory.NewTaskFactory()

	d, err := f.DelegationFromJSON(factory.DelegationJSON{TaskID: "t1", DelegateUserID: "bob", StartDate: "2024-03-14", EndDate: "2024-03-20"})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)

	_, err = f.DelegationFromJSON(factory.DelegationJSON{TaskID: "t1", DelegateUserID: "bob", StartDate: "2024-03-20", EndDate: "2024-03-14"})
	assert.True(t, errors.Is(err, checklist.ErrInvalidTask))
}
