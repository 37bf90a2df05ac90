/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state and that the
	resulting data derives instances:
	- Users, groups and tasks are created
	- Coverage groups and delegations resolve
	- Loading resets previous data
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/checklist"
)

func TestScenario_OperationsDesk(t *testing.T) {
	// GIVEN: an empty store
	env := setupTestHandler(t)
	ctx := context.Background()

	// WHEN: loading the scenario
	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "operations-desk"})

	// THEN: directory, tasks and schedule exist
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	users, err := env.store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	tasks, err := env.store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 5)

	has, err := env.store.HasScheduleConfig(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	holidays, err := env.store.ListHolidays(ctx)
	require.NoError(t, err)
	assert.Len(t, holidays, 1)

	// AND: alice sees the daily backup check in the 08:00-10:00 window
	list, err := env.handler.Assembler.List(ctx, assembler.Query{
		From: "2024-01-08", To: "2024-01-08", UserID: "alice", Country: "FR",
		Periodicity: checklist.Daily,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, checklist.TaskID("backup-check"), list[0].TaskID)
	assert.Equal(t, "2024-01-08T07:00:00Z", list[0].Start.Format("2006-01-02T15:04:05Z07:00"))

	current := decode[ScenarioDTO](t, env.do(t, http.MethodGet, "/api/scenarios/current", "", nil))
	assert.Equal(t, "operations-desk", current.ID)
}

func TestScenario_NightCoverage(t *testing.T) {
	env := setupTestHandler(t)
	ctx := context.Background()

	// GIVEN: a previously loaded scenario
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "operations-desk"}).Code)

	// WHEN: switching to night coverage
	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "night-coverage"})

	// THEN: only the night watch remains
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tasks, err := env.store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, checklist.Hno, tasks[0].Periodicity)

	groups, err := env.store.ListHnoGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	// AND: tonight's watch is delegated to carol
	list, err := env.handler.Assembler.List(ctx, assembler.Query{
		From: "2024-01-10", To: "2024-01-10", UserID: "carol", Country: "FR", IncludeFuture: true,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDelegated)
	assert.Equal(t, []checklist.UserID{"carol"}, list[0].Assignment.UserIDs)
	assert.Equal(t, "2024-01-10T21:00:00Z", list[0].Start.Format("2006-01-02T15:04:05Z07:00"))
}

func TestScenario_UnknownAndReset(t *testing.T) {
	env := setupTestHandler(t)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "operations-desk"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scenarios/reset", "", nil).Code)

	tasks, err := env.store.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)

	scenarios := decode[[]ScenarioDTO](t, env.do(t, http.MethodGet, "/api/scenarios", "", nil))
	assert.Len(t, scenarios, 2)
}
