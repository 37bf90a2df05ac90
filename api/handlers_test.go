/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Instance listing, query validation and the calendar feed
- Status set/clear with authorization mapping (400/403/404)
- Task, holiday and audit endpoints
- Dashboard aggregation
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/auditor"
	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	applog "github.com/warp/checklist-engine/internal/log"
	"github.com/warp/checklist-engine/recurrence"
	"github.com/warp/checklist-engine/store/sqlite"
)

// testNow is a Wednesday; Jan 1 is a French holiday and Jan 6-7 a weekend.
var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	handler *Handler
	router  http.Handler
	store   *sqlite.Store
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cal := calendar.NewService(nil).WithLogger(applog.Discard())
	exp := recurrence.New(cal)
	exp.Logger = applog.Discard()
	exp.Now = func() time.Time { return testNow }

	asm := assembler.New(store, exp)
	asm.Logger = applog.Discard()
	aud := auditor.New(asm, store)
	aud.Log = store
	aud.Logger = applog.Discard()

	h := NewHandler(store, asm, aud, "FR")
	h.Logger = applog.Discard()
	return &testEnv{handler: h, router: NewRouter(h, []string{"*"}), store: store}
}

// seed creates alice (ops), bob (network) and a daily ops task.
func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.SaveUser(ctx, checklist.User{ID: "alice", Username: "alice", Fullname: "Alice Martin", Groups: []string{"ops"}}))
	require.NoError(t, e.store.SaveUser(ctx, checklist.User{ID: "bob", Username: "bob", Fullname: "Bob Leroy", Groups: []string{"network"}}))
	require.NoError(t, e.store.SaveGroup(ctx, checklist.Group{ID: "g-ops", Name: "ops"}))
	require.NoError(t, e.store.SaveTask(ctx, checklist.Task{
		ID:             "t-daily",
		Description:    "Verify backups",
		Periodicity:    checklist.Daily,
		StartDate:      calendar.MustParseDate("2024-01-01"),
		SkipWeekends:   true,
		SkipHolidays:   true,
		AssignedGroups: []string{"ops"},
	}))
}

func (e *testEnv) do(t *testing.T, method, target, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const january = "/api/instances?from=2024-01-01&to=2024-01-10"

// =============================================================================
// INSTANCES
// =============================================================================

func TestListInstances(t *testing.T) {
	// GIVEN a daily task for the ops group
	env := setupTestHandler(t)
	env.seed(t)

	// WHEN alice (ops) and bob (network) list the first ten days of January
	rec := env.do(t, http.MethodGet, january, "alice", nil)
	bobRec := env.do(t, http.MethodGet, january, "bob", nil)

	// THEN alice sees every business day except the New Year holiday
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]InstanceDTO](t, rec)
	require.Len(t, list, 7)
	assert.Equal(t, "2024-01-01T23:00:00Z", list[0].Start)
	assert.Equal(t, "2024-01-02T22:59:00Z", list[0].End)
	assert.Equal(t, "missing", list[0].Status)
	assert.Equal(t, "pending", list[6].Status)
	assert.True(t, strings.HasPrefix(list[0].Key, "t-daily|"))
	assert.Equal(t, "Daily", list[0].PeriodicityLabel)
	assert.Equal(t, []string{"ops"}, list[0].Assignment.Groups)

	// AND bob sees nothing
	require.Equal(t, http.StatusOK, bobRec.Code)
	assert.Empty(t, decode[[]InstanceDTO](t, bobRec))
}

func TestListInstances_QueryValidation(t *testing.T) {
	env := setupTestHandler(t)
	env.seed(t)

	cases := map[string]struct {
		target string
		code   int
	}{
		"missing range":     {"/api/instances?from=2024-01-01", http.StatusBadRequest},
		"unknown status":    {january + "&status=done", http.StatusBadRequest},
		"unknown period":    {january + "&periodicity=hourly", http.StatusBadRequest},
		"bad delegated":     {january + "&is_delegated=maybe", http.StatusBadRequest},
		"range too long":    {"/api/instances?from=2023-01-01&to=2024-12-31", http.StatusBadRequest},
		"unparsable dates":  {"/api/instances?from=yesterday&to=2024-01-10", http.StatusOK},
		"inverted range":    {"/api/instances?from=2024-01-10&to=2024-01-01", http.StatusOK},
		"status filter ok":  {january + "&status=MISSING", http.StatusOK},
		"periodicity is ok": {january + "&periodicity=daily&include_future=true", http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tc.target, "alice", nil)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}

	// Fail-soft ranges answer with an empty list.
	rec := env.do(t, http.MethodGet, "/api/instances?from=yesterday&to=2024-01-10", "alice", nil)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = env.do(t, http.MethodGet, january+"&status=missing", "alice", nil)
	assert.Len(t, decode[[]InstanceDTO](t, rec), 6)
}

func TestInstancesFeed(t *testing.T) {
	env := setupTestHandler(t)
	env.seed(t)

	rec := env.do(t, http.MethodGet, "/api/instances.ics?from=2024-01-08&to=2024-01-10&user_id=alice", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "UID:t-daily|")
	assert.Equal(t, 3, strings.Count(body, "BEGIN:VEVENT"))
}

// =============================================================================
// STATUS
// =============================================================================

func todayKey(t *testing.T, env *testEnv) string {
	t.Helper()
	rec := env.do(t, http.MethodGet, "/api/instances?from=2024-01-10&to=2024-01-10", "alice", nil)
	list := decode[[]InstanceDTO](t, rec)
	require.Len(t, list, 1)
	return list[0].Key
}

func TestSetStatus_AndClear(t *testing.T) {
	// GIVEN today's pending instance
	env := setupTestHandler(t)
	env.seed(t)
	key := todayKey(t, env)

	// WHEN alice validates it
	rec := env.do(t, http.MethodPut, "/api/instances/status", "alice", StatusRequest{Key: key, Status: "validated", Comment: "all green"})

	// THEN the override is returned with its author
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[InstanceDTO](t, rec)
	assert.Equal(t, "validated", got.Status)
	assert.Equal(t, "all green", got.Comment)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, "Alice Martin", got.UpdatedBy.Name)
	assert.Equal(t, key, got.Key)

	// AND the listing shows it
	rec = env.do(t, http.MethodGet, "/api/instances?from=2024-01-10&to=2024-01-10&status=validated", "alice", nil)
	assert.Len(t, decode[[]InstanceDTO](t, rec), 1)

	// WHEN alice clears it
	rec = env.do(t, http.MethodDelete, "/api/instances/status", "alice", StatusRequest{Key: key})

	// THEN it is pending again
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[InstanceDTO](t, rec)
	assert.Equal(t, "pending", got.Status)
	assert.Nil(t, got.UpdatedBy)
}

func TestSetStatus_Errors(t *testing.T) {
	env := setupTestHandler(t)
	env.seed(t)
	key := todayKey(t, env)
	forged := checklist.NewInstanceKey("t-daily", testNow, testNow.Add(time.Hour)).String()

	cases := map[string]struct {
		user string
		req  StatusRequest
		code int
	}{
		"no caller":       {"", StatusRequest{Key: key, Status: "validated"}, http.StatusBadRequest},
		"malformed key":   {"alice", StatusRequest{Key: "nope", Status: "validated"}, http.StatusBadRequest},
		"pending status":  {"alice", StatusRequest{Key: key, Status: "pending"}, http.StatusBadRequest},
		"unknown status":  {"alice", StatusRequest{Key: key, Status: "done"}, http.StatusBadRequest},
		"not assigned":    {"bob", StatusRequest{Key: key, Status: "validated"}, http.StatusForbidden},
		"unknown user":    {"zed", StatusRequest{Key: key, Status: "validated"}, http.StatusNotFound},
		"forged instance": {"alice", StatusRequest{Key: forged, Status: "validated"}, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/api/instances/status", tc.user, tc.req)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

// =============================================================================
// TASKS
// =============================================================================

func TestTasks_CreateListDelete(t *testing.T) {
	env := setupTestHandler(t)

	// GIVEN a valid and an invalid definition
	valid := map[string]any{
		"id":          "t-weekly",
		"description": "Review alerts",
		"periodicity": "weekly",
		"start_date":  "2024-01-01",
	}
	invalid := map[string]any{
		"description": "Year end",
		"periodicity": "yearly",
		"start_date":  "2024-12-20",
	}

	// WHEN they are posted
	rec := env.do(t, http.MethodPost, "/api/tasks", "", valid)
	bad := env.do(t, http.MethodPost, "/api/tasks", "", invalid)

	// THEN only the valid one is stored
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	rec = env.do(t, http.MethodGet, "/api/tasks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[[]map[string]any](t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t-weekly", tasks[0]["id"])

	// AND deleting removes it once
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/tasks/t-weekly", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/tasks/t-weekly", "", nil).Code)
}

func TestDeleteTask_PurgesOverrides(t *testing.T) {
	env := setupTestHandler(t)
	env.seed(t)
	key := todayKey(t, env)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/instances/status", "alice", StatusRequest{Key: key, Status: "failed"}).Code)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/tasks/t-daily", "", nil).Code)

	overrides, err := env.store.ListOverrides(context.Background())
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidays_ShiftListing(t *testing.T) {
	// GIVEN a custom French holiday on Monday Jan 8
	env := setupTestHandler(t)
	env.seed(t)
	rec := env.do(t, http.MethodPost, "/api/holidays", "", CreateHolidayRequest{Country: "fr", Date: "2024-01-08", Name: "Site closure"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[HolidayDTO](t, rec)
	assert.Equal(t, "FR", created.Country)

	// WHEN alice lists the same range
	list := decode[[]InstanceDTO](t, env.do(t, http.MethodGet, january, "alice", nil))

	// THEN Jan 8 is gone
	assert.Len(t, list, 6)
	for _, inst := range list {
		assert.NotEqual(t, "2024-01-07T23:00:00Z", inst.Start)
	}

	// AND duplicates conflict, bad dates are rejected
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/holidays", "", CreateHolidayRequest{Country: "FR", Date: "2024-01-08", Name: "Site closure"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/holidays", "", CreateHolidayRequest{Date: "08/01/2024", Name: "x"}).Code)

	holidays := decode[[]HolidayDTO](t, env.do(t, http.MethodGet, "/api/holidays", "", nil))
	require.Len(t, holidays, 1)

	// WHEN the holiday is removed the instance comes back
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/holidays/"+created.ID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/holidays/"+created.ID, "", nil).Code)
	list = decode[[]InstanceDTO](t, env.do(t, http.MethodGet, january, "alice", nil))
	assert.Len(t, list, 7)
}

// =============================================================================
// ADMIN & DASHBOARD
// =============================================================================

func TestTriggerAudit(t *testing.T) {
	// GIVEN six ended instances without a status
	env := setupTestHandler(t)
	env.seed(t)

	// WHEN the audit is triggered twice
	rec := env.do(t, http.MethodPost, "/api/admin/audit", "", nil)
	again := env.do(t, http.MethodPost, "/api/admin/audit", "", nil)

	// THEN the first run writes them and the second writes nothing
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[AuditResultDTO](t, rec)
	assert.Equal(t, 6, first.RecordsWritten)
	assert.Equal(t, "2024-01-10", first.To)
	assert.Equal(t, 0, decode[AuditResultDTO](t, again).RecordsWritten)

	// AND both runs are recorded, most recent first
	runs := decode[[]AuditRunDTO](t, env.do(t, http.MethodGet, "/api/admin/audit/runs?limit=5", "", nil))
	require.Len(t, runs, 2)
	assert.Equal(t, "FR", runs[0].Country)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/admin/audit/runs?limit=x", "", nil).Code)
}

func TestDashboard(t *testing.T) {
	env := setupTestHandler(t)
	env.seed(t)
	key := todayKey(t, env)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/instances/status", "alice", StatusRequest{Key: key, Status: "validated"}).Code)

	rec := env.do(t, http.MethodGet, "/api/dashboard?from=2024-01-01&to=2024-01-10", "alice", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash := decode[DashboardDTO](t, rec)
	assert.Equal(t, 7, dash.Totals.Total)
	assert.Equal(t, 6, dash.Totals.Missing)
	assert.Equal(t, 1, dash.Totals.Validated)
	assert.Equal(t, "14.29", dash.Totals.CompletionRate)
	assert.Len(t, dash.Days, 7)
	assert.Empty(t, dash.AtRisk)
}
