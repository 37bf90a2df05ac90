/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data: a directory of users and groups, task definitions of every
	periodicity, coverage groups and delegations.

AVAILABLE SCENARIOS:

	operations-desk:  Daily, weekly, monthly and yearly checks for two teams
	night-coverage:   Custom-hours (HNO) night watch with a delegation

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create users, groups and coverage groups
 3. Create tasks via the task factory (same path as POST /api/tasks)
 4. Add delegations and schedule settings

Start dates are computed from the current date so the listing is never
empty.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "operations-desk"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - factory/task.go: Task JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "operations-desk",
		Name:        "Operations Desk",
		Description: "Daily, weekly, monthly and yearly checks split between the ops and network teams",
	},
	{
		ID:          "night-coverage",
		Name:        "Night Coverage",
		Description: "Weeknight custom-hours watch (22:00-06:00) with a one-week delegation",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var loader func(context.Context) error
	switch req.ScenarioID {
	case "operations-desk":
		loader = h.loadOperationsDeskScenario
	case "night-coverage":
		loader = h.loadNightCoverageScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := loader(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	if err := h.SyncHolidays(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to refresh holidays", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.log().WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	if err := h.SyncHolidays(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to refresh holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOperationsDeskScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	today := h.today()
	start := today.StartOfMonth().AddMonths(-1)
	yearStart := calendar.NewDate(today.Year(), time.December, 20)
	yearEnd := calendar.NewDate(today.Year()+1, time.January, 10)

	tasks := []string{
		fmt.Sprintf(`{
			"id": "backup-check",
			"description": "Verify nightly backup reports",
			"procedure_ref": "OPS-101",
			"periodicity": "daily",
			"start_date": %q,
			"assigned_groups": ["ops"]
		}`, start),
		fmt.Sprintf(`{
			"id": "firewall-review",
			"description": "Review firewall rule changes",
			"procedure_ref": "NET-204",
			"periodicity": "weekly",
			"start_date": %q,
			"assigned_groups": ["network"]
		}`, start),
		fmt.Sprintf(`{
			"id": "access-recert",
			"description": "Recertify privileged accounts",
			"procedure_ref": "SEC-12",
			"periodicity": "monthly",
			"start_date": %q,
			"assigned_user_ids": ["alice"]
		}`, start),
		fmt.Sprintf(`{
			"id": "year-end-close",
			"description": "Year-end capacity report",
			"periodicity": "yearly",
			"start_date": %q,
			"end_date": %q,
			"assigned_user_ids": ["alice", "bob"]
		}`, yearStart, yearEnd),
		fmt.Sprintf(`{
			"id": "coffee-machine",
			"description": "Descale the coffee machine",
			"periodicity": "weekly",
			"start_date": %q,
			"skip_holidays": false
		}`, start),
	}
	for _, js := range tasks {
		if err := h.createTaskFromJSON(ctx, js); err != nil {
			return err
		}
	}

	if err := h.Store.SaveScheduleConfig(ctx, checklist.ScheduleConfig{
		PerPeriodicity: map[checklist.Periodicity]checklist.TimeRange{
			checklist.Daily:   {Start: "08:00", End: "10:00"},
			checklist.Weekly:  {Start: "09:00", End: "17:00"},
			checklist.Monthly: {Start: "09:00", End: "18:00"},
		},
	}); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	_, err := h.Store.SaveHoliday(ctx, calendar.Holiday{
		Country: h.Country,
		Date:    today.AddDays(14),
		Name:    "Datacenter maintenance",
	})
	return err
}

func (h *Handler) loadNightCoverageScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	group, err := h.TaskFactory.HnoGroupFromJSON(factory.HnoGroupJSON{
		ID:        "weeknights",
		Name:      "Weeknights",
		Days:      []int{1, 2, 3, 4, 5},
		StartTime: "22:00",
		EndTime:   "06:00",
	})
	if err != nil {
		return err
	}
	if err := h.Store.SaveHnoGroup(ctx, *group); err != nil {
		return err
	}

	today := h.today()
	if err := h.createTaskFromJSON(ctx, fmt.Sprintf(`{
		"id": "night-watch",
		"description": "Night watch: check alerting console",
		"procedure_ref": "OPS-900",
		"periodicity": "hno",
		"start_date": %q,
		"hno_group_id": "weeknights",
		"skip_holidays": true,
		"assigned_groups": ["ops"]
	}`, today.AddDays(-14))); err != nil {
		return err
	}

	d, err := h.TaskFactory.DelegationFromJSON(factory.DelegationJSON{
		TaskID:         "night-watch",
		DelegateUserID: "carol",
		StartDate:      today.String(),
		EndDate:        today.AddDays(6).String(),
	})
	if err != nil {
		return err
	}
	return h.Store.SaveDelegation(ctx, *d)
}

// seedDirectory creates the demo users and groups shared by all scenarios.
func (h *Handler) seedDirectory(ctx context.Context) error {
	for _, g := range []checklist.Group{
		{ID: "g-ops", Name: "ops"},
		{ID: "g-network", Name: "network"},
	} {
		if err := h.Store.SaveGroup(ctx, g); err != nil {
			return err
		}
	}
	for _, u := range []checklist.User{
		{ID: "alice", Username: "alice", Fullname: "Alice Martin", Groups: []string{"ops"}},
		{ID: "bob", Username: "bob", Fullname: "Bob Leroy", Groups: []string{"network"}},
		{ID: "carol", Username: "carol", Fullname: "Carol Dubois", Groups: []string{"network"}},
	} {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) createTaskFromJSON(ctx context.Context, jsonStr string) error {
	task, err := h.TaskFactory.ParseTask(jsonStr)
	if err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return h.Store.SaveTask(ctx, *task)
}

func (h *Handler) today() calendar.Date {
	return h.Assembler.Calendar().Zone(h.Country).Today(h.Assembler.Now())
}
