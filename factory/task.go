/*
Package factory provides JSON to Go task definition conversion.

PURPOSE:
  Converts JSON task definitions into checklist.Task values. The admin API
  and the demo scenarios both describe tasks in JSON; the factory validates
  them and fills the defaults so the expander only ever sees well-formed
  definitions.

JSON SCHEMA:
  {
    "id": "backup-check",
    "description": "Verify nightly backups",
    "procedure_ref": "PRC-012",
    "periodicity": "daily",
    "start_date": "2024-01-01",
    "end_date": "2024-01-15",        // yearly only
    "active_until": "2024-12-31",    // optional
    "skip_weekends": true,           // default true
    "skip_holidays": true,           // default true
    "hno_group_id": "night",         // hno only
    "assigned_user_ids": ["alice"],
    "assigned_groups": ["ops"]
  }

VALIDATION:
  - periodicity must be known
  - start_date required; every date must be YYYY-MM-DD
  - yearly requires end_date, hno requires hno_group_id
  - active_until may not precede start_date
  Failures are *checklist.ValidationError (errors.Is ErrInvalidTask).

USAGE:
  f := factory.NewTaskFactory()
  task, err := f.ParseTask(jsonString)

SEE ALSO:
  - checklist/types.go: Task
  - api/scenarios.go: demo task definitions
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TaskJSON is the JSON representation of a task.
type TaskJSON struct {
	ID              string   `json:"id,omitempty"`
	Description     string   `json:"description"`
	ProcedureRef    string   `json:"procedure_ref,omitempty"`
	Periodicity     string   `json:"periodicity"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date,omitempty"`
	ActiveUntil     string   `json:"active_until,omitempty"`
	SkipWeekends    *bool    `json:"skip_weekends,omitempty"` // default true
	SkipHolidays    *bool    `json:"skip_holidays,omitempty"` // default true
	HnoGroupID      string   `json:"hno_group_id,omitempty"`
	AssignedUserIDs []string `json:"assigned_user_ids,omitempty"`
	AssignedGroups  []string `json:"assigned_groups,omitempty"`
}

// HnoGroupJSON is the JSON representation of a coverage group.
type HnoGroupJSON struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Days      []int  `json:"days"` // 0 = Sunday .. 6 = Saturday
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// DelegationJSON is the JSON representation of a delegation.
type DelegationJSON struct {
	ID             string `json:"id,omitempty"`
	TaskID         string `json:"task_id"`
	DelegateUserID string `json:"delegate_user_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
}

// =============================================================================
// TASK FACTORY
// =============================================================================

// TaskFactory converts JSON definitions to domain values.
type TaskFactory struct {
	Now func() time.Time
}

// NewTaskFactory creates a new task factory.
func NewTaskFactory() *TaskFactory {
	return &TaskFactory{Now: time.Now}
}

// ParseTask parses a JSON string into a Task.
func (f *TaskFactory) ParseTask(jsonStr string) (*checklist.Task, error) {
	var tj TaskJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return nil, fmt.Errorf("failed to parse task JSON: %w", err)
	}
	return f.FromJSON(tj)
}

// FromJSON validates tj and converts it to a Task. A missing id is
// generated.
func (f *TaskFactory) FromJSON(tj TaskJSON) (*checklist.Task, error) {
	p := checklist.Periodicity(strings.ToLower(strings.TrimSpace(tj.Periodicity)))
	if !p.Valid() {
		return nil, &checklist.ValidationError{Field: "periodicity", Message: fmt.Sprintf("unknown value %q", tj.Periodicity)}
	}
	if strings.TrimSpace(tj.Description) == "" {
		return nil, &checklist.ValidationError{Field: "description", Message: "required"}
	}

	start, err := requiredDate("start_date", tj.StartDate)
	if err != nil {
		return nil, err
	}

	task := &checklist.Task{
		ID:           checklist.TaskID(tj.ID),
		Description:  strings.TrimSpace(tj.Description),
		ProcedureRef: strings.TrimSpace(tj.ProcedureRef),
		Periodicity:  p,
		StartDate:    start,
		SkipWeekends: boolOr(tj.SkipWeekends, true),
		SkipHolidays: boolOr(tj.SkipHolidays, true),
	}
	if task.ID == "" {
		task.ID = checklist.TaskID(uuid.NewString())
	}

	switch p {
	case checklist.Yearly:
		end, err := requiredDate("end_date", tj.EndDate)
		if err != nil {
			return nil, err
		}
		task.EndDate = end
	case checklist.Hno:
		if tj.HnoGroupID == "" {
			return nil, &checklist.ValidationError{Field: "hno_group_id", Message: "required for hno tasks"}
		}
		task.HnoGroupID = checklist.HnoGroupID(tj.HnoGroupID)
	}

	if tj.ActiveUntil != "" {
		until, err := requiredDate("active_until", tj.ActiveUntil)
		if err != nil {
			return nil, err
		}
		if until.Before(start) {
			return nil, &checklist.ValidationError{Field: "active_until", Message: "before start_date"}
		}
		task.ActiveUntil = &until
	}

	for _, id := range tj.AssignedUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			task.AssignedUserIDs = append(task.AssignedUserIDs, checklist.UserID(id))
		}
	}
	for _, g := range tj.AssignedGroups {
		if g = strings.TrimSpace(g); g != "" {
			task.AssignedGroups = append(task.AssignedGroups, g)
		}
	}

	now := f.now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	return task, nil
}

// ToJSON converts a Task back to its JSON form.
func (f *TaskFactory) ToJSON(task checklist.Task) TaskJSON {
	tj := TaskJSON{
		ID:           string(task.ID),
		Description:  task.Description,
		ProcedureRef: task.ProcedureRef,
		Periodicity:  string(task.Periodicity),
		StartDate:    task.StartDate.String(),
		SkipWeekends: &task.SkipWeekends,
		SkipHolidays: &task.SkipHolidays,
		HnoGroupID:   string(task.HnoGroupID),
	}
	if !task.EndDate.IsZero() {
		tj.EndDate = task.EndDate.String()
	}
	if task.ActiveUntil != nil {
		tj.ActiveUntil = task.ActiveUntil.String()
	}
	for _, id := range task.AssignedUserIDs {
		tj.AssignedUserIDs = append(tj.AssignedUserIDs, string(id))
	}
	tj.AssignedGroups = append(tj.AssignedGroups, task.AssignedGroups...)
	return tj
}

// HnoGroupFromJSON validates a coverage group definition.
func (f *TaskFactory) HnoGroupFromJSON(gj HnoGroupJSON) (*checklist.HnoGroup, error) {
	if _, err := calendar.ParseClock(gj.StartTime); err != nil {
		return nil, &checklist.ValidationError{Field: "start_time", Message: err.Error()}
	}
	if _, err := calendar.ParseClock(gj.EndTime); err != nil {
		return nil, &checklist.ValidationError{Field: "end_time", Message: err.Error()}
	}
	g := &checklist.HnoGroup{
		ID:        checklist.HnoGroupID(gj.ID),
		Name:      gj.Name,
		StartTime: gj.StartTime,
		EndTime:   gj.EndTime,
	}
	if g.ID == "" {
		g.ID = checklist.HnoGroupID(uuid.NewString())
	}
	for _, day := range gj.Days {
		if day < 0 || day > 6 {
			return nil, &checklist.ValidationError{Field: "days", Message: fmt.Sprintf("weekday %d out of range 0-6", day)}
		}
		g.Days = append(g.Days, time.Weekday(day))
	}
	return g, nil
}

// DelegationFromJSON validates a delegation definition.
func (f *TaskFactory) DelegationFromJSON(dj DelegationJSON) (*checklist.Delegation, error) {
	if dj.TaskID == "" {
		return nil, &checklist.ValidationError{Field: "task_id", Message: "required"}
	}
	if dj.DelegateUserID == "" {
		return nil, &checklist.ValidationError{Field: "delegate_user_id", Message: "required"}
	}
	start, err := requiredDate("start_date", dj.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := requiredDate("end_date", dj.EndDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, &checklist.ValidationError{Field: "end_date", Message: "before start_date"}
	}
	d := &checklist.Delegation{
		ID:             checklist.DelegationID(dj.ID),
		TaskID:         checklist.TaskID(dj.TaskID),
		DelegateUserID: checklist.UserID(dj.DelegateUserID),
		StartDate:      start,
		EndDate:        end,
	}
	if d.ID == "" {
		d.ID = checklist.DelegationID(uuid.NewString())
	}
	return d, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func (f *TaskFactory) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func requiredDate(field, s string) (calendar.Date, error) {
	if strings.TrimSpace(s) == "" {
		return calendar.Date{}, &checklist.ValidationError{Field: field, Message: "required"}
	}
	d, err := calendar.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return calendar.Date{}, &checklist.ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return d, nil
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}
