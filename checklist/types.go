/*
Package checklist provides the domain model of the recurring checklist engine.

PURPOSE:
  Shared types between the expander, the assembler, the auditor and the
  stores: task definitions, coverage (hno) groups, delegations, derived
  instances, their structured keys, and persisted status overrides.

KEY CONCEPTS IN THIS FILE (types.go):
  - Task: an abstract recurring definition (periodicity + bounds + skip rules)
  - Instance: one concrete, time-boxed occurrence of a task. Derived on every
    read, never stored.
  - InstanceKey: (task id, start instant, end instant). Identity of an
    instance and the key of its StatusOverride.
  - StatusOverride: the only persisted per-occurrence state.

DESIGN PRINCIPLES:
  1. Derivation: instances are recomputed from tasks on each call
  2. Stable identity: the same task and window always derive the same keys
  3. Overlay: a stored override wins over the computed default status

SEE ALSO:
  - errors.go: sentinel and structured errors
  - store.go: persistence ports
  - recurrence/expander.go: builds instances from tasks
*/
package checklist

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/checklist-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	TaskID       string
	UserID       string
	GroupID      string
	HnoGroupID   string
	DelegationID string
)

// SystemUser is recorded as the author of auditor-written overrides.
const SystemUser UserID = "system"

// =============================================================================
// PERIODICITY
// =============================================================================

type Periodicity string

const (
	Daily   Periodicity = "daily"
	Weekly  Periodicity = "weekly"
	Monthly Periodicity = "monthly"
	Yearly  Periodicity = "yearly"
	Hno     Periodicity = "hno"
)

// Periodicities lists the supported values in display order.
var Periodicities = []Periodicity{Daily, Weekly, Monthly, Yearly, Hno}

// Valid reports whether p is a known periodicity.
func (p Periodicity) Valid() bool {
	for _, known := range Periodicities {
		if p == known {
			return true
		}
	}
	return false
}

// Label is the human label matched by free-text search.
func (p Periodicity) Label() string {
	switch p {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	case Hno:
		return "Custom hours (HNO)"
	default:
		return string(p)
	}
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusFailed    Status = "failed"
	StatusMissing   Status = "missing"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusFailed, StatusMissing:
		return true
	}
	return false
}

// Settable reports whether s may be written as an override. Pending is the
// computed default and is reached by clearing the override instead.
func (s Status) Settable() bool {
	return s == StatusValidated || s == StatusFailed || s == StatusMissing
}

// =============================================================================
// TASK DEFINITIONS
// =============================================================================

// Task is a recurring checklist definition.
type Task struct {
	ID           TaskID
	Description  string
	ProcedureRef string
	Periodicity  Periodicity

	StartDate   calendar.Date
	EndDate     calendar.Date  // yearly only: anchor month/day of the window close
	ActiveUntil *calendar.Date // optional hard stop

	SkipWeekends bool
	SkipHolidays bool

	HnoGroupID HnoGroupID

	AssignedUserIDs []UserID
	AssignedGroups  []string // group names

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Unassigned reports whether the task is open to everyone.
func (t Task) Unassigned() bool {
	return len(t.AssignedUserIDs) == 0 && len(t.AssignedGroups) == 0
}

// HnoGroup is a custom fixed-hours coverage rule.
type HnoGroup struct {
	ID        HnoGroupID
	Name      string
	Days      []time.Weekday // 0 = Sunday .. 6 = Saturday
	StartTime string         // HH:MM local
	EndTime   string         // HH:MM local
}

// HasDay reports whether wd is part of the coverage days.
func (g HnoGroup) HasDay(wd time.Weekday) bool {
	for _, d := range g.Days {
		if d == wd {
			return true
		}
	}
	return false
}

// Delegation temporarily hands a task to another user.
type Delegation struct {
	ID             DelegationID
	TaskID         TaskID
	DelegateUserID UserID
	StartDate      calendar.Date
	EndDate        calendar.Date
}

// Covers reports whether d is within the inclusive delegation range.
func (d Delegation) Covers(day calendar.Date) bool {
	return calendar.Period{Start: d.StartDate, End: d.EndDate}.Contains(day)
}

// User is the directory entry used for name resolution and visibility.
type User struct {
	ID       UserID
	Username string
	Fullname string
	Groups   []string // group names
}

// InGroup reports whether the user belongs to the named group.
func (u User) InGroup(name string) bool {
	for _, g := range u.Groups {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}

// Group is a named set of users.
type Group struct {
	ID   GroupID
	Name string
}

// =============================================================================
// SCHEDULE CONFIGURATION
// =============================================================================

// TimeRange is a local start/end time of day pair (HH:MM).
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// ScheduleConfig sets the time-of-day window per periodicity. Either Global
// applies to every periodicity, or PerPeriodicity gives one pair each.
type ScheduleConfig struct {
	Global         *TimeRange                `json:"global,omitempty" yaml:"global,omitempty"`
	PerPeriodicity map[Periodicity]TimeRange `json:"per_periodicity,omitempty" yaml:"per_periodicity,omitempty"`
}

// For returns the start/end clocks for p, defaulting to 00:00-23:59.
func (c ScheduleConfig) For(p Periodicity) (calendar.Clock, calendar.Clock) {
	r := TimeRange{}
	if c.Global != nil {
		r = *c.Global
	} else if pr, ok := c.PerPeriodicity[p]; ok {
		r = pr
	}
	return calendar.ParseClockOr(r.Start, calendar.StartOfDay), calendar.ParseClockOr(r.End, calendar.EndOfDay)
}

// =============================================================================
// INSTANCES
// =============================================================================

// Assignment is the responsibility snapshot of one instance.
type Assignment struct {
	UserIDs   []UserID `json:"user_ids"`
	Usernames []string `json:"usernames"`
	Fullnames []string `json:"fullnames"`
	Groups    []string `json:"groups"`
}

// Empty reports whether nobody in particular is responsible.
func (a Assignment) Empty() bool {
	return len(a.UserIDs) == 0 && len(a.Groups) == 0
}

// Includes reports whether u is responsible under this snapshot: directly
// assigned, member of an assigned group, or the snapshot is open to all.
func (a Assignment) Includes(u User) bool {
	if a.Empty() {
		return true
	}
	for _, id := range a.UserIDs {
		if id == u.ID {
			return true
		}
	}
	for _, g := range a.Groups {
		if u.InGroup(g) {
			return true
		}
	}
	return false
}

// Instance is one concrete occurrence of a task.
type Instance struct {
	TaskID       TaskID
	Periodicity  Periodicity
	Description  string
	ProcedureRef string

	Start time.Time // UTC
	End   time.Time // UTC

	Status    Status
	Comment   string
	UpdatedBy *Actor
	UpdatedAt *time.Time

	Assignment  Assignment
	IsDelegated bool
}

// Key returns the structured identity of the instance.
func (i Instance) Key() InstanceKey {
	return NewInstanceKey(i.TaskID, i.Start, i.End)
}

// Actor identifies who last changed a status.
type Actor struct {
	UserID UserID
	Name   string
}

// =============================================================================
// INSTANCE KEY
// =============================================================================

// KeyTimeLayout is the ISO 8601 UTC millisecond form used in key strings.
const KeyTimeLayout = "2006-01-02T15:04:05.000Z"

// InstanceKey identifies an instance. Comparable, usable as a map key once
// built through NewInstanceKey or Instance.Key (instants normalized to UTC).
type InstanceKey struct {
	TaskID TaskID
	Start  time.Time
	End    time.Time
}

// NewInstanceKey builds a key with instants normalized to UTC milliseconds.
func NewInstanceKey(taskID TaskID, start, end time.Time) InstanceKey {
	return InstanceKey{
		TaskID: taskID,
		Start:  start.UTC().Truncate(time.Millisecond),
		End:    end.UTC().Truncate(time.Millisecond),
	}
}

// String returns "{task_id}|{start}|{end}", the persisted text form.
func (k InstanceKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.TaskID, k.Start.UTC().Format(KeyTimeLayout), k.End.UTC().Format(KeyTimeLayout))
}

// ParseInstanceKey parses the text form produced by String. The task id is
// everything before the last two separators, so ids may contain '|'.
func ParseInstanceKey(s string) (InstanceKey, error) {
	last := strings.LastIndex(s, "|")
	if last < 0 {
		return InstanceKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	mid := strings.LastIndex(s[:last], "|")
	if mid <= 0 {
		return InstanceKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	start, err := time.Parse(time.RFC3339Nano, s[mid+1:last])
	if err != nil {
		return InstanceKey{}, fmt.Errorf("%w: start: %v", ErrInvalidKey, err)
	}
	end, err := time.Parse(time.RFC3339Nano, s[last+1:])
	if err != nil {
		return InstanceKey{}, fmt.Errorf("%w: end: %v", ErrInvalidKey, err)
	}
	return NewInstanceKey(TaskID(s[:mid]), start, end), nil
}

// =============================================================================
// STATUS OVERRIDE
// =============================================================================

// StatusOverride is a persisted manual status for one instance.
type StatusOverride struct {
	Key       InstanceKey
	Status    Status
	Comment   string
	UpdatedBy Actor
	UpdatedAt time.Time
}

// Overrides indexes overrides by key.
type Overrides map[InstanceKey]StatusOverride

// =============================================================================
// AUDIT RUNS
// =============================================================================

// AuditRun records one execution of the missed-instance auditor.
type AuditRun struct {
	ID                string
	Country           string
	From              calendar.Date
	To                calendar.Date
	StartedAt         time.Time
	FinishedAt        time.Time
	TasksScanned      int
	InstancesExamined int
	RecordsWritten    int
	Error             string
}
