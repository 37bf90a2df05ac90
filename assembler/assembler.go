/*
assembler.go - Instance Assembler: the read path of the checklist engine

PURPOSE:
  Answers "which instances exist in [from, to], in what state, for whom".
  Loads the current task definitions and persisted overrides, runs the
  recurrence expander for every task, overlays stored statuses and applies
  the listing filters.

PIPELINE (List):
  1. Load tasks, overrides, users, groups, hno groups, schedule config.
     Delegations are batch loaded by task id, one query per call.
  2. Per task: periodicity / group pre-filter, resolve assignee names, expand.
  3. User filter on the (possibly delegated) assignment snapshot.
  4. Overlay persisted overrides by structured key.
  5. Search, status, delegated-only filters.
  6. Unless IncludeFuture, drop instances that have not started yet.
     Applied after the status filter on purpose: operators never act on
     occurrences that have not begun.

FAIL-SOFT:
  Unparsable from/to yields an empty result and no error. Store failures
  are returned wrapped.

SEE ALSO:
  - status.go: Resolve / SetStatus / ClearStatus and authorization
  - filter.go: listing filters
  - recurrence/expander.go: per-task expansion
*/
package assembler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	applog "github.com/warp/checklist-engine/internal/log"
	"github.com/warp/checklist-engine/recurrence"
)

// =============================================================================
// QUERY
// =============================================================================

// Query selects the instances returned by List.
type Query struct {
	From string // YMD, required
	To   string // YMD, required

	Status      checklist.Status
	Periodicity checklist.Periodicity
	Search      string
	UserID      checklist.UserID
	GroupID     checklist.GroupID
	IsDelegated *bool

	IncludeFuture bool
	Country       string
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler builds instance listings from the store.
type Assembler struct {
	Store    checklist.Store
	Expander *recurrence.Expander
	Logger   logrus.FieldLogger
}

// New creates an assembler.
func New(store checklist.Store, expander *recurrence.Expander) *Assembler {
	return &Assembler{
		Store:    store,
		Expander: expander,
		Logger:   applog.GetLogger(),
	}
}

// Calendar returns the calendar service used for expansion.
func (a *Assembler) Calendar() *calendar.Service {
	return a.Expander.Calendar
}

// Now returns the engine's current instant.
func (a *Assembler) Now() time.Time {
	if a.Expander.Now != nil {
		return a.Expander.Now()
	}
	return time.Now()
}

// snapshot is the data loaded once per call.
type snapshot struct {
	tasks       []checklist.Task
	overrides   checklist.Overrides
	users       map[checklist.UserID]checklist.User
	groups      map[checklist.GroupID]checklist.Group
	hnoGroups   map[checklist.HnoGroupID]checklist.HnoGroup
	delegations map[checklist.TaskID][]checklist.Delegation
	schedule    checklist.ScheduleConfig
}

func (a *Assembler) load(ctx context.Context) (*snapshot, error) {
	tasks, err := a.Store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	overrides, err := a.Store.ListOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	users, err := a.Store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	groups, err := a.Store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	hnoGroups, err := a.Store.ListHnoGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hno groups: %w", err)
	}
	schedule, err := a.Store.ScheduleConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule config: %w", err)
	}

	ids := make([]checklist.TaskID, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	delegations, err := a.Store.ListDelegations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}

	snap := &snapshot{
		tasks:       tasks,
		overrides:   overrides,
		users:       make(map[checklist.UserID]checklist.User, len(users)),
		groups:      make(map[checklist.GroupID]checklist.Group, len(groups)),
		hnoGroups:   make(map[checklist.HnoGroupID]checklist.HnoGroup, len(hnoGroups)),
		delegations: delegations,
		schedule:    schedule,
	}
	for _, u := range users {
		snap.users[u.ID] = u
	}
	for _, g := range groups {
		snap.groups[g.ID] = g
	}
	for _, g := range hnoGroups {
		snap.hnoGroups[g.ID] = g
	}
	return snap, nil
}

// input builds the expander input of one task.
func (s *snapshot) input(task checklist.Task, country string, period calendar.Period) recurrence.Input {
	return recurrence.Input{
		Task:        task,
		Delegations: s.delegations[task.ID],
		HnoGroups:   s.hnoGroups,
		Schedule:    s.schedule,
		Country:     country,
		From:        period.Start,
		To:          period.End,
		Assignment:  s.assignment(task),
		Users:       s.users,
	}
}

// assignment resolves the display names of a task's assignees.
func (s *snapshot) assignment(task checklist.Task) checklist.Assignment {
	a := checklist.Assignment{
		UserIDs:   make([]checklist.UserID, 0, len(task.AssignedUserIDs)),
		Usernames: make([]string, 0, len(task.AssignedUserIDs)),
		Fullnames: make([]string, 0, len(task.AssignedUserIDs)),
		Groups:    append([]string{}, task.AssignedGroups...),
	}
	for _, id := range task.AssignedUserIDs {
		a.UserIDs = append(a.UserIDs, id)
		if u, ok := s.users[id]; ok {
			a.Usernames = append(a.Usernames, u.Username)
			a.Fullnames = append(a.Fullnames, u.Fullname)
		} else {
			a.Usernames = append(a.Usernames, string(id))
			a.Fullnames = append(a.Fullnames, "")
		}
	}
	return a
}

// overlay replaces computed defaults with the stored override, if any.
func (s *snapshot) overlay(inst *checklist.Instance) {
	if o, ok := s.overrides[inst.Key()]; ok {
		applyOverride(inst, o)
	}
}

func applyOverride(inst *checklist.Instance, o checklist.StatusOverride) {
	by := o.UpdatedBy
	at := o.UpdatedAt
	inst.Status = o.Status
	inst.Comment = o.Comment
	inst.UpdatedBy = &by
	inst.UpdatedAt = &at
}

// =============================================================================
// LIST
// =============================================================================

// List returns the instances matching q, ordered by start then task id.
func (a *Assembler) List(ctx context.Context, q Query) ([]checklist.Instance, error) {
	period, ok := recurrence.ParseRange(q.From, q.To)
	if !ok {
		applog.OrDefault(a.Logger).WithFields(logrus.Fields{
			"from": q.From,
			"to":   q.To,
		}).Warn("unparsable query range, returning no instances")
		return []checklist.Instance{}, nil
	}

	snap, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	var viewer *checklist.User
	if q.UserID != "" {
		u, ok := snap.users[q.UserID]
		if !ok {
			u = checklist.User{ID: q.UserID}
		}
		viewer = &u
	}

	groupName := ""
	if q.GroupID != "" {
		g, ok := snap.groups[q.GroupID]
		if !ok {
			return []checklist.Instance{}, nil
		}
		groupName = g.Name
	}

	now := a.Now()
	out := []checklist.Instance{}
	for _, task := range snap.tasks {
		if q.Periodicity != "" && task.Periodicity != q.Periodicity {
			continue
		}
		if groupName != "" && !taskInGroup(task, groupName) {
			continue
		}

		for _, inst := range a.Expander.Expand(snap.input(task, q.Country, period)) {
			if viewer != nil && !inst.Assignment.Includes(*viewer) {
				continue
			}
			snap.overlay(&inst)
			if !matches(inst, q) {
				continue
			}
			if !q.IncludeFuture && inst.Start.After(now) {
				continue
			}
			out = append(out, inst)
		}
	}

	sortInstances(out)
	return out, nil
}

// =============================================================================
// DERIVE (unfiltered)
// =============================================================================

// Derivation is the unfiltered expansion of every task over a period.
type Derivation struct {
	Tasks     int
	Instances []checklist.Instance // computed defaults, no overlay
	Overrides checklist.Overrides
}

// Derive expands every task over period without overlay or filtering.
func (a *Assembler) Derive(ctx context.Context, country string, period calendar.Period) (*Derivation, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	d := &Derivation{Tasks: len(snap.tasks), Overrides: snap.overrides}
	for _, task := range snap.tasks {
		d.Instances = append(d.Instances, a.Expander.Expand(snap.input(task, country, period))...)
	}
	sortInstances(d.Instances)
	return d, nil
}

func sortInstances(list []checklist.Instance) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Start.Equal(list[j].Start) {
			return list[i].Start.Before(list[j].Start)
		}
		return list[i].TaskID < list[j].TaskID
	})
}
