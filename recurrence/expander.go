/*
expander.go - Recurrence expansion of one task into concrete instances

PURPOSE:
  Given one task definition and a query window, materializes the concrete,
  timezone-correct, time-boxed instances of that task. Nothing is cached:
  the same input always re-derives the same instances, which is what lets
  persisted status overrides attach to them by key.

ALGORITHMS (one per periodicity):
  daily:   every eligible day in [max(start_date, from), to]; ineligible days
           are skipped, never shifted
  weekly:  one Monday..Friday period per week, boundaries shifted inward
  monthly: one day 1..last day period per month, boundaries shifted inward
  yearly:  one start_date..end_date month/day window per year (may cross new
           year), invalid days clamped, boundaries shifted inward
  hno:     every day of the coverage group's weekday set, custom hours with
           midnight wrap; holidays skipped when enabled, weekends never

SHARED POLICY:
  Task day: eligible unless (skip_weekends and weekend) or (skip_holidays and
  national/custom holiday). Multi-day periods move their start forward and
  their end backward to the nearest eligible day. Scans are bounded; a scan
  that exceeds the bound or crosses the other boundary drops the period.

POST-PROCESSING (every periodicity):
  1. active_until: drop when the start day is past it, truncate the end to
     it otherwise (dropping the instance if the truncated end precedes start)
  2. default status: pending, or missing once the end has passed
  3. delegation: an active delegation on the start day replaces the whole
     assignment snapshot with the delegate

FAIL-SOFT:
  Unknown periodicities, a yearly task without end_date, a missing or
  malformed hno group produce no instances and a warning, never an error.

SEE ALSO:
  - buckets.go: rrule-based enumeration of period starts
  - calendar/zone.go: wall clock to UTC
  - assembler/assembler.go: runs the expander for every task
*/
package recurrence

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	applog "github.com/warp/checklist-engine/internal/log"
)

const (
	// maxShiftDays bounds the inward boundary scans.
	maxShiftDays = 366

	defaultMaxOccurrences = 5000
)

// =============================================================================
// INPUT
// =============================================================================

// Input is everything needed to expand one task.
type Input struct {
	Task        checklist.Task
	Delegations []checklist.Delegation
	HnoGroups   map[checklist.HnoGroupID]checklist.HnoGroup
	Schedule    checklist.ScheduleConfig
	Country     string
	From        calendar.Date
	To          calendar.Date

	// Assignment is the task's resolved assignee snapshot. Users resolves
	// delegate display names.
	Assignment checklist.Assignment
	Users      map[checklist.UserID]checklist.User
}

// ParseRange parses a YMD query window. ok is false when either bound is
// unparsable or to precedes from.
func ParseRange(from, to string) (calendar.Period, bool) {
	f, err := calendar.ParseDate(from)
	if err != nil {
		return calendar.Period{}, false
	}
	t, err := calendar.ParseDate(to)
	if err != nil {
		return calendar.Period{}, false
	}
	p := calendar.Period{Start: f, End: t}
	return p, p.Valid()
}

// =============================================================================
// EXPANDER
// =============================================================================

// Expander turns task definitions into instances.
type Expander struct {
	Calendar       *calendar.Service
	Now            func() time.Time
	MaxOccurrences int
	Logger         logrus.FieldLogger
}

// New creates an expander bound to a calendar service.
func New(cal *calendar.Service) *Expander {
	return &Expander{
		Calendar:       cal,
		Now:            time.Now,
		MaxOccurrences: defaultMaxOccurrences,
		Logger:         applog.GetLogger(),
	}
}

// occurrence is an instance in the making.
type occurrence struct {
	anchor   calendar.Date // local start day
	lastDay  calendar.Date // local end day
	start    time.Time
	end      time.Time
	endClock calendar.Clock
}

// run carries the per-call state of one expansion.
type run struct {
	e      *Expander
	in     Input
	zone   calendar.Zone
	query  calendar.Period
	logger logrus.FieldLogger
}

// Expand returns the instances of in.Task overlapping [in.From, in.To],
// ordered by start.
func (e *Expander) Expand(in Input) []checklist.Instance {
	logger := applog.OrDefault(e.Logger).WithFields(logrus.Fields{
		"task_id":     in.Task.ID,
		"periodicity": in.Task.Periodicity,
	})

	query := calendar.Period{Start: in.From, End: in.To}
	if !query.Valid() {
		return nil
	}
	if in.Task.StartDate.IsZero() {
		logger.Warn("task has no valid start_date, task produces no instances")
		return nil
	}

	r := &run{
		e:      e,
		in:     in,
		zone:   e.Calendar.Zone(in.Country),
		query:  query,
		logger: logger,
	}

	var occs []occurrence
	switch in.Task.Periodicity {
	case checklist.Daily:
		occs = r.daily()
	case checklist.Weekly:
		occs = r.weekly()
	case checklist.Monthly:
		occs = r.monthly()
	case checklist.Yearly:
		occs = r.yearly()
	case checklist.Hno:
		occs = r.hno()
	default:
		logger.Warn("unknown periodicity, task produces no instances")
		return nil
	}

	now := e.now()
	out := make([]checklist.Instance, 0, len(occs))
	for _, occ := range occs {
		occ, ok := r.applyActiveUntil(occ)
		if !ok {
			continue
		}
		out = append(out, r.instance(occ, now))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (e *Expander) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Expander) maxOccurrences() int {
	if e.MaxOccurrences <= 0 {
		return defaultMaxOccurrences
	}
	return e.MaxOccurrences
}

// =============================================================================
// PERIODICITIES
// =============================================================================

func (r *run) daily() []occurrence {
	first := calendar.MaxDate(r.in.Task.StartDate, r.query.Start)
	startClock, endClock := r.in.Schedule.For(checklist.Daily)
	wrap := endClock.Before(startClock)

	var out []occurrence
	for _, day := range r.enumerate(dailyStarts(first, r.query.End)) {
		if !r.isTaskDay(day) {
			continue
		}
		out = append(out, r.window(day, startClock, endClock, wrap))
	}
	return out
}

func (r *run) weekly() []occurrence {
	first := calendar.MaxDate(r.in.Task.StartDate.MondayOfWeek(), r.query.Start.MondayOfWeek())
	var out []occurrence
	for _, monday := range r.enumerate(weeklyStarts(first, r.query.End)) {
		if occ, ok := r.period(calendar.WeekPeriod(monday), checklist.Weekly); ok {
			out = append(out, occ)
		}
	}
	return out
}

func (r *run) monthly() []occurrence {
	first := calendar.MaxDate(r.in.Task.StartDate.StartOfMonth(), r.query.Start.StartOfMonth())
	var out []occurrence
	for _, day1 := range r.enumerate(monthlyStarts(first, r.query.End)) {
		if occ, ok := r.period(calendar.MonthPeriod(day1), checklist.Monthly); ok {
			out = append(out, occ)
		}
	}
	return out
}

func (r *run) yearly() []occurrence {
	task := r.in.Task
	if task.EndDate.IsZero() {
		r.logger.Warn("yearly task without end_date, task produces no instances")
		return nil
	}

	sm, sd := task.StartDate.Month(), task.StartDate.Day()
	em, ed := task.EndDate.Month(), task.EndDate.Day()
	crossesYear := em < sm || (em == sm && ed < sd)

	var out []occurrence
	for year := r.query.Start.Year() - 1; year <= r.query.End.Year()+1; year++ {
		start := calendar.Clamp(year, sm, sd)
		endYear := year
		if crossesYear {
			endYear++
		}
		end := calendar.Clamp(endYear, em, ed)
		if end.Before(task.StartDate) {
			continue
		}
		if occ, ok := r.period(calendar.Period{Start: start, End: end}, checklist.Yearly); ok {
			out = append(out, occ)
		}
	}
	return out
}

func (r *run) hno() []occurrence {
	task := r.in.Task
	group, ok := r.in.HnoGroups[task.HnoGroupID]
	if !ok {
		r.logger.WithField("hno_group_id", task.HnoGroupID).Warn("hno group not found, task produces no instances")
		return nil
	}
	startClock, err := calendar.ParseClock(group.StartTime)
	if err != nil {
		r.logger.WithError(err).WithField("hno_group_id", group.ID).Warn("invalid hno start time")
		return nil
	}
	endClock, err := calendar.ParseClock(group.EndTime)
	if err != nil {
		r.logger.WithError(err).WithField("hno_group_id", group.ID).Warn("invalid hno end time")
		return nil
	}
	wrap := endClock.Before(startClock)

	first := calendar.MaxDate(task.StartDate, r.query.Start)
	var out []occurrence
	for _, day := range r.enumerate(weekdayStarts(first, r.query.End, group.Days)) {
		// Coverage groups define their own days: weekends are never skipped.
		if task.SkipHolidays && r.e.Calendar.IsHoliday(r.in.Country, day) {
			continue
		}
		if !group.HasDay(day.Weekday()) {
			continue
		}
		out = append(out, r.window(day, startClock, endClock, wrap))
	}
	return out
}

// =============================================================================
// SHARED POLICY
// =============================================================================

// isTaskDay is the task-day predicate.
func (r *run) isTaskDay(d calendar.Date) bool {
	if r.in.Task.SkipWeekends && d.IsWeekend() {
		return false
	}
	if r.in.Task.SkipHolidays && r.e.Calendar.IsHoliday(r.in.Country, d) {
		return false
	}
	return true
}

// shiftInward moves the start forward and the end backward onto task days.
func (r *run) shiftInward(p calendar.Period) (calendar.Period, bool) {
	start := p.Start
	for steps := 0; !r.isTaskDay(start); steps++ {
		if steps >= maxShiftDays || start.After(p.End) {
			return calendar.Period{}, false
		}
		start = start.AddDays(1)
	}
	end := p.End
	for steps := 0; !r.isTaskDay(end); steps++ {
		if steps >= maxShiftDays || end.Before(start) {
			return calendar.Period{}, false
		}
		end = end.AddDays(-1)
	}
	shifted := calendar.Period{Start: start, End: end}
	return shifted, shifted.Valid()
}

// period builds the occurrence of a multi-day period.
func (r *run) period(nominal calendar.Period, p checklist.Periodicity) (occurrence, bool) {
	if !nominal.Overlaps(r.query) {
		return occurrence{}, false
	}
	shifted, ok := r.shiftInward(nominal)
	if !ok {
		return occurrence{}, false
	}
	startClock, endClock := r.in.Schedule.For(p)
	occ := occurrence{
		anchor:   shifted.Start,
		lastDay:  shifted.End,
		start:    r.zone.At(shifted.Start, startClock),
		end:      r.zone.At(shifted.End, endClock),
		endClock: endClock,
	}
	if occ.end.Before(occ.start) {
		return occurrence{}, false
	}
	return occ, true
}

// window builds a single-day occurrence, wrapping past midnight if asked.
func (r *run) window(day calendar.Date, startClock, endClock calendar.Clock, wrap bool) occurrence {
	start, end := r.zone.Window(day, startClock, endClock, wrap)
	lastDay := day
	if wrap {
		lastDay = day.AddDays(1)
	}
	return occurrence{anchor: day, lastDay: lastDay, start: start, end: end, endClock: endClock}
}

// applyActiveUntil enforces the task's hard stop.
func (r *run) applyActiveUntil(occ occurrence) (occurrence, bool) {
	until := r.in.Task.ActiveUntil
	if until == nil {
		return occ, true
	}
	if occ.anchor.After(*until) {
		return occurrence{}, false
	}
	if occ.lastDay.After(*until) {
		occ.lastDay = *until
		occ.end = r.zone.At(*until, occ.endClock)
		// A window wrapping past midnight on active_until keeps its start
		// and ends with that day.
		if !occ.end.After(occ.start) {
			occ.end = r.zone.At(*until, calendar.EndOfDay)
		}
	}
	return occ, true
}

// =============================================================================
// INSTANCE BUILDING
// =============================================================================

func (r *run) instance(occ occurrence, now time.Time) checklist.Instance {
	task := r.in.Task
	inst := checklist.Instance{
		TaskID:       task.ID,
		Periodicity:  task.Periodicity,
		Description:  task.Description,
		ProcedureRef: task.ProcedureRef,
		Start:        occ.start.UTC(),
		End:          occ.end.UTC(),
		Status:       checklist.StatusPending,
		Assignment:   copyAssignment(r.in.Assignment),
	}
	if inst.End.Before(now) {
		inst.Status = checklist.StatusMissing
	}

	if d, ok := activeDelegation(r.in.Delegations, occ.anchor); ok {
		inst.Assignment = r.delegateAssignment(d.DelegateUserID)
		inst.IsDelegated = true
	}
	return inst
}

// activeDelegation returns the first delegation covering day.
func activeDelegation(delegations []checklist.Delegation, day calendar.Date) (checklist.Delegation, bool) {
	for _, d := range delegations {
		if d.Covers(day) {
			return d, true
		}
	}
	return checklist.Delegation{}, false
}

func (r *run) delegateAssignment(id checklist.UserID) checklist.Assignment {
	username, fullname := string(id), ""
	if u, ok := r.in.Users[id]; ok {
		username, fullname = u.Username, u.Fullname
	}
	return checklist.Assignment{
		UserIDs:   []checklist.UserID{id},
		Usernames: []string{username},
		Fullnames: []string{fullname},
		Groups:    []string{},
	}
}

func copyAssignment(a checklist.Assignment) checklist.Assignment {
	return checklist.Assignment{
		UserIDs:   append([]checklist.UserID{}, a.UserIDs...),
		Usernames: append([]string{}, a.Usernames...),
		Fullnames: append([]string{}, a.Fullnames...),
		Groups:    append([]string{}, a.Groups...),
	}
}
