package calendar

// =============================================================================
// PERIOD - Inclusive day range
// =============================================================================

// Period is an inclusive range of days [Start, End].
//
// Examples:
//   - a query window: 2024-01-01 .. 2024-01-31
//   - one weekly bucket: Monday .. Friday
//   - a yearly window crossing new year: 2024-12-15 .. 2025-01-15
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps reports whether two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !p.End.Before(other.Start) && !other.End.Before(p.Start)
}

// Valid reports whether End is not before Start.
func (p Period) Valid() bool {
	return !p.End.Before(p.Start)
}

// Days returns all days in the period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Len returns the number of days in the period, 0 when invalid.
func (p Period) Len() int {
	if !p.Valid() {
		return 0
	}
	return int(p.End.Time.Sub(p.Start.Time).Hours()/24) + 1
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// WeekPeriod returns the Monday..Friday working week containing d.
func WeekPeriod(d Date) Period {
	monday := d.MondayOfWeek()
	return Period{Start: monday, End: monday.AddDays(4)}
}

// MonthPeriod returns the calendar month containing d.
func MonthPeriod(d Date) Period {
	return Period{Start: d.StartOfMonth(), End: d.EndOfMonth()}
}
