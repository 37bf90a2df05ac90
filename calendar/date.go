/*
Package calendar provides the date, time-of-day and timezone kernel.

PURPOSE:
  Pure calendar arithmetic used by the recurrence expander: year-month-day
  values independent of any timezone, wall-clock times of day, conversion of
  a local wall-clock tuple to a UTC instant for an IANA zone, and weekend /
  national-holiday predicates per country.

KEY CONCEPTS IN THIS FILE (date.go):
  - Date: a calendar day (YMD). Always backed by UTC midnight so that
    comparisons and day arithmetic never see DST offsets.
  - Month/week boundary helpers: MondayOfWeek, StartOfMonth, EndOfMonth.
  - Clamp: builds a date from possibly invalid components (Feb 29 in a
    non-leap year becomes Feb 28).

SEE ALSO:
  - clock.go: HH:MM times of day
  - zone.go: local wall-clock to UTC instant conversion
  - holidays.go: per-country holiday service
*/
package calendar

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// =============================================================================
// DATE - Calendar day without time-of-day or zone
// =============================================================================

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{Time: t}, nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Clamp builds a date, clamping day into the valid range of the month.
func Clamp(year int, month time.Month, day int) Date {
	if day < 1 {
		day = 1
	}
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// DaysIn returns the number of days of the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(other Date) int {
	switch {
	case d.Before(other):
		return -1
	case d.After(other):
		return 1
	default:
		return 0
	}
}

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// AddMonths moves n months, clamping the day to the target month's length
// (Jan 31 + 1 month = Feb 28/29, never Mar 3).
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Clamp(first.Year(), first.Month(), d.Day())
}

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) String() string        { return d.Time.Format(dateLayout) }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// =============================================================================
// WEEK / MONTH BOUNDARIES
// =============================================================================

// MondayOfWeek returns the Monday of the ISO week containing d.
func (d Date) MondayOfWeek() Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

func (d Date) StartOfMonth() Date { return NewDate(d.Year(), d.Month(), 1) }
func (d Date) EndOfMonth() Date   { return NewDate(d.Year(), d.Month(), DaysIn(d.Year(), d.Month())) }

// MaxDate returns the later of two dates.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// MinDate returns the earlier of two dates.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}
