package recurrence

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"

	"github.com/warp/checklist-engine/calendar"
)

// =============================================================================
// PERIOD START ENUMERATION
// =============================================================================

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// bucket describes the period starts of one periodicity between two days.
type bucket struct {
	opt  rrule.ROption
	last calendar.Date
}

func dailyStarts(first, last calendar.Date) bucket {
	return bucket{
		opt:  rrule.ROption{Freq: rrule.DAILY, Dtstart: first.Time},
		last: last,
	}
}

func weeklyStarts(firstMonday, last calendar.Date) bucket {
	return bucket{
		opt: rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   firstMonday.Time,
			Wkst:      rrule.MO,
			Byweekday: []rrule.Weekday{rrule.MO},
		},
		last: last,
	}
}

func monthlyStarts(firstDay1, last calendar.Date) bucket {
	return bucket{
		opt: rrule.ROption{
			Freq:       rrule.MONTHLY,
			Dtstart:    firstDay1.Time,
			Bymonthday: []int{1},
		},
		last: last,
	}
}

// weekdayStarts enumerates the days of a weekday set. An empty set yields
// every day; callers filter again.
func weekdayStarts(first, last calendar.Date, days []time.Weekday) bucket {
	byday := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		if wd, ok := rruleWeekdays[d]; ok {
			byday = append(byday, wd)
		}
	}
	return bucket{
		opt:  rrule.ROption{Freq: rrule.DAILY, Dtstart: first.Time, Byweekday: byday},
		last: last,
	}
}

// enumerate runs the rule and caps the number of starts per task.
func (r *run) enumerate(b bucket) []calendar.Date {
	if b.opt.Dtstart.After(b.last.Time) {
		return nil
	}
	rule, err := rrule.NewRRule(b.opt)
	if err != nil {
		r.logger.WithError(err).Warn("failed to build recurrence rule")
		return nil
	}

	times := rule.Between(b.opt.Dtstart, b.last.Time, true)
	if max := r.e.maxOccurrences(); len(times) > max {
		r.logger.WithFields(logrus.Fields{
			"count": len(times),
			"cap":   max,
		}).Warn("occurrence cap reached, truncating")
		times = times[:max]
	}

	out := make([]calendar.Date, 0, len(times))
	for _, t := range times {
		out = append(out, calendar.NewDate(t.Year(), t.Month(), t.Day()))
	}
	return out
}
