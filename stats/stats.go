/*
stats.go - Dashboard statistics over an instance listing

PURPOSE:
  Aggregates assembled instances into per-day completion counts and the
  "at risk soon" list shown on the dashboard.

DEFINITIONS:
  - A day is the local calendar day of the instance start
  - Completion rate = validated / total, as a percentage rounded to 2 places
  - At risk: pending, already started, ending within the window

SEE ALSO:
  - assembler/assembler.go: produces the instances
  - api/handlers.go: GET /api/dashboard
*/
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
)

// DefaultAtRiskWindow is used when the caller does not choose one.
const DefaultAtRiskWindow = 2 * time.Hour

var hundred = decimal.NewFromInt(100)

// Counts tallies instances by status.
type Counts struct {
	Total     int `json:"total"`
	Validated int `json:"validated"`
	Failed    int `json:"failed"`
	Missing   int `json:"missing"`
	Pending   int `json:"pending"`
}

func (c *Counts) add(s checklist.Status) {
	c.Total++
	switch s {
	case checklist.StatusValidated:
		c.Validated++
	case checklist.StatusFailed:
		c.Failed++
	case checklist.StatusMissing:
		c.Missing++
	default:
		c.Pending++
	}
}

// CompletionRate returns validated/total as a percentage.
func (c Counts) CompletionRate() decimal.Decimal {
	if c.Total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(c.Validated)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(c.Total))).
		Round(2)
}

// Day is the tally of one local calendar day.
type Day struct {
	Date calendar.Date
	Counts
}

// Summary is the dashboard payload.
type Summary struct {
	Days   []Day
	Totals Counts
	AtRisk []checklist.Instance
}

// Summarize aggregates instances. zone decides which local day an instance
// belongs to.
func Summarize(instances []checklist.Instance, zone calendar.Zone, now time.Time, atRiskWindow time.Duration) Summary {
	if atRiskWindow <= 0 {
		atRiskWindow = DefaultAtRiskWindow
	}
	horizon := now.Add(atRiskWindow)

	byDay := make(map[calendar.Date]*Day)
	var s Summary
	for _, inst := range instances {
		day := zone.DateOf(inst.Start)
		d, ok := byDay[day]
		if !ok {
			d = &Day{Date: day}
			byDay[day] = d
		}
		d.add(inst.Status)
		s.Totals.add(inst.Status)

		if inst.Status == checklist.StatusPending &&
			!inst.Start.After(now) &&
			inst.End.After(now) &&
			!inst.End.After(horizon) {
			s.AtRisk = append(s.AtRisk, inst)
		}
	}

	s.Days = make([]Day, 0, len(byDay))
	for _, d := range byDay {
		s.Days = append(s.Days, *d)
	}
	sort.Slice(s.Days, func(i, j int) bool { return s.Days[i].Date.Before(s.Days[j].Date) })
	sort.SliceStable(s.AtRisk, func(i, j int) bool { return s.AtRisk[i].End.Before(s.AtRisk[j].End) })
	return s
}
