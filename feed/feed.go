// Package feed renders instance listings as iCalendar documents, so
// operators can subscribe to their checklist from a calendar client.
package feed

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/warp/checklist-engine/checklist"
)

// ProductID identifies the generator in PRODID.
const ProductID = "-//warp//checklist-engine//EN"

// Build renders instances into one calendar. Each event's UID is the
// instance key, so subscribers see stable events across refreshes.
func Build(name string, instances []checklist.Instance, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}

	for _, inst := range instances {
		ev := cal.AddEvent(inst.Key().String())
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(inst.Start)
		ev.SetEndAt(inst.End)
		ev.SetSummary(summary(inst))
		if desc := description(inst); desc != "" {
			ev.SetDescription(desc)
		}
		ev.AddProperty(ics.ComponentPropertyCategories, strings.ToUpper(string(inst.Status)))
		if inst.Status == checklist.StatusValidated {
			ev.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return cal.Serialize()
}

func summary(inst checklist.Instance) string {
	if inst.Description == "" {
		return string(inst.TaskID)
	}
	return inst.Description
}

func description(inst checklist.Instance) string {
	var lines []string
	if inst.ProcedureRef != "" {
		lines = append(lines, "Procedure: "+inst.ProcedureRef)
	}
	lines = append(lines, "Periodicity: "+inst.Periodicity.Label())
	if len(inst.Assignment.Fullnames) > 0 {
		lines = append(lines, "Assigned: "+strings.Join(nonEmpty(inst.Assignment.Fullnames, inst.Assignment.Usernames), ", "))
	}
	if inst.IsDelegated {
		lines = append(lines, "Delegated")
	}
	if inst.Comment != "" {
		lines = append(lines, fmt.Sprintf("Comment: %s", inst.Comment))
	}
	return strings.Join(lines, "\n")
}

// nonEmpty picks the full name when known, the username otherwise.
func nonEmpty(primary, fallback []string) []string {
	out := make([]string, 0, len(primary))
	for i, p := range primary {
		if p == "" && i < len(fallback) {
			p = fallback[i]
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
