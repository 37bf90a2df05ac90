package assembler

import (
	"strings"

	"github.com/warp/checklist-engine/checklist"
)

// matches applies the search, status and delegated-only filters.
func matches(inst checklist.Instance, q Query) bool {
	if q.Search != "" && !matchesSearch(inst, q.Search) {
		return false
	}
	if q.Status != "" && inst.Status != q.Status {
		return false
	}
	if q.IsDelegated != nil && inst.IsDelegated != *q.IsDelegated {
		return false
	}
	return true
}

// matchesSearch is a case-insensitive substring match over description,
// procedure reference and periodicity label.
func matchesSearch(inst checklist.Instance, search string) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return true
	}
	for _, field := range []string{inst.Description, inst.ProcedureRef, inst.Periodicity.Label()} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func taskInGroup(task checklist.Task, name string) bool {
	for _, g := range task.AssignedGroups {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}
