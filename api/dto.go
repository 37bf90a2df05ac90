/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types stay free
  of wire concerns; instants are rendered RFC 3339 UTC and dates YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Instances:  InstanceDTO, ActorDTO, StatusRequest
  Dashboard:  DashboardDTO, DayDTO, CountsDTO
  Holidays:   HolidayDTO, CreateHolidayRequest
  Audit:      AuditRunDTO, AuditResultDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
  - factory/task.go: TaskJSON (task bodies are exchanged as-is)
*/
package api

import (
	"time"

	"github.com/warp/checklist-engine/auditor"
	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/stats"
)

// =============================================================================
// INSTANCES
// =============================================================================

// InstanceDTO represents one derived instance.
type InstanceDTO struct {
	Key              string               `json:"key"`
	TaskID           string               `json:"task_id"`
	Periodicity      string               `json:"periodicity"`
	PeriodicityLabel string               `json:"periodicity_label"`
	Description      string               `json:"description"`
	ProcedureRef     string               `json:"procedure_ref,omitempty"`
	Start            string               `json:"start"`
	End              string               `json:"end"`
	Status           string               `json:"status"`
	Comment          string               `json:"comment,omitempty"`
	UpdatedBy        *ActorDTO            `json:"updated_by,omitempty"`
	UpdatedAt        string               `json:"updated_at,omitempty"`
	Assignment       checklist.Assignment `json:"assignment"`
	IsDelegated      bool                 `json:"is_delegated"`
}

// ActorDTO identifies who last changed a status.
type ActorDTO struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// StatusRequest sets or clears the status of one instance. Clearing only
// reads Key and Country.
type StatusRequest struct {
	Key     string `json:"key"`
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
	Country string `json:"country,omitempty"`
}

func toInstanceDTO(inst checklist.Instance) InstanceDTO {
	dto := InstanceDTO{
		Key:              inst.Key().String(),
		TaskID:           string(inst.TaskID),
		Periodicity:      string(inst.Periodicity),
		PeriodicityLabel: inst.Periodicity.Label(),
		Description:      inst.Description,
		ProcedureRef:     inst.ProcedureRef,
		Start:            inst.Start.UTC().Format(time.RFC3339),
		End:              inst.End.UTC().Format(time.RFC3339),
		Status:           string(inst.Status),
		Comment:          inst.Comment,
		Assignment:       inst.Assignment,
		IsDelegated:      inst.IsDelegated,
	}
	if inst.UpdatedBy != nil {
		dto.UpdatedBy = &ActorDTO{UserID: string(inst.UpdatedBy.UserID), Name: inst.UpdatedBy.Name}
	}
	if inst.UpdatedAt != nil {
		dto.UpdatedAt = inst.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// InstanceDTOs converts a listing for the wire.
func InstanceDTOs(list []checklist.Instance) []InstanceDTO {
	dtos := make([]InstanceDTO, 0, len(list))
	for _, inst := range list {
		dtos = append(dtos, toInstanceDTO(inst))
	}
	return dtos
}

// =============================================================================
// DASHBOARD
// =============================================================================

// CountsDTO tallies instances by status.
type CountsDTO struct {
	stats.Counts
	CompletionRate string `json:"completion_rate"` // percent, 2 decimals
}

// DayDTO is the tally of one local day.
type DayDTO struct {
	Date string `json:"date"`
	CountsDTO
}

// DashboardDTO is the dashboard response.
type DashboardDTO struct {
	From   string        `json:"from"`
	To     string        `json:"to"`
	Days   []DayDTO      `json:"days"`
	Totals CountsDTO     `json:"totals"`
	AtRisk []InstanceDTO `json:"at_risk"`
}

func toCountsDTO(c stats.Counts) CountsDTO {
	return CountsDTO{Counts: c, CompletionRate: c.CompletionRate().StringFixed(2)}
}

func toDashboardDTO(from, to string, s stats.Summary) DashboardDTO {
	days := make([]DayDTO, 0, len(s.Days))
	for _, d := range s.Days {
		days = append(days, DayDTO{Date: d.Date.String(), CountsDTO: toCountsDTO(d.Counts)})
	}
	return DashboardDTO{
		From:   from,
		To:     to,
		Days:   days,
		Totals: toCountsDTO(s.Totals),
		AtRisk: InstanceDTOs(s.AtRisk),
	}
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// HolidayDTO represents a custom holiday.
type HolidayDTO struct {
	ID        string `json:"id"`
	Country   string `json:"country,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// CreateHolidayRequest creates a custom holiday. An empty country applies
// to every country.
type CreateHolidayRequest struct {
	Country   string `json:"country"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

func toHolidayDTO(h calendar.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		Country:   h.Country,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditRunDTO represents one recorded auditor run.
type AuditRunDTO struct {
	ID                string `json:"id"`
	Country           string `json:"country"`
	From              string `json:"from"`
	To                string `json:"to"`
	StartedAt         string `json:"started_at"`
	FinishedAt        string `json:"finished_at"`
	TasksScanned      int    `json:"tasks_scanned"`
	InstancesExamined int    `json:"instances_examined"`
	RecordsWritten    int    `json:"records_written"`
	Error             string `json:"error,omitempty"`
}

// AuditResultDTO is returned by a manual audit trigger.
type AuditResultDTO struct {
	Country           string `json:"country"`
	From              string `json:"from"`
	To                string `json:"to"`
	TasksScanned      int    `json:"tasks_scanned"`
	InstancesExamined int    `json:"instances_examined"`
	RecordsWritten    int    `json:"records_written"`
}

func toAuditRunDTO(r checklist.AuditRun) AuditRunDTO {
	return AuditRunDTO{
		ID:                r.ID,
		Country:           r.Country,
		From:              r.From.String(),
		To:                r.To.String(),
		StartedAt:         r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:        r.FinishedAt.UTC().Format(time.RFC3339),
		TasksScanned:      r.TasksScanned,
		InstancesExamined: r.InstancesExamined,
		RecordsWritten:    r.RecordsWritten,
		Error:             r.Error,
	}
}

func toAuditResultDTO(r auditor.Result) AuditResultDTO {
	return AuditResultDTO{
		Country:           r.Country,
		From:              r.Period.Start.String(),
		To:                r.Period.End.String(),
		TasksScanned:      r.TasksScanned,
		InstancesExamined: r.InstancesExamined,
		RecordsWritten:    r.RecordsWritten,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
