/*
auditor.go - Missed-instance auditor

PURPOSE:
  Makes "missing" durable. The expander only computes missing as an
  in-memory default; exports, dashboards and digests need it persisted.
  The auditor re-expands every task over a trailing window and writes a
  missing override for each past-due instance that has none.

DESIGN:
  - Window: [today - LookbackDays, today] in the country's zone
  - Only instances whose end has passed are considered
  - Writes go through InsertMissing: insert-if-absent in one transaction,
    so a manual status written between read and write is never clobbered
  - Overrides are authored by checklist.SystemUser
  - Each run is recorded in the audit log when one is configured

USAGE:
  a := auditor.New(asm, store)
  result, err := a.Run(ctx, "FR")

SEE ALSO:
  - api/scheduler.go: runs the auditor on a cron schedule
  - assembler/assembler.go: Derive
*/
package auditor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	applog "github.com/warp/checklist-engine/internal/log"
)

// DefaultLookbackDays is the trailing window audited by default.
const DefaultLookbackDays = 60

// SystemName is the display name recorded on auditor overrides.
const SystemName = "System"

// Result summarizes one run.
type Result struct {
	Country           string
	Period            calendar.Period
	TasksScanned      int
	InstancesExamined int
	RecordsWritten    int
}

// Auditor persists missing statuses for past-due instances.
type Auditor struct {
	Assembler    *assembler.Assembler
	Overlay      checklist.OverlayStore
	Log          checklist.AuditLog // optional
	LookbackDays int
	Logger       logrus.FieldLogger
}

// New creates an auditor with the default lookback.
func New(asm *assembler.Assembler, overlay checklist.OverlayStore) *Auditor {
	return &Auditor{
		Assembler:    asm,
		Overlay:      overlay,
		LookbackDays: DefaultLookbackDays,
		Logger:       applog.GetLogger(),
	}
}

// Run audits the lookback window ending today.
func (a *Auditor) Run(ctx context.Context, country string) (Result, error) {
	startedAt := a.Assembler.Now()
	lookback := a.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	today := a.Assembler.Calendar().Zone(country).Today(startedAt)
	period := calendar.Period{Start: today.AddDays(-lookback), End: today}

	result, err := a.audit(ctx, country, period, startedAt)
	a.record(ctx, result, startedAt, err)
	return result, err
}

func (a *Auditor) audit(ctx context.Context, country string, period calendar.Period, now time.Time) (Result, error) {
	result := Result{Country: country, Period: period}

	derived, err := a.Assembler.Derive(ctx, country, period)
	if err != nil {
		return result, fmt.Errorf("failed to derive instances: %w", err)
	}
	result.TasksScanned = derived.Tasks

	var pending []checklist.StatusOverride
	for _, inst := range derived.Instances {
		result.InstancesExamined++
		if !inst.End.Before(now) {
			continue
		}
		key := inst.Key()
		if _, ok := derived.Overrides[key]; ok {
			continue
		}
		pending = append(pending, checklist.StatusOverride{
			Key:       key,
			Status:    checklist.StatusMissing,
			UpdatedBy: checklist.Actor{UserID: checklist.SystemUser, Name: SystemName},
			UpdatedAt: now.UTC(),
		})
	}

	if len(pending) > 0 {
		written, err := a.Overlay.InsertMissing(ctx, pending)
		if err != nil {
			return result, fmt.Errorf("failed to write missing records: %w", err)
		}
		result.RecordsWritten = written
	}

	applog.OrDefault(a.Logger).WithFields(logrus.Fields{
		"country":  country,
		"from":     period.Start.String(),
		"to":       period.End.String(),
		"tasks":    result.TasksScanned,
		"examined": result.InstancesExamined,
		"written":  result.RecordsWritten,
	}).Info("audit completed")
	return result, nil
}

func (a *Auditor) record(ctx context.Context, result Result, startedAt time.Time, runErr error) {
	if a.Log == nil {
		return
	}
	run := checklist.AuditRun{
		ID:                uuid.NewString(),
		Country:           result.Country,
		From:              result.Period.Start,
		To:                result.Period.End,
		StartedAt:         startedAt.UTC(),
		FinishedAt:        time.Now().UTC(),
		TasksScanned:      result.TasksScanned,
		InstancesExamined: result.InstancesExamined,
		RecordsWritten:    result.RecordsWritten,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := a.Log.RecordAuditRun(ctx, run); err != nil {
		applog.OrDefault(a.Logger).WithError(err).Warn("failed to record audit run")
	}
}
