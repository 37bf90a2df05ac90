package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
)

// =============================================================================
// CUSTOM HOLIDAYS
// =============================================================================

// ErrDuplicateHoliday is returned when the same (country, date, name) exists.
var ErrDuplicateHoliday = errors.New("holiday already exists")

type holidayRow struct {
	ID        string `db:"id"`
	Country   string `db:"country"`
	Date      string `db:"date"`
	Name      string `db:"name"`
	Recurring bool   `db:"recurring"`
}

// SaveHoliday inserts a custom holiday, assigning an id when empty.
func (s *Store) SaveHoliday(ctx context.Context, h calendar.Holiday) (calendar.Holiday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, country, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, h.ID, h.Country, formatDate(h.Date), h.Name, h.Recurring, time.Now().UTC().Format(tsLayout))
	if isUniqueConstraintError(err) {
		return calendar.Holiday{}, ErrDuplicateHoliday
	}
	if err != nil {
		return calendar.Holiday{}, fmt.Errorf("failed to save holiday: %w", err)
	}
	return h, nil
}

// DeleteHoliday reports whether a row was removed.
func (s *Store) DeleteHoliday(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete holiday: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListHolidays returns every custom holiday ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []holidayRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, country, date, name, recurring FROM holidays ORDER BY date, name"); err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	out := make([]calendar.Holiday, 0, len(rows))
	for _, r := range rows {
		d := parseDate(r.Date)
		if d.IsZero() {
			continue
		}
		out = append(out, calendar.Holiday{
			ID:        r.ID,
			Country:   r.Country,
			Date:      d,
			Name:      r.Name,
			Recurring: r.Recurring,
		})
	}
	return out, nil
}

// =============================================================================
// AUDIT RUNS (checklist.AuditLog)
// =============================================================================

type auditRunRow struct {
	ID                string `db:"id"`
	Country           string `db:"country"`
	PeriodFrom        string `db:"period_from"`
	PeriodTo          string `db:"period_to"`
	StartedAt         string `db:"started_at"`
	FinishedAt        string `db:"finished_at"`
	TasksScanned      int    `db:"tasks_scanned"`
	InstancesExamined int    `db:"instances_examined"`
	RecordsWritten    int    `db:"records_written"`
	Error             string `db:"error"`
}

func (s *Store) RecordAuditRun(ctx context.Context, run checklist.AuditRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_runs (id, country, period_from, period_to, started_at, finished_at,
			tasks_scanned, instances_examined, records_written, error)
		VALUES (:id, :country, :period_from, :period_to, :started_at, :finished_at,
			:tasks_scanned, :instances_examined, :records_written, :error)
	`, auditRunRow{
		ID:                run.ID,
		Country:           run.Country,
		PeriodFrom:        formatDate(run.From),
		PeriodTo:          formatDate(run.To),
		StartedAt:         run.StartedAt.UTC().Format(tsLayout),
		FinishedAt:        run.FinishedAt.UTC().Format(tsLayout),
		TasksScanned:      run.TasksScanned,
		InstancesExamined: run.InstancesExamined,
		RecordsWritten:    run.RecordsWritten,
		Error:             run.Error,
	})
	if err != nil {
		return fmt.Errorf("failed to record audit run: %w", err)
	}
	return nil
}

// ListAuditRuns returns up to limit runs, most recent first. A limit <= 0
// returns every run.
func (s *Store) ListAuditRuns(ctx context.Context, limit int) ([]checklist.AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	var rows []auditRunRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, country, period_from, period_to, started_at, finished_at,
			tasks_scanned, instances_examined, records_written, error
		FROM audit_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	runs := make([]checklist.AuditRun, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, checklist.AuditRun{
			ID:                r.ID,
			Country:           r.Country,
			From:              parseDate(r.PeriodFrom),
			To:                parseDate(r.PeriodTo),
			StartedAt:         parseTime(r.StartedAt),
			FinishedAt:        parseTime(r.FinishedAt),
			TasksScanned:      r.TasksScanned,
			InstancesExamined: r.InstancesExamined,
			RecordsWritten:    r.RecordsWritten,
			Error:             r.Error,
		})
	}
	return runs, nil
}
