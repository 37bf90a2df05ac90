package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/warp/checklist-engine/checklist"
)

// =============================================================================
// TASKS (checklist.TaskReader / checklist.TaskWriter)
// =============================================================================

type taskRow struct {
	ID           string         `db:"id"`
	Description  string         `db:"description"`
	ProcedureRef string         `db:"procedure_ref"`
	Periodicity  string         `db:"periodicity"`
	StartDate    string         `db:"start_date"`
	EndDate      string         `db:"end_date"`
	ActiveUntil  sql.NullString `db:"active_until"`
	SkipWeekends bool           `db:"skip_weekends"`
	SkipHolidays bool           `db:"skip_holidays"`
	HnoGroupID   string         `db:"hno_group_id"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
}

func (r taskRow) toTask() checklist.Task {
	t := checklist.Task{
		ID:           checklist.TaskID(r.ID),
		Description:  r.Description,
		ProcedureRef: r.ProcedureRef,
		Periodicity:  checklist.Periodicity(r.Periodicity),
		StartDate:    parseDate(r.StartDate),
		EndDate:      parseDate(r.EndDate),
		SkipWeekends: r.SkipWeekends,
		SkipHolidays: r.SkipHolidays,
		HnoGroupID:   checklist.HnoGroupID(r.HnoGroupID),
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
	if r.ActiveUntil.Valid {
		if d := parseDate(r.ActiveUntil.String); !d.IsZero() {
			t.ActiveUntil = &d
		}
	}
	return t
}

type assigneeRow struct {
	TaskID string `db:"task_id"`
	Value  string `db:"value"`
}

const taskColumns = `id, description, procedure_ref, periodicity, start_date, end_date,
	active_until, skip_weekends, skip_holidays, hno_group_id, created_at, updated_at`

// SaveTask inserts or replaces a task and its assignment sets.
func (s *Store) SaveTask(ctx context.Context, t checklist.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	activeUntil := ""
	if t.ActiveUntil != nil {
		activeUntil = formatDate(*t.ActiveUntil)
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				description = excluded.description,
				procedure_ref = excluded.procedure_ref,
				periodicity = excluded.periodicity,
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				active_until = excluded.active_until,
				skip_weekends = excluded.skip_weekends,
				skip_holidays = excluded.skip_holidays,
				hno_group_id = excluded.hno_group_id,
				updated_at = excluded.updated_at
		`,
			t.ID, t.Description, t.ProcedureRef, t.Periodicity,
			formatDate(t.StartDate), formatDate(t.EndDate), nullString(activeUntil),
			t.SkipWeekends, t.SkipHolidays, t.HnoGroupID,
			t.CreatedAt.Format(tsLayout), t.UpdatedAt.Format(tsLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM task_users WHERE task_id = ?", t.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM task_groups WHERE task_id = ?", t.ID); err != nil {
			return err
		}
		for _, id := range t.AssignedUserIDs {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO task_users (task_id, user_id) VALUES (?, ?)", t.ID, id); err != nil {
				return fmt.Errorf("failed to assign user: %w", err)
			}
		}
		for _, g := range t.AssignedGroups {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO task_groups (task_id, group_name) VALUES (?, ?)", t.ID, g); err != nil {
				return fmt.Errorf("failed to assign group: %w", err)
			}
		}
		return nil
	})
}

// DeleteTask removes a task with its overrides, delegations and
// assignments in one transaction.
func (s *Store) DeleteTask(ctx context.Context, id checklist.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			"DELETE FROM status_overrides WHERE task_id = ?",
			"DELETE FROM delegations WHERE task_id = ?",
			"DELETE FROM task_users WHERE task_id = ?",
			"DELETE FROM task_groups WHERE task_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("failed to delete task dependents: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return checklist.ErrTaskNotFound
		}
		return nil
	})
}

// ListTasks returns every task with its assignment sets, ordered by id.
func (s *Store) ListTasks(ctx context.Context) ([]checklist.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+taskColumns+" FROM tasks ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	users, groups, err := s.loadAssignees(ctx)
	if err != nil {
		return nil, err
	}

	tasks := make([]checklist.Task, 0, len(rows))
	for _, r := range rows {
		t := r.toTask()
		for _, u := range users[r.ID] {
			t.AssignedUserIDs = append(t.AssignedUserIDs, checklist.UserID(u))
		}
		t.AssignedGroups = groups[r.ID]
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask returns a task, or nil when it does not exist.
func (s *Store) GetTask(ctx context.Context, id checklist.TaskID) (*checklist.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r taskRow
	err := s.db.GetContext(ctx, &r, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	t := r.toTask()
	var users []string
	if err := s.db.SelectContext(ctx, &users, "SELECT user_id FROM task_users WHERE task_id = ? ORDER BY user_id", id); err != nil {
		return nil, err
	}
	for _, u := range users {
		t.AssignedUserIDs = append(t.AssignedUserIDs, checklist.UserID(u))
	}
	if err := s.db.SelectContext(ctx, &t.AssignedGroups, "SELECT group_name FROM task_groups WHERE task_id = ? ORDER BY group_name", id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) loadAssignees(ctx context.Context) (map[string][]string, map[string][]string, error) {
	var userRows, groupRows []assigneeRow
	if err := s.db.SelectContext(ctx, &userRows, "SELECT task_id, user_id AS value FROM task_users ORDER BY task_id, user_id"); err != nil {
		return nil, nil, fmt.Errorf("failed to load task users: %w", err)
	}
	if err := s.db.SelectContext(ctx, &groupRows, "SELECT task_id, group_name AS value FROM task_groups ORDER BY task_id, group_name"); err != nil {
		return nil, nil, fmt.Errorf("failed to load task groups: %w", err)
	}
	users := make(map[string][]string)
	for _, r := range userRows {
		users[r.TaskID] = append(users[r.TaskID], r.Value)
	}
	groups := make(map[string][]string)
	for _, r := range groupRows {
		groups[r.TaskID] = append(groups[r.TaskID], r.Value)
	}
	return users, groups, nil
}
