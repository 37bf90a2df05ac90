package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/warp/checklist-engine/checklist"
)

// =============================================================================
// USERS & GROUPS (checklist.DirectoryReader)
// =============================================================================

type userRow struct {
	ID       string `db:"id"`
	Username string `db:"username"`
	Fullname string `db:"fullname"`
}

type memberRow struct {
	UserID    string `db:"user_id"`
	GroupName string `db:"group_name"`
}

type groupRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type hnoGroupRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Days      string `db:"days"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
}

// SaveUser inserts or replaces a user and its group memberships.
func (s *Store) SaveUser(ctx context.Context, u checklist.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, username, fullname) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				username = excluded.username,
				fullname = excluded.fullname
		`, u.ID, u.Username, u.Fullname)
		if err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE user_id = ?", u.ID); err != nil {
			return err
		}
		for _, g := range u.Groups {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO group_members (user_id, group_name) VALUES (?, ?)", u.ID, g); err != nil {
				return fmt.Errorf("failed to save membership: %w", err)
			}
		}
		return nil
	})
}

// ListUsers returns every user with its group names, ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]checklist.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, username, fullname FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var members []memberRow
	if err := s.db.SelectContext(ctx, &members, "SELECT user_id, group_name FROM group_members ORDER BY user_id, group_name"); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	groups := make(map[string][]string)
	for _, m := range members {
		groups[m.UserID] = append(groups[m.UserID], m.GroupName)
	}

	users := make([]checklist.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, checklist.User{
			ID:       checklist.UserID(r.ID),
			Username: r.Username,
			Fullname: r.Fullname,
			Groups:   groups[r.ID],
		})
	}
	return users, nil
}

// SaveGroup inserts or renames a group.
func (s *Store) SaveGroup(ctx context.Context, g checklist.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO directory_groups (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, g.ID, g.Name)
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context) ([]checklist.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []groupRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, name FROM directory_groups ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	groups := make([]checklist.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, checklist.Group{ID: checklist.GroupID(r.ID), Name: r.Name})
	}
	return groups, nil
}

// SaveHnoGroup inserts or replaces a custom-hours coverage group.
func (s *Store) SaveHnoGroup(ctx context.Context, g checklist.HnoGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hno_groups (id, name, days, start_time, end_time) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			days = excluded.days,
			start_time = excluded.start_time,
			end_time = excluded.end_time
	`, g.ID, g.Name, formatDays(g.Days), g.StartTime, g.EndTime)
	if err != nil {
		return fmt.Errorf("failed to save hno group: %w", err)
	}
	return nil
}

func (s *Store) ListHnoGroups(ctx context.Context) ([]checklist.HnoGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []hnoGroupRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, name, days, start_time, end_time FROM hno_groups ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list hno groups: %w", err)
	}
	groups := make([]checklist.HnoGroup, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, checklist.HnoGroup{
			ID:        checklist.HnoGroupID(r.ID),
			Name:      r.Name,
			Days:      parseDays(r.Days),
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		})
	}
	return groups, nil
}

// formatDays stores weekdays as "1,3,5".
func formatDays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

// parseDays ignores entries outside 0..6.
func parseDays(s string) []time.Weekday {
	var days []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// =============================================================================
// DELEGATIONS (checklist.DelegationReader)
// =============================================================================

type delegationRow struct {
	ID             string `db:"id"`
	TaskID         string `db:"task_id"`
	DelegateUserID string `db:"delegate_user_id"`
	StartDate      string `db:"start_date"`
	EndDate        string `db:"end_date"`
}

// SaveDelegation inserts or replaces a delegation.
func (s *Store) SaveDelegation(ctx context.Context, d checklist.Delegation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delegations (id, task_id, delegate_user_id, start_date, end_date)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			delegate_user_id = excluded.delegate_user_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`, d.ID, d.TaskID, d.DelegateUserID, formatDate(d.StartDate), formatDate(d.EndDate))
	if err != nil {
		return fmt.Errorf("failed to save delegation: %w", err)
	}
	return nil
}

// ListDelegations loads the delegations of the given tasks in one query.
func (s *Store) ListDelegations(ctx context.Context, taskIDs []checklist.TaskID) (map[checklist.TaskID][]checklist.Delegation, error) {
	out := make(map[checklist.TaskID][]checklist.Delegation)
	if len(taskIDs) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := sqlx.In(`
		SELECT id, task_id, delegate_user_id, start_date, end_date
		FROM delegations
		WHERE task_id IN (?)
		ORDER BY task_id, start_date
	`, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build delegation query: %w", err)
	}

	var rows []delegationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	for _, r := range rows {
		id := checklist.TaskID(r.TaskID)
		out[id] = append(out[id], checklist.Delegation{
			ID:             checklist.DelegationID(r.ID),
			TaskID:         id,
			DelegateUserID: checklist.UserID(r.DelegateUserID),
			StartDate:      parseDate(r.StartDate),
			EndDate:        parseDate(r.EndDate),
		})
	}
	return out, nil
}
