package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/warp/checklist-engine/checklist"
)

// =============================================================================
// STATUS OVERRIDES (checklist.OverlayStore)
// =============================================================================

type overrideRow struct {
	Key           string `db:"instance_key"`
	TaskID        string `db:"task_id"`
	StartTS       string `db:"start_ts"`
	EndTS         string `db:"end_ts"`
	Status        string `db:"status"`
	Comment       string `db:"comment"`
	UpdatedBy     string `db:"updated_by"`
	UpdatedByName string `db:"updated_by_name"`
	UpdatedAt     string `db:"updated_at"`
}

func (r overrideRow) toOverride() (checklist.StatusOverride, error) {
	start, err := time.Parse(time.RFC3339Nano, r.StartTS)
	if err != nil {
		return checklist.StatusOverride{}, fmt.Errorf("%w: %s: %v", checklist.ErrInvalidKey, r.Key, err)
	}
	end, err := time.Parse(time.RFC3339Nano, r.EndTS)
	if err != nil {
		return checklist.StatusOverride{}, fmt.Errorf("%w: %s: %v", checklist.ErrInvalidKey, r.Key, err)
	}
	return checklist.StatusOverride{
		Key:       checklist.NewInstanceKey(checklist.TaskID(r.TaskID), start, end),
		Status:    checklist.Status(r.Status),
		Comment:   r.Comment,
		UpdatedBy: checklist.Actor{UserID: checklist.UserID(r.UpdatedBy), Name: r.UpdatedByName},
		UpdatedAt: parseTime(r.UpdatedAt),
	}, nil
}

func toRow(o checklist.StatusOverride) overrideRow {
	k := checklist.NewInstanceKey(o.Key.TaskID, o.Key.Start, o.Key.End)
	return overrideRow{
		Key:           k.String(),
		TaskID:        string(k.TaskID),
		StartTS:       k.Start.Format(checklist.KeyTimeLayout),
		EndTS:         k.End.Format(checklist.KeyTimeLayout),
		Status:        string(o.Status),
		Comment:       o.Comment,
		UpdatedBy:     string(o.UpdatedBy.UserID),
		UpdatedByName: o.UpdatedBy.Name,
		UpdatedAt:     o.UpdatedAt.UTC().Format(tsLayout),
	}
}

const overrideColumns = `instance_key, task_id, start_ts, end_ts, status, comment, updated_by, updated_by_name, updated_at`

// ListOverrides returns every stored override. Rows with unreadable
// instants are skipped.
func (s *Store) ListOverrides(ctx context.Context) (checklist.Overrides, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []overrideRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+overrideColumns+" FROM status_overrides"); err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	out := make(checklist.Overrides, len(rows))
	for _, r := range rows {
		o, err := r.toOverride()
		if err != nil {
			continue
		}
		out[o.Key] = o
	}
	return out, nil
}

// GetOverride returns the override for key, or nil.
func (s *Store) GetOverride(ctx context.Context, key checklist.InstanceKey) (*checklist.StatusOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r overrideRow
	err := s.db.GetContext(ctx, &r, "SELECT "+overrideColumns+" FROM status_overrides WHERE instance_key = ?", key.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	o, err := r.toOverride()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const insertOverride = `
	INSERT INTO status_overrides (` + overrideColumns + `)
	VALUES (:instance_key, :task_id, :start_ts, :end_ts, :status, :comment, :updated_by, :updated_by_name, :updated_at)`

// SaveOverride writes o, replacing any previous override for the key.
func (s *Store) SaveOverride(ctx context.Context, o checklist.StatusOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.NamedExecContext(ctx, insertOverride+`
		ON CONFLICT(instance_key) DO UPDATE SET
			status = excluded.status,
			comment = excluded.comment,
			updated_by = excluded.updated_by,
			updated_by_name = excluded.updated_by_name,
			updated_at = excluded.updated_at
	`, toRow(o))
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, key checklist.InstanceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM status_overrides WHERE instance_key = ?", key.String()); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}

// InsertMissing inserts the overrides whose key is still free, all in one
// transaction, and returns how many rows were written.
func (s *Store) InsertMissing(ctx context.Context, overrides []checklist.StatusOverride) (int, error) {
	if len(overrides) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, insertOverride+" ON CONFLICT(instance_key) DO NOTHING")
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, o := range overrides {
			res, err := stmt.ExecContext(ctx, toRow(o))
			if err != nil {
				return fmt.Errorf("failed to insert override: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to count inserted overrides: %w", err)
			}
			written += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// =============================================================================
// SETTINGS (checklist.ConfigReader)
// =============================================================================

const scheduleSettingKey = "schedule"

// ScheduleConfig returns the stored schedule, or the zero config (all-day
// windows) when none was saved.
func (s *Store) ScheduleConfig(ctx context.Context) (checklist.ScheduleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.GetContext(ctx, &raw, "SELECT value FROM settings WHERE name = ?", scheduleSettingKey)
	if errors.Is(err, sql.ErrNoRows) {
		return checklist.ScheduleConfig{}, nil
	}
	if err != nil {
		return checklist.ScheduleConfig{}, fmt.Errorf("failed to load schedule: %w", err)
	}
	var cfg checklist.ScheduleConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return checklist.ScheduleConfig{}, fmt.Errorf("failed to decode schedule: %w", err)
	}
	return cfg, nil
}

func (s *Store) SaveScheduleConfig(ctx context.Context, cfg checklist.ScheduleConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, scheduleSettingKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// HasScheduleConfig reports whether a schedule was ever saved.
func (s *Store) HasScheduleConfig(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM settings WHERE name = ?", scheduleSettingKey); err != nil {
		return false, err
	}
	return n > 0, nil
}
