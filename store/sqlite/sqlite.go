/*
Package sqlite provides a SQLite-backed implementation of the checklist ports.

PURPOSE:
  Implements every persistence interface of the engine (checklist.Store,
  checklist.TaskWriter, checklist.AuditLog) plus the administration
  surface used by the API (directory, delegations, holidays, settings).
  Queries go through sqlx for struct scanning and IN-clause expansion.

INTERFACES IMPLEMENTED:
  checklist.Store:      tasks, directory, delegations, overrides, schedule
  checklist.TaskWriter: task upsert and cascading delete
  checklist.AuditLog:   auditor run history

KEY TABLES:
  tasks, task_users, task_groups:   task definitions and assignments
  users, directory_groups, group_members: the directory
  hno_groups:                       custom-hours coverage groups
  delegations:                      temporary task hand-overs
  status_overrides:                 the only per-instance state
  holidays:                         custom holidays (country '' = global)
  settings:                         key/value JSON (schedule config)
  audit_runs:                       auditor history

WRITE SEMANTICS:
  - Overrides: INSERT ... ON CONFLICT(instance_key) DO UPDATE, last writer wins
  - Auditor records: ON CONFLICT DO NOTHING in one transaction
  - Task delete: overrides, delegations, assignments and task in one
    transaction, rolled back on any failure

CONCURRENCY:
  sync.RWMutex around every call. An in-memory database is pinned to a
  single connection so all callers share it.

USAGE:
  store, err := sqlite.New("./data/checklist.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - checklist/store.go: interface definitions
  - checklist/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339Nano
)

// Store implements the checklist ports using SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

var (
	_ checklist.Store      = (*Store)(nil)
	_ checklist.TaskWriter = (*Store)(nil)
	_ checklist.AuditLog   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Task definitions
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		procedure_ref TEXT NOT NULL DEFAULT '',
		periodicity TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL DEFAULT '',
		active_until TEXT,
		skip_weekends BOOLEAN NOT NULL DEFAULT TRUE,
		skip_holidays BOOLEAN NOT NULL DEFAULT TRUE,
		hno_group_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_users (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		PRIMARY KEY (task_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS task_groups (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		group_name TEXT NOT NULL,
		PRIMARY KEY (task_id, group_name)
	);

	-- Directory
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		fullname TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS directory_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS group_members (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		group_name TEXT NOT NULL,
		PRIMARY KEY (user_id, group_name)
	);

	-- Custom-hours coverage groups (days: comma separated, 0 = Sunday)
	CREATE TABLE IF NOT EXISTS hno_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		days TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS delegations (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		delegate_user_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_delegations_task
		ON delegations(task_id, start_date);

	-- Status overrides (keyed by the instance key text form)
	CREATE TABLE IF NOT EXISTS status_overrides (
		instance_key TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		start_ts TEXT NOT NULL,
		end_ts TEXT NOT NULL,
		status TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		updated_by TEXT NOT NULL,
		updated_by_name TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_status_overrides_task
		ON status_overrides(task_id);

	-- Custom holidays (country '' applies everywhere)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		country TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(country, date, name);

	CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Auditor runs
	CREATE TABLE IF NOT EXISTS audit_runs (
		id TEXT PRIMARY KEY,
		country TEXT NOT NULL,
		period_from TEXT NOT NULL,
		period_to TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		tasks_scanned INTEGER NOT NULL DEFAULT 0,
		instances_examined INTEGER NOT NULL DEFAULT 0,
		records_written INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_runs_started
		ON audit_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// withTx runs fn in a transaction, rolling back on error. Callers hold mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset deletes all data (demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"status_overrides", "delegations", "task_users", "task_groups", "tasks",
		"group_members", "users", "directory_groups", "hno_groups",
		"holidays", "settings", "audit_runs",
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("failed to reset %s: %w", t, err)
			}
		}
		return nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// parseDate returns the zero date for empty or malformed values; the
// expander treats a zero start date as "no instances".
func parseDate(s string) calendar.Date {
	if s == "" {
		return calendar.Date{}
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return calendar.Date{}
	}
	return d
}

func formatDate(d calendar.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
