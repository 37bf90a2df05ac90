/*
store.go - Persistence ports for the checklist engine

PURPOSE:
  Defines the interface between the engine and the database. Tasks, the
  directory (users, groups, coverage groups) and delegations are owned by
  the administration layer and only read here; status overrides are the one
  piece of per-occurrence state the engine writes.

KEY INTERFACES:
  TaskReader:       bulk task loading
  DirectoryReader:  users, groups and hno groups for name resolution
  DelegationReader: delegations, batch loaded by task id
  OverlayStore:     status overrides (the Status Overlay Store)
  Store:            everything above plus schedule configuration
  AuditLog:         history of auditor runs

WRITE SEMANTICS:
  - SaveOverride is insert-or-replace: two concurrent writers for the same
    key race and the later write wins silently.
  - InsertMissing is insert-if-absent and atomic over the whole batch, so the
    auditor never clobbers a manual status written in between.
  - DeleteTask removes the task and its overrides in one transaction.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via sqlx
  - checklist/store/memory.go: In-memory for tests

SEE ALSO:
  - assembler/assembler.go: reads every port
  - auditor/auditor.go: writes missing records
*/
package checklist

import "context"

// TaskReader loads task definitions.
type TaskReader interface {
	ListTasks(ctx context.Context) ([]Task, error)
	GetTask(ctx context.Context, id TaskID) (*Task, error)
}

// DirectoryReader loads users and groups.
type DirectoryReader interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListHnoGroups(ctx context.Context) ([]HnoGroup, error)
}

// DelegationReader loads delegations.
type DelegationReader interface {
	// ListDelegations returns the delegations of the given tasks, indexed by
	// task id, each list ordered by start date.
	ListDelegations(ctx context.Context, taskIDs []TaskID) (map[TaskID][]Delegation, error)
}

// OverlayStore persists status overrides.
type OverlayStore interface {
	ListOverrides(ctx context.Context) (Overrides, error)
	GetOverride(ctx context.Context, key InstanceKey) (*StatusOverride, error)

	// SaveOverride inserts or replaces the override for its key.
	SaveOverride(ctx context.Context, o StatusOverride) error

	// DeleteOverride removes the override; missing keys are not an error.
	DeleteOverride(ctx context.Context, key InstanceKey) error

	// InsertMissing inserts every override whose key has none yet, in one
	// transaction, and returns how many were written.
	InsertMissing(ctx context.Context, overrides []StatusOverride) (int, error)
}

// ConfigReader loads the schedule configuration.
type ConfigReader interface {
	ScheduleConfig(ctx context.Context) (ScheduleConfig, error)
}

// Store is the full read/overlay surface the engine needs.
type Store interface {
	TaskReader
	DirectoryReader
	DelegationReader
	OverlayStore
	ConfigReader
}

// AuditLog records auditor runs.
type AuditLog interface {
	RecordAuditRun(ctx context.Context, run AuditRun) error
	// ListAuditRuns returns the most recent runs first.
	ListAuditRuns(ctx context.Context, limit int) ([]AuditRun, error)
}

// TaskWriter is used by the administration collaborators and seeds.
type TaskWriter interface {
	SaveTask(ctx context.Context, t Task) error
	// DeleteTask removes a task together with its overrides and delegations
	// atomically.
	DeleteTask(ctx context.Context, id TaskID) error
}
