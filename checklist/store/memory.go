// Package store provides in-memory implementations of the checklist ports.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/checklist-engine/checklist"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	tasks       map[checklist.TaskID]checklist.Task
	users       []checklist.User
	groups      []checklist.Group
	hnoGroups   []checklist.HnoGroup
	delegations []checklist.Delegation
	overrides   checklist.Overrides
	schedule    checklist.ScheduleConfig
	auditRuns   []checklist.AuditRun
}

func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[checklist.TaskID]checklist.Task),
		overrides: make(checklist.Overrides),
	}
}

var (
	_ checklist.Store      = (*Memory)(nil)
	_ checklist.TaskWriter = (*Memory)(nil)
	_ checklist.AuditLog   = (*Memory)(nil)
)

// Seeding helpers.

func (m *Memory) AddUser(u checklist.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
}

func (m *Memory) AddGroup(g checklist.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = append(m.groups, g)
}

func (m *Memory) AddHnoGroup(g checklist.HnoGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hnoGroups = append(m.hnoGroups, g)
}

func (m *Memory) AddDelegation(d checklist.Delegation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegations = append(m.delegations, d)
}

func (m *Memory) SetScheduleConfig(c checklist.ScheduleConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = c
}

// TaskReader / TaskWriter

func (m *Memory) SaveTask(_ context.Context, t checklist.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) DeleteTask(_ context.Context, id checklist.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return checklist.ErrTaskNotFound
	}
	delete(m.tasks, id)
	for key := range m.overrides {
		if key.TaskID == id {
			delete(m.overrides, key)
		}
	}
	kept := m.delegations[:0]
	for _, d := range m.delegations {
		if d.TaskID != id {
			kept = append(kept, d)
		}
	}
	m.delegations = kept
	return nil
}

func (m *Memory) ListTasks(_ context.Context) ([]checklist.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]checklist.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetTask(_ context.Context, id checklist.TaskID) (*checklist.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// DirectoryReader

func (m *Memory) ListUsers(_ context.Context) ([]checklist.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]checklist.User(nil), m.users...), nil
}

func (m *Memory) ListGroups(_ context.Context) ([]checklist.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]checklist.Group(nil), m.groups...), nil
}

func (m *Memory) ListHnoGroups(_ context.Context) ([]checklist.HnoGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]checklist.HnoGroup(nil), m.hnoGroups...), nil
}

// DelegationReader

func (m *Memory) ListDelegations(_ context.Context, taskIDs []checklist.TaskID) (map[checklist.TaskID][]checklist.Delegation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[checklist.TaskID]bool, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = true
	}
	out := make(map[checklist.TaskID][]checklist.Delegation)
	for _, d := range m.delegations {
		if wanted[d.TaskID] {
			out[d.TaskID] = append(out[d.TaskID], d)
		}
	}
	for id := range out {
		list := out[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].StartDate.Before(list[j].StartDate) })
	}
	return out, nil
}

// OverlayStore

func (m *Memory) ListOverrides(_ context.Context) (checklist.Overrides, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(checklist.Overrides, len(m.overrides))
	for k, v := range m.overrides {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) GetOverride(_ context.Context, key checklist.InstanceKey) (*checklist.StatusOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.overrides[normalize(key)]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) SaveOverride(_ context.Context, o checklist.StatusOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Key = normalize(o.Key)
	m.overrides[o.Key] = o
	return nil
}

func (m *Memory) DeleteOverride(_ context.Context, key checklist.InstanceKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, normalize(key))
	return nil
}

func (m *Memory) InsertMissing(_ context.Context, overrides []checklist.StatusOverride) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	for _, o := range overrides {
		o.Key = normalize(o.Key)
		if _, exists := m.overrides[o.Key]; exists {
			continue
		}
		m.overrides[o.Key] = o
		written++
	}
	return written, nil
}

// ConfigReader

func (m *Memory) ScheduleConfig(_ context.Context) (checklist.ScheduleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedule, nil
}

func normalize(k checklist.InstanceKey) checklist.InstanceKey {
	return checklist.NewInstanceKey(k.TaskID, k.Start, k.End)
}

// AuditLog

func (m *Memory) RecordAuditRun(_ context.Context, run checklist.AuditRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditRuns = append(m.auditRuns, run)
	return nil
}

func (m *Memory) ListAuditRuns(_ context.Context, limit int) ([]checklist.AuditRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]checklist.AuditRun, 0, len(m.auditRuns))
	for i := len(m.auditRuns) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.auditRuns[i])
	}
	return out, nil
}
