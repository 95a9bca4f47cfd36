package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/indexgen/internal/task"
)

// MemoryStore is a task.Store held in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tasks  map[int64]task.IndexTask
	nextID int64
}

var _ task.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[int64]task.IndexTask)}
}

// Save inserts or updates t.
func (m *MemoryStore) Save(ctx context.Context, t task.IndexTask) (task.IndexTask, error) {
	if err := ctx.Err(); err != nil {
		return task.IndexTask{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if t.ID == 0 {
		m.nextID++
		t = prepareInsert(t, now)
		t.ID = m.nextID
		m.tasks[t.ID] = t
		return t, nil
	}

	if err := m.checkVersion(t); err != nil {
		return task.IndexTask{}, err
	}
	t.Version++
	t.UpdatedAt = now
	t.CreatedAt = m.tasks[t.ID].CreatedAt
	m.tasks[t.ID] = t
	return t, nil
}

// Delete removes t if its version still matches.
func (m *MemoryStore) Delete(ctx context.Context, t task.IndexTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersion(t); err != nil {
		return err
	}
	delete(m.tasks, t.ID)
	return nil
}

// UpdateStatus moves t to status if its version still matches.
func (m *MemoryStore) UpdateStatus(ctx context.Context, t task.IndexTask, status task.Status) (task.IndexTask, error) {
	if err := ctx.Err(); err != nil {
		return task.IndexTask{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersion(t); err != nil {
		return task.IndexTask{}, err
	}
	stored := m.tasks[t.ID]
	stored.Status = status
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	m.tasks[t.ID] = stored
	return stored, nil
}

// checkVersion must be called with mu held.
func (m *MemoryStore) checkVersion(t task.IndexTask) error {
	stored, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %d: %w", t.ID, task.ErrNotFound)
	}
	if stored.Version != t.Version {
		return fmt.Errorf("task %d: %w", t.ID, task.ErrConflict)
	}
	return nil
}

// FindByPIDAndStatus lists tasks for pid in status st, oldest first.
func (m *MemoryStore) FindByPIDAndStatus(ctx context.Context, pid string, st task.Status) ([]task.IndexTask, error) {
	return m.List(ctx, task.Filter{PID: pid, Status: st})
}

// Get loads one task.
func (m *MemoryStore) Get(ctx context.Context, id int64) (task.IndexTask, error) {
	if err := ctx.Err(); err != nil {
		return task.IndexTask{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return task.IndexTask{}, fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	}
	return t, nil
}

// List returns tasks matching f, oldest first.
func (m *MemoryStore) List(ctx context.Context, f task.Filter) ([]task.IndexTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []task.IndexTask
	for _, t := range m.tasks {
		if f.PID != "" && t.PID != f.PID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
