package generator

import (
	"context"
	"errors"
	"sync"

	"github.com/Aman-CERP/indexgen/internal/task"
)

// faultyStore wraps a real store and injects failures.
type faultyStore struct {
	task.Store

	mu         sync.Mutex
	deleteErrs map[int64]error
	listErr    error
	saveErr    error
	deletes    int
}

func (f *faultyStore) Delete(ctx context.Context, t task.IndexTask) error {
	f.mu.Lock()
	f.deletes++
	err := f.deleteErrs[t.ID]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Delete(ctx, t)
}

func (f *faultyStore) FindByPIDAndStatus(ctx context.Context, pid string, s task.Status) ([]task.IndexTask, error) {
	if f.listErr != nil && s == task.StatusNew {
		return nil, f.listErr
	}
	return f.Store.FindByPIDAndStatus(ctx, pid, s)
}

func (f *faultyStore) Save(ctx context.Context, t task.IndexTask) (task.IndexTask, error) {
	if f.saveErr != nil {
		return task.IndexTask{}, f.saveErr
	}
	return f.Store.Save(ctx, t)
}

var errDiskFull = errors.New("disk full")
