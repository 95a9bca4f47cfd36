package generator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexgen/internal/store"
	"github.com/Aman-CERP/indexgen/internal/task"
)

func seed(t *testing.T, s task.Store, pid string, status task.Status) task.IndexTask {
	t.Helper()
	saved, err := s.Save(context.Background(), task.IndexTask{PID: pid, Kind: task.KindUpdate, Status: status})
	require.NoError(t, err)
	return saved
}

func TestDeduplicator_RemovesNewAndFailedOnly(t *testing.T) {
	// Given: one task in every status for p1 and a New task for p2
	s := store.NewMemoryStore()
	seed(t, s, "p1", task.StatusNew)
	seed(t, s, "p1", task.StatusFailed)
	processing := seed(t, s, "p1", task.StatusProcessing)
	completed := seed(t, s, "p1", task.StatusCompleted)
	other := seed(t, s, "p2", task.StatusNew)

	// When
	removed, err := NewDeduplicator(s, nil).RemoveSupersededTasks(context.Background(), "p1")

	// Then
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := s.List(context.Background(), task.Filter{})
	require.NoError(t, err)
	var ids []int64
	for _, r := range remaining {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []int64{processing.ID, completed.ID, other.ID}, ids)
}

func TestDeduplicator_SkipsConflictsAndContinues(t *testing.T) {
	// Given: the first of three New tasks was claimed by a consumer meanwhile
	mem := store.NewMemoryStore()
	first := seed(t, mem, "p1", task.StatusNew)
	seed(t, mem, "p1", task.StatusNew)
	seed(t, mem, "p1", task.StatusFailed)
	s := &faultyStore{Store: mem, deleteErrs: map[int64]error{
		first.ID: fmt.Errorf("task %d: %w", first.ID, task.ErrConflict),
	}}

	// When
	removed, err := NewDeduplicator(s, nil).RemoveSupersededTasks(context.Background(), "p1")

	// Then: the conflict is skipped and the rest are removed
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, s.deletes)
}

func TestDeduplicator_OtherErrorsDoNotAbort(t *testing.T) {
	mem := store.NewMemoryStore()
	first := seed(t, mem, "p1", task.StatusNew)
	seed(t, mem, "p1", task.StatusNew)
	s := &faultyStore{Store: mem, deleteErrs: map[int64]error{first.ID: errDiskFull}}

	removed, err := NewDeduplicator(s, nil).RemoveSupersededTasks(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestDeduplicator_ListErrorIsSkipped(t *testing.T) {
	// Given: listing New tasks fails but Failed tasks can be listed
	mem := store.NewMemoryStore()
	seed(t, mem, "p1", task.StatusNew)
	seed(t, mem, "p1", task.StatusFailed)
	s := &faultyStore{Store: mem, listErr: errDiskFull}

	removed, err := NewDeduplicator(s, nil).RemoveSupersededTasks(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestDeduplicator_NothingToRemove(t *testing.T) {
	removed, err := NewDeduplicator(store.NewMemoryStore(), nil).RemoveSupersededTasks(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeduplicator_StopsWhenContextDone(t *testing.T) {
	// Given: pending tasks and a cancelled context
	s := store.NewMemoryStore()
	seed(t, s, "p1", task.StatusNew)
	seed(t, s, "p1", task.StatusFailed)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When
	removed, err := NewDeduplicator(s, nil).RemoveSupersededTasks(ctx, "p1")

	// Then: nothing is removed and the cancellation is reported
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, removed)

	remaining, err := s.List(context.Background(), task.Filter{PID: "p1"})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
