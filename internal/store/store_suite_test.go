package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexgen/internal/task"
)

// runStoreSuite exercises the task.Store contract against any backend.
func runStoreSuite(t *testing.T, open func(t *testing.T) task.Store) {
	t.Run("save assigns identity and defaults", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		modified := time.UnixMilli(1502139537294).UTC()

		saved, err := s.Save(ctx, task.IndexTask{
			PID:           "doi:10.18739/A2J32X",
			Kind:          task.KindAdd,
			ObjectPath:    "/var/metacat/data/A2J32X",
			FormatID:      "eml://ecoinformatics.org/eml-2.1.1",
			DateModified:  modified,
			SerialVersion: "2",
		})
		require.NoError(t, err)

		assert.NotZero(t, saved.ID)
		assert.Equal(t, task.StatusNew, saved.Status)
		assert.Equal(t, task.PriorityAdd, saved.Priority)
		assert.Equal(t, int64(1), saved.Version)
		assert.False(t, saved.CreatedAt.IsZero())

		got, err := s.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved.PID, got.PID)
		assert.Equal(t, task.KindAdd, got.Kind)
		assert.Equal(t, "/var/metacat/data/A2J32X", got.ObjectPath)
		assert.Equal(t, "eml://ecoinformatics.org/eml-2.1.1", got.FormatID)
		assert.Equal(t, "2", got.SerialVersion)
		assert.Equal(t, modified.UnixMilli(), got.DateModified.UnixMilli())
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("find by pid and status", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		a, err := s.Save(ctx, task.IndexTask{PID: "p1", Kind: task.KindUpdate})
		require.NoError(t, err)
		_, err = s.Save(ctx, task.IndexTask{PID: "p2", Kind: task.KindUpdate})
		require.NoError(t, err)
		failed, err := s.Save(ctx, task.IndexTask{PID: "p1", Kind: task.KindUpdate, Status: task.StatusFailed})
		require.NoError(t, err)

		news, err := s.FindByPIDAndStatus(ctx, "p1", task.StatusNew)
		require.NoError(t, err)
		require.Len(t, news, 1)
		assert.Equal(t, a.ID, news[0].ID)

		fails, err := s.FindByPIDAndStatus(ctx, "p1", task.StatusFailed)
		require.NoError(t, err)
		require.Len(t, fails, 1)
		assert.Equal(t, failed.ID, fails[0].ID)

		none, err := s.FindByPIDAndStatus(ctx, "missing", task.StatusNew)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete with current version", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		saved, err := s.Save(ctx, task.IndexTask{PID: "p1", Kind: task.KindDelete, Deleted: true})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, saved))

		_, err = s.Get(ctx, saved.ID)
		assert.ErrorIs(t, err, task.ErrNotFound)
	})

	t.Run("delete with stale version conflicts", func(t *testing.T) {
		// Given: a consumer claimed the task after we read it
		s := open(t)
		ctx := context.Background()
		saved, err := s.Save(ctx, task.IndexTask{PID: "p1", Kind: task.KindUpdate})
		require.NoError(t, err)
		_, err = s.UpdateStatus(ctx, saved, task.StatusProcessing)
		require.NoError(t, err)

		// When: deleting the stale copy
		err = s.Delete(ctx, saved)

		// Then: conflict, and the claimed task survives
		assert.ErrorIs(t, err, task.ErrConflict)
		got, err := s.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusProcessing, got.Status)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("delete missing row", func(t *testing.T) {
		s := open(t)
		err := s.Delete(context.Background(), task.IndexTask{ID: 424242, Version: 1})
		assert.ErrorIs(t, err, task.ErrNotFound)
	})

	t.Run("update via save bumps version", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		saved, err := s.Save(ctx, task.IndexTask{PID: "p1", Kind: task.KindUpdate})
		require.NoError(t, err)

		saved.TryCount = 2
		updated, err := s.Save(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		// A second save of the stale copy conflicts.
		_, err = s.Save(ctx, saved)
		assert.ErrorIs(t, err, task.ErrConflict)

		got, err := s.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.TryCount)
	})

	t.Run("list with filter and limit", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := s.Save(ctx, task.IndexTask{PID: "p1", Kind: task.KindUpdate})
			require.NoError(t, err)
		}
		_, err := s.Save(ctx, task.IndexTask{PID: "p2", Kind: task.KindAdd})
		require.NoError(t, err)

		all, err := s.List(ctx, task.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 6)

		limited, err := s.List(ctx, task.Filter{PID: "p1", Limit: 3})
		require.NoError(t, err)
		require.Len(t, limited, 3)
		assert.Less(t, limited[0].ID, limited[1].ID)
	})

	t.Run("concurrent saves", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Save(ctx, task.IndexTask{PID: "p1", Kind: task.KindUpdate})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		tasks, err := s.FindByPIDAndStatus(ctx, "p1", task.StatusNew)
		require.NoError(t, err)
		assert.Len(t, tasks, 10)
	})
}
