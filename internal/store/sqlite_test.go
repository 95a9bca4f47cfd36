package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/task"
)

func TestSQLiteStore_Modernc(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) task.Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"), DriverSQLite)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_Mattn(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) task.Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"), DriverSQLite3)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a task saved to a file-backed store
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	s, err := NewSQLiteStore(path, DriverSQLite)
	require.NoError(t, err)
	saved, err := s.Save(context.Background(), task.IndexTask{PID: "p1", Kind: task.KindAdd})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening
	s2, err := NewSQLiteStore(path, DriverSQLite)
	require.NoError(t, err)
	defer s2.Close()

	// Then
	got, err := s2.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PID)
}

func TestSQLiteStore_CorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database, not even close"), 0644))

	_, err := NewSQLiteStore(path, DriverSQLite)

	require.Error(t, err)
	assert.True(t, ierrors.IsFatal(err))
	assert.Equal(t, ierrors.ErrCodeCorruptStore, ierrors.GetCode(err))
}

func TestSQLiteStore_ClosedStore(t *testing.T) {
	s, err := NewSQLiteStore("", DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Save(context.Background(), task.IndexTask{PID: "p1"})
	assert.Equal(t, ierrors.ErrCodeStoreUnavailable, ierrors.GetCode(err))
}

func TestNewSQLiteStore_RejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLiteStore("", "postgres")
	assert.Error(t, err)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Path: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: DriverPostgres})
	assert.Equal(t, ierrors.ErrCodeConfigInvalid, ierrors.GetCode(err))

	_, err = Open(ctx, Config{Driver: "mongo"})
	assert.Error(t, err)
}
