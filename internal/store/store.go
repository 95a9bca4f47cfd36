// Package store implements task.Store over SQLite, PostgreSQL and memory.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/indexgen/internal/task"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3  = "sqlite3" // mattn/go-sqlite3, cgo
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and configures a store backend.
type Config struct {
	Driver string
	// Path is the SQLite database file. Empty opens an in-memory database.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg Config) (task.Store, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverSQLite3, "":
		driver := cfg.Driver
		if driver == "" {
			driver = DriverSQLite
		}
		return NewSQLiteStore(cfg.Path, driver)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// prepareInsert fills the fields a new row starts with.
func prepareInsert(t task.IndexTask, now time.Time) task.IndexTask {
	if t.Status == "" {
		t.Status = task.StatusNew
	}
	if t.Priority == 0 {
		t.Priority = t.Kind.Priority()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Version = 1
	return t
}
