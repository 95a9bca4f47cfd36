package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go SQLite driver (no CGO)

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/task"
)

// SQLiteStore implements task.Store on SQLite.
// WAL mode and a single connection let the daemon and CLI share the file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ task.Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS index_task (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	pid            TEXT    NOT NULL,
	kind           TEXT    NOT NULL,
	priority       INTEGER NOT NULL,
	status         TEXT    NOT NULL,
	object_path    TEXT    NOT NULL DEFAULT '',
	format_id      TEXT    NOT NULL DEFAULT '',
	date_modified  INTEGER NOT NULL DEFAULT 0,
	serial_version TEXT    NOT NULL DEFAULT '',
	deleted        INTEGER NOT NULL DEFAULT 0,
	try_count      INTEGER NOT NULL DEFAULT 0,
	version        INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_task_pid_status ON index_task(pid, status);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

const sqliteColumns = `id, pid, kind, priority, status, object_path, format_id,
	date_modified, serial_version, deleted, try_count, version, created_at, updated_at`

// validateSQLiteIntegrity checks an existing database file before opening it.
// A missing file is valid; it will be created.
func validateSQLiteIntegrity(driver, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(driver, "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens (creating if needed) the task database at path using
// driver "sqlite" (modernc) or "sqlite3" (mattn). An empty path opens an
// in-memory database.
func NewSQLiteStore(path, driver string) (*SQLiteStore, error) {
	if driver != DriverSQLite && driver != DriverSQLite3 {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		// Tasks are not rebuildable, so corruption is fatal instead of auto-cleared.
		if err := validateSQLiteIntegrity(driver, path); err != nil {
			return nil, ierrors.New(ierrors.ErrCodeCorruptStore, "task database failed integrity check", err).
				WithDetail("path", path).
				WithSuggestion("restore the task database from backup or move it aside")
		}
		dsn = path
		if driver == DriverSQLite3 {
			dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Debug("task store opened",
		slog.String("driver", driver),
		slog.String("path", path))

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return ierrors.New(ierrors.ErrCodeStoreUnavailable, "task store is closed", nil)
	}
	return nil
}

// Save inserts or updates t.
func (s *SQLiteStore) Save(ctx context.Context, t task.IndexTask) (task.IndexTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return task.IndexTask{}, err
	}

	now := time.Now().UTC()
	if t.ID == 0 {
		t = prepareInsert(t, now)
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO index_task (pid, kind, priority, status, object_path, format_id,
				date_modified, serial_version, deleted, try_count, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.PID, string(t.Kind), t.Priority, string(t.Status), t.ObjectPath, t.FormatID,
			toMillis(t.DateModified), t.SerialVersion, t.Deleted, t.TryCount, t.Version,
			toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
		if err != nil {
			return task.IndexTask{}, fmt.Errorf("insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return task.IndexTask{}, fmt.Errorf("insert task id: %w", err)
		}
		t.ID = id
		return t, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE index_task SET pid = ?, kind = ?, priority = ?, status = ?, object_path = ?,
			format_id = ?, date_modified = ?, serial_version = ?, deleted = ?, try_count = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		t.PID, string(t.Kind), t.Priority, string(t.Status), t.ObjectPath,
		t.FormatID, toMillis(t.DateModified), t.SerialVersion, t.Deleted, t.TryCount,
		toMillis(now), t.ID, t.Version)
	if err != nil {
		return task.IndexTask{}, fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if err := s.checkApplied(ctx, res, t.ID); err != nil {
		return task.IndexTask{}, err
	}
	t.Version++
	t.UpdatedAt = now
	return t, nil
}

// Delete removes t if its version still matches.
func (s *SQLiteStore) Delete(ctx context.Context, t task.IndexTask) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM index_task WHERE id = ? AND version = ?`, t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", t.ID, err)
	}
	return s.checkApplied(ctx, res, t.ID)
}

// UpdateStatus moves t to status if its version still matches.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, t task.IndexTask, status task.Status) (task.IndexTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return task.IndexTask{}, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE index_task SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(status), toMillis(now), t.ID, t.Version)
	if err != nil {
		return task.IndexTask{}, fmt.Errorf("update task %d status: %w", t.ID, err)
	}
	if err := s.checkApplied(ctx, res, t.ID); err != nil {
		return task.IndexTask{}, err
	}
	t.Status = status
	t.Version++
	t.UpdatedAt = now
	return t, nil
}

// checkApplied turns a zero-row mutation into ErrConflict or ErrNotFound.
func (s *SQLiteStore) checkApplied(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM index_task WHERE id = ?`, id).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	case err != nil:
		return fmt.Errorf("check task %d: %w", id, err)
	}
	return fmt.Errorf("task %d: %w", id, task.ErrConflict)
}

// FindByPIDAndStatus lists tasks for pid in status st, oldest first.
func (s *SQLiteStore) FindByPIDAndStatus(ctx context.Context, pid string, st task.Status) ([]task.IndexTask, error) {
	return s.List(ctx, task.Filter{PID: pid, Status: st})
}

// Get loads one task.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (task.IndexTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return task.IndexTask{}, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM index_task WHERE id = ?`, id)
	t, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.IndexTask{}, fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	}
	return t, err
}

// List returns tasks matching f, oldest first.
func (s *SQLiteStore) List(ctx context.Context, f task.Filter) ([]task.IndexTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if f.PID != "" {
		where = append(where, "pid = ?")
		args = append(args, f.PID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + sqliteColumns + ` FROM index_task`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []task.IndexTask
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (task.IndexTask, error) {
	var (
		t                          task.IndexTask
		kind, status               string
		dateModified, created, upd int64
	)
	err := row.Scan(&t.ID, &t.PID, &kind, &t.Priority, &status, &t.ObjectPath, &t.FormatID,
		&dateModified, &t.SerialVersion, &t.Deleted, &t.TryCount, &t.Version, &created, &upd)
	if err != nil {
		return task.IndexTask{}, err
	}
	t.Kind = task.Kind(kind)
	t.Status = task.Status(status)
	t.DateModified = fromMillis(dateModified)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(upd)
	return t, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
