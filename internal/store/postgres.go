package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/task"
)

// PostgresStore implements task.Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ task.Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS index_task (
	id             BIGSERIAL PRIMARY KEY,
	pid            TEXT        NOT NULL,
	kind           TEXT        NOT NULL,
	priority       INTEGER     NOT NULL,
	status         TEXT        NOT NULL,
	object_path    TEXT        NOT NULL DEFAULT '',
	format_id      TEXT        NOT NULL DEFAULT '',
	date_modified  TIMESTAMPTZ NULL,
	serial_version TEXT        NOT NULL DEFAULT '',
	deleted        BOOLEAN     NOT NULL DEFAULT FALSE,
	try_count      INTEGER     NOT NULL DEFAULT 0,
	version        BIGINT      NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_index_task_pid_status ON index_task(pid, status);
`

const postgresColumns = `id, pid, kind, priority, status, object_path, format_id,
	date_modified, serial_version, deleted, try_count, version, created_at, updated_at`

// NewPostgresStore connects to dsn and creates the schema if missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, ierrors.ConfigError("postgres store requires a DSN", nil).
			WithSuggestion("set store.dsn or INDEXGEN_STORE_DSN")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if config.MaxConns == 0 {
		config.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ierrors.New(ierrors.ErrCodeStoreUnavailable, "postgres is unreachable", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Save inserts or updates t.
func (s *PostgresStore) Save(ctx context.Context, t task.IndexTask) (task.IndexTask, error) {
	now := time.Now().UTC()
	if t.ID == 0 {
		t = prepareInsert(t, now)
		const q = `
INSERT INTO index_task (pid, kind, priority, status, object_path, format_id,
	date_modified, serial_version, deleted, try_count, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id;
`
		err := s.pool.QueryRow(ctx, q,
			t.PID, string(t.Kind), t.Priority, string(t.Status), t.ObjectPath, t.FormatID,
			nullTime(t.DateModified), t.SerialVersion, t.Deleted, t.TryCount, t.Version,
			t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
		if err != nil {
			return task.IndexTask{}, fmt.Errorf("insert task: %w", err)
		}
		return t, nil
	}

	const q = `
UPDATE index_task SET pid = $1, kind = $2, priority = $3, status = $4, object_path = $5,
	format_id = $6, date_modified = $7, serial_version = $8, deleted = $9, try_count = $10,
	version = version + 1, updated_at = $11
WHERE id = $12 AND version = $13;
`
	tag, err := s.pool.Exec(ctx, q,
		t.PID, string(t.Kind), t.Priority, string(t.Status), t.ObjectPath,
		t.FormatID, nullTime(t.DateModified), t.SerialVersion, t.Deleted, t.TryCount,
		now, t.ID, t.Version)
	if err != nil {
		return task.IndexTask{}, fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return task.IndexTask{}, s.missReason(ctx, t.ID)
	}
	t.Version++
	t.UpdatedAt = now
	return t, nil
}

// Delete removes t if its version still matches.
func (s *PostgresStore) Delete(ctx context.Context, t task.IndexTask) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM index_task WHERE id = $1 AND version = $2`, t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missReason(ctx, t.ID)
	}
	return nil
}

// UpdateStatus moves t to status if its version still matches.
func (s *PostgresStore) UpdateStatus(ctx context.Context, t task.IndexTask, status task.Status) (task.IndexTask, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
UPDATE index_task SET status = $1, version = version + 1, updated_at = $2
WHERE id = $3 AND version = $4`, string(status), now, t.ID, t.Version)
	if err != nil {
		return task.IndexTask{}, fmt.Errorf("update task %d status: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return task.IndexTask{}, s.missReason(ctx, t.ID)
	}
	t.Status = status
	t.Version++
	t.UpdatedAt = now
	return t, nil
}

func (s *PostgresStore) missReason(ctx context.Context, id int64) error {
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM index_task WHERE id = $1`, id).Scan(&exists)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	case err != nil:
		return fmt.Errorf("check task %d: %w", id, err)
	}
	return fmt.Errorf("task %d: %w", id, task.ErrConflict)
}

// FindByPIDAndStatus lists tasks for pid in status st, oldest first.
func (s *PostgresStore) FindByPIDAndStatus(ctx context.Context, pid string, st task.Status) ([]task.IndexTask, error) {
	return s.List(ctx, task.Filter{PID: pid, Status: st})
}

// Get loads one task.
func (s *PostgresStore) Get(ctx context.Context, id int64) (task.IndexTask, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM index_task WHERE id = $1`, id)
	t, err := scanPostgresTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return task.IndexTask{}, fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	}
	return t, err
}

// List returns tasks matching f, oldest first.
func (s *PostgresStore) List(ctx context.Context, f task.Filter) ([]task.IndexTask, error) {
	var where []string
	var args []any
	if f.PID != "" {
		args = append(args, f.PID)
		where = append(where, "pid = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}

	q := `SELECT ` + postgresColumns + ` FROM index_task`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]task.IndexTask, 0, 4)
	for rows.Next() {
		t, err := scanPostgresTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresTask(row pgx.Row) (task.IndexTask, error) {
	var (
		t            task.IndexTask
		kind, status string
		dateModified *time.Time
	)
	err := row.Scan(&t.ID, &t.PID, &kind, &t.Priority, &status, &t.ObjectPath, &t.FormatID,
		&dateModified, &t.SerialVersion, &t.Deleted, &t.TryCount, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.IndexTask{}, err
	}
	t.Kind = task.Kind(kind)
	t.Status = task.Status(status)
	if dateModified != nil {
		t.DateModified = dateModified.UTC()
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
