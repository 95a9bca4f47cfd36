package generator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/indexgen/internal/metrics"
	"github.com/Aman-CERP/indexgen/internal/task"
)

// supersededStatuses are the pending statuses a new notification replaces,
// in removal order.
var supersededStatuses = []task.Status{task.StatusNew, task.StatusFailed}

// Deduplicator removes pending tasks that a newer notification supersedes.
// Tasks a consumer has claimed (Processing, Completed) are never touched.
type Deduplicator struct {
	store   task.Store
	metrics *metrics.Metrics
}

// NewDeduplicator creates a deduplicator over store.
func NewDeduplicator(store task.Store, m *metrics.Metrics) *Deduplicator {
	return &Deduplicator{store: store, metrics: m}
}

// RemoveSupersededTasks deletes every New and Failed task for pid and returns
// how many were removed. Individual failures are logged and skipped; a task
// claimed concurrently by a consumer surfaces as task.ErrConflict and is left
// alone. It stops with ctx.Err() once ctx is done.
func (d *Deduplicator) RemoveSupersededTasks(ctx context.Context, pid string) (int, error) {
	removed := 0
	for _, status := range supersededStatuses {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		tasks, err := d.store.FindByPIDAndStatus(ctx, pid, status)
		if err != nil {
			slog.Warn("failed to list pending tasks for dedup",
				slog.String("pid", pid),
				slog.String("status", string(status)),
				slog.String("error", err.Error()))
			d.metrics.DedupSkipped(metrics.CauseError)
			continue
		}

		for _, t := range tasks {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			err := d.store.Delete(ctx, t)
			switch {
			case err == nil:
				removed++
				d.metrics.TaskSuperseded(string(status))
			case errors.Is(err, task.ErrConflict):
				slog.Debug("unable to delete existing index task prior to generating new index task",
					slog.String("pid", t.PID),
					slog.Int64("task_id", t.ID))
				d.metrics.DedupSkipped(metrics.CauseConflict)
			case errors.Is(err, task.ErrNotFound):
				slog.Debug("existing index task already removed",
					slog.String("pid", t.PID),
					slog.Int64("task_id", t.ID))
				d.metrics.DedupSkipped(metrics.CauseNotFound)
			default:
				slog.Warn("failed to delete superseded index task",
					slog.String("pid", t.PID),
					slog.Int64("task_id", t.ID),
					slog.String("error", err.Error()))
				d.metrics.DedupSkipped(metrics.CauseError)
			}
		}
	}
	return removed, nil
}
