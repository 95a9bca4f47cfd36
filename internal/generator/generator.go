// Package generator turns metadata change notifications into durable index
// tasks, collapsing repeated notifications for one identifier into a single
// pending task.
package generator

import (
	"context"
	"log/slog"
	"time"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/metrics"
	"github.com/Aman-CERP/indexgen/internal/task"
)

// Config configures a Generator.
type Config struct {
	// IgnorePIDs never produce tasks. Nil uses DefaultIgnorePIDs.
	IgnorePIDs []string
}

// Generator creates index tasks. It is safe for concurrent use; concurrent
// calls for the same identifier may each leave a New task behind, so callers
// serialize notifications per identifier.
type Generator struct {
	store   task.Store
	dedup   *Deduplicator
	ignore  IgnoreList
	metrics *metrics.Metrics
}

// New creates a generator writing to store.
func New(cfg Config, store task.Store, m *metrics.Metrics) *Generator {
	pids := cfg.IgnorePIDs
	if pids == nil {
		pids = DefaultIgnorePIDs
	}
	return &Generator{
		store:   store,
		dedup:   NewDeduplicator(store, m),
		ignore:  NewIgnoreList(pids),
		metrics: m,
	}
}

// Ignored reports whether pid is on the ignore list.
func (g *Generator) Ignored(pid string) bool {
	return g.ignore.Ignored(pid)
}

// OnAdd creates an Add task for a newly created object.
// It returns nil, nil for ignored identifiers.
func (g *Generator) OnAdd(ctx context.Context, snap meta.Snapshot, objectPath string) (*task.IndexTask, error) {
	return g.generate(ctx, snap, task.KindAdd, objectPath)
}

// OnUpdate creates an Update task for a modified object.
// It returns nil, nil for ignored identifiers.
func (g *Generator) OnUpdate(ctx context.Context, snap meta.Snapshot, objectPath string) (*task.IndexTask, error) {
	return g.generate(ctx, snap, task.KindUpdate, objectPath)
}

// OnDelete creates a Delete task removing the object from the index.
// It returns nil, nil for ignored identifiers.
func (g *Generator) OnDelete(ctx context.Context, snap meta.Snapshot) (*task.IndexTask, error) {
	return g.generate(ctx, snap, task.KindDelete, "")
}

func (g *Generator) generate(ctx context.Context, snap meta.Snapshot, kind task.Kind, objectPath string) (*task.IndexTask, error) {
	if snap.Identifier == "" {
		return nil, ierrors.New(ierrors.ErrCodeInvalidSnapshot, "snapshot has no identifier", nil).
			WithDetail("kind", string(kind))
	}
	if g.ignore.Ignored(snap.Identifier) {
		slog.Debug("identifier is on the ignore list, no task generated",
			slog.String("pid", snap.Identifier),
			slog.String("kind", string(kind)))
		return nil, nil
	}

	start := time.Now()

	removed, err := g.dedup.RemoveSupersededTasks(ctx, snap.Identifier)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeGenerationFailed, "dedup failed", err).
			WithDetail("pid", snap.Identifier)
	}

	t := newTask(snap, kind, objectPath)
	saved, err := g.store.Save(ctx, t)
	if err != nil {
		return nil, ierrors.StoreError("failed to save index task", err).
			WithDetail("pid", snap.Identifier).
			WithDetail("kind", string(kind))
	}

	g.metrics.TaskGenerated(string(kind))
	slog.Info("index task generated",
		slog.String("pid", saved.PID),
		slog.String("kind", string(kind)),
		slog.Int64("task_id", saved.ID),
		slog.Int("superseded", removed),
		slog.Duration("duration", time.Since(start)))

	return &saved, nil
}

func newTask(snap meta.Snapshot, kind task.Kind, objectPath string) task.IndexTask {
	t := task.IndexTask{
		PID:           snap.Identifier,
		Kind:          kind,
		Priority:      kind.Priority(),
		Status:        task.StatusNew,
		FormatID:      snap.FormatID,
		DateModified:  snap.DateModified,
		SerialVersion: snap.SerialString(),
	}
	if kind == task.KindDelete {
		t.Deleted = true
	} else {
		t.ObjectPath = objectPath
	}
	return t
}
