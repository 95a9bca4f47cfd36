// Package notify connects change-notification transports to the task
// generator. Transports decode notifications into Events and call a Handler;
// the Dispatcher is the Handler that applies the notification policy and
// generates tasks.
package notify

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/indexgen/internal/filter"
	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/metrics"
	"github.com/Aman-CERP/indexgen/internal/task"
)

// Handler receives one callback per notification kind.
type Handler interface {
	OnAdd(ctx context.Context, snap meta.Snapshot, objectPath string) error
	OnUpdate(ctx context.Context, snap meta.Snapshot, objectPath string) error
	OnDelete(ctx context.Context, snap meta.Snapshot, objectPath string) error
}

// Generator creates index tasks. *generator.Generator implements it.
type Generator interface {
	OnAdd(ctx context.Context, snap meta.Snapshot, objectPath string) (*task.IndexTask, error)
	OnUpdate(ctx context.Context, snap meta.Snapshot, objectPath string) (*task.IndexTask, error)
	OnDelete(ctx context.Context, snap meta.Snapshot) (*task.IndexTask, error)
}

// PathResolver finds the stored object path for an identifier. It returns
// "" with a nil error when the path is unknown.
type PathResolver interface {
	Resolve(ctx context.Context, pid string) (string, error)
}

// Options configures a Dispatcher.
type Options struct {
	// ReplayGuard skips Add notifications whose serial version is above 1;
	// those are replays of objects whose metadata has already changed.
	ReplayGuard bool

	// PreCheck consults the necessity filter before generating Add and
	// Update tasks. Deletes are never filtered.
	PreCheck bool
}

// Dispatcher is the Handler that turns notifications into index tasks.
type Dispatcher struct {
	gen     Generator
	filter  *filter.Filter
	paths   PathResolver
	opts    Options
	metrics *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithFilter sets the necessity filter used when Options.PreCheck is on.
func WithFilter(f *filter.Filter) DispatcherOption {
	return func(d *Dispatcher) { d.filter = f }
}

// WithPathResolver resolves object paths for notifications that carry none.
func WithPathResolver(r PathResolver) DispatcherOption {
	return func(d *Dispatcher) { d.paths = r }
}

// WithMetrics counts notification outcomes on m.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher feeding gen.
func NewDispatcher(gen Generator, opts Options, dopts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{gen: gen, opts: opts}
	for _, o := range dopts {
		o(d)
	}
	return d
}

var _ Handler = (*Dispatcher)(nil)

// OnAdd handles a notification that an object was created.
func (d *Dispatcher) OnAdd(ctx context.Context, snap meta.Snapshot, objectPath string) error {
	if d.opts.ReplayGuard && snap.SerialVersion != nil && snap.SerialVersion.Cmp(bigOne) > 0 {
		slog.Info("add event skipped due to serial version",
			slog.String("pid", snap.Identifier),
			slog.String("serial_version", snap.SerialString()))
		d.metrics.Notification(string(KindAdd), metrics.OutcomeReplay)
		return nil
	}
	if d.skip(ctx, KindAdd, snap) {
		return nil
	}
	objectPath = d.resolvePath(ctx, snap.Identifier, objectPath)
	t, err := d.gen.OnAdd(ctx, snap, objectPath)
	return d.record(KindAdd, snap, t, err)
}

// OnUpdate handles a notification that an object's metadata changed.
func (d *Dispatcher) OnUpdate(ctx context.Context, snap meta.Snapshot, objectPath string) error {
	if d.skip(ctx, KindUpdate, snap) {
		return nil
	}
	objectPath = d.resolvePath(ctx, snap.Identifier, objectPath)
	t, err := d.gen.OnUpdate(ctx, snap, objectPath)
	return d.record(KindUpdate, snap, t, err)
}

// OnDelete handles a notification that an object was removed.
func (d *Dispatcher) OnDelete(ctx context.Context, snap meta.Snapshot, _ string) error {
	t, err := d.gen.OnDelete(ctx, snap)
	return d.record(KindDelete, snap, t, err)
}

// skip runs the necessity pre-check.
func (d *Dispatcher) skip(ctx context.Context, kind Kind, snap meta.Snapshot) bool {
	if !d.opts.PreCheck || d.filter == nil {
		return false
	}
	dec := d.filter.Evaluate(ctx, snap)
	if dec.Index {
		return false
	}
	slog.Info("event filtered out, index already current",
		slog.String("pid", snap.Identifier),
		slog.String("kind", string(kind)),
		slog.String("reason", string(dec.Reason)))
	d.metrics.Notification(string(kind), metrics.OutcomeSkipped)
	return true
}

func (d *Dispatcher) resolvePath(ctx context.Context, pid, objectPath string) string {
	if objectPath != "" || d.paths == nil {
		return objectPath
	}
	p, err := d.paths.Resolve(ctx, pid)
	if err != nil {
		slog.Warn("failed to resolve object path",
			slog.String("pid", pid),
			slog.String("error", err.Error()))
		return ""
	}
	return p
}

func (d *Dispatcher) record(kind Kind, snap meta.Snapshot, t *task.IndexTask, err error) error {
	switch {
	case err != nil:
		d.metrics.Notification(string(kind), metrics.OutcomeFailed)
		return err
	case t == nil:
		d.metrics.Notification(string(kind), metrics.OutcomeIgnored)
	default:
		d.metrics.Notification(string(kind), metrics.OutcomeGenerated)
	}
	return nil
}
