// Package filter decides whether a metadata change notification needs to be
// turned into an index task, by comparing the notified snapshot with what the
// search index currently holds for the same identifier.
package filter

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/metrics"
)

// Lookup fetches the indexed representation of an identifier.
// found is false, with a nil error, when the index has no such document.
type Lookup interface {
	Get(ctx context.Context, id string) (doc meta.IndexedDocument, found bool, err error)
}

// Reason names the rule that produced a Decision.
type Reason string

const (
	ReasonDisabled        Reason = "disabled"
	ReasonArchivedAbsent  Reason = "archived_absent"
	ReasonNotIndexed      Reason = "not_indexed"
	ReasonNewer           Reason = "newer"
	ReasonStale           Reason = "stale"
	ReasonSerialEqual     Reason = "serial_equal"
	ReasonSerialNewer     Reason = "serial_newer"
	ReasonSerialOlder     Reason = "serial_older"
	ReasonSerialUnknown   Reason = "serial_unknown"
	ReasonReplicasEqual   Reason = "replicas_equal"
	ReasonReplicasChanged Reason = "replicas_changed"
	ReasonLookupFailed    Reason = "lookup_failed"
	ReasonUndated         Reason = "snapshot_undated"
)

// Decision is the outcome of evaluating one snapshot.
type Decision struct {
	Index  bool
	Reason Reason
}

// Config configures the filter.
type Config struct {
	// Enabled turns filtering on. When false every snapshot is indexed.
	Enabled bool
}

// Option configures a Filter.
type Option func(*Filter)

// WithMetrics records every decision and lookup latency on m.
func WithMetrics(m *metrics.Metrics, backend string) Option {
	return func(f *Filter) {
		f.metrics = m
		f.backend = backend
	}
}

// Filter is the index necessity filter. It holds no per-call state and is
// safe for concurrent use.
type Filter struct {
	enabled bool
	lookup  Lookup
	metrics *metrics.Metrics
	backend string
}

// New creates a filter reading indexed state through lookup.
func New(cfg Config, lookup Lookup, opts ...Option) *Filter {
	f := &Filter{
		enabled: cfg.Enabled,
		lookup:  lookup,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NeedsIndexing reports whether snap must be (re)indexed.
func (f *Filter) NeedsIndexing(ctx context.Context, snap meta.Snapshot) bool {
	return f.Evaluate(ctx, snap).Index
}

// Evaluate runs the decision table for snap. Any failure to read the indexed
// state fails open: the snapshot is indexed.
func (f *Filter) Evaluate(ctx context.Context, snap meta.Snapshot) Decision {
	d := f.evaluate(ctx, snap)
	f.metrics.ObserveDecision(string(d.Reason), d.Index)
	slog.Debug("index decision",
		slog.String("pid", snap.Identifier),
		slog.Bool("index", d.Index),
		slog.String("reason", string(d.Reason)))
	return d
}

func (f *Filter) evaluate(ctx context.Context, snap meta.Snapshot) Decision {
	if !f.enabled || f.lookup == nil {
		return Decision{Index: true, Reason: ReasonDisabled}
	}

	start := time.Now()
	doc, found, err := f.lookup.Get(ctx, snap.Identifier)
	f.metrics.ObserveLookup(f.backend, time.Since(start))
	if err != nil {
		slog.Warn("index lookup failed, indexing anyway",
			slog.String("pid", snap.Identifier),
			slog.String("error", err.Error()))
		return Decision{Index: true, Reason: ReasonLookupFailed}
	}

	if !found {
		if snap.Archived {
			return Decision{Index: false, Reason: ReasonArchivedAbsent}
		}
		return Decision{Index: true, Reason: ReasonNotIndexed}
	}

	if snap.DateModified.IsZero() {
		slog.Warn("snapshot has no dateModified, indexing anyway",
			slog.String("pid", snap.Identifier))
		return Decision{Index: true, Reason: ReasonUndated}
	}
	if doc.DateModified.IsZero() {
		slog.Warn("indexed document has no dateModified, indexing anyway",
			slog.String("pid", snap.Identifier))
		return Decision{Index: true, Reason: ReasonLookupFailed}
	}

	snapMs := snap.DateModified.UnixMilli()
	docMs := doc.DateModified.UnixMilli()
	switch {
	case snapMs > docMs:
		return Decision{Index: true, Reason: ReasonNewer}
	case snapMs < docMs:
		return Decision{Index: false, Reason: ReasonStale}
	}

	if doc.SerialVersion != nil {
		if snap.SerialVersion == nil {
			return Decision{Index: true, Reason: ReasonSerialUnknown}
		}
		switch snap.SerialVersion.Cmp(doc.SerialVersion) {
		case 0:
			return Decision{Index: false, Reason: ReasonSerialEqual}
		case 1:
			return Decision{Index: true, Reason: ReasonSerialNewer}
		default:
			return Decision{Index: false, Reason: ReasonSerialOlder}
		}
	}

	if ReplicasEqual(snap.Replicas, doc.Replicas) {
		return Decision{Index: false, Reason: ReasonReplicasEqual}
	}
	return Decision{Index: true, Reason: ReasonReplicasChanged}
}
