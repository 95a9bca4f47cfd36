package notify

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/task"
)

type call struct {
	kind Kind
	pid  string
	path string
}

// recordingGenerator records calls and returns a task for each.
type recordingGenerator struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (g *recordingGenerator) record(kind Kind, snap meta.Snapshot, path string) (*task.IndexTask, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.calls = append(g.calls, call{kind: kind, pid: snap.Identifier, path: path})
	return &task.IndexTask{ID: int64(len(g.calls)), PID: snap.Identifier}, nil
}

func (g *recordingGenerator) OnAdd(_ context.Context, snap meta.Snapshot, path string) (*task.IndexTask, error) {
	return g.record(KindAdd, snap, path)
}

func (g *recordingGenerator) OnUpdate(_ context.Context, snap meta.Snapshot, path string) (*task.IndexTask, error) {
	return g.record(KindUpdate, snap, path)
}

func (g *recordingGenerator) OnDelete(_ context.Context, snap meta.Snapshot) (*task.IndexTask, error) {
	return g.record(KindDelete, snap, "")
}

func (g *recordingGenerator) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

type stubLookup struct {
	docs map[string]meta.IndexedDocument
}

func (s stubLookup) Get(_ context.Context, id string) (meta.IndexedDocument, bool, error) {
	d, ok := s.docs[id]
	return d, ok, nil
}

type mapResolver struct {
	paths map[string]string
	err   error
}

func (r mapResolver) Resolve(_ context.Context, pid string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.paths[pid], nil
}

var errBoom = errors.New("boom")

var modified = time.UnixMilli(1502139537294).UTC()

func snap(pid string, serial int64) meta.Snapshot {
	return meta.Snapshot{
		Identifier:    pid,
		DateModified:  modified,
		SerialVersion: big.NewInt(serial),
	}
}
