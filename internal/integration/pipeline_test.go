package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexgen/internal/filter"
	"github.com/Aman-CERP/indexgen/internal/generator"
	"github.com/Aman-CERP/indexgen/internal/localindex"
	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/metrics"
	"github.com/Aman-CERP/indexgen/internal/notify"
	"github.com/Aman-CERP/indexgen/internal/server"
	"github.com/Aman-CERP/indexgen/internal/store"
	"github.com/Aman-CERP/indexgen/internal/task"
)

// Integration Tests - notifications flow through a real SQLite task store
// and an embedded bleve index, the way 'indexgen run' wires them.

type pipeline struct {
	store      task.Store
	index      *localindex.Index
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics
}

func newPipeline(t *testing.T, opts notify.Options) *pipeline {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dir := t.TempDir()

	st, err := store.Open(context.Background(), store.Config{
		Driver: store.DriverSQLite,
		Path:   filepath.Join(dir, "tasks.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := localindex.Open(filepath.Join(dir, "index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	m, err := metrics.New(nil)
	require.NoError(t, err)

	f := filter.New(filter.Config{Enabled: true}, idx, filter.WithMetrics(m, "bleve"))
	gen := generator.New(generator.Config{}, st, m)
	d := notify.NewDispatcher(gen, opts, notify.WithFilter(f), notify.WithMetrics(m))

	return &pipeline{store: st, index: idx, dispatcher: d, metrics: m}
}

var modified = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshot(pid string, serial int64, at time.Time) meta.Snapshot {
	return meta.Snapshot{
		Identifier:    pid,
		DateModified:  at,
		SerialVersion: big.NewInt(serial),
		FormatID:      "eml://ecoinformatics.org/eml-2.1.1",
		Replicas:      []meta.Replica{{MemberNode: "urn:node:A", Verified: at}},
	}
}

func (p *pipeline) tasksFor(t *testing.T, pid string) []task.IndexTask {
	t.Helper()
	tasks, err := p.store.List(context.Background(), task.Filter{PID: pid})
	require.NoError(t, err)
	return tasks
}

func writeEvent(t *testing.T, dir, name string, ev notify.Event) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestSpoolPipeline_SupersedesAndFilters(t *testing.T) {
	// Given: a pipeline with the pre-check on and one document already indexed
	p := newPipeline(t, notify.Options{PreCheck: true, ReplayGuard: true})
	ctx := context.Background()
	current := snapshot("urn:uuid:indexed", 2, modified)
	require.NoError(t, p.index.Put(ctx, meta.IndexedDocument{
		ID:            current.Identifier,
		DateModified:  current.DateModified,
		SerialVersion: current.SerialVersion,
		Replicas:      current.Replicas,
	}))

	spoolDir := t.TempDir()
	src, err := notify.NewSpoolSource(spoolDir, p.dispatcher, notify.SpoolOptions{})
	require.NoError(t, err)

	writeEvent(t, spoolDir, "001.json", notify.Event{ID: "1", Kind: notify.KindAdd,
		Snapshot: snapshot("urn:uuid:new", 1, modified), ObjectPath: "/data/new/1"})
	writeEvent(t, spoolDir, "002.json", notify.Event{ID: "2", Kind: notify.KindUpdate,
		Snapshot: snapshot("urn:uuid:new", 2, modified.Add(time.Minute)), ObjectPath: "/data/new/2"})
	writeEvent(t, spoolDir, "003.json", notify.Event{ID: "3", Kind: notify.KindUpdate,
		Snapshot: current})
	writeEvent(t, spoolDir, "004.json", notify.Event{ID: "4", Kind: notify.KindAdd,
		Snapshot: snapshot("urn:uuid:replayed", 5, modified)})
	require.NoError(t, os.WriteFile(filepath.Join(spoolDir, "005.json"), []byte(`{"kind":"add"`), 0o644))

	// When: the spool is drained
	processed := src.Drain(ctx)

	// Then: the four valid events were handled and the broken one quarantined
	assert.Equal(t, 4, processed)
	_, err = os.Stat(filepath.Join(spoolDir, "failed", "005.json"))
	assert.NoError(t, err)
	left, err := filepath.Glob(filepath.Join(spoolDir, "*.json"))
	require.NoError(t, err)
	assert.Empty(t, left)

	// And: the update superseded the pending add for the same identifier
	tasks := p.tasksFor(t, "urn:uuid:new")
	require.Len(t, tasks, 1)
	assert.Equal(t, task.KindUpdate, tasks[0].Kind)
	assert.Equal(t, "2", tasks[0].SerialVersion)
	assert.Equal(t, "/data/new/2", tasks[0].ObjectPath)

	// And: the current document and the replayed add produced nothing
	assert.Empty(t, p.tasksFor(t, "urn:uuid:indexed"))
	assert.Empty(t, p.tasksFor(t, "urn:uuid:replayed"))
}

func TestSpoolPipeline_ClaimedTaskIsNotSuperseded(t *testing.T) {
	// Given: a task already claimed by an indexer
	p := newPipeline(t, notify.Options{})
	ctx := context.Background()
	require.NoError(t, p.dispatcher.OnUpdate(ctx, snapshot("urn:uuid:busy", 1, modified), "/data/busy"))
	tasks := p.tasksFor(t, "urn:uuid:busy")
	require.Len(t, tasks, 1)
	_, err := p.store.UpdateStatus(ctx, tasks[0], task.StatusProcessing)
	require.NoError(t, err)

	// When: another update arrives
	require.NoError(t, p.dispatcher.OnUpdate(ctx, snapshot("urn:uuid:busy", 2, modified.Add(time.Second)), "/data/busy"))

	// Then: the claimed task stays and a new one is queued beside it
	tasks = p.tasksFor(t, "urn:uuid:busy")
	require.Len(t, tasks, 2)
	assert.Equal(t, task.StatusProcessing, tasks[0].Status)
	assert.Equal(t, task.StatusNew, tasks[1].Status)
}

func TestSpoolPipeline_DeleteIsNeverFiltered(t *testing.T) {
	// Given: an indexed document that is current
	p := newPipeline(t, notify.Options{PreCheck: true})
	ctx := context.Background()
	snap := snapshot("urn:uuid:gone", 3, modified)
	require.NoError(t, p.index.Put(ctx, meta.IndexedDocument{
		ID:            snap.Identifier,
		DateModified:  snap.DateModified,
		SerialVersion: snap.SerialVersion,
		Replicas:      snap.Replicas,
	}))

	// When: a delete for it arrives
	require.NoError(t, p.dispatcher.OnDelete(ctx, snap, "/ignored"))

	// Then: a delete task is queued
	tasks := p.tasksFor(t, "urn:uuid:gone")
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Deleted)
	assert.Equal(t, task.PriorityDelete, tasks[0].Priority)
}

func TestHTTPPipeline_EventsReachTheStore(t *testing.T) {
	// Given: the HTTP server in front of the pipeline
	p := newPipeline(t, notify.Options{PreCheck: true})
	srv := server.New(server.Config{}, p.dispatcher, p.metrics)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	post := func(body []byte) *http.Response {
		resp, err := http.Post(ts.URL+"/v1/events", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	// When: posting a batch of updates for distinct identifiers
	for i := 0; i < 5; i++ {
		body, err := json.Marshal(notify.Event{
			Kind:     notify.KindUpdate,
			Snapshot: snapshot(fmt.Sprintf("urn:uuid:http-%d", i), 1, modified),
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, post(body).StatusCode)
	}

	// Then: one task per identifier is queued
	all, err := p.store.List(context.Background(), task.Filter{Status: task.StatusNew})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	// And: a malformed event is rejected without touching the store
	assert.Equal(t, http.StatusBadRequest, post([]byte(`{"kind":"add","snapshot":{}}`)).StatusCode)
	all, err = p.store.List(context.Background(), task.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	// And: the decisions show up on /metrics
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `indexgen_filter_decisions_total{index="true",reason="not_indexed"} 5`)
	assert.Contains(t, buf.String(), `indexgen_tasks_generated_total{kind="update"} 5`)
}
