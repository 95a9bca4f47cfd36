package notify

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexgen/internal/filter"
	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/metrics"
)

func TestDispatcher_ForwardsEachKind(t *testing.T) {
	// Given a dispatcher with no policy options
	gen := &recordingGenerator{}
	d := NewDispatcher(gen, Options{})
	ctx := context.Background()

	// When one notification of each kind arrives
	require.NoError(t, d.OnAdd(ctx, snap("p1", 1), "/a"))
	require.NoError(t, d.OnUpdate(ctx, snap("p1", 2), "/b"))
	require.NoError(t, d.OnDelete(ctx, snap("p1", 3), "/ignored"))

	// Then the generator sees them in order, delete without a path
	assert.Equal(t, []call{
		{kind: KindAdd, pid: "p1", path: "/a"},
		{kind: KindUpdate, pid: "p1", path: "/b"},
		{kind: KindDelete, pid: "p1"},
	}, gen.Calls())
}

func TestDispatcher_ReplayGuard(t *testing.T) {
	tests := []struct {
		name   string
		serial *big.Int
		want   int
	}{
		{name: "first version", serial: big.NewInt(1), want: 1},
		{name: "unknown serial", serial: nil, want: 1},
		{name: "replayed add", serial: big.NewInt(2), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &recordingGenerator{}
			d := NewDispatcher(gen, Options{ReplayGuard: true})
			s := snap("p1", 0)
			s.SerialVersion = tt.serial

			require.NoError(t, d.OnAdd(context.Background(), s, ""))
			assert.Len(t, gen.Calls(), tt.want)
		})
	}
}

func TestDispatcher_ReplayGuardLeavesUpdatesAlone(t *testing.T) {
	gen := &recordingGenerator{}
	d := NewDispatcher(gen, Options{ReplayGuard: true})

	require.NoError(t, d.OnUpdate(context.Background(), snap("p1", 7), ""))
	assert.Len(t, gen.Calls(), 1)
}

func TestDispatcher_PreCheckSkipsCurrentDocuments(t *testing.T) {
	// Given an index already holding p1 at serial 2
	lookup := stubLookup{docs: map[string]meta.IndexedDocument{
		"p1": {ID: "p1", DateModified: modified, SerialVersion: big.NewInt(2)},
	}}
	gen := &recordingGenerator{}
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	d := NewDispatcher(gen, Options{PreCheck: true},
		WithFilter(filter.New(filter.Config{Enabled: true}, lookup)),
		WithMetrics(m))
	ctx := context.Background()

	// When the same state arrives as an update, then a newer serial
	require.NoError(t, d.OnUpdate(ctx, snap("p1", 2), ""))
	require.NoError(t, d.OnUpdate(ctx, snap("p1", 3), ""))

	// Then only the newer serial produces a task
	assert.Equal(t, []call{{kind: KindUpdate, pid: "p1"}}, gen.Calls())
	body := scrape(t, m)
	assert.Contains(t, body, `indexgen_notifications_total{kind="update",outcome="skipped"} 1`)
	assert.Contains(t, body, `indexgen_notifications_total{kind="update",outcome="generated"} 1`)
}

func TestDispatcher_PreCheckNeverBlocksDeletes(t *testing.T) {
	lookup := stubLookup{docs: map[string]meta.IndexedDocument{
		"p1": {ID: "p1", DateModified: modified, SerialVersion: big.NewInt(2)},
	}}
	gen := &recordingGenerator{}
	d := NewDispatcher(gen, Options{PreCheck: true},
		WithFilter(filter.New(filter.Config{Enabled: true}, lookup)))

	require.NoError(t, d.OnDelete(context.Background(), snap("p1", 2), ""))
	assert.Len(t, gen.Calls(), 1)
}

func TestDispatcher_ResolvesMissingPath(t *testing.T) {
	tests := []struct {
		name     string
		given    string
		resolver mapResolver
		want     string
	}{
		{name: "given path wins", given: "/given", resolver: mapResolver{paths: map[string]string{"p1": "/stored"}}, want: "/given"},
		{name: "resolved", resolver: mapResolver{paths: map[string]string{"p1": "/stored"}}, want: "/stored"},
		{name: "unknown", resolver: mapResolver{}, want: ""},
		{name: "resolver error", resolver: mapResolver{err: errBoom}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &recordingGenerator{}
			d := NewDispatcher(gen, Options{}, WithPathResolver(tt.resolver))

			require.NoError(t, d.OnAdd(context.Background(), snap("p1", 1), tt.given))
			require.Len(t, gen.Calls(), 1)
			assert.Equal(t, tt.want, gen.Calls()[0].path)
		})
	}
}

func TestDispatcher_PropagatesGeneratorErrors(t *testing.T) {
	gen := &recordingGenerator{err: errBoom}
	d := NewDispatcher(gen, Options{})

	err := d.OnUpdate(context.Background(), snap("p1", 1), "")
	assert.ErrorIs(t, err, errBoom)
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
