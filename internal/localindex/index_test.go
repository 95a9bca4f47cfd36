package localindex

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexgen/internal/filter"
	"github.com/Aman-CERP/indexgen/internal/meta"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return v
}

func scenarioReplicas(t *testing.T) []meta.Replica {
	return []meta.Replica{
		{MemberNode: "urn:node:ARCTIC", Verified: ts(t, "2016-11-08T03:33:31.026Z")},
		{MemberNode: "urn:node:CN", Verified: ts(t, "2016-11-08T03:33:31.030Z")},
		{MemberNode: "urn:node:mnUCSB1", Verified: ts(t, "2017-08-10T05:50:18.659Z")},
		{MemberNode: "urn:node:mnORC1", Verified: ts(t, "2017-08-10T05:50:21.713Z")},
		{MemberNode: "urn:node:KNB", Verified: ts(t, "2017-08-10T05:50:26.686Z")},
	}
}

func openMem(t *testing.T) *Index {
	t.Helper()
	x, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func TestIndex_PutGetRoundTrip(t *testing.T) {
	// Given
	x := openMem(t)
	ctx := context.Background()
	want := meta.IndexedDocument{
		ID:            "doi:10.18739/A2J32X",
		DateModified:  ts(t, "2017-08-07T20:58:57.294Z"),
		SerialVersion: big.NewInt(2),
		Replicas:      scenarioReplicas(t),
	}

	// When
	require.NoError(t, x.Put(ctx, want))
	got, found, err := x.Get(ctx, want.ID)

	// Then
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.DateModified.Equal(got.DateModified))
	assert.Equal(t, "2", got.SerialVersion.String())
	assert.True(t, filter.ReplicasEqual(want.Replicas, got.Replicas))
}

func TestIndex_SingleReplicaAndNoSerial(t *testing.T) {
	x := openMem(t)
	ctx := context.Background()
	doc := meta.IndexedDocument{
		ID:           "p1",
		DateModified: ts(t, "2017-08-07T20:58:57.294Z"),
		Replicas:     scenarioReplicas(t)[:1],
	}
	require.NoError(t, x.Put(ctx, doc))

	got, found, err := x.Get(ctx, "p1")

	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, got.SerialVersion)
	require.Len(t, got.Replicas, 1)
	assert.Equal(t, "urn:node:ARCTIC", got.Replicas[0].MemberNode)
}

func TestIndex_NoReplicasIsEmptyNotNil(t *testing.T) {
	x := openMem(t)
	require.NoError(t, x.Put(context.Background(), meta.IndexedDocument{ID: "p1", DateModified: time.Now()}))

	got, _, err := x.Get(context.Background(), "p1")

	require.NoError(t, err)
	assert.NotNil(t, got.Replicas)
	assert.Empty(t, got.Replicas)
}

func TestIndex_GetMissingAndDelete(t *testing.T) {
	x := openMem(t)
	ctx := context.Background()

	_, found, err := x.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, x.Put(ctx, meta.IndexedDocument{ID: "p1", DateModified: time.Now()}))
	n, err := x.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	require.NoError(t, x.Delete(ctx, "p1"))
	_, found, err = x.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIndex_PutRejectsEmptyID(t *testing.T) {
	x := openMem(t)
	assert.Error(t, x.Put(context.Background(), meta.IndexedDocument{}))
}

func TestIndex_ClosedIndex(t *testing.T) {
	x, err := Open("")
	require.NoError(t, err)
	require.NoError(t, x.Close())
	require.NoError(t, x.Close())

	_, _, err = x.Get(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, x.Put(context.Background(), meta.IndexedDocument{ID: "p1"}), ErrClosed)
}

func TestIndex_PersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bleve")
	x, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, x.Put(context.Background(), meta.IndexedDocument{ID: "p1", DateModified: time.Now()}))
	require.NoError(t, x.Close())

	x2, err := Open(path)
	require.NoError(t, err)
	defer x2.Close()

	_, found, err := x2.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestIndex_CorruptedDirectoryIsRecreated(t *testing.T) {
	// Given: a directory without index_meta.json
	path := filepath.Join(t.TempDir(), "index.bleve")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "garbage"), []byte("x"), 0644))

	// When
	x, err := Open(path)

	// Then
	require.NoError(t, err)
	defer x.Close()
	n, err := x.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

// The filter decision table against a real index, end to end.
func TestIndex_FilterEndToEndScenario(t *testing.T) {
	x := openMem(t)
	ctx := context.Background()
	const pid = "doi:10.18739/A2J32X"
	indexed := ts(t, "2017-08-07T20:58:57.294Z")
	require.NoError(t, x.Put(ctx, meta.IndexedDocument{ID: pid, DateModified: indexed, Replicas: scenarioReplicas(t)}))

	f := filter.New(filter.Config{Enabled: true}, x)
	snap := meta.Snapshot{Identifier: pid, DateModified: indexed, SerialVersion: big.NewInt(2), Replicas: scenarioReplicas(t)}

	assert.False(t, f.NeedsIndexing(ctx, snap), "unchanged")

	snap.DateModified = ts(t, "2017-09-07T20:58:57.294Z")
	assert.True(t, f.NeedsIndexing(ctx, snap), "newer")

	snap.DateModified = ts(t, "2017-01-07T20:58:57.294Z")
	snap.Replicas = scenarioReplicas(t)[1:]
	assert.False(t, f.NeedsIndexing(ctx, snap), "older with replica removed")

	snap.DateModified = indexed
	assert.True(t, f.NeedsIndexing(ctx, snap), "replica removed")

	snap.Replicas = scenarioReplicas(t)
	snap.Replicas[4].Verified = ts(t, "2017-10-10T05:50:26.686Z")
	assert.True(t, f.NeedsIndexing(ctx, snap), "verification changed")

	// Once the index carries a serial version it decides ties.
	require.NoError(t, x.Put(ctx, meta.IndexedDocument{
		ID: pid, DateModified: indexed, SerialVersion: big.NewInt(2), Replicas: scenarioReplicas(t),
	}))
	assert.False(t, f.NeedsIndexing(ctx, snap), "serial equal despite replica change")
}
