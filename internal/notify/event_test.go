package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
)

func TestDecodeEvent(t *testing.T) {
	data := []byte(`{
		"id": "e-1",
		"kind": "update",
		"objectPath": "/var/objects/p1",
		"snapshot": {
			"identifier": "p1",
			"dateSysMetadataModified": "2017-08-07T20:58:57.294Z",
			"serialVersion": "4"
		}
	}`)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)

	assert.Equal(t, "e-1", ev.ID)
	assert.Equal(t, KindUpdate, ev.Kind)
	assert.Equal(t, "/var/objects/p1", ev.ObjectPath)
	assert.Equal(t, "p1", ev.Snapshot.Identifier)
	assert.Equal(t, "4", ev.Snapshot.SerialString())
	assert.Equal(t, int64(1502139537294), ev.Snapshot.DateModified.UnixMilli())
}

func TestDecodeEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{`},
		{name: "unknown kind", data: `{"kind":"move","snapshot":{"identifier":"p1"}}`},
		{name: "missing kind", data: `{"snapshot":{"identifier":"p1"}}`},
		{name: "missing identifier", data: `{"kind":"add","snapshot":{}}`},
		{name: "bad serial", data: `{"kind":"add","snapshot":{"identifier":"p1","serialVersion":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, ierrors.ErrCodeInvalidEvent, ierrors.GetCode(err))
		})
	}
}

func TestEvent_Dispatch(t *testing.T) {
	gen := &recordingGenerator{}
	d := NewDispatcher(gen, Options{})
	ctx := context.Background()

	for _, k := range []Kind{KindAdd, KindUpdate, KindDelete} {
		ev := Event{Kind: k, Snapshot: snap("p1", 1), ObjectPath: "/x"}
		require.NoError(t, ev.Dispatch(ctx, d))
	}

	calls := gen.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, KindAdd, calls[0].kind)
	assert.Equal(t, KindUpdate, calls[1].kind)
	assert.Equal(t, KindDelete, calls[2].kind)
}

func TestEvent_DispatchUnknownKind(t *testing.T) {
	gen := &recordingGenerator{}
	ev := Event{Kind: "move", Snapshot: snap("p1", 1)}

	err := ev.Dispatch(context.Background(), NewDispatcher(gen, Options{}))
	assert.Equal(t, ierrors.ErrCodeInvalidEvent, ierrors.GetCode(err))
	assert.Empty(t, gen.Calls())
}
