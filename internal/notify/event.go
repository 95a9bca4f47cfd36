package notify

import (
	"context"
	"encoding/json"
	"math/big"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/meta"
)

var bigOne = big.NewInt(1)

// Kind is the notification type.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is the wire envelope shared by every transport.
type Event struct {
	// ID identifies the delivery. Redelivered events repeat it.
	ID         string        `json:"id,omitempty"`
	Kind       Kind          `json:"kind"`
	Snapshot   meta.Snapshot `json:"snapshot"`
	ObjectPath string        `json:"objectPath,omitempty"`
}

// DecodeEvent parses and validates an Event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, ierrors.New(ierrors.ErrCodeInvalidEvent, "cannot decode event", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks that the event can be dispatched.
func (e Event) Validate() error {
	switch e.Kind {
	case KindAdd, KindUpdate, KindDelete:
	default:
		return ierrors.New(ierrors.ErrCodeInvalidEvent, "unknown event kind", nil).
			WithDetail("kind", string(e.Kind))
	}
	if e.Snapshot.Identifier == "" {
		return ierrors.New(ierrors.ErrCodeInvalidEvent, "event snapshot has no identifier", nil)
	}
	return nil
}

// Dispatch routes the event to the matching Handler method.
func (e Event) Dispatch(ctx context.Context, h Handler) error {
	switch e.Kind {
	case KindAdd:
		return h.OnAdd(ctx, e.Snapshot, e.ObjectPath)
	case KindUpdate:
		return h.OnUpdate(ctx, e.Snapshot, e.ObjectPath)
	case KindDelete:
		return h.OnDelete(ctx, e.Snapshot, e.ObjectPath)
	default:
		return e.Validate()
	}
}
