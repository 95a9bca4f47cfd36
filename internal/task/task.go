// Package task defines the durable index task record and the store contract
// the generator writes through.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store errors. Implementations wrap or return these so callers can match
// them with errors.Is.
var (
	// ErrConflict means the row changed since it was read (for example a
	// consumer claimed the task), so the mutation was not applied.
	ErrConflict = errors.New("task: concurrent modification")

	// ErrNotFound means no task exists with the given ID.
	ErrNotFound = errors.New("task: not found")
)

// Kind is the type of index work a task requests.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAdd, KindUpdate, KindDelete:
		return k, nil
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// Priority returns the scheduling priority for the kind. Lower runs first.
func (k Kind) Priority() int {
	switch k {
	case KindAdd:
		return PriorityAdd
	case KindUpdate:
		return PriorityUpdate
	case KindDelete:
		return PriorityDelete
	default:
		return PriorityUpdate
	}
}

// Task priorities.
const (
	PriorityAdd    = 1
	PriorityUpdate = 2
	PriorityDelete = 3
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusProcessing Status = "IN PROCESS"
	StatusCompleted  Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusNew, StatusProcessing, StatusCompleted, StatusFailed}

// ParseStatus parses a status name, case-sensitively.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Pending reports whether the task has not been claimed by a consumer.
// Only pending tasks are ever superseded.
func (s Status) Pending() bool {
	return s == StatusNew || s == StatusFailed
}

// IndexTask is one unit of (re)indexing work for an identifier.
type IndexTask struct {
	// ID is assigned by the store on first save. Zero before.
	ID            int64     `json:"id"`
	PID           string    `json:"pid"`
	Kind          Kind      `json:"kind"`
	Priority      int       `json:"priority"`
	Status        Status    `json:"status"`
	ObjectPath    string    `json:"objectPath,omitempty"`
	FormatID      string    `json:"formatId,omitempty"`
	DateModified  time.Time `json:"dateModified"`
	SerialVersion string    `json:"serialVersion,omitempty"`
	Deleted       bool      `json:"deleted"`
	TryCount      int       `json:"tryCount"`
	// Version is bumped by every store mutation and checked on delete and
	// status updates.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Filter selects tasks in List. Zero fields match everything.
type Filter struct {
	PID    string
	Status Status
	Limit  int
}

// Store persists index tasks. Implementations are safe for concurrent use.
type Store interface {
	// Save inserts t when t.ID is zero, otherwise updates it when the stored
	// version matches t.Version. The saved task is returned.
	Save(ctx context.Context, t IndexTask) (IndexTask, error)

	// Delete removes t. ErrConflict is returned when the stored version no
	// longer matches, ErrNotFound when the row is gone.
	Delete(ctx context.Context, t IndexTask) error

	// FindByPIDAndStatus lists tasks for pid in status s, oldest first.
	FindByPIDAndStatus(ctx context.Context, pid string, s Status) ([]IndexTask, error)

	// Get loads one task.
	Get(ctx context.Context, id int64) (IndexTask, error)

	// UpdateStatus moves t to status under the same version check as Delete.
	UpdateStatus(ctx context.Context, t IndexTask, status Status) (IndexTask, error)

	// List returns tasks matching f, oldest first.
	List(ctx context.Context, f Filter) ([]IndexTask, error)

	// Close releases the store's resources.
	Close() error
}
