// Package meta defines the metadata records indexgen reasons about: the
// system-metadata snapshot attached to a change notification and the state
// of the same identifier as currently held by the search index.
package meta

import (
	"math/big"
	"time"
)

// Index document field names. These are a contract with the search index
// schema and must not change.
const (
	FieldID                  = "id"
	FieldDateModified        = "dateModified"
	FieldSerialVersion       = "serialVersion"
	FieldReplicaMemberNode   = "replicaMN"
	FieldReplicaVerifiedDate = "replicaVerifiedDate"
)

// IndexFields lists every index field read when looking up a document.
var IndexFields = []string{
	FieldID,
	FieldDateModified,
	FieldReplicaMemberNode,
	FieldReplicaVerifiedDate,
	FieldSerialVersion,
}

// Replica records that a member node holds and has verified a copy of an object.
type Replica struct {
	MemberNode string
	Verified   time.Time
}

// Checksum is carried through untouched.
type Checksum struct {
	Algorithm string
	Value     string
}

// Snapshot is the metadata state attached to a single change notification.
// It is treated as immutable for the duration of a decision.
type Snapshot struct {
	Identifier   string
	Archived     bool
	DateModified time.Time
	// SerialVersion is nil when the producer did not supply one.
	SerialVersion *big.Int
	// Replicas is nil when the producer sent no replica list.
	Replicas []Replica
	FormatID string
	Size     uint64
	Checksum Checksum
}

// SerialString returns the serial version in decimal, or "" when unknown.
func (s Snapshot) SerialString() string {
	if s.SerialVersion == nil {
		return ""
	}
	return s.SerialVersion.String()
}

// IndexedDocument is the current representation of an identifier inside the
// search index.
type IndexedDocument struct {
	ID           string
	DateModified time.Time
	// SerialVersion is nil on documents indexed before the field existed.
	SerialVersion *big.Int
	// Replicas is empty, never nil, when the document carries none.
	Replicas []Replica
}

// ParseSerial parses a decimal serial version. Empty input yields nil.
func ParseSerial(s string) (*big.Int, bool) {
	if s == "" {
		return nil, true
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return v, true
}
