package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// TimeLayout is the wire layout for timestamps: RFC 3339 with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type replicaJSON struct {
	MemberNode string    `json:"replicaMemberNode"`
	Verified   time.Time `json:"replicaVerified"`
}

type checksumJSON struct {
	Algorithm string `json:"algorithm,omitempty"`
	Value     string `json:"value,omitempty"`
}

type snapshotJSON struct {
	Identifier    string          `json:"identifier"`
	Archived      bool            `json:"archived,omitempty"`
	DateModified  time.Time       `json:"dateSysMetadataModified"`
	SerialVersion json.RawMessage `json:"serialVersion,omitempty"`
	Replicas      []replicaJSON   `json:"replica,omitempty"`
	FormatID      string          `json:"formatId,omitempty"`
	Size          uint64          `json:"size,omitempty"`
	Checksum      *checksumJSON   `json:"checksum,omitempty"`
}

// MarshalJSON encodes the snapshot using system-metadata field names.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotJSON{
		Identifier:   s.Identifier,
		Archived:     s.Archived,
		DateModified: s.DateModified,
		FormatID:     s.FormatID,
		Size:         s.Size,
	}
	if s.SerialVersion != nil {
		w.SerialVersion = json.RawMessage(s.SerialVersion.String())
	}
	for _, r := range s.Replicas {
		w.Replicas = append(w.Replicas, replicaJSON{MemberNode: r.MemberNode, Verified: r.Verified})
	}
	if s.Checksum != (Checksum{}) {
		w.Checksum = &checksumJSON{Algorithm: s.Checksum.Algorithm, Value: s.Checksum.Value}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a snapshot. serialVersion may be a JSON number or a
// decimal string; a missing "replica" key leaves Replicas nil.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	serial, err := decodeSerial(w.SerialVersion)
	if err != nil {
		return err
	}

	out := Snapshot{
		Identifier:    w.Identifier,
		Archived:      w.Archived,
		DateModified:  w.DateModified,
		SerialVersion: serial,
		FormatID:      w.FormatID,
		Size:          w.Size,
	}
	if w.Replicas != nil {
		out.Replicas = make([]Replica, 0, len(w.Replicas))
		for _, r := range w.Replicas {
			out.Replicas = append(out.Replicas, Replica{MemberNode: r.MemberNode, Verified: r.Verified})
		}
	}
	if w.Checksum != nil {
		out.Checksum = Checksum{Algorithm: w.Checksum.Algorithm, Value: w.Checksum.Value}
	}
	*s = out
	return nil
}

func decodeSerial(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("serialVersion: %w", err)
		}
	}
	v, ok := ParseSerial(text)
	if !ok {
		return nil, fmt.Errorf("serialVersion: invalid integer %q", text)
	}
	return v, nil
}
