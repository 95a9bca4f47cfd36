package solr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Aman-CERP/indexgen/internal/meta"
)

// ErrMalformedDocument is returned when an index document cannot be
// interpreted, for example when replica nodes and verification dates do not
// pair up.
var ErrMalformedDocument = errors.New("solr: malformed index document")

// selectResponse is the subset of the Solr select response indexgen reads.
type selectResponse struct {
	Response struct {
		NumFound int64                        `json:"numFound"`
		Docs     []map[string]json.RawMessage `json:"docs"`
	} `json:"response"`
}

// values decodes a field that Solr may return as a scalar or an array.
// A missing or null field yields nil.
func values(doc map[string]json.RawMessage, field string) ([]any, error) {
	raw, ok := doc[field]
	if !ok {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("field %s: %w", field, err)
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	default:
		return []any{x}, nil
	}
}

func firstString(doc map[string]json.RawMessage, field string) (string, error) {
	vs, err := values(doc, field)
	if err != nil || len(vs) == 0 {
		return "", err
	}
	s, ok := vs[0].(string)
	if !ok {
		return "", fmt.Errorf("field %s: expected string, got %T", field, vs[0])
	}
	return s, nil
}

// parseDate parses a Solr date: RFC 3339 in UTC with optional fraction.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseDocument converts a raw Solr document into an IndexedDocument.
func parseDocument(doc map[string]json.RawMessage) (meta.IndexedDocument, error) {
	var out meta.IndexedDocument

	id, err := firstString(doc, meta.FieldID)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	out.ID = id

	dm, err := firstString(doc, meta.FieldDateModified)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if dm != "" {
		if out.DateModified, err = parseDate(dm); err != nil {
			return out, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, meta.FieldDateModified, err)
		}
	}

	serials, err := values(doc, meta.FieldSerialVersion)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if len(serials) > 0 {
		if out.SerialVersion, err = parseSerial(serials[0]); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	}

	if out.Replicas, err = parseReplicas(doc); err != nil {
		return out, err
	}
	return out, nil
}

func parseSerial(v any) (*big.Int, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = x
	default:
		return nil, fmt.Errorf("%s: unexpected type %T", meta.FieldSerialVersion, v)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", meta.FieldSerialVersion, s)
	}
	return n, nil
}

// parseReplicas pairs replicaMN with replicaVerifiedDate by position. The
// result is empty, never nil, when the document has no replicas.
func parseReplicas(doc map[string]json.RawMessage) ([]meta.Replica, error) {
	nodes, err := values(doc, meta.FieldReplicaMemberNode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	dates, err := values(doc, meta.FieldReplicaVerifiedDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if len(nodes) != len(dates) {
		return nil, fmt.Errorf("%w: %d replica nodes but %d verified dates",
			ErrMalformedDocument, len(nodes), len(dates))
	}

	replicas := make([]meta.Replica, 0, len(nodes))
	for i := range nodes {
		node, ok := nodes[i].(string)
		if !ok || strings.TrimSpace(node) == "" {
			return nil, fmt.Errorf("%w: blank replica member node at %d", ErrMalformedDocument, i)
		}
		ds, ok := dates[i].(string)
		if !ok {
			return nil, fmt.Errorf("%w: replica verified date at %d is not a string", ErrMalformedDocument, i)
		}
		verified, err := parseDate(ds)
		if err != nil {
			return nil, fmt.Errorf("%w: replica verified date for %s: %v", ErrMalformedDocument, node, err)
		}
		replicas = append(replicas, meta.Replica{MemberNode: node, Verified: verified})
	}
	return replicas, nil
}
