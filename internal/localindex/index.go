// Package localindex keeps indexed document state in an embedded bleve index.
// It serves as the Lookup backend for offline use and development, and as a
// real index in tests.
package localindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/indexgen/internal/meta"
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("localindex: index is closed")

// Index is an embedded bleve index of IndexedDocuments. It implements
// filter.Lookup and is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// document is the stored form. Field names match the search index schema.
// Dates are kept as strings so millisecond precision survives round trips.
type document struct {
	ID                  string   `json:"id"`
	DateModified        string   `json:"dateModified"`
	SerialVersion       string   `json:"serialVersion,omitempty"`
	ReplicaMemberNode   []string `json:"replicaMN,omitempty"`
	ReplicaVerifiedDate []string `json:"replicaVerifiedDate,omitempty"`
}

// validateIndexIntegrity checks an existing bleve directory before opening.
// A missing directory is valid; it will be created.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// Open opens or creates the index at path. An empty path creates an
// in-memory index. A corrupted index directory is cleared and recreated;
// the local index is a cache of remote state and can be repopulated.
func Open(path string) (*Index, error) {
	m := newMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("local_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("local index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open local index: %w", err)
	}

	return &Index{index: idx, path: path}, nil
}

// newMapping stores every field verbatim; lookups are by document ID only.
func newMapping() *mapping.IndexMappingImpl {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	kw.Store = true

	doc := bleve.NewDocumentMapping()
	for _, f := range meta.IndexFields {
		doc.AddFieldMappingsAt(f, kw)
	}

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = keyword.Name
	return m
}

// Put stores doc, replacing any previous version.
func (x *Index) Put(ctx context.Context, doc meta.IndexedDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("localindex: document has no id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d := document{
		ID:           doc.ID,
		DateModified: formatTime(doc.DateModified),
	}
	if doc.SerialVersion != nil {
		d.SerialVersion = doc.SerialVersion.String()
	}
	for _, r := range doc.Replicas {
		d.ReplicaMemberNode = append(d.ReplicaMemberNode, r.MemberNode)
		d.ReplicaVerifiedDate = append(d.ReplicaVerifiedDate, formatTime(r.Verified))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	if err := x.index.Index(doc.ID, d); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes the document for id. Deleting an absent id is not an error.
func (x *Index) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	if err := x.index.Delete(id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Get loads the document for id.
func (x *Index) Get(ctx context.Context, id string) (meta.IndexedDocument, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return meta.IndexedDocument{}, false, ErrClosed
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Size = 1
	req.Fields = meta.IndexFields

	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return meta.IndexedDocument{}, false, fmt.Errorf("local index search failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return meta.IndexedDocument{}, false, nil
	}

	doc, err := fromFields(res.Hits[0].ID, res.Hits[0].Fields)
	if err != nil {
		return meta.IndexedDocument{}, false, err
	}
	return doc, true, nil
}

// Count returns the number of stored documents.
func (x *Index) Count() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0, ErrClosed
	}
	return x.index.DocCount()
}

// Close closes the index. Idempotent.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return x.index.Close()
}

func fromFields(id string, fields map[string]any) (meta.IndexedDocument, error) {
	doc := meta.IndexedDocument{ID: id, Replicas: []meta.Replica{}}

	if s := firstString(fields[meta.FieldDateModified]); s != "" {
		t, err := time.Parse(meta.TimeLayout, s)
		if err != nil {
			return doc, fmt.Errorf("localindex: %s: %w", meta.FieldDateModified, err)
		}
		doc.DateModified = t.UTC()
	}

	if s := firstString(fields[meta.FieldSerialVersion]); s != "" {
		v, ok := meta.ParseSerial(s)
		if !ok {
			return doc, fmt.Errorf("localindex: invalid %s %q", meta.FieldSerialVersion, s)
		}
		doc.SerialVersion = v
	}

	nodes := fieldStrings(fields[meta.FieldReplicaMemberNode])
	dates := fieldStrings(fields[meta.FieldReplicaVerifiedDate])
	if len(nodes) != len(dates) {
		return doc, fmt.Errorf("localindex: %d replica nodes but %d verified dates", len(nodes), len(dates))
	}
	for i := range nodes {
		t, err := time.Parse(meta.TimeLayout, dates[i])
		if err != nil {
			return doc, fmt.Errorf("localindex: %s: %w", meta.FieldReplicaVerifiedDate, err)
		}
		doc.Replicas = append(doc.Replicas, meta.Replica{MemberNode: nodes[i], Verified: t.UTC()})
	}
	return doc, nil
}

// fieldStrings normalizes a stored field, which bleve returns as a string for a
// single value and as []any for several.
func fieldStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func firstString(v any) string {
	ss := fieldStrings(v)
	if len(ss) == 0 {
		return ""
	}
	return strings.TrimSpace(ss[0])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(meta.TimeLayout)
}
