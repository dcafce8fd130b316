// Package graphtest provides an in-memory graph.Client for tests. It answers
// the schema introspection queries the provisioner issues and applies schema
// documents to its own state, so repeated runs can be exercised end to end.
package graphtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nodegraph/provisioner/internal/graph"
	"github.com/nodegraph/provisioner/internal/graph/schema"
)

var (
	typeQueryRe = regexp.MustCompile(`schema\(type:\s*\[?([A-Za-z0-9_.]+)\]?\)`)
	predQueryRe = regexp.MustCompile(`schema\(pred:\s*\[?([A-Za-z0-9_.]+)\]?\)`)
)

// ErrUnknownQuery is returned for queries the fake does not understand
var ErrUnknownQuery = errors.New("graphtest: unsupported query")

// Store is an in-memory graph store
type Store struct {
	mu    sync.Mutex
	types map[string][]string
	preds map[string]schema.PredicateMeta

	// Applied records every schema document passed to Alter
	Applied []string

	// QueryErr, when set, is consulted before each query; a non-nil result
	// fails the query
	QueryErr func(query string) error

	// AlterErr fails every Alter call when set
	AlterErr error

	opened    atomic.Int64
	discarded atomic.Int64
	queries   atomic.Int64
}

var _ graph.Client = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		types: make(map[string][]string),
		preds: make(map[string]schema.PredicateMeta),
	}
}

// AddPredicate registers live predicate metadata
func (s *Store) AddPredicate(meta schema.PredicateMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preds[meta.Predicate] = meta
}

// AddType registers a live type with the given field names
func (s *Store) AddType(name string, fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[name] = append([]string{}, fields...)
}

// Predicate returns live metadata for a predicate
func (s *Store) Predicate(name string) (schema.PredicateMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.preds[name]
	return meta, ok
}

// TypeFields returns the live fields of a type
func (s *Store) TypeFields(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.types[name]...)
}

// OpenTxns returns the number of transactions opened but not discarded
func (s *Store) OpenTxns() int64 {
	return s.opened.Load() - s.discarded.Load()
}

// QueryCount returns the number of queries issued
func (s *Store) QueryCount() int64 {
	return s.queries.Load()
}

// NewReadOnlyTxn implements graph.Client
func (s *Store) NewReadOnlyTxn() graph.ReadTxn {
	s.opened.Add(1)
	return &txn{store: s}
}

// Alter implements graph.Client. The document is parsed and merged into the
// live state.
func (s *Store) Alter(_ context.Context, doc string) error {
	if s.AlterErr != nil {
		return s.AlterErr
	}

	preds, types, err := ParseDocument(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range preds {
		if existing, ok := s.preds[p.Predicate]; ok && existing.Type != p.Type {
			return fmt.Errorf("schema change not allowed for predicate %s from type %s to %s", p.Predicate, existing.Type, p.Type)
		}
	}
	for _, p := range preds {
		s.preds[p.Predicate] = p
	}
	for name, fields := range types {
		s.types[name] = fields
	}
	s.Applied = append(s.Applied, doc)

	return nil
}

func (s *Store) query(q string) ([]byte, error) {
	s.queries.Add(1)
	if s.QueryErr != nil {
		if err := s.QueryErr(q); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m := typeQueryRe.FindStringSubmatch(q); m != nil {
		fields, ok := s.types[m[1]]
		if !ok {
			return []byte(`{}`), nil
		}
		type field struct {
			Name string `json:"name"`
		}
		type typeEntry struct {
			Name   string  `json:"name"`
			Fields []field `json:"fields"`
		}
		entry := typeEntry{Name: m[1], Fields: []field{}}
		for _, f := range fields {
			entry.Fields = append(entry.Fields, field{Name: f})
		}
		return json.Marshal(map[string][]typeEntry{"types": {entry}})
	}

	if m := predQueryRe.FindStringSubmatch(q); m != nil {
		meta, ok := s.preds[m[1]]
		if !ok {
			return []byte(`{}`), nil
		}
		entry := map[string]any{
			"predicate": meta.Predicate,
			"type":      meta.Type,
		}
		if meta.List {
			entry["list"] = true
		}
		if len(meta.Index) > 0 {
			entry["index"] = true
			entry["tokenizer"] = meta.Index
		}
		if meta.Upsert {
			entry["upsert"] = true
		}
		return json.Marshal(map[string][]map[string]any{"schema": {entry}})
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, strings.TrimSpace(q))
}

type txn struct {
	store     *Store
	discarded bool
}

func (t *txn) Query(_ context.Context, q string) ([]byte, error) {
	if t.discarded {
		return nil, errors.New("graphtest: query on discarded transaction")
	}
	return t.store.query(q)
}

func (t *txn) Discard(_ context.Context) error {
	if !t.discarded {
		t.discarded = true
		t.store.discarded.Add(1)
	}
	return nil
}
