package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/store"
)

// Store is an in-memory implementation of DocumentStore for testing and dry runs.
// It provides thread-safe access to documents using a sync.RWMutex.
// Records are deep-copied on the way in and out so callers never share state with the store.
type Store struct {
	mu           sync.RWMutex
	collections  map[string]map[string]map[string]any // collection -> ref -> fields
	maxBatchSize int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBatchSize sets the largest batch CommitBatch accepts (default: store.DefaultMaxBatchSize).
func WithMaxBatchSize(n int) Option {
	return func(s *Store) {
		s.maxBatchSize = n
	}
}

// New creates a new in-memory store with initialized maps.
func New(opts ...Option) *Store {
	s := &Store{
		collections:  make(map[string]map[string]map[string]any),
		maxBatchSize: store.DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put creates or replaces a whole record.
// Returns store.ErrEmptyRef if rec has no Ref.
func (s *Store) Put(collection string, rec fieldmigrate.Record) error {
	if rec.Ref == "" {
		return fmt.Errorf("put record in %s: %w", collection, store.ErrEmptyRef)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	docs[rec.Ref] = cloneFields(rec.Fields)
	return nil
}

// Delete removes a record. Deleting a missing record is a no-op.
func (s *Store) Delete(collection, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], ref)
}

// Len returns the number of records in collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[collection])
}

// Scan returns up to limit records sorting after the cursor, in ascending Ref order.
func (s *Store) Scan(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("scan %s: limit must be positive, got %d", collection, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	refs := make([]string, 0, len(docs))
	for ref := range docs {
		if after == "" || ref > after {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)

	if len(refs) > limit {
		refs = refs[:limit]
	}

	records := make([]fieldmigrate.Record, len(refs))
	for i, ref := range refs {
		records[i] = fieldmigrate.Record{Ref: ref, Fields: cloneFields(docs[ref])}
	}

	return records, nil
}

// Get returns a single record.
// Returns store.ErrRecordNotFound if the record does not exist.
func (s *Store) Get(ctx context.Context, collection, ref string) (fieldmigrate.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][ref]
	if !ok {
		return fieldmigrate.Record{}, store.ErrRecordNotFound
	}

	return fieldmigrate.Record{Ref: ref, Fields: cloneFields(fields)}, nil
}

// CommitBatch applies all updates under a single write lock.
// Every referenced record is checked before anything is written, so a
// missing record leaves the collection unchanged.
func (s *Store) CommitBatch(ctx context.Context, collection string, updates []fieldmigrate.Update) error {
	if len(updates) > s.maxBatchSize {
		return fmt.Errorf("%w: %d updates, limit %d", store.ErrBatchTooLarge, len(updates), s.maxBatchSize)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	for _, u := range updates {
		if _, ok := docs[u.Ref]; !ok {
			return fmt.Errorf("update %s/%s: %w", collection, u.Ref, store.ErrRecordNotFound)
		}
	}

	for _, u := range updates {
		doc := docs[u.Ref]
		for _, f := range u.Fields {
			doc[f.Name] = cloneValue(f.Value)
		}
	}

	return nil
}

// MaxBatchSize implements DocumentStore.
func (s *Store) MaxBatchSize() int {
	return s.maxBatchSize
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
