// Package pebble implements DocumentStore on a Pebble key-value database.
//
// Documents live under keys of the form doc/<collection>/<ref> with their
// fields encoded as a JSON object. Batches are read-modify-write: every
// document of a batch is read, patched and staged into one pebble.Batch,
// which is committed atomically. Writers are serialized so a batch never
// overwrites fields another writer set between its read and its commit.
package pebble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/store"
)

const keyPrefix = "doc/"

// Store is a Pebble implementation of DocumentStore.
type Store struct {
	// mu serializes writers; readers go straight to db.
	mu           sync.Mutex
	db           *pebble.DB
	maxBatchSize int
	writeOpts    *pebble.WriteOptions
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBatchSize sets the largest batch CommitBatch accepts (default: store.DefaultMaxBatchSize).
func WithMaxBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithNoSync commits batches without waiting for the WAL to be synced.
// Intended for tests and throwaway databases.
func WithNoSync() Option {
	return func(s *Store) {
		s.writeOpts = pebble.NoSync
	}
}

// New wraps an open Pebble database. The caller owns db and closes it.
func New(db *pebble.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		maxBatchSize: store.DefaultMaxBatchSize,
		writeOpts:    pebble.Sync,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (creating if needed) a Pebble database at path and wraps it.
// Close the returned store to release the database.
func Open(path string, pebbleOpts *pebble.Options, opts ...Option) (*Store, error) {
	if pebbleOpts == nil {
		pebbleOpts = &pebble.Options{}
	}
	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return New(db, opts...), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put creates or replaces a whole record.
func (s *Store) Put(ctx context.Context, collection string, rec fieldmigrate.Record) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if rec.Ref == "" {
		return fmt.Errorf("put document in %s: %w", collection, store.ErrEmptyRef)
	}
	data, err := encodeFields(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, rec.Ref, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Set(docKey(collection, rec.Ref), data, s.writeOpts); err != nil {
		return fmt.Errorf("put document %s/%s: %w", collection, rec.Ref, err)
	}
	return nil
}

// Scan returns up to limit records sorting after the cursor, in ascending Ref order.
func (s *Store) Scan(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	prefix := collectionPrefix(collection)
	lower := prefix
	if after != "" {
		// smallest key strictly greater than the cursor's key
		lower = append(docKey(collection, after), 0)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var records []fieldmigrate.Record
	for iter.First(); iter.Valid() && len(records) < limit; iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ref := string(bytes.TrimPrefix(iter.Key(), prefix))
		fields, err := decodeFields(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", collection, ref, err)
		}
		records = append(records, fieldmigrate.Record{Ref: ref, Fields: fields})
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}

	return records, nil
}

// Get returns a single record.
// Returns store.ErrRecordNotFound if the record does not exist.
func (s *Store) Get(ctx context.Context, collection, ref string) (fieldmigrate.Record, error) {
	fields, err := s.load(collection, ref)
	if err != nil {
		return fieldmigrate.Record{}, err
	}
	return fieldmigrate.Record{Ref: ref, Fields: fields}, nil
}

// CommitBatch patches every referenced document into one pebble.Batch and commits it.
// A missing document aborts the batch before anything is written.
func (s *Store) CommitBatch(ctx context.Context, collection string, updates []fieldmigrate.Update) error {
	if len(updates) > s.maxBatchSize {
		return fmt.Errorf("%w: %d updates, limit %d", store.ErrBatchTooLarge, len(updates), s.maxBatchSize)
	}
	if len(updates) == 0 {
		return nil
	}
	if err := validateCollection(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields, err := s.load(collection, u.Ref)
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, u.Ref, err)
		}
		for _, f := range u.Fields {
			fields[f.Name] = f.Value
		}

		data, err := encodeFields(fields)
		if err != nil {
			return fmt.Errorf("encode document %s/%s: %w", collection, u.Ref, err)
		}
		if err := batch.Set(docKey(collection, u.Ref), data, nil); err != nil {
			return fmt.Errorf("stage document %s/%s: %w", collection, u.Ref, err)
		}
	}

	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	return nil
}

// MaxBatchSize implements DocumentStore.
func (s *Store) MaxBatchSize() int {
	return s.maxBatchSize
}

func (s *Store) load(collection, ref string) (map[string]any, error) {
	value, closer, err := s.db.Get(docKey(collection, ref))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, store.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", collection, ref, err)
	}
	defer closer.Close()

	// value is only valid until closer is called; decoding copies it.
	fields, err := decodeFields(value)
	if err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, ref, err)
	}
	return fields, nil
}

// validateCollection rejects names that would make one collection's key range
// contain another's.
func validateCollection(collection string) error {
	if collection == "" || strings.Contains(collection, "/") {
		return fmt.Errorf("invalid collection name %q: must be non-empty and must not contain '/'", collection)
	}
	return nil
}

func collectionPrefix(collection string) []byte {
	return []byte(keyPrefix + collection + "/")
}

func docKey(collection, ref string) []byte {
	return append(collectionPrefix(collection), ref...)
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
// The prefix always ends in '/', so incrementing the last byte never overflows.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	upper[len(upper)-1]++
	return upper
}

func encodeFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	return json.Marshal(fields)
}

func decodeFields(data []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
