package store

import (
	"context"
	"sync"

	"github.com/getpup/fieldmigrate"
)

// MockDocumentStore is a configurable mock implementation of DocumentStore
// for use in tests. It allows setting up expected return values, tracking method
// calls, and injecting errors for testing error paths.
type MockDocumentStore struct {
	mu sync.RWMutex

	// ScanFunc is called by Scan if set.
	ScanFunc func(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error)

	// GetFunc is called by Get if set.
	GetFunc func(ctx context.Context, collection, ref string) (fieldmigrate.Record, error)

	// CommitBatchFunc is called by CommitBatch if set.
	CommitBatchFunc func(ctx context.Context, collection string, updates []fieldmigrate.Update) error

	// MaxBatchSizeValue is returned by MaxBatchSize. Zero means DefaultMaxBatchSize.
	MaxBatchSizeValue int

	// Call tracking
	ScanCalls        []ScanCall
	GetCalls         []GetCall
	CommitBatchCalls []CommitBatchCall
}

// Call tracking structs
type ScanCall struct {
	Collection string
	After      string
	Limit      int
}

type GetCall struct {
	Collection string
	Ref        string
}

type CommitBatchCall struct {
	Collection string
	Updates    []fieldmigrate.Update
}

// NewMockDocumentStore creates a new mock document store.
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{}
}

// Scan implements DocumentStore.
func (m *MockDocumentStore) Scan(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
	m.mu.Lock()
	m.ScanCalls = append(m.ScanCalls, ScanCall{
		Collection: collection,
		After:      after,
		Limit:      limit,
	})
	m.mu.Unlock()

	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, collection, after, limit)
	}

	return nil, nil
}

// Get implements DocumentStore.
func (m *MockDocumentStore) Get(ctx context.Context, collection, ref string) (fieldmigrate.Record, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, GetCall{
		Collection: collection,
		Ref:        ref,
	})
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, collection, ref)
	}

	return fieldmigrate.Record{}, ErrRecordNotFound
}

// CommitBatch implements DocumentStore.
func (m *MockDocumentStore) CommitBatch(ctx context.Context, collection string, updates []fieldmigrate.Update) error {
	m.mu.Lock()
	m.CommitBatchCalls = append(m.CommitBatchCalls, CommitBatchCall{
		Collection: collection,
		Updates:    updates,
	})
	m.mu.Unlock()

	if m.CommitBatchFunc != nil {
		return m.CommitBatchFunc(ctx, collection, updates)
	}

	return nil
}

// MaxBatchSize implements DocumentStore.
func (m *MockDocumentStore) MaxBatchSize() int {
	if m.MaxBatchSizeValue > 0 {
		return m.MaxBatchSizeValue
	}
	return DefaultMaxBatchSize
}

// Reset clears all recorded calls.
func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScanCalls = nil
	m.GetCalls = nil
	m.CommitBatchCalls = nil
}

// PagedScan returns a ScanFunc serving refs in keyset pages, the way real
// stores do. refs must be sorted in ascending order.
func PagedScan(refs []string) func(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
	return func(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
		var page []fieldmigrate.Record
		for _, ref := range refs {
			if ref <= after && after != "" {
				continue
			}
			if len(page) == limit {
				break
			}
			page = append(page, fieldmigrate.Record{Ref: ref})
		}
		return page, nil
	}
}
