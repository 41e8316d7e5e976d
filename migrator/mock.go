package migrator

import (
	"context"
	"sync"

	"github.com/getpup/fieldmigrate"
)

// MockMigrator is a mock implementation of fieldmigrate.Migrator for testing.
type MockMigrator struct {
	mu           sync.Mutex
	MigrateFunc  func(ctx context.Context, spec fieldmigrate.Spec) (fieldmigrate.Result, error)
	MigrateCalls []fieldmigrate.Spec
}

// Compile-time check that MockMigrator implements fieldmigrate.Migrator.
var _ fieldmigrate.Migrator = (*MockMigrator)(nil)

// NewMockMigrator creates a new MockMigrator with an empty call history.
func NewMockMigrator() *MockMigrator {
	return &MockMigrator{
		MigrateCalls: make([]fieldmigrate.Spec, 0),
	}
}

// Migrate implements fieldmigrate.Migrator.
// It records the spec, then:
// - If MigrateFunc is set, calls and returns it
// - Otherwise, returns an empty Result for the spec's collection
func (m *MockMigrator) Migrate(ctx context.Context, spec fieldmigrate.Spec) (fieldmigrate.Result, error) {
	m.mu.Lock()
	m.MigrateCalls = append(m.MigrateCalls, spec)
	m.mu.Unlock()

	if m.MigrateFunc != nil {
		return m.MigrateFunc(ctx, spec)
	}

	return fieldmigrate.Result{Collection: spec.Collection}, nil
}

// Calls returns a copy of the recorded specs.
func (m *MockMigrator) Calls() []fieldmigrate.Spec {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]fieldmigrate.Spec, len(m.MigrateCalls))
	copy(calls, m.MigrateCalls)
	return calls
}

// Reset clears the call history.
func (m *MockMigrator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MigrateCalls = make([]fieldmigrate.Spec, 0)
}
