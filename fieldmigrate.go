// Package fieldmigrate applies idempotent field migrations to every document
// of a collection in a document store.
//
// A migration writes a fixed set of fields with literal values to each
// record, paging through the collection and committing one atomic batch per
// page. Running a migration twice yields the same state as running it once.
package fieldmigrate

import "context"

// Migrator applies a migration spec to a collection.
type Migrator interface {
	// Migrate sets every field of spec on every record of spec.Collection.
	//
	// Migrate returns the run's Result together with a *MigrationError if
	// reading or committing fails. The Result always reflects the records
	// committed before the failure.
	Migrate(ctx context.Context, spec Spec) (Result, error)
}

// Logger is the structured logger used across the module.
// Key-value pairs alternate between string keys and arbitrary values.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}
