package store

import (
	"context"

	"github.com/getpup/fieldmigrate"
)

// DefaultMaxBatchSize is the largest batch a store accepts unless it
// documents otherwise. It matches the write limit of Firestore batches.
const DefaultMaxBatchSize = 500

// DocumentStore provides paged reads and atomic batched field updates over
// collections of documents.
// Implementations must be safe for concurrent access.
type DocumentStore interface {
	// Scan returns up to limit records of collection that sort after the
	// record identified by the cursor, in the store's ascending key order
	// (byte order of Ref unless the store documents otherwise). An empty
	// cursor starts at the beginning of the collection.
	// Returns an empty slice when no records remain.
	Scan(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error)

	// Get returns a single record.
	// Returns ErrRecordNotFound if the record does not exist.
	Get(ctx context.Context, collection, ref string) (fieldmigrate.Record, error)

	// CommitBatch applies all updates atomically: either every update is
	// applied or none is. Each update overwrites the named fields and leaves
	// all other fields of the record untouched.
	// Returns ErrRecordNotFound if any referenced record does not exist and
	// ErrBatchTooLarge if len(updates) exceeds MaxBatchSize.
	CommitBatch(ctx context.Context, collection string, updates []fieldmigrate.Update) error

	// MaxBatchSize returns the largest number of updates CommitBatch accepts.
	MaxBatchSize() int
}
