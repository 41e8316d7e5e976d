package fieldmigrate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpec indicates the migration spec cannot be applied.
	// Nothing is read or written when a spec fails validation.
	ErrInvalidSpec = errors.New("invalid migration spec")

	// ErrReadFailed indicates a page of the collection could not be read.
	ErrReadFailed = errors.New("collection read failed")

	// ErrWriteFailed indicates a batch commit failed.
	// The failed batch is not applied; earlier batches stay committed.
	ErrWriteFailed = errors.New("batch write failed")
)

// Phase names the step of a migration run in which an error occurred.
type Phase string

const (
	// PhaseRead is the paged collection read.
	PhaseRead Phase = "read"

	// PhaseWrite is the batch commit.
	PhaseWrite Phase = "write"
)

// MigrationError describes a failed migration run, including how much of the
// collection had already been committed when the failure happened.
type MigrationError struct {
	// Phase is where the run failed.
	Phase Phase

	// Collection is the collection being migrated.
	Collection string

	// Updated is the number of records committed before the run stopped.
	Updated int

	// Batches is the number of batches committed before the run stopped.
	Batches int

	// Err is the underlying store or context error.
	Err error
}

// Error implements error.
func (e *MigrationError) Error() string {
	if e.Partial() {
		return fmt.Sprintf("migrate %s: %s failed after %d records in %d batches: %v",
			e.Collection, e.Phase, e.Updated, e.Batches, e.Err)
	}
	return fmt.Sprintf("migrate %s: %s failed: %v", e.Collection, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Is matches ErrReadFailed and ErrWriteFailed against the failure phase.
func (e *MigrationError) Is(target error) bool {
	switch target {
	case ErrReadFailed:
		return e.Phase == PhaseRead
	case ErrWriteFailed:
		return e.Phase == PhaseWrite
	}
	return false
}

// Partial reports whether some batches were committed before the failure.
func (e *MigrationError) Partial() bool {
	return e.Updated > 0
}
