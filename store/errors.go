package store

import "errors"

var (
	// ErrRecordNotFound indicates the record does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrBatchTooLarge indicates a batch exceeds the store's write limit.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrEmptyRef indicates a record was written without a reference.
	// An empty ref is the start cursor of a scan and cannot name a record.
	ErrEmptyRef = errors.New("record ref is empty")
)
