package fieldmigrate

import "time"

// Record is a single document in the backing store.
// The migrator never interprets Fields; it only needs the reference.
type Record struct {
	// Ref is the stable identifier of the document within its collection.
	Ref string

	// Fields holds the document's current top-level fields.
	Fields map[string]any
}

// Field is one field assignment of a migration.
type Field struct {
	// Name is the top-level field name written on every record.
	Name string `yaml:"name"`

	// Value is the literal value written under Name. It must not be nil.
	Value any `yaml:"value"`
}

// Update is a staged per-record field update.
type Update struct {
	// Ref identifies the record to update.
	Ref string

	// Fields are set on the record, overwriting existing values of the same name.
	Fields []Field
}

// Result reports the outcome of a migration run.
type Result struct {
	// RunID uniquely identifies the run (UUID). It appears in every log line of the run.
	RunID string

	// Collection is the migrated collection.
	Collection string

	// Scanned is the number of records read from the collection.
	Scanned int

	// Updated is the number of records whose batch committed successfully.
	Updated int

	// Batches is the number of batches committed.
	Batches int

	// FailedBatches is the number of batches whose commit failed.
	// It can only be non-zero when the migrator continues on error.
	FailedBatches int

	// Failed is the number of records contained in failed batches.
	Failed int

	// DryRun is true when records were counted but not written.
	DryRun bool

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}
