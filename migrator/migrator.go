// Package migrator implements the field migrator: it pages through a
// collection, stages one field update per record and commits each page as
// one atomic batch.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/metrics"
	"github.com/getpup/fieldmigrate/progress"
	"github.com/getpup/fieldmigrate/store"
)

// DefaultBatchSize is the number of records read and committed per batch
// unless configured otherwise. It is clamped to the store's MaxBatchSize.
const DefaultBatchSize = store.DefaultMaxBatchSize

// errCursorStalled indicates a store returned a page ending at the cursor it
// was given, which would otherwise loop forever.
var errCursorStalled = errors.New("scan did not advance past cursor")

// Option configures a Migrator.
type Option func(*config)

// config holds the internal configuration for creating a Migrator.
type config struct {
	batchSize        int
	logger           fieldmigrate.Logger
	metricsEnabled   *bool
	continueOnError  bool
	dryRun           bool
	progressInterval time.Duration
}

// Migrator applies migration specs to the collections of one document store.
type Migrator struct {
	store  store.DocumentStore
	config config
}

// Compile-time check that Migrator implements fieldmigrate.Migrator.
var _ fieldmigrate.Migrator = (*Migrator)(nil)

// New creates a Migrator over the given store.
//
// Optional configuration (with defaults):
//   - WithBatchSize: records per page and batch (default: 500, clamped to the store's MaxBatchSize)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//   - WithContinueOnError: keep going after a failed batch (default: false)
//   - WithDryRun: count records without writing (default: false)
//   - WithProgressInterval: interval between progress log lines (default: 10s)
//
// Example:
//
//	m, err := migrator.New(docs,
//	    migrator.WithBatchSize(200),
//	    migrator.WithLogger(log),
//	)
//
// Returns an error if the store is nil or the batch size is negative.
func New(s store.DocumentStore, opts ...Option) (*Migrator, error) {
	cfg := config{
		batchSize:        DefaultBatchSize,
		progressInterval: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if s == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if cfg.batchSize < 0 {
		return nil, fmt.Errorf("batch size must not be negative, got %d", cfg.batchSize)
	}
	if cfg.batchSize == 0 {
		cfg.batchSize = DefaultBatchSize
	}

	return &Migrator{
		store:  s,
		config: cfg,
	}, nil
}

// WithBatchSize sets the number of records read per page and committed per batch.
func WithBatchSize(size int) Option {
	return func(c *config) {
		c.batchSize = size
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger fieldmigrate.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// WithContinueOnError makes the migrator continue with the next page when a
// batch fails to commit. All batch errors are returned together at the end.
func WithContinueOnError(enabled bool) Option {
	return func(c *config) {
		c.continueOnError = enabled
	}
}

// WithDryRun makes the migrator read and count every record without writing.
func WithDryRun(enabled bool) Option {
	return func(c *config) {
		c.dryRun = enabled
	}
}

// WithProgressInterval sets the interval between progress log lines.
func WithProgressInterval(interval time.Duration) Option {
	return func(c *config) {
		c.progressInterval = interval
	}
}

// BatchSize returns the effective batch size: the configured size clamped to
// the store's MaxBatchSize.
func (m *Migrator) BatchSize() int {
	size := m.config.batchSize
	if limit := m.store.MaxBatchSize(); limit > 0 && size > limit {
		size = limit
	}
	return size
}

// run carries the state of one Migrate call.
type run struct {
	m         *Migrator
	spec      fieldmigrate.Spec
	batchSize int
	result    fieldmigrate.Result
	tracker   *progress.Tracker
	metrics   *metrics.Collector
	started   time.Time
	batchErrs error
}

// Migrate sets every field of spec on every record of spec.Collection.
//
// Records are read in the store's key order, one page of BatchSize records at a
// time, and each page is committed as one atomic batch. Pages committed before
// a failure stay committed; the returned *fieldmigrate.MigrationError reports
// how many records and batches that covers.
func (m *Migrator) Migrate(ctx context.Context, spec fieldmigrate.Spec) (fieldmigrate.Result, error) {
	r := &run{
		m:         m,
		spec:      spec,
		batchSize: m.BatchSize(),
		started:   time.Now(),
		result: fieldmigrate.Result{
			RunID:      uuid.New().String(),
			Collection: spec.Collection,
			DryRun:     m.config.dryRun,
		},
	}

	if err := spec.Validate(); err != nil {
		m.logError(ctx, "invalid migration spec", "run_id", r.result.RunID, "error", err)
		return r.result, err
	}

	if m.metricsOn() {
		r.metrics = metrics.NewCollector(spec.Collection)
	}

	r.tracker = progress.New(progress.Config{
		Logger:     m.config.logger,
		Interval:   m.config.progressInterval,
		RunID:      r.result.RunID,
		Collection: spec.Collection,
	})
	stop := r.tracker.Start(ctx)
	defer stop()

	m.logInfo(ctx, "migration started",
		"run_id", r.result.RunID,
		"collection", spec.Collection,
		"fields", fieldNames(spec.Fields),
		"batch_size", r.batchSize,
		"dry_run", m.config.dryRun,
		"continue_on_error", m.config.continueOnError,
	)

	if err := r.pages(ctx); err != nil {
		return r.finish(ctx, err)
	}
	if r.batchErrs != nil {
		return r.finish(ctx, r.migrationError(fieldmigrate.PhaseWrite, r.batchErrs))
	}
	return r.finish(ctx, nil)
}

// pages reads the collection page by page and commits each page.
// It returns a *fieldmigrate.MigrationError when the run must stop.
func (r *run) pages(ctx context.Context) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return r.migrationError(fieldmigrate.PhaseRead, err)
		}

		page, err := r.m.store.Scan(ctx, r.spec.Collection, cursor, r.batchSize)
		if err != nil {
			if r.metrics != nil {
				r.metrics.IncReadFailures()
			}
			return r.migrationError(fieldmigrate.PhaseRead, err)
		}
		if len(page) == 0 {
			return nil
		}

		last := page[len(page)-1].Ref
		if last == "" || last == cursor {
			if r.metrics != nil {
				r.metrics.IncReadFailures()
			}
			cause := errCursorStalled
			if last == "" {
				cause = store.ErrEmptyRef
			}
			return r.migrationError(fieldmigrate.PhaseRead,
				fmt.Errorf("%w: cursor %q, page ends at %q", cause, cursor, last))
		}
		cursor = last

		r.result.Scanned += len(page)
		r.tracker.AddScanned(len(page))
		if r.metrics != nil {
			r.metrics.AddScanned(len(page))
		}

		if !r.m.config.dryRun {
			if err := r.commit(ctx, page); err != nil {
				return err
			}
		}

		if len(page) < r.batchSize {
			return nil
		}
	}
}

// commit stages and commits one page. A failed commit stops the run unless
// the migrator continues on error.
func (r *run) commit(ctx context.Context, page []fieldmigrate.Record) error {
	updates := make([]fieldmigrate.Update, len(page))
	for i, rec := range page {
		updates[i] = r.spec.UpdateFor(rec.Ref)
	}

	first, last := page[0].Ref, page[len(page)-1].Ref
	start := time.Now()
	err := r.m.store.CommitBatch(ctx, r.spec.Collection, updates)
	elapsed := time.Since(start)

	if err != nil {
		r.tracker.AddFailed(len(updates))
		if r.metrics != nil {
			r.metrics.ObserveWriteFailure(len(updates))
		}
		r.m.logError(ctx, "batch commit failed",
			"run_id", r.result.RunID,
			"collection", r.spec.Collection,
			"batch", r.result.Batches+r.result.FailedBatches+1,
			"size", len(updates),
			"first_ref", first,
			"last_ref", last,
			"error", err,
		)

		if !r.m.config.continueOnError {
			return r.migrationError(fieldmigrate.PhaseWrite, err)
		}
		r.result.FailedBatches++
		r.result.Failed += len(updates)
		r.batchErrs = multierr.Append(r.batchErrs,
			fmt.Errorf("batch %s..%s: %w", first, last, err))
		return nil
	}

	r.result.Batches++
	r.result.Updated += len(updates)
	r.tracker.AddCommitted(len(updates))
	if r.metrics != nil {
		r.metrics.ObserveCommit(len(updates), elapsed)
	}
	r.m.logDebug(ctx, "batch committed",
		"run_id", r.result.RunID,
		"collection", r.spec.Collection,
		"batch", r.result.Batches,
		"size", len(updates),
		"first_ref", first,
		"last_ref", last,
		"duration", elapsed,
	)
	return nil
}

func (r *run) migrationError(phase fieldmigrate.Phase, err error) *fieldmigrate.MigrationError {
	return &fieldmigrate.MigrationError{
		Phase:      phase,
		Collection: r.spec.Collection,
		Updated:    r.result.Updated,
		Batches:    r.result.Batches,
		Err:        err,
	}
}

// finish records the run's duration, metrics and final log line.
func (r *run) finish(ctx context.Context, err error) (fieldmigrate.Result, error) {
	r.result.Duration = time.Since(r.started)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && r.result.Updated > 0:
		outcome = metrics.OutcomePartial
	case err != nil:
		outcome = metrics.OutcomeFailure
	case r.m.config.dryRun:
		outcome = metrics.OutcomeDryRun
	}
	if r.metrics != nil {
		r.metrics.ObserveRun(outcome, r.result.Updated, r.result.Duration)
	}

	if err != nil {
		r.m.logError(ctx, "migration failed",
			"run_id", r.result.RunID,
			"collection", r.spec.Collection,
			"outcome", outcome,
			"scanned", r.result.Scanned,
			"updated", r.result.Updated,
			"batches", r.result.Batches,
			"failed", r.result.Failed,
			"duration", r.result.Duration,
			"error", err,
		)
		return r.result, err
	}

	r.m.logInfo(ctx, "migration complete",
		"run_id", r.result.RunID,
		"collection", r.spec.Collection,
		"outcome", outcome,
		"scanned", r.result.Scanned,
		"updated", r.result.Updated,
		"batches", r.result.Batches,
		"duration", r.result.Duration,
	)
	return r.result, nil
}

func (m *Migrator) metricsOn() bool {
	return m.config.metricsEnabled == nil || *m.config.metricsEnabled
}

func (m *Migrator) logDebug(ctx context.Context, msg string, keyvals ...any) {
	if m.config.logger != nil {
		m.config.logger.Debug(ctx, msg, keyvals...)
	}
}

func (m *Migrator) logInfo(ctx context.Context, msg string, keyvals ...any) {
	if m.config.logger != nil {
		m.config.logger.Info(ctx, msg, keyvals...)
	}
}

func (m *Migrator) logError(ctx context.Context, msg string, keyvals ...any) {
	if m.config.logger != nil {
		m.config.logger.Error(ctx, msg, keyvals...)
	}
}

func fieldNames(fields []fieldmigrate.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
