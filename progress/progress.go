// Package progress reports the progress of a running migration at a fixed interval.
package progress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/getpup/fieldmigrate"
)

// Config holds configuration for a Tracker.
type Config struct {
	// Logger receives progress lines (optional; without it Run only waits).
	Logger fieldmigrate.Logger

	// Interval is the time between progress lines (default: 10s).
	Interval time.Duration

	// RunID and Collection are attached to every progress line.
	RunID      string
	Collection string
}

// Snapshot is a point-in-time view of a Tracker's counters.
type Snapshot struct {
	Scanned int64
	Updated int64
	Failed  int64
	Batches int64
	Elapsed time.Duration
}

// Tracker counts migration progress. Counters may be updated from any
// goroutine while Run is reporting.
type Tracker struct {
	config  Config
	started time.Time

	scanned atomic.Int64
	updated atomic.Int64
	failed  atomic.Int64
	batches atomic.Int64
}

// New creates a Tracker whose elapsed time starts now.
// Applies default values for Interval if not set.
func New(cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	return &Tracker{
		config:  cfg,
		started: time.Now(),
	}
}

// AddScanned records n records read.
func (t *Tracker) AddScanned(n int) {
	t.scanned.Add(int64(n))
}

// AddCommitted records a committed batch of n records.
func (t *Tracker) AddCommitted(n int) {
	t.updated.Add(int64(n))
	t.batches.Add(1)
}

// AddFailed records a failed batch of n records.
func (t *Tracker) AddFailed(n int) {
	t.failed.Add(int64(n))
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Scanned: t.scanned.Load(),
		Updated: t.updated.Load(),
		Failed:  t.failed.Load(),
		Batches: t.batches.Load(),
		Elapsed: time.Since(t.started),
	}
}

// Run logs a progress line every interval until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.config.Logger == nil {
				continue
			}
			snap := t.Snapshot()
			t.config.Logger.Info(ctx, "migration progress",
				"run_id", t.config.RunID,
				"collection", t.config.Collection,
				"scanned", snap.Scanned,
				"updated", snap.Updated,
				"failed", snap.Failed,
				"batches", snap.Batches,
				"elapsed", snap.Elapsed,
			)
		}
	}
}

// Start runs the tracker in a goroutine and returns a function that stops it
// and waits for the goroutine to exit.
func (t *Tracker) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		t.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}
