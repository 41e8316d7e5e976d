package metrics

import "time"

// Run outcomes recorded by Collector.IncRuns.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
	OutcomeDryRun  = "dry_run"
)

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	collection string
}

// NewCollector creates a new Collector for the given collection.
func NewCollector(collection string) *Collector {
	return &Collector{collection: collection}
}

// AddScanned adds n to the records scanned counter.
func (c *Collector) AddScanned(n int) {
	RecordsScannedTotal.WithLabelValues(c.collection).Add(float64(n))
}

// ObserveCommit records a committed batch of n updates that took d.
func (c *Collector) ObserveCommit(n int, d time.Duration) {
	RecordsUpdatedTotal.WithLabelValues(c.collection).Add(float64(n))
	BatchesCommittedTotal.WithLabelValues(c.collection).Inc()
	BatchSize.WithLabelValues(c.collection).Observe(float64(n))
	BatchCommitDuration.WithLabelValues(c.collection).Observe(d.Seconds())
}

// IncReadFailures increments the failures counter for the read phase.
func (c *Collector) IncReadFailures() {
	FailuresTotal.WithLabelValues(c.collection, "read").Inc()
}

// ObserveWriteFailure records a failed batch of n updates.
func (c *Collector) ObserveWriteFailure(n int) {
	FailuresTotal.WithLabelValues(c.collection, "write").Inc()
	RecordsFailedTotal.WithLabelValues(c.collection).Add(float64(n))
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(outcome string, updated int, d time.Duration) {
	RunsTotal.WithLabelValues(c.collection, outcome).Inc()
	RunDuration.WithLabelValues(c.collection).Observe(d.Seconds())
	if outcome == OutcomeDryRun {
		return
	}
	LastRunRecordsUpdated.WithLabelValues(c.collection).Set(float64(updated))
	if outcome == OutcomeSuccess {
		LastSuccessTimestamp.WithLabelValues(c.collection).SetToCurrentTime()
	}
}
