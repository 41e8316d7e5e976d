package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RecordsScannedTotal tracks the total number of records read from collections.
var RecordsScannedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fieldmigrate_records_scanned_total",
		Help: "Total records read from the migrated collection",
	},
	[]string{"collection"},
)

// RecordsUpdatedTotal tracks the total number of records updated by committed batches.
var RecordsUpdatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fieldmigrate_records_updated_total",
		Help: "Total records updated by committed batches",
	},
	[]string{"collection"},
)

// RecordsFailedTotal tracks the total number of records contained in failed batches.
var RecordsFailedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fieldmigrate_records_failed_total",
		Help: "Total records contained in failed batches",
	},
	[]string{"collection"},
)

// BatchesCommittedTotal tracks the total number of committed batches.
var BatchesCommittedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fieldmigrate_batches_committed_total",
		Help: "Total batches committed",
	},
	[]string{"collection"},
)

// FailuresTotal tracks failed page reads and batch commits.
var FailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fieldmigrate_failures_total",
		Help: "Total failed page reads and batch commits",
	},
	[]string{"collection", "phase"},
)

// RunsTotal tracks finished migration runs by outcome.
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fieldmigrate_runs_total",
		Help: "Total migration runs by outcome",
	},
	[]string{"collection", "outcome"},
)

// LastRunRecordsUpdated tracks the number of records updated by the latest run.
var LastRunRecordsUpdated = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fieldmigrate_last_run_records_updated",
		Help: "Records updated by the most recent run",
	},
	[]string{"collection"},
)

// LastSuccessTimestamp tracks when a run last completed successfully.
var LastSuccessTimestamp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fieldmigrate_last_success_timestamp_seconds",
		Help: "Unix time of the most recent successful run",
	},
	[]string{"collection"},
)

// BatchSize tracks the number of updates per committed batch.
var BatchSize = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fieldmigrate_batch_size",
		Help:    "Updates per batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 7),
	},
	[]string{"collection"},
)

// BatchCommitDuration tracks batch commit latency.
var BatchCommitDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fieldmigrate_batch_commit_duration_seconds",
		Help:    "Batch commit latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"collection"},
)

// RunDuration tracks the wall-clock time of migration runs.
var RunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fieldmigrate_run_duration_seconds",
		Help:    "Migration run duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
	},
	[]string{"collection"},
)
