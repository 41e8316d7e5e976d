package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJobName is the Pushgateway job name used by Push.
const DefaultJobName = "fieldmigrate"

// Push sends the metrics of gatherer to a Prometheus Pushgateway, grouped by
// job and collection. One-shot runs exit before any scrape could happen, so
// this is how their metrics reach Prometheus.
// A nil gatherer pushes prometheus.DefaultGatherer.
func Push(ctx context.Context, url, job, collection string, gatherer prometheus.Gatherer) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if job == "" {
		job = DefaultJobName
	}

	err := push.New(url, job).
		Gatherer(gatherer).
		Grouping("collection", collection).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
