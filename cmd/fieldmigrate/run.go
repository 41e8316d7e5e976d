package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/logger"
	"github.com/getpup/fieldmigrate/metrics"
	"github.com/getpup/fieldmigrate/migrator"
)

const (
	shutdownTimeout = 5 * time.Second
	pushTimeout     = 10 * time.Second
)

// migrate runs the effective spec once against the configured store.
func (a *app) migrate(ctx context.Context, dryRun bool) (err error) {
	spec, err := a.effectiveSpec()
	if err != nil {
		return err
	}

	logConfig := logger.NewConfig()
	logConfig.Format = a.opts.logFormat
	logConfig.Level = a.opts.logLevel
	zl, err := logConfig.New(a.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := logger.NewAdapter(zl)

	if a.opts.metricsAddr != "" {
		srv := metrics.NewServer(a.opts.metricsAddr)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		log.Info(ctx, "serving metrics", "addr", srv.Addr())
		defer func() {
			if serveErr := srv.Err(); serveErr != nil {
				log.Error(ctx, "metrics server failed", "error", serveErr)
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
	}

	docs, closeStore, err := a.openStore(ctx, &a.opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeStore())
	}()

	m, err := a.newMigrator(docs,
		migrator.WithBatchSize(a.opts.batchSize),
		migrator.WithLogger(log),
		migrator.WithContinueOnError(a.opts.continueOnError),
		migrator.WithDryRun(dryRun),
		migrator.WithProgressInterval(a.opts.progressInterval),
	)
	if err != nil {
		return err
	}

	result, err := m.Migrate(ctx, spec)
	a.printResult(result)

	if a.opts.pushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if pushErr := metrics.Push(pushCtx, a.opts.pushgatewayURL, metrics.DefaultJobName, spec.Collection, nil); pushErr != nil {
			log.Error(ctx, "metrics push failed", "url", a.opts.pushgatewayURL, "error", pushErr)
			err = multierr.Append(err, pushErr)
		}
	}

	return err
}

func (a *app) printResult(r fieldmigrate.Result) {
	mode := "migrated"
	if r.DryRun {
		mode = "counted"
	}
	fmt.Fprintf(a.stdout, "%s %s: scanned=%d updated=%d batches=%d failed=%d duration=%s run_id=%s\n",
		mode, r.Collection, r.Scanned, r.Updated, r.Batches, r.Failed, r.Duration.Round(time.Millisecond), r.RunID)
}
