// Command fieldmigrate applies a field migration to every document of a
// collection and exits.
//
// Usage:
//
//	fieldmigrate run --driver postgres --dsn "postgres://localhost/fleet?sslmode=disable"
//	fieldmigrate count --driver sqlite3 --dsn fleet.db
//	fieldmigrate spec --spec-file migrations/vehicles.yaml
//
// Every flag can also be set through a FIELDMIGRATE_ environment variable,
// for example FIELDMIGRATE_BATCH_SIZE=200, or in the YAML file named by
// FIELDMIGRATE_CONFIG_PATH.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/internal/cli"
	"github.com/getpup/fieldmigrate/migrator"
	"github.com/getpup/fieldmigrate/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// options holds every flag of the command.
type options struct {
	driver           string
	dsn              string
	database         string
	table            string
	collection       string
	specFile         string
	batchSize        int
	continueOnError  bool
	progressInterval time.Duration
	metricsAddr      string
	pushgatewayURL   string
	logLevel         zapcore.Level
	logFormat        string
}

// app wires the command to its dependencies. Tests replace openStore and
// newMigrator.
type app struct {
	opts   options
	stdout io.Writer
	stderr io.Writer

	openStore   func(ctx context.Context, o *options) (store.DocumentStore, func() error, error)
	newMigrator func(s store.DocumentStore, opts ...migrator.Option) (fieldmigrate.Migrator, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:    stdout,
		stderr:    stderr,
		openStore: openStore,
		newMigrator: func(s store.DocumentStore, opts ...migrator.Option) (fieldmigrate.Migrator, error) {
			return migrator.New(s, opts...)
		},
	}
}

func (a *app) optionList() []cli.Opt {
	o := &a.opts
	return []cli.Opt{
		cli.NewOpt(&o.driver, "driver", "postgres", "document store: postgres, mysql, sqlite3, pebble or mongo"),
		cli.NewOpt(&o.dsn, "dsn", "", "connection string (SQL drivers, mongo) or database directory (pebble)"),
		cli.NewOpt(&o.database, "database", "", "database name (mongo)"),
		cli.NewOpt(&o.table, "table", "documents", "documents table (SQL drivers)"),
		cli.NewOpt(&o.collection, "collection", "", "collection to migrate, overriding the spec's collection"),
		cli.NewOpt(&o.specFile, "spec-file", "", "YAML migration spec (default: vehicle maintenance fields)"),
		cli.NewOpt(&o.batchSize, "batch-size", migrator.DefaultBatchSize, "records per page and atomic batch"),
		cli.NewOpt(&o.continueOnError, "continue-on-error", false, "keep migrating after a failed batch"),
		cli.NewOpt(&o.progressInterval, "progress-interval", 10*time.Second, "interval between progress log lines"),
		cli.NewOpt(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running"),
		cli.NewOpt(&o.pushgatewayURL, "pushgateway-url", "", "push metrics to this Prometheus Pushgateway when done"),
		cli.NewOpt(&o.logLevel, "log-level", zapcore.InfoLevel, "log level: debug, info, warn, error"),
		cli.NewOpt(&o.logFormat, "log-format", "auto", "log format: auto, console, json or logfmt"),
	}
}

// command builds the root command with its subcommands.
func (a *app) command(v *viper.Viper) (*cobra.Command, error) {
	root, err := cli.NewCommand(v, &cli.Program{
		Name:  "fieldmigrate",
		Short: "Set fields to literal defaults on every document of a collection",
		Opts:  a.optionList(),
	})
	if err != nil {
		return nil, err
	}
	root.Version = version
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Apply the migration, committing one atomic batch per page",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return a.migrate(c.Context(), false)
			},
		},
		&cobra.Command{
			Use:   "count",
			Short: "Read and count the records the migration would update, without writing",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return a.migrate(c.Context(), true)
			},
		},
		&cobra.Command{
			Use:   "spec",
			Short: "Print the effective migration spec as YAML",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return a.printSpec()
			},
		},
	)

	return root, nil
}

func execute(ctx context.Context, a *app, args []string) error {
	root, err := a.command(viper.New())
	if err != nil {
		return err
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, newApp(os.Stdout, os.Stderr), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
