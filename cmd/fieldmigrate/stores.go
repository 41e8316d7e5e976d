package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/fieldmigrate/store"
	mongostore "github.com/getpup/fieldmigrate/store/mongo"
	pebblestore "github.com/getpup/fieldmigrate/store/pebble"
	"github.com/getpup/fieldmigrate/store/sqlstore"
)

const disconnectTimeout = 10 * time.Second

// openStore opens the document store selected by o.driver. The returned
// function releases it.
func openStore(ctx context.Context, o *options) (store.DocumentStore, func() error, error) {
	if o.dsn == "" {
		return nil, nil, fmt.Errorf("--dsn is required for driver %q", o.driver)
	}

	switch o.driver {
	case "postgres", "mysql", "sqlite3", "sqlite":
		return openSQLStore(ctx, o)

	case "pebble":
		s, err := pebblestore.Open(o.dsn, nil)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "mongo", "mongodb":
		if o.database == "" {
			return nil, nil, fmt.Errorf("--database is required for driver %q", o.driver)
		}
		s, err := mongostore.Connect(ctx, o.dsn, o.database, 0)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
			defer cancel()
			return s.Close(ctx)
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported driver %q: supported drivers are postgres, mysql, sqlite3, pebble, mongo", o.driver)
	}
}

func openSQLStore(ctx context.Context, o *options) (store.DocumentStore, func() error, error) {
	dialect, err := sqlstore.DialectFor(o.driver)
	if err != nil {
		return nil, nil, err
	}

	config := sqlstore.DefaultTableConfig()
	if o.table != "" {
		config.DocumentsTable = o.table
	}
	if err := sqlstore.ValidateIdentifier(config.DocumentsTable, "--table"); err != nil {
		return nil, nil, err
	}

	dsn := o.dsn
	if dialect.Name == sqlstore.MySQL.Name {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, nil, err
		}
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect to %s: %w", dialect.Name, err)
	}

	return sqlstore.NewWithConfig(db, dialect, config), db.Close, nil
}

// mysqlDSN enables clientFoundRows so that rewriting a field to its current
// value still counts the row as matched.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}
