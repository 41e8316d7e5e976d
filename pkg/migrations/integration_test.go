//go:build integration

package migrations_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/migrator"
	"github.com/getpup/fieldmigrate/pkg/migrations"
	"github.com/getpup/fieldmigrate/store/sqlstore"
)

// applyAndMigrate executes the generated migration on db, seeds two vehicles
// and runs the vehicle migration against the new table.
func applyAndMigrate(t *testing.T, db *sql.DB, adapter string) {
	t.Helper()
	ctx := context.Background()

	config := migrations.Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: adapter + "_integration.sql",
		DocumentsTable: "fieldmigrate_it_documents",
	}
	if err := migrations.Generate(adapter, &config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+config.DocumentsTable); err != nil {
		t.Fatalf("Failed to drop leftover table: %v", err)
	}
	if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}
	defer func() {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+config.DocumentsTable); err != nil {
			t.Logf("Warning: Failed to clean up table: %v", err)
		}
	}()

	dialect, err := sqlstore.DialectFor(adapter)
	if err != nil {
		t.Fatal(err)
	}
	docs := sqlstore.NewWithConfig(db, dialect, sqlstore.TableConfig{DocumentsTable: config.DocumentsTable})

	for _, ref := range []string{"A", "B"} {
		if err := docs.Insert(ctx, "vehicles", fieldmigrate.Record{Ref: ref, Fields: map[string]any{"make": "Saab"}}); err != nil {
			t.Fatalf("Failed to insert %s: %v", ref, err)
		}
	}

	m, err := migrator.New(docs, migrator.WithMetricsEnabled(false))
	if err != nil {
		t.Fatal(err)
	}
	result, err := m.Migrate(ctx, fieldmigrate.VehicleMaintenanceSpec())
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if result.Updated != 2 {
		t.Errorf("Updated = %d, want 2", result.Updated)
	}

	rec, err := docs.Get(ctx, "vehicles", "A")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Fields["monthly_payment"] != 0.0 || rec.Fields["make"] != "Saab" {
		t.Errorf("unexpected fields after migration: %v", rec.Fields)
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	applyAndMigrate(t, db, "postgres")
}

func TestIntegrationMySQL(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set, skipping MySQL integration test")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to parse MYSQL_DSN: %v", err)
	}
	cfg.ClientFoundRows = true
	cfg.MultiStatements = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	applyAndMigrate(t, db, "mysql")
}

func TestIntegrationSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "integration.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	defer db.Close()

	applyAndMigrate(t, db, "sqlite")
}
