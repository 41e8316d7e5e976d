//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/getpup/fieldmigrate/store/mongo"
	"github.com/getpup/fieldmigrate/store/sqlstore"
)

// testTableConfig is the documents table used by the integration tests.
var testTableConfig = sqlstore.TableConfig{
	DocumentsTable: "fieldmigrate_it_documents",
	MaxBatchSize:   sqlstore.DefaultTableConfig().MaxBatchSize,
}

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// setupTables creates the documents table.
func setupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	if err := sqlstore.RunMigrations(context.Background(), db, sqlstore.Postgres, testTableConfig); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
}

// cleanupTables truncates the documents table to clean up test data.
// Errors are logged but don't fail the test (cleanup is best-effort).
func cleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec("TRUNCATE " + testTableConfig.DocumentsTable); err != nil {
		t.Logf("warning: failed to truncate documents table: %v", err)
	}
}

// teardownTables drops the documents table.
// Errors are logged but don't fail the test.
func teardownTables(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec(sqlstore.MigrationDown(sqlstore.Postgres, testTableConfig)); err != nil {
		t.Logf("warning: failed to drop tables: %v", err)
	}
}

// getTestMongo connects to MONGODB_URI and skips the test if not set.
// Transactions need a replica set or sharded cluster.
func getTestMongo(t *testing.T, database string) *mongo.Store {
	t.Helper()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := mongo.Connect(ctx, uri, database, 0)
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			t.Logf("warning: failed to disconnect mongo: %v", err)
		}
	})

	return s
}
