package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// TableConfig configures the documents table and batch limit of a Store.
type TableConfig struct {
	// DocumentsTable is the name of the table storing documents.
	DocumentsTable string

	// MaxBatchSize is the largest number of updates committed in one transaction.
	MaxBatchSize int
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		DocumentsTable: "documents",
		MaxBatchSize:   500,
	}
}

// ValidateIdentifier ensures a table name contains only safe characters for SQL.
// Table names are interpolated into statements, so anything else is rejected.
func ValidateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// MigrationUp returns the SQL to create the documents table.
// Documents are keyed by (collection, id); the primary key also serves the
// ordered keyset scans used for paging.
func MigrationUp(d Dialect, config TableConfig) string {
	return fmt.Sprintf("-- Create %s table\n%s", config.DocumentsTable, d.createTable(config.DocumentsTable))
}

// MigrationDown returns the SQL to drop the documents table.
func MigrationDown(d Dialect, config TableConfig) string {
	return fmt.Sprintf("-- Drop %s table\nDROP TABLE IF EXISTS %s;\n", config.DocumentsTable, config.DocumentsTable)
}

// RunMigrations creates the documents table if it does not exist.
//
// This should typically be run once during deployment, or use cmd/migrate-gen
// to produce a migration file for an existing migration tool.
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect, config TableConfig) error {
	if err := ValidateIdentifier(config.DocumentsTable, "DocumentsTable"); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, MigrationUp(d, config)); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}

	return nil
}
