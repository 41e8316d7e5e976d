package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getpup/fieldmigrate/store/sqlstore"
)

// Config configures migration generation for the document table.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// DocumentsTable is the name of the table holding documents
	DocumentsTable string
}

// DefaultConfig returns the default configuration for document table migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_fieldmigrate_documents.sql", timestamp),
		DocumentsTable: sqlstore.DefaultTableConfig().DocumentsTable,
	}
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := sqlstore.ValidateIdentifier(config.DocumentsTable, "DocumentsTable"); err != nil {
		return err
	}
	if config.OutputFilename == "" {
		return fmt.Errorf("OutputFilename cannot be empty")
	}
	return nil
}

// Generate writes the migration for the named adapter: postgres, mysql or sqlite.
func Generate(adapter string, config *Config) error {
	dialect, err := sqlstore.DialectFor(adapter)
	if err != nil {
		return err
	}
	return generate(dialect, config)
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return generate(sqlstore.Postgres, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return generate(sqlstore.MySQL, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return generate(sqlstore.SQLite, config)
}

func generate(dialect sqlstore.Dialect, config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQL(dialect, config, time.Now())

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateSQL(dialect sqlstore.Dialect, config *Config, now time.Time) string {
	tableConfig := sqlstore.TableConfig{DocumentsTable: config.DocumentsTable}

	return fmt.Sprintf(`-- fieldmigrate Document Store Migration
-- Generated: %s
-- Database: %s

-- Documents are keyed by (collection, id) and hold their fields as one JSON
-- object. The primary key serves the ordered keyset scans used for paging.
%s
-- Rollback:
%s`,
		now.Format(time.RFC3339),
		databaseName(dialect),
		sqlstore.MigrationUp(dialect, tableConfig),
		commentOut(sqlstore.MigrationDown(dialect, tableConfig)),
	)
}

func databaseName(dialect sqlstore.Dialect) string {
	switch dialect.Name {
	case sqlstore.Postgres.Name:
		return "PostgreSQL"
	case sqlstore.MySQL.Name:
		return "MySQL/MariaDB"
	case sqlstore.SQLite.Name:
		return "SQLite"
	default:
		return dialect.Name
	}
}

// commentOut prefixes every line of sql with "-- ".
func commentOut(sql string) string {
	lines := strings.Split(strings.TrimRight(sql, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "-- " + line
	}
	return strings.Join(lines, "\n") + "\n"
}
