package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/store"
	"go.uber.org/multierr"
)

// Store is a database/sql implementation of DocumentStore.
// Each document is one row of the documents table holding its fields as a JSON object.
type Store struct {
	db             *sql.DB
	dialect        Dialect
	documentsTable string
	maxBatchSize   int
}

// New creates a new store with the default table configuration.
func New(db *sql.DB, dialect Dialect) *Store {
	return NewWithConfig(db, dialect, DefaultTableConfig())
}

// NewWithConfig creates a new store with a custom table name and batch limit.
func NewWithConfig(db *sql.DB, dialect Dialect, config TableConfig) *Store {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = store.DefaultMaxBatchSize
	}
	return &Store{
		db:             db,
		dialect:        dialect,
		documentsTable: config.DocumentsTable,
		maxBatchSize:   config.MaxBatchSize,
	}
}

// Dialect returns the dialect the store was created with.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Scan returns up to limit records sorting after the cursor, in ascending id order.
func (s *Store) Scan(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.scanQuery(s.documentsTable), collection, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}
	defer rows.Close()

	var records []fieldmigrate.Record
	for rows.Next() {
		var (
			ref  string
			data []byte
		)
		if err := rows.Scan(&ref, &data); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}

		fields, err := decodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, ref, err)
		}
		records = append(records, fieldmigrate.Record{Ref: ref, Fields: fields})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return records, nil
}

// Get returns a single record.
// Returns store.ErrRecordNotFound if the record does not exist.
func (s *Store) Get(ctx context.Context, collection, ref string) (fieldmigrate.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.getQuery(s.documentsTable), collection, ref).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fieldmigrate.Record{}, store.ErrRecordNotFound
	}
	if err != nil {
		return fieldmigrate.Record{}, fmt.Errorf("failed to get document: %w", err)
	}

	fields, err := decodeFields(data)
	if err != nil {
		return fieldmigrate.Record{}, fmt.Errorf("failed to decode document %s/%s: %w", collection, ref, err)
	}

	return fieldmigrate.Record{Ref: ref, Fields: fields}, nil
}

// Insert adds a new record.
func (s *Store) Insert(ctx context.Context, collection string, rec fieldmigrate.Record) error {
	if rec.Ref == "" {
		return fmt.Errorf("failed to insert document in %s: %w", collection, store.ErrEmptyRef)
	}
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, rec.Ref, err)
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.insertQuery(s.documentsTable), collection, rec.Ref, string(data)); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

// CommitBatch applies all updates in a single transaction.
// An update matching no row rolls the transaction back and returns store.ErrRecordNotFound.
func (s *Store) CommitBatch(ctx context.Context, collection string, updates []fieldmigrate.Update) (err error) {
	if len(updates) > s.maxBatchSize {
		return fmt.Errorf("%w: %d updates, limit %d", store.ErrBatchTooLarge, len(updates), s.maxBatchSize)
	}
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreTxDone(tx.Rollback()))
		}
	}()

	for _, u := range updates {
		args, encErr := s.dialect.updateArgs(collection, u)
		if encErr != nil {
			return fmt.Errorf("failed to encode update for %s/%s: %w", collection, u.Ref, encErr)
		}

		result, execErr := tx.ExecContext(ctx, s.dialect.updateQuery(s.documentsTable, len(u.Fields)), args...)
		if execErr != nil {
			return fmt.Errorf("failed to update document %s/%s: %w", collection, u.Ref, execErr)
		}

		rowsAffected, raErr := result.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("failed to check rows affected: %w", raErr)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("update %s/%s: %w", collection, u.Ref, store.ErrRecordNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

// MaxBatchSize implements DocumentStore.
func (s *Store) MaxBatchSize() int {
	return s.maxBatchSize
}

func decodeFields(data []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func ignoreTxDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
