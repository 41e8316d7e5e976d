//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/migrator"
	"github.com/getpup/fieldmigrate/store"
	"github.com/getpup/fieldmigrate/store/sqlstore"
)

func newPostgresStore(t *testing.T) (*sql.DB, *sqlstore.Store) {
	t.Helper()

	db := getTestDB(t)
	t.Cleanup(func() { db.Close() })

	setupTables(t, db)
	cleanupTables(t, db)
	t.Cleanup(func() { teardownTables(t, db) })

	return db, sqlstore.NewWithConfig(db, sqlstore.Postgres, testTableConfig)
}

func seedVehicles(t *testing.T, s *sqlstore.Store, n int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		err := s.Insert(ctx, fieldmigrate.VehiclesCollection, fieldmigrate.Record{
			Ref:    fmt.Sprintf("car-%05d", i),
			Fields: map[string]any{"make": "Volvo", "year": 2000 + i%25},
		})
		require.NoError(t, err)
	}
}

func countMissingFields(t *testing.T, db *sql.DB) int {
	t.Helper()

	var missing int
	err := db.QueryRow(fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE collection = $1
		AND NOT (data ? 'monthly_maintenance' AND data ? 'monthly_payment')`,
		testTableConfig.DocumentsTable), fieldmigrate.VehiclesCollection).Scan(&missing)
	require.NoError(t, err)
	return missing
}

func TestPostgres_MigratesEveryVehicleAcrossBatches(t *testing.T) {
	db, docs := newPostgresStore(t)
	seedVehicles(t, docs, 1203)
	ctx := context.Background()

	m, err := migrator.New(docs, migrator.WithMetricsEnabled(false))
	require.NoError(t, err)

	result, err := m.Migrate(ctx, fieldmigrate.VehicleMaintenanceSpec())

	require.NoError(t, err)
	assert.Equal(t, 1203, result.Scanned)
	assert.Equal(t, 1203, result.Updated)
	assert.Equal(t, 3, result.Batches)
	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 0, countMissingFields(t, db))

	rec, err := docs.Get(ctx, fieldmigrate.VehiclesCollection, "car-00007")
	require.NoError(t, err)
	assert.Equal(t, "Volvo", rec.Fields["make"])
	assert.Equal(t, 2007.0, rec.Fields["year"])
	assert.Equal(t, 0.0, rec.Fields["monthly_maintenance"])
	assert.Equal(t, 0.0, rec.Fields["monthly_payment"])
}

func TestPostgres_RerunIsIdempotent(t *testing.T) {
	_, docs := newPostgresStore(t)
	seedVehicles(t, docs, 10)
	ctx := context.Background()

	m, err := migrator.New(docs, migrator.WithMetricsEnabled(false), migrator.WithBatchSize(4))
	require.NoError(t, err)

	_, err = m.Migrate(ctx, fieldmigrate.VehicleMaintenanceSpec())
	require.NoError(t, err)
	once, err := docs.Scan(ctx, fieldmigrate.VehiclesCollection, "", 100)
	require.NoError(t, err)

	_, err = m.Migrate(ctx, fieldmigrate.VehicleMaintenanceSpec())
	require.NoError(t, err)
	twice, err := docs.Scan(ctx, fieldmigrate.VehiclesCollection, "", 100)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

// deletingStore deletes a record right after the page containing it is read,
// as a concurrent writer would.
type deletingStore struct {
	*sqlstore.Store
	db     *sql.DB
	victim string
}

func (d *deletingStore) Scan(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
	records, err := d.Store.Scan(ctx, collection, after, limit)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Ref == d.victim {
			_, err := d.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE collection = $1 AND id = $2",
				testTableConfig.DocumentsTable), collection, d.victim)
			if err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}

func TestPostgres_ConcurrentDeleteFailsOnlyItsBatch(t *testing.T) {
	db, docs := newPostgresStore(t)
	seedVehicles(t, docs, 4)
	ctx := context.Background()

	m, err := migrator.New(&deletingStore{Store: docs, db: db, victim: "car-00003"},
		migrator.WithMetricsEnabled(false), migrator.WithBatchSize(2))
	require.NoError(t, err)

	result, err := m.Migrate(ctx, fieldmigrate.VehicleMaintenanceSpec())

	require.Error(t, err)
	assert.ErrorIs(t, err, fieldmigrate.ErrWriteFailed)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
	var migErr *fieldmigrate.MigrationError
	require.ErrorAs(t, err, &migErr)
	assert.True(t, migErr.Partial())
	assert.Equal(t, 2, result.Updated)

	first, err := docs.Get(ctx, fieldmigrate.VehiclesCollection, "car-00000")
	require.NoError(t, err)
	assert.Contains(t, first.Fields, "monthly_payment")

	sibling, err := docs.Get(ctx, fieldmigrate.VehiclesCollection, "car-00002")
	require.NoError(t, err)
	assert.NotContains(t, sibling.Fields, "monthly_payment", "the failed batch is rolled back as a whole")
}

func TestMongo_MigratesEveryVehicle(t *testing.T) {
	docs := getTestMongo(t, "fieldmigrate_it_"+uuid.NewString()[:8])
	ctx := context.Background()

	refs := []string{
		"65a1f0c2e4b0a1b2c3d4e5f6",
		"plate-ABC123",
		"plate-XYZ789",
		`{"$numberInt":"42"}`,
		`{"$numberLong":"7"}`,
	}
	for _, ref := range refs {
		require.NoError(t, docs.Insert(ctx, fieldmigrate.VehiclesCollection, fieldmigrate.Record{
			Ref:    ref,
			Fields: map[string]any{"make": "Scania"},
		}))
	}

	m, err := migrator.New(docs, migrator.WithMetricsEnabled(false), migrator.WithBatchSize(2))
	require.NoError(t, err)

	result, err := m.Migrate(ctx, fieldmigrate.VehicleMaintenanceSpec())

	require.NoError(t, err)
	assert.Equal(t, 5, result.Updated)
	assert.Equal(t, 3, result.Batches)

	for _, ref := range refs {
		rec, err := docs.Get(ctx, fieldmigrate.VehiclesCollection, ref)
		require.NoError(t, err)
		assert.Equal(t, "Scania", rec.Fields["make"])
		assert.Equal(t, 0.0, rec.Fields["monthly_maintenance"])
		assert.Equal(t, 0.0, rec.Fields["monthly_payment"])
	}
}
