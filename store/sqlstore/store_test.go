package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ store.DocumentStore = (*Store)(nil)

const vehiclePatch = `{"monthly_maintenance":0,"monthly_payment":0}`

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, dialect), mock
}

func TestNewWithConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := New(nil, Postgres)

		assert.Equal(t, "documents", s.documentsTable)
		assert.Equal(t, 500, s.MaxBatchSize())
		assert.Equal(t, "postgres", s.Dialect().Name)
	})

	t.Run("custom table and batch size", func(t *testing.T) {
		s := NewWithConfig(nil, MySQL, TableConfig{DocumentsTable: "fleet_docs", MaxBatchSize: 100})

		assert.Equal(t, "fleet_docs", s.documentsTable)
		assert.Equal(t, 100, s.MaxBatchSize())
	})

	t.Run("non-positive batch size falls back to default", func(t *testing.T) {
		s := NewWithConfig(nil, SQLite, TableConfig{DocumentsTable: "documents"})

		assert.Equal(t, store.DefaultMaxBatchSize, s.MaxBatchSize())
	})
}

func TestDialectQueries(t *testing.T) {
	t.Run("postgres uses numbered placeholders and jsonb concatenation", func(t *testing.T) {
		q := Postgres.updateQuery("documents", 2)

		assert.Contains(t, q, "SET data = data || $1::jsonb")
		assert.Contains(t, q, "WHERE collection = $2 AND id = $3")
	})

	t.Run("mysql sets each field with JSON_SET", func(t *testing.T) {
		q := MySQL.updateQuery("documents", 2)

		assert.Contains(t, q, "SET data = JSON_SET(data, ?, CAST(? AS JSON), ?, CAST(? AS JSON))")
		assert.Contains(t, q, "WHERE collection = ? AND id = ?")
	})

	t.Run("sqlite sets each field with json_set", func(t *testing.T) {
		q := SQLite.updateQuery("documents", 1)

		assert.Contains(t, q, "SET data = json_set(data, ?, json(?))")
	})

	t.Run("scan is an ordered keyset page", func(t *testing.T) {
		q := Postgres.scanQuery("documents")

		assert.Contains(t, q, "WHERE collection = $1 AND id > $2")
		assert.Contains(t, q, "ORDER BY id")
		assert.Contains(t, q, "LIMIT $3")
	})
}

func TestDialectFor(t *testing.T) {
	for name, want := range map[string]string{
		"postgres":   "postgres",
		"postgresql": "postgres",
		"mysql":      "mysql",
		"mariadb":    "mysql",
		"sqlite":     "sqlite",
		"sqlite3":    "sqlite",
	} {
		d, err := DialectFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, d.Name, name)
	}

	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestScan_DecodesRows(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(`SELECT id, data\s+FROM documents\s+WHERE collection = \$1 AND id > \$2`).
		WithArgs("vehicles", "car-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("car-2", []byte(`{"make":"Ford","monthly_maintenance":5}`)).
			AddRow("car-3", []byte(`{}`)))

	records, err := s.Scan(context.Background(), "vehicles", "car-1", 2)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "car-2", records[0].Ref)
	assert.Equal(t, map[string]any{"make": "Ford", "monthly_maintenance": 5.0}, records[0].Fields)
	assert.Equal(t, map[string]any{}, records[1].Fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScan_QueryError(t *testing.T) {
	s, mock := newMockStore(t, Postgres)
	boom := errors.New("connection refused")

	mock.ExpectQuery(`SELECT id, data`).WillReturnError(boom)

	_, err := s.Scan(context.Background(), "vehicles", "", 10)

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_MapsNoRowsToNotFound(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(`SELECT data\s+FROM documents`).
		WithArgs("vehicles", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := s.Get(context.Background(), "vehicles", "missing")

	assert.ErrorIs(t, err, store.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_CommitsAllUpdatesInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t, Postgres)
	spec := fieldmigrate.VehicleMaintenanceSpec()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE documents\s+SET data = data \|\| \$1::jsonb`).
		WithArgs(vehiclePatch, "vehicles", "car-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE documents`).
		WithArgs(vehiclePatch, "vehicles", "car-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.CommitBatch(context.Background(), "vehicles", []fieldmigrate.Update{
		spec.UpdateFor("car-1"),
		spec.UpdateFor("car-2"),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_ZeroRowsAffectedRollsBack(t *testing.T) {
	s, mock := newMockStore(t, Postgres)
	spec := fieldmigrate.VehicleMaintenanceSpec()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE documents`).
		WithArgs(vehiclePatch, "vehicles", "car-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE documents`).
		WithArgs(vehiclePatch, "vehicles", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.CommitBatch(context.Background(), "vehicles", []fieldmigrate.Update{
		spec.UpdateFor("car-1"),
		spec.UpdateFor("gone"),
	})

	assert.ErrorIs(t, err, store.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_ExecErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t, MySQL)
	boom := errors.New("permission denied")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE documents\s+SET data = JSON_SET\(data, \?, CAST\(\? AS JSON\), \?, CAST\(\? AS JSON\)\)`).
		WithArgs(`$."monthly_maintenance"`, "0", `$."monthly_payment"`, "0", "vehicles", "car-1").
		WillReturnError(boom)
	mock.ExpectRollback()

	err := s.CommitBatch(context.Background(), "vehicles", []fieldmigrate.Update{
		fieldmigrate.VehicleMaintenanceSpec().UpdateFor("car-1"),
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateArgs(t *testing.T) {
	t.Run("postgres sends one object", func(t *testing.T) {
		args, err := Postgres.updateArgs("vehicles", fieldmigrate.VehicleMaintenanceSpec().UpdateFor("car-1"))

		require.NoError(t, err)
		assert.Equal(t, []any{vehiclePatch, "vehicles", "car-1"}, args)
	})

	t.Run("sqlite sends a path and a JSON value per field", func(t *testing.T) {
		args, err := SQLite.updateArgs("vehicles", fieldmigrate.Update{
			Ref:    "car-1",
			Fields: []fieldmigrate.Field{{Name: "service", Value: map[string]any{"interval": 0, "last": nil}}},
		})

		require.NoError(t, err)
		assert.Equal(t, []any{`$."service"`, `{"interval":0,"last":null}`, "vehicles", "car-1"}, args)
	})

	t.Run("rejects names that cannot be quoted in a path", func(t *testing.T) {
		_, err := MySQL.updateArgs("vehicles", fieldmigrate.Update{
			Ref:    "car-1",
			Fields: []fieldmigrate.Field{{Name: `bad"name`, Value: 1}},
		})

		assert.ErrorContains(t, err, "cannot be addressed in a JSON path")
	})
}

func TestCommitBatch_RollbackErrorIsCombined(t *testing.T) {
	s, mock := newMockStore(t, Postgres)
	boom := errors.New("statement timeout")
	rollbackErr := errors.New("connection lost")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE documents`).WillReturnError(boom)
	mock.ExpectRollback().WillReturnError(rollbackErr)

	err := s.CommitBatch(context.Background(), "vehicles", []fieldmigrate.Update{
		fieldmigrate.VehicleMaintenanceSpec().UpdateFor("car-1"),
	})

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, rollbackErr)
}

func TestCommitBatch_EmptyBatchIsNoop(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	err := s.CommitBatch(context.Background(), "vehicles", nil)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_TooLarge(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewWithConfig(db, Postgres, TableConfig{DocumentsTable: "documents", MaxBatchSize: 1})
	spec := fieldmigrate.VehicleMaintenanceSpec()

	err = s.CommitBatch(context.Background(), "vehicles", []fieldmigrate.Update{
		spec.UpdateFor("car-1"),
		spec.UpdateFor("car-2"),
	})

	assert.ErrorIs(t, err, store.ErrBatchTooLarge)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations(t *testing.T) {
	t.Run("MigrationUp creates the documents table per dialect", func(t *testing.T) {
		config := DefaultTableConfig()

		pg := MigrationUp(Postgres, config)
		assert.Contains(t, pg, "CREATE TABLE IF NOT EXISTS documents")
		assert.Contains(t, pg, "data JSONB NOT NULL")
		assert.Contains(t, pg, "PRIMARY KEY (collection, id)")

		my := MigrationUp(MySQL, config)
		assert.Contains(t, my, "data JSON NOT NULL")
		assert.Contains(t, my, "utf8mb4_bin")

		lite := MigrationUp(SQLite, config)
		assert.Contains(t, lite, "CHECK (json_valid(data))")
	})

	t.Run("MigrationDown drops the documents table", func(t *testing.T) {
		config := TableConfig{DocumentsTable: "fleet_docs"}

		assert.Contains(t, MigrationDown(Postgres, config), "DROP TABLE IF EXISTS fleet_docs;")
	})
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("documents", "DocumentsTable"))
	assert.NoError(t, ValidateIdentifier("fleet_docs_2", "DocumentsTable"))
	assert.Error(t, ValidateIdentifier("", "DocumentsTable"))
	assert.Error(t, ValidateIdentifier("2docs", "DocumentsTable"))
	assert.Error(t, ValidateIdentifier("docs; DROP TABLE users", "DocumentsTable"))
}

func TestRunMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS fleet_docs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = RunMigrations(context.Background(), db, Postgres, TableConfig{DocumentsTable: "fleet_docs"})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RejectsUnsafeTableName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = RunMigrations(context.Background(), db, Postgres, TableConfig{DocumentsTable: "docs; DROP TABLE users"})

	assert.ErrorContains(t, err, "DocumentsTable must start with a letter")
	assert.NoError(t, mock.ExpectationsWereMet())
}
