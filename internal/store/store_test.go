package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens a migrated in-memory SQLite database
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn         string
		wantDriver  string
		wantSource  string
		wantDialect Dialect
	}{
		{"postgres://u:p@localhost:5432/graph", "pgx", "postgres://u:p@localhost:5432/graph", Postgres},
		{"postgresql://localhost/graph?sslmode=disable", "pgx", "postgresql://localhost/graph?sslmode=disable", Postgres},
		{"sqlite://provisioner.db", "sqlite3", "provisioner.db", SQLite},
		{"file:test.db?cache=shared", "sqlite3", "file:test.db?cache=shared", SQLite},
		{":memory:", "sqlite3", ":memory:", SQLite},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			driver, source, dialect, err := ParseDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantSource, source)
			assert.Equal(t, tt.wantDialect, dialect)
		})
	}

	_, _, _, err := ParseDSN("mysql://localhost/graph")
	assert.True(t, errors.Is(err, ErrUnsupportedDSN))
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	for _, table := range []string{"schema", "schema_properties", "user_auth", "schema_applications"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_DialectColumnTypes(t *testing.T) {
	pg := New(nil, Postgres).ddl()
	lite := New(nil, SQLite).ddl()

	assert.Contains(t, pg[2], "salt BYTEA")
	assert.Contains(t, pg[3], "applied_at TIMESTAMPTZ")
	assert.Contains(t, lite[2], "salt BLOB")
	assert.Contains(t, lite[3], "applied_at TIMESTAMP NOT NULL")

	for _, stmts := range [][]string{pg, lite} {
		assert.Contains(t, stmts[2], "PRIMARY KEY (deployment, username)")
	}
}

func TestMigrate_Failure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "schema"`).
		WillReturnError(errors.New("permission denied"))

	err = New(sqlDB, Postgres).Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertDBError(t *testing.T) {
	assert.Nil(t, convertDBError(nil))

	err := convertDBError(&pgconn.PgError{Code: "23505", Detail: "Key (username)=(testuser) already exists."})
	assert.True(t, errors.Is(err, ErrUniqueViolation))
	assert.Contains(t, err.Error(), "testuser")

	err = convertDBError(&pgconn.PgError{Code: "23502", ColumnName: "salt"})
	assert.True(t, errors.Is(err, ErrNotNullViolation))
	assert.Contains(t, err.Error(), "salt")

	err = convertDBError(&pgconn.PgError{Code: "42P01", Message: `relation "user_auth" does not exist`})
	assert.True(t, errors.Is(err, ErrNotMigrated))

	other := errors.New("connection reset")
	assert.Equal(t, other, convertDBError(other))
}

func TestPersistError(t *testing.T) {
	err := persistError("schema", "Process", &pgconn.PgError{Code: "42P01", Message: "missing"})

	assert.True(t, IsPersist(err))
	assert.True(t, errors.Is(err, ErrNotMigrated))

	var persistErr *PersistError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, "schema", persistErr.Table)
	assert.Equal(t, "Process", persistErr.Key)
	assert.Contains(t, err.Error(), "schema row Process")
}

func TestDialectString(t *testing.T) {
	assert.Equal(t, "postgres", Postgres.String())
	assert.Equal(t, "sqlite", SQLite.String())
	assert.Equal(t, "unknown", Dialect(9).String())
}
