// Package store persists schema lookup records, bootstrap credentials and the
// history of schema applications in a SQL database. PostgreSQL is used in
// production; SQLite serves local runs and tests.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the column types that differ between databases
type Dialect int

const (
	// Postgres is used for postgres:// and postgresql:// DSNs
	Postgres Dialect = iota
	// SQLite is used for sqlite:// and file: DSNs
	SQLite
)

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

func (d Dialect) blobType() string {
	if d == Postgres {
		return "BYTEA"
	}
	return "BLOB"
}

func (d Dialect) timestampType() string {
	if d == Postgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// DB is a database handle with its dialect
type DB struct {
	*sql.DB
	dialect Dialect
}

// ParseDSN returns the driver name, driver DSN and dialect for a connection
// string
func ParseDSN(dsn string) (driver, source string, dialect Dialect, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, Postgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), SQLite, nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return "sqlite3", dsn, SQLite, nil
	default:
		return "", "", 0, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}

// Open connects to the database named by dsn and verifies the connection
func Open(ctx context.Context, dsn string) (*DB, error) {
	driver, source, dialect, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	if dialect == SQLite {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	return &DB{DB: sqlDB, dialect: dialect}, nil
}

// New wraps an existing connection
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

// Dialect returns the database dialect
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Migrate creates the provisioner tables when they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range db.ddl() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", convertDBError(err))
		}
	}
	return nil
}

func (db *DB) ddl() []string {
	ts := db.dialect.timestampType()

	return []string{
		`CREATE TABLE IF NOT EXISTS "schema" (
	deployment TEXT NOT NULL,
	type_name TEXT NOT NULL,
	definition TEXT NOT NULL,
	updated_at ` + ts + ` NOT NULL,
	PRIMARY KEY (deployment, type_name)
)`,
		`CREATE TABLE IF NOT EXISTS "schema_properties" (
	deployment TEXT NOT NULL,
	property_name TEXT NOT NULL,
	primitive_type TEXT NOT NULL,
	multiplicity TEXT NOT NULL,
	updated_at ` + ts + ` NOT NULL,
	PRIMARY KEY (deployment, property_name)
)`,
		`CREATE TABLE IF NOT EXISTS user_auth (
	deployment TEXT NOT NULL,
	username TEXT NOT NULL,
	salt ` + db.dialect.blobType() + ` NOT NULL,
	password TEXT NOT NULL,
	updated_at ` + ts + ` NOT NULL,
	PRIMARY KEY (deployment, username)
)`,
		`CREATE TABLE IF NOT EXISTS schema_applications (
	id TEXT PRIMARY KEY,
	deployment TEXT NOT NULL,
	digest TEXT NOT NULL,
	type_count INTEGER NOT NULL,
	document TEXT NOT NULL,
	applied_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_schema_applications_applied_at
ON schema_applications(deployment, applied_at)`,
	}
}
