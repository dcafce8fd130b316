package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common store error types
var (
	// ErrPersist is returned when a durable write fails
	ErrPersist = errors.New("persist failed")

	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrNotMigrated is returned when a table is missing; run Migrate first
	ErrNotMigrated = errors.New("table does not exist")

	// ErrUnsupportedDSN is returned for connection strings with an unknown scheme
	ErrUnsupportedDSN = errors.New("unsupported database DSN")
)

// PersistError names the table and key of a failed write
type PersistError struct {
	Table string
	Key   string
	Err   error
}

// Error implements the error interface
func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist %s row %s: %v", e.Table, e.Key, e.Err)
}

// Unwrap returns the underlying cause
func (e *PersistError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrPersist
func (e *PersistError) Is(target error) bool {
	return target == ErrPersist
}

func persistError(table, key string, err error) error {
	return &PersistError{Table: table, Key: key, Err: convertDBError(err)}
}

// convertDBError maps driver errors onto the store's sentinels
func convertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s", ErrNotNullViolation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%w: %s", ErrNotMigrated, pgErr.Message)
		}
	}

	return err
}

// IsPersist returns true if the error is a PersistError
func IsPersist(err error) bool {
	return errors.Is(err, ErrPersist)
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
