package introspect

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaQuery is returned when reading live schema metadata fails
	ErrSchemaQuery = errors.New("schema query failed")

	// ErrPredicateNotFound is returned when a type lists a predicate the
	// store has no metadata for
	ErrPredicateNotFound = errors.New("predicate not found")
)

// SchemaQueryError describes a failed read of live schema metadata
type SchemaQueryError struct {
	// Kind is "type" or "predicate"
	Kind     string
	Name     string
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *SchemaQueryError) Error() string {
	return fmt.Sprintf("schema query for %s %s failed after %d attempt(s): %v", e.Kind, e.Name, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause
func (e *SchemaQueryError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrSchemaQuery
func (e *SchemaQueryError) Is(target error) bool {
	return target == ErrSchemaQuery
}

// IsSchemaQuery returns true if the error is a schema query failure
func IsSchemaQuery(err error) bool {
	return errors.Is(err, ErrSchemaQuery)
}

// permanentError marks failures that retrying cannot fix
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
