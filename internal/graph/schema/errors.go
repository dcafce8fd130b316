package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrPredicateConflict is returned when two node types declare the same
	// predicate in ways that cannot share one definition
	ErrPredicateConflict = errors.New("conflicting predicate declarations")

	// ErrTypeNotFound is returned when a node type is not in the catalog
	ErrTypeNotFound = errors.New("node type not found")

	// ErrDuplicateType is returned when a node type is registered twice
	ErrDuplicateType = errors.New("node type already registered")
)

// ConflictError describes an irreconcilable predicate declaration
type ConflictError struct {
	Predicate string
	Types     []string
	Reason    string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("predicate %s declared by %v: %s", e.Predicate, e.Types, e.Reason)
}

// Unwrap lets errors.Is match ErrPredicateConflict
func (e *ConflictError) Unwrap() error {
	return ErrPredicateConflict
}

// IsConflict returns true if the error is a predicate conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrPredicateConflict)
}
