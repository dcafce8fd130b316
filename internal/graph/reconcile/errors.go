package reconcile

import (
	"errors"
	"fmt"

	"github.com/nodegraph/provisioner/internal/graph/schema"
)

// ErrConversion is returned when live predicate metadata cannot be turned
// into a property or edge definition
var ErrConversion = errors.New("predicate conversion failed")

// ConversionError carries the raw metadata that failed to convert
type ConversionError struct {
	Type string
	Meta schema.PredicateMeta
	Err  error
}

// Error implements the error interface
func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert predicate %s of type %s, meta %s: %v", e.Meta.Predicate, e.Type, e.Meta, e.Err)
}

// Unwrap returns the underlying cause
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrConversion
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// IsConversion returns true if the error is a conversion failure
func IsConversion(err error) bool {
	return errors.Is(err, ErrConversion)
}
