// Package writer renders a schema catalog into one Dgraph schema document and
// applies it to the graph store.
package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nodegraph/provisioner/internal/graph"
	"github.com/nodegraph/provisioner/internal/graph/schema"
)

var (
	// ErrSchemaApply is returned when the graph store rejects a document
	ErrSchemaApply = errors.New("schema apply failed")

	// ErrEmptyCatalog is returned when there is nothing to format
	ErrEmptyCatalog = errors.New("catalog has no node types")
)

// SchemaApplyError describes a rejected schema document
type SchemaApplyError struct {
	Digest string
	Err    error
}

// Error implements the error interface
func (e *SchemaApplyError) Error() string {
	return fmt.Sprintf("graph store rejected schema document %s: %v", e.Digest, e.Err)
}

// Unwrap returns the underlying cause
func (e *SchemaApplyError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrSchemaApply
func (e *SchemaApplyError) Is(target error) bool {
	return target == ErrSchemaApply
}

// Document is a declarative Dgraph schema
type Document string

// Digest returns the hex SHA-256 of the document
func (d Document) Digest() string {
	sum := sha256.Sum256([]byte(d))
	return hex.EncodeToString(sum[:])
}

// String implements fmt.Stringer
func (d Document) String() string {
	return string(d)
}

// Writer formats and applies schema documents
type Writer struct {
	logger *zap.Logger
}

// New creates a writer
func New(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{logger: logger}
}

// Format renders every type of the catalog into one document: shared predicate
// declarations sorted by name followed by type blocks sorted by type name.
// The same catalog state always yields the same bytes.
func (w *Writer) Format(catalog *schema.Catalog) (Document, error) {
	if catalog.Count() == 0 {
		return "", ErrEmptyCatalog
	}

	shared, err := catalog.Resolve()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, sp := range shared {
		b.WriteString(predicateLine(sp))
		b.WriteString("\n")
	}

	for _, def := range catalog.Types() {
		b.WriteString("\ntype ")
		b.WriteString(def.Name)
		b.WriteString(" {\n")
		for _, name := range def.PredicateNames() {
			b.WriteString("  ")
			b.WriteString(name)
			b.WriteString("\n")
		}
		b.WriteString("}\n")
	}

	return Document(b.String()), nil
}

// Apply sends the document to the store as a single schema mutation. A
// rejection is returned as a SchemaApplyError and is never retried.
func (w *Writer) Apply(ctx context.Context, client graph.Client, doc Document) error {
	digest := doc.Digest()

	if err := client.Alter(ctx, doc.String()); err != nil {
		w.logger.Error("schema document rejected",
			zap.String("digest", digest),
			zap.Error(err),
		)
		return &SchemaApplyError{Digest: digest, Err: err}
	}

	w.logger.Info("schema document applied",
		zap.String("digest", digest),
		zap.Int("bytes", len(doc)),
	)
	return nil
}

func predicateLine(sp *schema.SharedPredicate) string {
	var b strings.Builder
	b.WriteString(sp.Name)
	b.WriteString(": ")

	if sp.IsEdge() {
		if sp.Edge.Cardinality.IsList() {
			b.WriteString("[uid]")
		} else {
			b.WriteString("uid")
		}
		b.WriteString(" .")
		return b.String()
	}

	prop := sp.Property
	if prop.IsList() {
		b.WriteString("[" + prop.Type.String() + "]")
	} else {
		b.WriteString(prop.Type.String())
	}
	if len(prop.Index) > 0 {
		b.WriteString(" @index(")
		b.WriteString(strings.Join(prop.Index, ", "))
		b.WriteString(")")
	}
	if prop.Upsert {
		b.WriteString(" @upsert")
	}
	b.WriteString(" .")

	return b.String()
}
