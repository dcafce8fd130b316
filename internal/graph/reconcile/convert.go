package reconcile

import (
	"fmt"

	"github.com/nodegraph/provisioner/internal/graph/schema"
)

// uidType is the storage type the graph store reports for edges
const uidType = "uid"

// Predicate is the result of converting live metadata: exactly one of
// Property and Edge is set
type Predicate struct {
	Property *schema.PropertyDefinition
	Edge     *schema.EdgeDefinition
}

// Convert turns live predicate metadata into a definition owned by typeName.
// Edge destinations are unknown to the store and default to schema.BaseType.
func Convert(typeName string, meta schema.PredicateMeta) (Predicate, error) {
	if meta.Predicate == "" {
		return Predicate{}, &ConversionError{Type: typeName, Meta: meta, Err: fmt.Errorf("empty predicate name")}
	}

	if meta.Type == uidType {
		return Predicate{Edge: toEdge(typeName, meta)}, nil
	}

	prop, err := toProperty(meta)
	if err != nil {
		return Predicate{}, &ConversionError{Type: typeName, Meta: meta, Err: err}
	}
	return Predicate{Property: prop}, nil
}

func toEdge(typeName string, meta schema.PredicateMeta) *schema.EdgeDefinition {
	cardinality := schema.OneToOne
	if meta.List {
		cardinality = schema.OneToMany
	}
	return &schema.EdgeDefinition{
		Name:        meta.Predicate,
		From:        typeName,
		To:          schema.BaseType,
		Cardinality: cardinality,
	}
}

func toProperty(meta schema.PredicateMeta) (*schema.PropertyDefinition, error) {
	primitive, err := schema.ParsePrimitiveType(meta.Type)
	if err != nil {
		return nil, err
	}

	multiplicity := schema.Single
	if meta.List {
		multiplicity = schema.Many
	}

	index := make([]string, len(meta.Index))
	copy(index, meta.Index)

	return &schema.PropertyDefinition{
		Name:         meta.Predicate,
		Type:         primitive,
		Multiplicity: multiplicity,
		Index:        index,
		Upsert:       meta.Upsert,
	}, nil
}
