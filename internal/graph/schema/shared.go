package schema

import (
	"sort"
)

// SharedPredicate is the single store-wide definition of a predicate name.
// Exactly one of Property and Edge is set.
type SharedPredicate struct {
	Name     string
	Property *PropertyDefinition
	Edge     *EdgeDefinition

	// DeclaredBy lists the types declaring the predicate, sorted
	DeclaredBy []string
}

// IsEdge reports whether the predicate stores uids
func (s *SharedPredicate) IsEdge() bool {
	return s.Edge != nil
}

// Resolve merges the declarations of every predicate across all types into
// one shared definition each, sorted by predicate name. Properties must agree
// on their primitive type; multiplicity and edge cardinality widen to the list
// form, index tokenizers are merged.
func (c *Catalog) Resolve() ([]*SharedPredicate, error) {
	shared := make(map[string]*SharedPredicate)

	for _, def := range c.Types() {
		for _, prop := range def.SortedProperties() {
			existing, ok := shared[prop.Name]
			if !ok {
				shared[prop.Name] = &SharedPredicate{
					Name:       prop.Name,
					Property:   copyProperty(prop),
					DeclaredBy: []string{def.Name},
				}
				continue
			}

			existing.DeclaredBy = append(existing.DeclaredBy, def.Name)
			if existing.IsEdge() {
				return nil, &ConflictError{Predicate: prop.Name, Types: existing.DeclaredBy, Reason: "declared both as edge and as property"}
			}
			if existing.Property.Type != prop.Type {
				return nil, &ConflictError{
					Predicate: prop.Name,
					Types:     existing.DeclaredBy,
					Reason:    "primitive type " + existing.Property.Type.String() + " vs " + prop.Type.String(),
				}
			}
			if prop.Multiplicity == Many {
				existing.Property.Multiplicity = Many
			}
			existing.Property.Index = mergeIndex(existing.Property.Index, prop.Index)
			existing.Property.Upsert = existing.Property.Upsert || prop.Upsert
		}

		for _, edge := range def.SortedEdges() {
			existing, ok := shared[edge.Name]
			if !ok {
				shared[edge.Name] = &SharedPredicate{
					Name:       edge.Name,
					Edge:       copyEdge(edge),
					DeclaredBy: []string{def.Name},
				}
				continue
			}

			existing.DeclaredBy = append(existing.DeclaredBy, def.Name)
			if !existing.IsEdge() {
				return nil, &ConflictError{Predicate: edge.Name, Types: existing.DeclaredBy, Reason: "declared both as property and as edge"}
			}
			if edge.Cardinality == OneToMany {
				existing.Edge.Cardinality = OneToMany
			}
		}
	}

	result := make([]*SharedPredicate, 0, len(shared))
	for _, sp := range shared {
		sort.Strings(sp.DeclaredBy)
		result = append(result, sp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Unify resolves the shared predicates and writes each shared definition back
// into every type that declares it, so all types agree with what is applied
// to the store.
func (c *Catalog) Unify() ([]*SharedPredicate, error) {
	shared, err := c.Resolve()
	if err != nil {
		return nil, err
	}

	for _, sp := range shared {
		for _, typeName := range sp.DeclaredBy {
			def, _ := c.Get(typeName)
			if sp.IsEdge() {
				def.Edges[sp.Name].Cardinality = sp.Edge.Cardinality
				continue
			}
			prop := def.Properties[sp.Name]
			prop.Multiplicity = sp.Property.Multiplicity
			prop.Index = append([]string{}, sp.Property.Index...)
			prop.Upsert = sp.Property.Upsert
		}
	}

	return shared, nil
}

func copyProperty(p *PropertyDefinition) *PropertyDefinition {
	cp := *p
	cp.Index = mergeIndex(nil, p.Index)
	return &cp
}

func copyEdge(e *EdgeDefinition) *EdgeDefinition {
	cp := *e
	if e.Reverse != nil {
		rev := *e.Reverse
		cp.Reverse = &rev
	}
	return &cp
}

// mergeIndex returns the sorted union of two tokenizer lists
func mergeIndex(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, idx := range list {
			if idx == "" || seen[idx] {
				continue
			}
			seen[idx] = true
			merged = append(merged, idx)
		}
	}
	sort.Strings(merged)
	return merged
}
