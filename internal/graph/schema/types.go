// Package schema provides the node-type model of the graph store: node types
// with their properties and edges, the catalog that holds them for one
// provisioning run, and the statically declared definitions shipped with the
// binary.
package schema

import (
	"fmt"
	"sort"
)

// BaseType is the generic node type used as an edge destination when the
// real destination is unknown.
const BaseType = "Base"

// PrimitiveType represents the scalar kinds a property predicate can hold
type PrimitiveType int

const (
	TypeString PrimitiveType = iota
	TypeInt
	TypeBool
)

// String returns the storage name of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a storage type name to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "int":
		return TypeInt, nil
	case "bool":
		return TypeBool, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (p PrimitiveType) MarshalText() ([]byte, error) {
	if p < TypeString || p > TypeBool {
		return nil, fmt.Errorf("unknown primitive type: %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *PrimitiveType) UnmarshalText(text []byte) error {
	parsed, err := ParsePrimitiveType(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Multiplicity tells whether a property holds one value or a set of values
type Multiplicity int

const (
	Single Multiplicity = iota
	Many
)

// String returns the string representation of the multiplicity
func (m Multiplicity) String() string {
	switch m {
	case Single:
		return "single"
	case Many:
		return "many"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Multiplicity) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Multiplicity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "single", "":
		*m = Single
	case "many":
		*m = Many
	default:
		return fmt.Errorf("unknown multiplicity: %q", string(text))
	}
	return nil
}

// Cardinality tells whether an edge points at one or many destination nodes
type Cardinality int

const (
	OneToOne Cardinality = iota
	OneToMany
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (c Cardinality) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Cardinality) UnmarshalText(text []byte) error {
	switch string(text) {
	case "one_to_one", "":
		*c = OneToOne
	case "one_to_many":
		*c = OneToMany
	default:
		return fmt.Errorf("unknown cardinality: %q", string(text))
	}
	return nil
}

// IsList reports whether the edge predicate stores a list of uids
func (c Cardinality) IsList() bool {
	return c == OneToMany
}

// PropertyDefinition is a scalar predicate of a node type
type PropertyDefinition struct {
	Name         string        `json:"name" yaml:"name"`
	Type         PrimitiveType `json:"type" yaml:"type"`
	Multiplicity Multiplicity  `json:"multiplicity" yaml:"multiplicity"`
	Index        []string      `json:"index" yaml:"index"`
	Upsert       bool          `json:"upsert,omitempty" yaml:"upsert"`
}

// IsList reports whether the property stores a set of values
func (p *PropertyDefinition) IsList() bool {
	return p.Multiplicity == Many
}

// ReverseEdge names the predicate materialized on the destination type
type ReverseEdge struct {
	Name        string      `json:"name" yaml:"name"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
}

// EdgeDefinition is a uid predicate linking two node types
type EdgeDefinition struct {
	Name        string       `json:"name" yaml:"name"`
	From        string       `json:"from" yaml:"from"`
	To          string       `json:"to" yaml:"to"`
	Cardinality Cardinality  `json:"cardinality" yaml:"cardinality"`
	Reverse     *ReverseEdge `json:"reverse,omitempty" yaml:"reverse"`
}

// NodeTypeDefinition describes one node type of the graph store
type NodeTypeDefinition struct {
	Name       string                         `json:"name"`
	Properties map[string]*PropertyDefinition `json:"properties"`
	Edges      map[string]*EdgeDefinition     `json:"edges"`

	// ReverseInitialized is set once the reverse edges of this type have
	// been added to their destination types.
	ReverseInitialized bool `json:"-"`
}

// NewNodeType creates an empty node type definition
func NewNodeType(name string) *NodeTypeDefinition {
	return &NodeTypeDefinition{
		Name:       name,
		Properties: make(map[string]*PropertyDefinition),
		Edges:      make(map[string]*EdgeDefinition),
	}
}

// HasPredicate reports whether name is declared as a property or an edge
func (n *NodeTypeDefinition) HasPredicate(name string) bool {
	if _, ok := n.Properties[name]; ok {
		return true
	}
	_, ok := n.Edges[name]
	return ok
}

// AddProperty declares a property unless a predicate of that name exists.
// It returns false when the type already declares the predicate.
func (n *NodeTypeDefinition) AddProperty(prop *PropertyDefinition) bool {
	if n.HasPredicate(prop.Name) {
		return false
	}
	if prop.Index == nil {
		prop.Index = []string{}
	}
	n.Properties[prop.Name] = prop
	return true
}

// AddEdge declares an edge unless a predicate of that name exists.
// It returns false when the type already declares the predicate.
func (n *NodeTypeDefinition) AddEdge(edge *EdgeDefinition) bool {
	if n.HasPredicate(edge.Name) {
		return false
	}
	if edge.From == "" {
		edge.From = n.Name
	}
	if edge.To == "" {
		edge.To = BaseType
	}
	n.Edges[edge.Name] = edge
	return true
}

// PredicateNames returns every predicate of the type sorted by name
func (n *NodeTypeDefinition) PredicateNames() []string {
	names := make([]string, 0, len(n.Properties)+len(n.Edges))
	for name := range n.Properties {
		names = append(names, name)
	}
	for name := range n.Edges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedProperties returns the properties sorted by name
func (n *NodeTypeDefinition) SortedProperties() []*PropertyDefinition {
	props := make([]*PropertyDefinition, 0, len(n.Properties))
	for _, p := range n.Properties {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props
}

// SortedEdges returns the edges sorted by name
func (n *NodeTypeDefinition) SortedEdges() []*EdgeDefinition {
	edges := make([]*EdgeDefinition, 0, len(n.Edges))
	for _, e := range n.Edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Name < edges[j].Name })
	return edges
}

// PredicateMeta is the raw metadata the graph store reports for a predicate
type PredicateMeta struct {
	Predicate string   `json:"predicate"`
	Type      string   `json:"type"`
	List      bool     `json:"list,omitempty"`
	Index     []string `json:"tokenizer,omitempty"`
	Upsert    bool     `json:"upsert,omitempty"`
}

// String renders the metadata for error reports
func (m PredicateMeta) String() string {
	return fmt.Sprintf("{predicate:%q type:%q list:%t index:%v}", m.Predicate, m.Type, m.List, m.Index)
}
