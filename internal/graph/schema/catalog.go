package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog holds every node type definition for one provisioning run
type Catalog struct {
	types map[string]*NodeTypeDefinition
	mu    sync.RWMutex
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		types: make(map[string]*NodeTypeDefinition),
	}
}

// Register adds a node type definition to the catalog
func (c *Catalog) Register(def *NodeTypeDefinition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("node type definition must have a name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.types[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, def.Name)
	}
	if def.Properties == nil {
		def.Properties = make(map[string]*PropertyDefinition)
	}
	if def.Edges == nil {
		def.Edges = make(map[string]*EdgeDefinition)
	}

	c.types[def.Name] = def
	return nil
}

// Get retrieves a node type by name
func (c *Catalog) Get(name string) (*NodeTypeDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.types[name]
	return def, ok
}

// Names returns the registered type names in sorted order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns the registered definitions sorted by name
func (c *Catalog) Types() []*NodeTypeDefinition {
	names := c.Names()

	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]*NodeTypeDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, c.types[name])
	}
	return defs
}

// Count returns the number of registered types
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.types)
}

// InitReverse materializes the reverse predicate of every edge that names
// one on the edge's destination type. Types already initialized are skipped,
// so the call is idempotent.
func (c *Catalog) InitReverse() error {
	for _, def := range c.Types() {
		if def.ReverseInitialized {
			continue
		}

		for _, edge := range def.SortedEdges() {
			if edge.Reverse == nil || edge.Reverse.Name == "" {
				continue
			}

			dest, ok := c.Get(edge.To)
			if !ok {
				return fmt.Errorf("%w: %s (destination of %s.%s)", ErrTypeNotFound, edge.To, def.Name, edge.Name)
			}

			added := dest.AddEdge(&EdgeDefinition{
				Name:        edge.Reverse.Name,
				From:        dest.Name,
				To:          def.Name,
				Cardinality: edge.Reverse.Cardinality,
				Reverse: &ReverseEdge{
					Name:        edge.Name,
					Cardinality: edge.Cardinality,
				},
			})
			if !added && !isReverseOf(dest.Edges[edge.Reverse.Name], def.Name, edge.Name) {
				return &ConflictError{
					Predicate: edge.Reverse.Name,
					Types:     []string{def.Name, dest.Name},
					Reason:    fmt.Sprintf("reverse of %s.%s is already declared on %s", def.Name, edge.Name, dest.Name),
				}
			}
		}

		def.ReverseInitialized = true
	}

	return nil
}

// isReverseOf reports whether existing already links back to the edge name
// declared on from
func isReverseOf(existing *EdgeDefinition, from, name string) bool {
	if existing == nil || existing.To != from {
		return false
	}
	return existing.Reverse == nil || existing.Reverse.Name == name
}
