package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed definitions.yaml
var builtinDefinitions []byte

// definitionFile is the on-disk layout of static node type declarations
type definitionFile struct {
	BaseProperties []propertyDeclaration `yaml:"base_properties"`
	Types          []typeDeclaration     `yaml:"types"`
}

type typeDeclaration struct {
	Name       string                `yaml:"name"`
	Properties []propertyDeclaration `yaml:"properties"`
	Edges      []EdgeDefinition      `yaml:"edges"`
}

// propertyDeclaration keeps Type as a pointer so a missing type key is
// distinguishable from "string"
type propertyDeclaration struct {
	Name         string         `yaml:"name"`
	Type         *PrimitiveType `yaml:"type"`
	Multiplicity Multiplicity   `yaml:"multiplicity"`
	Index        []string       `yaml:"index"`
	Upsert       bool           `yaml:"upsert"`
}

func (d propertyDeclaration) definition(owner string) (*PropertyDefinition, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%s: property without a name", owner)
	}
	if d.Type == nil {
		return nil, fmt.Errorf("%s: property %s has no type", owner, d.Name)
	}
	return &PropertyDefinition{
		Name:         d.Name,
		Type:         *d.Type,
		Multiplicity: d.Multiplicity,
		Index:        append([]string{}, d.Index...),
		Upsert:       d.Upsert,
	}, nil
}

// BuiltinCatalog returns a fresh catalog holding the node types shipped with
// the provisioner
func BuiltinCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(builtinDefinitions))
}

// LoadCatalog decodes YAML node type declarations into a new catalog.
// Unknown keys are rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file definitionFile
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return NewCatalog(), nil
		}
		return nil, fmt.Errorf("failed to decode node type definitions: %w", err)
	}

	for _, decl := range file.BaseProperties {
		if _, err := decl.definition("base_properties"); err != nil {
			return nil, err
		}
	}

	catalog := NewCatalog()
	for _, decl := range file.Types {
		def := NewNodeType(decl.Name)

		for _, base := range file.BaseProperties {
			prop, _ := base.definition("base_properties")
			def.AddProperty(prop)
		}

		for _, propDecl := range decl.Properties {
			prop, err := propDecl.definition("type " + decl.Name)
			if err != nil {
				return nil, err
			}
			if !def.AddProperty(prop) {
				return nil, fmt.Errorf("type %s: predicate %s declared twice", decl.Name, prop.Name)
			}
		}

		for i := range decl.Edges {
			edge := decl.Edges[i]
			if edge.Name == "" {
				return nil, fmt.Errorf("type %s: edge without a name", decl.Name)
			}
			edge.From = decl.Name
			if !def.AddEdge(&edge) {
				return nil, fmt.Errorf("type %s: predicate %s declared twice", decl.Name, edge.Name)
			}
		}

		if err := catalog.Register(def); err != nil {
			return nil, err
		}
	}

	return catalog, nil
}
