package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nodegraph/provisioner/internal/graph/schema"
)

const (
	schemaTable     = "schema"
	propertiesTable = "schema_properties"
)

// PropertyRecord is one row of the schema_properties table
type PropertyRecord struct {
	Name         string
	Type         schema.PrimitiveType
	Multiplicity schema.Multiplicity
	UpdatedAt    time.Time
}

// SchemaPersister mirrors node type definitions into lookup tables
type SchemaPersister struct {
	db         *DB
	deployment string
	logger     *zap.Logger
	now        func() time.Time
}

// NewSchemaPersister creates a persister writing rows for one deployment
func NewSchemaPersister(db *DB, deployment string, logger *zap.Logger) *SchemaPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaPersister{
		db:         db,
		deployment: deployment,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StoreType upserts the serialized definition of a node type
func (p *SchemaPersister) StoreType(ctx context.Context, def *schema.NodeTypeDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return persistError(schemaTable, def.Name, fmt.Errorf("failed to encode definition: %w", err))
	}

	query := `
INSERT INTO "schema" (deployment, type_name, definition, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (deployment, type_name)
DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at
`
	if _, err := p.db.ExecContext(ctx, query, p.deployment, def.Name, string(data), p.now()); err != nil {
		return persistError(schemaTable, def.Name, err)
	}

	p.logger.Debug("stored type definition", zap.String("type", def.Name))
	return nil
}

// StoreProperties upserts one row per property of the type. The rows are
// written in one transaction.
func (p *SchemaPersister) StoreProperties(ctx context.Context, def *schema.NodeTypeDefinition) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return persistError(propertiesTable, def.Name, err)
	}
	defer tx.Rollback()

	query := `
INSERT INTO "schema_properties" (deployment, property_name, primitive_type, multiplicity, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (deployment, property_name)
DO UPDATE SET primitive_type = excluded.primitive_type,
	multiplicity = excluded.multiplicity,
	updated_at = excluded.updated_at
`
	now := p.now()
	for _, prop := range def.SortedProperties() {
		if _, err := tx.ExecContext(ctx, query, p.deployment, prop.Name, prop.Type.String(), prop.Multiplicity.String(), now); err != nil {
			return persistError(propertiesTable, prop.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistError(propertiesTable, def.Name, err)
	}

	p.logger.Debug("stored type properties",
		zap.String("type", def.Name),
		zap.Int("properties", len(def.Properties)),
	)
	return nil
}

// LoadType reads back a stored node type definition
func (p *SchemaPersister) LoadType(ctx context.Context, name string) (*schema.NodeTypeDefinition, error) {
	query := `SELECT definition FROM "schema" WHERE deployment = $1 AND type_name = $2`

	var data string
	if err := p.db.QueryRowContext(ctx, query, p.deployment, name).Scan(&data); err != nil {
		return nil, fmt.Errorf("failed to load type %s: %w", name, convertDBError(err))
	}

	var def schema.NodeTypeDefinition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("failed to decode type %s: %w", name, err)
	}
	return &def, nil
}

// LoadProperty reads back a stored property record
func (p *SchemaPersister) LoadProperty(ctx context.Context, name string) (*PropertyRecord, error) {
	query := `
SELECT property_name, primitive_type, multiplicity, updated_at
FROM "schema_properties"
WHERE deployment = $1 AND property_name = $2
`
	var rec PropertyRecord
	var typ, multiplicity string
	err := p.db.QueryRowContext(ctx, query, p.deployment, name).Scan(&rec.Name, &typ, &multiplicity, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load property %s: %w", name, convertDBError(err))
	}

	if err := rec.Type.UnmarshalText([]byte(typ)); err != nil {
		return nil, fmt.Errorf("property %s: %w", name, err)
	}
	if err := rec.Multiplicity.UnmarshalText([]byte(multiplicity)); err != nil {
		return nil, fmt.Errorf("property %s: %w", name, err)
	}
	return &rec, nil
}
