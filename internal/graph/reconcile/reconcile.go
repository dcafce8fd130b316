// Package reconcile merges live predicate metadata into declared node types.
// Merging is additive: predicates are only ever added to a definition.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nodegraph/provisioner/internal/graph/schema"
)

// Source fetches the live predicates of a type
type Source interface {
	FetchType(ctx context.Context, name string) ([]schema.PredicateMeta, error)
}

// Reconciler merges live predicates into node type definitions
type Reconciler struct {
	logger *zap.Logger
}

// New creates a reconciler
func New(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{logger: logger}
}

// Reconcile adds every live predicate the definition does not already declare.
// Declared predicates are never replaced or removed. On a conversion failure
// the definition is left untouched.
func (r *Reconciler) Reconcile(def *schema.NodeTypeDefinition, metas []schema.PredicateMeta) error {
	converted := make([]Predicate, 0, len(metas))
	for _, meta := range metas {
		if def.HasPredicate(meta.Predicate) {
			continue
		}
		pred, err := Convert(def.Name, meta)
		if err != nil {
			return err
		}
		converted = append(converted, pred)
	}

	added := 0
	for _, pred := range converted {
		switch {
		case pred.Property != nil:
			if def.AddProperty(pred.Property) {
				added++
			}
		case pred.Edge != nil:
			if def.AddEdge(pred.Edge) {
				added++
			}
		}
	}

	if added > 0 {
		r.logger.Info("merged live predicates",
			zap.String("type", def.Name),
			zap.Int("added", added),
		)
	}

	return nil
}

// ReconcileCatalog fetches and reconciles every type of the catalog. With
// concurrency above one, types are reconciled in parallel; each goroutine only
// touches its own definition. It returns once every type has finished.
func (r *Reconciler) ReconcileCatalog(ctx context.Context, catalog *schema.Catalog, source Source, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, def := range catalog.Types() {
		def := def
		g.Go(func() error {
			metas, err := source.FetchType(gctx, def.Name)
			if err != nil {
				return fmt.Errorf("failed to introspect type %s: %w", def.Name, err)
			}
			if err := r.Reconcile(def, metas); err != nil {
				return fmt.Errorf("failed to reconcile type %s: %w", def.Name, err)
			}
			return nil
		})
	}

	return g.Wait()
}
