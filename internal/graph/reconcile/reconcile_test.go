package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegraph/provisioner/internal/graph/graphtest"
	"github.com/nodegraph/provisioner/internal/graph/introspect"
	"github.com/nodegraph/provisioner/internal/graph/schema"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name         string
		meta         schema.PredicateMeta
		wantProperty *schema.PropertyDefinition
		wantEdge     *schema.EdgeDefinition
	}{
		{
			name: "single string",
			meta: schema.PredicateMeta{Predicate: "hostname", Type: "string"},
			wantProperty: &schema.PropertyDefinition{
				Name: "hostname", Type: schema.TypeString, Multiplicity: schema.Single, Index: []string{},
			},
		},
		{
			name: "int list with index",
			meta: schema.PredicateMeta{Predicate: "ports", Type: "int", List: true, Index: []string{"int"}},
			wantProperty: &schema.PropertyDefinition{
				Name: "ports", Type: schema.TypeInt, Multiplicity: schema.Many, Index: []string{"int"},
			},
		},
		{
			name: "bool upsert",
			meta: schema.PredicateMeta{Predicate: "signed", Type: "bool", Upsert: true},
			wantProperty: &schema.PropertyDefinition{
				Name: "signed", Type: schema.TypeBool, Multiplicity: schema.Single, Index: []string{}, Upsert: true,
			},
		},
		{
			name: "uid list",
			meta: schema.PredicateMeta{Predicate: "children", Type: "uid", List: true},
			wantEdge: &schema.EdgeDefinition{
				Name: "children", From: "Process", To: schema.BaseType, Cardinality: schema.OneToMany,
			},
		},
		{
			name: "single uid",
			meta: schema.PredicateMeta{Predicate: "bin_file", Type: "uid"},
			wantEdge: &schema.EdgeDefinition{
				Name: "bin_file", From: "Process", To: schema.BaseType, Cardinality: schema.OneToOne,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := Convert("Process", tt.meta)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProperty, pred.Property)
			assert.Equal(t, tt.wantEdge, pred.Edge)
		})
	}
}

func TestConvert_IndexIsCopied(t *testing.T) {
	meta := schema.PredicateMeta{Predicate: "hostname", Type: "string", Index: []string{"exact"}}
	pred, err := Convert("Asset", meta)
	require.NoError(t, err)

	meta.Index[0] = "mutated"
	assert.Equal(t, []string{"exact"}, pred.Property.Index)
}

func TestConvert_UnknownPrimitive(t *testing.T) {
	for _, typ := range []string{"float", "datetime", "geo", ""} {
		t.Run(fmt.Sprintf("type %q", typ), func(t *testing.T) {
			meta := schema.PredicateMeta{Predicate: "weight", Type: typ}
			_, err := Convert("Asset", meta)
			require.Error(t, err)
			assert.True(t, IsConversion(err))

			var convErr *ConversionError
			require.True(t, errors.As(err, &convErr))
			assert.Equal(t, meta, convErr.Meta)
			assert.Equal(t, "Asset", convErr.Type)
			assert.Contains(t, err.Error(), "weight")
		})
	}
}

func TestReconcile_AddsMissingPredicates(t *testing.T) {
	def := schema.NewNodeType("Asset")
	def.AddProperty(&schema.PropertyDefinition{Name: "node_key", Type: schema.TypeString, Index: []string{"hash"}})

	err := New(nil).Reconcile(def, []schema.PredicateMeta{
		{Predicate: "hostname", Type: "string", Index: []string{"exact"}},
	})
	require.NoError(t, err)

	hostname, ok := def.Properties["hostname"]
	require.True(t, ok)
	assert.Equal(t, schema.TypeString, hostname.Type)
	assert.Equal(t, schema.Single, hostname.Multiplicity)
	assert.Equal(t, []string{"exact"}, hostname.Index)
	assert.Contains(t, def.Properties, "node_key")
}

func TestReconcile_IsAdditive(t *testing.T) {
	def := schema.NewNodeType("Process")
	def.AddProperty(&schema.PropertyDefinition{Name: "pid", Type: schema.TypeInt, Index: []string{"int"}})
	def.AddEdge(&schema.EdgeDefinition{Name: "children", To: "Process", Cardinality: schema.OneToMany})
	declared := def.PredicateNames()

	metas := []schema.PredicateMeta{
		{Predicate: "image_name", Type: "string"},
		{Predicate: "bin_file", Type: "uid"},
		{Predicate: "flags", Type: "int", List: true},
	}
	require.NoError(t, New(nil).Reconcile(def, metas))

	for _, name := range declared {
		assert.True(t, def.HasPredicate(name), "declared predicate %s must survive", name)
	}
	for _, meta := range metas {
		assert.True(t, def.HasPredicate(meta.Predicate), "live predicate %s must be added", meta.Predicate)
	}
	assert.Len(t, def.PredicateNames(), len(declared)+len(metas))
}

func TestReconcile_DeclaredDefinitionWins(t *testing.T) {
	def := schema.NewNodeType("Process")
	def.AddEdge(&schema.EdgeDefinition{Name: "children", To: "Process", Cardinality: schema.OneToMany})
	def.AddProperty(&schema.PropertyDefinition{Name: "pid", Type: schema.TypeInt})

	err := New(nil).Reconcile(def, []schema.PredicateMeta{
		{Predicate: "children", Type: "uid"},
		{Predicate: "pid", Type: "float"},
	})
	require.NoError(t, err, "declared predicates are not converted")
	assert.Equal(t, "Process", def.Edges["children"].To)
	assert.Equal(t, schema.OneToMany, def.Edges["children"].Cardinality)
}

func TestReconcile_FailureLeavesDefinitionUntouched(t *testing.T) {
	def := schema.NewNodeType("Asset")

	err := New(nil).Reconcile(def, []schema.PredicateMeta{
		{Predicate: "hostname", Type: "string"},
		{Predicate: "weight", Type: "float"},
	})
	require.Error(t, err)
	assert.True(t, IsConversion(err))
	assert.Empty(t, def.Properties)
}

type fakeSource struct {
	mu    sync.Mutex
	metas map[string][]schema.PredicateMeta
	err   error
	calls []string
}

func (f *fakeSource) FetchType(_ context.Context, name string) ([]schema.PredicateMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.metas[name], nil
}

func newCatalog(t *testing.T, names ...string) *schema.Catalog {
	t.Helper()
	c := schema.NewCatalog()
	for _, name := range names {
		require.NoError(t, c.Register(schema.NewNodeType(name)))
	}
	return c
}

func TestReconcileCatalog(t *testing.T) {
	for _, concurrency := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			c := newCatalog(t, "Asset", "File", "Process")
			src := &fakeSource{metas: map[string][]schema.PredicateMeta{
				"Asset":   {{Predicate: "hostname", Type: "string"}},
				"Process": {{Predicate: "children", Type: "uid", List: true}},
			}}

			require.NoError(t, New(nil).ReconcileCatalog(context.Background(), c, src, concurrency))
			assert.ElementsMatch(t, []string{"Asset", "File", "Process"}, src.calls)

			asset, _ := c.Get("Asset")
			assert.Contains(t, asset.Properties, "hostname")
			proc, _ := c.Get("Process")
			assert.Equal(t, schema.OneToMany, proc.Edges["children"].Cardinality)
		})
	}
}

func TestReconcileCatalog_PropagatesErrors(t *testing.T) {
	c := newCatalog(t, "Asset")
	src := &fakeSource{err: errors.New("boom")}

	err := New(nil).ReconcileCatalog(context.Background(), c, src, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Asset")
	assert.Contains(t, err.Error(), "boom")
}

func TestReconcileCatalog_WithIntrospector(t *testing.T) {
	store := graphtest.New()
	store.AddType("Asset", "hostname")
	store.AddPredicate(schema.PredicateMeta{Predicate: "hostname", Type: "string", Index: []string{"exact"}})

	c := newCatalog(t, "Asset", "Process")
	err := New(nil).ReconcileCatalog(context.Background(), c, introspect.New(store), 1)
	require.NoError(t, err)

	asset, _ := c.Get("Asset")
	require.Contains(t, asset.Properties, "hostname")
	assert.Equal(t, &schema.PropertyDefinition{
		Name: "hostname", Type: schema.TypeString, Multiplicity: schema.Single, Index: []string{"exact"},
	}, asset.Properties["hostname"])
	assert.Equal(t, int64(0), store.OpenTxns())
}

func TestReconcileCatalog_UnknownLivePrimitiveIsFatal(t *testing.T) {
	store := graphtest.New()
	store.AddType("Asset", "weight")
	store.AddPredicate(schema.PredicateMeta{Predicate: "weight", Type: "float"})

	c := newCatalog(t, "Asset")
	err := New(nil).ReconcileCatalog(context.Background(), c, introspect.New(store), 1)
	require.Error(t, err)
	assert.True(t, IsConversion(err))
}
