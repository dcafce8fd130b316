package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegraph/provisioner/internal/credential"
	"github.com/nodegraph/provisioner/internal/graph/graphtest"
	"github.com/nodegraph/provisioner/internal/graph/introspect"
	"github.com/nodegraph/provisioner/internal/graph/reconcile"
	"github.com/nodegraph/provisioner/internal/graph/schema"
	"github.com/nodegraph/provisioner/internal/graph/writer"
	"github.com/nodegraph/provisioner/internal/secrets"
	"github.com/nodegraph/provisioner/internal/store"
)

const (
	deployment = "prod"
	username   = "testuser"
	password   = "Sup3rSecret!"
)

type fixture struct {
	graph   *graphtest.Store
	db      *store.DB
	secrets *secrets.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		graph:   graphtest.New(),
		db:      db,
		secrets: secrets.NewMemoryStore(map[string]string{credential.SecretID(deployment): password}),
	}
}

func (f *fixture) provisioner(opts ...Option) *Provisioner {
	settings := Settings{
		Deployment: deployment,
		Username:   username,
		Retry:      &introspect.RetryConfig{MaxRetries: 2},
	}
	return New(settings, f.graph, f.db, f.secrets, opts...)
}

// processCatalog declares Process{pid: Int, children: Process -> Process}
func processCatalog() (*schema.Catalog, error) {
	c := schema.NewCatalog()
	proc := schema.NewNodeType("Process")
	proc.AddProperty(&schema.PropertyDefinition{Name: "pid", Type: schema.TypeInt, Index: []string{"int"}})
	proc.AddEdge(&schema.EdgeDefinition{Name: "children", To: "Process", Cardinality: schema.OneToMany})
	return c, c.Register(proc)
}

func assetCatalog() (*schema.Catalog, error) {
	c := schema.NewCatalog()
	asset := schema.NewNodeType("Asset")
	asset.AddProperty(&schema.PropertyDefinition{Name: "node_key", Type: schema.TypeString, Index: []string{"hash"}, Upsert: true})
	return c, c.Register(asset)
}

func TestRun_EmptyLiveSchema(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.provisioner(WithCatalog(processCatalog)).Run(ctx)
	require.NoError(t, err)

	require.Len(t, f.graph.Applied, 1)
	doc := f.graph.Applied[0]
	assert.Contains(t, doc, "pid: int @index(int) .")
	assert.Contains(t, doc, "children: [uid] .")
	assert.Contains(t, doc, "type Process {\n  children\n  pid\n}")

	pid, err := store.NewSchemaPersister(f.db, deployment, nil).LoadProperty(ctx, "pid")
	require.NoError(t, err)
	assert.Equal(t, schema.TypeInt, pid.Type)
	assert.Equal(t, schema.Single, pid.Multiplicity)

	assert.Equal(t, []string{"Process"}, report.Types)
	assert.Equal(t, 2, report.Predicates)
	assert.Equal(t, writer.Document(doc).Digest(), report.Digest)
	assert.Equal(t, username, report.Username)
	assert.NotEmpty(t, report.RunID)

	last, err := store.NewTracker(f.db, deployment).Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, report.ApplicationID, last.ID)
	assert.Equal(t, doc, last.Document)
	assert.Equal(t, 1, last.TypeCount)
}

func TestRun_MergesLivePredicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.graph.AddType("Asset", "hostname", "node_key")
	f.graph.AddPredicate(schema.PredicateMeta{Predicate: "hostname", Type: "string", Index: []string{"exact"}})
	f.graph.AddPredicate(schema.PredicateMeta{Predicate: "node_key", Type: "string", Index: []string{"hash"}, Upsert: true})

	_, err := f.provisioner(WithCatalog(assetCatalog)).Run(ctx)
	require.NoError(t, err)

	require.Len(t, f.graph.Applied, 1)
	assert.Contains(t, f.graph.Applied[0], "hostname: string @index(exact) .")
	assert.Contains(t, f.graph.Applied[0], "type Asset {\n  hostname\n  node_key\n}")

	asset, err := store.NewSchemaPersister(f.db, deployment, nil).LoadType(ctx, "Asset")
	require.NoError(t, err)
	require.Contains(t, asset.Properties, "hostname")
	assert.Equal(t, &schema.PropertyDefinition{
		Name: "hostname", Type: schema.TypeString, Multiplicity: schema.Single, Index: []string{"exact"},
	}, asset.Properties["hostname"])
}

func TestRun_RepeatedRunsAreStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.provisioner()

	first, err := p.Run(ctx)
	require.NoError(t, err)
	firstCred, err := store.NewIdentityStore(f.db, deployment).GetCredential(ctx, username)
	require.NoError(t, err)

	second, err := p.Run(ctx)
	require.NoError(t, err)
	secondCred, err := store.NewIdentityStore(f.db, deployment).GetCredential(ctx, username)
	require.NoError(t, err)

	require.Len(t, f.graph.Applied, 2)
	assert.Equal(t, f.graph.Applied[0], f.graph.Applied[1])
	assert.Equal(t, first.Digest, second.Digest)
	assert.NotEqual(t, first.ApplicationID, second.ApplicationID)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.NotEqual(t, firstCred.Hash, secondCred.Hash)
	assert.True(t, credential.Verify(password, secondCred))

	n, err := store.NewTracker(f.db, deployment).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_BuiltinCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sequential, err := f.provisioner().Run(ctx)
	require.NoError(t, err)

	builtin, err := schema.BuiltinCatalog()
	require.NoError(t, err)
	assert.Equal(t, builtin.Names(), sequential.Types)

	parallel := newFixture(t)
	p := New(Settings{Deployment: deployment, Username: username, Concurrency: 4}, parallel.graph, parallel.db, parallel.secrets)
	concurrent, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, sequential.Digest, concurrent.Digest)
	assert.Equal(t, f.graph.Applied, parallel.graph.Applied)

	parent, ok := f.graph.Predicate("parent")
	require.True(t, ok, "reverse edges are applied")
	assert.Equal(t, "uid", parent.Type)
	assert.False(t, parent.List)
}

func TestRun_DeploymentsShareDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.secrets.PutSecret(ctx, credential.SecretID("staging"), "St4gingSecret!"))

	_, err := f.provisioner(WithCatalog(processCatalog)).Run(ctx)
	require.NoError(t, err)
	prodBefore, err := store.NewIdentityStore(f.db, deployment).GetCredential(ctx, username)
	require.NoError(t, err)

	staging := New(Settings{Deployment: "staging", Username: username}, f.graph, f.db, f.secrets, WithCatalog(processCatalog))
	_, err = staging.Run(ctx)
	require.NoError(t, err)

	prodAfter, err := store.NewIdentityStore(f.db, deployment).GetCredential(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, prodBefore, prodAfter)
	assert.True(t, credential.Verify(password, prodAfter))

	stagingCred, err := store.NewIdentityStore(f.db, "staging").GetCredential(ctx, username)
	require.NoError(t, err)
	assert.True(t, credential.Verify("St4gingSecret!", stagingCred))
	assert.False(t, credential.Verify(password, stagingCred))
}

func TestRun_Credential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.provisioner(WithCatalog(processCatalog)).Run(ctx)
	require.NoError(t, err)

	cred, err := store.NewIdentityStore(f.db, deployment).GetCredential(ctx, username)
	require.NoError(t, err)
	assert.Len(t, cred.Salt, credential.SaltLength)
	assert.NotEqual(t, password, cred.Hash)
	assert.True(t, credential.Verify(password, cred))
}

func TestRun_SecretNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := New(Settings{Deployment: "staging", Username: username}, f.graph, f.db, f.secrets, WithCatalog(processCatalog))

	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, secrets.ErrSecretNotFound))
	assert.Contains(t, err.Error(), "staging-TestUserPassword")

	_, err = store.NewIdentityStore(f.db, "staging").GetCredential(ctx, username)
	assert.True(t, store.IsNotFound(err))
}

func TestRun_ApplyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.graph.AlterErr = errors.New("alpha unavailable")

	_, err := f.provisioner(WithCatalog(processCatalog)).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, writer.ErrSchemaApply))

	last, err := store.NewTracker(f.db, deployment).Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = store.NewSchemaPersister(f.db, deployment, nil).LoadType(ctx, "Process")
	assert.True(t, store.IsNotFound(err))
	_, err = store.NewIdentityStore(f.db, deployment).GetCredential(ctx, username)
	assert.True(t, store.IsNotFound(err), "credential step does not run after a failed apply")
}

func TestRun_UnknownLivePrimitive(t *testing.T) {
	f := newFixture(t)
	f.graph.AddType("Process", "weight")
	f.graph.AddPredicate(schema.PredicateMeta{Predicate: "weight", Type: "float"})

	_, err := f.provisioner(WithCatalog(processCatalog)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, reconcile.IsConversion(err))
	assert.Contains(t, err.Error(), "weight")
	assert.Empty(t, f.graph.Applied)
}

func TestRun_ConflictingDeclarations(t *testing.T) {
	f := newFixture(t)
	conflicting := func() (*schema.Catalog, error) {
		c := schema.NewCatalog()
		a := schema.NewNodeType("A")
		a.AddProperty(&schema.PropertyDefinition{Name: "port", Type: schema.TypeInt})
		b := schema.NewNodeType("B")
		b.AddEdge(&schema.EdgeDefinition{Name: "port", To: "A"})
		if err := c.Register(a); err != nil {
			return nil, err
		}
		return c, c.Register(b)
	}

	_, err := f.provisioner(WithCatalog(conflicting)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsConflict(err))
	assert.Empty(t, f.graph.Applied)
}

func TestRun_SchemaQueryFailure(t *testing.T) {
	f := newFixture(t)
	f.graph.QueryErr = func(string) error { return errors.New("connection refused") }

	_, err := f.provisioner(WithCatalog(processCatalog)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, introspect.IsSchemaQuery(err))
	assert.Contains(t, err.Error(), "Process")
	assert.Equal(t, int64(2), f.graph.QueryCount())
	assert.Equal(t, int64(0), f.graph.OpenTxns())
	assert.Empty(t, f.graph.Applied)
}

func TestProvisionGraphAndCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Migrate(ctx))
	p := f.provisioner(WithCatalog(processCatalog))

	result, err := p.ProvisionGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Process"}, result.Types)

	cred, err := p.ProvisionCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, username, cred.Username)
}
