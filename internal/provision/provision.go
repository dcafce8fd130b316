// Package provision runs the full provisioning pipeline: the graph schema is
// reconciled, applied and mirrored into lookup tables, then the bootstrap
// credential is derived and stored.
package provision

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nodegraph/provisioner/internal/credential"
	"github.com/nodegraph/provisioner/internal/graph"
	"github.com/nodegraph/provisioner/internal/graph/introspect"
	"github.com/nodegraph/provisioner/internal/graph/reconcile"
	"github.com/nodegraph/provisioner/internal/graph/schema"
	"github.com/nodegraph/provisioner/internal/graph/writer"
	"github.com/nodegraph/provisioner/internal/store"
)

// Settings identify the deployment and tune the graph reads
type Settings struct {
	Deployment  string
	Username    string
	Concurrency int
	Retry       *introspect.RetryConfig
}

// Report summarizes a provisioning run
type Report struct {
	RunID         string
	Deployment    string
	Types         []string
	Predicates    int
	Digest        string
	ApplicationID string
	Username      string
	Duration      time.Duration
}

// GraphResult is the outcome of the schema half of a run
type GraphResult struct {
	Types         []string
	Predicates    int
	Digest        string
	ApplicationID string
}

// CatalogSource builds a fresh catalog of declared node types
type CatalogSource func() (*schema.Catalog, error)

// Provisioner wires the pipeline components together
type Provisioner struct {
	settings Settings
	client   graph.Client
	db       *store.DB
	secrets  credential.SecretStore
	catalog  CatalogSource
	random   io.Reader
	logger   *zap.Logger
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// WithCatalog replaces the built-in node type definitions
func WithCatalog(source CatalogSource) Option {
	return func(p *Provisioner) {
		p.catalog = source
	}
}

// WithRandom sets the salt source of the credential step
func WithRandom(r io.Reader) Option {
	return func(p *Provisioner) {
		p.random = r
	}
}

// New creates a provisioner
func New(settings Settings, client graph.Client, db *store.DB, secrets credential.SecretStore, opts ...Option) *Provisioner {
	p := &Provisioner{
		settings: settings,
		client:   client,
		db:       db,
		secrets:  secrets,
		catalog:  schema.BuiltinCatalog,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.settings.Concurrency < 1 {
		p.settings.Concurrency = 1
	}
	return p
}

// Run migrates the tables, provisions the graph schema and then the
// bootstrap credential. The first failure aborts the run.
func (p *Provisioner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:      uuid.NewString(),
		Deployment: p.settings.Deployment,
		Username:   p.settings.Username,
	}
	logger := p.logger.With(
		zap.String("run_id", report.RunID),
		zap.String("deployment", p.settings.Deployment),
	)
	logger.Info("provisioning started")

	if err := p.db.Migrate(ctx); err != nil {
		return nil, err
	}

	result, err := p.provisionGraph(ctx, logger)
	if err != nil {
		return nil, err
	}
	report.Types = result.Types
	report.Predicates = result.Predicates
	report.Digest = result.Digest
	report.ApplicationID = result.ApplicationID

	if _, err := p.provisionCredential(ctx, logger); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	logger.Info("provisioning finished",
		zap.Int("types", len(report.Types)),
		zap.Int("predicates", report.Predicates),
		zap.String("digest", report.Digest),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// ProvisionGraph reconciles the declared types with the live schema, applies
// the unified document once and mirrors every type into the lookup tables.
// The tables must already exist; Run migrates them first.
func (p *Provisioner) ProvisionGraph(ctx context.Context) (*GraphResult, error) {
	return p.provisionGraph(ctx, p.logger)
}

// ProvisionCredential derives and stores the bootstrap credential
func (p *Provisioner) ProvisionCredential(ctx context.Context) (*credential.Credential, error) {
	return p.provisionCredential(ctx, p.logger)
}

func (p *Provisioner) provisionGraph(ctx context.Context, logger *zap.Logger) (*GraphResult, error) {
	catalog, err := p.catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load node type definitions: %w", err)
	}
	if err := catalog.InitReverse(); err != nil {
		return nil, fmt.Errorf("failed to initialize reverse edges: %w", err)
	}

	introspector := introspect.New(p.client,
		introspect.WithRetryConfig(p.settings.Retry),
		introspect.WithLogger(logger),
	)
	if err := reconcile.New(logger).ReconcileCatalog(ctx, catalog, introspector, p.settings.Concurrency); err != nil {
		return nil, err
	}

	shared, err := catalog.Unify()
	if err != nil {
		return nil, err
	}

	w := writer.New(logger)
	doc, err := w.Format(catalog)
	if err != nil {
		return nil, err
	}
	if err := w.Apply(ctx, p.client, doc); err != nil {
		return nil, err
	}

	app, err := store.NewTracker(p.db, p.settings.Deployment).Record(ctx, doc.Digest(), doc.String(), catalog.Count())
	if err != nil {
		return nil, err
	}

	persister := store.NewSchemaPersister(p.db, p.settings.Deployment, logger)
	for _, def := range catalog.Types() {
		if err := persister.StoreType(ctx, def); err != nil {
			return nil, err
		}
		if err := persister.StoreProperties(ctx, def); err != nil {
			return nil, err
		}
	}

	logger.Info("graph schema provisioned",
		zap.Int("types", catalog.Count()),
		zap.Int("predicates", len(shared)),
		zap.String("application_id", app.ID),
	)

	return &GraphResult{
		Types:         catalog.Names(),
		Predicates:    len(shared),
		Digest:        app.Digest,
		ApplicationID: app.ID,
	}, nil
}

func (p *Provisioner) provisionCredential(ctx context.Context, logger *zap.Logger) (*credential.Credential, error) {
	opts := []credential.Option{credential.WithLogger(logger)}
	if p.random != nil {
		opts = append(opts, credential.WithRandom(p.random))
	}

	return credential.NewProvisioner(
		p.secrets,
		store.NewIdentityStore(p.db, p.settings.Deployment),
		p.settings.Deployment,
		p.settings.Username,
		opts...,
	).Run(ctx)
}
