package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nodegraph/provisioner/internal/cli/config"
	"github.com/nodegraph/provisioner/internal/cli/ui"
	"github.com/nodegraph/provisioner/internal/credential"
	"github.com/nodegraph/provisioner/internal/graph/dgraph"
	"github.com/nodegraph/provisioner/internal/graph/introspect"
	"github.com/nodegraph/provisioner/internal/logging"
	"github.com/nodegraph/provisioner/internal/provision"
	"github.com/nodegraph/provisioner/internal/secrets"
	"github.com/nodegraph/provisioner/internal/store"
)

func runProvision(ctx context.Context, out io.Writer, opts *rootOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := dgraph.Dial(ctx, dgraph.Config{
		Addrs:       cfg.Graph.Addrs,
		DialTimeout: cfg.Graph.DialTimeout,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	secretStore, closeSecrets, err := openSecrets(ctx, cfg.Secrets)
	if err != nil {
		return err
	}
	defer closeSecrets()

	p := provision.New(provision.Settings{
		Deployment:  cfg.DeploymentName,
		Username:    cfg.BootstrapUser,
		Concurrency: cfg.Graph.Concurrency,
		Retry: &introspect.RetryConfig{
			MaxRetries:  cfg.Graph.MaxRetries,
			BaseBackoff: cfg.Graph.BaseBackoff,
		},
	}, client, db, secretStore, provision.WithLogger(logger))

	report, err := p.Run(ctx)
	if err != nil {
		logger.Error("provisioning failed", zap.Error(err))
		return err
	}

	ui.RenderReport(out, report, opts.noColor)
	return nil
}

func openSecrets(ctx context.Context, cfg config.SecretsConfig) (credential.SecretStore, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rs := secrets.NewRedisStore(&secrets.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	case config.BackendEnv:
		return secrets.NewEnvStore(cfg.EnvPrefix), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown secret backend %q", cfg.Backend)
	}
}
