// Package commands holds the jobsync cobra commands.
package commands

import (
	"context"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"jobsync-engine/internal/config"
	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/fetch"
	"jobsync-engine/internal/logger"
	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/secrets"
	"jobsync-engine/internal/store"
)

// ConfigPath is bound to the root --config flag.
var ConfigPath string

// DefaultConfigPath honours JOBSYNC_CONFIG before the built-in default.
func DefaultConfigPath() string {
	if p := os.Getenv("JOBSYNC_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

// catalog is an opened store plus the optional capabilities of its backend.
type catalog struct {
	store.JobStore
	lister     store.Lister
	checkpoint func(ctx context.Context) error
	close      func() error
}

// loadConfig reads settings and sets up logging from them.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, v, err := config.Load(ctx, ConfigPath, nil)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.Log.Format, cfg.Log.Level); err != nil {
		return nil, errors.Wrap(err, "initialize logger")
	}
	log := logger.ComponentLogger("config")
	for _, w := range v.Warnings {
		log.Warnw(w)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openCatalog(ctx context.Context, cfg *config.Config) (*catalog, error) {
	switch cfg.DBDriver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &catalog{JobStore: pg, lister: pg, close: pg.Close}, nil
	default:
		sq, err := store.OpenSQLite(ctx, cfg.DBPath())
		if err != nil {
			return nil, err
		}
		return &catalog{JobStore: sq, lister: sq, checkpoint: sq.Checkpoint, close: sq.Close}, nil
	}
}

// sourceLoader re-reads the source list on every run so edits apply without
// a restart.
func sourceLoader(cfg *config.Config) func(ctx context.Context) (*config.SourceSet, error) {
	log := logger.ComponentLogger("config")
	return func(ctx context.Context) (*config.SourceSet, error) {
		set, err := config.LoadSources(ctx, cfg, nil, secrets.Keyring{})
		if err != nil {
			return nil, err
		}
		for _, w := range set.Warnings {
			log.Warnw(w)
		}
		return set, nil
	}
}

func newFetcher(cfg *config.Config) *fetch.Fetcher {
	return fetch.New(
		fetch.WithClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
		fetch.WithLimiter(fetch.NewHostLimiter(cfg.Fetch.RequestsPerSecond, cfg.Fetch.Burst)),
		fetch.WithMaxAttempts(cfg.Fetch.MaxAttempts),
		fetch.WithBackoffStep(cfg.Fetch.BackoffStep),
		fetch.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
	)
}

func newOrchestrator(cfg *config.Config, st store.JobStore, opts ...reconcile.OrchestratorOption) *reconcile.Orchestrator {
	load := sourceLoader(cfg)
	r := reconcile.New(newFetcher(cfg), reconcile.WithRecheckConcurrency(cfg.Sync.RecheckConcurrency))
	opts = append([]reconcile.OrchestratorOption{reconcile.WithSourceConcurrency(cfg.Sync.Concurrency)}, opts...)
	return reconcile.NewOrchestrator(r, st, func(ctx context.Context) ([]domain.SourceDescriptor, error) {
		set, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return set.Sources, nil
	}, opts...)
}

func closeCatalog(c *catalog, log *zap.SugaredLogger) {
	if err := c.close(); err != nil {
		log.Warnw("close catalog", logger.FieldError, err)
	}
}
