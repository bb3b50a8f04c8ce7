package commands

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"jobsync-engine/internal/events"
	"jobsync-engine/internal/httpapi"
	"jobsync-engine/internal/logger"
	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/scheduler"
	"jobsync-engine/internal/secrets"
)

// ServeCmd runs sync on a schedule behind a small HTTP status API.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sync on a cron schedule and serve sync status over HTTP",
	Long: `Start the scheduler (serve.schedule, default every six hours) and an HTTP API on
serve.addr:

  GET  /health         liveness
  GET  /sync/status    running flag and the last summary
  POST /sync/run       start a run (?dry_run=1&source=NAME), 409 while one is active
  GET  /events         server-sent sync progress events
  GET  /jobs           catalog listing
  GET  /config         effective settings
  GET  /sources        validated source list`,
	RunE: runServe,
}

var (
	serveAddr   string
	serveRunNow bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides serve.addr)")
	ServeCmd.Flags().BoolVar(&serveRunNow, "run-now", false, "Run a sync immediately instead of waiting for the first tick")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := logger.ComponentLogger("serve")
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}

	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open catalog")
	}
	defer closeCatalog(cat, log)

	hub := events.NewHub()
	var orch *reconcile.Orchestrator
	runner := scheduler.NewRunner(func(ctx context.Context, opts reconcile.Options) (*reconcile.SyncSummary, error) {
		return orch.Sync(ctx, opts)
	}, hub, cfg.LockPath())
	orch = newOrchestrator(cfg, cat, reconcile.WithSourceHook(runner.SourceHook))

	sched, err := scheduler.New(cfg.Serve.Schedule, "sync", func(ctx context.Context) error {
		_, err := runner.Run(ctx, reconcile.Options{})
		return err
	})
	if err != nil {
		return err
	}

	deps := httpapi.Deps{
		Runner:      runner,
		Hub:         hub,
		Jobs:        cat.lister,
		Config:      cfg,
		LoadSources: sourceLoader(cfg),
		SetToken:    secrets.SetToken,
		RunContext:  ctx,
	}
	if cat.checkpoint != nil {
		deps.DB = checkpointFunc(cat.checkpoint)
	}

	ln, err := net.Listen("tcp", cfg.Serve.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Serve.Addr)
	}
	srv := &http.Server{
		Handler:           httpapi.Handler(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := sched.Start(ctx, serveRunNow); err != nil {
		return err
	}
	log.Infow("jobsync listening", "addr", "http://"+cfg.Serve.Addr, "schedule", cfg.Serve.Schedule, "db_driver", cfg.DBDriver)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
			sched.Stop()
			runner.Wait()
			return errors.Wrap(err, "http server")
		}
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", logger.FieldError, err)
	}
	sched.Stop()
	runner.Wait()
	return nil
}

// checkpointFunc adapts a method value to httpapi.Checkpointer.
type checkpointFunc func(ctx context.Context) error

func (f checkpointFunc) Checkpoint(ctx context.Context) error { return f(ctx) }
