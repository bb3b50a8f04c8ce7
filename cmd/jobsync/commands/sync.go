package commands

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"jobsync-engine/internal/logger"
	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/scheduler"
)

// SyncCmd runs one reconciliation pass.
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile every configured source once and print the summary",
	Long: `Crawl each configured job board, reconcile the postings against the catalog and
recheck jobs that disappeared from their listing. The summary is printed as JSON.

Per-source failures are part of the summary and do not change the exit code; the
command exits non-zero only when configuration, the catalog or the run lock fail.`,
	RunE: runSync,
}

var (
	syncDryRun bool
	syncSource string
)

func init() {
	SyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Compute decisions and counters without writing the catalog")
	SyncCmd.Flags().StringVar(&syncSource, "source", "", "Only reconcile the source with this name")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := logger.ComponentLogger("cli")

	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open catalog")
	}
	defer closeCatalog(cat, log)

	orch := newOrchestrator(cfg, cat)
	runner := scheduler.NewRunner(orch.Sync, nil, cfg.LockPath())

	sum, err := runner.Run(ctx, reconcile.Options{DryRun: syncDryRun, SourceName: syncSource})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return errors.Wrap(err, "write summary")
	}
	log.Infow(sum.String())
	return nil
}
