package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jobsync-engine/cmd/jobsync/commands"
	"jobsync-engine/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "jobsync",
	Short: "jobsync - keep a job catalog in step with external job boards",
	Long: `jobsync crawls configured job-board listing pages, reconciles what it finds
against the job catalog and soft-terminates postings that have verifiably closed.

Available commands:
  sync     - Run one reconciliation pass and print the summary as JSON
  serve    - Run sync on a schedule and expose a small status API
  sources  - Show or add configured job-board sources
  jobs     - List catalog rows
  secrets  - Manage per-source bearer tokens in the OS keychain

Examples:
  jobsync sync --dry-run             # Preview without touching the catalog
  jobsync sync --source AcmeBoard    # Reconcile one source
  jobsync serve                      # Cron + HTTP status on 127.0.0.1:38471
  jobsync jobs --state terminated    # Show closed postings`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", commands.DefaultConfigPath(), "Path to the settings file")

	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SourcesCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.SecretsCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
