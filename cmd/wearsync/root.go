// ABOUTME: Root Cobra command for wearsync CLI.
// ABOUTME: Opens config and storage in PersistentPre/PostRunE for all subcommands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teamfit/wearsync/internal/config"
	"github.com/teamfit/wearsync/internal/pipeline"
	"github.com/teamfit/wearsync/internal/provider"
	"github.com/teamfit/wearsync/internal/rules"
	"github.com/teamfit/wearsync/internal/storage"
)

var (
	cfg    *config.Config
	repo   storage.Repository
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wearsync",
	Short: "Wearable data sync pipeline for athlete monitoring",
	Long: `Wearsync pulls wearable data from a provider aggregation API,
reconciles it into per-athlete daily records, and computes sleep scores.

QUICK START:

  $ wearsync athlete add "Jo Runner" --dob 1996-04-02 --provider-user u_8841
  $ wearsync sync <athlete-id>            # Sync the trailing week
  $ wearsync sync --all                   # Sync every mapped athlete
  $ wearsync scores <athlete-id>          # Show sleep scores

HISTORICAL BACKFILLS:

  Wide date ranges are answered asynchronously: the provider streams
  chunks to the webhook server, which must be running to receive them.

  $ wearsync serve                        # Run the webhook server
  $ wearsync backfill start <athlete-id> --from 2025-01-01 --to 2025-06-30
  $ wearsync backfill status              # Open sessions and progress

MCP INTEGRATION:

  Run 'wearsync mcp' to start the Model Context Protocol server for use
  with MCP-compatible AI assistants:

  {
    "mcpServers": {
      "wearsync": { "command": "wearsync", "args": ["mcp"] }
    }
  }

DATA STORAGE:

  Records are stored in SQLite at ~/.local/share/wearsync/wearsync.db;
  in-flight backfill chunks under ~/.local/share/wearsync/chunks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		repo, err = cfg.OpenStorage()
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if repo != nil {
			return repo.Close()
		}
		return nil
	},
}

// newOrchestrator builds the sync pipeline from the loaded config.
func newOrchestrator() (*pipeline.Orchestrator, error) {
	api, err := provider.NewClient(cfg.ProviderBaseURL, cfg.GetAPIKey())
	if err != nil {
		return nil, err
	}
	sink := &pipeline.LogSink{Logger: logger}
	notifier := &rules.LogNotifier{Logger: logger}
	o := pipeline.NewOrchestrator(repo, api, sink, logger, rules.RecoveryEvaluator{}, notifier)
	if cfg.SyncLookbackDays > 0 {
		o.SetLookback(cfg.SyncLookbackDays)
	}
	return o, nil
}
