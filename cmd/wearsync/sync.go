// ABOUTME: CLI command for routine syncs.
// ABOUTME: Syncs one athlete or every mapped athlete over the trailing window.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var syncAll bool

var syncCmd = &cobra.Command{
	Use:   "sync [athlete-id]",
	Short: "Sync recent wearable data",
	Long: `Fetch the trailing window of wearable data from the provider,
reconcile it into daily records, and recompute sleep scores.

Examples:
  wearsync sync 4fca9a6e-...        # One athlete
  wearsync sync --all               # Every athlete with a provider mapping`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := newOrchestrator()
		if err != nil {
			return err
		}

		if syncAll {
			if len(args) > 0 {
				return fmt.Errorf("--all does not take an athlete ID")
			}
			if err := orch.SyncAll(cmd.Context()); err != nil {
				return err
			}
			color.Green("✓ Synced all athletes")
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("provide an athlete ID or --all")
		}
		athleteID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid athlete ID: %s", args[0])
		}
		if err := orch.SyncAthlete(cmd.Context(), athleteID); err != nil {
			return err
		}
		color.Green("✓ Synced athlete %s", args[0])
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every athlete with a provider mapping")
	rootCmd.AddCommand(syncCmd)
}
