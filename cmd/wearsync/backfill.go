// ABOUTME: CLI commands for historical backfills.
// ABOUTME: Starts backfill sessions and reports chunk delivery progress.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teamfit/wearsync/internal/models"
)

var (
	backfillFrom string
	backfillTo   string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Manage historical backfills",
}

var backfillStartCmd = &cobra.Command{
	Use:   "start <athlete-id>",
	Short: "Start a historical backfill",
	Long: `Request a historical date range from the provider.

Small ranges may be answered inline and complete immediately. Wide
ranges are deferred: the provider streams chunks to the webhook server,
which must be running ('wearsync serve') to receive them.

Example:
  wearsync backfill start 4fca9a6e-... --from 2025-01-01 --to 2025-06-30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		athleteID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid athlete ID: %s", args[0])
		}
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to are required")
		}
		from, err := time.ParseInLocation(models.DateKey, backfillFrom, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid --from date: %s", backfillFrom)
		}
		to, err := time.ParseInLocation(models.DateKey, backfillTo, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid --to date: %s", backfillTo)
		}
		if to.Before(from) {
			return fmt.Errorf("--to is before --from")
		}

		orch, err := newOrchestrator()
		if err != nil {
			return err
		}
		session, err := orch.StartBackfill(cmd.Context(), athleteID, from, to)
		if err != nil {
			return err
		}

		if session.Completed {
			color.Green("✓ Backfill %s answered inline and completed", session.ID)
			return nil
		}
		color.Green("✓ Backfill %s started", session.ID)
		fmt.Println("  Deferred categories will arrive via the webhook server.")
		for _, c := range models.Categories {
			p := session.Progress[c]
			if p.Reference != nil {
				fmt.Printf("  %-8s deferred (reference %s)\n", c, *p.Reference)
			} else {
				fmt.Printf("  %-8s answered inline\n", c)
			}
		}
		return nil
	},
}

var backfillStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show open backfill sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := repo.ListOpenSyncSessions()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No open backfill sessions.")
			return nil
		}

		for _, session := range sessions {
			fmt.Printf("%s  athlete %s  %s to %s\n",
				color.New(color.Bold).Sprint(session.ID),
				color.New(color.Faint).Sprint(session.AthleteID.String()[:8]),
				session.StartDate.Format(models.DateKey),
				session.EndDate.Format(models.DateKey))
			for _, c := range models.Categories {
				p := session.Progress[c]
				if p == nil {
					p = &models.CategoryProgress{}
				}
				switch {
				case p.Done():
					fmt.Printf("  %-8s %s (%d chunks)\n", c, color.GreenString("done"), p.Received)
				case p.Expected != nil:
					fmt.Printf("  %-8s %d/%d chunks\n", c, p.Received, *p.Expected)
				default:
					fmt.Printf("  %-8s %s (%d chunks so far)\n", c, color.YellowString("waiting"), p.Received)
				}
			}
		}
		return nil
	},
}

func init() {
	backfillStartCmd.Flags().StringVar(&backfillFrom, "from", "", "range start (YYYY-MM-DD)")
	backfillStartCmd.Flags().StringVar(&backfillTo, "to", "", "range end (YYYY-MM-DD)")
	backfillCmd.AddCommand(backfillStartCmd)
	backfillCmd.AddCommand(backfillStatusCmd)
	rootCmd.AddCommand(backfillCmd)
}
