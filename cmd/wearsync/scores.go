// ABOUTME: CLI command for viewing sleep scores.
// ABOUTME: Prints per-day consistency and performance with color-coded quality.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teamfit/wearsync/internal/analytics"
	"github.com/teamfit/wearsync/internal/models"
)

var (
	scoresFrom string
	scoresTo   string
)

var scoresCmd = &cobra.Command{
	Use:   "scores <athlete-id>",
	Short: "Show sleep scores",
	Long: `Show per-day sleep consistency and performance scores.

Defaults to the trailing two weeks.

Examples:
  wearsync scores 4fca9a6e-...
  wearsync scores 4fca9a6e-... --from 2025-06-01 --to 2025-06-30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		athleteID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid athlete ID: %s", args[0])
		}

		to := models.Day(time.Now().UTC())
		from := to.AddDate(0, 0, -13)
		if scoresFrom != "" {
			from, err = time.ParseInLocation(models.DateKey, scoresFrom, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --from date: %s", scoresFrom)
			}
		}
		if scoresTo != "" {
			to, err = time.ParseInLocation(models.DateKey, scoresTo, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --to date: %s", scoresTo)
			}
		}

		records, err := repo.LoadDailyRecordRange(athleteID, from, to)
		if err != nil {
			return fmt.Errorf("failed to load records: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No records in range. Run: wearsync sync", args[0])
			return nil
		}

		fmt.Printf("%-12s %-13s %-13s %s\n", "DATE", "CONSISTENCY", "PERFORMANCE", "ASLEEP")
		for _, r := range records {
			primary := analytics.PrimarySleepSession(r)
			if primary == nil {
				continue
			}
			asleep := "-"
			if secs := primary.Stages.AsleepSeconds(); secs != nil {
				asleep = fmt.Sprintf("%dh%02dm", *secs/3600, (*secs%3600)/60)
			}
			fmt.Printf("%-12s %-13s %-13s %s\n",
				r.DateKey(),
				scoreCell(primary.Consistency),
				scoreCell(primary.Performance),
				asleep)
		}
		return nil
	},
}

// scoreCell formats a score with a color band: green from 80, yellow
// from 60, red below.
func scoreCell(score *float64) string {
	if score == nil {
		return color.New(color.Faint).Sprint("-")
	}
	text := fmt.Sprintf("%.0f", *score)
	switch {
	case *score >= 80:
		return color.GreenString(text)
	case *score >= 60:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

func init() {
	scoresCmd.Flags().StringVar(&scoresFrom, "from", "", "range start (YYYY-MM-DD)")
	scoresCmd.Flags().StringVar(&scoresTo, "to", "", "range end (YYYY-MM-DD)")
	rootCmd.AddCommand(scoresCmd)
}
