// ABOUTME: CLI commands for managing athletes.
// ABOUTME: Add and list athletes with their provider mappings.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teamfit/wearsync/internal/models"
)

var (
	athleteDOB      string
	athleteProvider string
)

var athleteCmd = &cobra.Command{
	Use:     "athlete",
	Aliases: []string{"athletes"},
	Short:   "Manage athletes",
}

var athleteAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an athlete",
	Long: `Add an athlete to the roster.

Examples:
  wearsync athlete add "Jo Runner"
  wearsync athlete add "Jo Runner" --dob 1996-04-02 --provider-user u_8841`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := models.NewAthlete(args[0])

		if athleteDOB != "" {
			dob, err := time.ParseInLocation(models.DateKey, athleteDOB, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid date of birth (want YYYY-MM-DD): %s", athleteDOB)
			}
			a.WithDateOfBirth(dob)
		}
		if athleteProvider != "" {
			a.WithProviderUserID(athleteProvider)
		}

		if err := repo.CreateAthlete(a); err != nil {
			return fmt.Errorf("failed to create athlete: %w", err)
		}

		color.Green("✓ Added %s", a.Name)
		fmt.Printf("  %s\n", color.New(color.Faint).Sprint(a.ID.String()))
		return nil
	},
}

var athleteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List athletes",
	RunE: func(cmd *cobra.Command, args []string) error {
		athletes, err := repo.ListAthletes()
		if err != nil {
			return fmt.Errorf("failed to list athletes: %w", err)
		}
		if len(athletes) == 0 {
			fmt.Println("No athletes yet. Add one with: wearsync athlete add <name>")
			return nil
		}

		for _, a := range athletes {
			fmt.Printf("%s  %s",
				color.New(color.Faint).Sprint(a.ID.String()[:8]),
				color.New(color.Bold).Sprint(a.Name))
			if a.DateOfBirth != nil {
				fmt.Printf("  dob %s", a.DateOfBirth.Format(models.DateKey))
			}
			if a.ProviderUserID != nil {
				fmt.Printf("  provider %s", *a.ProviderUserID)
			} else {
				fmt.Printf("  %s", color.YellowString("unmapped"))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	athleteAddCmd.Flags().StringVar(&athleteDOB, "dob", "", "date of birth (YYYY-MM-DD)")
	athleteAddCmd.Flags().StringVar(&athleteProvider, "provider-user", "", "provider user ID for syncing")
	athleteCmd.AddCommand(athleteAddCmd)
	athleteCmd.AddCommand(athleteListCmd)
	rootCmd.AddCommand(athleteCmd)
}
