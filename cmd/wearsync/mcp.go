// ABOUTME: CLI command for starting MCP server.
// ABOUTME: Runs stdio-based MCP server exposing read-only wearable data tools.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamfit/wearsync/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant
integration. The server communicates via stdin/stdout and exposes
read-only access to the wearable data store.

AVAILABLE TOOLS:

  list_athletes     List all athletes
  get_daily_record  One athlete's record for a date
  get_sleep_scores  Sleep scores over a date range
  list_backfills    Open backfill sessions and progress`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(repo)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
