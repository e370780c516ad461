// ABOUTME: CLI command running the webhook server and chunk aggregator.
// ABOUTME: Recovers open backfill sessions on startup and sweeps timed-out ones.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamfit/wearsync/internal/pipeline"
	"github.com/teamfit/wearsync/internal/webhook"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Run the HTTP server that receives provider webhook deliveries for
historical backfills. Open sessions are recovered on startup, so a
restart never loses chunks that already arrived.

Endpoints:
  POST /webhook     provider deliveries
  GET  /health      liveness check
  GET  /backfills   open sessions and chunk progress`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := newOrchestrator()
		if err != nil {
			return err
		}
		chunks, err := cfg.OpenChunkStore()
		if err != nil {
			return err
		}
		defer chunks.Close()

		sink := &pipeline.LogSink{Logger: logger}
		aggregator := pipeline.NewAggregator(chunks, repo, sink, logger, orch.CompleteBackfill)
		aggregator.SetTimeout(cfg.GetAggregationTimeout())

		server, err := webhook.NewServer(aggregator, repo, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		if err := aggregator.Recover(ctx); err != nil {
			return err
		}
		go aggregator.RunSweeper(ctx, cfg.GetSweepInterval())

		addr := serveAddr
		if addr == "" {
			addr = cfg.GetListenAddr()
		}
		return server.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8487)")
	rootCmd.AddCommand(serveCmd)
}
