package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/unamentis/latency-harness/internal/config"
	"github.com/unamentis/latency-harness/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the harness REST/WebSocket API server",
		Long: `Start the HTTP control surface: suite and run management, analysis,
baseline management, result export and a WebSocket stream of live updates.

Configuration comes from LATENCY_* environment variables (storage backend
and path, listen address, suites directory, concurrency and timeout
defaults, regression thresholds).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if addr != "" {
				cfg.ListenAddr = addr
			}

			orch, store, err := setupHarness(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = orch.Stop(ctx)
			}()

			return server.New(orch, store, cfg).ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides LATENCY_LISTEN_ADDR)")
	return cmd
}
