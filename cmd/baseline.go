package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unamentis/latency-harness/internal/config"
)

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage performance baselines",
	}
	cmd.AddCommand(newBaselineCreateCmd())
	cmd.AddCommand(newBaselineListCmd())
	return cmd
}

func newBaselineCreateCmd() *cobra.Command {
	var (
		name        string
		description string
		active      bool
	)

	cmd := &cobra.Command{
		Use:   "create <run-id>",
		Short: "Freeze a completed run's aggregates into a named baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
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

			b, err := orch.CreateBaseline(args[0], name, description, active)
			if err != nil {
				return err
			}
			fmt.Printf("Baseline created: %s (%s)\n", b.Name, b.ID)
			fmt.Printf("  run: %s\n", b.RunID)
			fmt.Printf("  median e2e: %.0fms  p99: %.0fms  samples: %d\n",
				b.Overall.MedianE2EMs, b.Overall.P99E2EMs, b.Overall.SampleCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Baseline name (default derived from the run ID)")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().BoolVar(&active, "active", false, "Mark this baseline as the active regression reference")
	return cmd
}

func newBaselineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored baselines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
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

			baselines, err := store.ListBaselines()
			if err != nil {
				return err
			}
			if len(baselines) == 0 {
				fmt.Println("No baselines stored.")
				return nil
			}
			for _, b := range baselines {
				marker := " "
				if b.Active {
					marker = "*"
				}
				fmt.Printf("%s %-24s %s  run=%s  median e2e %.0fms  (%s)\n",
					marker, b.Name, b.ID, b.RunID, b.Overall.MedianE2EMs,
					b.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
