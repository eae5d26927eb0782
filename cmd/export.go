package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unamentis/latency-harness/internal/config"
	"github.com/unamentis/latency-harness/internal/server"
	"github.com/unamentis/latency-harness/internal/storage"
)

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a run's results as CSV or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			store, err := storage.Open(cfg.StorageBackend, cfg.StoragePath)
			if err != nil {
				return fmt.Errorf("failed to open %s storage at %s: %w", cfg.StorageBackend, cfg.StoragePath, err)
			}
			defer store.Close()

			runID := args[0]
			run, err := store.LoadRun(runID)
			if err != nil {
				return err
			}
			results, err := store.ListResults(runID, storage.ResultFilter{})
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "csv":
				data, err = server.ResultsCSV(results)
			case "json":
				data, err = json.MarshalIndent(map[string]any{
					"runId":       run.ID,
					"suiteName":   run.SuiteName,
					"startedAt":   run.StartedAt,
					"completedAt": run.CompletedAt,
					"results":     results,
				}, "", "  ")
			default:
				return fmt.Errorf("format must be csv or json, got %q", format)
			}
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Exported %d results to %s\n", len(results), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
