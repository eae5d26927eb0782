package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unamentis/latency-harness/internal/config"
	"github.com/unamentis/latency-harness/internal/suite"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available test suites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			suites, failures := suite.LoadAll(cfg.SuitesDir)

			if len(suites) == 0 && len(failures) == 0 {
				fmt.Println("No test suites found.")
				return nil
			}

			fmt.Println("Available test suites:")
			for _, def := range suites {
				fmt.Printf("  %-24s %s (%d scenarios, %d tests)\n",
					def.ID, def.Name, len(def.Scenarios), def.TotalTestCount())
			}
			for id, err := range failures {
				fmt.Printf("  %-24s UNLOADABLE: %v\n", id, err)
			}
			return nil
		},
	}
	return cmd
}
