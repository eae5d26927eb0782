package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("latency-harness %s\n", rootCmd.Version)
			fmt.Printf("  commit: %s\n", buildCommit)
			fmt.Printf("  built:  %s\n", buildDate)
		},
	}
}
