package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lobster",
	Short: "Request governance pipeline for AI agents",
	Long:  "Routes agent requests by content sensitivity, gates them through multi-phase\nsecurity checks, executes in the least-exposed mode, and overwrites generated\noutput with values from trusted sources. Every decision lands on a\nhash-chained audit ledger.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to governance YAML (default ~/.lobstershell/governance.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
