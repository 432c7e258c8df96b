package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run security reconnaissance tasks against an authorized scope",
	Long: `orchestrator turns an instruction such as "Scan example.com for open ports"
into scanning tasks, runs them one at a time behind a scope guard with bounded
retries, and adds follow-up tasks when a scan's output calls for them.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "override the configured log level (debug, info, warn, error)")
}
