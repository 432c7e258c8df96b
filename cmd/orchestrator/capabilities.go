package main

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
)

var capabilityDescriptions = map[string]string{
	"port-scan":   "TCP connect scan; params: ports (e.g. 1-1000 or 22,80,443)",
	"dir-enum":    "HTTP path enumeration; params: wordlist (file path, empty for built-in list)",
	"secret-scan": "gitleaks over fetched pages; params: paths (comma separated, default /)",
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the registered capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		var errCount atomic.Int64
		a, err := newApp(cmd.Context(), cfg, newLogger(cmd.ErrOrStderr(), cfg, &errCount), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, typ := range a.registry.Types() {
			line := fmt.Sprintf("%-12s %s", typ, capabilityDescriptions[string(typ)])
			c, err := a.registry.Lookup(typ)
			if err != nil {
				return err
			}
			if rc, ok := c.(interface{ RuleCount() int }); ok {
				line += fmt.Sprintf(" [%d rules]", rc.RuleCount())
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}
