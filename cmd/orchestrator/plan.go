package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/config/fileloader"
)

var planCmd = &cobra.Command{
	Use:   "plan <instruction>",
	Short: "Show the tasks an instruction would seed without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		orch := cfg.OrchestrationSettings()

		var classifier orchestration.Classifier = orchestration.DefaultKeywordClassifier(orch)
		rulesFile, _ := cmd.Flags().GetString("rules")
		if rulesFile == "" {
			rulesFile = cfg.RulesFile
		}
		if rulesFile != "" {
			rules, err := fileloader.NewFileLoader(rulesFile).Load(cmd.Context())
			if err != nil {
				return err
			}
			custom, err := rules.Classifier()
			if err != nil {
				return err
			}
			if custom != nil {
				classifier = custom
			}
		}

		tasks, err := orchestration.NewPlanner(classifier, orch.DefaultTarget, uuid.NewString).Plan(strings.Join(args, " "))
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tTARGET\tPARAMS")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", t.ID, t.Type, t.Target, map[string]string(t.Params))
		}
		return tw.Flush()
	},
}

func init() {
	planCmd.Flags().String("rules", "", "YAML file with classifier rules")
	rootCmd.AddCommand(planCmd)
}
