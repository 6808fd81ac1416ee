package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/runner"
)

type planOptions struct {
	ConfigPath string
	Workdir    string
}

func newPlanCmd(root *rootFlags) *cobra.Command {
	opts := planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the execution plan for every matrix entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Workdir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				opts.Workdir = wd
			}
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVarP(&opts.Workdir, "workdir", "w", "", "Working directory for the run (defaults to cwd)")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runPlan(cmd *cobra.Command, opts planOptions) error {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	plans, err := runner.PlanMatrix(cfg, opts.Workdir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, entryPlan := range plans {
		fmt.Fprintf(out, "Entry %s", entryPlan.Entry.Version)
		if entryPlan.Entry.AllowFailure {
			fmt.Fprint(out, " (failures allowed)")
		}
		if entryPlan.Entry.RequirementsFile != "" {
			fmt.Fprintf(out, " [requirements: %s]", entryPlan.Entry.RequirementsFile)
		}
		fmt.Fprintf(out, "\n%s\n\n", entryPlan.Plan.String())
	}
	return nil
}
