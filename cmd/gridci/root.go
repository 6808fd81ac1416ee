package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose bool
	dryRun  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	settings := loadSettings()

	cmd := &cobra.Command{
		Use:           "gridci",
		Short:         "gridci runs declarative build matrices locally",
		Long:          "gridci expands a declarative build matrix, provisions each entry's environment, installs its dependencies, and runs its test script with allow-failure aware aggregation.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", settings.Verbose, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "Preview execution without making changes")

	cmd.AddCommand(newRunCmd(flags, settings))
	cmd.AddCommand(newPlanCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
