package cmd

import (
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print cache statistics and this month's quota counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			_ = a.Close()
			_ = a.Logger.Sync()
		}()

		snap, err := a.Orchestrator.Usage(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snap)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge expired cache entries and old quota periods",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			_ = a.Close()
			_ = a.Logger.Sync()
		}()

		report, err := a.Orchestrator.Housekeep(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}
