package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clocksync",
		Short: "clocksync - incremental time-tracking to warehouse sync",
		Long: `clocksync pulls users, projects, clients and summary time reports from the
time-tracking API and merges them incrementally into SQL Server, staging each
batch as an Arrow artifact in object storage along the way.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}
