package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmichalski/clocksync/internal/resources"
)

type SyncOptions struct {
	BatchSize    int
	LookbackDays int
}

func NewSyncCmd() *cobra.Command {
	opts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync for a resource",
	}

	cmd.PersistentFlags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Rows per batch (0 = configured default)")
	cmd.PersistentFlags().IntVarP(&opts.LookbackDays, "lookback", "l", 0, "Lookback days for windowed resources (0 = configured default)")

	for _, spec := range resources.All {
		name := spec.Name
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Sync the %s resource", name),
			RunE: func(c *cobra.Command, args []string) error {
				return runSync(context.Background(), opts, []string{name})
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Sync every resource in order",
		RunE: func(c *cobra.Command, args []string) error {
			names := make([]string, len(resources.All))
			for i, spec := range resources.All {
				names[i] = spec.Name
			}
			return runSync(context.Background(), opts, names)
		},
	})

	return cmd
}
