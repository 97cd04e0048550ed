package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the clone's entire index and learned scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes all data for this clone; re-run with --yes to confirm")
			}

			ctx := cmd.Context()
			a, ns, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Store.Reset(ctx, ns); err != nil {
				return fmt.Errorf("wiping index: %w", err)
			}
			if err := a.Scores.DeleteClone(ctx, ns.CloneID()); err != nil {
				return fmt.Errorf("deleting scores: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wiped all data for clone %s\n", ns.CloneID())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}
