package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a file or directory into the clone's index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, ns, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspecting %s: %w", path, err)
			}

			if info.IsDir() {
				res, err := a.Pipeline.IngestDirectory(ctx, ns, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Ingested %d files (%d chunks), skipped %d, failed %d\n",
					res.Added, res.Chunks, res.Skipped, res.Failed)
				return nil
			}

			count, err := a.Pipeline.IngestFile(ctx, ns, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s (%d chunks)\n", path, count)
			return nil
		},
	}
}
