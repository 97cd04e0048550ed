package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twinforge/twindex/internal/retriever"
)

func newQueryCmd() *cobra.Command {
	var showScores bool

	cmd := &cobra.Command{
		Use:   "query <text...>",
		Short: "Retrieve the most relevant chunks for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, ns, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			query := strings.Join(args, " ")
			ranked, err := a.Retriever.Retrieve(ctx, ns, query)
			if err != nil {
				return err
			}
			if len(ranked) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching chunks found.")
				return nil
			}

			if showScores {
				for i, r := range ranked {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. [%s] similarity=%.3f adjusted=%.3f\n",
						i+1, r.Source, r.Similarity, r.Adjusted)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), retriever.FormatContext(ranked))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showScores, "scores", false, "print per-chunk ranking details")
	return cmd
}
