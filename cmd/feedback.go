package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twinforge/twindex/internal/score"
)

func newFeedbackCmd() *cobra.Command {
	var (
		rating int
		owner  bool
	)

	cmd := &cobra.Command{
		Use:   "feedback [chunk text...]",
		Short: "Record feedback on retrieved chunks",
		Long: `Record a rating for the chunks used in an answer. Chunk texts are taken
from the arguments, or read line by line from stdin when no arguments are
given. The learned score nudges future rankings for this clone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			texts := args
			if len(texts) == 0 {
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				for scanner.Scan() {
					if line := scanner.Text(); line != "" {
						texts = append(texts, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("reading chunks from stdin: %w", err)
				}
			}
			if len(texts) == 0 {
				return fmt.Errorf("no chunk texts given")
			}

			a, ns, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			hashes := make([]string, len(texts))
			for i, t := range texts {
				hashes[i] = score.Hash(t)
			}

			// Owner feedback carries double trust.
			weight := score.DefaultWeight
			if owner {
				weight *= 2
			}

			updated, err := a.Scores.Update(ctx, ns.CloneID(), hashes, rating, weight)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated scores for %d chunks\n", updated)
			return nil
		},
	}

	cmd.Flags().IntVar(&rating, "rating", 1, "feedback rating: 1 (helpful) or -1 (unhelpful)")
	cmd.Flags().BoolVar(&owner, "owner", false, "rate as the clone owner (double weight)")
	return cmd
}
