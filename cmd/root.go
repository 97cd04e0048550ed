// Package cmd implements the twindex command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twinforge/twindex/internal/app"
	"github.com/twinforge/twindex/internal/config"
	"github.com/twinforge/twindex/internal/vectorstore"
)

var (
	flagTenantID string
	flagCloneID  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "twindex",
		Short: "Tenant-isolated knowledge indexing and retrieval for digital twins",
		Long: `twindex ingests documents into a per-clone vector index and retrieves
relevant chunks for chat, re-ranked by learned user feedback.

Every operation is scoped to a (tenant, clone) pair; data never crosses
that boundary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagTenantID, "tenant", "", "tenant UUID")
	root.PersistentFlags().StringVar(&flagCloneID, "clone", "", "clone UUID")

	root.AddCommand(
		newIngestCmd(),
		newQueryCmd(),
		newFeedbackCmd(),
		newDeleteCmd(),
		newResetCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

// setupApp loads configuration, validates the namespace flags and builds the
// application container. Callers must Close the returned App.
func setupApp(ctx context.Context) (*app.App, vectorstore.Namespace, error) {
	ns, err := vectorstore.NewNamespace(flagTenantID, flagCloneID)
	if err != nil {
		return nil, vectorstore.Namespace{}, fmt.Errorf("--tenant and --clone are required: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, vectorstore.Namespace{}, err
	}
	if err := cfg.ValidateAPIKey(); err != nil {
		return nil, vectorstore.Namespace{}, err
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return nil, vectorstore.Namespace{}, err
	}
	return a, ns, nil
}
