// Package app wires the application together: configuration, logging,
// tracing, the AI provider, storage backends and the indexing/retrieval
// components built on top of them.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twinforge/twindex/internal/config"
	"github.com/twinforge/twindex/internal/embedding"
	"github.com/twinforge/twindex/internal/ingest"
	"github.com/twinforge/twindex/internal/log"
	"github.com/twinforge/twindex/internal/retriever"
	"github.com/twinforge/twindex/internal/score"
	"github.com/twinforge/twindex/internal/vectorstore"
)

// App is the application container. Construct with Setup, release with Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	Embedding *embedding.Client

	// DBPool is nil when the chromem backend is selected.
	DBPool *pgxpool.Pool

	Index     vectorstore.Index
	Store     *vectorstore.TenantStore
	Scores    score.Store
	Retriever *retriever.Retriever
	Pipeline  *ingest.Pipeline

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
