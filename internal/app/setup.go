package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/twinforge/twindex/db"
	"github.com/twinforge/twindex/internal/chunk"
	"github.com/twinforge/twindex/internal/config"
	"github.com/twinforge/twindex/internal/embedding"
	"github.com/twinforge/twindex/internal/enrich"
	"github.com/twinforge/twindex/internal/ingest"
	"github.com/twinforge/twindex/internal/log"
	"github.com/twinforge/twindex/internal/retriever"
	"github.com/twinforge/twindex/internal/score"
	"github.com/twinforge/twindex/internal/vectorstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{Config: cfg}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.Logger = provideLogger(cfg)
	a.otelCleanup = provideOtelShutdown(ctx, cfg, a.Logger)

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	// One long-lived client; a shared limiter keeps batch ingestion inside
	// provider quotas even across concurrent commands.
	a.Embedding, err = embedding.NewClient(embedder, cfg.EmbedderDimension, a.Logger,
		embedding.WithRateLimiter(rate.NewLimiter(rate.Limit(5), 10)),
		embedding.WithRequestOptions(provideEmbedOptions(cfg)))
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	index, scores, err := provideBackends(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	a.Index = index
	a.Scores = scores

	a.Store, err = vectorstore.NewTenantStore(index, a.Embedding, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating tenant store: %w", err)
	}

	a.Retriever, err = retriever.New(a.Store, scores, retriever.Config{
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarity,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	a.Pipeline, err = providePipeline(cfg, a)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func provideLogger(cfg *config.Config) log.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return log.New(log.Config{
		Level: level,
		JSON:  strings.EqualFold(cfg.LogFormat, "json"),
	})
}

// provideOtelShutdown registers an OTLP HTTP exporter with Genkit's tracer
// provider. Tracing failures never block startup.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.TracingEnabled {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.TracingEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	logger.Debug("tracing enabled", "endpoint", cfg.TracingEndpoint)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models must be registered explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.EnrichModel,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}

	default: // googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Keyed by server address, registered in provideGenkit.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideEmbedOptions builds the provider-specific embed request options.
// Gemini embedding models emit their native dimension (3072 for
// gemini-embedding-001) unless OutputDimensionality asks for the truncated
// size; ollama and openai embedding models emit a fixed dimension.
func provideEmbedOptions(cfg *config.Config) any {
	switch cfg.Provider {
	case config.ProviderOllama, config.ProviderOpenAI:
		return nil
	default: // googleai
		dim := int32(cfg.EmbedderDimension)
		return &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
}

// provideBackends creates the vector index and score store for the configured
// backend. Postgres serves both; chromem pairs with the in-memory score store.
func provideBackends(ctx context.Context, cfg *config.Config, a *App) (vectorstore.Index, score.Store, error) {
	if cfg.IndexBackend == config.BackendChromem {
		index, err := vectorstore.NewChromemPersistent(cfg.ChromemPath, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating chromem index: %w", err)
		}
		a.Logger.Info("using embedded index", "path", cfg.ChromemPath)
		return index, score.NewMemory(), nil
	}

	pool, cleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a.DBPool = pool
	a.dbCleanup = cleanup

	index, err := vectorstore.NewPostgres(pool, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating pgvector index: %w", err)
	}
	scores, err := score.NewPostgres(pool, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating score store: %w", err)
	}
	return index, scores, nil
}

// provideDBPool runs migrations and creates the connection pool with pgvector
// types registered on every connection.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// providePipeline assembles the ingestion pipeline: semantic chunking with a
// fixed fallback, optional context enrichment, and the tenant store.
func providePipeline(cfg *config.Config, a *App) (*ingest.Pipeline, error) {
	fixed, err := chunk.NewFixed(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating fixed chunker: %w", err)
	}
	semantic, err := chunk.NewSemantic(a.Embedding, fixed, a.Logger,
		chunk.WithSimilarityThreshold(cfg.SimilarityThreshold),
		chunk.WithChunkBounds(cfg.MinChunkSize, cfg.MaxChunkSize),
	)
	if err != nil {
		return nil, fmt.Errorf("creating semantic chunker: %w", err)
	}

	var enricher ingest.Enricher
	if cfg.EnrichEnabled {
		gen, err := enrich.NewGenkitGenerator(a.Genkit, cfg.FullEnrichModelName())
		if err != nil {
			return nil, fmt.Errorf("creating enrichment generator: %w", err)
		}
		e, err := enrich.New(gen, enrich.Config{
			MaxDocumentChars: cfg.EnrichMaxDocChars,
			MaxChunks:        cfg.EnrichMaxChunks,
			Concurrency:      cfg.EnrichConcurrency,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating enricher: %w", err)
		}
		enricher = e
	}

	pipeline, err := ingest.New(semantic, enricher, a.Store, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingest pipeline: %w", err)
	}
	return pipeline, nil
}
