// Package enrich prepends an LLM-generated orienting sentence to each chunk
// ("this chunk discusses X, in section Y") so chunks stay discoverable when
// retrieved without their surrounding document.
//
// Enrichment is strictly best-effort: a chunk whose LLM call fails after
// retries passes through unmodified, and the batch always completes. Documents
// too large to fit usefully in the prompt skip enrichment entirely.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/twinforge/twindex/internal/chunk"
)

// Generator produces a single-turn completion for a prompt. The production
// implementation runs through Genkit at temperature 0 with a low output-token
// cap; tests substitute a mock.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	// DefaultMaxDocumentChars is the document-size ceiling above which
	// enrichment is skipped: quality degrades once the document no longer
	// fits usefully in the prompt, and cost grows with every chunk.
	DefaultMaxDocumentChars = 50000

	// DefaultMaxChunks caps how many per-chunk LLM calls one document may
	// fan out.
	DefaultMaxChunks = 50

	// DefaultConcurrency bounds the enrichment fan-out.
	DefaultConcurrency = 5

	// DefaultMinContextLen rejects degenerate LLM responses.
	DefaultMinContextLen = 20

	// DefaultMaxContextLen truncates runaway LLM responses (at a word
	// boundary).
	DefaultMaxContextLen = 300

	defaultMaxAttempts  = 3
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
)

const contextPrompt = `You are indexing a document for retrieval. Write one short sentence that situates the chunk below within the overall document: what it discusses and, when apparent, which section it belongs to. Answer with the sentence only.

<document>
%s
</document>

<chunk>
%s
</chunk>`

// Config tunes the enricher. Zero values take the package defaults.
type Config struct {
	MaxDocumentChars int
	MaxChunks        int
	Concurrency      int
	MinContextLen    int
	MaxContextLen    int

	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Enricher runs the per-chunk context generation with bounded concurrency.
type Enricher struct {
	gen    Generator
	cfg    Config
	logger *slog.Logger
}

// New creates an Enricher. gen is required.
func New(gen Generator, cfg Config, logger *slog.Logger) (*Enricher, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.MaxDocumentChars <= 0 {
		cfg.MaxDocumentChars = DefaultMaxDocumentChars
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MinContextLen <= 0 {
		cfg.MinContextLen = DefaultMinContextLen
	}
	if cfg.MaxContextLen <= 0 {
		cfg.MaxContextLen = DefaultMaxContextLen
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MinContextLen >= cfg.MaxContextLen {
		return nil, fmt.Errorf("min context length %d must be below max %d",
			cfg.MinContextLen, cfg.MaxContextLen)
	}

	return &Enricher{gen: gen, cfg: cfg, logger: logger}, nil
}

// Enrich returns a slice of the same length and order as chunks, each entry
// either context-prefixed (ContextEnriched=true) or passed through unmodified.
// One chunk's failure never blocks the batch. If the parallel fan-out itself
// fails, the same list is enriched sequentially with identical per-chunk
// isolation.
func (e *Enricher) Enrich(ctx context.Context, chunks []chunk.Chunk, document string) []chunk.Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	if len(document) > e.cfg.MaxDocumentChars || len(chunks) > e.cfg.MaxChunks {
		e.logger.Debug("skipping context enrichment",
			"document_chars", len(document),
			"chunks", len(chunks),
			"max_chars", e.cfg.MaxDocumentChars,
			"max_chunks", e.cfg.MaxChunks,
		)
		out := make([]chunk.Chunk, len(chunks))
		for i, c := range chunks {
			c.Metadata.ContextEnriched = false
			out[i] = c
		}
		return out
	}

	enriched, err := e.enrichParallel(ctx, chunks, document)
	if err != nil {
		e.logger.Warn("parallel enrichment failed, falling back to sequential", "error", err)
		return e.enrichSequential(ctx, chunks, document)
	}
	return enriched
}

// enrichParallel fans out one task per chunk, bounded by cfg.Concurrency.
// Worker errors are absorbed per chunk; only a scheduling-level failure
// (panic in the fan-out machinery) surfaces as an error.
func (e *Enricher) enrichParallel(ctx context.Context, chunks []chunk.Chunk, document string) (out []chunk.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("enrichment fan-out panicked: %v", r)
		}
	}()

	out = make([]chunk.Chunk, len(chunks))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	for i, c := range chunks {
		g.Go(func() error {
			out[i] = e.enrichOne(ctx, c, document)
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		return nil, waitErr
	}
	return out, nil
}

func (e *Enricher) enrichSequential(ctx context.Context, chunks []chunk.Chunk, document string) []chunk.Chunk {
	out := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = e.enrichOne(ctx, c, document)
	}
	return out
}

// enrichOne generates and validates the context prefix for a single chunk.
// Every failure path returns the chunk unmodified with ContextEnriched=false.
func (e *Enricher) enrichOne(ctx context.Context, c chunk.Chunk, document string) chunk.Chunk {
	prompt := fmt.Sprintf(contextPrompt, document, c.Text)

	raw, err := e.generateWithRetry(ctx, prompt)
	if err != nil {
		e.logger.Warn("context generation failed, passing chunk through",
			"chunk_index", c.Metadata.ChunkIndex, "error", err)
		c.Metadata.ContextEnriched = false
		return c
	}

	prefix, ok := e.validateContext(raw)
	if !ok {
		e.logger.Debug("rejecting context response",
			"chunk_index", c.Metadata.ChunkIndex, "length", len(raw))
		c.Metadata.ContextEnriched = false
		return c
	}

	c.Text = prefix + "\n\n" + c.Text
	c.Metadata.ContextEnriched = true
	return c
}

// generateWithRetry calls the generator with exponential backoff.
func (e *Enricher) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	delay := e.cfg.InitialDelay

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		resp, err := e.gen.Generate(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == e.cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, e.cfg.MaxDelay)
		}
	}
	return "", fmt.Errorf("generate after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// validateContext normalizes an LLM response into a usable prefix.
// A literal "context:" lead-in is stripped, too-short responses are rejected,
// and too-long responses are truncated at a word boundary.
func (e *Enricher) validateContext(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) >= len("context:") && strings.EqualFold(s[:len("context:")], "context:") {
		s = strings.TrimSpace(s[len("context:"):])
	}

	if len(s) < e.cfg.MinContextLen {
		return "", false
	}
	if len(s) > e.cfg.MaxContextLen {
		cut := strings.LastIndex(s[:e.cfg.MaxContextLen], " ")
		if cut <= 0 {
			cut = e.cfg.MaxContextLen
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s, true
}
