// Package ingest runs documents through the full indexing pipeline: split,
// enrich, embed and store. It is the only writer of chunk content.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/twinforge/twindex/internal/chunk"
	"github.com/twinforge/twindex/internal/vectorstore"
)

// Chunker splits a document into chunk texts and reports which strategy
// actually ran (semantic may degrade to fixed).
type Chunker interface {
	Split(ctx context.Context, text string) ([]string, chunk.Strategy)
}

// Enricher adds context prefixes to chunks, best-effort.
type Enricher interface {
	Enrich(ctx context.Context, chunks []chunk.Chunk, document string) []chunk.Chunk
}

// Store persists chunks under a namespace.
type Store interface {
	Add(ctx context.Context, ns vectorstore.Namespace, chunks []chunk.Chunk) error
	DeleteSource(ctx context.Context, ns vectorstore.Namespace, source string) error
}

// supportedExtensions lists the file types the directory walker ingests.
// Everything else is counted as skipped, not failed.
var supportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
}

// Result summarizes a multi-file ingestion run.
type Result struct {
	Added   int // files fully ingested
	Skipped int // unsupported or empty files
	Failed  int // files whose ingestion errored
	Chunks  int // total chunks stored
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	chunker  Chunker
	enricher Enricher
	store    Store
	logger   *slog.Logger
}

// New creates a pipeline. enricher may be nil to ingest without context
// enrichment.
func New(chunker Chunker, enricher Enricher, store Store, logger *slog.Logger) (*Pipeline, error) {
	if chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{chunker: chunker, enricher: enricher, store: store, logger: logger}, nil
}

// IngestDocument splits, enriches and stores one document. Re-ingesting the
// same source first drops its previous chunks, so renames and shrinkage do not
// leave stale content behind. Returns the number of chunks stored.
func (p *Pipeline) IngestDocument(ctx context.Context, ns vectorstore.Namespace, source, text string, extra map[string]string) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	texts, strategy := p.chunker.Split(ctx, text)
	if len(texts) == 0 {
		return 0, nil
	}

	chunks := make([]chunk.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = chunk.Chunk{
			Text: t,
			Metadata: chunk.Metadata{
				Source:     source,
				ChunkIndex: i,
				Strategy:   strategy,
				Extra:      extra,
			},
		}
	}

	if p.enricher != nil {
		chunks = p.enricher.Enrich(ctx, chunks, text)
	}

	if err := p.store.DeleteSource(ctx, ns, source); err != nil {
		return 0, fmt.Errorf("clearing previous chunks of %s: %w", source, err)
	}
	if err := p.store.Add(ctx, ns, chunks); err != nil {
		return 0, fmt.Errorf("ingesting %s: %w", source, err)
	}

	p.logger.Info("ingested document",
		"source", source, "chunks", len(chunks), "strategy", strategy)
	return len(chunks), nil
}

// DeleteDocument removes every chunk previously ingested from source.
func (p *Pipeline) DeleteDocument(ctx context.Context, ns vectorstore.Namespace, source string) error {
	if source == "" {
		return fmt.Errorf("source is required")
	}
	return p.store.DeleteSource(ctx, ns, source)
}

// IngestFile ingests one file, using its base name as the source.
func (p *Pipeline) IngestFile(ctx context.Context, ns vectorstore.Namespace, path string) (int, error) {
	if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
		return 0, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.IngestDocument(ctx, ns, filepath.Base(path), string(data),
		map[string]string{"path": path})
}

// IngestDirectory walks dir recursively and ingests every supported file.
// Per-file failures are isolated and counted; the walk always completes.
func (p *Pipeline) IngestDirectory(ctx context.Context, ns vectorstore.Namespace, dir string) (Result, error) {
	var res Result

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			res.Skipped++
			return nil
		}

		count, err := p.IngestFile(ctx, ns, path)
		if err != nil {
			res.Failed++
			p.logger.Warn("failed to ingest file", "path", path, "error", err)
			return nil
		}
		if count == 0 {
			res.Skipped++
			return nil
		}
		res.Added++
		res.Chunks += count
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walking %s: %w", dir, err)
	}

	p.logger.Info("ingested directory", "dir", dir,
		"added", res.Added, "skipped", res.Skipped, "failed", res.Failed, "chunks", res.Chunks)
	return res, nil
}
