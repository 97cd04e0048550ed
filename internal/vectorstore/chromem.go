package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"
)

// Chromem is the embedded Index, used for local runs and tests where Postgres
// is unavailable. Each namespace maps to its own chromem collection, so
// isolation falls out of the storage layout itself.
type Chromem struct {
	db     *chromem.DB
	logger *slog.Logger
}

// Embeddings are always precomputed upstream; no collection may fall back to
// embedding text itself.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding function not available: embeddings are precomputed")
}

// NewChromem creates an in-memory index.
func NewChromem(logger *slog.Logger) *Chromem {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chromem{db: chromem.NewDB(), logger: logger}
}

// NewChromemPersistent creates an index persisted under dir.
func NewChromemPersistent(dir string, logger *slog.Logger) (*Chromem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening persistent store at %s: %w", dir, err)
	}
	return &Chromem{db: db, logger: logger}, nil
}

func (c *Chromem) collection(ns Namespace) (*chromem.Collection, error) {
	col, err := c.db.GetOrCreateCollection(ns.String(), nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection for namespace: %w", err)
	}
	return col, nil
}

// Upsert adds or replaces records in the namespace's collection.
func (c *Chromem) Upsert(ctx context.Context, ns Namespace, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := c.collection(ns)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Embedding,
			Metadata:  r.Metadata,
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	c.logger.Debug("upserted vectors", "namespace", ns.String(), "count", len(records))
	return nil
}

// Query returns up to limit nearest records. chromem rejects result counts
// above the collection size, so the limit is clamped first.
func (c *Chromem) Query(ctx context.Context, ns Namespace, embedding []float32, limit int, filter map[string]string) ([]Result, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("query limit %d must be positive", limit)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	col := c.db.GetCollection(ns.String(), noEmbedding)
	if col == nil {
		return nil, nil
	}
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if limit > count {
		limit = count
	}

	results, err := col.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       limit,
		Where:          filter,
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{
			Record: Record{
				ID:        r.ID,
				Text:      r.Content,
				Embedding: r.Embedding,
				Metadata:  r.Metadata,
			},
			Similarity: float64(r.Similarity),
		}
	}
	return out, nil
}

// Delete removes matching records. Nil ids and nil filter drop the whole
// collection.
func (c *Chromem) Delete(ctx context.Context, ns Namespace, ids []string, filter map[string]string) error {
	if len(ids) == 0 && len(filter) == 0 {
		if err := c.db.DeleteCollection(ns.String()); err != nil {
			return fmt.Errorf("dropping collection: %w", err)
		}
		c.logger.Debug("wiped namespace", "namespace", ns.String())
		return nil
	}

	col := c.db.GetCollection(ns.String(), noEmbedding)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, filter, nil, ids...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Count returns the number of records in the namespace.
func (c *Chromem) Count(ctx context.Context, ns Namespace) (int, error) {
	col := c.db.GetCollection(ns.String(), noEmbedding)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}
