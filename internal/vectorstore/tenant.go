package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twinforge/twindex/internal/chunk"
)

var (
	// ErrTenantMismatch indicates chunk metadata naming a different tenant
	// than the target namespace. The whole batch is rejected before any write.
	ErrTenantMismatch = errors.New("chunk tenant does not match namespace")

	// ErrCloneMismatch is the clone-level counterpart of ErrTenantMismatch.
	ErrCloneMismatch = errors.New("chunk clone does not match namespace")
)

// Embedder is the embedding capability the store consumes.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TenantStore is the tenant-facing write and search surface over an Index.
// It owns metadata validation, embedding of chunk text and deterministic
// record identity; the Index below it only ever sees namespaced records.
type TenantStore struct {
	index    Index
	embedder Embedder
	logger   *slog.Logger
}

// NewTenantStore wires a store over an index and embedder.
func NewTenantStore(index Index, embedder Embedder, logger *slog.Logger) (*TenantStore, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantStore{index: index, embedder: embedder, logger: logger}, nil
}

// Add embeds and stores chunks under ns. Chunk metadata must either carry the
// namespace's tenant and clone or leave them empty, in which case they are
// injected. Any mismatch rejects the whole batch with nothing written.
func (s *TenantStore) Add(ctx context.Context, ns Namespace, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	prepared := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		switch c.Metadata.TenantID {
		case "", ns.TenantID():
			c.Metadata.TenantID = ns.TenantID()
		default:
			return fmt.Errorf("%w: chunk %d has tenant %q, namespace has %q",
				ErrTenantMismatch, i, c.Metadata.TenantID, ns.TenantID())
		}
		switch c.Metadata.CloneID {
		case "", ns.CloneID():
			c.Metadata.CloneID = ns.CloneID()
		default:
			return fmt.Errorf("%w: chunk %d has clone %q, namespace has %q",
				ErrCloneMismatch, i, c.Metadata.CloneID, ns.CloneID())
		}
		prepared[i] = c
	}

	texts := make([]string, len(prepared))
	for i, c := range prepared {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(prepared), err)
	}
	if len(embeddings) != len(prepared) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(prepared))
	}

	records := make([]Record, len(prepared))
	for i, c := range prepared {
		records[i] = Record{
			ID:        RecordID(ns, c.Metadata.Source, c.Metadata.ChunkIndex, c.Text),
			Text:      c.Text,
			Embedding: embeddings[i],
			Metadata:  c.Metadata.ToMap(),
		}
	}

	if err := s.index.Upsert(ctx, ns, records); err != nil {
		return fmt.Errorf("storing %d chunks: %w", len(records), err)
	}
	s.logger.Info("added chunks",
		"namespace", ns.String(), "source", prepared[0].Metadata.Source, "count", len(records))
	return nil
}

// Search embeds the query and returns the limit nearest chunks in ns,
// optionally narrowed by a metadata filter.
func (s *TenantStore) Search(ctx context.Context, ns Namespace, query string, limit int, filter map[string]string) ([]Result, error) {
	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(embeddings))
	}
	return s.index.Query(ctx, ns, embeddings[0], limit, filter)
}

// DeleteSource removes every chunk ingested from the named source document.
func (s *TenantStore) DeleteSource(ctx context.Context, ns Namespace, source string) error {
	if source == "" {
		return fmt.Errorf("source is required")
	}
	return s.index.Delete(ctx, ns, nil, map[string]string{chunk.KeySource: source})
}

// Reset wipes the namespace entirely.
func (s *TenantStore) Reset(ctx context.Context, ns Namespace) error {
	return s.index.Delete(ctx, ns, nil, nil)
}

// Count returns the number of chunks stored in the namespace.
func (s *TenantStore) Count(ctx context.Context, ns Namespace) (int, error) {
	return s.index.Count(ctx, ns)
}

// RecordID derives the deterministic record identity. Re-ingesting identical
// content yields identical IDs, which is what makes Add idempotent.
func RecordID(ns Namespace, source string, index int, text string) string {
	h := sha256.New()
	h.Write([]byte(ns.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(source))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte{'|'})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
