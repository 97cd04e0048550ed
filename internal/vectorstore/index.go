package vectorstore

import (
	"context"
)

// Record is one stored chunk: its deterministic ID, text, embedding and flat
// metadata map.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// Result is a record returned from a similarity query. Similarity is cosine
// similarity in [-1, 1]; backends derive it consistently so callers can apply
// thresholds regardless of backend.
type Result struct {
	Record
	Similarity float64
}

// Index is the storage contract both backends implement. Every operation is
// scoped to a namespace; nothing crosses it.
//
// Delete semantics: ids and filter are combined with AND when both are given.
// With nil ids and nil filter the whole namespace is wiped.
type Index interface {
	Upsert(ctx context.Context, ns Namespace, records []Record) error
	Query(ctx context.Context, ns Namespace, embedding []float32, limit int, filter map[string]string) ([]Result, error)
	Delete(ctx context.Context, ns Namespace, ids []string, filter map[string]string) error
	Count(ctx context.Context, ns Namespace) (int, error)
}
