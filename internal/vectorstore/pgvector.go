package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres is the production Index backed by pgvector. Rows for every
// namespace share one table; the namespace column plus a composite index keep
// queries scoped and fast.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres index on an existing pool. The pool must have
// pgvector types registered and migrations applied.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Upsert inserts records in one batch, replacing rows with matching IDs.
// Re-ingesting a document is therefore idempotent.
func (p *Postgres) Upsert(ctx context.Context, ns Namespace, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO vectors (id, namespace, content, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				content   = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				metadata  = EXCLUDED.metadata,
				updated_at = now()`,
			r.ID, ns.String(), r.Text, pgvector.NewVector(r.Embedding), r.Metadata,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting vectors: %w", err)
		}
	}

	p.logger.Debug("upserted vectors", "namespace", ns.String(), "count", len(records))
	return nil
}

// Query returns the limit nearest records by cosine distance, optionally
// narrowed by a metadata containment filter.
func (p *Postgres) Query(ctx context.Context, ns Namespace, embedding []float32, limit int, filter map[string]string) ([]Result, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("query limit %d must be positive", limit)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	query := `
		SELECT id, content, embedding, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM vectors
		WHERE namespace = $2`
	args := []any{pgvector.NewVector(embedding), ns.String()}

	if len(filter) > 0 {
		args = append(args, filter)
		query += fmt.Sprintf(" AND metadata @> $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			res Result
			emb pgvector.Vector
		)
		if err := rows.Scan(&res.ID, &res.Text, &emb, &res.Metadata, &res.Similarity); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		res.Embedding = emb.Slice()
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading vector rows: %w", err)
	}
	return out, nil
}

// Delete removes records matching ids and filter within the namespace.
// Nil ids and nil filter wipe the namespace.
func (p *Postgres) Delete(ctx context.Context, ns Namespace, ids []string, filter map[string]string) error {
	var sb strings.Builder
	sb.WriteString("DELETE FROM vectors WHERE namespace = $1")
	args := []any{ns.String()}

	if len(ids) > 0 {
		args = append(args, ids)
		fmt.Fprintf(&sb, " AND id = ANY($%d)", len(args))
	}
	if len(filter) > 0 {
		args = append(args, filter)
		fmt.Fprintf(&sb, " AND metadata @> $%d", len(args))
	}

	tag, err := p.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}
	p.logger.Debug("deleted vectors", "namespace", ns.String(), "rows", tag.RowsAffected())
	return nil
}

// Count returns the number of records stored in the namespace.
func (p *Postgres) Count(ctx context.Context, ns Namespace) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		"SELECT count(*) FROM vectors WHERE namespace = $1", ns.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return count, nil
}
