package score

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres persists scores in the chunk_scores table. The EMA update is a
// single upsert statement, so concurrent feedback events on the same chunk
// serialize inside Postgres with no read-modify-write race in Go.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a score store on an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Update implements Store. The inserted value doubles as the EMA contribution
// on conflict: new rows get rating*LearningRate*weight directly, existing rows
// get score*Decay plus that same contribution.
func (p *Postgres) Update(ctx context.Context, cloneID string, hashes []string, rating int, weight float64) (int, error) {
	if err := validateFeedback(rating, weight); err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	contribution := float64(rating) * LearningRate * weight

	batch := &pgx.Batch{}
	for _, h := range hashes {
		batch.Queue(`
			INSERT INTO chunk_scores (clone_id, chunk_hash, score, hit_count)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (clone_id, chunk_hash) DO UPDATE SET
				score      = chunk_scores.score * $4 + EXCLUDED.score,
				hit_count  = chunk_scores.hit_count + 1,
				updated_at = now()`,
			cloneID, h, contribution, Decay,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	updated := 0
	for range hashes {
		tag, err := results.Exec()
		if err != nil {
			return updated, fmt.Errorf("updating chunk score: %w", err)
		}
		updated += int(tag.RowsAffected())
	}

	p.logger.Debug("applied feedback",
		"clone_id", cloneID, "chunks", updated, "rating", rating, "weight", weight)
	return updated, nil
}

// ScoreMap implements Store.
func (p *Postgres) ScoreMap(ctx context.Context, cloneID string) (map[string]float64, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT chunk_hash, score FROM chunk_scores WHERE clone_id = $1", cloneID)
	if err != nil {
		return nil, fmt.Errorf("loading score map: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var (
			hash string
			s    float64
		)
		if err := rows.Scan(&hash, &s); err != nil {
			return nil, fmt.Errorf("scanning score row: %w", err)
		}
		scores[hash] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading score rows: %w", err)
	}
	return scores, nil
}

// DeleteClone implements Store.
func (p *Postgres) DeleteClone(ctx context.Context, cloneID string) error {
	tag, err := p.pool.Exec(ctx,
		"DELETE FROM chunk_scores WHERE clone_id = $1", cloneID)
	if err != nil {
		return fmt.Errorf("deleting clone scores: %w", err)
	}
	p.logger.Info("deleted clone scores", "clone_id", cloneID, "rows", tag.RowsAffected())
	return nil
}
