// Package retriever answers queries: it runs the namespace-scoped similarity
// search, re-ranks candidates with learned chunk scores and formats the
// winners into a context block for the chat layer.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/twinforge/twindex/internal/chunk"
	"github.com/twinforge/twindex/internal/score"
	"github.com/twinforge/twindex/internal/vectorstore"
)

const (
	// DefaultTopK is the number of chunks handed to the chat layer.
	DefaultTopK = 5

	// overfetchFactor widens the candidate pool when learned scores exist,
	// giving re-ranking room to promote lower-similarity chunks.
	overfetchFactor = 2
)

var tracer = otel.Tracer("github.com/twinforge/twindex/internal/retriever")

// Searcher is the similarity-search capability the retriever consumes.
type Searcher interface {
	Search(ctx context.Context, ns vectorstore.Namespace, query string, limit int, filter map[string]string) ([]vectorstore.Result, error)
}

// ScoreReader supplies the learned score map for a clone.
type ScoreReader interface {
	ScoreMap(ctx context.Context, cloneID string) (map[string]float64, error)
}

// Ranked is one retrieved chunk after re-ranking. Adjusted is the similarity
// shifted by the learned boost and clamped into [0, 1]; with no learned score
// it equals Similarity.
type Ranked struct {
	ID         string
	Text       string
	Source     string
	Similarity float64
	Adjusted   float64
}

// Config tunes retrieval.
type Config struct {
	// TopK is the result count after re-ranking. Zero takes DefaultTopK.
	TopK int

	// MinSimilarity drops candidates below the threshold before ranking.
	// Zero disables the filter.
	MinSimilarity float64
}

// Retriever orchestrates one query end to end. Stateless across queries; the
// score map is re-read per query so fresh feedback takes effect immediately.
type Retriever struct {
	searcher Searcher
	scores   ScoreReader
	cfg      Config
	logger   *slog.Logger
}

// New wires a retriever. scores may be nil, which disables re-ranking.
func New(searcher Searcher, scores ScoreReader, cfg Config, logger *slog.Logger) (*Retriever, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("top k %d must not be negative", cfg.TopK)
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinSimilarity < 0 || cfg.MinSimilarity >= 1 {
		return nil, fmt.Errorf("min similarity %v must be in [0, 1)", cfg.MinSimilarity)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{searcher: searcher, scores: scores, cfg: cfg, logger: logger}, nil
}

// Retrieve returns the top chunks for the query in rank order.
//
// When learned scores exist for the clone, 2*k candidates are fetched and
// re-ranked by similarity plus the bounded score boost. A score-read failure
// degrades to plain similarity ranking rather than failing the query.
func (r *Retriever) Retrieve(ctx context.Context, ns vectorstore.Namespace, query string) ([]Ranked, error) {
	ctx, span := tracer.Start(ctx, "retriever.Retrieve", trace.WithAttributes(
		attribute.String("clone_id", ns.CloneID()),
		attribute.Int("top_k", r.cfg.TopK),
	))
	defer span.End()

	scoreMap := r.loadScores(ctx, ns.CloneID())

	limit := r.cfg.TopK
	if len(scoreMap) > 0 {
		limit = overfetchFactor * r.cfg.TopK
	}

	results, err := r.searcher.Search(ctx, ns, query, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("searching namespace: %w", err)
	}

	ranked := r.rank(results, scoreMap)
	if len(ranked) > r.cfg.TopK {
		ranked = ranked[:r.cfg.TopK]
	}

	span.SetAttributes(attribute.Int("results", len(ranked)))
	r.logger.Debug("retrieved chunks",
		"clone_id", ns.CloneID(),
		"candidates", len(results),
		"returned", len(ranked),
		"reranked", len(scoreMap) > 0,
	)
	return ranked, nil
}

// loadScores reads the clone's score map, degrading to nil on any failure.
func (r *Retriever) loadScores(ctx context.Context, cloneID string) map[string]float64 {
	if r.scores == nil {
		return nil
	}
	scoreMap, err := r.scores.ScoreMap(ctx, cloneID)
	if err != nil {
		r.logger.Warn("score map unavailable, ranking by similarity only",
			"clone_id", cloneID, "error", err)
		return nil
	}
	return scoreMap
}

// rank filters by minimum similarity, applies the learned boost and sorts
// descending by adjusted similarity. Equal adjusted values keep search order.
func (r *Retriever) rank(results []vectorstore.Result, scoreMap map[string]float64) []Ranked {
	ranked := make([]Ranked, 0, len(results))
	for _, res := range results {
		if r.cfg.MinSimilarity > 0 && res.Similarity < r.cfg.MinSimilarity {
			continue
		}
		adjusted := res.Similarity
		if len(scoreMap) > 0 {
			adjusted = clamp01(adjusted + score.Boost(scoreMap[score.Hash(res.Text)]))
		}
		ranked = append(ranked, Ranked{
			ID:         res.ID,
			Text:       res.Text,
			Source:     res.Metadata[chunk.KeySource],
			Similarity: res.Similarity,
			Adjusted:   adjusted,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Adjusted > ranked[j].Adjusted
	})
	return ranked
}

// FormatContext renders ranked chunks into the newline-delimited block handed
// to the chat layer, each annotated with its source document.
func FormatContext(ranked []Ranked) string {
	if len(ranked) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, r := range ranked {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		source := r.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&sb, "[source: %s]\n%s", source, r.Text)
	}
	return sb.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
