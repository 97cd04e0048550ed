// Package score maintains a per-chunk quality signal learned from user
// feedback, used by the retriever to re-rank similarity results.
//
// Scores are exponential moving averages over feedback events. With
// Decay = 0.9 and LearningRate = 0.1 the last ten or so events dominate;
// older feedback decays geometrically instead of being discarded. Chunks are
// identified by content hash, so identical content ingested twice shares one
// learned score.
package score

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// Decay is the EMA retention factor applied to the existing score on
	// every update.
	Decay = 0.9

	// LearningRate weights each new feedback event. It equals 1-Decay, so a
	// constant stream of +1 ratings converges to exactly +1.
	LearningRate = 0.1

	// MaxBoost bounds how far learned scores can shift a similarity ranking.
	// Feedback refines ordering; it must never override semantic relevance.
	MaxBoost = 0.3

	// DefaultWeight is the trust weight for ordinary feedback. Callers may
	// pass a higher weight for privileged raters.
	DefaultWeight = 1.0
)

var (
	// ErrInvalidRating indicates a rating outside {-1, +1}.
	ErrInvalidRating = errors.New("rating must be -1 or +1")

	// ErrInvalidWeight indicates a non-positive feedback weight.
	ErrInvalidWeight = errors.New("weight must be positive")
)

// Store is the persistence contract for learned chunk scores.
type Store interface {
	// Update applies one feedback event to every listed chunk hash and
	// returns the number of chunks updated. Upserts are atomic per chunk;
	// concurrent feedback on the same chunk never loses an update.
	Update(ctx context.Context, cloneID string, hashes []string, rating int, weight float64) (int, error)

	// ScoreMap returns every learned score for the clone. A clone with no
	// feedback yet yields an empty map, not an error.
	ScoreMap(ctx context.Context, cloneID string) (map[string]float64, error)

	// DeleteClone removes all scores for a clone. Used only at teardown.
	DeleteClone(ctx context.Context, cloneID string) error
}

// Hash derives the canonical scoring identity of a chunk from its content.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Boost converts a learned score into a bounded similarity adjustment.
func Boost(s float64) float64 {
	b := s * MaxBoost
	if b > MaxBoost {
		return MaxBoost
	}
	if b < -MaxBoost {
		return -MaxBoost
	}
	return b
}

// validateFeedback guards both store implementations.
func validateFeedback(rating int, weight float64) error {
	if rating != -1 && rating != 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	if weight <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWeight, weight)
	}
	return nil
}
