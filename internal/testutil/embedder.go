package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEmbedder produces deterministic unit vectors from text content, so
// integration tests can exercise the full ingest and query path offline.
// Identical texts embed identically; different texts almost surely differ.
type HashEmbedder struct {
	Dimension int
}

// Embed returns one normalized vector per text.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, e.Dimension)
	var norm float64
	for i := range vec {
		// Stretch the 32-byte digest across the full dimension.
		word := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v := float32(int32(word^uint32(i*2654435761))) / math.MaxInt32
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
