package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/twinforge/twindex/internal/log"
)

// mockEmbedder implements Embedder with per-text canned vectors.
type mockEmbedder struct {
	vectors   map[string][]float32
	embedErr  error
	callCount int
	lastTexts []string
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount++
	m.lastTexts = texts
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

func newTestSemantic(t *testing.T, embedder Embedder, opts ...SemanticOption) *Semantic {
	t.Helper()
	fallback, err := NewFixed(200, 20)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewSemantic(embedder, fallback, log.NewNop(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewSemantic_Validation(t *testing.T) {
	fallback, err := NewFixed(200, 20)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		embedder Embedder
		fallback *Fixed
		opts     []SemanticOption
	}{
		{name: "nil embedder", embedder: nil, fallback: fallback},
		{name: "nil fallback", embedder: &mockEmbedder{}, fallback: nil},
		{name: "threshold too low", embedder: &mockEmbedder{}, fallback: fallback,
			opts: []SemanticOption{WithSimilarityThreshold(0)}},
		{name: "threshold too high", embedder: &mockEmbedder{}, fallback: fallback,
			opts: []SemanticOption{WithSimilarityThreshold(1)}},
		{name: "min above max", embedder: &mockEmbedder{}, fallback: fallback,
			opts: []SemanticOption{WithChunkBounds(500, 100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSemantic(tt.embedder, tt.fallback, log.NewNop(), tt.opts...)
			if !errors.Is(err, ErrInvalidChunkConfig) {
				t.Errorf("error = %v, want ErrInvalidChunkConfig", err)
			}
		})
	}
}

func TestSemantic_Split_FewSentencesFallsBackToFixed(t *testing.T) {
	embedder := &mockEmbedder{}
	c := newTestSemantic(t, embedder)

	// One usable sentence only: semantic splitting is not meaningful.
	chunks, strategy := c.Split(context.Background(), "This is a single sentence without any breaks")

	if strategy != StrategyFixed {
		t.Errorf("strategy = %q, want %q", strategy, StrategyFixed)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks from fixed fallback")
	}
	if embedder.callCount != 0 {
		t.Errorf("embedder called %d times, want 0", embedder.callCount)
	}
}

func TestSemantic_Split_EmbedFailureFallsBackToFixed(t *testing.T) {
	embedder := &mockEmbedder{embedErr: errors.New("upstream exhausted")}
	c := newTestSemantic(t, embedder)

	text := "The weather is sunny today. It will be warm outside. Stock markets fell sharply."
	chunks, strategy := c.Split(context.Background(), text)

	if strategy != StrategyFixed {
		t.Errorf("strategy = %q, want %q", strategy, StrategyFixed)
	}
	if len(chunks) == 0 {
		t.Fatal("fallback produced no chunks")
	}
}

func TestSemantic_Split_AtSimilarityDrop(t *testing.T) {
	s1 := "The weather is sunny today."
	s2 := "It will be warm outside."
	s3 := "Stock markets fell sharply."
	s4 := "Investors remain nervous."

	embedder := &mockEmbedder{vectors: map[string][]float32{
		s1: {1, 0},
		s2: {1, 0},
		s3: {0, 1},
		s4: {0, 1},
	}}
	c := newTestSemantic(t, embedder, WithChunkBounds(10, 1000))

	chunks, strategy := c.Split(context.Background(), s1+" "+s2+" "+s3+" "+s4)

	if strategy != StrategySemantic {
		t.Fatalf("strategy = %q, want %q", strategy, StrategySemantic)
	}
	if embedder.callCount != 1 {
		t.Errorf("embedder called %d times, want 1 batched call", embedder.callCount)
	}
	want := []string{s1 + " " + s2, s3 + " " + s4}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSemantic_Split_SmallChunkCarriedForward(t *testing.T) {
	s1 := "The weather is sunny today."
	s2 := "It will be warm outside."
	s3 := "Stock markets fell sharply."
	s4 := "Investors remain nervous."

	// Same boundary as above, but min chunk size exceeds the first pair's
	// length, so the boundary must not flush and everything merges.
	embedder := &mockEmbedder{vectors: map[string][]float32{
		s1: {1, 0},
		s2: {1, 0},
		s3: {0, 1},
		s4: {0, 1},
	}}
	c := newTestSemantic(t, embedder, WithChunkBounds(60, 1000))

	chunks, strategy := c.Split(context.Background(), s1+" "+s2+" "+s3+" "+s4)

	if strategy != StrategySemantic {
		t.Fatalf("strategy = %q, want %q", strategy, StrategySemantic)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected small leading chunk carried forward into one chunk, got %v", chunks)
	}
}

func TestSemantic_Split_OversizedSentenceSubSplit(t *testing.T) {
	long := strings.Repeat("verylongword ", 100) // ~1300 bytes, over maxSize
	s2 := "A normal closing sentence here."
	s3 := "Another normal sentence follows."
	s4 := "And one more for good measure."

	embedder := &mockEmbedder{vectors: map[string][]float32{}}
	c := newTestSemantic(t, embedder, WithChunkBounds(10, 1000))

	chunks, strategy := c.Split(context.Background(), long+". "+s2+" "+s3+" "+s4)

	if strategy != StrategySemantic {
		t.Fatalf("strategy = %q, want %q", strategy, StrategySemantic)
	}
	for i, chunk := range chunks {
		if len(chunk) > 1000 {
			t.Errorf("chunk %d has length %d, want <= 1000 (sub-split bound)", i, len(chunk))
		}
	}
}

func TestSemantic_Split_NoBoundaryYieldsSingleChunk(t *testing.T) {
	s1 := "The weather is sunny today."
	s2 := "It will be warm outside."
	s3 := "Tomorrow should be sunny as well."

	embedder := &mockEmbedder{} // all vectors identical: similarity 1 everywhere
	c := newTestSemantic(t, embedder, WithChunkBounds(10, 1000))

	chunks, strategy := c.Split(context.Background(), s1+" "+s2+" "+s3)

	if strategy != StrategySemantic {
		t.Fatalf("strategy = %q, want %q", strategy, StrategySemantic)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk with no topic boundary, got %v", chunks)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr bool
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "dimension mismatch", a: []float32{1}, b: []float32{1, 0}, wantErr: true},
		{name: "empty", a: nil, b: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("similarity = %v, want %v", got, tt.want)
			}
		})
	}
}
