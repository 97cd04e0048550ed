package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
)

// Embedder converts a batch of texts into fixed-dimension vectors, one per
// input. Defined here because this package is the consumer; the production
// implementation lives in internal/embedding.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	// DefaultSimilarityThreshold marks a topic boundary wherever adjacent
	// sentence similarity drops below this value.
	DefaultSimilarityThreshold = 0.5

	// DefaultMinChunkSize is the smallest chunk the semantic splitter emits
	// standalone; anything shorter is carried into the next chunk.
	DefaultMinChunkSize = 100

	// DefaultMaxChunkSize bounds semantic chunks; a buffer is flushed before
	// a sentence that would push it past this limit.
	DefaultMaxChunkSize = 1000

	// minSentenceLen filters out fragments too short to carry meaning.
	minSentenceLen = 10

	// minSentences is the floor below which semantic splitting is not
	// meaningful and the whole call delegates to the fixed splitter.
	minSentences = 3
)

// sentenceRE matches runs of text ending at sentence punctuation or a line
// boundary.
var sentenceRE = regexp.MustCompile(`[^.!?\n]+[.!?]*`)

// SemanticOption configures a Semantic splitter.
type SemanticOption func(*Semantic)

// WithSimilarityThreshold overrides the topic-boundary threshold.
func WithSimilarityThreshold(t float64) SemanticOption {
	return func(c *Semantic) { c.threshold = t }
}

// WithChunkBounds overrides the min/max semantic chunk sizes.
func WithChunkBounds(minSize, maxSize int) SemanticOption {
	return func(c *Semantic) {
		c.minSize = minSize
		c.maxSize = maxSize
	}
}

// Semantic splits text at embedding-similarity drop points between adjacent
// sentences, so chunks follow topic boundaries instead of fixed character
// counts. Any failure on the embedding path degrades transparently to the
// fixed splitter: callers never see semantic-path errors.
type Semantic struct {
	embedder  Embedder
	fallback  *Fixed
	logger    *slog.Logger
	threshold float64
	minSize   int
	maxSize   int
}

// NewSemantic creates a semantic splitter. embedder and fallback are required;
// the fallback handles degradation and oversized single sentences.
func NewSemantic(embedder Embedder, fallback *Fixed, logger *slog.Logger, opts ...SemanticOption) (*Semantic, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidChunkConfig)
	}
	if fallback == nil {
		return nil, fmt.Errorf("%w: fixed fallback splitter is required", ErrInvalidChunkConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Semantic{
		embedder:  embedder,
		fallback:  fallback,
		logger:    logger,
		threshold: DefaultSimilarityThreshold,
		minSize:   DefaultMinChunkSize,
		maxSize:   DefaultMaxChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.threshold <= 0 || c.threshold >= 1 {
		return nil, fmt.Errorf("%w: similarity threshold %v must be in (0, 1)", ErrInvalidChunkConfig, c.threshold)
	}
	if c.minSize <= 0 || c.maxSize <= 0 || c.minSize >= c.maxSize {
		return nil, fmt.Errorf("%w: chunk bounds min=%d max=%d", ErrInvalidChunkConfig, c.minSize, c.maxSize)
	}
	return c, nil
}

// Split splits text into chunks, returning the strategy that actually ran.
// Documents with fewer than three usable sentences, and any embedding or
// merge failure, yield fixed chunks instead.
func (c *Semantic) Split(ctx context.Context, text string) ([]string, Strategy) {
	sentences := splitSentences(text)
	if len(sentences) < minSentences {
		return c.fallback.Split(text), StrategyFixed
	}

	chunks, err := c.semanticSplit(ctx, sentences)
	if err != nil {
		c.logger.Warn("semantic chunking failed, falling back to fixed",
			"sentences", len(sentences), "error", err)
		return c.fallback.Split(text), StrategyFixed
	}
	return chunks, StrategySemantic
}

// semanticSplit embeds all sentences in one batched call, marks split points
// where adjacent similarity drops below the threshold, and merges.
func (c *Semantic) semanticSplit(ctx context.Context, sentences []string) ([]string, error) {
	embeddings, err := c.embedder.Embed(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("embedding sentences: %w", err)
	}
	if len(embeddings) != len(sentences) {
		return nil, fmt.Errorf("embedding count %d does not match sentence count %d",
			len(embeddings), len(sentences))
	}

	splitAfter := make([]bool, len(sentences)-1)
	for i := range splitAfter {
		sim, err := cosineSimilarity(embeddings[i], embeddings[i+1])
		if err != nil {
			return nil, fmt.Errorf("sentence pair %d: %w", i, err)
		}
		splitAfter[i] = sim < c.threshold
	}

	return c.mergeSentences(sentences, splitAfter), nil
}

// mergeSentences assembles sentences into chunks honoring split points and
// the min/max bounds. A buffer below minSize is carried into the next chunk
// rather than emitted standalone; a sentence that alone exceeds maxSize is
// sub-split with the fixed splitter.
func (c *Semantic) mergeSentences(sentences []string, splitAfter []bool) []string {
	var chunks []string
	var cur string

	flush := func() {
		if cur != "" {
			chunks = append(chunks, cur)
			cur = ""
		}
	}

	for i, sentence := range sentences {
		if len(sentence) > c.maxSize {
			flush()
			chunks = append(chunks, c.fallback.Split(sentence)...)
			continue
		}
		if cur != "" && len(cur)+1+len(sentence) > c.maxSize {
			flush()
		}
		if cur == "" {
			cur = sentence
		} else {
			cur += " " + sentence
		}
		if i < len(splitAfter) && splitAfter[i] && len(cur) >= c.minSize {
			flush()
		}
	}

	// Trailing buffer: merge a short remainder into the previous chunk when
	// it fits, otherwise emit it standalone.
	if cur != "" {
		last := len(chunks) - 1
		if len(cur) < c.minSize && last >= 0 && len(chunks[last])+1+len(cur) <= c.maxSize {
			chunks[last] += " " + cur
		} else {
			chunks = append(chunks, cur)
		}
	}
	return chunks
}

// splitSentences breaks text at punctuation/paragraph boundaries and discards
// fragments of minSentenceLen bytes or fewer.
func splitSentences(text string) []string {
	matches := sentenceRE.FindAllString(text, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		s := strings.TrimSpace(m)
		if len(s) > minSentenceLen {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Zero-magnitude vectors yield similarity 0 rather than NaN.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions differ: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
