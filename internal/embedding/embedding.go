// Package embedding converts text into fixed-dimension vectors through a
// Genkit ai.Embedder, adding the operational behavior the raw embedder lacks:
// batching, bounded retry with exponential backoff, per-attempt rate limiting,
// and a hard dimension check against the configured index dimension.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// ErrDimensionMismatch indicates the embedder produced vectors whose dimension
// does not match the configured index dimension. This is a fatal configuration
// error: it is never retried and must stop the operation immediately.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Service is the consumer-facing embedding contract. One vector per input
// text, in input order.
type Service interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RetryConfig configures retry behavior for embedding calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for embedding API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRateLimiter applies a shared limiter to every attempt, including
// retries. Nil disables limiting.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRequestOptions attaches provider-specific options to every embed
// request, such as Gemini's OutputDimensionality. Models that emit a larger
// native dimension need this to match the index dimension.
func WithRequestOptions(opts any) Option {
	return func(c *Client) { c.reqOpts = opts }
}

// Client wraps a Genkit embedder. It is safe for concurrent use; construct one
// long-lived Client at startup and inject it wherever a Service is consumed.
type Client struct {
	embedder  ai.Embedder
	dimension int
	retry     RetryConfig
	limiter   *rate.Limiter
	reqOpts   any
	logger    *slog.Logger
}

// NewClient creates an embedding client. dimension must match the vector
// index's dimension exactly; every returned vector is verified against it.
func NewClient(embedder ai.Embedder, dimension int, logger *slog.Logger, opts ...Option) (*Client, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension %d must be positive", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		embedder:  embedder,
		dimension: dimension,
		retry:     DefaultRetryConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dimension returns the configured vector dimension.
func (c *Client) Dimension() int { return c.dimension }

// Embed embeds all texts in one batched upstream call, retrying transient
// failures with exponential backoff. A dimension mismatch aborts immediately.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}
	req := &ai.EmbedRequest{Input: docs, Options: c.reqOpts}

	resp, err := c.embedWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts",
			len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		if len(emb.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: got %d, index expects %d",
				ErrDimensionMismatch, len(emb.Embedding), c.dimension)
		}
		out[i] = emb.Embedding
	}
	return out, nil
}

// embedWithRetry executes the embed request with exponential backoff.
// Each attempt, including retries, waits on the rate limiter first.
func (c *Client) embedWithRetry(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := c.embedder.Embed(ctx, req)
		if err == nil {
			c.logger.Debug("embed call succeeded",
				"texts", len(req.Input),
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err
		if !retryableError(err) {
			return nil, fmt.Errorf("embed: %w", err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying embed call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("embed after %d retries (elapsed: %v): %w",
		c.retry.MaxRetries, time.Since(start), lastErr)
}

// retryableError determines if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDimensionMismatch) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "quota exceeded", "429",
		"500", "502", "503", "504", "unavailable",
		"connection reset", "timeout", "temporary",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
