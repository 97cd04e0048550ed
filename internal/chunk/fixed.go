package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunkConfig indicates an impossible chunker configuration.
// This is a fatal configuration error, never retried.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// defaultSeparators is the split priority: paragraph, line, word, character.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Fixed is the sliding-window text splitter. It splits on a priority list of
// separators recursively, producing chunks no longer than Size bytes with
// successive chunks overlapping by Overlap bytes where possible.
//
// Fixed is deterministic, performs no I/O, and is safe for concurrent use.
type Fixed struct {
	size    int
	overlap int
}

// NewFixed creates a fixed-window splitter.
// size must be positive and overlap must satisfy 0 <= overlap < size.
func NewFixed(size, overlap int) (*Fixed, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap %d must not be negative", ErrInvalidChunkConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidChunkConfig, overlap, size)
	}
	return &Fixed{size: size, overlap: overlap}, nil
}

// Size returns the configured maximum chunk length in bytes.
func (c *Fixed) Size() int { return c.size }

// Split splits text into chunks of at most Size bytes. Whitespace-only input
// yields no chunks.
func (c *Fixed) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, defaultSeparators)
}

// split recursively breaks text using the highest-priority separator present,
// then merges the resulting pieces back into maximally-filled chunks.
func (c *Fixed) split(text string, separators []string) []string {
	if len(text) <= c.size {
		return []string{text}
	}

	sep := ""
	remaining := []string{""}
	for i, s := range separators {
		if s == "" {
			sep = ""
			break
		}
		if strings.Contains(text, s) {
			sep = s
			remaining = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return c.hardSplit(text)
	}

	var pieces []string
	for _, part := range strings.Split(text, sep) {
		if part == "" {
			continue
		}
		if len(part) > c.size {
			// Piece still too large for one chunk: descend to the next
			// separator level before merging.
			pieces = append(pieces, c.split(part, remaining)...)
		} else {
			pieces = append(pieces, part)
		}
	}

	return c.merge(pieces, sep)
}

// hardSplit is the character-level base case: overlapping windows of exactly
// size bytes (the last window may be shorter).
func (c *Fixed) hardSplit(text string) []string {
	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := min(start+c.size, len(text))
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

// merge packs pieces (each guaranteed <= size) into chunks, rejoining them
// with sep and seeding each new chunk with the tail of the previous one to
// produce the configured overlap where it fits.
func (c *Fixed) merge(pieces []string, sep string) []string {
	var chunks []string
	var cur strings.Builder

	for _, piece := range pieces {
		extra := len(piece)
		if cur.Len() > 0 {
			extra += len(sep)
		}
		if cur.Len() > 0 && cur.Len()+extra > c.size {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if c.overlap > 0 {
				tail := overlapTail(chunk, c.overlap)
				if tail != "" && len(tail)+len(sep)+len(piece) <= c.size {
					cur.WriteString(tail)
				}
			}
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// overlapTail returns the last n bytes of chunk, shrunk past the first
// whitespace so the overlap starts at a word boundary. A window with no
// whitespace keeps the raw mid-word tail rather than dropping the overlap.
func overlapTail(chunk string, n int) string {
	if len(chunk) <= n {
		return chunk
	}
	tail := chunk[len(chunk)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		tail = strings.TrimLeft(tail[idx:], " \n")
	}
	return tail
}
