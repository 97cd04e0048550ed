// Package chunk splits raw documents into the bounded spans of text that get
// embedded and retrieved.
//
// Two strategies are provided:
//   - Fixed: deterministic sliding-window splitting with overlap. No I/O,
//     cannot fail after construction. This is the universal fallback.
//   - Semantic: groups sentences into chunks at topic boundaries detected via
//     embedding similarity. Degrades transparently to Fixed whenever the
//     embedding path fails.
//
// Every emitted chunk carries a Metadata record identifying its tenant, clone,
// source document and position, so downstream layers can enforce isolation and
// cascade deletes without parsing the text itself.
package chunk

import (
	"fmt"
	"strconv"
)

// Strategy identifies how a chunk was produced. It is recorded in metadata for
// observability and asserted on by tests.
type Strategy string

const (
	// StrategyFixed marks chunks produced by the sliding-window splitter.
	StrategyFixed Strategy = "fixed"

	// StrategySemantic marks chunks produced by embedding-driven splitting.
	StrategySemantic Strategy = "semantic"
)

// Reserved metadata keys. Extra metadata supplied by callers must not collide
// with these.
const (
	KeyTenantID        = "tenant_id"
	KeyCloneID         = "clone_id"
	KeySource          = "source"
	KeyChunkIndex      = "chunk_index"
	KeyStrategy        = "chunking_strategy"
	KeyContextEnriched = "context_enriched"
)

// Metadata is the typed record attached to every chunk. The mandatory fields
// are explicit struct members; source-specific extras go into Extra.
type Metadata struct {
	TenantID        string
	CloneID         string
	Source          string
	ChunkIndex      int
	Strategy        Strategy
	ContextEnriched bool

	// Extra holds source-specific metadata (e.g. file path, channel name).
	// Keys must not collide with the reserved keys above.
	Extra map[string]string
}

// Chunk is a bounded span of source text plus its metadata. Chunks are
// immutable once embedded; re-ingesting the same content produces new chunk
// sets with the same deterministic IDs.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// ToMap flattens the metadata into the string map shape the index backends
// store. Reserved keys always win over Extra entries.
func (m Metadata) ToMap() map[string]string {
	out := make(map[string]string, len(m.Extra)+6)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[KeyTenantID] = m.TenantID
	out[KeyCloneID] = m.CloneID
	out[KeySource] = m.Source
	out[KeyChunkIndex] = strconv.Itoa(m.ChunkIndex)
	out[KeyStrategy] = string(m.Strategy)
	out[KeyContextEnriched] = strconv.FormatBool(m.ContextEnriched)
	return out
}

// MetadataFromMap rebuilds a Metadata record from its flat map form.
// Unknown keys land in Extra. Malformed chunk_index or context_enriched
// values are an error: they indicate index corruption, not user input.
func MetadataFromMap(in map[string]string) (Metadata, error) {
	m := Metadata{}
	for k, v := range in {
		switch k {
		case KeyTenantID:
			m.TenantID = v
		case KeyCloneID:
			m.CloneID = v
		case KeySource:
			m.Source = v
		case KeyChunkIndex:
			idx, err := strconv.Atoi(v)
			if err != nil {
				return Metadata{}, fmt.Errorf("parsing chunk_index %q: %w", v, err)
			}
			m.ChunkIndex = idx
		case KeyStrategy:
			m.Strategy = Strategy(v)
		case KeyContextEnriched:
			enriched, err := strconv.ParseBool(v)
			if err != nil {
				return Metadata{}, fmt.Errorf("parsing context_enriched %q: %w", v, err)
			}
			m.ContextEnriched = enriched
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[k] = v
		}
	}
	return m, nil
}
