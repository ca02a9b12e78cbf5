// Package search provides hybrid retrieval over the two indexes:
// vector and keyword sub-searches run in parallel and their ranked
// lists are fused with Reciprocal Rank Fusion. Scores from the two
// sides are never compared directly; only rank positions matter.
package search

import "time"

const (
	// DefaultLimit is the default number of documents returned.
	DefaultLimit = 10

	// MaxLimit caps the result count.
	MaxLimit = 100

	// DefaultOverFetchFactor is how many chunk hits each side fetches
	// per requested document. Chunks collapse to documents after
	// fusion, so each side over-fetches to keep the final list full.
	DefaultOverFetchFactor = 3

	// DefaultSideTimeout bounds each sub-search.
	DefaultSideTimeout = 2 * time.Second
)

// Weights sets the relative importance of the two sides in fusion.
type Weights struct {
	// Vector is the semantic search weight (default: 0.7).
	Vector float64

	// Keyword is the BM25 search weight (default: 0.3).
	Keyword float64
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, Keyword: 0.3}
}

// Options configures a search.
type Options struct {
	// Limit is the maximum number of documents returned.
	Limit int

	// Weights overrides the default fusion weights.
	Weights *Weights

	// KeywordOnly skips the vector side entirely.
	KeywordOnly bool

	// VectorOnly skips the keyword side entirely. Mutually exclusive
	// with KeywordOnly; when both are set KeywordOnly wins.
	VectorOnly bool

	// PerChunk returns one result per chunk instead of collapsing to
	// the best chunk per document, for callers assembling context
	// windows from multiple passages of the same document.
	PerChunk bool
}

// Result is one row of the fused ranking: a document represented by
// its best-ranked chunk, or a single chunk in per-chunk mode.
type Result struct {
	DocID       string
	ChunkIndex  int
	Text        string
	Title       string
	ContentType string
	Tags        []string

	// Score is the fused RRF score, normalized so the top result is 1.
	Score float64

	// VectorSimilarity is the raw cosine similarity (0 when the chunk
	// was absent from vector results).
	VectorSimilarity float64

	// KeywordScore is the raw BM25 score (0 when absent).
	KeywordScore float64

	// MatchedTerms are the keyword-side matched query terms.
	MatchedTerms []string

	// InBoth marks chunks found by both sub-searches.
	InBoth bool
}

// Response carries results plus degradation state.
type Response struct {
	Results []*Result

	// VectorUsed and KeywordUsed report which sides contributed.
	VectorUsed  bool
	KeywordUsed bool

	// Degraded is set when exactly one side failed and results come
	// from the other alone.
	Degraded bool

	// Unavailable is set when both sides failed; Results is empty.
	Unavailable bool

	Duration time.Duration
}
