// Package store provides the two search indexes over clipped documents:
// an HNSW vector index for semantic search and a Bleve BM25 index for
// keyword search. Both share the (docID, chunkIndex) key shape and are
// kept in 1:1 correspondence by the indexing pipeline.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChunkMeta carries the document metadata stored alongside every chunk
// in both indexes. It mirrors the owning document's metadata at the time
// of the last successful indexing pass.
type ChunkMeta struct {
	Title       string    `json:"title"`
	ContentType string    `json:"content_type"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// IndexChunk is one chunk of a document prepared for indexing.
// Vector may be nil when the chunk is destined for the keyword index only.
type IndexChunk struct {
	Index  int
	Text   string
	Vector []float32
	Meta   ChunkMeta
}

// VectorHit is a single vector search result.
type VectorHit struct {
	DocID      string
	ChunkIndex int
	Text       string
	Meta       ChunkMeta
	// Similarity is cosine similarity normalized to 0-1 (1 = identical).
	Similarity float32
}

// KeywordHit is a single BM25 search result.
type KeywordHit struct {
	DocID      string
	ChunkIndex int
	Text       string
	Meta       ChunkMeta
	// Score is the raw BM25 score. Comparable only within one keyword
	// search; fusion relies on rank position, not on this value.
	Score float64
	// MatchedTerms are the analyzed query terms that matched.
	MatchedTerms []string
}

// VectorIndex stores chunk embeddings and supports nearest-neighbor search.
//
// UpsertChunks replaces all chunks for a document in one logical
// operation: existing rows keyed by docID are removed before the new set
// is inserted, so readers never observe chunks from two indexing
// generations of the same document.
type VectorIndex interface {
	// UpsertChunks replaces all vectors for docID with the given set.
	UpsertChunks(ctx context.Context, docID string, chunks []*IndexChunk) error

	// Search returns at most k nearest neighbors by cosine similarity.
	// Ties are broken by insertion order (stable).
	Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error)

	// Delete removes all chunk vectors for a document.
	// Deleting a non-existent docID is a no-op, not an error.
	Delete(ctx context.Context, docID string) error

	// CheckMissing returns the subset of ids that have zero indexed vectors.
	CheckMissing(ctx context.Context, ids []string) ([]string, error)

	// DocCount returns the number of documents with at least one vector.
	DocCount() int

	// ChunkCount returns the total number of indexed chunks.
	ChunkCount() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordIndex mirrors VectorIndex but ranks via BM25 over tokenized text.
type KeywordIndex interface {
	UpsertChunks(ctx context.Context, docID string, chunks []*IndexChunk) error

	// Search returns at most k chunks ranked by BM25 score.
	Search(ctx context.Context, query string, k int) ([]*KeywordHit, error)

	Delete(ctx context.Context, docID string) error

	CheckMissing(ctx context.Context, ids []string) ([]string, error)

	// ChunkCount returns the total number of indexed chunks.
	ChunkCount() int

	Close() error
}

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for the vector index.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ChunkKey builds the stable key for a (docID, chunkIndex) pair.
// Both indexes use the same key so their rows stay in 1:1 correspondence.
func ChunkKey(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s#%06d", docID, chunkIndex)
}

// ParseChunkKey splits a chunk key back into (docID, chunkIndex).
func ParseChunkKey(key string) (docID string, chunkIndex int, err error) {
	i := strings.LastIndex(key, "#")
	if i < 0 {
		return "", 0, fmt.Errorf("malformed chunk key %q", key)
	}
	idx, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed chunk key %q: %w", key, err)
	}
	return key[:i], idx, nil
}
