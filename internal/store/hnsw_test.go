package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSW(t *testing.T) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(3))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testChunk(index int, text string, vec []float32) *IndexChunk {
	return &IndexChunk{
		Index:  index,
		Text:   text,
		Vector: vec,
		Meta: ChunkMeta{
			Title:       "test doc",
			ContentType: "text/plain",
			CreatedAt:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestHNSWUpsertAndSearch(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "alpha", []float32{1, 0, 0}),
		testChunk(1, "beta", []float32{0, 1, 0}),
	}))
	require.NoError(t, idx.UpsertChunks(ctx, "doc2", []*IndexChunk{
		testChunk(0, "gamma", []float32{0, 0, 1}),
	}))

	assert.Equal(t, 2, idx.DocCount())
	assert.Equal(t, 3, idx.ChunkCount())

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "doc1", hits[0].DocID)
	assert.Equal(t, 0, hits[0].ChunkIndex)
	assert.Equal(t, "alpha", hits[0].Text)
	assert.InDelta(t, 1.0, hits[0].Similarity, 0.001)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestHNSWSearchNormalizesQuery(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "alpha", []float32{1, 0, 0}),
	}))

	// Magnitude must not matter, only direction.
	hits, err := idx.Search(ctx, []float32{100, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 0.001)
}

func TestHNSWUpsertReplacesOldChunks(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "old zero", []float32{1, 0, 0}),
		testChunk(1, "old one", []float32{0.9, 0.1, 0}),
		testChunk(2, "old two", []float32{0.8, 0.2, 0}),
	}))

	// Re-index with fewer chunks. The old rows must all be gone.
	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "new zero", []float32{0, 1, 0}),
	}))

	assert.Equal(t, 1, idx.DocCount())
	assert.Equal(t, 1, idx.ChunkCount())

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new zero", hits[0].Text)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	err := idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "bad", []float32{1, 0}),
	})
	require.Error(t, err)

	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestHNSWDeleteIdempotent(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "alpha", []float32{1, 0, 0}),
	}))

	require.NoError(t, idx.Delete(ctx, "doc1"))
	assert.Equal(t, 0, idx.DocCount())

	// Deleting again and deleting unknown IDs are both no-ops.
	require.NoError(t, idx.Delete(ctx, "doc1"))
	require.NoError(t, idx.Delete(ctx, "never-existed"))
}

func TestHNSWSearchAfterDelete(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "alpha", []float32{1, 0, 0}),
	}))
	require.NoError(t, idx.UpsertChunks(ctx, "doc2", []*IndexChunk{
		testChunk(0, "beta", []float32{0.9, 0.1, 0}),
	}))
	require.NoError(t, idx.Delete(ctx, "doc1"))

	// Deleted rows never surface, even as the nearest neighbor.
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc2", hits[0].DocID)
}

func TestHNSWCheckMissing(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "alpha", []float32{1, 0, 0}),
	}))

	missing, err := idx.CheckMissing(ctx, []string{"doc1", "doc2", "doc3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc2", "doc3"}, missing)
}

func TestHNSWSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(3))
	require.NoError(t, err)
	require.NoError(t, idx.UpsertChunks(ctx, "doc1", []*IndexChunk{
		testChunk(0, "alpha", []float32{1, 0, 0}),
		testChunk(1, "beta", []float32{0, 1, 0}),
	}))
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	loaded, err := NewHNSWIndex(DefaultVectorIndexConfig(3))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 1, loaded.DocCount())
	assert.Equal(t, 2, loaded.ChunkCount())

	hits, err := loaded.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alpha", hits[0].Text)
	assert.Equal(t, "test doc", hits[0].Meta.Title)
}

func TestHNSWEmptySearch(t *testing.T) {
	idx := newTestHNSW(t)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
