package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/clipstash/internal/embed"
	clierrors "github.com/clipstash/clipstash/internal/errors"
	"github.com/clipstash/clipstash/internal/store"
)

// indexDoc embeds and indexes one document with a single chunk.
func indexDoc(t *testing.T, vector store.VectorIndex, keyword store.KeywordIndex,
	embedder embed.Embedder, docID, text string) {
	t.Helper()
	ctx := context.Background()

	vec, err := embedder.Embed(ctx, text)
	require.NoError(t, err)

	chunks := []*store.IndexChunk{{
		Index:  0,
		Text:   text,
		Vector: vec,
		Meta:   store.ChunkMeta{Title: "Doc " + docID, ContentType: "text/plain"},
	}}
	require.NoError(t, vector.UpsertChunks(ctx, docID, chunks))
	require.NoError(t, keyword.UpsertChunks(ctx, docID, chunks))
}

func newTestEngine(t *testing.T) (*Engine, store.VectorIndex, store.KeywordIndex, embed.Embedder) {
	t.Helper()

	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	keyword, err := store.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { keyword.Close() })

	engine := NewEngine(EngineConfig{
		Vector:   vector,
		Embedder: embedder,
		Keyword:  keyword,
	})
	return engine, vector, keyword, embedder
}

func TestSearchHybrid(t *testing.T) {
	engine, vector, keyword, embedder := newTestEngine(t)
	ctx := context.Background()

	indexDoc(t, vector, keyword, embedder, "fruit", "apple banana smoothie recipe with yogurt")
	indexDoc(t, vector, keyword, embedder, "servers", "nginx reverse proxy configuration guide")
	indexDoc(t, vector, keyword, embedder, "apples", "apple orchard growing season notes")

	resp, err := engine.Search(ctx, "apple banana", Options{})
	require.NoError(t, err)

	assert.True(t, resp.VectorUsed)
	assert.True(t, resp.KeywordUsed)
	assert.False(t, resp.Degraded)
	assert.False(t, resp.Unavailable)
	require.NotEmpty(t, resp.Results)

	// The doc matching both words outranks the one matching only one.
	assert.Equal(t, "fruit", resp.Results[0].DocID)
	assert.Equal(t, 1.0, resp.Results[0].Score)
	assert.Equal(t, "Doc fruit", resp.Results[0].Title)
}

func TestSearchEmptyQuery(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Search(context.Background(), "   ", Options{})
	require.Error(t, err)
	assert.Equal(t, clierrors.ErrCodeQueryEmpty, clierrors.GetCode(err))
}

func TestSearchNoMatches(t *testing.T) {
	engine, vector, keyword, embedder := newTestEngine(t)

	indexDoc(t, vector, keyword, embedder, "doc1", "completely unrelated content")

	resp, err := engine.Search(context.Background(), "zzyzx", Options{})
	require.NoError(t, err)
	assert.False(t, resp.Unavailable)
	// Vector search always returns nearest neighbors, so results may be
	// non-empty; the keyword side contributes nothing.
	assert.True(t, resp.KeywordUsed)
}

func TestSearchLimit(t *testing.T) {
	engine, vector, keyword, embedder := newTestEngine(t)

	for i := range 20 {
		indexDoc(t, vector, keyword, embedder,
			fmt.Sprintf("doc%02d", i),
			fmt.Sprintf("note number %d about shared topic words", i))
	}

	resp, err := engine.Search(context.Background(), "shared topic", Options{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 5)
}

func TestSearchKeywordOnlyOption(t *testing.T) {
	engine, vector, keyword, embedder := newTestEngine(t)

	indexDoc(t, vector, keyword, embedder, "doc1", "terraform state locking explained")

	resp, err := engine.Search(context.Background(), "terraform", Options{KeywordOnly: true})
	require.NoError(t, err)

	assert.False(t, resp.VectorUsed)
	assert.True(t, resp.KeywordUsed)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Zero(t, resp.Results[0].VectorSimilarity)
}

func TestSearchVectorOnlyOption(t *testing.T) {
	engine, vector, keyword, embedder := newTestEngine(t)

	indexDoc(t, vector, keyword, embedder, "doc1", "terraform state locking explained")

	resp, err := engine.Search(context.Background(), "terraform state", Options{VectorOnly: true})
	require.NoError(t, err)

	assert.True(t, resp.VectorUsed)
	assert.False(t, resp.KeywordUsed)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Zero(t, resp.Results[0].KeywordScore)
	assert.Empty(t, resp.Results[0].MatchedTerms)
}

// brokenVector fails every search.
type brokenVector struct{ store.VectorIndex }

func (b *brokenVector) Search(ctx context.Context, query []float32, k int) ([]*store.VectorHit, error) {
	return nil, fmt.Errorf("index offline")
}

// brokenKeyword fails every search.
type brokenKeyword struct{ store.KeywordIndex }

func (b *brokenKeyword) Search(ctx context.Context, query string, k int) ([]*store.KeywordHit, error) {
	return nil, fmt.Errorf("index offline")
}

func TestSearchDegradesToKeywordOnly(t *testing.T) {
	_, vector, keyword, embedder := newTestEngine(t)
	indexDoc(t, vector, keyword, embedder, "doc1", "postgres vacuum tuning")

	engine := NewEngine(EngineConfig{
		Vector:   &brokenVector{VectorIndex: vector},
		Embedder: embedder,
		Keyword:  keyword,
	})

	resp, err := engine.Search(context.Background(), "postgres vacuum", Options{})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.False(t, resp.Unavailable)
	assert.False(t, resp.VectorUsed)
	assert.True(t, resp.KeywordUsed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "doc1", resp.Results[0].DocID)
}

func TestSearchDegradesToVectorOnly(t *testing.T) {
	_, vector, keyword, embedder := newTestEngine(t)
	indexDoc(t, vector, keyword, embedder, "doc1", "postgres vacuum tuning")

	engine := NewEngine(EngineConfig{
		Vector:   vector,
		Embedder: embedder,
		Keyword:  &brokenKeyword{KeywordIndex: keyword},
	})

	resp, err := engine.Search(context.Background(), "postgres vacuum", Options{})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.True(t, resp.VectorUsed)
	assert.False(t, resp.KeywordUsed)
	require.NotEmpty(t, resp.Results)
}

func TestSearchBothSidesDownUnavailable(t *testing.T) {
	_, vector, keyword, embedder := newTestEngine(t)

	engine := NewEngine(EngineConfig{
		Vector:   &brokenVector{VectorIndex: vector},
		Embedder: embedder,
		Keyword:  &brokenKeyword{KeywordIndex: keyword},
	})

	resp, err := engine.Search(context.Background(), "anything", Options{})
	require.NoError(t, err)

	assert.True(t, resp.Unavailable)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.VectorUsed)
	assert.False(t, resp.KeywordUsed)
}

// slowKeyword blocks until the context expires.
type slowKeyword struct{ store.KeywordIndex }

func (s *slowKeyword) Search(ctx context.Context, query string, k int) ([]*store.KeywordHit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearchSideTimeout(t *testing.T) {
	_, vector, keyword, embedder := newTestEngine(t)
	indexDoc(t, vector, keyword, embedder, "doc1", "content that vector search finds")

	engine := NewEngine(EngineConfig{
		Vector:      vector,
		Embedder:    embedder,
		Keyword:     &slowKeyword{KeywordIndex: keyword},
		SideTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	resp, err := engine.Search(context.Background(), "content", Options{})
	require.NoError(t, err)

	// The slow side timed out; the fast side's results still arrived.
	assert.True(t, resp.Degraded)
	assert.True(t, resp.VectorUsed)
	assert.NotEmpty(t, resp.Results)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSearchGroupsChunksByDocument(t *testing.T) {
	engine, vector, keyword, embedder := newTestEngine(t)
	ctx := context.Background()

	// One doc with several chunks all matching the query.
	texts := []string{
		"kubernetes pod scheduling part one",
		"kubernetes pod scheduling part two",
		"kubernetes pod scheduling part three",
	}
	chunks := make([]*store.IndexChunk, len(texts))
	for i, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		chunks[i] = &store.IndexChunk{Index: i, Text: text, Vector: vec}
	}
	require.NoError(t, vector.UpsertChunks(ctx, "doc1", chunks))
	require.NoError(t, keyword.UpsertChunks(ctx, "doc1", chunks))

	resp, err := engine.Search(ctx, "kubernetes scheduling", Options{})
	require.NoError(t, err)

	// The doc appears once, not once per chunk.
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "doc1", resp.Results[0].DocID)
}

func TestSearchPerChunkKeepsEveryChunk(t *testing.T) {
	engine, vector, keyword, embedder := newTestEngine(t)
	ctx := context.Background()

	texts := []string{
		"terraform module layout part one",
		"terraform module layout part two",
		"terraform module layout part three",
	}
	chunks := make([]*store.IndexChunk, len(texts))
	for i, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		chunks[i] = &store.IndexChunk{Index: i, Text: text, Vector: vec}
	}
	require.NoError(t, vector.UpsertChunks(ctx, "doc1", chunks))
	require.NoError(t, keyword.UpsertChunks(ctx, "doc1", chunks))

	resp, err := engine.Search(ctx, "terraform module layout", Options{PerChunk: true})
	require.NoError(t, err)

	// Every matching chunk is its own row, ranked, same document.
	require.Len(t, resp.Results, 3)
	seen := map[int]bool{}
	for _, r := range resp.Results {
		assert.Equal(t, "doc1", r.DocID)
		assert.False(t, seen[r.ChunkIndex], "chunk %d appeared twice", r.ChunkIndex)
		seen[r.ChunkIndex] = true
	}
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}

	// The limit bounds chunks, not documents, in this mode.
	limited, err := engine.Search(ctx, "terraform module layout", Options{PerChunk: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited.Results, 2)
}

func TestSearchConfiguredWeights(t *testing.T) {
	ctx := context.Background()

	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	keyword, err := store.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { keyword.Close() })

	// docKW contains the query terms; docVec shares none of them, so
	// only the vector side can surface it.
	indexDoc(t, vector, keyword, embedder, "docKW", "zebra migration patterns across the savanna")
	indexDoc(t, vector, keyword, embedder, "docVec", "wildebeest herds crossing the river at dawn")

	kwHeavy := NewEngine(EngineConfig{
		Vector:   vector,
		Embedder: embedder,
		Keyword:  keyword,
		Weights:  Weights{Vector: 0, Keyword: 1},
	})
	vecHeavy := NewEngine(EngineConfig{
		Vector:   vector,
		Embedder: embedder,
		Keyword:  keyword,
		Weights:  Weights{Vector: 1, Keyword: 0.001},
	})

	score := func(resp *Response, docID string) (float64, bool) {
		for _, r := range resp.Results {
			if r.DocID == docID {
				return r.Score, true
			}
		}
		return 0, false
	}

	// With all weight on keywords, the keyword match leads and the
	// vector-only doc contributes nothing.
	kwResp, err := kwHeavy.Search(ctx, "zebra migration", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, kwResp.Results)
	assert.Equal(t, "docKW", kwResp.Results[0].DocID)
	if s, ok := score(kwResp, "docVec"); ok {
		assert.Zero(t, s)
	}

	// With the weight shifted to vectors, the vector-only doc scores.
	vecResp, err := vecHeavy.Search(ctx, "zebra migration", Options{})
	require.NoError(t, err)
	vecScore, ok := score(vecResp, "docVec")
	require.True(t, ok)
	assert.Positive(t, vecScore)
}
