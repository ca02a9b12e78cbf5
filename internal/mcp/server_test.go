package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/clipstash/internal/config"
	"github.com/clipstash/clipstash/internal/docstore"
	"github.com/clipstash/clipstash/internal/service"
)

func newTestServer(t *testing.T) (*Server, *service.Service) {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Paths.DataDir = ""
	cfg.Embeddings.Provider = "static"

	svc, err := service.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	srv, err := NewServer(svc)
	require.NoError(t, err)
	return srv, svc
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(nil)
	require.Error(t, err)
}

func TestSearchTool(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	_, err := svc.IndexDocument(ctx, &docstore.Document{
		ID:          "doc1",
		Title:       "Grafana dashboards",
		Content:     []byte("grafana dashboard json model for prometheus metrics"),
		ContentType: "text/plain",
		Tags:        []string{"observability"},
	})
	require.NoError(t, err)

	_, out, err := srv.searchHandler(ctx, nil, SearchInput{Query: "grafana prometheus"})
	require.NoError(t, err)

	require.NotEmpty(t, out.Results)
	top := out.Results[0]
	assert.Equal(t, "doc1", top.DocID)
	assert.Equal(t, "Grafana dashboards", top.Title)
	assert.Contains(t, top.Snippet, "grafana")
	assert.Equal(t, []string{"observability"}, top.Tags)
	assert.False(t, out.Unavailable)
	assert.False(t, out.Degraded)
}

func TestSearchToolRequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{})
	require.Error(t, err)
}

func TestSearchToolKeywordOnly(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	_, err := svc.IndexDocument(ctx, &docstore.Document{
		ID:      "doc1",
		Content: []byte("nginx reverse proxy configuration"),
	})
	require.NoError(t, err)

	_, out, err := srv.searchHandler(ctx, nil, SearchInput{Query: "nginx", KeywordOnly: true})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Contains(t, out.Results[0].MatchedTerms, "nginx")
}

func TestSearchToolPerChunk(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	para := "terraform state locking with a dynamodb table prevents concurrent applies. "
	_, err := svc.IndexDocument(ctx, &docstore.Document{
		ID:      "doc1",
		Content: []byte(strings.Repeat(para, 40)),
	})
	require.NoError(t, err)

	_, out, err := srv.searchHandler(ctx, nil, SearchInput{Query: "terraform state locking", PerChunk: true})
	require.NoError(t, err)
	require.Greater(t, len(out.Results), 1)

	seen := make(map[int]bool)
	for _, res := range out.Results {
		assert.Equal(t, "doc1", res.DocID)
		assert.False(t, seen[res.ChunkIndex], "chunk %d returned twice", res.ChunkIndex)
		seen[res.ChunkIndex] = true
	}
}

func TestStatsTool(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	_, out, err := srv.statsHandler(ctx, nil, StatsInput{})
	require.NoError(t, err)
	assert.Zero(t, out.TotalDocs)
	assert.True(t, out.ModelLoaded)
	assert.Empty(t, out.LastUpdated)

	_, err = svc.IndexDocument(ctx, &docstore.Document{
		ID:      "doc1",
		Content: []byte("some stored clip content"),
	})
	require.NoError(t, err)

	_, out, err = srv.statsHandler(ctx, nil, StatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalDocs)
	assert.Positive(t, out.TotalChunks)
	assert.NotEmpty(t, out.LastUpdated)
}
