// Package mcp exposes the stash over the Model Context Protocol so
// external clients can search it without linking the engine.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clipstash/clipstash/internal/search"
	"github.com/clipstash/clipstash/internal/service"
	"github.com/clipstash/clipstash/pkg/version"
)

// Server wraps the service facade behind MCP tools.
type Server struct {
	svc    *service.Service
	mcp    *mcp.Server
	logger *slog.Logger
}

// NewServer creates an MCP server over the service.
func NewServer(svc *service.Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}

	s := &Server{
		svc:    svc,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "clipstash",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search saved clips with hybrid retrieval: semantic similarity plus keyword matching, fused into one ranking. Returns the best matching documents with snippets.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stats",
		Description: "Report stash statistics: document and chunk counts, last update time, and whether the embedding model is available.",
	}, s.statsHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 2))
}

// searchHandler runs the search tool.
func (s *Server) searchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("query parameter is required")
	}

	resp, err := s.svc.HybridSearch(ctx, input.Query, search.Options{
		Limit:       input.Limit,
		KeywordOnly: input.KeywordOnly,
		PerChunk:    input.PerChunk,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Results:     make([]SearchResultItem, 0, len(resp.Results)),
		Degraded:    resp.Degraded,
		Unavailable: resp.Unavailable,
		DurationMS:  resp.Duration.Milliseconds(),
	}
	for _, res := range resp.Results {
		out.Results = append(out.Results, SearchResultItem{
			DocID:        res.DocID,
			ChunkIndex:   res.ChunkIndex,
			Title:        res.Title,
			Snippet:      res.Text,
			ContentType:  res.ContentType,
			Tags:         res.Tags,
			Score:        res.Score,
			MatchedTerms: res.MatchedTerms,
		})
	}
	return nil, out, nil
}

// statsHandler runs the stats tool.
func (s *Server) statsHandler(ctx context.Context, req *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	stats, err := s.svc.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}

	out := StatsOutput{
		TotalDocs:   stats.TotalDocs,
		TotalChunks: stats.TotalChunks,
		ModelLoaded: stats.ModelLoaded,
		EmbedModel:  stats.EmbedModel,
	}
	if !stats.LastUpdated.IsZero() {
		out.LastUpdated = stats.LastUpdated.UTC().Format(time.RFC3339)
	}
	return nil, out, nil
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
