package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipstash/clipstash/internal/embed"
	clierrors "github.com/clipstash/clipstash/internal/errors"
	"github.com/clipstash/clipstash/internal/store"
)

// EngineConfig configures the search engine.
type EngineConfig struct {
	// Vector may be nil; the engine then runs keyword-only.
	Vector   store.VectorIndex
	Embedder embed.Embedder
	Keyword  store.KeywordIndex

	// OverFetchFactor multiplies the chunk fetch size per side.
	OverFetchFactor int

	// SideTimeout bounds each sub-search independently. A side that
	// exceeds it is treated as failed; the other side still counts.
	SideTimeout time.Duration

	// RRFConstant overrides the fusion smoothing parameter.
	RRFConstant int

	// Weights sets the fusion weights for this engine. The zero value
	// falls back to DefaultWeights. Options.Weights still overrides
	// per query.
	Weights Weights
}

// Engine runs hybrid searches.
type Engine struct {
	vector   store.VectorIndex
	embedder embed.Embedder
	keyword  store.KeywordIndex
	fuser    *fuser

	overFetch   int
	sideTimeout time.Duration
	weights     Weights
}

// NewEngine creates a search engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = DefaultOverFetchFactor
	}
	if cfg.SideTimeout <= 0 {
		cfg.SideTimeout = DefaultSideTimeout
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}

	return &Engine{
		vector:      cfg.Vector,
		embedder:    cfg.Embedder,
		keyword:     cfg.Keyword,
		fuser:       newFuser(cfg.RRFConstant),
		overFetch:   cfg.OverFetchFactor,
		sideTimeout: cfg.SideTimeout,
		weights:     cfg.Weights,
	}
}

// Search runs both sub-searches in parallel, fuses the chunk rankings,
// and collapses them to a document ranking, or keeps the chunk
// granularity when Options.PerChunk is set.
//
// Degradation is graceful and explicit: one failed side yields results
// from the other with Degraded set; two failed sides yield an empty
// response with Unavailable set rather than an error, so callers can
// distinguish "nothing matched" from "search is down".
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, clierrors.New(clierrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	weights := e.weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	started := time.Now()
	fetchK := limit * e.overFetch

	vectorWanted := !opts.KeywordOnly && e.vectorEnabled()
	keywordWanted := opts.KeywordOnly || !opts.VectorOnly

	vecHits, kwHits, vecErr, kwErr := e.parallelSearch(ctx, query, fetchK, vectorWanted, keywordWanted)
	if ctx.Err() != nil {
		return nil, clierrors.SearchTimeout("search cancelled", ctx.Err())
	}

	resp := &Response{
		VectorUsed:  vectorWanted && vecErr == nil,
		KeywordUsed: keywordWanted && kwErr == nil,
		Duration:    time.Since(started),
	}

	vectorFailed := vectorWanted && vecErr != nil
	keywordFailed := keywordWanted && kwErr != nil
	if vectorFailed {
		slog.Warn("vector_search_failed", slog.String("error", vecErr.Error()))
	}
	if keywordFailed {
		slog.Warn("keyword_search_failed", slog.String("error", kwErr.Error()))
	}

	if !resp.VectorUsed && !resp.KeywordUsed {
		resp.Unavailable = true
		resp.Results = []*Result{}
		return resp, nil
	}
	if vectorFailed || keywordFailed {
		resp.Degraded = true
	}

	fused := e.fuser.fuse(vecHits, kwHits, weights)
	rows := groupByDoc(fused, limit)
	if opts.PerChunk {
		rows = topChunks(fused, limit)
	}

	results := make([]*Result, 0, len(rows))
	for _, c := range rows {
		results = append(results, &Result{
			DocID:            c.docID,
			ChunkIndex:       c.chunkIndex,
			Text:             c.text,
			Title:            c.meta.Title,
			ContentType:      c.meta.ContentType,
			Tags:             c.meta.Tags,
			Score:            c.rrfScore,
			VectorSimilarity: c.vecScore,
			KeywordScore:     c.kwScore,
			MatchedTerms:     c.matchedTerms,
			InBoth:           c.inBoth,
		})
	}
	resp.Results = results
	resp.Duration = time.Since(started)

	slog.Debug("search_completed",
		slog.String("query", query),
		slog.Int("results", len(results)),
		slog.Bool("degraded", resp.Degraded),
		slog.Duration("duration", resp.Duration))

	return resp, nil
}

// parallelSearch runs the two sides concurrently. Neither side's
// failure cancels the other; each gets its own timeout.
func (e *Engine) parallelSearch(ctx context.Context, query string, k int, vectorWanted, keywordWanted bool) (
	vecHits []*store.VectorHit,
	kwHits []*store.KeywordHit,
	vecErr error,
	kwErr error,
) {
	g := &errgroup.Group{}

	if vectorWanted {
		g.Go(func() error {
			sideCtx, cancel := context.WithTimeout(ctx, e.sideTimeout)
			defer cancel()

			embedding, err := e.embedder.Embed(sideCtx, query)
			if err != nil {
				vecErr = clierrors.EmbeddingUnavailable("embed query", err)
				return nil
			}

			hits, err := e.vector.Search(sideCtx, embedding, k)
			if err != nil {
				if sideCtx.Err() != nil {
					vecErr = clierrors.SearchTimeout("vector search", err)
				} else {
					vecErr = clierrors.IndexUnavailable("vector search", err)
				}
				return nil
			}
			vecHits = hits
			return nil
		})
	}

	if keywordWanted {
		g.Go(func() error {
			sideCtx, cancel := context.WithTimeout(ctx, e.sideTimeout)
			defer cancel()

			hits, err := e.keyword.Search(sideCtx, query, k)
			if err != nil {
				if sideCtx.Err() != nil {
					kwErr = clierrors.SearchTimeout("keyword search", err)
				} else {
					kwErr = clierrors.IndexUnavailable("keyword search", err)
				}
				return nil
			}
			kwHits = hits
			return nil
		})
	}

	_ = g.Wait()
	return vecHits, kwHits, vecErr, kwErr
}

func (e *Engine) vectorEnabled() bool {
	return e.vector != nil && e.embedder != nil
}
