// Package service wires the document store, both indexes, the indexing
// pipeline, the search engine, and the integrity scanner into one
// facade. Everything above it (CLI, MCP server) talks only to this
// package.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/clipstash/clipstash/internal/chunk"
	"github.com/clipstash/clipstash/internal/config"
	"github.com/clipstash/clipstash/internal/docstore"
	"github.com/clipstash/clipstash/internal/embed"
	clierrors "github.com/clipstash/clipstash/internal/errors"
	"github.com/clipstash/clipstash/internal/pipeline"
	"github.com/clipstash/clipstash/internal/scanner"
	"github.com/clipstash/clipstash/internal/search"
	"github.com/clipstash/clipstash/internal/store"
	"github.com/clipstash/clipstash/internal/watcher"
)

const (
	lockFileName    = ".clipstash.lock"
	documentsDBName = "documents.db"
	vectorIndexName = "vector.hnsw"
	keywordIndexDir = "keyword.bleve"
)

// Stats summarizes the state of the stash.
type Stats struct {
	TotalDocs    int       `json:"total_docs"`
	TotalChunks  int       `json:"total_chunks"`
	LastUpdated  time.Time `json:"last_updated"`
	ModelLoaded  bool      `json:"model_loaded"`
	EmbedModel   string    `json:"embed_model,omitempty"`
	VectorChunks int       `json:"vector_chunks"`
}

// Service owns all components for the lifetime of a process.
type Service struct {
	cfg *config.Config

	docs     *docstore.Store
	vector   *store.HNSWIndex // nil in keyword-only mode
	keyword  *store.BleveIndex
	embedder embed.Embedder // nil in keyword-only mode
	pipeline *pipeline.Pipeline
	engine   *search.Engine
	scanner  *scanner.Scanner
	watcher  *watcher.DropWatcher // nil unless configured

	lock *flock.Flock // nil for in-memory mode

	mu     sync.Mutex
	closed bool
}

// Open builds the full stack from configuration. An empty DataDir runs
// everything in memory, used in tests.
//
// When the embedding provider is unreachable the service opens in
// keyword-only mode rather than failing: documents index into the
// keyword side and searches degrade, exactly as they do when the
// provider dies later at runtime.
func Open(ctx context.Context, cfg *config.Config) (*Service, error) {
	s := &Service{cfg: cfg}

	dataDir := cfg.Paths.DataDir
	var docsPath, vectorPath, keywordPath string
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		if err := s.acquireLock(dataDir); err != nil {
			return nil, err
		}
		docsPath = filepath.Join(dataDir, documentsDBName)
		vectorPath = filepath.Join(dataDir, vectorIndexName)
		keywordPath = filepath.Join(dataDir, keywordIndexDir)
	}

	docs, err := docstore.Open(docsPath)
	if err != nil {
		s.releaseLock()
		return nil, err
	}
	s.docs = docs

	keyword, err := store.NewBleveIndex(keywordPath)
	if err != nil {
		s.closePartial()
		return nil, err
	}
	s.keyword = keyword

	s.openVectorSide(ctx, vectorPath)

	pipe, err := pipeline.New(pipeline.Config{
		Docs:     s.docs,
		Vector:   vectorOrNil(s.vector),
		Keyword:  s.keyword,
		Embedder: s.embedder,
		Chunker: chunk.NewChunker(chunk.Options{
			TargetChars:  cfg.Chunking.TargetChars,
			OverlapChars: cfg.Chunking.OverlapChars,
			MaxChars:     cfg.Chunking.MaxChars,
		}),
	})
	if err != nil {
		s.closePartial()
		return nil, err
	}
	s.pipeline = pipe

	s.engine = search.NewEngine(search.EngineConfig{
		Vector:          vectorOrNil(s.vector),
		Embedder:        s.embedder,
		Keyword:         s.keyword,
		OverFetchFactor: cfg.Search.OverFetchFactor,
		SideTimeout:     config.Duration(cfg.Search.SideTimeout, search.DefaultSideTimeout),
		RRFConstant:     cfg.Search.RRFConstant,
		Weights: search.Weights{
			Vector:  cfg.Search.VectorWeight,
			Keyword: cfg.Search.KeywordWeight,
		},
	})

	scan, err := scanner.New(scanner.Config{
		Docs:        s.docs,
		Vector:      vectorOrNil(s.vector),
		Keyword:     s.keyword,
		Pipeline:    s.pipeline,
		Interval:    config.Duration(cfg.Scanner.Interval, scanner.DefaultInterval),
		SettleDelay: config.Duration(cfg.Scanner.SettleDelay, scanner.DefaultSettleDelay),
		BatchSize:   cfg.Scanner.BatchSize,
		PurgeAfter:  config.Duration(cfg.Scanner.PurgeAfter, scanner.DefaultPurgeAfter),
	})
	if err != nil {
		s.closePartial()
		return nil, err
	}
	s.scanner = scan

	// The scanner's settle tracking feeds off the docstore change feed
	// rather than explicit calls at every write site. The goroutine
	// exits when Close closes the store.
	go func() {
		for range docs.Events() {
			scan.NoteWrite()
		}
	}()

	if cfg.Watcher.Enabled && cfg.Paths.DropFolder != "" {
		dw, err := watcher.NewDropWatcher(cfg.Paths.DropFolder, s.pipeline, watcher.Options{
			DebounceWindow: config.Duration(cfg.Watcher.DebounceWindow, 200*time.Millisecond),
			Extensions:     cfg.Watcher.Extensions,
		})
		if err != nil {
			s.closePartial()
			return nil, err
		}
		s.watcher = dw
	}

	slog.Info("service_opened",
		slog.String("data_dir", dataDir),
		slog.Bool("vector_enabled", s.vector != nil),
		slog.Bool("watcher_enabled", s.watcher != nil),
	)
	return s, nil
}

// acquireLock takes the single-writer data dir lock without blocking.
func (s *Service) acquireLock(dataDir string) error {
	lock := flock.New(filepath.Join(dataDir, lockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !acquired {
		return clierrors.New(clierrors.ErrCodeStoreLocked,
			fmt.Sprintf("data directory %s is in use by another process", dataDir), nil)
	}
	s.lock = lock
	return nil
}

func (s *Service) releaseLock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
		s.lock = nil
	}
}

// openVectorSide builds the embedder and vector index. Failures leave
// the service in keyword-only mode; they never abort Open.
func (s *Service) openVectorSide(ctx context.Context, vectorPath string) {
	embedder, err := embed.NewEmbedder(ctx, embed.FactoryConfig{
		Provider: embed.ProviderType(s.cfg.Embeddings.Provider),
		Ollama: embed.OllamaConfig{
			Host:       s.cfg.Embeddings.OllamaHost,
			Model:      s.cfg.Embeddings.Model,
			Dimensions: s.cfg.Embeddings.Dimensions,
			BatchSize:  s.cfg.Embeddings.BatchSize,
		},
		CacheSize: s.cfg.Embeddings.CacheSize,
	})
	if err != nil {
		slog.Warn("embedder_unavailable_keyword_only",
			slog.String("provider", s.cfg.Embeddings.Provider),
			slog.String("error", err.Error()),
		)
		return
	}
	s.embedder = embedder

	vector, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embedder.Dimensions()))
	if err != nil {
		slog.Warn("vector_index_unavailable_keyword_only", slog.String("error", err.Error()))
		_ = embedder.Close()
		s.embedder = nil
		return
	}

	if vectorPath != "" {
		if _, statErr := os.Stat(vectorPath); statErr == nil {
			if err := vector.Load(vectorPath); err != nil {
				// A corrupt snapshot is recoverable: start empty and
				// let the integrity scanner rebuild from the store.
				slog.Warn("vector_index_load_failed_rebuilding", slog.String("error", err.Error()))
				fresh, freshErr := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embedder.Dimensions()))
				if freshErr != nil {
					_ = embedder.Close()
					s.embedder = nil
					return
				}
				vector = fresh
			}
		}
	}
	s.vector = vector
}

// vectorOrNil avoids handing a typed nil to interface fields.
func vectorOrNil(v *store.HNSWIndex) store.VectorIndex {
	if v == nil {
		return nil
	}
	return v
}

// IndexDocument indexes one document end to end. A document without an
// ID gets a generated one; the stored document is returned via the
// result's DocID.
func (s *Service) IndexDocument(ctx context.Context, doc *docstore.Document) (*pipeline.Result, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	return s.pipeline.IndexDocument(ctx, doc)
}

// BatchItem reports the outcome for one document of a batch.
type BatchItem struct {
	DocID string
	Err   error
}

// BatchResult summarizes an IndexBatch call.
type BatchResult struct {
	Indexed   int
	NoContent int
	Failed    []BatchItem
}

// IndexBatch indexes documents concurrently. Per-document failures are
// collected, not raised; the batch always runs to completion.
func (s *Service) IndexBatch(ctx context.Context, docs []*docstore.Document) *BatchResult {
	result := &BatchResult{}
	var mu sync.Mutex

	workers := newBatchGroup(ctx)
	for _, doc := range docs {
		workers.Go(func() error {
			res, err := s.IndexDocument(ctx, doc)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed = append(result.Failed, BatchItem{DocID: doc.ID, Err: err})
			case res.NoContent:
				result.NoContent++
			default:
				result.Indexed++
			}
			return nil
		})
	}
	_ = workers.Wait()
	return result
}

// DeleteFromIndex removes a document from the store and both indexes.
func (s *Service) DeleteFromIndex(ctx context.Context, docID string) error {
	return s.pipeline.Delete(ctx, docID)
}

// Search runs a vector-only search.
func (s *Service) Search(ctx context.Context, query string, opts search.Options) (*search.Response, error) {
	opts.VectorOnly = true
	opts.KeywordOnly = false
	return s.engine.Search(ctx, query, opts)
}

// HybridSearch runs the fused vector plus keyword search.
func (s *Service) HybridSearch(ctx context.Context, query string, opts search.Options) (*search.Response, error) {
	return s.engine.Search(ctx, query, opts)
}

// CheckMissing diffs the authoritative document list against each
// index and returns the IDs each side is missing. Documents that
// legitimately have no chunks are not reported.
func (s *Service) CheckMissing(ctx context.Context) (missingVector, missingKeyword []string, err error) {
	ids, err := s.docs.ListIDs(ctx)
	if err != nil {
		return nil, nil, err
	}

	if s.vector != nil {
		missingVector, err = s.vector.CheckMissing(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
	}
	missingKeyword, err = s.keyword.CheckMissing(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	drop := func(ids []string) []string {
		out := ids[:0]
		for _, id := range ids {
			if !s.pipeline.IsNoContent(id) {
				out = append(out, id)
			}
		}
		return out
	}
	return drop(missingVector), drop(missingKeyword), nil
}

// Scan runs one integrity scan now.
func (s *Service) Scan(ctx context.Context) (*scanner.Report, error) {
	return s.scanner.Scan(ctx)
}

// StartBackground starts the periodic scanner and, when configured,
// the drop folder watcher.
func (s *Service) StartBackground(ctx context.Context) error {
	s.scanner.Start(ctx)
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports the current state of the stash.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.docs.Count(ctx)
	if err != nil {
		return nil, err
	}
	lastUpdated, err := s.docs.LastUpdated(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalDocs:   total,
		TotalChunks: s.keyword.ChunkCount(),
		LastUpdated: lastUpdated,
		ModelLoaded: s.embedder != nil,
	}
	if s.embedder != nil {
		stats.EmbedModel = s.embedder.ModelName()
	}
	if s.vector != nil {
		stats.VectorChunks = s.vector.ChunkCount()
	}
	return stats, nil
}

// Pipeline exposes the indexing pipeline for components that feed it
// directly.
func (s *Service) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// NewCoalescer returns a latest-wins search coalescer bound to the
// hybrid engine, for interactive search-as-you-type callers.
func (s *Service) NewCoalescer() *search.Coalescer {
	return search.NewCoalescer(s.engine,
		config.Duration(s.cfg.Search.Debounce, search.DefaultDebounce))
}

// Close stops background work, saves the vector index, and releases
// everything. Safe to call once.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.scanner != nil {
		s.scanner.Stop()
	}

	var firstErr error
	if s.vector != nil && s.cfg.Paths.DataDir != "" {
		path := filepath.Join(s.cfg.Paths.DataDir, vectorIndexName)
		if err := s.vector.Save(path); err != nil {
			slog.Error("vector_index_save_failed", slog.String("error", err.Error()))
			firstErr = err
		}
	}
	s.closePartial()
	return firstErr
}

// closePartial tears down whatever has been opened so far.
func (s *Service) closePartial() {
	if s.vector != nil {
		_ = s.vector.Close()
		s.vector = nil
	}
	if s.keyword != nil {
		_ = s.keyword.Close()
		s.keyword = nil
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
		s.embedder = nil
	}
	if s.docs != nil {
		_ = s.docs.Close()
		s.docs = nil
	}
	s.releaseLock()
}
