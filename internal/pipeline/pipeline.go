// Package pipeline runs the indexing path: extract text from a clipped
// document, chunk it, embed the chunks, and replace the document's rows
// in both search indexes. Work is serialized per document ID and
// failures are recorded so the integrity scanner can retry them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clipstash/clipstash/internal/chunk"
	"github.com/clipstash/clipstash/internal/docstore"
	"github.com/clipstash/clipstash/internal/embed"
	clierrors "github.com/clipstash/clipstash/internal/errors"
	"github.com/clipstash/clipstash/internal/extract"
	"github.com/clipstash/clipstash/internal/store"
)

// upsertMaxRetries bounds retry attempts for transient index write
// failures before the document lands in the failure set.
const upsertMaxRetries = 3

// Result describes the outcome of indexing one document.
type Result struct {
	DocID      string
	ChunkCount int

	// NoContent is set when extraction yielded too little text to
	// index. The document stays in the store but has no index rows.
	NoContent bool
}

// Failure records why a document could not be indexed.
type Failure struct {
	DocID       string
	Code        string
	Attempts    int
	LastError   string
	LastAttempt time.Time
}

// Pipeline indexes documents into the vector and keyword indexes.
type Pipeline struct {
	docs     *docstore.Store
	vector   store.VectorIndex
	keyword  store.KeywordIndex
	embedder embed.Embedder
	registry *extract.Registry
	chunker  *chunk.Chunker
	locks    *docLocks

	mu        sync.Mutex
	failures  map[string]*Failure
	noContent map[string]struct{}
}

// Config carries the pipeline's dependencies. Vector may be nil when no
// embedder is available; the pipeline then maintains the keyword index
// only and search degrades accordingly.
type Config struct {
	Docs     *docstore.Store
	Vector   store.VectorIndex
	Keyword  store.KeywordIndex
	Embedder embed.Embedder
	Registry *extract.Registry
	Chunker  *chunk.Chunker
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if cfg.Keyword == nil {
		return nil, fmt.Errorf("keyword index is required")
	}
	if cfg.Vector != nil && cfg.Embedder == nil {
		return nil, fmt.Errorf("vector index requires an embedder")
	}
	if cfg.Registry == nil {
		cfg.Registry = extract.NewRegistry()
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunk.NewChunker(chunk.Options{})
	}

	return &Pipeline{
		docs:      cfg.Docs,
		vector:    cfg.Vector,
		keyword:   cfg.Keyword,
		embedder:  cfg.Embedder,
		registry:  cfg.Registry,
		chunker:   cfg.Chunker,
		locks:     newDocLocks(),
		failures:  make(map[string]*Failure),
		noContent: make(map[string]struct{}),
	}, nil
}

// IndexDocument stores the document and indexes its content. The store
// write happens first: even if indexing fails, the document is durable
// and the scanner will pick it up.
func (p *Pipeline) IndexDocument(ctx context.Context, doc *docstore.Document) (*Result, error) {
	if err := p.docs.Put(ctx, doc); err != nil {
		return nil, err
	}
	return p.index(ctx, doc)
}

// Reindex re-runs indexing for a stored document, typically on behalf
// of the integrity scanner.
func (p *Pipeline) Reindex(ctx context.Context, docID string) (*Result, error) {
	doc, err := p.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	return p.index(ctx, doc)
}

// Delete removes a document from the store and both indexes.
func (p *Pipeline) Delete(ctx context.Context, docID string) error {
	p.locks.lock(docID)
	defer p.locks.unlock(docID)

	if err := p.docs.Delete(ctx, docID); err != nil {
		return err
	}
	if p.vector != nil {
		if err := p.vector.Delete(ctx, docID); err != nil {
			return clierrors.IndexWriteFailed("delete from vector index", err)
		}
	}
	if err := p.keyword.Delete(ctx, docID); err != nil {
		return clierrors.IndexWriteFailed("delete from keyword index", err)
	}

	p.clearFailure(docID)
	p.clearNoContent(docID)
	slog.Info("document_deleted", slog.String("doc_id", docID))
	return nil
}

// index extracts, chunks, embeds, and upserts one document. Holding the
// per-document lock for the whole sequence keeps replace atomic with
// respect to other writers of the same document.
func (p *Pipeline) index(ctx context.Context, doc *docstore.Document) (*Result, error) {
	p.locks.lock(doc.ID)
	defer p.locks.unlock(doc.ID)

	started := time.Now()

	extracted, err := p.registry.Extract(ctx, doc.ContentType, doc.Content)
	if err != nil {
		if clierrors.GetCode(err) == clierrors.ErrCodeNoContent {
			return p.handleNoContent(ctx, doc.ID)
		}
		p.recordFailure(doc.ID, err)
		return nil, err
	}

	chunks := p.chunker.Split(extracted.Text)
	if len(chunks) == 0 {
		return p.handleNoContent(ctx, doc.ID)
	}

	title := doc.Title
	if title == "" {
		title = extracted.Title
	}
	meta := store.ChunkMeta{
		Title:       title,
		ContentType: doc.ContentType,
		Tags:        doc.Tags,
		CreatedAt:   doc.CreatedAt,
	}

	indexChunks := make([]*store.IndexChunk, len(chunks))
	for i, c := range chunks {
		indexChunks[i] = &store.IndexChunk{
			Index: c.Index,
			Text:  c.Text,
			Meta:  meta,
		}
	}

	// Embedding is all-or-nothing: a document is either fully in the
	// vector index or absent from it, never half-embedded.
	if p.vector != nil {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			wrapped := clierrors.EmbeddingUnavailable(
				fmt.Sprintf("embed %d chunks of %s", len(chunks), doc.ID), err)
			p.recordFailure(doc.ID, wrapped)
			return nil, wrapped
		}
		for i, vec := range vectors {
			indexChunks[i].Vector = vec
		}

		if err := p.upsertWithRetry(ctx, doc.ID, indexChunks, true); err != nil {
			p.recordFailure(doc.ID, err)
			return nil, err
		}
	}

	if err := p.upsertWithRetry(ctx, doc.ID, indexChunks, false); err != nil {
		p.recordFailure(doc.ID, err)
		return nil, err
	}

	p.clearFailure(doc.ID)
	p.clearNoContent(doc.ID)
	slog.Info("document_indexed",
		slog.String("doc_id", doc.ID),
		slog.Int("chunks", len(chunks)),
		slog.Duration("duration", time.Since(started)))

	return &Result{DocID: doc.ID, ChunkCount: len(chunks)}, nil
}

// handleNoContent clears any stale index rows for a document whose
// content no longer produces chunks. Success, not failure: the edge
// covers clips that shrink below the indexable minimum.
func (p *Pipeline) handleNoContent(ctx context.Context, docID string) (*Result, error) {
	if p.vector != nil {
		if err := p.vector.Delete(ctx, docID); err != nil {
			wrapped := clierrors.IndexWriteFailed("clear vector rows", err)
			p.recordFailure(docID, wrapped)
			return nil, wrapped
		}
	}
	if err := p.keyword.Delete(ctx, docID); err != nil {
		wrapped := clierrors.IndexWriteFailed("clear keyword rows", err)
		p.recordFailure(docID, wrapped)
		return nil, wrapped
	}

	p.clearFailure(docID)
	p.markNoContent(docID)
	slog.Info("document_no_content", slog.String("doc_id", docID))
	return &Result{DocID: docID, NoContent: true}, nil
}

// upsertWithRetry writes chunks to one index, retrying transient
// failures with exponential backoff.
func (p *Pipeline) upsertWithRetry(ctx context.Context, docID string, chunks []*store.IndexChunk, toVector bool) error {
	operation := func() error {
		var err error
		if toVector {
			err = p.vector.UpsertChunks(ctx, docID, chunks)
		} else {
			err = p.keyword.UpsertChunks(ctx, docID, chunks)
		}
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), upsertMaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		target := "keyword"
		if toVector {
			target = "vector"
		}
		return clierrors.IndexWriteFailed(
			fmt.Sprintf("upsert %d chunks of %s into %s index", len(chunks), docID, target), err)
	}
	return nil
}

// recordFailure notes a failed document for the scanner to retry.
func (p *Pipeline) recordFailure(docID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.failures[docID]
	if !ok {
		f = &Failure{DocID: docID}
		p.failures[docID] = f
	}
	f.Code = clierrors.GetCode(err)
	f.Attempts++
	f.LastError = err.Error()
	f.LastAttempt = time.Now()

	slog.Warn("indexing_failed",
		slog.String("doc_id", docID),
		slog.String("code", f.Code),
		slog.Int("attempts", f.Attempts),
		slog.String("error", f.LastError))
}

func (p *Pipeline) clearFailure(docID string) {
	p.mu.Lock()
	delete(p.failures, docID)
	p.mu.Unlock()
}

// markNoContent remembers that a document legitimately has no index
// rows, so the scanner does not treat its absence as missing coverage
// and reindex it forever.
func (p *Pipeline) markNoContent(docID string) {
	p.mu.Lock()
	p.noContent[docID] = struct{}{}
	p.mu.Unlock()
}

func (p *Pipeline) clearNoContent(docID string) {
	p.mu.Lock()
	delete(p.noContent, docID)
	p.mu.Unlock()
}

// IsNoContent reports whether the document's last indexing run yielded
// zero chunks.
func (p *Pipeline) IsNoContent(docID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.noContent[docID]
	return ok
}

// Failures returns a snapshot of documents whose last indexing attempt
// failed.
func (p *Pipeline) Failures() []*Failure {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Failure, 0, len(p.failures))
	for _, f := range p.failures {
		copied := *f
		out = append(out, &copied)
	}
	return out
}
