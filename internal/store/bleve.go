package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	// ClipTokenizerName is the registered name of the alphanumeric tokenizer.
	ClipTokenizerName = "clip_tokenizer"

	// ClipAnalyzerName is the registered name of the clip text analyzer.
	ClipAnalyzerName = "clip_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(ClipTokenizerName, clipTokenizerConstructor)
}

// BleveIndex implements KeywordIndex using Bleve v2 with BM25 scoring.
// Tokenization is the single rule in Tokenize: lowercase alphanumeric
// runs, applied identically at index and query time.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// keywordDoc is the document shape stored in Bleve, one per chunk.
type keywordDoc struct {
	DocID       string   `json:"doc_id"`
	Text        string   `json:"text"`
	Title       string   `json:"title"`
	ContentType string   `json:"content_type"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
}

// NewBleveIndex creates a new keyword index.
// If path is empty, creates an in-memory index (used in tests).
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create directory: %w", mkErr)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil {
			// A keyword index is rebuildable from the document store, so
			// clearing a corrupt one is always safe.
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted and cannot clear: %w (original: %v)", removeErr, err)
			}
			slog.Info("keyword_index_cleared", slog.String("path", path))
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open keyword index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

// createIndexMapping builds the Bleve mapping: the text field uses the
// clip analyzer, identifier fields use the keyword analyzer.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(ClipAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     ClipTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = ClipAnalyzerName
	textField.Store = true

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true

	storedField := bleve.NewTextFieldMapping()
	storedField.Analyzer = keyword.Name
	storedField.Store = true
	storedField.Index = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("doc_id", idField)
	docMapping.AddFieldMappingsAt("title", storedField)
	docMapping.AddFieldMappingsAt("content_type", storedField)
	docMapping.AddFieldMappingsAt("tags", storedField)
	docMapping.AddFieldMappingsAt("created_at", storedField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = ClipAnalyzerName

	return indexMapping, nil
}

// UpsertChunks replaces all rows for docID with the given chunk set.
// Deletes and inserts go through one Bleve batch: delete-then-insert.
func (b *BleveIndex) UpsertChunks(ctx context.Context, docID string, chunks []*IndexChunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}
	if docID == "" {
		return fmt.Errorf("docID must not be empty")
	}

	existing, err := b.chunkKeysLocked(ctx, docID)
	if err != nil {
		return fmt.Errorf("lookup existing chunks: %w", err)
	}

	batch := b.index.NewBatch()
	for _, key := range existing {
		batch.Delete(key)
	}

	for _, c := range chunks {
		doc := keywordDoc{
			DocID:       docID,
			Text:        c.Text,
			Title:       c.Meta.Title,
			ContentType: c.Meta.ContentType,
			Tags:        c.Meta.Tags,
			CreatedAt:   c.Meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := batch.Index(ChunkKey(docID, c.Index), doc); err != nil {
			return fmt.Errorf("index chunk %d of %s: %w", c.Index, docID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search returns chunks matching the query, ranked by BM25.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, k int) ([]*KeywordHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(queryStr) == "" || k <= 0 {
		return []*KeywordHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("text")
	matchQuery.Analyzer = ClipAnalyzerName

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = k
	req.Fields = []string{"doc_id", "text", "title", "content_type", "tags", "created_at"}
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]*KeywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		docID, chunkIndex, err := ParseChunkKey(hit.ID)
		if err != nil {
			slog.Warn("skipping malformed chunk key",
				slog.String("key", hit.ID),
				slog.String("error", err.Error()))
			continue
		}

		hits = append(hits, &KeywordHit{
			DocID:        docID,
			ChunkIndex:   chunkIndex,
			Text:         fieldString(hit, "text"),
			Meta:         metaFromFields(hit),
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return hits, nil
}

// Delete removes all rows for a document.
// Idempotent: deleting a non-existent docID is a no-op.
func (b *BleveIndex) Delete(ctx context.Context, docID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	keys, err := b.chunkKeysLocked(ctx, docID)
	if err != nil {
		return fmt.Errorf("lookup chunks for delete: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	batch := b.index.NewBatch()
	for _, key := range keys {
		batch.Delete(key)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// CheckMissing returns the subset of ids with zero indexed chunks.
func (b *BleveIndex) CheckMissing(ctx context.Context, ids []string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}

	missing := make([]string, 0)
	for _, id := range ids {
		keys, err := b.chunkKeysLocked(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ChunkCount returns the total number of indexed chunks.
func (b *BleveIndex) ChunkCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	count, _ := b.index.DocCount()
	return int(count)
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// chunkKeysLocked returns the chunk keys currently stored for docID.
// Callers must hold at least the read lock.
func (b *BleveIndex) chunkKeysLocked(ctx context.Context, docID string) ([]string, error) {
	termQuery := bleve.NewTermQuery(docID)
	termQuery.SetField("doc_id")

	count, _ := b.index.DocCount()
	req := bleve.NewSearchRequest(termQuery)
	req.Size = int(count) + 1
	req.Fields = []string{}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		keys = append(keys, hit.ID)
	}
	return keys, nil
}

// fieldString extracts a stored string field from a hit.
func fieldString(hit *search.DocumentMatch, field string) string {
	if v, ok := hit.Fields[field].(string); ok {
		return v
	}
	return ""
}

// metaFromFields rebuilds ChunkMeta from stored fields.
func metaFromFields(hit *search.DocumentMatch) ChunkMeta {
	meta := ChunkMeta{
		Title:       fieldString(hit, "title"),
		ContentType: fieldString(hit, "content_type"),
	}

	// Bleve returns multi-valued fields as []interface{} and
	// single-valued ones as plain strings.
	switch tags := hit.Fields["tags"].(type) {
	case string:
		if tags != "" {
			meta.Tags = []string{tags}
		}
	case []interface{}:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				meta.Tags = append(meta.Tags, s)
			}
		}
	}

	if raw := fieldString(hit, "created_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			meta.CreatedAt = ts
		}
	}
	return meta
}

// extractMatchedTerms extracts matched terms from a search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "text" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

var _ KeywordIndex = (*BleveIndex)(nil)

// clipTokenizerConstructor creates the alphanumeric tokenizer for Bleve.
func clipTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &clipTokenizer{}, nil
}

// clipTokenizer implements analysis.Tokenizer over the Tokenize rule.
type clipTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *clipTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	matches := tokenRegex.FindAllStringIndex(text, -1)

	result := make(analysis.TokenStream, 0, len(matches))
	for i, m := range matches {
		result = append(result, &analysis.Token{
			Term:     []byte(text[m[0]:m[1]]),
			Start:    m[0],
			End:      m[1],
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return result
}
