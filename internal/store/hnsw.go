package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex using the coder/hnsw pure Go HNSW
// graph. Similarity metric is cosine, fixed: scores from this index are
// only comparable within it, which is all RRF fusion requires.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	// records maps graph keys to chunk payloads. A graph node without a
	// record is an orphan left behind by lazy deletion and is skipped
	// during search.
	records map[uint64]*vectorRecord
	// docKeys maps docID to the graph keys of its current chunk set,
	// in chunk order.
	docKeys map[string][]uint64
	nextKey uint64
	orphans int

	closed bool
}

type vectorRecord struct {
	DocID      string
	ChunkIndex int
	Text       string
	Meta       ChunkMeta
}

// hnswMetadata stores records and key mappings for persistence.
type hnswMetadata struct {
	Records map[uint64]*vectorRecord
	DocKeys map[string][]uint64
	NextKey uint64
	Orphans int
	Config  VectorIndexConfig
}

// NewHNSWIndex creates a new HNSW-based vector index.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:   graph,
		config:  cfg,
		records: make(map[uint64]*vectorRecord),
		docKeys: make(map[string][]uint64),
	}, nil
}

// UpsertChunks replaces all vectors for docID with the given set.
// Existing rows for the document are removed first, so a reader never
// observes chunks from two indexing generations mixed together.
func (s *HNSWIndex) UpsertChunks(ctx context.Context, docID string, chunks []*IndexChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	if docID == "" {
		return fmt.Errorf("docID must not be empty")
	}

	for _, c := range chunks {
		if len(c.Vector) != s.config.Dimensions {
			return ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(c.Vector),
			}
		}
	}

	// Delete first: lazy removal of the prior generation.
	s.deleteLocked(docID)

	keys := make([]uint64, 0, len(chunks))
	for _, c := range chunks {
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.records[key] = &vectorRecord{
			DocID:      docID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Meta:       c.Meta,
		}
		keys = append(keys, key)
	}

	if len(keys) > 0 {
		s.docKeys[docID] = keys
	}

	return nil
}

// Search finds the k nearest chunks by cosine similarity.
// Ties are broken by insertion order (lower graph key first).
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Over-search by the orphan count so lazily deleted nodes cannot
	// crowd live ones out of the result set.
	nodes := s.graph.Search(normalized, k+s.orphans)

	type scored struct {
		key uint64
		rec *vectorRecord
		sim float32
	}
	hits := make([]scored, 0, len(nodes))
	for _, node := range nodes {
		rec, ok := s.records[node.Key]
		if !ok {
			continue // orphan
		}
		distance := s.graph.Distance(normalized, node.Value)
		hits = append(hits, scored{
			key: node.Key,
			rec: rec,
			// Cosine distance ranges 0-2; map to similarity 0-1.
			sim: 1.0 - distance/2.0,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].sim != hits[j].sim {
			return hits[i].sim > hits[j].sim
		}
		return hits[i].key < hits[j].key
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]*VectorHit, 0, len(hits))
	for _, h := range hits {
		results = append(results, &VectorHit{
			DocID:      h.rec.DocID,
			ChunkIndex: h.rec.ChunkIndex,
			Text:       h.rec.Text,
			Meta:       h.rec.Meta,
			Similarity: h.sim,
		})
	}

	return results, nil
}

// Delete removes all chunk vectors for a document.
// Idempotent: deleting a non-existent docID is a no-op.
func (s *HNSWIndex) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	s.deleteLocked(docID)
	return nil
}

// deleteLocked lazily deletes a document's chunks: the nodes stay in
// the graph but lose their records, so they are skipped in results.
// Callers must hold the write lock.
func (s *HNSWIndex) deleteLocked(docID string) {
	keys, ok := s.docKeys[docID]
	if !ok {
		return
	}
	for _, key := range keys {
		delete(s.records, key)
		s.orphans++
	}
	delete(s.docKeys, docID)
}

// CheckMissing returns the subset of ids that have zero indexed vectors.
func (s *HNSWIndex) CheckMissing(ctx context.Context, ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}

	missing := make([]string, 0)
	for _, id := range ids {
		if len(s.docKeys[id]) == 0 {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// DocCount returns the number of documents with at least one vector.
func (s *HNSWIndex) DocCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docKeys)
}

// ChunkCount returns the total number of live chunk vectors.
func (s *HNSWIndex) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Save persists the index to disk using atomic tmp+rename writes.
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		Records: s.records,
		DocKeys: s.docKeys,
		NextKey: s.nextKey,
		Orphans: s.orphans,
		Config:  s.config,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load loads the index from disk.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.records = meta.Records
	s.docKeys = meta.DocKeys
	s.nextKey = meta.NextKey
	s.orphans = meta.Orphans
	s.config = meta.Config
	return nil
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorIndex = (*HNSWIndex)(nil)

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
