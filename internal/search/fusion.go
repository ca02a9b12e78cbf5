package search

import (
	"sort"

	"github.com/clipstash/clipstash/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// the value validated across domains and used by the major hybrid
// search engines.
const DefaultRRFConstant = 60

// fusedChunk is one chunk after RRF fusion.
type fusedChunk struct {
	key          string
	docID        string
	chunkIndex   int
	text         string
	meta         store.ChunkMeta
	rrfScore     float64
	vecScore     float64
	vecRank      int // 1-indexed, 0 if absent
	kwScore      float64
	kwRank       int // 1-indexed, 0 if absent
	inBoth       bool
	matchedTerms []string
}

// fuser combines the two ranked chunk lists with Reciprocal Rank
// Fusion: score(c) = sum over sides of weight / (k + rank). A chunk
// absent from one list contributes 0 for that side (its rank is
// treated as infinite), so presence in both lists always outweighs a
// comparable single-list position.
type fuser struct {
	k int
}

func newFuser(k int) *fuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &fuser{k: k}
}

func (f *fuser) fuse(vec []*store.VectorHit, kw []*store.KeywordHit, weights Weights) []*fusedChunk {
	if len(vec) == 0 && len(kw) == 0 {
		return []*fusedChunk{}
	}

	chunks := make(map[string]*fusedChunk, len(vec)+len(kw))

	for rank, hit := range vec {
		key := store.ChunkKey(hit.DocID, hit.ChunkIndex)
		c := f.getOrCreate(chunks, key, hit.DocID, hit.ChunkIndex)
		c.text = hit.Text
		c.meta = hit.Meta
		c.vecScore = float64(hit.Similarity)
		c.vecRank = rank + 1
		c.rrfScore += weights.Vector / float64(f.k+rank+1)
	}

	for rank, hit := range kw {
		key := store.ChunkKey(hit.DocID, hit.ChunkIndex)
		c := f.getOrCreate(chunks, key, hit.DocID, hit.ChunkIndex)
		if c.text == "" {
			c.text = hit.Text
			c.meta = hit.Meta
		}
		c.kwScore = hit.Score
		c.kwRank = rank + 1
		c.matchedTerms = hit.MatchedTerms
		c.rrfScore += weights.Keyword / float64(f.k+rank+1)

		if c.vecRank > 0 {
			c.inBoth = true
		}
	}

	out := make([]*fusedChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return f.less(out[i], out[j]) })

	f.normalize(out)
	return out
}

func (f *fuser) getOrCreate(m map[string]*fusedChunk, key, docID string, chunkIndex int) *fusedChunk {
	if c, ok := m[key]; ok {
		return c
	}
	c := &fusedChunk{key: key, docID: docID, chunkIndex: chunkIndex}
	m[key] = c
	return c
}

// less orders fused chunks deterministically: fused score, then
// presence in both lists, then vector rank, then keyword rank, then
// chunk key. Identical inputs always produce identical output order.
func (f *fuser) less(a, b *fusedChunk) bool {
	if a.rrfScore != b.rrfScore {
		return a.rrfScore > b.rrfScore
	}
	if a.inBoth != b.inBoth {
		return a.inBoth
	}
	if ra, rb := rankOrMax(a.vecRank), rankOrMax(b.vecRank); ra != rb {
		return ra < rb
	}
	if ra, rb := rankOrMax(a.kwRank), rankOrMax(b.kwRank); ra != rb {
		return ra < rb
	}
	return a.key < b.key
}

// rankOrMax treats "absent" (rank 0) as worse than any real rank.
func rankOrMax(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// normalize scales scores so the top result is 1.0.
func (f *fuser) normalize(chunks []*fusedChunk) {
	if len(chunks) == 0 || chunks[0].rrfScore == 0 {
		return
	}
	top := chunks[0].rrfScore
	for _, c := range chunks {
		c.rrfScore /= top
	}
}

// topChunks truncates a fused chunk ranking to the limit without
// collapsing, so one document may contribute several rows.
func topChunks(chunks []*fusedChunk, limit int) []*fusedChunk {
	if len(chunks) > limit {
		return chunks[:limit]
	}
	return chunks
}

// groupByDoc collapses a fused chunk ranking into a document ranking:
// each document is represented by its best-ranked chunk, and documents
// keep the order of their best chunk.
func groupByDoc(chunks []*fusedChunk, limit int) []*fusedChunk {
	seen := make(map[string]bool, limit)
	out := make([]*fusedChunk, 0, limit)
	for _, c := range chunks {
		if seen[c.docID] {
			continue
		}
		seen[c.docID] = true
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}
