package scanner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/clipstash/internal/docstore"
	"github.com/clipstash/clipstash/internal/embed"
	"github.com/clipstash/clipstash/internal/pipeline"
	"github.com/clipstash/clipstash/internal/store"
)

type testFixture struct {
	scanner  *Scanner
	docs     *docstore.Store
	vector   *store.HNSWIndex
	keyword  *store.BleveIndex
	pipeline *pipeline.Pipeline
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	docs, err := docstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	vector, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	keyword, err := store.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { keyword.Close() })

	p, err := pipeline.New(pipeline.Config{
		Docs:     docs,
		Vector:   vector,
		Keyword:  keyword,
		Embedder: embed.NewStaticEmbedder(),
	})
	require.NoError(t, err)

	s, err := New(Config{
		Docs:       docs,
		Vector:     vector,
		Keyword:    keyword,
		Pipeline:   p,
		BatchSize:  2,
		BatchPause: time.Millisecond,
	})
	require.NoError(t, err)

	return &testFixture{scanner: s, docs: docs, vector: vector, keyword: keyword, pipeline: p}
}

func storedDoc(id string) *docstore.Document {
	return &docstore.Document{
		ID:          id,
		Title:       "Doc " + id,
		Content:     []byte(strings.Repeat("Indexable content for "+id+". ", 10)),
		ContentType: "text/plain",
	}
}

func TestScanCleanWhenConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.IndexDocument(ctx, storedDoc("doc1"))
	require.NoError(t, err)

	report, err := f.scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocsChecked)
	assert.Empty(t, report.MissingVector)
	assert.Empty(t, report.MissingKeyword)
	assert.Zero(t, report.Reindexed)
	assert.Equal(t, StateIdle, f.scanner.State())
}

func TestScanSkipsNoContentDocs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Too short to chunk: stored, deliberately unindexed.
	res, err := f.pipeline.IndexDocument(ctx, &docstore.Document{
		ID:          "stub",
		Content:     []byte("hi"),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	require.True(t, res.NoContent)

	// The doc is absent from both indexes, but that is not a gap to
	// repair. Repeated scans must stay clean rather than re-running
	// extraction every cycle.
	for range 2 {
		report, err := f.scanner.Scan(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.DocsChecked)
		assert.Empty(t, report.MissingVector)
		assert.Empty(t, report.MissingKeyword)
		assert.Zero(t, report.Reindexed)
	}
}

func TestScanReindexesMissingDocs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stored but never indexed: simulates a crash between the store
	// write and the index write.
	require.NoError(t, f.docs.Put(ctx, storedDoc("orphan1")))
	require.NoError(t, f.docs.Put(ctx, storedDoc("orphan2")))
	require.NoError(t, f.docs.Put(ctx, storedDoc("orphan3")))

	report, err := f.scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.DocsChecked)
	assert.Len(t, report.MissingVector, 3)
	assert.Len(t, report.MissingKeyword, 3)
	assert.Equal(t, 3, report.Reindexed)
	assert.Zero(t, report.Failed)

	// Now both indexes are complete.
	missing, err := f.vector.CheckMissing(ctx, []string{"orphan1", "orphan2", "orphan3"})
	require.NoError(t, err)
	assert.Empty(t, missing)
	missing, err = f.keyword.CheckMissing(ctx, []string{"orphan1", "orphan2", "orphan3"})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestScanRepairsOneSidedGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.IndexDocument(ctx, storedDoc("doc1"))
	require.NoError(t, err)

	// Knock the doc out of just the vector index.
	require.NoError(t, f.vector.Delete(ctx, "doc1"))

	report, err := f.scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"doc1"}, report.MissingVector)
	assert.Empty(t, report.MissingKeyword)
	assert.Equal(t, 1, report.Reindexed)

	missing, err := f.vector.CheckMissing(ctx, []string{"doc1"})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestScanSkipsDeletedDocs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.IndexDocument(ctx, storedDoc("doc1"))
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Delete(ctx, "doc1"))

	report, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.DocsChecked)
	assert.Zero(t, report.Reindexed)
}

func TestScanPurgesExpiredDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := New(Config{
		Docs:       f.docs,
		Vector:     f.vector,
		Keyword:    f.keyword,
		Pipeline:   f.pipeline,
		BatchSize:  2,
		PurgeAfter: time.Millisecond,
	})
	require.NoError(t, err)

	_, err = f.pipeline.IndexDocument(ctx, storedDoc("doc1"))
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Delete(ctx, "doc1"))
	time.Sleep(5 * time.Millisecond)

	report, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)
	assert.Zero(t, report.DocsChecked)

	// A second scan finds nothing left to purge.
	report, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Purged)
}

func TestScanRejectsConcurrentScan(t *testing.T) {
	f := newFixture(t)

	// Force the state away from idle.
	require.True(t, f.scanner.state.CompareAndSwap(StateIdle, StateScanning))
	defer f.scanner.state.Store(StateIdle)

	_, err := f.scanner.Scan(context.Background())
	assert.Equal(t, ErrScanInProgress, err)
}

func TestSettleWindow(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.scanner.settled(), "no writes yet")

	f.scanner.NoteWrite()
	assert.False(t, f.scanner.settled(), "just wrote")
}

func TestPeriodicScanRepairs(t *testing.T) {
	docs, err := docstore.Open("")
	require.NoError(t, err)
	defer docs.Close()

	keyword, err := store.NewBleveIndex("")
	require.NoError(t, err)
	defer keyword.Close()

	p, err := pipeline.New(pipeline.Config{Docs: docs, Keyword: keyword})
	require.NoError(t, err)

	s, err := New(Config{
		Docs:        docs,
		Keyword:     keyword,
		Pipeline:    p,
		Interval:    30 * time.Millisecond,
		SettleDelay: time.Millisecond,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, docs.Put(ctx, storedDoc("orphan")))

	s.Start(ctx)
	defer s.Stop()

	require.Eventually(t, func() bool {
		missing, err := keyword.CheckMissing(ctx, []string{"orphan"})
		return err == nil && len(missing) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDedupe(t *testing.T) {
	out := dedupe([]string{"b", "a"}, []string{"a", "c"}, []string{"c"})
	assert.Equal(t, []string{"a", "b", "c"}, out)

	assert.Empty(t, dedupe(nil, nil))
}
