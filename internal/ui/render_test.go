package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clipstash/clipstash/internal/scanner"
	"github.com/clipstash/clipstash/internal/search"
	"github.com/clipstash/clipstash/internal/service"
)

func TestSearchResultsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.SearchResults(&search.Response{
		Results: []*search.Result{
			{
				DocID:        "doc-1",
				Title:        "Apple pie",
				Text:         "apple pie recipes with cinnamon",
				Score:        1.0,
				MatchedTerms: []string{"apple", "pie"},
				InBoth:       true,
			},
		},
		VectorUsed:  true,
		KeywordUsed: true,
		Duration:    12 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "Apple pie")
	assert.Contains(t, out, "[1.000]")
	assert.Contains(t, out, "matched: apple, pie")
	assert.Contains(t, out, "both indexes")
	assert.Contains(t, out, "1 results in 12ms")
}

func TestSearchResultsDegraded(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.SearchResults(&search.Response{
		Results:     []*search.Result{{DocID: "d", Text: "t"}},
		Degraded:    true,
		KeywordUsed: true,
	})

	assert.Contains(t, buf.String(), "degraded")
}

func TestSearchResultsUnavailable(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.SearchResults(&search.Response{Unavailable: true})

	assert.Contains(t, buf.String(), "search unavailable")
}

func TestSearchResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.SearchResults(&search.Response{KeywordUsed: true})

	assert.Contains(t, buf.String(), "no results")
}

func TestStatsKeywordOnly(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.Stats(&service.Stats{TotalDocs: 3, TotalChunks: 9})

	out := buf.String()
	assert.Contains(t, out, "documents: 3")
	assert.Contains(t, out, "chunks: 9")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "keyword-only")
}

func TestScanReportConsistent(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.ScanReport(&scanner.Report{DocsChecked: 5, Duration: time.Second})

	assert.Contains(t, buf.String(), "indexes consistent")
}

func TestScanReportRepairs(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.ScanReport(&scanner.Report{
		DocsChecked:   5,
		MissingVector: []string{"doc1", "doc2"},
		Reindexed:     2,
	})

	out := buf.String()
	assert.Contains(t, out, "vector=2")
	assert.Contains(t, out, "2 reindexed")
}

func TestScanReportPurged(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.ScanReport(&scanner.Report{DocsChecked: 3, Purged: 2})

	out := buf.String()
	assert.Contains(t, out, "2 expired deletions removed")
	assert.Contains(t, out, "indexes consistent")
}

func TestSnippetTruncatesOnWordBoundary(t *testing.T) {
	long := ""
	for range 30 {
		long += "quite long words here "
	}

	s := snippet(long)
	assert.LessOrEqual(t, len(s), snippetMaxLen+3)
	assert.Contains(t, s, "...")
	assert.NotContains(t, s, "\n")
}

func TestSnippetCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n\n  b\tc"))
}

func TestIsTTYNilAndBuffer(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}
