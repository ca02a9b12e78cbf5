// Package extract turns clipped document content into plain indexable
// text. Clips arrive as HTML (web pages), markdown (notes), or plain
// text; each content type has its own extractor and all of them produce
// the same Result shape for the chunker.
package extract

import (
	"context"
	"strings"

	clierrors "github.com/clipstash/clipstash/internal/errors"
)

// Result is the output of content extraction.
type Result struct {
	// Text is the extracted plain text, whitespace-normalized.
	Text string

	// Title is the best-effort document title (first heading, <title>
	// tag, or first line). Empty when none was found.
	Title string
}

// Extractor extracts plain text from one content type family.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// Supports reports whether this extractor handles the content type.
	Supports(contentType string) bool

	// Extract produces plain text from raw content.
	Extract(ctx context.Context, content []byte) (*Result, error)
}

// Registry dispatches extraction by content type.
type Registry struct {
	extractors []Extractor
	fallback   Extractor
}

// NewRegistry creates a registry with the standard extractors: HTML,
// markdown, and plain text (which doubles as the fallback for unknown
// content types).
func NewRegistry() *Registry {
	plain := NewPlainTextExtractor()
	return &Registry{
		extractors: []Extractor{
			NewHTMLExtractor(),
			NewMarkdownExtractor(),
			plain,
		},
		fallback: plain,
	}
}

// Extract runs the extractor matching contentType. Unknown content
// types fall back to plain text extraction rather than failing: a clip
// with a wrong content type is still better indexed as raw text than
// not at all.
func (r *Registry) Extract(ctx context.Context, contentType string, content []byte) (*Result, error) {
	if len(content) == 0 {
		return nil, clierrors.NoContent("document has no content")
	}

	ext := r.fallback
	for _, e := range r.extractors {
		if e.Supports(contentType) {
			ext = e
			break
		}
	}

	result, err := ext.Extract(ctx, content)
	if err != nil {
		return nil, clierrors.ExtractionFailed("extract "+contentType, err)
	}
	return result, nil
}

// baseContentType strips parameters like "; charset=utf-8".
func baseContentType(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// normalizeWhitespace collapses runs of blank lines and trims trailing
// space so extracted text chunks cleanly.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			line = ""
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
