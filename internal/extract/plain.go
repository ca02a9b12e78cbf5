package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

// maxTitleLen caps titles derived from the first content line.
const maxTitleLen = 120

// PlainTextExtractor passes text through with whitespace normalization.
// It is also the fallback for unrecognized content types.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a plain text extractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) Name() string { return "plaintext" }

func (e *PlainTextExtractor) Supports(contentType string) bool {
	switch baseContentType(contentType) {
	case "text/plain", "text":
		return true
	}
	return false
}

func (e *PlainTextExtractor) Extract(ctx context.Context, content []byte) (*Result, error) {
	text := normalizeWhitespace(string(content))
	return &Result{
		Text:  text,
		Title: firstLineTitle(text),
	}, nil
}

// firstLineTitle derives a title from the first non-empty line,
// truncated at a rune boundary.
func firstLineTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleLen {
			runes := []rune(line)
			return string(runes[:maxTitleLen])
		}
		return line
	}
	return ""
}

var _ Extractor = (*PlainTextExtractor)(nil)
