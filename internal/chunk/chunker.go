// Package chunk splits extracted document text into overlapping chunks
// sized for embedding. Splitting is purely a function of the text and
// the options: re-chunking unchanged content always yields identical
// chunks, which keeps re-index operations idempotent.
package chunk

import (
	"strings"
	"unicode"
)

// Chunk size defaults. Targets sit in the 500-1000 character band that
// works well for prose retrieval; overlap preserves context for
// sentences that straddle a boundary.
const (
	// DefaultTargetChars is the preferred chunk size.
	DefaultTargetChars = 800

	// DefaultOverlapChars is how far consecutive chunks overlap.
	DefaultOverlapChars = 120

	// DefaultMaxChars is the hard upper bound on chunk size.
	DefaultMaxChars = 1000

	// DefaultMinBoundary is the earliest position a split is allowed,
	// so boundary-seeking never produces tiny fragments.
	DefaultMinBoundary = 500

	// MinIndexableChars is the minimum trimmed text length worth
	// indexing at all. Shorter documents yield zero chunks.
	MinIndexableChars = 10
)

// Chunk is one piece of a document's text.
type Chunk struct {
	// Index is the chunk's position within the document (0-based).
	Index int

	// Text is the chunk content.
	Text string

	// Start and End are rune offsets into the source text. End is
	// exclusive. Overlapping chunks share the overlap region.
	Start int
	End   int
}

// Options configures the chunker.
type Options struct {
	TargetChars  int
	OverlapChars int
	MaxChars     int
	MinBoundary  int
}

// Chunker splits text deterministically at sentence boundaries where
// possible.
type Chunker struct {
	opts Options
}

// NewChunker creates a chunker, filling zero options with defaults.
func NewChunker(opts Options) *Chunker {
	if opts.TargetChars <= 0 {
		opts.TargetChars = DefaultTargetChars
	}
	if opts.OverlapChars <= 0 {
		opts.OverlapChars = DefaultOverlapChars
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MinBoundary <= 0 {
		opts.MinBoundary = DefaultMinBoundary
	}

	// Keep the invariants boundary-seeking relies on: splits land in
	// [MinBoundary, MaxChars] around Target, and the overlap is small
	// enough that every iteration makes forward progress.
	if opts.MaxChars < opts.TargetChars {
		opts.MaxChars = opts.TargetChars
	}
	if opts.MinBoundary > opts.TargetChars {
		opts.MinBoundary = opts.TargetChars
	}
	if opts.OverlapChars >= opts.MinBoundary {
		opts.OverlapChars = opts.MinBoundary / 2
	}

	return &Chunker{opts: opts}
}

// Split chunks the text. Returns nil when the trimmed text is shorter
// than MinIndexableChars.
func (c *Chunker) Split(text string) []Chunk {
	if len(strings.TrimSpace(text)) < MinIndexableChars {
		return nil
	}

	runes := []rune(text)
	var chunks []Chunk
	start := 0

	for start < len(runes) {
		remaining := len(runes) - start

		var end int
		if remaining <= c.opts.MaxChars {
			end = len(runes)
		} else {
			end = c.findBoundary(runes, start)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  piece,
				Start: start,
				End:   end,
			})
		}

		if end >= len(runes) {
			break
		}
		start = end - c.opts.OverlapChars
	}

	return chunks
}

// findBoundary picks the split position in [start+MinBoundary,
// start+MaxChars], preferring the sentence end closest to
// start+TargetChars, then the closest whitespace, then the target
// itself as a hard cut.
func (c *Chunker) findBoundary(runes []rune, start int) int {
	lo := start + c.opts.MinBoundary
	hi := start + c.opts.MaxChars
	target := start + c.opts.TargetChars

	best := -1
	bestDist := -1
	for i := lo; i < hi && i < len(runes); i++ {
		var dist int
		if i >= target {
			dist = i - target
		} else {
			dist = target - i
		}

		if isSentenceEnd(runes, i) && (best == -1 || dist < bestDist) {
			best = i
			bestDist = dist
		}
	}
	if best >= 0 {
		return best
	}

	for i := lo; i < hi && i < len(runes); i++ {
		var dist int
		if i >= target {
			dist = i - target
		} else {
			dist = target - i
		}

		if unicode.IsSpace(runes[i]) && (best == -1 || dist < bestDist) {
			best = i
			bestDist = dist
		}
	}
	if best >= 0 {
		return best
	}

	return target
}

// isSentenceEnd reports whether position i is just past a sentence:
// the previous rune is terminal punctuation or a newline, and the rune
// at i is whitespace.
func isSentenceEnd(runes []rune, i int) bool {
	if i <= 0 || i >= len(runes) {
		return false
	}
	prev := runes[i-1]
	if prev == '\n' {
		return true
	}
	if prev != '.' && prev != '!' && prev != '?' {
		return false
	}
	return unicode.IsSpace(runes[i])
}
