package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches alphanumeric runs. Everything else is a boundary.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Tokenize splits text into lowercase alphanumeric tokens, dropping
// empty tokens. This is the single tokenization rule for the keyword
// index: the Bleve analyzer delegates to it, so indexing and query time
// tokenize identically. Recall silently degrades if they ever diverge.
func Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}
