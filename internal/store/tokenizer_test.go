package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple words",
			input: "hello world",
			want:  []string{"hello", "world"},
		},
		{
			name:  "lowercases",
			input: "Hello WORLD",
			want:  []string{"hello", "world"},
		},
		{
			name:  "punctuation is a boundary",
			input: "foo-bar, baz.qux!",
			want:  []string{"foo", "bar", "baz", "qux"},
		},
		{
			name:  "digits kept",
			input: "error 404 at line12",
			want:  []string{"error", "404", "at", "line12"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
		{
			name:  "only punctuation",
			input: "...!!!---",
			want:  []string{},
		},
		{
			name:  "unicode stripped to ascii runs",
			input: "café naïve",
			want:  []string{"caf", "na", "ve"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestClipTokenizerMatchesTokenize(t *testing.T) {
	// The Bleve tokenizer must produce the same terms as Tokenize
	// modulo case (the lowercase filter runs after tokenization).
	input := "Select * FROM users WHERE id=42;"

	tok := &clipTokenizer{}
	stream := tok.Tokenize([]byte(input))

	got := make([]string, 0, len(stream))
	for _, token := range stream {
		got = append(got, string(token.Term))
	}
	assert.Equal(t, []string{"Select", "FROM", "users", "WHERE", "id", "42"}, got)

	// Positions are 1-based and offsets point into the original text.
	assert.Equal(t, 1, stream[0].Position)
	assert.Equal(t, "Select", input[stream[0].Start:stream[0].End])
	assert.Equal(t, "42", input[stream[5].Start:stream[5].End])
}

func TestChunkKeyRoundTrip(t *testing.T) {
	key := ChunkKey("doc-abc", 7)
	assert.Equal(t, "doc-abc#000007", key)

	docID, idx, err := ParseChunkKey(key)
	assert.NoError(t, err)
	assert.Equal(t, "doc-abc", docID)
	assert.Equal(t, 7, idx)
}

func TestParseChunkKeyHashInDocID(t *testing.T) {
	// doc IDs containing '#' still parse via the last separator.
	docID, idx, err := ParseChunkKey("note#42#000003")
	assert.NoError(t, err)
	assert.Equal(t, "note#42", docID)
	assert.Equal(t, 3, idx)
}

func TestParseChunkKeyMalformed(t *testing.T) {
	_, _, err := ParseChunkKey("no-separator")
	assert.Error(t, err)

	_, _, err = ParseChunkKey("doc#notanumber")
	assert.Error(t, err)
}
