package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCmd_EmptyStash(t *testing.T) {
	testEnv(t)

	output, err := runCLI(t, "stats")

	require.NoError(t, err)
	assert.Contains(t, output, "documents: 0")
	assert.Contains(t, output, "never")
}

func TestStatsCmd_JSONAfterIndexing(t *testing.T) {
	// Given: one indexed document
	tmp := testEnv(t)
	path := writeFile(t, tmp, "notes.txt", "Some indexable content here.")
	_, err := runCLI(t, "index", "--id", "doc-1", path)
	require.NoError(t, err)

	// When: requesting stats as JSON
	output, err := runCLI(t, "stats", "--json")

	// Then: counts reflect the indexed document
	require.NoError(t, err)
	var stats struct {
		TotalDocs   int  `json:"total_docs"`
		TotalChunks int  `json:"total_chunks"`
		ModelLoaded bool `json:"model_loaded"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &stats))
	assert.Equal(t, 1, stats.TotalDocs)
	assert.Positive(t, stats.TotalChunks)
	assert.True(t, stats.ModelLoaded)
}
