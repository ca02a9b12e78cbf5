package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCmd_ConsistentStash(t *testing.T) {
	// Given: an indexed document
	tmp := testEnv(t)
	path := writeFile(t, tmp, "notes.txt", "Content for the integrity scan.")
	_, err := runCLI(t, "index", "--id", "doc-1", path)
	require.NoError(t, err)

	// When: scanning
	output, err := runCLI(t, "scan")

	// Then: nothing needs repair
	require.NoError(t, err)
	assert.Contains(t, output, "1 docs checked")
	assert.Contains(t, output, "indexes consistent")
}

func TestScanCmd_EmptyStash(t *testing.T) {
	testEnv(t)

	output, err := runCLI(t, "scan")

	require.NoError(t, err)
	assert.Contains(t, output, "0 docs checked")
	assert.Contains(t, output, "indexes consistent")
}
