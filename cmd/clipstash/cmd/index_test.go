package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexCmd_SingleFile(t *testing.T) {
	// Given: a text file
	tmp := testEnv(t)
	path := writeFile(t, tmp, "notes.txt",
		"The reverse proxy forwards requests to the upstream service.")

	// When: indexing it with an explicit ID
	output, err := runCLI(t, "index", "--id", "doc-notes", path)

	// Then: the document is indexed with at least one chunk
	require.NoError(t, err)
	assert.Contains(t, output, "indexed doc-notes")
	assert.Contains(t, output, "chunks")
}

func TestIndexCmd_Stdin(t *testing.T) {
	// Given: content on stdin and no file args
	testEnv(t)
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("Piped note about certificate rotation."))
	cmd.SetArgs([]string{"index", "--id", "doc-stdin", "--title", "Cert notes"})

	// When: executing
	err := cmd.Execute()

	// Then: the piped content becomes a document
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "indexed doc-stdin")
}

func TestIndexCmd_MultipleFiles(t *testing.T) {
	tmp := testEnv(t)
	a := writeFile(t, tmp, "a.md", "# Alpha\n\nFirst document body.")
	b := writeFile(t, tmp, "b.md", "# Beta\n\nSecond document body.")

	output, err := runCLI(t, "index", a, b)

	require.NoError(t, err)
	assert.Contains(t, output, "indexed 2 documents")
}

func TestIndexCmd_RejectsIDWithMultipleFiles(t *testing.T) {
	tmp := testEnv(t)
	a := writeFile(t, tmp, "a.txt", "one")
	b := writeFile(t, tmp, "b.txt", "two")

	_, err := runCLI(t, "index", "--id", "doc-1", a, b)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "single input")
}

func TestIndexCmd_MissingFile(t *testing.T) {
	tmp := testEnv(t)

	_, err := runCLI(t, "index", filepath.Join(tmp, "does-not-exist.txt"))

	require.Error(t, err)
}
