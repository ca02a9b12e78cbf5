package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv points every persistent path at a temp dir and switches to
// the deterministic static embedder so tests never reach for Ollama.
func testEnv(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("CLIPSTASH_DATA_DIR", filepath.Join(tmp, "stash"))
	t.Setenv("CLIPSTASH_EMBEDDER", "static")
	return tmp
}

// runCLI executes the root command with the given args and returns
// combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	// Given: the root command with no args
	testEnv(t)

	// When: executing help
	output, err := runCLI(t, "--help")

	// Then: all subcommands are listed
	require.NoError(t, err)
	for _, sub := range []string{"index", "search", "delete", "scan", "stats", "serve", "version"} {
		assert.Contains(t, output, sub, "help should list %s", sub)
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	testEnv(t)

	_, err := runCLI(t, "frobnicate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestRootCmd_VersionFlag(t *testing.T) {
	testEnv(t)

	output, err := runCLI(t, "--version")

	require.NoError(t, err)
	assert.Contains(t, output, "clipstash version")
}
