package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/clipstash/internal/search"
	"github.com/clipstash/clipstash/internal/watcher"
)

func TestDropFolder_ImportBecomesSearchable(t *testing.T) {
	// Given: a running service watching a drop folder
	dropDir := t.TempDir()
	cfg := testConfig(t.TempDir())
	cfg.Paths.DropFolder = dropDir
	cfg.Watcher.Enabled = true
	cfg.Watcher.DebounceWindow = "50ms"

	svc := openService(t, cfg)
	ctx := context.Background()
	require.NoError(t, svc.StartBackground(ctx))

	// When: a file lands in the drop folder
	path := filepath.Join(dropDir, "clipped.md")
	require.NoError(t, os.WriteFile(path,
		[]byte("# Clipped article\n\nTerraform state locking with DynamoDB."), 0o644))

	// Then: it becomes searchable once the debounce window closes
	require.Eventually(t, func() bool {
		resp, err := svc.HybridSearch(ctx, "terraform state locking", search.Options{KeywordOnly: true})
		return err == nil && len(resp.Results) > 0
	}, 5*time.Second, 50*time.Millisecond, "dropped file never became searchable")

	resp, err := svc.HybridSearch(ctx, "terraform state locking", search.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, watcher.DocIDForPath(path), resp.Results[0].DocID)
	assert.Contains(t, resp.Results[0].Tags, "drop-folder")
}

func TestDropFolder_RemovalDeletesDocument(t *testing.T) {
	dropDir := t.TempDir()
	cfg := testConfig(t.TempDir())
	cfg.Paths.DropFolder = dropDir
	cfg.Watcher.Enabled = true
	cfg.Watcher.DebounceWindow = "50ms"

	svc := openService(t, cfg)
	ctx := context.Background()
	require.NoError(t, svc.StartBackground(ctx))

	path := filepath.Join(dropDir, "transient.txt")
	require.NoError(t, os.WriteFile(path, []byte("Transient clip about zookeepers."), 0o644))

	require.Eventually(t, func() bool {
		stats, err := svc.Stats(ctx)
		return err == nil && stats.TotalDocs == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		stats, err := svc.Stats(ctx)
		return err == nil && stats.TotalDocs == 0
	}, 5*time.Second, 50*time.Millisecond, "removed file should be deleted from the stash")
}

func TestDropFolder_ExistingFilesImportedAtStartup(t *testing.T) {
	// Given: files already sitting in the drop folder before open
	dropDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dropDir, "old-1.txt"),
		[]byte("Pre-existing clip one about haproxy."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dropDir, "old-2.txt"),
		[]byte("Pre-existing clip two about envoy."), 0o644))

	cfg := testConfig(t.TempDir())
	cfg.Paths.DropFolder = dropDir
	cfg.Watcher.Enabled = true
	cfg.Watcher.DebounceWindow = "50ms"

	svc := openService(t, cfg)
	ctx := context.Background()

	// When: background work starts
	require.NoError(t, svc.StartBackground(ctx))

	// Then: both files are imported
	require.Eventually(t, func() bool {
		stats, err := svc.Stats(ctx)
		return err == nil && stats.TotalDocs == 2
	}, 5*time.Second, 50*time.Millisecond)
}
