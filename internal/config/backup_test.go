package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupMissingFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	backup, err := Backup(path)
	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestBackupCreatesTimestampedCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	backup, err := Backup(path)
	require.NoError(t, err)
	require.NotEmpty(t, backup)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestListBackupsEmptyDir(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "missing", "config.yaml"))
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestBackupCleanupKeepsMaxBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// Fabricate more backups than the retention limit. Timestamped
	// names sort lexically, so fixed dates work.
	stamps := []string{"20250101-000000", "20250102-000000", "20250103-000000", "20250104-000000"}
	for _, stamp := range stamps {
		name := path + BackupSuffix + "." + stamp
		require.NoError(t, os.WriteFile(name, []byte("old"), 0o644))
	}

	_, err := Backup(path)
	require.NoError(t, err)

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)

	// The oldest fabricated backups are the ones removed.
	for _, b := range backups {
		assert.NotContains(t, b, "20250101-000000")
		assert.NotContains(t, b, "20250102-000000")
	}
}
