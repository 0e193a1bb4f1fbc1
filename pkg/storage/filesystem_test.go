package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportStoreSaveArtifact(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.SaveArtifact("job-1", "totals_2025.csv", []byte("council,total\n"))
	require.NoError(t, err)
	assert.Equal(t, "job-1_totals_2025.csv", name)

	file, err := store.Open(name)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "council,total\n", string(data))
}

func TestExportStoreRejectsNonFlatNames(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../outside.csv", "nested/file.csv", "/etc/passwd"} {
		_, err := store.Open(name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestExportStoreCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewExportStore(dir)
	require.NoError(t, err)

	stale, err := store.SaveArtifact("job-1", "old.csv", []byte("x"))
	require.NoError(t, err)
	fresh, err := store.SaveArtifact("job-2", "new.csv", []byte("y"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, stale), past, past))

	removed, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, removed)

	_, err = os.Stat(filepath.Join(dir, fresh))
	assert.NoError(t, err)
}
