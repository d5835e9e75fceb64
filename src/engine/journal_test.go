package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBaseFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("logs", "store"), getBaseFilePath(filepath.Join("logs", "store.journal")))
	assert.Equal(t, filepath.Join("logs", "store"), getBaseFilePath(filepath.Join("logs", "store_2024-03-01.journal")))
	assert.Equal(t, filepath.Join("logs", "store"), getBaseFilePath(filepath.Join("logs", "store_2024-03-01_2.journal")))
}

func TestJournal_RollsOverOnSizeAndDay(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	j := &Journal{
		baseFilePath: filepath.Join(dir, "store"),
		maxFileSize:  40,
		now:          func() time.Time { return now },
	}
	defer j.Close()

	require.NoError(t, j.AddEntry("add", "matters", "m1"))
	assert.Equal(t, filepath.Join(dir, "store_2024-03-01.journal"), j.CurrentFile())

	// The first line already exceeds 40 bytes, so the next entry rolls.
	require.NoError(t, j.AddEntry("add", "matters", "m2"))
	assert.Equal(t, filepath.Join(dir, "store_2024-03-01_1.journal"), j.CurrentFile())

	now = now.Add(24 * time.Hour)
	require.NoError(t, j.AddEntry("delete", "matters", "m1"))
	assert.Equal(t, filepath.Join(dir, "store_2024-03-02.journal"), j.CurrentFile())

	data, err := os.ReadFile(filepath.Join(dir, "store_2024-03-02.journal"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02T10:00:00Z | delete | matters | m1\n", string(data))
}

func TestJournal_CleanupOldJournals(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{
		"store_2024-03-01.journal",
		"store_2024-03-02_1.journal",
		"store_2024-03-08.journal",
		"other_2024-03-01.journal",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644))
	}

	j := &Journal{
		baseFilePath:  filepath.Join(dir, "store"),
		retentionDays: 7,
		now:           func() time.Time { return now },
	}
	defer j.Close()
	require.NoError(t, j.AddEntry("put", "tasks", "t1"))

	removed, err := j.CleanupOldJournals()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, filepath.Join(dir, "store_2024-03-01.journal"))
	assert.NoFileExists(t, filepath.Join(dir, "store_2024-03-02_1.journal"))
	assert.FileExists(t, filepath.Join(dir, "store_2024-03-08.journal"))
	assert.FileExists(t, filepath.Join(dir, "other_2024-03-01.journal"))
	assert.FileExists(t, filepath.Join(dir, "store_2024-03-10.journal"))
}

func TestJournal_CleanupDisabled(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "store.journal"), 0, 0)
	require.NoError(t, err)
	defer j.Close()

	removed, err := j.CleanupOldJournals()
	require.NoError(t, err)
	assert.Zero(t, removed)
}
