package img

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareBackupSlotRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backup := filepath.Join(dir, "gta3.img.bak")
	for _, name := range []string{"gta3.img.bak", "gta3.img.bak.1", "gta3.img.bak.2"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}

	require.NoError(t, prepareBackupSlot(backup, 3))
	assert.NoFileExists(t, backup)
	assert.Equal(t, []byte("gta3.img.bak"), readFile(t, backup+".1"))
	assert.Equal(t, []byte("gta3.img.bak.1"), readFile(t, backup+".2"))

	require.NoError(t, os.WriteFile(backup, []byte("x"), 0o600))
	require.NoError(t, prepareBackupSlot(backup, 1))
	assert.NoFileExists(t, backup)
}

func TestMoveTargetAsideAndRollback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "gta3.img")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o600))

	backup, err := moveTargetAside(target, 0)
	require.NoError(t, err)
	assert.Equal(t, target+transientBackupSuffix, backup)
	assert.NoFileExists(t, target)

	placed := filepath.Join(dir, "gta3.dir")
	require.NoError(t, os.WriteFile(placed, []byte("new"), 0o600))

	err = rollbackCommit([]commitPair{
		{target: target, backup: backup},
		{target: placed, placed: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), readFile(t, target))
	assert.NoFileExists(t, placed)
	assert.NoFileExists(t, backup)

	missing, err := moveTargetAside(filepath.Join(dir, "none.img"), 1)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRemoveAndRenameIfExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	from := filepath.Join(dir, "a")
	to := filepath.Join(dir, "b")

	require.NoError(t, removeIfExists(from))
	require.NoError(t, renameIfExists(from, to))

	require.NoError(t, os.WriteFile(from, []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(to, []byte("b"), 0o600))
	require.NoError(t, renameIfExists(from, to))
	assert.NoFileExists(t, from)
	assert.Equal(t, []byte("a"), readFile(t, to))
}
