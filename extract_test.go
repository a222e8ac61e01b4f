package img

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/pathrules"
)

func TestExtractAll(t *testing.T) {
	t.Parallel()

	entries := sampleEntries()
	a, err := Open(writeV2Fixture(t, entries))
	require.NoError(t, err)
	require.NoError(t, a.AddEntry("added.dat", []byte("memory")))

	dst := filepath.Join(t.TempDir(), "out")
	var done atomic.Int32
	err = a.Extract(t.Context(), dst, ExtractOptions{
		MaxWorkers: 2,
		OnEntryDone: func(_ *Entry, _ int64, _ string) {
			done.Add(1)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), done.Load())

	for _, e := range entries {
		assert.Equal(t, padded(e.data), readFile(t, filepath.Join(dst, e.name)), e.name)
	}
	assert.Equal(t, []byte("memory"), readFile(t, filepath.Join(dst, "added.dat")))
}

func TestExtractTrimPadding(t *testing.T) {
	t.Parallel()

	entries := sampleEntries()
	a, err := Open(writeV1Fixture(t, entries))
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, a.Extract(t.Context(), dst, ExtractOptions{TrimPadding: true}))

	for _, e := range entries {
		assert.Equal(t, e.data, readFile(t, filepath.Join(dst, e.name)), e.name)
	}
}

func TestExtractRules(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, sampleEntries()))
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, a.Extract(t.Context(), dst, ExtractOptions{
		Rules: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "*.txd"}},
	}))

	items, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "player.txd", items[0].Name())
}

func TestExtractSanitizesNames(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, []fixtureEntry{
		{name: "con.txd", data: []byte{1}},
		{name: "a:b.dff", data: []byte{2}},
		{name: "Dup.dff", data: []byte{3}},
		{name: "dup.DFF", data: []byte{4}},
		{name: "..", data: []byte{5}},
	}))
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, a.Extract(t.Context(), dst, ExtractOptions{TrimPadding: true}))

	assert.Equal(t, []byte{1}, readFile(t, filepath.Join(dst, "_con.txd")))
	assert.Equal(t, []byte{2}, readFile(t, filepath.Join(dst, "a_b.dff")))
	assert.Equal(t, []byte{3}, readFile(t, filepath.Join(dst, "Dup.dff")))
	assert.Equal(t, []byte{4}, readFile(t, filepath.Join(dst, "dup~2.DFF")))
	assert.Equal(t, []byte{5}, readFile(t, filepath.Join(dst, "_")))
}

func TestExtractRawNamesRejectsTraversal(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, []fixtureEntry{
		{name: `..\evil.dff`, data: []byte{1}},
	}))
	require.NoError(t, err)

	err = a.Extract(t.Context(), t.TempDir(), ExtractOptions{RawNames: true})
	require.ErrorIs(t, err, ErrInvalidExtractPath)
}

func TestExtractOverwrite(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, sampleEntries()))
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "player.dff"), []byte("old"), 0o600))

	err = a.Extract(t.Context(), dst, ExtractOptions{MaxWorkers: 1})
	require.ErrorIs(t, err, os.ErrExist)

	require.NoError(t, a.Extract(t.Context(), dst, ExtractOptions{Overwrite: true}))
	assert.Equal(t, padded(sampleEntries()[0].data), readFile(t, filepath.Join(dst, "player.dff")))
}

func TestExtractSelectedEntries(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, sampleEntries()))
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, a.Extract(t.Context(), dst, ExtractOptions{
		Entries: a.FilterEntries("", "COL"),
	}))

	items, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "countn2.col", items[0].Name())
}

func TestResolveExtractPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	got, err := resolveExtractPath(root, "a.dff")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.dff"), got)

	_, err = resolveExtractPath(root, "..")
	require.ErrorIs(t, err, ErrExtractPathOutsideRoot)

	_, err = resolveExtractPath(root, "")
	require.ErrorIs(t, err, ErrExtractPathOutsideRoot)
}
