package img

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/img/format"
)

func TestOpenV2(t *testing.T) {
	t.Parallel()

	entries := sampleEntries()
	a, err := Open(writeV2Fixture(t, entries))
	require.NoError(t, err)

	assert.Equal(t, V2, a.Version())
	assert.Empty(t, a.DirPath())
	require.Equal(t, len(entries), a.Len())
	assert.False(t, a.IsModified())

	got := a.Entries()
	assert.Equal(t, "player.dff", got[0].Name)
	assert.Equal(t, uint32(1), got[0].Offset)
	assert.Equal(t, uint32(2), got[0].Size)
	assert.Equal(t, uint32(2), got[0].StreamingSize)
	assert.Equal(t, uint32(3), got[1].Offset)
	assert.Equal(t, uint32(1), got[1].Size)

	for i, e := range got {
		assert.False(t, e.IsNew())
		assert.False(t, e.IsNewOrModified())

		data, err := a.ReadEntry(e)
		require.NoError(t, err)
		assert.Equal(t, padded(entries[i].data), data, e.Name)
	}
}

func TestOpenV2SizeFallsBackToStreamingSize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gta3.img")
	require.NoError(t, os.WriteFile(path, buildV2Archive(sampleEntries(), true), 0o600))

	a, err := Open(path)
	require.NoError(t, err)

	e, ok := a.Entry("PLAYER.DFF")
	require.True(t, ok)
	assert.Equal(t, uint32(2), e.Size)
	assert.Equal(t, uint32(2), e.StoredSize())
}

func TestOpenV1(t *testing.T) {
	t.Parallel()

	entries := sampleEntries()
	path := writeV1Fixture(t, entries)

	for _, openPath := range []string{path, pairedDirPath(path)} {
		a, err := Open(openPath)
		require.NoError(t, err, openPath)

		assert.Equal(t, V1, a.Version())
		assert.Equal(t, path, a.Path())
		assert.Equal(t, pairedDirPath(path), a.DirPath())
		require.Equal(t, len(entries), a.Len())

		e := a.Entries()[0]
		assert.Equal(t, uint32(0), e.Offset)
		assert.Zero(t, e.StreamingSize)

		data, err := a.ReadEntryByName("countn2.col")
		require.NoError(t, err)
		assert.Equal(t, padded(entries[2].data), data)
	}
}

func TestOpenMissingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.img"))
	require.ErrorIs(t, err, ErrFileNotFound)

	dataPath := filepath.Join(dir, "gta3.img")
	require.NoError(t, os.WriteFile(dataPath, make([]byte, SectorSize), 0o600))

	_, err = Open(dataPath)
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Contains(t, err.Error(), "gta3.dir")
}

func TestOpenV2ShortHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "short.img")
	require.NoError(t, os.WriteFile(path, []byte("VER2\x01"), 0o600))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidHeader)
	require.ErrorIs(t, err, ErrParse)
}

func TestOpenV2TruncatedDirectory(t *testing.T) {
	t.Parallel()

	raw := buildV2Archive(sampleEntries(), false)
	binary.LittleEndian.PutUint32(raw[4:8], 50)
	raw = raw[:v2HeaderSize+2*recordSize]

	path := filepath.Join(t.TempDir(), "trunc.img")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	var logs bytes.Buffer
	a, err := OpenWithOptions(path, OpenOptions{Logger: bufferLogger(&logs)})
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())
	assert.Contains(t, logs.String(), "directory truncated")
}

func TestOpenV1TruncatedDirectory(t *testing.T) {
	t.Parallel()

	path := writeV1Fixture(t, sampleEntries())
	dir := readFile(t, pairedDirPath(path))
	require.NoError(t, os.WriteFile(pairedDirPath(path), dir[:recordSize+10], 0o600))

	a, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 1, a.Len())
	assert.Equal(t, "player.dff", a.Entries()[0].Name)
}

func TestOpenDecodesNonASCIINames(t *testing.T) {
	t.Parallel()

	path := writeV2Fixture(t, []fixtureEntry{
		{name: "caf\xe9.txd", data: []byte("x")},
	})

	a, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "caf\uFFFD.txd", a.Entries()[0].Name)
	assert.Equal(t, []byte("caf\xe9.txd"), a.Entries()[0].rawName)
}

func TestOpenWarnsOnUnterminatedName(t *testing.T) {
	t.Parallel()

	for _, version := range []Version{V2, V1} {
		entries := []fixtureEntry{{name: "a.dff", data: []byte("x")}}
		full := strings.Repeat("n", nameFieldSize)

		path := writeV2Fixture(t, entries)
		recordPath, recordAt := path, int64(v2HeaderSize)
		if version == V1 {
			path = writeV1Fixture(t, entries)
			recordPath, recordAt = pairedDirPath(path), 0
		}

		data := readFile(t, recordPath)
		copy(data[recordAt+8:], full)
		require.NoError(t, os.WriteFile(recordPath, data, 0o600))

		var logs bytes.Buffer
		a, err := OpenWithOptions(path, OpenOptions{Logger: bufferLogger(&logs)})
		require.NoError(t, err)
		assert.Equal(t, full, a.Entries()[0].Name)
		assert.Contains(t, logs.String(), "entry name not terminated", version.String())
	}
}

func TestOpenAnalyzeFormats(t *testing.T) {
	t.Parallel()

	a, err := OpenWithOptions(writeV2Fixture(t, sampleEntries()), OpenOptions{
		AnalyzeFormats: true,
		AnalyzeWorkers: 2,
	})
	require.NoError(t, err)

	dff, ok := a.Entries()[0].Format()
	require.True(t, ok)
	assert.Equal(t, format.KindDFF, dff.Kind)
	assert.Equal(t, "3.6.0.3 (SA)", dff.Label)

	col, ok := a.Entries()[2].Format()
	require.True(t, ok)
	assert.Equal(t, format.KindCOL, col.Kind)
	assert.Equal(t, "COL3 (SA)", col.Label)
}

func TestEntryFormatLazy(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV1Fixture(t, sampleEntries()))
	require.NoError(t, err)

	e := a.Entries()[1]
	_, ok := e.Format()
	require.False(t, ok)

	info, err := a.EntryFormat(e)
	require.NoError(t, err)
	assert.Equal(t, format.KindTXD, info.Kind)

	cached, ok := e.Format()
	require.True(t, ok)
	assert.Equal(t, info, cached)
}

func TestListEntries(t *testing.T) {
	t.Parallel()

	path := writeV2Fixture(t, sampleEntries())

	entries, err := ListEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "player.txd", entries[1].Name)

	raw := readFile(t, path)
	fromReader, err := ListEntriesFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.Equal(t, entries, fromReader)

	_, err = ListEntriesFromReaderAt(bytes.NewReader(raw[:4]), 4)
	require.ErrorIs(t, err, ErrInvalidHeader)

	_, dir := buildV1Archive(sampleEntries())
	v1, err := ListV1Entries(bytes.NewReader(dir))
	require.NoError(t, err)
	require.Len(t, v1, 3)
	assert.Equal(t, uint32(2), v1[1].Offset)
}

func TestDetectVersion(t *testing.T) {
	t.Parallel()

	v, err := DetectVersion(writeV2Fixture(t, sampleEntries()))
	require.NoError(t, err)
	assert.Equal(t, V2, v)

	v1Path := writeV1Fixture(t, sampleEntries())
	v, err = DetectVersion(v1Path)
	require.NoError(t, err)
	assert.Equal(t, V1, v)

	v, err = DetectVersion(pairedDirPath(v1Path))
	require.NoError(t, err)
	assert.Equal(t, V1, v)
}
