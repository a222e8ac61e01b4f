package img

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// errInjected marks failures produced by test doubles.
var errInjected = errors.New("injected failure")

// fixtureEntry describes one entry of a raw test archive.
type fixtureEntry struct {
	name string
	data []byte
	// gap is the number of unused sectors placed before the entry.
	gap uint32
}

// fixtureRecord is one laid out fixture entry.
type fixtureRecord struct {
	name   string
	offset uint32
	size   uint32
}

// layoutFixture assigns sector offsets starting at start.
func layoutFixture(entries []fixtureEntry, start uint32) ([]fixtureRecord, uint32) {
	records := make([]fixtureRecord, len(entries))
	cursor := start
	for i, e := range entries {
		cursor += e.gap
		size := uint32(sectorsFor(int64(len(e.data))))
		records[i] = fixtureRecord{name: e.name, offset: cursor, size: size}
		cursor += size
	}

	return records, cursor
}

// buildV2Archive encodes a V2 archive. When zeroSizeField is set, records
// store the size only in the streaming size field.
func buildV2Archive(entries []fixtureEntry, zeroSizeField bool) []byte {
	dataStart := uint32(sectorsFor(v2HeaderSize + int64(len(entries))*recordSize))
	records, end := layoutFixture(entries, dataStart)

	out := make([]byte, int64(end)*SectorSize)
	copy(out, v2Magic)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(entries)))
	for i, rec := range records {
		record := out[v2HeaderSize+i*recordSize : v2HeaderSize+(i+1)*recordSize]
		binary.LittleEndian.PutUint32(record[0:4], rec.offset)
		binary.LittleEndian.PutUint16(record[4:6], uint16(rec.size))
		if !zeroSizeField {
			binary.LittleEndian.PutUint16(record[6:8], uint16(rec.size))
		}
		copy(record[8:8+maxNameLen], rec.name)
		copy(out[int64(rec.offset)*SectorSize:], entries[i].data)
	}

	return out
}

// buildV1Archive encodes a V1 data file and its directory.
func buildV1Archive(entries []fixtureEntry) ([]byte, []byte) {
	records, end := layoutFixture(entries, 0)

	data := make([]byte, int64(end)*SectorSize)
	dir := make([]byte, len(entries)*recordSize)
	for i, rec := range records {
		record := dir[i*recordSize : (i+1)*recordSize]
		binary.LittleEndian.PutUint32(record[0:4], rec.offset)
		binary.LittleEndian.PutUint32(record[4:8], rec.size)
		copy(record[8:8+maxNameLen], rec.name)
		copy(data[int64(rec.offset)*SectorSize:], entries[i].data)
	}

	return data, dir
}

// writeV2Fixture writes a V2 archive into a temp dir and returns its path.
func writeV2Fixture(t *testing.T, entries []fixtureEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gta3.img")
	require.NoError(t, os.WriteFile(path, buildV2Archive(entries, false), 0o600))
	return path
}

// writeV1Fixture writes a V1 pair into a temp dir and returns the data path.
func writeV1Fixture(t *testing.T, entries []fixtureEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gta3.img")
	data, dir := buildV1Archive(entries)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	require.NoError(t, os.WriteFile(pairedDirPath(path), dir, 0o600))
	return path
}

// sampleEntries returns a small mixed entry set.
func sampleEntries() []fixtureEntry {
	return []fixtureEntry{
		{name: "player.dff", data: rwPayload(0x10, 0x1803ffff, 3000)},
		{name: "player.txd", data: rwPayload(0x16, 0x1803ffff, 100)},
		{name: "countn2.col", data: append([]byte("COL3"), bytes.Repeat([]byte{7}, 60)...)},
	}
}

// rwPayload returns a RenderWare-like stream of n bytes with root chunk id and library id.
func rwPayload(chunkID uint32, libraryID uint32, n int) []byte {
	out := make([]byte, n)
	binary.LittleEndian.PutUint32(out[0:4], chunkID)
	binary.LittleEndian.PutUint32(out[4:8], uint32(n-12))
	binary.LittleEndian.PutUint32(out[8:12], libraryID)
	for i := 12; i < n; i++ {
		out[i] = byte(i%251 + 1)
	}

	return out
}

// padded returns data zero-padded to whole sectors.
func padded(data []byte) []byte {
	out := make([]byte, sectorsFor(int64(len(data)))*SectorSize)
	copy(out, data)
	return out
}

// readFile reads a file or fails the test.
func readFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// tempArtifacts lists leftover temporary files in dir.
func tempArtifacts(t *testing.T, dir string) []string {
	t.Helper()

	items, err := os.ReadDir(dir)
	require.NoError(t, err)

	var out []string
	for _, item := range items {
		name := item.Name()
		if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, transientBackupSuffix) {
			out = append(out, name)
		}
	}

	return out
}

// bufferLogger returns a text logger writing into buf.
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// failingReaderAt fails every read at or beyond failFrom.
type failingReaderAt struct {
	ra       io.ReaderAt
	failFrom int64
}

// ReadAt implements io.ReaderAt.
func (f failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > f.failFrom {
		return 0, errInjected
	}

	return f.ra.ReadAt(p, off)
}
