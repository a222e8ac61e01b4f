package img

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/img/format"
)

func TestAnalyzeFormats(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, sampleEntries()))
	require.NoError(t, err)
	require.NoError(t, a.AddEntry("data.ipl", []byte("bnry\x00\x00")))

	added, ok := a.Entry("data.ipl")
	require.True(t, ok)
	info, ok := added.Format()
	require.True(t, ok, "in-memory payloads are detected on add")
	assert.Equal(t, format.KindIPL, info.Kind)

	require.NoError(t, a.AnalyzeFormats(t.Context(), 3))

	kinds := make([]format.Kind, 0, a.Len())
	for _, e := range a.Entries() {
		info, ok := e.Format()
		require.True(t, ok, e.Name)
		kinds = append(kinds, info.Kind)
	}
	assert.Equal(t, []format.Kind{format.KindDFF, format.KindTXD, format.KindCOL, format.KindIPL}, kinds)
}

func TestAnalyzeFormatsCancelled(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, sampleEntries()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, a.AnalyzeFormats(ctx, 1), context.Canceled)
}

func TestDetectEntryDegradesOnReadError(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	a := &Archive{logger: bufferLogger(&logs)}
	e := &Entry{Name: "broken.dff", Offset: 1, Size: 1, onDisk: true}

	a.detectEntry(failingReaderAt{failFrom: 0}, e)

	info, ok := e.Format()
	require.True(t, ok)
	assert.Equal(t, format.LabelInvalid, info.Label)
	assert.Contains(t, logs.String(), "format probe failed")
}

func TestEntryDigest(t *testing.T) {
	t.Parallel()

	a, err := Open(writeV2Fixture(t, sampleEntries()))
	require.NoError(t, err)

	e := a.Entries()[1]
	d, err := a.EntryDigest(e)
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	data, err := a.ReadEntry(e)
	require.NoError(t, err)
	assert.Equal(t, d.Algorithm().FromBytes(data), d)
}
