// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// DetectVersion reports the layout of the archive at path without parsing its directory.
func DetectVersion(path string) (Version, error) {
	if isDirPath(path) {
		return V1, nil
	}

	f, err := openArchiveFile(path)
	if err != nil {
		return VersionUnknown, err
	}
	defer func() { _ = f.Close() }()

	return detectVersion(f)
}

// ListEntries opens an archive and returns entry metadata without payload reads.
func ListEntries(path string) ([]Entry, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}

	return copyEntries(a.entries), nil
}

// ListEntriesFromReaderAt parses V2 entry metadata from a random-access source.
func ListEntriesFromReaderAt(ra io.ReaderAt, size int64) ([]Entry, error) {
	if ra == nil {
		return nil, ErrNilArchive
	}
	if size < v2HeaderSize {
		return nil, fmt.Errorf("%w: short header", ErrInvalidHeader)
	}

	entries, err := parseV2Directory(ra, size, slog.New(slog.DiscardHandler))
	if err != nil {
		return nil, err
	}

	return copyEntries(entries), nil
}

// ListV1Entries parses a V1 directory stream (the contents of a .dir file).
func ListV1Entries(r io.Reader) ([]Entry, error) {
	entries, err := parseV1Directory(r, slog.New(slog.DiscardHandler))
	if err != nil {
		return nil, err
	}

	return copyEntries(entries), nil
}

// copyEntries returns detached entry values.
func copyEntries(entries []*Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = *e
		out[i].onDisk = true
	}

	return out
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := openArchiveFile(path)
	if err != nil {
		return nil, 0, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat: %w", err)
	}

	return f, fi.Size(), nil
}
