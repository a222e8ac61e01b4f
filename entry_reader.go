// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// sectionReadCloser closes the backing file together with the section reader.
type sectionReadCloser struct {
	*io.SectionReader
	file *os.File
}

// Close closes the backing archive file.
func (s sectionReadCloser) Close() error {
	return s.file.Close()
}

// OpenEntry opens entry payload for reading.
//
// In-memory payloads stream their exact bytes. Disk-backed entries stream the
// full sector reservation, including trailing padding.
func (a *Archive) OpenEntry(entry *Entry) (io.ReadCloser, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	if entry == nil {
		return nil, ErrEntryNotFound
	}

	if entry.data != nil {
		return io.NopCloser(bytes.NewReader(entry.data)), nil
	}

	if !entry.onDisk {
		return nil, fmt.Errorf("%w: %s has no payload", ErrEntryNotFound, entry.Name)
	}

	f, err := openArchiveFile(a.path)
	if err != nil {
		return nil, err
	}

	return sectionReadCloser{
		SectionReader: io.NewSectionReader(f, entry.ActualOffset(), entry.ActualSize()),
		file:          f,
	}, nil
}

// ReadEntry reads full entry payload.
func (a *Archive) ReadEntry(entry *Entry) ([]byte, error) {
	rc, err := a.OpenEntry(entry)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", entry.Name, err)
	}

	return data, nil
}

// ReadEntryByName reads full payload of a live entry by case-insensitive name.
func (a *Archive) ReadEntryByName(name string) ([]byte, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	entry, ok := a.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return a.ReadEntry(entry)
}

// readEntryHead reads up to limit leading payload bytes from memory or ra.
// A payload truncated by end of file yields the bytes available.
func readEntryHead(ra io.ReaderAt, entry *Entry, limit int) ([]byte, error) {
	if entry.data != nil {
		if len(entry.data) < limit {
			limit = len(entry.data)
		}

		return entry.data[:limit], nil
	}

	if size := entry.ActualSize(); size < int64(limit) {
		limit = int(size)
	}

	if limit == 0 || ra == nil {
		return nil, nil
	}

	buf := make([]byte, limit)
	n, err := ra.ReadAt(buf, entry.ActualOffset())
	if err != nil && err != io.EOF {
		return buf[:n], fmt.Errorf("read entry %s head: %w", entry.Name, err)
	}

	return buf[:n], nil
}
