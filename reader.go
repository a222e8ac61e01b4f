// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// readerDirBufferSize is a sequential read buffer for directory parsing.
const readerDirBufferSize = 64 * 1024

var (
	// dirReaderPool reuses buffered readers for sequential directory parsing.
	dirReaderPool = sync.Pool{
		New: func() any {
			return bufio.NewReaderSize(nil, readerDirBufferSize)
		},
	}
)

// Open opens an IMG archive by path. V2 files are detected by the "VER2"
// signature; anything else is read as V1 with a paired .dir file. Passing
// the .dir path of a V1 pair is also accepted.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions opens an IMG archive using explicit options.
func OpenWithOptions(path string, opts OpenOptions) (*Archive, error) {
	opts.applyDefaults()

	dataPath := path
	dirPath := ""
	if isDirPath(path) {
		dataPath = pairedDataPath(path)
		dirPath = path
	}

	f, size, err := openFileWithSize(dataPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	a := &Archive{
		logger: opts.Logger,
		path:   dataPath,
	}

	a.version, err = detectVersion(f)
	if err != nil {
		return nil, err
	}

	switch a.version {
	case V2:
		a.entries, err = parseV2Directory(f, size, a.log())
		if err != nil {
			return nil, err
		}
	case V1:
		if dirPath == "" {
			dirPath = pairedDirPath(dataPath)
		}

		a.dirPath = dirPath
		a.entries, err = readV1DirectoryFile(dirPath, a.log())
		if err != nil {
			return nil, err
		}
	}

	for _, e := range a.entries {
		e.onDisk = true
	}

	a.log().Debug("opened archive", "path", dataPath, "version", a.version.String(), "entries", len(a.entries))

	if opts.AnalyzeFormats {
		if err := a.analyzeFormats(context.Background(), f, opts.AnalyzeWorkers); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// openArchiveFile opens path for reading and maps missing files to ErrFileNotFound.
func openArchiveFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	return nil, fmt.Errorf("open IMG: %w", err)
}

// detectVersion reads the first 4 bytes and reports V2 for "VER2", V1 otherwise.
func detectVersion(ra io.ReaderAt) (Version, error) {
	var magic [4]byte
	n, err := ra.ReadAt(magic[:], 0)
	if err != nil && err != io.EOF {
		return VersionUnknown, fmt.Errorf("read header: %w", err)
	}

	if n == len(magic) && string(magic[:]) == v2Magic {
		return V2, nil
	}

	return V1, nil
}

// parseV2Directory reads VER2 header and directory records.
// A directory truncated by end of file yields the parsed prefix.
func parseV2Directory(ra io.ReaderAt, size int64, logger *slog.Logger) ([]*Entry, error) {
	var header [v2HeaderSize]byte
	if _, err := ra.ReadAt(header[:], 0); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: short header", ErrInvalidHeader)
		}

		return nil, fmt.Errorf("read header: %w", err)
	}

	if string(header[0:4]) != v2Magic {
		return nil, ErrInvalidHeader
	}

	count := int64(binary.LittleEndian.Uint32(header[4:8]))
	available := (size - v2HeaderSize) / recordSize
	if available < 0 {
		available = 0
	}
	if count > available {
		logger.Warn("directory truncated", "declared", count, "available", available)
		count = available
	}

	sr := io.NewSectionReader(ra, v2HeaderSize, count*recordSize)
	br := dirReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(sr)
	defer func() {
		br.Reset(nil)
		dirReaderPool.Put(br)
	}()

	entries := make([]*Entry, 0, count)
	var record [recordSize]byte
	for i := int64(0); i < count; i++ {
		if _, err := io.ReadFull(br, record[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				logger.Warn("directory record truncated", "index", i, "parsed", len(entries))
				break
			}

			return nil, fmt.Errorf("read directory record %d: %w", i, err)
		}

		if !nameTerminated(record[8:]) {
			logger.Warn("entry name not terminated", "index", i, "name", decodeName(record[8:8+nameFieldSize]), "limit", maxNameLen)
		}

		entries = append(entries, decodeV2Record(record[:]))
	}

	return entries, nil
}

// decodeV2Record decodes one 32-byte V2 directory record.
func decodeV2Record(record []byte) *Entry {
	streaming := uint32(binary.LittleEndian.Uint16(record[4:6]))
	size := uint32(binary.LittleEndian.Uint16(record[6:8]))
	if size == 0 {
		size = streaming
	}

	return &Entry{
		Name:          decodeName(record[8 : 8+nameFieldSize]),
		Offset:        binary.LittleEndian.Uint32(record[0:4]),
		Size:          size,
		StreamingSize: streaming,
		rawName:       rawNameBytes(record[8 : 8+nameFieldSize]),
	}
}

// readV1DirectoryFile opens and parses a V1 .dir file.
func readV1DirectoryFile(dirPath string, logger *slog.Logger) ([]*Entry, error) {
	df, err := openArchiveFile(dirPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = df.Close() }()

	return parseV1Directory(df, logger)
}

// parseV1Directory reads 32-byte records until EOF or a short record.
func parseV1Directory(r io.Reader, logger *slog.Logger) ([]*Entry, error) {
	br := dirReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(r)
	defer func() {
		br.Reset(nil)
		dirReaderPool.Put(br)
	}()

	entries := make([]*Entry, 0, 256)
	var record [recordSize]byte
	for {
		_, err := io.ReadFull(br, record[:])
		if err == io.EOF {
			return entries, nil
		}
		if err == io.ErrUnexpectedEOF {
			logger.Warn("directory record truncated", "index", len(entries), "parsed", len(entries))
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read directory record %d: %w", len(entries), err)
		}

		if !nameTerminated(record[8:]) {
			logger.Warn("entry name not terminated", "index", len(entries), "name", decodeName(record[8:8+nameFieldSize]), "limit", maxNameLen)
		}

		entries = append(entries, decodeV1Record(record[:]))
	}
}

// decodeV1Record decodes one 32-byte V1 directory record.
func decodeV1Record(record []byte) *Entry {
	return &Entry{
		Name:    decodeName(record[8 : 8+nameFieldSize]),
		Offset:  binary.LittleEndian.Uint32(record[0:4]),
		Size:    binary.LittleEndian.Uint32(record[4:8]),
		rawName: rawNameBytes(record[8 : 8+nameFieldSize]),
	}
}
