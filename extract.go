// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

var (
	// extractBufferPool reuses copy buffers between extraction workers.
	extractBufferPool = sync.Pool{
		New: func() any {
			return new([extractCopyBufferSize]byte)
		},
	}
)

// extractWorkItem stores one selected entry with its output file name.
type extractWorkItem struct {
	entry    *Entry
	fileName string
}

// Extract writes selected entries to dstDir as flat files. Extraction is
// parallelized by MaxWorkers over one shared archive handle; the first
// failure cancels remaining work and is returned. OnEntryDone may be called
// from several goroutines.
func (a *Archive) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if a == nil {
		return ErrNilArchive
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()

	entries := a.entries
	if opts.Entries != nil {
		entries = opts.Entries
	}

	matcher, err := newNameMatcher(opts.Rules, opts.RulesMatcherOptions)
	if err != nil {
		return err
	}

	entries = filterEntriesByMatcher(entries, matcher)
	if len(entries) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	workItems, err := prepareExtractWorkItems(entries, opts.RawNames)
	if err != nil {
		return err
	}

	var ra io.ReaderAt
	for _, item := range workItems {
		if item.entry.data == nil {
			f, err := openArchiveFile(a.path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			ra = f
			break
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)
	for _, task := range workItems {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			return a.extractPreparedEntry(gctx, ra, dstRootAbs, task, opts)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	a.log().Debug("entries extracted", "dir", dstRootAbs, "count", len(workItems))
	return ctx.Err()
}

// prepareExtractWorkItems resolves unique output file names for selected entries.
func prepareExtractWorkItems(entries []*Entry, rawNames bool) ([]extractWorkItem, error) {
	used := make(map[string]struct{}, len(entries))
	workItems := make([]extractWorkItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}

		fileName := entry.Name
		if rawNames {
			if err := validateExtractName(fileName); err != nil {
				return nil, fmt.Errorf("entry %q: %w", entry.Name, err)
			}
		} else {
			fileName = makeNameUnique(SanitizeName(fileName), used)
		}

		workItems = append(workItems, extractWorkItem{
			entry:    entry,
			fileName: fileName,
		})
	}

	return workItems, nil
}

// validateExtractName rejects raw names that are not a single plain file name.
func validateExtractName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return ErrInvalidExtractPath
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidExtractPath
	case len(name) >= 2 && name[1] == ':':
		return ErrInvalidExtractPath
	}

	return nil
}

// resolveExtractPath joins root and file name and ensures the result stays under root.
func resolveExtractPath(dstRootAbs string, fileName string) (string, error) {
	outPath := filepath.Join(dstRootAbs, fileName)
	rel, err := filepath.Rel(dstRootAbs, outPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrExtractPathOutsideRoot, fileName)
	}

	return outPath, nil
}

// extractPreparedEntry writes one prepared work item to destination root.
func (a *Archive) extractPreparedEntry(
	ctx context.Context,
	ra io.ReaderAt,
	dstRootAbs string,
	task extractWorkItem,
	opts ExtractOptions,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outPath, err := resolveExtractPath(dstRootAbs, task.fileName)
	if err != nil {
		return err
	}

	src, err := openExtractSource(ra, task.entry, opts.TrimPadding)
	if err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	file, err := os.OpenFile(outPath, flags, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.entry.Name, err)
	}

	arr := extractBufferPool.Get().(*[extractCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	written, copyErr := io.CopyBuffer(file, src, arr[:])
	extractBufferPool.Put(arr)

	closeErr := file.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", task.entry.Name, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", task.entry.Name, closeErr)
	}

	if opts.OnEntryDone != nil {
		opts.OnEntryDone(task.entry, written, outPath)
	}

	return nil
}

// openExtractSource returns payload reader for entry, optionally without trailing padding.
func openExtractSource(ra io.ReaderAt, entry *Entry, trimPadding bool) (io.Reader, error) {
	if entry.data != nil {
		return bytes.NewReader(entry.data), nil
	}

	if ra == nil {
		return nil, fmt.Errorf("%w: %s has no payload", ErrEntryNotFound, entry.Name)
	}

	size := entry.ActualSize()
	if trimPadding {
		trimmed, err := trimmedPayloadSize(ra, entry)
		if err != nil {
			return nil, err
		}

		size = trimmed
	}

	return io.NewSectionReader(ra, entry.ActualOffset(), size), nil
}

// trimmedPayloadSize returns entry byte size without trailing zeros of its last sector.
func trimmedPayloadSize(ra io.ReaderAt, entry *Entry) (int64, error) {
	size := entry.ActualSize()
	if size == 0 {
		return 0, nil
	}

	var last [SectorSize]byte
	lastStart := size - SectorSize
	n, err := ra.ReadAt(last[:], entry.ActualOffset()+lastStart)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("read entry %s tail: %w", entry.Name, err)
	}

	tail := bytes.TrimRight(last[:n], "\x00")
	return lastStart + int64(len(tail)), nil
}
