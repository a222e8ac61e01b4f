// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/woozymasta/img/format"
)

// EntryFormat returns detected format of entry, running detection lazily and
// caching the result. Read failures degrade to an invalid label.
func (a *Archive) EntryFormat(entry *Entry) (format.Info, error) {
	if a == nil {
		return format.Info{}, ErrNilArchive
	}

	if entry == nil {
		return format.Info{}, ErrEntryNotFound
	}

	if info, ok := entry.Format(); ok {
		return info, nil
	}

	var ra io.ReaderAt
	if entry.data == nil {
		f, err := openArchiveFile(a.path)
		if err != nil {
			return format.Info{}, err
		}
		defer func() { _ = f.Close() }()

		ra = f
	}

	a.detectEntry(ra, entry)
	info, _ := entry.Format()
	return info, nil
}

// AnalyzeFormats detects formats of all live entries not yet analyzed,
// using up to workers parallel readers over one shared file handle.
func (a *Archive) AnalyzeFormats(ctx context.Context, workers int) error {
	if a == nil {
		return ErrNilArchive
	}

	var ra io.ReaderAt
	for _, e := range a.entries {
		if e.format == nil && e.data == nil {
			f, err := openArchiveFile(a.path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			ra = f
			break
		}
	}

	return a.analyzeFormats(ctx, ra, workers)
}

// analyzeFormats runs bounded parallel detection over ra.
// Each worker writes only its own entry, so no locking is needed.
func (a *Archive) analyzeFormats(ctx context.Context, ra io.ReaderAt, workers int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, entry := range a.entries {
		if entry.format != nil {
			continue
		}

		if err := gctx.Err(); err != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			a.detectEntry(ra, entry)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// detectEntry reads entry head and caches detection result.
func (a *Archive) detectEntry(ra io.ReaderAt, entry *Entry) {
	head, err := readEntryHead(ra, entry, formatProbeLen)
	if err != nil {
		a.log().Warn("format probe failed", "name", entry.Name, "error", err)
		info := format.Info{Label: format.LabelInvalid}
		entry.format = &info
		return
	}

	entry.detect(head)
}
