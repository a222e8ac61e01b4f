// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"
)

// EntryDigest returns the SHA-256 digest of entry payload as returned by ReadEntry.
func (a *Archive) EntryDigest(entry *Entry) (digest.Digest, error) {
	rc, err := a.OpenEntry(entry)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	d, err := digest.Canonical.FromReader(rc)
	if err != nil {
		return "", fmt.Errorf("digest entry %s: %w", entry.Name, err)
	}

	return d, nil
}

// verifyRebuildOutput re-parses written temporary files and compares layout
// and content digests with the plan.
func verifyRebuildOutput(ctx context.Context, out *rebuildOutput, plan *rebuildPlan, logger *slog.Logger) error {
	f, err := os.Open(out.dataTmp)
	if err != nil {
		return fmt.Errorf("open written archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat written archive: %w", err)
	}

	if want := plan.totalSectors * SectorSize; fi.Size() != want {
		return fmt.Errorf("%w: written size %d, expected %d", ErrHashMismatch, fi.Size(), want)
	}

	var entries []*Entry
	switch plan.version {
	case V2:
		entries, err = parseV2Directory(f, fi.Size(), logger)
	case V1:
		entries, err = readV1DirectoryFile(out.dirTmp, logger)
	}
	if err != nil {
		return fmt.Errorf("parse written directory: %w", err)
	}

	if len(entries) != len(plan.items) {
		return fmt.Errorf("%w: written %d records, expected %d", ErrHashMismatch, len(entries), len(plan.items))
	}

	for i := range plan.items {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := &plan.items[i]
		got := entries[i]
		if got.Name != item.name || got.Offset != item.offset || got.Size != item.size {
			return fmt.Errorf("%w: record %d is %s@%d+%d, expected %s@%d+%d",
				ErrHashMismatch, i, got.Name, got.Offset, got.Size, item.name, item.offset, item.size)
		}

		if item.digest == "" {
			continue
		}

		sr := io.NewSectionReader(f, got.ActualOffset(), got.ActualSize())
		d, err := item.digest.Algorithm().FromReader(sr)
		if err != nil {
			return fmt.Errorf("digest written entry %s: %w", item.name, err)
		}

		if d != item.digest {
			return fmt.Errorf("%w: entry %s", ErrHashMismatch, item.name)
		}
	}

	logger.Debug("rebuild output verified", "entries", len(entries))
	return nil
}
