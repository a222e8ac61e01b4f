// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
)

var (
	// defaultRebuildWriterPool reuses default-sized bufio writers between rebuilds.
	defaultRebuildWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBufferSize)
		},
	}
	// defaultCopyBufferPool reuses default-sized copy buffers between rebuilds.
	defaultCopyBufferPool = sync.Pool{
		New: func() any {
			return new([DefaultCopyBufferSize]byte)
		},
	}
)

// zeroSector is written as padding after short payloads.
var zeroSector [SectorSize]byte

// rebuildItem is one planned entry of the rebuilt archive.
type rebuildItem struct {
	// entry is the live entry this item was planned from.
	entry *Entry
	// data is in-memory payload; nil means copy from source.
	data []byte
	// name is the final directory name.
	name string
	// nameField is the encoded 24-byte directory name.
	nameField [nameFieldSize]byte
	// digest is the written content digest when verification is enabled.
	digest digest.Digest
	// srcOffset is the payload byte offset in source for copied entries.
	srcOffset int64
	// offset is the final sector offset.
	offset uint32
	// size is the final sector count.
	size uint32
}

// rebuildPlan is the full gapless layout of the rebuilt archive.
type rebuildPlan struct {
	items []rebuildItem
	// dataStart is the first data sector (header + directory for V2, zero for V1).
	dataStart uint32
	// totalSectors is the data file length in sectors.
	totalSectors int64
	version      Version
	// needsSource reports that at least one item is copied from the source file.
	needsSource bool
}

// rebuildTarget names final output files.
type rebuildTarget struct {
	// dataPath is the V2 archive or V1 data file.
	dataPath string
	// dirPath is the V1 directory file; empty for V2.
	dirPath string
	// staleDirPath is a V1 directory left behind by in-place V1 to V2 conversion.
	staleDirPath string
	// inPlace reports that output replaces the archive's own files.
	inPlace bool
}

// Rebuild writes the current entry set as a compact archive and returns the
// re-opened result.
//
// Offsets are recomputed sequentially without gaps and every entry is
// rounded up to whole sectors. Output is written to temporary sibling files
// and moved into place only after all data is written (and verified when
// requested). On any failure, including cancellation, temporary files are
// removed and the original archive is left untouched. The receiver must be
// discarded after a successful rebuild.
func (a *Archive) Rebuild(ctx context.Context, opts RebuildOptions) (*Archive, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	if ctx == nil {
		ctx = context.Background()
	}

	startedAt := time.Now()
	opts.applyDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = a.log()
	}

	progress := newProgressReporter(opts.OnProgress)
	progress.report(0, "preparing rebuild")

	version := opts.Version
	if version == VersionUnknown {
		version = a.version
	}
	if version == VersionUnknown {
		version = V2
	}
	if !version.valid() {
		return nil, newRebuildError("plan", fmt.Errorf("%w: %d", ErrUnsupportedVersion, version))
	}

	plan, err := buildRebuildPlan(a.entries, version, opts.SortEntries)
	if err != nil {
		return nil, newRebuildError("plan", err)
	}

	target := a.resolveRebuildTarget(opts.OutputPath, version)
	progress.report(5, fmt.Sprintf("planned %d entries (%d sectors)", len(plan.items), plan.totalSectors))
	logger.Debug("rebuild planned",
		"path", target.dataPath,
		"version", version.String(),
		"entries", len(plan.items),
		"sectors", plan.totalSectors,
		"in_place", target.inPlace,
	)

	if err := ctx.Err(); err != nil {
		return nil, newRebuildError("plan", err)
	}

	src := opts.Source
	var srcFile *os.File
	if src == nil && plan.needsSource {
		srcFile, err = openArchiveFile(a.path)
		if err != nil {
			return nil, newRebuildError("open source", err)
		}

		src = srcFile
	}
	closeSource := func() {
		if srcFile != nil {
			_ = srcFile.Close()
			srcFile = nil
		}
	}
	defer closeSource()

	out, err := createRebuildOutput(target)
	if err != nil {
		return nil, newRebuildError("create temp", err)
	}
	committed := false
	defer func() {
		if !committed {
			out.cleanup()
		}
	}()

	if err := writeRebuild(ctx, out, src, plan, opts, progress, logger); err != nil {
		return nil, newRebuildError("write", err)
	}

	if err := out.finish(); err != nil {
		return nil, newRebuildError("write", err)
	}

	if opts.Verify {
		progress.report(95, "verifying")
		if err := verifyRebuildOutput(ctx, out, plan, logger); err != nil {
			return nil, newRebuildError("verify", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, newRebuildError("commit", err)
	}

	closeSource()
	progress.report(97, "replacing archive")
	if err := commitRebuildOutput(out, target, opts.BackupKeep); err != nil {
		return nil, newRebuildError("commit", err)
	}
	committed = true

	if target.staleDirPath != "" {
		if err := removeIfExists(target.staleDirPath); err != nil {
			logger.Warn("stale directory file not removed", "path", target.staleDirPath, "error", err)
		}
	}

	progress.report(98, "reopening archive")
	fresh, err := OpenWithOptions(target.dataPath, OpenOptions{
		Logger:         a.logger,
		AnalyzeFormats: opts.AnalyzeFormats,
	})
	if err != nil {
		return nil, newRebuildError("reopen", err)
	}

	logger.Info("archive rebuilt",
		"path", target.dataPath,
		"version", version.String(),
		"entries", fresh.Len(),
		"sectors", plan.totalSectors,
		"duration", time.Since(startedAt),
	)

	progress.done("rebuild complete")
	return fresh, nil
}

// buildRebuildPlan lays out entries sequentially after the header.
func buildRebuildPlan(entries []*Entry, version Version, sortEntries bool) (*rebuildPlan, error) {
	plan := &rebuildPlan{
		items:   make([]rebuildItem, 0, len(entries)),
		version: version,
	}

	for _, e := range entries {
		item := rebuildItem{entry: e}
		if e.rawName != nil {
			encodeRawName(item.nameField[:], e.rawName)
		} else {
			encodeName(item.nameField[:], e.Name)
		}
		item.name = decodeName(item.nameField[:])

		switch {
		case e.data != nil:
			item.data = e.data
			size := sectorsFor(int64(len(e.data)))
			if size > maxOffsetValue {
				return nil, fmt.Errorf("%w: entry %s is %d bytes", ErrSizeOverflow, e.Name, len(e.data))
			}

			item.size = uint32(size)
		case e.onDisk:
			item.srcOffset = e.ActualOffset()
			item.size = e.Size
			plan.needsSource = plan.needsSource || e.Size > 0
		default:
			return nil, fmt.Errorf("%w: %s has no payload", ErrEntryNotFound, e.Name)
		}

		if version == V2 && item.size > maxV2Sectors {
			return nil, fmt.Errorf("%w: entry %s needs %d sectors, V2 limit is %d", ErrSizeOverflow, e.Name, item.size, maxV2Sectors)
		}

		plan.items = append(plan.items, item)
	}

	if sortEntries {
		sort.SliceStable(plan.items, func(i, j int) bool {
			return entryKey(plan.items[i].name) < entryKey(plan.items[j].name)
		})
	}

	if version == V2 {
		plan.dataStart = uint32(sectorsFor(v2HeaderSize + int64(len(plan.items))*recordSize)) //nolint:gosec // bounded by entry count
	}

	cursor := int64(plan.dataStart)
	for i := range plan.items {
		plan.items[i].offset = uint32(cursor) //nolint:gosec // checked below for every step
		cursor += int64(plan.items[i].size)
		if cursor > maxOffsetValue {
			return nil, fmt.Errorf("%w: archive exceeds %d sectors", ErrSizeOverflow, int64(maxOffsetValue))
		}
	}

	plan.totalSectors = cursor
	return plan, nil
}

// resolveRebuildTarget derives output paths for a rebuild.
func (a *Archive) resolveRebuildTarget(outputPath string, version Version) rebuildTarget {
	dataPath := strings.TrimSpace(outputPath)
	if dataPath == "" {
		dataPath = a.path
	}
	if isDirPath(dataPath) {
		dataPath = pairedDataPath(dataPath)
	}

	target := rebuildTarget{
		dataPath: dataPath,
		inPlace:  sameFile(dataPath, a.path),
	}

	if version == V1 {
		target.dirPath = pairedDirPath(dataPath)
		if target.inPlace && a.dirPath != "" {
			target.dirPath = a.dirPath
		}
	}

	if target.inPlace && a.version == V1 && version == V2 && a.dirPath != "" {
		target.staleDirPath = a.dirPath
	}

	return target
}

// rebuildOutput holds temporary output files.
type rebuildOutput struct {
	data    *os.File
	dir     *os.File
	dataTmp string
	dirTmp  string
}

// createRebuildOutput creates temporary siblings for every target file.
func createRebuildOutput(target rebuildTarget) (*rebuildOutput, error) {
	out := &rebuildOutput{}

	data, err := createSiblingTemp(target.dataPath)
	if err != nil {
		return nil, err
	}
	out.data = data
	out.dataTmp = data.Name()

	if target.dirPath != "" {
		dir, err := createSiblingTemp(target.dirPath)
		if err != nil {
			out.cleanup()
			return nil, err
		}

		out.dir = dir
		out.dirTmp = dir.Name()
	}

	return out, nil
}

// createSiblingTemp creates `.<base>.*.tmp` next to path.
func createSiblingTemp(path string) (*os.File, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", path, err)
	}

	return f, nil
}

// finish syncs and closes temporary files.
func (o *rebuildOutput) finish() error {
	for _, f := range []*os.File{o.data, o.dir} {
		if f == nil {
			continue
		}

		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", f.Name(), err)
		}

		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", f.Name(), err)
		}
	}

	o.data = nil
	o.dir = nil
	return nil
}

// cleanup closes and removes temporary files.
func (o *rebuildOutput) cleanup() {
	for _, f := range []*os.File{o.data, o.dir} {
		if f != nil {
			_ = f.Close()
		}
	}

	for _, path := range []string{o.dataTmp, o.dirTmp} {
		if path != "" {
			_ = os.Remove(path)
		}
	}
}

// writeRebuild writes directory and payloads to temporary output files.
func writeRebuild(
	ctx context.Context,
	out *rebuildOutput,
	src io.ReaderAt,
	plan *rebuildPlan,
	opts RebuildOptions,
	progress *progressReporter,
	logger *slog.Logger,
) error {
	w, releaseWriter := acquireRebuildWriter(out.data, opts.WriterBufferSize)
	defer releaseWriter()

	buf, releaseBuf := acquireCopyBuffer(opts.CopyBufferSize)
	defer releaseBuf()

	progress.report(10, "writing directory")
	directory := encodeDirectory(plan)
	switch plan.version {
	case V2:
		header := make([]byte, int64(plan.dataStart)*SectorSize)
		copy(header, v2Magic)
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(plan.items))) //nolint:gosec // bounded by u32 offsets
		copy(header[v2HeaderSize:], directory)
		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	case V1:
		if _, err := out.dir.Write(directory); err != nil {
			return fmt.Errorf("write directory: %w", err)
		}
	}

	progress.report(20, "directory written")

	payloadSectors := plan.totalSectors - int64(plan.dataStart)
	var writtenSectors int64
	for i := range plan.items {
		item := &plan.items[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		var dst io.Writer = w
		var digester digest.Digester
		if opts.Verify {
			digester = digest.Canonical.Digester()
			dst = io.MultiWriter(w, digester.Hash())
		}

		if err := writeRebuildItem(ctx, dst, src, item, buf, logger); err != nil {
			return fmt.Errorf("entry %s: %w", item.name, err)
		}

		if digester != nil {
			item.digest = digester.Digest()
		}

		writtenSectors += int64(item.size)
		percent := 20
		if payloadSectors > 0 {
			percent += int(writtenSectors * 75 / payloadSectors)
		}
		progress.report(percent, fmt.Sprintf("written %d/%d entries", i+1, len(plan.items)))
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}

// encodeDirectory encodes 32-byte records for every plan item.
func encodeDirectory(plan *rebuildPlan) []byte {
	directory := make([]byte, len(plan.items)*recordSize)
	for i := range plan.items {
		item := &plan.items[i]
		record := directory[i*recordSize : (i+1)*recordSize]
		binary.LittleEndian.PutUint32(record[0:4], item.offset)
		if plan.version == V2 {
			binary.LittleEndian.PutUint16(record[4:6], uint16(item.size)) //nolint:gosec // checked against maxV2Sectors
			binary.LittleEndian.PutUint16(record[6:8], uint16(item.size)) //nolint:gosec // checked against maxV2Sectors
		} else {
			binary.LittleEndian.PutUint32(record[4:8], item.size)
		}

		copy(record[8:8+nameFieldSize], item.nameField[:])
	}

	return directory
}

// writeRebuildItem writes one payload followed by zero padding up to its sector reservation.
func writeRebuildItem(ctx context.Context, dst io.Writer, src io.ReaderAt, item *rebuildItem, buf []byte, logger *slog.Logger) error {
	reserved := int64(item.size) * SectorSize
	if item.data != nil {
		if _, err := dst.Write(item.data); err != nil {
			return err
		}

		return writeZeros(dst, reserved-int64(len(item.data)))
	}

	if reserved == 0 {
		return nil
	}
	if src == nil {
		return fmt.Errorf("%w: no source for disk-backed entry", ErrFileNotFound)
	}

	written, err := copySectors(ctx, dst, src, item.srcOffset, reserved, buf)
	if err != nil {
		return err
	}

	if written < reserved {
		logger.Warn("entry payload short, zero padded", "name", item.name, "expected", reserved, "read", written)
		return writeZeros(dst, reserved-written)
	}

	return nil
}

// copySectors copies up to limit bytes from src at offset in buf-sized chunks,
// checking ctx between chunks. It stops early at end of source and returns
// the number of bytes read.
func copySectors(ctx context.Context, dst io.Writer, src io.ReaderAt, offset int64, limit int64, buf []byte) (int64, error) {
	var written int64
	for written < limit {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		chunk := len(buf)
		if remaining := limit - written; int64(chunk) > remaining {
			chunk = int(remaining)
		}

		n, readErr := src.ReadAt(buf[:chunk], offset+written)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}

			written += int64(n)
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}

	return written, nil
}

// writeZeros writes n zero bytes.
func writeZeros(dst io.Writer, n int64) error {
	for n > 0 {
		chunk := int64(len(zeroSector))
		if n < chunk {
			chunk = n
		}

		if _, err := dst.Write(zeroSector[:chunk]); err != nil {
			return err
		}

		n -= chunk
	}

	return nil
}

// acquireRebuildWriter returns a buffered writer and release callback.
func acquireRebuildWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBufferSize {
		w := defaultRebuildWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultRebuildWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// acquireCopyBuffer returns a copy buffer and release callback.
func acquireCopyBuffer(size int) ([]byte, func()) {
	if size == DefaultCopyBufferSize {
		arr := defaultCopyBufferPool.Get().(*[DefaultCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers

		return arr[:], func() {
			defaultCopyBufferPool.Put(arr)
		}
	}

	return make([]byte, size), func() {}
}
