// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Archive is an in-memory view of an IMG archive plus its pending changes.
//
// Archive holds no locks and no open file handles. Callers serialize access
// to a single Archive; long operations (Rebuild, Extract, AnalyzeFormats)
// must not overlap with mutations.
type Archive struct {
	// logger receives warnings for lenient parse and name policies.
	logger *slog.Logger
	// path is the V2 archive or V1 data file.
	path string
	// dirPath is the paired V1 directory file; empty for V2.
	dirPath string
	// entries are live entries in directory order.
	entries []*Entry
	// deleted are disk-backed entries removed since open or last rebuild.
	deleted []*Entry
	// version is the on-disk layout.
	version Version
	// modified reports any add/delete/rename since open or last rebuild.
	modified bool
}

// Summary describes pending in-memory changes.
type Summary struct {
	// TotalEntries is number of live entries.
	TotalEntries int `json:"total_entries" yaml:"total_entries"`
	// NewEntries is number of live entries never written to disk.
	NewEntries int `json:"new_entries" yaml:"new_entries"`
	// ModifiedEntries is number of disk-backed entries replaced or renamed in memory.
	ModifiedEntries int `json:"modified_entries" yaml:"modified_entries"`
	// DeletedEntries is number of disk-backed entries pending removal.
	DeletedEntries int `json:"deleted_entries" yaml:"deleted_entries"`
	// IsModified mirrors Archive.IsModified.
	IsModified bool `json:"is_modified" yaml:"is_modified"`
	// NeedsSave reports that a rebuild would change the archive.
	NeedsSave bool `json:"needs_save" yaml:"needs_save"`
}

// TypeStats aggregates entries of one type.
type TypeStats struct {
	// Count is number of entries.
	Count int `json:"count" yaml:"count"`
	// Sectors is sum of entry sizes in sectors.
	Sectors int64 `json:"sectors" yaml:"sectors"`
}

// Statistics aggregates live entries by type.
type Statistics struct {
	// ByType maps upper-cased extension (empty for none) to totals.
	ByType map[string]TypeStats `json:"by_type" yaml:"by_type"`
	// Entries is number of live entries.
	Entries int `json:"entries" yaml:"entries"`
	// Sectors is sum of live entry sizes in sectors.
	Sectors int64 `json:"sectors" yaml:"sectors"`
}

// Create writes an empty archive at path and returns it.
// V2 gets an 8-byte header with zero entries; V1 gets an empty data file and .dir pair.
func Create(path string, version Version, opts CreateOptions) (*Archive, error) {
	if version == VersionUnknown {
		version = V2
	}
	if !version.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	if isDirPath(path) {
		path = pairedDataPath(path)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	a := &Archive{
		logger:  opts.Logger,
		path:    path,
		version: version,
		entries: make([]*Entry, 0, 16),
	}

	switch version {
	case V2:
		header := make([]byte, v2HeaderSize)
		copy(header, v2Magic)
		if err := writeNewFile(path, flags, header); err != nil {
			return nil, err
		}
	case V1:
		a.dirPath = pairedDirPath(path)
		if err := writeNewFile(path, flags, nil); err != nil {
			return nil, err
		}
		if err := writeNewFile(a.dirPath, flags, nil); err != nil {
			_ = os.Remove(path)
			return nil, err
		}
	}

	a.log().Debug("created archive", "path", path, "version", version.String())
	return a, nil
}

// writeNewFile creates path with flags and writes content.
func writeNewFile(path string, flags int, content []byte) error {
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return a.logger
}

// SetLogger replaces archive logger; nil disables logging.
func (a *Archive) SetLogger(logger *slog.Logger) {
	a.logger = logger
}

// Path returns the V2 archive path or the V1 data file path.
func (a *Archive) Path() string {
	return a.path
}

// DirPath returns the paired V1 .dir path; empty for V2.
func (a *Archive) DirPath() string {
	return a.dirPath
}

// Version returns the on-disk layout.
func (a *Archive) Version() Version {
	return a.version
}

// IsModified reports whether any add/delete/rename happened since open or last rebuild.
func (a *Archive) IsModified() bool {
	return a.modified
}

// Len returns number of live entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns live entries in directory order. The slice is a copy;
// entries are shared with the archive.
func (a *Archive) Entries() []*Entry {
	out := make([]*Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// DeletedEntries returns disk-backed entries pending removal.
func (a *Archive) DeletedEntries() []*Entry {
	out := make([]*Entry, len(a.deleted))
	copy(out, a.deleted)
	return out
}

// DeletedEntryNames returns names of entries pending removal.
func (a *Archive) DeletedEntryNames() []string {
	names := make([]string, 0, len(a.deleted))
	for _, e := range a.deleted {
		names = append(names, e.Name)
	}

	return names
}

// Entry finds a live entry by case-insensitive name.
func (a *Archive) Entry(name string) (*Entry, bool) {
	idx := a.indexOfName(NormalizeName(name))
	if idx < 0 {
		return nil, false
	}

	return a.entries[idx], true
}

// indexOfName returns live entry index for name or -1.
func (a *Archive) indexOfName(name string) int {
	key := entryKey(name)
	for i, e := range a.entries {
		if entryKey(e.Name) == key {
			return i
		}
	}

	return -1
}

// indexOfEntry returns live entry index by identity or -1.
func (a *Archive) indexOfEntry(entry *Entry) int {
	for i, e := range a.entries {
		if e == entry {
			return i
		}
	}

	return -1
}

// CalculateNextOffset returns a provisional sector offset for a new entry.
// The result is at or beyond the end of every live entry and, for V2, beyond
// the header and directory. Rebuild recomputes real offsets.
func (a *Archive) CalculateNextOffset() uint32 {
	var next int64
	if a.version != V1 {
		next = sectorsFor(v2HeaderSize + int64(len(a.entries)+1)*recordSize)
	}

	for _, e := range a.entries {
		if end := int64(e.Offset) + int64(e.Size); end > next {
			next = end
		}
	}

	if next > maxOffsetValue {
		return maxOffsetValue
	}

	return uint32(next)
}

// ModificationSummary reports pending changes.
func (a *Archive) ModificationSummary() Summary {
	s := Summary{
		TotalEntries:   len(a.entries),
		DeletedEntries: len(a.deleted),
		IsModified:     a.modified,
	}

	flagged := false
	for _, e := range a.entries {
		if !e.onDisk {
			s.NewEntries++
		} else if e.newOrModified {
			s.ModifiedEntries++
		}

		if e.newOrModified {
			flagged = true
		}
	}

	s.NeedsSave = a.modified && (flagged || len(a.deleted) > 0)
	return s
}

// Statistics aggregates live entries by type.
func (a *Archive) Statistics() Statistics {
	stats := Statistics{
		ByType:  make(map[string]TypeStats, 8),
		Entries: len(a.entries),
	}

	for _, e := range a.entries {
		typ := e.Type()
		ts := stats.ByType[typ]
		ts.Count++
		ts.Sectors += int64(e.Size)
		stats.ByType[typ] = ts
		stats.Sectors += int64(e.Size)
	}

	return stats
}

// Types returns sorted distinct entry types of live entries.
func (a *Archive) Types() []string {
	seen := make(map[string]struct{}, 8)
	for _, e := range a.entries {
		seen[e.Type()] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for typ := range seen {
		if typ == "" {
			continue
		}

		out = append(out, typ)
	}

	sort.Strings(out)
	return out
}

// sameFile reports whether two paths resolve to the same file.
func sameFile(left string, right string) bool {
	leftAbs, leftErr := filepath.Abs(left)
	rightAbs, rightErr := filepath.Abs(right)
	if leftErr == nil && rightErr == nil && leftAbs == rightAbs {
		return true
	}

	leftInfo, leftErr := os.Stat(left)
	rightInfo, rightErr := os.Stat(right)
	return leftErr == nil && rightErr == nil && os.SameFile(leftInfo, rightInfo)
}
