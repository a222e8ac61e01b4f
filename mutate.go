// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AddEntry stores data under name in memory.
//
// Names longer than 23 bytes are truncated with a logged warning. When a live
// entry with the same case-insensitive name exists, its payload is replaced
// and its original casing kept. Otherwise a new entry is appended with a
// provisional offset. The archive file is not touched until Rebuild.
func (a *Archive) AddEntry(name string, data []byte) error {
	if a == nil {
		return ErrNilArchive
	}

	entryName, truncated, err := prepareEntryName(name)
	if err != nil {
		return err
	}

	if err := validateEntryData(entryName, data); err != nil {
		return err
	}

	if truncated {
		a.log().Warn("entry name truncated", "name", name, "stored", entryName, "limit", maxNameLen)
	}

	payload := bytes.Clone(data)
	if idx := a.indexOfName(entryName); idx >= 0 {
		existing := a.entries[idx]
		existing.setData(payload, a.version)
		a.modified = true
		a.log().Debug("entry replaced", "name", existing.Name, "size", existing.Size)
		return nil
	}

	entry := &Entry{
		Name:   entryName,
		Offset: a.CalculateNextOffset(),
	}
	entry.setData(payload, a.version)

	a.entries = append(a.entries, entry)
	a.modified = true
	a.log().Debug("entry added", "name", entry.Name, "size", entry.Size, "offset", entry.Offset)
	return nil
}

// ImportFile reads a host file and adds it under name (base name of path when empty).
func (a *Archive) ImportFile(path string, name string) error {
	if a == nil {
		return ErrNilArchive
	}

	if name == "" {
		name = filepath.Base(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}

	return a.AddEntry(name, data)
}

// ImportReader reads src fully and adds it under name.
func (a *Archive) ImportReader(name string, src io.Reader) error {
	if a == nil {
		return ErrNilArchive
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("import %s: %w", name, err)
	}

	return a.AddEntry(name, data)
}

// validateEntryData rejects empty payloads and payloads beyond u32 sector range.
func validateEntryData(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyEntryData, name)
	}

	if sectorsFor(int64(len(data))) > maxOffsetValue {
		return fmt.Errorf("%w: entry %s is %d bytes", ErrSizeOverflow, name, len(data))
	}

	return nil
}

// DeleteEntries removes entries by identity.
//
// Disk-backed entries move to the deleted list so they can be restored;
// entries added in memory and never saved are dropped. Entries that are not
// live in this archive are returned as failed.
func (a *Archive) DeleteEntries(entries ...*Entry) (int, []*Entry) {
	if a == nil {
		return 0, entries
	}

	var (
		removed int
		failed  []*Entry
	)

	for _, entry := range entries {
		idx := a.indexOfEntry(entry)
		if entry == nil || idx < 0 {
			failed = append(failed, entry)
			continue
		}

		a.entries = append(a.entries[:idx], a.entries[idx+1:]...)
		if entry.onDisk {
			a.deleted = append(a.deleted, entry)
		}

		removed++
		a.modified = true
		a.log().Debug("entry deleted", "name", entry.Name, "restorable", entry.onDisk)
	}

	return removed, failed
}

// DeleteEntriesByName removes entries by case-insensitive name and returns
// the removed count and names that were not found.
func (a *Archive) DeleteEntriesByName(names ...string) (int, []string) {
	if a == nil {
		return 0, names
	}

	var (
		removed  int
		notFound []string
	)

	for _, name := range names {
		entry, ok := a.Entry(name)
		if !ok {
			notFound = append(notFound, name)
			continue
		}

		n, _ := a.DeleteEntries(entry)
		removed += n
	}

	return removed, notFound
}

// RenameEntry renames a live entry in memory.
//
// The new name must not collide case-insensitively with another live entry.
// Renaming a disk-backed entry keeps its original bytes; Rebuild reads them
// from the old offset.
func (a *Archive) RenameEntry(entry *Entry, newName string) error {
	if a == nil {
		return ErrNilArchive
	}

	if a.indexOfEntry(entry) < 0 {
		return ErrEntryNotFound
	}

	name, truncated, err := prepareEntryName(newName)
	if err != nil {
		return err
	}

	if idx := a.indexOfName(name); idx >= 0 && a.entries[idx] != entry {
		return fmt.Errorf("%w: %q", ErrDuplicateEntryName, name)
	}

	if truncated {
		a.log().Warn("entry name truncated", "name", newName, "stored", name, "limit", maxNameLen)
	}

	if name == entry.Name {
		return nil
	}

	a.log().Debug("entry renamed", "from", entry.Name, "to", name)
	entry.Name = name
	entry.rawName = nil
	entry.format = nil
	entry.newOrModified = true
	a.modified = true
	return nil
}

// RestoreDeletedEntry moves a deleted entry back to the end of live entries.
func (a *Archive) RestoreDeletedEntry(name string) error {
	if a == nil {
		return ErrNilArchive
	}

	key := entryKey(NormalizeName(name))
	for i, entry := range a.deleted {
		if entryKey(entry.Name) != key {
			continue
		}

		if a.indexOfName(entry.Name) >= 0 {
			return fmt.Errorf("%w: %q", ErrDuplicateEntryName, entry.Name)
		}

		a.deleted = append(a.deleted[:i], a.deleted[i+1:]...)
		a.entries = append(a.entries, entry)
		a.log().Debug("entry restored", "name", entry.Name)
		return nil
	}

	return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
}

// RestoreAllDeletedEntries restores every deleted entry whose name is free
// and returns the restored count.
func (a *Archive) RestoreAllDeletedEntries() int {
	if a == nil {
		return 0
	}

	restored := 0
	kept := a.deleted[:0]
	for _, entry := range a.deleted {
		if a.indexOfName(entry.Name) >= 0 {
			kept = append(kept, entry)
			continue
		}

		a.entries = append(a.entries, entry)
		restored++
	}

	clear(a.deleted[len(kept):])
	a.deleted = kept
	return restored
}
