// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import "github.com/woozymasta/img/format"

// Entry describes one file stored in an IMG archive.
//
// Offsets and sizes are in sectors. For entries added or replaced since the
// archive was opened, Offset is provisional until the next rebuild.
type Entry struct {
	// format caches detection result once computed.
	format *format.Info
	// data holds payload added or replaced in memory; nil means read from file.
	data []byte
	// Name is the entry name (at most 23 bytes).
	Name string `json:"name" yaml:"name"`
	// Offset is the sector offset inside the data file.
	Offset uint32 `json:"offset" yaml:"offset"`
	// Size is the sector reservation.
	Size uint32 `json:"size" yaml:"size"`
	// StreamingSize is the V2 streaming size in sectors (zero on V1).
	StreamingSize uint32 `json:"streaming_size,omitempty" yaml:"streaming_size,omitempty"`
	// Compressed is carried for forward compatibility; payloads are never compressed here.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
	// rawName holds stored name bytes when Name is a lossy decode of them.
	rawName []byte
	// onDisk reports that the entry was read from an archive file.
	onDisk bool
	// newOrModified reports pending in-memory changes (data or rename).
	newOrModified bool
}

// ActualOffset returns payload byte offset.
func (e *Entry) ActualOffset() int64 {
	return int64(e.Offset) * SectorSize
}

// ActualSize returns reserved payload byte size.
func (e *Entry) ActualSize() int64 {
	return int64(e.Size) * SectorSize
}

// StoredSize returns StreamingSize, falling back to Size when it is zero.
func (e *Entry) StoredSize() uint32 {
	if e.StreamingSize == 0 {
		return e.Size
	}

	return e.StreamingSize
}

// Type returns upper-cased extension, e.g. "DFF".
func (e *Entry) Type() string {
	return entryType(e.Name)
}

// IsNewOrModified reports whether the entry has changes not yet written by a rebuild.
func (e *Entry) IsNewOrModified() bool {
	return e.newOrModified
}

// IsNew reports whether the entry was added in memory and never saved.
func (e *Entry) IsNew() bool {
	return !e.onDisk
}

// HasData reports whether payload is held in memory.
func (e *Entry) HasData() bool {
	return e.data != nil
}

// DataLen returns in-memory payload length, or reserved size for file-backed entries.
func (e *Entry) DataLen() int64 {
	if e.data != nil {
		return int64(len(e.data))
	}

	return e.ActualSize()
}

// Format returns cached detection result, if any.
func (e *Entry) Format() (format.Info, bool) {
	if e.format == nil {
		return format.Info{}, false
	}

	return *e.format, true
}

// setData replaces in-memory payload, recomputes sizes and re-runs detection.
func (e *Entry) setData(data []byte, version Version) {
	e.data = data
	e.Size = uint32(sectorsFor(int64(len(data)))) //nolint:gosec // bounded by validateEntryData
	e.StreamingSize = 0
	if version == V2 {
		e.StreamingSize = e.Size
	}

	e.detect(data)
	e.newOrModified = true
}

// detect runs format detection over leading payload bytes and caches the result.
func (e *Entry) detect(payload []byte) {
	if len(payload) > format.ProbeSize {
		payload = payload[:format.ProbeSize]
	}

	info := format.Detect(payload, e.Name)
	e.format = &info
}
