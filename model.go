// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"io"
	"log/slog"
	"runtime"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	SectorSize = 2048 // allocation unit for all offsets and sizes

	nameFieldSize  = 24        // null-padded name field in directory records
	maxNameLen     = 23        // max encoded entry name length (one byte kept for NUL)
	recordSize     = 32        // directory record size for both V1 and V2
	v2HeaderSize   = 8         // "VER2" + u32 entry count
	v2Magic        = "VER2"    // V2 file signature
	maxV2Sectors   = 0xffff    // V2 stores sizes as u16
	formatProbeLen = 64        // bytes read for format detection
	dirExt         = ".dir"    // V1 directory file extension
	imgExt         = ".img"    // V1 data / V2 archive extension
	maxOffsetValue = 1<<32 - 1 // u32 sector offset limit
)

// Default rebuild tuning values.
const (
	DefaultCopyBufferSize  = 1024 * 1024
	DefaultWriteBufferSize = 4 * 1024 * 1024
)

// Version identifies the on-disk IMG layout.
type Version uint8

// Supported IMG layouts.
const (
	// VersionUnknown is the zero value; rebuild resolves it to V2.
	VersionUnknown Version = iota
	// V1 is the GTA III / Vice City layout: headerless data file plus a paired .dir file.
	V1
	// V2 is the San Andreas layout: single self-describing file starting with "VER2".
	V2
)

// String returns short version label.
func (v Version) String() string {
	switch v {
	case V1:
		return "V1"
	case V2:
		return "V2"
	default:
		return "unknown"
	}
}

// valid reports whether v is a concrete layout.
func (v Version) valid() bool {
	return v == V1 || v == V2
}

// ProgressFunc receives rebuild progress. Percent is non-decreasing and
// reaches 100 only on success.
type ProgressFunc func(percent int, message string)

// OpenOptions configures archive opening.
type OpenOptions struct {
	// Logger receives parse warnings; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// AnalyzeFormats runs format detection for every entry right after open.
	AnalyzeFormats bool `json:"analyze_formats,omitempty" yaml:"analyze_formats,omitempty"`
	// AnalyzeWorkers bounds parallel format detection (zero means GOMAXPROCS).
	AnalyzeWorkers int `json:"analyze_workers,omitempty" yaml:"analyze_workers,omitempty"`
}

// CreateOptions configures new empty archive creation.
type CreateOptions struct {
	// Logger is stored on the created archive; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Overwrite allows replacing existing files at the target path.
	Overwrite bool `json:"overwrite,omitempty" yaml:"overwrite,omitempty"`
}

// RebuildOptions configures Archive.Rebuild.
type RebuildOptions struct {
	// OnProgress receives coarse progress milestones.
	OnProgress ProgressFunc `json:"-" yaml:"-"`
	// Source overrides the original data bytes (defaults to the archive data file).
	Source io.ReaderAt `json:"-" yaml:"-"`
	// Logger receives rebuild stage messages; defaults to the archive logger.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OutputPath writes the rebuilt archive elsewhere; empty means in-place.
	// For V1 output the .dir file is placed next to it.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	// Version selects output layout; zero keeps the archive version.
	Version Version `json:"version,omitempty" yaml:"version,omitempty"`
	// BackupKeep controls how many backup generations are kept on in-place rebuild.
	// 0 keeps none, 1 keeps `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
	// CopyBufferSize is the chunk size used to copy unmodified entries.
	CopyBufferSize int `json:"copy_buffer_size,omitempty" yaml:"copy_buffer_size,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
	// SortEntries writes entries ordered by case-insensitive name instead of archive order.
	SortEntries bool `json:"sort_entries,omitempty" yaml:"sort_entries,omitempty"`
	// Verify re-reads written entries and compares content digests before the swap.
	Verify bool `json:"verify,omitempty" yaml:"verify,omitempty"`
	// AnalyzeFormats runs format detection on the re-opened archive.
	AnalyzeFormats bool `json:"analyze_formats,omitempty" yaml:"analyze_formats,omitempty"`
}

// ExtractOptions configures Archive.Extract.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry *Entry, written int64, outputPath string) `json:"-" yaml:"-"`
	// Entries limits extraction to selected entries; nil means all live entries.
	Entries []*Entry `json:"-" yaml:"-"`
	// Rules optionally selects entries by name patterns.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// RulesMatcherOptions control rule matching; zero value means case-insensitive, default exclude.
	RulesMatcherOptions pathrules.MatcherOptions `json:"rules_matcher_options,omitzero" yaml:"rules_matcher_options,omitzero"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// Overwrite allows replacing existing output files.
	Overwrite bool `json:"overwrite,omitempty" yaml:"overwrite,omitempty"`
	// TrimPadding drops trailing zero bytes of the last sector of disk-backed entries.
	// The on-disk directory stores no exact byte length, so by default the
	// full sector reservation is written.
	TrimPadding bool `json:"trim_padding,omitempty" yaml:"trim_padding,omitempty"`
	// RawNames disables default file name sanitization.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// applyDefaults fills zero-valued open options with defaults.
func (opts *OpenOptions) applyDefaults() {
	if opts.AnalyzeWorkers <= 0 {
		opts.AnalyzeWorkers = runtime.GOMAXPROCS(0)
	}
}

// applyDefaults fills zero-valued rebuild options with defaults.
func (opts *RebuildOptions) applyDefaults() {
	if opts.CopyBufferSize < SectorSize {
		opts.CopyBufferSize = DefaultCopyBufferSize
	}

	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBufferSize
	}

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}

	if opts.RulesMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.RulesMatcherOptions = defaultRulesMatcherOptions()
	}
}

// sectorsFor returns the number of whole sectors needed for n bytes.
func sectorsFor(n int64) int64 {
	if n <= 0 {
		return 0
	}

	return (n + SectorSize - 1) / SectorSize
}
