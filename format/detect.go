// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

// Package format classifies game asset payloads stored in IMG archives.
//
// Detection is a pure function over the first bytes of a payload and an
// optional file name hint. It recognizes collision files (COL1..COL4),
// binary item placement files and RenderWare streams (DFF models, TXD
// texture dictionaries), and decodes the RenderWare library version.
// Detect never fails: unrecognized or short input degrades to KindUnknown.
package format

import (
	"encoding/binary"
	"path"
	"strings"
)

// ProbeSize is the number of leading payload bytes Detect needs to produce a full answer.
const ProbeSize = 64

// Labels used when no version can be determined.
const (
	LabelUnknown = "Unknown"
	LabelInvalid = "Invalid"
)

// Kind identifies a payload format family.
type Kind uint8

// Supported format kinds.
const (
	// KindUnknown means the payload was not recognized.
	KindUnknown Kind = iota
	// KindDFF is a RenderWare clump (model).
	KindDFF
	// KindTXD is a RenderWare texture dictionary.
	KindTXD
	// KindRW is a RenderWare stream that is neither clearly DFF nor TXD.
	KindRW
	// KindCOL is a collision archive.
	KindCOL
	// KindIPL is a binary item placement file.
	KindIPL
)

// String returns short kind label.
func (k Kind) String() string {
	switch k {
	case KindDFF:
		return "DFF"
	case KindTXD:
		return "TXD"
	case KindRW:
		return "RW"
	case KindCOL:
		return "COL"
	case KindIPL:
		return "IPL"
	default:
		return "Unknown"
	}
}

// IsRenderWare reports whether kind is a RenderWare stream.
func (k Kind) IsRenderWare() bool {
	return k == KindDFF || k == KindTXD || k == KindRW
}

// Info is the detection result for one payload.
type Info struct {
	// Label is a human readable version string, e.g. "3.6.0.3 (SA)".
	Label string `json:"label" yaml:"label"`
	// Kind is the detected format family.
	Kind Kind `json:"kind" yaml:"kind"`
	// Version is the decoded RenderWare version code (zero when not RenderWare).
	Version uint32 `json:"version,omitempty" yaml:"version,omitempty"`
	// Build is the RenderWare build code from packed library IDs (zero when absent).
	Build uint32 `json:"build,omitempty" yaml:"build,omitempty"`
}

// colSignatures maps collision file magic to labels.
var colSignatures = map[string]string{
	"COLL": "COL1 (GTA III/VC)",
	"COL2": "COL2 (SA)",
	"COL3": "COL3 (SA)",
	"COL4": "COL4",
}

// iplBinaryMagic opens binary item placement files.
const iplBinaryMagic = "bnry"

// Detect classifies data using filename as extension hint.
func Detect(data []byte, filename string) Info {
	if len(data) >= 4 {
		magic := string(data[:4])
		if label, ok := colSignatures[magic]; ok {
			return Info{Kind: KindCOL, Label: label}
		}

		if magic == iplBinaryMagic {
			return Info{Kind: KindIPL, Label: "Binary IPL"}
		}
	}

	if len(data) < 12 {
		return Info{Kind: KindUnknown, Label: LabelInvalid}
	}

	chunkID := binary.LittleEndian.Uint32(data[0:4])
	libraryID := binary.LittleEndian.Uint32(data[8:12])
	version, build := DecodeLibraryID(libraryID)
	if !ValidVersion(version) {
		return Info{Kind: KindUnknown, Label: LabelUnknown}
	}

	kind := kindFor(filename, chunkID)

	var details []string
	if game := GameForVersion(version); game != "" {
		details = append(details, game)
	}
	if kind == KindTXD {
		if platform := txdPlatform(data); platform != "" {
			details = append(details, platform)
		}
	}

	label := VersionString(version)
	if len(details) > 0 {
		label += " (" + strings.Join(details, ", ") + ")"
	}

	return Info{
		Kind:    kind,
		Label:   label,
		Version: version,
		Build:   build,
	}
}

// kindFor picks DFF/TXD from the extension hint, then from the root chunk ID.
func kindFor(filename string, chunkID uint32) Kind {
	switch strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/"))) {
	case ".dff":
		return KindDFF
	case ".txd":
		return KindTXD
	}

	switch chunkID {
	case chunkClump:
		return KindDFF
	case chunkTexDictionary:
		return KindTXD
	default:
		return KindRW
	}
}
