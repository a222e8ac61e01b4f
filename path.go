// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// NormalizeName converts a host path or raw name to an IMG entry name.
// IMG directories are flat, so only the last path element is kept.
func NormalizeName(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	if idx := strings.LastIndexByte(raw, '/'); idx >= 0 {
		raw = raw[idx+1:]
	}

	return strings.TrimSpace(raw)
}

// truncateName cuts name to the 23-byte directory limit on a rune boundary.
// It reports whether the name was shortened.
func truncateName(name string) (string, bool) {
	if len(name) <= maxNameLen {
		return name, false
	}

	cut := maxNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}

	return name[:cut], true
}

// prepareEntryName normalizes, validates and truncates a caller supplied name.
func prepareEntryName(raw string) (name string, truncated bool, err error) {
	name = NormalizeName(raw)
	if name == "" {
		return "", false, ErrEmptyEntryName
	}

	if strings.IndexByte(name, 0) >= 0 {
		return "", false, fmt.Errorf("%w: %q contains NUL", ErrInvalidEntryName, raw)
	}

	if !isASCII(name) {
		return "", false, fmt.Errorf("%w: %q is not ASCII", ErrInvalidEntryName, raw)
	}

	name, truncated = truncateName(name)
	return name, truncated, nil
}

// entryKey returns case-insensitive lookup key for entry name.
func entryKey(name string) string {
	return strings.ToLower(name)
}

// entryType returns upper-cased extension without dot, or empty string.
func entryType(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}

	return strings.ToUpper(name[idx+1:])
}

// decodeName decodes a null-padded directory name field.
// Bytes outside ASCII are replaced with U+FFFD.
func decodeName(field []byte) string {
	field = nameBytes(field)
	if isASCII(field) {
		return string(field)
	}

	var sb strings.Builder
	sb.Grow(len(field) + 8)
	for _, b := range field {
		if b >= utf8.RuneSelf {
			sb.WriteRune(utf8.RuneError)
			continue
		}

		sb.WriteByte(b)
	}

	return sb.String()
}

// nameBytes returns the field bytes before the first NUL.
func nameBytes(field []byte) []byte {
	if idx := bytes.IndexByte(field, 0); idx >= 0 {
		return field[:idx]
	}

	return field
}

// rawNameBytes returns a copy of the stored name bytes when decodeName is
// lossy for field, nil otherwise. The copy is capped at the name limit.
func rawNameBytes(field []byte) []byte {
	field = nameBytes(field)
	if isASCII(field) {
		return nil
	}

	if len(field) > maxNameLen {
		field = field[:maxNameLen]
	}

	return bytes.Clone(field)
}

// nameTerminated reports whether the name field carries a NUL terminator.
func nameTerminated(field []byte) bool {
	return bytes.IndexByte(field[:nameFieldSize], 0) >= 0
}

// isASCII reports whether s holds only 7-bit bytes.
func isASCII[T string | []byte](s T) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}

	return true
}

// encodeName writes name into a zeroed 24-byte directory field.
// Every non-ASCII rune is stored as a single '?' byte.
func encodeName(dst []byte, name string) {
	clear(dst[:nameFieldSize])
	n := 0
	for _, r := range name {
		if n == maxNameLen {
			break
		}

		if r >= utf8.RuneSelf {
			dst[n] = '?'
		} else {
			dst[n] = byte(r)
		}
		n++
	}
}

// encodeRawName writes stored name bytes back unchanged into a zeroed field.
func encodeRawName(dst []byte, raw []byte) {
	clear(dst[:nameFieldSize])
	copy(dst[:maxNameLen], raw)
}

// pairedDirPath returns the .dir path for a V1 data file path.
func pairedDirPath(dataPath string) string {
	return strings.TrimSuffix(dataPath, filepath.Ext(dataPath)) + dirExt
}

// pairedDataPath returns the .img path for a V1 .dir path.
func pairedDataPath(dirPath string) string {
	return strings.TrimSuffix(dirPath, filepath.Ext(dirPath)) + imgExt
}

// isDirPath reports whether path points at a V1 directory file.
func isDirPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), dirExt)
}
