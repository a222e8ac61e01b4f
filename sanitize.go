// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"strconv"
	"strings"
	"unicode"
)

var (
	// reservedDOSNames contains case-insensitive reserved DOS/Windows device names.
	reservedDOSNames = map[string]struct{}{
		"aux":    {},
		"clock$": {},
		"com1":   {},
		"com2":   {},
		"com3":   {},
		"com4":   {},
		"com5":   {},
		"com6":   {},
		"com7":   {},
		"com8":   {},
		"com9":   {},
		"con":    {},
		"lpt1":   {},
		"lpt2":   {},
		"lpt3":   {},
		"lpt4":   {},
		"lpt5":   {},
		"lpt6":   {},
		"lpt7":   {},
		"lpt8":   {},
		"lpt9":   {},
		"nul":    {},
		"prn":    {},
	}
)

// SanitizeName rewrites one entry name to a deterministic filesystem-safe file name.
// Path separators, control characters and characters reserved on Windows become "_",
// trailing dots and spaces are dropped, and reserved device names get a "_" prefix.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isUnsafeControlCharRune(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			b.WriteRune('_')
			continue
		}

		b.WriteRune(r)
	}

	sanitized := strings.TrimRight(b.String(), ". ")
	if sanitized == "" {
		return "_"
	}

	if isReservedDeviceName(sanitized) {
		sanitized = "_" + sanitized
	}

	return sanitized
}

// isUnsafeControlCharRune reports whether rune is unsafe for file names and text output.
func isUnsafeControlCharRune(r rune) bool {
	if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
		return true
	}

	// U+FFFD comes from undecodable name bytes.
	return r == '\uFFFD'
}

// isReservedDeviceName reports whether name matches a reserved DOS/Windows device identifier.
func isReservedDeviceName(name string) bool {
	candidate := strings.ToLower(strings.TrimSpace(name))
	if dot := strings.IndexByte(candidate, '.'); dot >= 0 {
		candidate = candidate[:dot]
	}

	candidate = strings.TrimRight(candidate, ". ")
	if candidate == "" {
		return false
	}

	_, ok := reservedDOSNames[candidate]
	return ok
}

// makeNameUnique resolves case-insensitive collisions by adding a deterministic "~N" suffix.
func makeNameUnique(name string, used map[string]struct{}) string {
	key := strings.ToLower(name)
	if _, exists := used[key]; !exists {
		used[key] = struct{}{}
		return name
	}

	for idx := 2; ; idx++ {
		candidate := withNumericSuffix(name, idx)
		candidateKey := strings.ToLower(candidate)
		if _, exists := used[candidateKey]; exists {
			continue
		}

		used[candidateKey] = struct{}{}
		return candidate
	}
}

// withNumericSuffix appends "~N" before the extension.
func withNumericSuffix(name string, n int) string {
	ext := ""
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		ext = name[dot:]
	}

	return strings.TrimSuffix(name, ext) + "~" + strconv.Itoa(n) + ext
}
