// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package format

import (
	"encoding/binary"
	"fmt"
)

// RenderWare chunk identifiers used by detection.
const (
	chunkStruct         = 0x01
	chunkTextureNative  = 0x15
	chunkClump          = 0x10
	chunkTexDictionary  = 0x16
	chunkHeaderSize     = 12
	minVersion          = 0x30000
	maxVersion          = 0x3ffff
	packedVersionMask   = 0xffff0000
	legacyVersionShift  = 8
	txdPlatformOffset   = 3*chunkHeaderSize + 4 + chunkHeaderSize
	txdPlatformFieldLen = 4
)

// Texture native platform identifiers.
const (
	platformD3D8 = 8
	platformD3D9 = 9
	platformXbox = 5
	platformPS2  = 0x00325350 // "PS2\0"
)

// DecodeLibraryID converts a RenderWare library ID into a version code and build.
//
// Values already in 0x30000..0x3FFFF are taken as bare version codes. Packed
// IDs (3.1+) carry the version in the high 16 bits and the build in the low
// 16 bits. Older IDs store the version shifted right by 8.
func DecodeLibraryID(id uint32) (version uint32, build uint32) {
	if ValidVersion(id) {
		return id, 0
	}

	if id&packedVersionMask != 0 {
		version = (id>>14&0x3ff00 + 0x30000) | (id >> 16 & 0x3f)
		return version, id & 0xffff
	}

	return id << legacyVersionShift, 0
}

// EncodeLibraryID packs version and build into a RenderWare library ID.
func EncodeLibraryID(version uint32, build uint32) uint32 {
	v := version - 0x30000
	return (v&0x3ff00)<<14 | (v&0x3f)<<16 | build&0xffff
}

// ValidVersion reports whether version is inside the RenderWare 3.x range.
func ValidVersion(version uint32) bool {
	return version >= minVersion && version <= maxVersion
}

// VersionString formats version code as "major.minor.revision.build".
func VersionString(version uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		version>>16&0xf,
		version>>12&0xf,
		version>>8&0xf,
		version&0xff,
	)
}

// GameForVersion returns the GTA title commonly associated with a version code.
func GameForVersion(version uint32) string {
	switch version {
	case 0x30800, 0x31000, 0x31001, 0x32000:
		return "GTA III"
	case 0x33002:
		return "GTA III/VC"
	case 0x34003, 0x34005:
		return "VC"
	case 0x35000, 0x35002:
		return "Manhunt"
	case 0x36003:
		return "SA"
	default:
		return ""
	}
}

// txdPlatform reads the platform of the first texture native when it fits in data.
func txdPlatform(data []byte) string {
	if len(data) < txdPlatformOffset+txdPlatformFieldLen {
		return ""
	}

	if binary.LittleEndian.Uint32(data[0:4]) != chunkTexDictionary {
		return ""
	}

	// dictionary header, struct header, 4-byte struct body, native header, native struct header
	nativeHeader := 2*chunkHeaderSize + 4
	if binary.LittleEndian.Uint32(data[nativeHeader:nativeHeader+4]) != chunkTextureNative {
		return ""
	}

	nativeStruct := nativeHeader + chunkHeaderSize
	if binary.LittleEndian.Uint32(data[nativeStruct:nativeStruct+4]) != chunkStruct {
		return ""
	}

	switch binary.LittleEndian.Uint32(data[txdPlatformOffset : txdPlatformOffset+txdPlatformFieldLen]) {
	case platformD3D8, platformD3D9:
		return "PC"
	case platformXbox:
		return "Xbox"
	case platformPS2:
		return "PS2"
	default:
		return ""
	}
}
