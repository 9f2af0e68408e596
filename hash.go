// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// NameHash returns the directory-entry hash of a record name: MurmurHash2
// (seed 0) over the UTF-16LE bytes of the lower-cased name. Directory entry
// tables are sorted by this value.
func NameHash(name string) uint32 {
	units := utf16.Encode([]rune(strings.ToLower(name)))

	buf := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}

	return murmur2(buf, 0)
}

// murmur2 is the 32-bit MurmurHash2 used by directory entry tables.
func murmur2(data []byte, seed uint32) uint32 {
	const m = 0x5bd1e995
	const r = 24

	h := seed ^ uint32(len(data))

	for len(data) >= 4 {
		k := binary.LittleEndian.Uint32(data)
		k *= m
		k ^= k >> r
		k *= m

		h *= m
		h ^= k

		data = data[4:]
	}

	switch len(data) {
	case 3:
		h ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[0])
		h *= m
	}

	h ^= h >> 13
	h *= m
	h ^= h >> 15

	return h
}
