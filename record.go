// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// RecordKind discriminates parsed container records.
type RecordKind uint8

// Container record kinds.
const (
	// KindRoot is the GGPK root record at offset zero.
	KindRoot RecordKind = iota + 1
	// KindDir is a PDIR directory record.
	KindDir
	// KindFile is a FILE data record.
	KindFile
	// KindFree is a FREE dead-space record.
	KindFree
)

// String returns the wire tag of the record kind.
func (k RecordKind) String() string {
	switch k {
	case KindRoot:
		return tagRoot
	case KindDir:
		return tagDir
	case KindFile:
		return tagFile
	case KindFree:
		return tagFree
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DirEntry is one child reference inside a directory record. Entry tables
// are sorted by NameHash.
type DirEntry struct {
	// NameHash is the hash of the child record name (see NameHash).
	NameHash uint32
	// Offset is the absolute offset of the child record.
	Offset int64
}

// Record is one parsed container record.
type Record struct {
	// Name is the decoded record name; empty for the top directory.
	Name string
	// Entries holds directory child references; nil for non-directories.
	Entries []DirEntry
	// Digest is SHA-256 over the file data (files) or the child entry table
	// (directories).
	Digest [digestSize]byte
	// Offset is the absolute record offset.
	Offset int64
	// DataOffset is the absolute offset of the file data or the entry table.
	DataOffset int64
	// Length is the whole record length, header included.
	Length uint32
	// DataSize is the file data size in bytes; zero for directories.
	DataSize uint32
	// Kind discriminates the record type.
	Kind RecordKind
}

// IsDir reports whether the record is a directory.
func (r *Record) IsDir() bool {
	return r.Kind == KindDir
}

// IsFile reports whether the record is a file.
func (r *Record) IsFile() bool {
	return r.Kind == KindFile
}

// FreeSpan is one FREE record in the free list.
type FreeSpan struct {
	// Offset is the absolute record offset.
	Offset int64
	// Next is the absolute offset of the next FREE record, zero at list end.
	Next int64
	// Length is the whole record length, header included.
	Length uint32
}

// readRecordHead reads and bounds-checks one record header.
func (c *Container) readRecordHead(off int64) (uint32, string, error) {
	if off < 0 || off > c.size-recordHeaderSize {
		return 0, "", fmt.Errorf("%w: record offset %d out of bounds", ErrCorruptRecord, off)
	}

	var head [recordHeaderSize]byte
	if _, err := c.ra.ReadAt(head[:], off); err != nil {
		return 0, "", fmt.Errorf("read record header at %d: %w", off, err)
	}

	length := binary.LittleEndian.Uint32(head[0:4])
	if length < recordHeaderSize || int64(length) > c.size-off {
		return 0, "", fmt.Errorf("%w: record at %d declares %d bytes", ErrCorruptRecord, off, length)
	}

	return length, string(head[4:8]), nil
}

// parseRecordAt parses the record at an absolute offset. The root GGPK
// record is handled separately during open.
func (c *Container) parseRecordAt(off int64) (*Record, error) {
	length, tag, err := c.readRecordHead(off)
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagDir:
		return c.parseDirRecord(off, length)
	case tagFile:
		return c.parseFileRecord(off, length)
	case tagFree:
		return &Record{Kind: KindFree, Offset: off, Length: length}, nil
	default:
		return nil, fmt.Errorf("%w: record at %d has tag %q", ErrCorruptRecord, off, tag)
	}
}

// parseDirRecord decodes one PDIR record including its child entry table.
func (c *Container) parseDirRecord(off int64, length uint32) (*Record, error) {
	payload := make([]byte, length-recordHeaderSize)
	if _, err := c.ra.ReadAt(payload, off+recordHeaderSize); err != nil {
		return nil, fmt.Errorf("read directory record at %d: %w", off, err)
	}
	if len(payload) < 8+digestSize {
		return nil, fmt.Errorf("%w: directory record at %d is too short", ErrCorruptRecord, off)
	}

	nameLen := int32(binary.LittleEndian.Uint32(payload[0:4]))
	childCount := int32(binary.LittleEndian.Uint32(payload[4:8]))

	if nameLen <= 0 || nameLen > maxNameLen {
		return nil, fmt.Errorf("%w: directory record at %d", ErrNameTooLong, off)
	}
	if childCount < 0 || childCount > maxChildCount {
		return nil, fmt.Errorf("%w: directory at %d declares %d children", ErrCorruptRecord, off, childCount)
	}

	cu := c.codeUnitSize()
	nameEnd := int64(8+digestSize) + int64(nameLen)*int64(cu)
	want := nameEnd + int64(childCount)*12
	if want != int64(len(payload)) {
		return nil, fmt.Errorf("%w: directory at %d spans %d bytes, record holds %d",
			ErrCorruptRecord, off, want+recordHeaderSize, length)
	}

	name, err := c.decodeName(payload[8+digestSize : nameEnd])
	if err != nil {
		return nil, fmt.Errorf("directory record at %d: %w", off, err)
	}

	entries := make([]DirEntry, childCount)
	for i := range entries {
		e := payload[nameEnd+int64(i)*12:]
		entries[i] = DirEntry{
			NameHash: binary.LittleEndian.Uint32(e[0:4]),
			Offset:   int64(binary.LittleEndian.Uint64(e[4:12])),
		}
	}

	rec := &Record{
		Kind:       KindDir,
		Name:       name,
		Entries:    entries,
		Offset:     off,
		DataOffset: off + recordHeaderSize + nameEnd,
		Length:     length,
	}
	copy(rec.Digest[:], payload[8:8+digestSize])

	return rec, nil
}

// parseFileRecord decodes one FILE record header; data stays on disk.
func (c *Container) parseFileRecord(off int64, length uint32) (*Record, error) {
	var fixed [4 + digestSize]byte
	if int64(length) < recordHeaderSize+int64(len(fixed)) {
		return nil, fmt.Errorf("%w: file record at %d is too short", ErrCorruptRecord, off)
	}
	if _, err := c.ra.ReadAt(fixed[:], off+recordHeaderSize); err != nil {
		return nil, fmt.Errorf("read file record at %d: %w", off, err)
	}

	nameLen := int32(binary.LittleEndian.Uint32(fixed[0:4]))
	if nameLen <= 0 || nameLen > maxNameLen {
		return nil, fmt.Errorf("%w: file record at %d", ErrNameTooLong, off)
	}

	cu := c.codeUnitSize()
	nameBytes := int64(nameLen) * int64(cu)
	headerLen := recordHeaderSize + int64(len(fixed)) + nameBytes
	if headerLen > int64(length) {
		return nil, fmt.Errorf("%w: file at %d declares name beyond record end", ErrCorruptRecord, off)
	}

	rawName := make([]byte, nameBytes)
	if _, err := c.ra.ReadAt(rawName, off+recordHeaderSize+int64(len(fixed))); err != nil {
		return nil, fmt.Errorf("read file record name at %d: %w", off, err)
	}

	name, err := c.decodeName(rawName)
	if err != nil {
		return nil, fmt.Errorf("file record at %d: %w", off, err)
	}

	rec := &Record{
		Kind:       KindFile,
		Name:       name,
		Offset:     off,
		DataOffset: off + headerLen,
		Length:     length,
		DataSize:   length - uint32(headerLen),
	}
	copy(rec.Digest[:], fixed[4:])

	return rec, nil
}

// parseFreeSpan decodes one FREE record.
func (c *Container) parseFreeSpan(off int64) (FreeSpan, error) {
	length, tag, err := c.readRecordHead(off)
	if err != nil {
		return FreeSpan{}, err
	}
	if tag != tagFree {
		return FreeSpan{}, fmt.Errorf("%w: expected FREE at %d, found %q", ErrFreeListCorrupt, off, tag)
	}
	if length < minFreeRecordLen {
		return FreeSpan{}, fmt.Errorf("%w: FREE at %d declares %d bytes", ErrFreeListCorrupt, off, length)
	}

	var next [8]byte
	if _, err := c.ra.ReadAt(next[:], off+recordHeaderSize); err != nil {
		return FreeSpan{}, fmt.Errorf("read FREE record at %d: %w", off, err)
	}

	return FreeSpan{
		Offset: off,
		Length: length,
		Next:   int64(binary.LittleEndian.Uint64(next[:])),
	}, nil
}

// codeUnitSize returns the record name code unit width for the container version.
func (c *Container) codeUnitSize() int {
	if c.version == VersionUTF32 {
		return 4
	}

	return 2
}

// decodeName decodes one NUL-terminated record name in the container's
// version encoding.
func (c *Container) decodeName(raw []byte) (string, error) {
	if c.version == VersionUTF32 {
		if len(raw) < 4 || len(raw)%4 != 0 {
			return "", fmt.Errorf("%w: name length %d", ErrCorruptRecord, len(raw))
		}

		runes := make([]rune, 0, len(raw)/4-1)
		for i := 0; i < len(raw); i += 4 {
			runes = append(runes, rune(binary.LittleEndian.Uint32(raw[i:])))
		}
		if runes[len(runes)-1] != 0 {
			return "", fmt.Errorf("%w: name is not NUL-terminated", ErrCorruptRecord)
		}

		return string(runes[:len(runes)-1]), nil
	}

	if len(raw) < 2 || len(raw)%2 != 0 {
		return "", fmt.Errorf("%w: name length %d", ErrCorruptRecord, len(raw))
	}

	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	if units[len(units)-1] != 0 {
		return "", fmt.Errorf("%w: name is not NUL-terminated", ErrCorruptRecord)
	}

	return string(utf16.Decode(units[:len(units)-1])), nil
}

// encodeName encodes a record name with a trailing NUL in the container's
// version encoding. It returns the encoded bytes and the code unit count.
func (c *Container) encodeName(name string) ([]byte, int32, error) {
	runes := []rune(name)

	if c.version == VersionUTF32 {
		units := len(runes) + 1
		if units > maxNameLen {
			return nil, 0, fmt.Errorf("%w: %q", ErrNameTooLong, name)
		}

		buf := make([]byte, 4*units)
		for i, r := range runes {
			binary.LittleEndian.PutUint32(buf[4*i:], uint32(r))
		}

		return buf, int32(units), nil
	}

	encoded := utf16.Encode(runes)
	units := len(encoded) + 1
	if units > maxNameLen {
		return nil, 0, fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}

	buf := make([]byte, 2*units)
	for i, u := range encoded {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}

	return buf, int32(units), nil
}
