// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// firstFreeFieldOffset is the absolute offset of the free list head field
// inside the root record.
const firstFreeFieldOffset = 20

// Replace overwrites the content of a file record in place. Same-length
// data reuses the record span; shorter data shrinks it and releases a FREE
// remainder; longer data moves the record to a best-fit FREE span or to the
// end of the archive, updating the parent entry table. The container must
// have been opened writable.
func (c *Container) Replace(path string, data []byte) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if c.w == nil {
		return ErrReadOnly
	}

	normalized, err := normalizeArchiveEntryPath(path)
	if err != nil {
		return err
	}

	parent, rec, err := c.resolveFileWithParent(normalized)
	if err != nil {
		return err
	}

	newRec, err := c.buildFileRecord(rec.Name, data)
	if err != nil {
		return err
	}
	newLength := uint32(len(newRec))

	switch {
	case newLength == rec.Length:
		if err := c.writeAt(newRec, rec.Offset); err != nil {
			return err
		}

	case newLength+minFreeRecordLen <= rec.Length:
		if err := c.writeAt(newRec, rec.Offset); err != nil {
			return err
		}

		remOff := rec.Offset + int64(newLength)
		if err := c.writeFreeRecord(remOff, rec.Length-newLength, c.firstFree); err != nil {
			return err
		}
		if err := c.setFirstFree(remOff); err != nil {
			return err
		}

	default:
		if err := c.relocateFileRecord(parent, rec, newRec); err != nil {
			return err
		}
	}

	c.logger.Debug("file replaced",
		zap.String("path", normalized),
		zap.Uint32("old_length", rec.Length),
		zap.Uint32("new_length", newLength))

	return nil
}

// resolveFileWithParent walks a normalized path and returns the target
// file record together with its parent directory.
func (c *Container) resolveFileWithParent(normalized string) (*Record, *Record, error) {
	segs := splitPath(normalized)

	parent, err := c.Root()
	if err != nil {
		return nil, nil, err
	}
	for _, seg := range segs[:len(segs)-1] {
		parent, err = c.ChildByName(parent, seg)
		if err != nil {
			return nil, nil, err
		}
		if parent == nil || parent.Kind != KindDir {
			return nil, nil, fmt.Errorf("%w: %s", ErrEntryNotFound, normalized)
		}
	}

	rec, err := c.ChildByName(parent, segs[len(segs)-1])
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrEntryNotFound, normalized)
	}
	if rec.Kind != KindFile {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFile, normalized)
	}

	return parent, rec, nil
}

// relocateFileRecord writes a grown record into a best-fit FREE span or at
// the archive end, repoints the parent entry and frees the old span.
func (c *Container) relocateFileRecord(parent, rec *Record, newRec []byte) error {
	newLength := uint32(len(newRec))

	fit, err := c.findFreeFit(newLength)
	if err != nil {
		return err
	}

	target := c.size
	if fit != nil {
		target = fit.span.Offset
		if fit.span.Length == newLength {
			if err := c.relinkFree(fit.prev, fit.span.Next); err != nil {
				return err
			}
		} else {
			leftOff := target + int64(newLength)
			if err := c.writeFreeRecord(leftOff, fit.span.Length-newLength, fit.span.Next); err != nil {
				return err
			}
			if err := c.relinkFree(fit.prev, leftOff); err != nil {
				return err
			}
		}
	}

	if err := c.writeAt(newRec, target); err != nil {
		return err
	}
	if target == c.size {
		c.size += int64(newLength)
	}

	if err := c.updateParentEntry(parent, rec.Offset, target); err != nil {
		return err
	}

	// The old span joins the free list head.
	if err := c.writeFreeRecord(rec.Offset, rec.Length, c.firstFree); err != nil {
		return err
	}

	return c.setFirstFree(rec.Offset)
}

// buildFileRecord serializes a complete FILE record for a name and content.
func (c *Container) buildFileRecord(name string, data []byte) ([]byte, error) {
	nameRaw, units, err := c.encodeName(name)
	if err != nil {
		return nil, err
	}

	headerLen := recordHeaderSize + 4 + digestSize + len(nameRaw)
	total := int64(headerLen) + int64(len(data))
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("%w: record would span %d bytes", ErrSizeOverflow, total)
	}

	digest := sha256.Sum256(data)

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	copy(buf[4:8], tagFile)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(units))
	copy(buf[12:12+digestSize], digest[:])
	copy(buf[12+digestSize:headerLen], nameRaw)
	copy(buf[headerLen:], data)

	return buf, nil
}

// updateParentEntry repoints one child entry and refreshes the directory
// digest, on disk and in the cached record.
func (c *Container) updateParentEntry(parent *Record, oldOff, newOff int64) error {
	idx := -1
	for i := range parent.Entries {
		if parent.Entries[i].Offset == oldOff {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: directory %q has no entry at offset %d", ErrCorruptRecord, parent.Name, oldOff)
	}

	table := make([]byte, len(parent.Entries)*12)
	for i, e := range parent.Entries {
		off := e.Offset
		if i == idx {
			off = newOff
		}

		binary.LittleEndian.PutUint32(table[i*12:], e.NameHash)
		binary.LittleEndian.PutUint64(table[i*12+4:], uint64(off))
	}
	digest := sha256.Sum256(table)

	if err := c.writeAt(table[idx*12+4:idx*12+12], parent.DataOffset+int64(idx)*12+4); err != nil {
		return err
	}
	// The directory digest covers the child entry table and sits after the
	// name length and child count fields.
	if err := c.writeAt(digest[:], parent.Offset+recordHeaderSize+8); err != nil {
		return err
	}

	parent.Entries[idx].Offset = newOff
	parent.Digest = digest

	return nil
}

// freeFit is one usable FREE span and the offset of its list predecessor,
// zero when the span is the list head.
type freeFit struct {
	span FreeSpan
	prev int64
}

// findFreeFit scans the free list for the smallest span that fits a record
// of the given length exactly or with room for a FREE remainder.
func (c *Container) findFreeFit(need uint32) (*freeFit, error) {
	var best *freeFit

	prev := int64(0)
	visited := make(map[int64]struct{})
	for off := c.firstFree; off != 0; {
		if _, ok := visited[off]; ok {
			return nil, fmt.Errorf("%w: cycle at %d", ErrFreeListCorrupt, off)
		}
		visited[off] = struct{}{}

		span, err := c.parseFreeSpan(off)
		if err != nil {
			return nil, err
		}

		usable := span.Length == need || span.Length >= need+minFreeRecordLen
		if usable && (best == nil || span.Length < best.span.Length) {
			best = &freeFit{span: span, prev: prev}
		}

		prev = off
		off = span.Next
	}

	return best, nil
}

// relinkFree points a free list link at a new successor. A zero prev
// addresses the list head field in the root record.
func (c *Container) relinkFree(prev, next int64) error {
	if prev == 0 {
		return c.setFirstFree(next)
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(next))

	return c.writeAt(buf[:], prev+recordHeaderSize)
}

// writeFreeRecord writes a FREE record head covering a span.
func (c *Container) writeFreeRecord(off int64, length uint32, next int64) error {
	var buf [minFreeRecordLen]byte
	binary.LittleEndian.PutUint32(buf[0:4], length)
	copy(buf[4:8], tagFree)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(next))

	return c.writeAt(buf[:], off)
}

// setFirstFree updates the free list head on disk and in memory.
func (c *Container) setFirstFree(off int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(off))
	if err := c.writeAt(buf[:], firstFreeFieldOffset); err != nil {
		return err
	}

	c.firstFree = off

	return nil
}

// writeAt writes a full buffer at an absolute offset.
func (c *Container) writeAt(p []byte, off int64) error {
	if _, err := c.w.WriteAt(p, off); err != nil {
		return fmt.Errorf("write at %d: %w", off, err)
	}

	return nil
}
