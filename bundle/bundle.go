// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package bundle

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Binary layout and format limits of the bundle head.
const (
	// bundleLeadSize is the fixed lead: truncated sizes plus head size.
	bundleLeadSize = 12
	// bundleHeadFixedSize is the fixed head part after the lead, before block sizes.
	bundleHeadFixedSize = 48
	// DefaultGranularity is the uncompressed size of one block.
	DefaultGranularity = 256 * 1024
	// maxGranularity bounds the per-block uncompressed size accepted from headers.
	maxGranularity = 16 * 1024 * 1024
	// maxUncompressedSize bounds the whole payload; index spans address uint32 offsets.
	maxUncompressedSize = 1 << 32
)

// Header describes one parsed bundle head.
type Header struct {
	// BlockSizes holds the compressed size of every block in order.
	BlockSizes []uint32
	// UncompressedSize is the total decompressed payload size.
	UncompressedSize uint64
	// PayloadSize is the sum of all compressed block sizes.
	PayloadSize uint64
	// Granularity is the uncompressed size of every block except the last.
	Granularity uint32
	// Codec identifies the block compression algorithm.
	Codec Codec
}

// Bundle provides random access to one block-compressed payload.
type Bundle struct {
	// ra is the underlying random-access source of the raw bundle bytes.
	ra io.ReaderAt
	// header stores the parsed head.
	header Header
	// blockOffsets are absolute offsets of each compressed block within ra.
	blockOffsets []int64
	// size is the total raw source size in bytes.
	size int64
}

// Parse reads and validates a bundle head from a random-access source.
// Payload blocks are not touched until ReadAll or ReadRange.
func Parse(ra io.ReaderAt, size int64) (*Bundle, error) {
	if ra == nil {
		return nil, ErrNilSource
	}
	if size < bundleLeadSize+bundleHeadFixedSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrInvalidHeader, size)
	}

	var lead [bundleLeadSize]byte
	if _, err := ra.ReadAt(lead[:], 0); err != nil {
		return nil, fmt.Errorf("read bundle lead: %w", err)
	}

	uncompressed32 := binary.LittleEndian.Uint32(lead[0:4])
	payload32 := binary.LittleEndian.Uint32(lead[4:8])
	headSize := binary.LittleEndian.Uint32(lead[8:12])

	if headSize < bundleHeadFixedSize || int64(headSize) > size-bundleLeadSize {
		return nil, fmt.Errorf("%w: head size %d out of bounds", ErrInvalidHeader, headSize)
	}
	if (headSize-bundleHeadFixedSize)%4 != 0 {
		return nil, fmt.Errorf("%w: head size %d misaligned", ErrInvalidHeader, headSize)
	}

	head := make([]byte, headSize)
	if _, err := ra.ReadAt(head, bundleLeadSize); err != nil {
		return nil, fmt.Errorf("read bundle head: %w", err)
	}

	h := Header{
		Codec:            Codec(binary.LittleEndian.Uint32(head[0:4])),
		UncompressedSize: binary.LittleEndian.Uint64(head[8:16]),
		PayloadSize:      binary.LittleEndian.Uint64(head[16:24]),
		Granularity:      binary.LittleEndian.Uint32(head[28:32]),
	}
	blockCount := binary.LittleEndian.Uint32(head[24:28])

	if h.UncompressedSize > maxUncompressedSize {
		return nil, fmt.Errorf("%w: uncompressed size %d", ErrSizeOverflow, h.UncompressedSize)
	}
	if uint32(h.UncompressedSize) != uncompressed32 || uint32(h.PayloadSize) != payload32 {
		return nil, fmt.Errorf("%w: truncated size fields disagree with head", ErrInvalidHeader)
	}
	if h.Granularity == 0 || h.Granularity > maxGranularity {
		return nil, fmt.Errorf("%w: granularity %d", ErrInvalidHeader, h.Granularity)
	}
	if uint32(len(head)-bundleHeadFixedSize)/4 != blockCount {
		return nil, fmt.Errorf("%w: head size %d does not fit %d blocks", ErrInvalidHeader, headSize, blockCount)
	}
	if want := blockCountFor(h.UncompressedSize, h.Granularity); blockCount != want {
		return nil, fmt.Errorf("%w: %d blocks for %d bytes at granularity %d, want %d",
			ErrInvalidHeader, blockCount, h.UncompressedSize, h.Granularity, want)
	}

	h.BlockSizes = make([]uint32, blockCount)
	offsets := make([]int64, blockCount)
	dataOffset := int64(bundleLeadSize) + int64(headSize)
	pos := dataOffset
	var sum uint64
	for i := range h.BlockSizes {
		h.BlockSizes[i] = binary.LittleEndian.Uint32(head[bundleHeadFixedSize+i*4:])
		offsets[i] = pos
		pos += int64(h.BlockSizes[i])
		sum += uint64(h.BlockSizes[i])
	}

	if sum != h.PayloadSize {
		return nil, fmt.Errorf("%w: block sizes sum to %d, head says %d", ErrInvalidHeader, sum, h.PayloadSize)
	}
	if pos > size {
		return nil, fmt.Errorf("%w: payload ends at %d beyond source size %d", ErrInvalidHeader, pos, size)
	}

	return &Bundle{
		ra:           ra,
		size:         size,
		header:       h,
		blockOffsets: offsets,
	}, nil
}

// blockCountFor returns the number of blocks for a payload at the given granularity.
func blockCountFor(uncompressed uint64, granularity uint32) uint32 {
	if uncompressed == 0 {
		return 0
	}

	return uint32((uncompressed + uint64(granularity) - 1) / uint64(granularity))
}

// Header returns a copy of the parsed head.
func (b *Bundle) Header() Header {
	h := b.header
	h.BlockSizes = make([]uint32, len(b.header.BlockSizes))
	copy(h.BlockSizes, b.header.BlockSizes)
	return h
}

// Codec returns the block compression algorithm of this bundle.
func (b *Bundle) Codec() Codec {
	return b.header.Codec
}

// UncompressedSize returns the total decompressed payload size.
func (b *Bundle) UncompressedSize() uint64 {
	return b.header.UncompressedSize
}

// ReadAll decompresses the whole payload.
func (b *Bundle) ReadAll() ([]byte, error) {
	out := make([]byte, b.header.UncompressedSize)
	if len(out) == 0 {
		return out, nil
	}

	if err := b.decodeBlocks(0, len(b.blockOffsets)-1, out); err != nil {
		return nil, err
	}

	return out, nil
}

// ReadRange decompresses the byte range [off, off+length) of the payload,
// touching only the covering blocks.
func (b *Bundle) ReadRange(off uint64, length uint64) ([]byte, error) {
	if off+length < off || off+length > b.header.UncompressedSize {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrRangeOutOfBounds, off, off+length, b.header.UncompressedSize)
	}
	if length == 0 {
		return []byte{}, nil
	}

	gran := uint64(b.header.Granularity)
	first := int(off / gran)
	last := int((off + length - 1) / gran)

	span := make([]byte, uint64(last-first+1)*gran)
	if lastEnd := b.blockEnd(last); lastEnd-uint64(first)*gran < uint64(len(span)) {
		span = span[:lastEnd-uint64(first)*gran]
	}

	if err := b.decodeBlocks(first, last, span); err != nil {
		return nil, err
	}

	start := off - uint64(first)*gran
	return span[start : start+length], nil
}

// blockEnd returns the exclusive uncompressed end offset of block i.
func (b *Bundle) blockEnd(i int) uint64 {
	end := uint64(i+1) * uint64(b.header.Granularity)
	if end > b.header.UncompressedSize {
		end = b.header.UncompressedSize
	}

	return end
}

// decodeBlocks decompresses blocks first..last into dst, which must span
// exactly their combined uncompressed size.
func (b *Bundle) decodeBlocks(first int, last int, dst []byte) error {
	var buf []byte
	gran := uint64(b.header.Granularity)
	base := uint64(first) * gran

	for i := first; i <= last; i++ {
		compressedSize := int(b.header.BlockSizes[i])
		if cap(buf) < compressedSize {
			buf = make([]byte, compressedSize)
		}
		buf = buf[:compressedSize]

		if _, err := b.ra.ReadAt(buf, b.blockOffsets[i]); err != nil {
			return fmt.Errorf("read block %d: %w", i, err)
		}

		blockStart := uint64(i)*gran - base
		blockEnd := b.blockEnd(i) - base
		if err := decodeBlock(b.header.Codec, buf, dst[blockStart:blockEnd]); err != nil {
			return fmt.Errorf("decode block %d: %w", i, err)
		}
	}

	return nil
}

// Decompress parses a bundle from a random-access source and returns the
// whole decompressed payload.
func Decompress(ra io.ReaderAt, size int64) ([]byte, error) {
	b, err := Parse(ra, size)
	if err != nil {
		return nil, err
	}

	return b.ReadAll()
}
