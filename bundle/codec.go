// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package bundle

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/woozymasta/lzss"
)

// Codec identifies the block compression algorithm of a bundle.
// Values are format constants stored in bundle headers: 3..13 mirror the
// proprietary encoder enum found in shipped archives, 64+ are native
// identifiers this library can encode itself.
type Codec uint32

// Bundle codec identifiers.
const (
	// CodecNone marks uncompressed blocks (stored as-is).
	CodecNone Codec = 3
	// CodecKraken marks the proprietary Kraken encoder. No built-in decoder.
	CodecKraken Codec = 8
	// CodecMermaid marks the proprietary Mermaid encoder. No built-in decoder.
	CodecMermaid Codec = 9
	// CodecLeviathan marks the proprietary Leviathan encoder. No built-in decoder.
	CodecLeviathan Codec = 13
	// CodecLZ4 marks LZ4 block compression.
	CodecLZ4 Codec = 64
	// CodecZstd marks zstd compression.
	CodecZstd Codec = 65
	// CodecLZSS marks legacy LZSS compression.
	CodecLZSS Codec = 66
)

// String returns the human-readable codec name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecKraken:
		return "kraken"
	case CodecMermaid:
		return "mermaid"
	case CodecLeviathan:
		return "leviathan"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	case CodecLZSS:
		return "lzss"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(c))
	}
}

// ParseCodec parses a codec from its string name, case-insensitively.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "none":
		return CodecNone, nil
	case "kraken":
		return CodecKraken, nil
	case "mermaid":
		return CodecMermaid, nil
	case "leviathan":
		return CodecLeviathan, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	case "lzss":
		return CodecLZSS, nil
	default:
		return 0, fmt.Errorf("unknown codec name: %q", name)
	}
}

// DecodeFunc decompresses one block into dst. dst is pre-sized to the exact
// uncompressed block size and must be filled completely.
type DecodeFunc func(src []byte, dst []byte) error

// EncodeFunc compresses one block and returns the compressed bytes.
// Output may be larger than the input; the writer stores it either way so
// block offsets stay derivable from recorded sizes.
type EncodeFunc func(src []byte) ([]byte, error)

var (
	// codecMu guards decoder/encoder registries.
	codecMu  sync.RWMutex
	decoders = map[Codec]DecodeFunc{
		CodecNone: decodeStored,
		CodecLZ4:  decodeLZ4,
		CodecZstd: decodeZstd,
		CodecLZSS: decodeLZSS,
	}
	encoders = map[Codec]EncodeFunc{
		CodecNone: encodeStored,
		CodecLZ4:  encodeLZ4,
		CodecZstd: encodeZstd,
		CodecLZSS: encodeLZSS,
	}
)

// zstdEncoder and zstdDecoder are shared across calls; both are safe for
// concurrent EncodeAll/DecodeAll use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("bundle: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("bundle: zstd decoder initialization failed: " + err.Error())
	}
}

// RegisterDecoder installs a block decoder for the codec. It is intended for
// the proprietary family (Kraken, Mermaid, Leviathan) when a caller links an
// external implementation. Registration is process-global.
func RegisterDecoder(c Codec, fn DecodeFunc) {
	codecMu.Lock()
	defer codecMu.Unlock()

	if fn == nil {
		delete(decoders, c)
		return
	}

	decoders[c] = fn
}

// RegisterEncoder installs a block encoder for the codec. Registration is
// process-global.
func RegisterEncoder(c Codec, fn EncodeFunc) {
	codecMu.Lock()
	defer codecMu.Unlock()

	if fn == nil {
		delete(encoders, c)
		return
	}

	encoders[c] = fn
}

// CanDecode reports whether a decoder is available for the codec.
func CanDecode(c Codec) bool {
	codecMu.RLock()
	defer codecMu.RUnlock()

	_, ok := decoders[c]
	return ok
}

// decodeBlock decompresses one block with the registered decoder and
// verifies the exact output size.
func decodeBlock(c Codec, src []byte, dst []byte) error {
	codecMu.RLock()
	fn, ok := decoders[c]
	codecMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no decoder for %s", ErrCodecUnavailable, c)
	}

	return fn(src, dst)
}

// encodeBlock compresses one block with the registered encoder.
func encodeBlock(c Codec, src []byte) ([]byte, error) {
	codecMu.RLock()
	fn, ok := encoders[c]
	codecMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrCodecUnavailable, c)
	}

	return fn(src)
}

// decodeStored copies a stored block and verifies its size.
func decodeStored(src []byte, dst []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: stored block is %d bytes, want %d", ErrBlockSizeMismatch, len(src), len(dst))
	}

	copy(dst, src)
	return nil
}

// encodeStored stores a block without compression.
func encodeStored(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// decodeLZ4 decompresses one LZ4 block and verifies the exact output size.
func decodeLZ4(src []byte, dst []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != len(dst) {
		return fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrBlockSizeMismatch, n, len(dst))
	}

	return nil
}

// encodeLZ4 compresses one LZ4 block. Incompressible blocks are stored via
// the LZ4 literal-run encoding so the decoder path stays uniform.
func encodeLZ4(src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	out := make([]byte, bound)

	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(src, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		// CompressBlock signals incompressible input with zero length.
		return lz4LiteralBlock(src), nil
	}

	return out[:n], nil
}

// lz4LiteralBlock encodes src as a single literal-only LZ4 sequence.
// Only the final sequence of a block may omit the match part, so the whole
// input goes into one sequence with extended literal length.
func lz4LiteralBlock(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/255+16)
	n := len(src)
	if n < 15 {
		out = append(out, byte(n)<<4)
	} else {
		out = append(out, 0xF0)
		rest := n - 15
		for rest >= 255 {
			out = append(out, 0xFF)
			rest -= 255
		}
		out = append(out, byte(rest))
	}

	return append(out, src...)
}

// decodeZstd decompresses one zstd block and verifies the exact output size.
func decodeZstd(src []byte, dst []byte) error {
	out, err := zstdDecoder.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrBlockSizeMismatch, len(out), len(dst))
	}

	// DecodeAll reallocates when output growth outruns dst's capacity.
	copy(dst, out)
	return nil
}

// encodeZstd compresses one zstd block.
func encodeZstd(src []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(src, nil), nil
}

// decodeLZSS decompresses one legacy LZSS block and verifies the exact output size.
func decodeLZSS(src []byte, dst []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(dst))

	if _, err := lzss.DecompressToWriter(&buf, bytes.NewReader(src), len(dst), nil); err != nil {
		return fmt.Errorf("lzss decompress: %w", err)
	}
	if buf.Len() != len(dst) {
		return fmt.Errorf("%w: lzss produced %d bytes, want %d", ErrBlockSizeMismatch, buf.Len(), len(dst))
	}

	copy(dst, buf.Bytes())
	return nil
}

// encodeLZSS compresses one legacy LZSS block.
func encodeLZSS(src []byte) ([]byte, error) {
	return lzss.Compress(src, lzss.DefaultCompressOptions())
}
