package bundle

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBundle(t *testing.T, data []byte, opts *WriteOptions) []byte {
	t.Helper()

	var buf bytes.Buffer
	n, err := Write(&buf, data, opts)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	return buf.Bytes()
}

func parseBundle(t *testing.T, raw []byte) *Bundle {
	t.Helper()

	b, err := Parse(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	return b
}

func TestWriteParseRoundtrip(t *testing.T) {
	cases := map[string]struct {
		data []byte
		opts *WriteOptions
	}{
		"empty":           {data: nil, opts: nil},
		"sub block":       {data: compressible(100), opts: nil},
		"exact multiple":  {data: compressible(4096), opts: &WriteOptions{Granularity: 1024}},
		"multi block":     {data: compressible(3000), opts: &WriteOptions{Granularity: 1024}},
		"stored":          {data: incompressible(3000), opts: &WriteOptions{Codec: CodecNone, Granularity: 1024}},
		"lz4":             {data: compressible(3000), opts: &WriteOptions{Codec: CodecLZ4, Granularity: 1024}},
		"lzss":            {data: compressible(3000), opts: &WriteOptions{Codec: CodecLZSS, Granularity: 1024}},
		"incompressible":  {data: incompressible(5000), opts: &WriteOptions{Codec: CodecLZ4, Granularity: 1024}},
		"default options": {data: compressible(600_000), opts: nil},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			raw := writeBundle(t, tc.data, tc.opts)
			b := parseBundle(t, raw)

			require.Equal(t, uint64(len(tc.data)), b.UncompressedSize())

			got, err := b.ReadAll()
			require.NoError(t, err)
			if len(tc.data) == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tc.data, got)
			}
		})
	}
}

func TestHeaderFields(t *testing.T) {
	data := compressible(3000)
	raw := writeBundle(t, data, &WriteOptions{Codec: CodecZstd, Granularity: 1024})
	b := parseBundle(t, raw)

	h := b.Header()
	assert.Equal(t, CodecZstd, h.Codec)
	assert.Equal(t, uint64(3000), h.UncompressedSize)
	assert.Equal(t, uint32(1024), h.Granularity)
	assert.Len(t, h.BlockSizes, 3)

	var sum uint64
	for _, s := range h.BlockSizes {
		sum += uint64(s)
	}
	assert.Equal(t, h.PayloadSize, sum)
}

func TestReadRange(t *testing.T) {
	data := incompressible(3000)
	raw := writeBundle(t, data, &WriteOptions{Granularity: 1024})
	b := parseBundle(t, raw)

	spans := []struct{ off, n uint64 }{
		{0, 1},
		{0, 3000},
		{1023, 2},
		{1024, 1024},
		{100, 2500},
		{2999, 1},
		{3000, 0},
	}
	for _, s := range spans {
		got, err := b.ReadRange(s.off, s.n)
		require.NoError(t, err, "span [%d, %d)", s.off, s.off+s.n)
		assert.Equal(t, data[s.off:s.off+s.n], got, "span [%d, %d)", s.off, s.off+s.n)
	}

	_, err := b.ReadRange(2999, 2)
	require.ErrorIs(t, err, ErrRangeOutOfBounds)

	_, err = b.ReadRange(3001, 0)
	require.ErrorIs(t, err, ErrRangeOutOfBounds)
}

// Head byte offsets used by the corruption tests.
const (
	offUncompressed32 = 0
	offHeadSize       = 8
	offCodec          = 12
	offBlockCount     = 36
	offGranularity    = 40
	offBlockSizes     = 60
)

func TestParseRejectsCorruptHeads(t *testing.T) {
	data := incompressible(3000)
	valid := writeBundle(t, data, &WriteOptions{Codec: CodecNone, Granularity: 1024})

	mutate := func(mut func(raw []byte)) []byte {
		raw := append([]byte(nil), valid...)
		mut(raw)
		return raw
	}

	cases := map[string][]byte{
		"too short": valid[:40],
		"head size out of bounds": mutate(func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[offHeadSize:], uint32(len(raw)))
		}),
		"head size misaligned": mutate(func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[offHeadSize:], 49)
		}),
		"zero granularity": mutate(func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[offGranularity:], 0)
		}),
		"block count mismatch": mutate(func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[offBlockCount:], 2)
		}),
		"block sizes disagree with payload": mutate(func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[offBlockSizes:], 1025)
		}),
		"truncated size fields disagree": mutate(func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[offUncompressed32:], 2999)
		}),
		"payload truncated": valid[:len(valid)-1],
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(raw), int64(len(raw)))
			require.ErrorIs(t, err, ErrInvalidHeader)
		})
	}
}

func TestParseNilSource(t *testing.T) {
	_, err := Parse(nil, 100)
	require.ErrorIs(t, err, ErrNilSource)
}

func TestReadUnavailableCodec(t *testing.T) {
	data := incompressible(2048)
	raw := writeBundle(t, data, &WriteOptions{Codec: CodecNone, Granularity: 1024})

	// Rewrite the codec field; the head stays structurally valid.
	binary.LittleEndian.PutUint32(raw[offCodec:], uint32(CodecKraken))

	b := parseBundle(t, raw)
	assert.Equal(t, CodecKraken, b.Codec())

	_, err := b.ReadAll()
	require.ErrorIs(t, err, ErrCodecUnavailable)
}

func TestWriteRefusesUnavailableEncoder(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, compressible(10), &WriteOptions{Codec: CodecMermaid})
	require.ErrorIs(t, err, ErrCodecUnavailable)
}

func TestDecompress(t *testing.T) {
	data := compressible(10_000)
	raw := writeBundle(t, data, nil)

	got, err := Decompress(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
