// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// WriteOptions tunes bundle serialization.
type WriteOptions struct {
	// Codec selects the block compression. CodecZstd when unset.
	Codec Codec
	// Granularity is the uncompressed block size. DefaultGranularity when unset.
	Granularity uint32
}

func (o *WriteOptions) applyDefaults() {
	if o.Codec == 0 {
		o.Codec = CodecZstd
	}
	if o.Granularity == 0 {
		o.Granularity = DefaultGranularity
	}
}

// Write serializes data as one bundle: head, block size table, compressed
// blocks. It refuses codecs with no registered encoder and returns the total
// number of bytes written.
func Write(w io.Writer, data []byte, opts *WriteOptions) (int64, error) {
	var o WriteOptions
	if opts != nil {
		o = *opts
	}
	o.applyDefaults()

	if o.Granularity > maxGranularity {
		return 0, fmt.Errorf("%w: granularity %d", ErrInvalidHeader, o.Granularity)
	}
	if uint64(len(data)) > maxUncompressedSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrSizeOverflow, len(data))
	}

	gran := int(o.Granularity)
	blocks := make([][]byte, 0, blockCountFor(uint64(len(data)), o.Granularity))
	var payloadSize uint64
	for start := 0; start < len(data); start += gran {
		end := start + gran
		if end > len(data) {
			end = len(data)
		}

		enc, err := encodeBlock(o.Codec, data[start:end])
		if err != nil {
			return 0, fmt.Errorf("encode block %d: %w", len(blocks), err)
		}

		blocks = append(blocks, enc)
		payloadSize += uint64(len(enc))
	}

	head := make([]byte, bundleLeadSize+bundleHeadFixedSize+4*len(blocks))
	binary.LittleEndian.PutUint32(head[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(head[4:8], uint32(payloadSize))
	binary.LittleEndian.PutUint32(head[8:12], uint32(bundleHeadFixedSize+4*len(blocks)))
	binary.LittleEndian.PutUint32(head[12:16], uint32(o.Codec))
	binary.LittleEndian.PutUint32(head[16:20], 1)
	binary.LittleEndian.PutUint64(head[20:28], uint64(len(data)))
	binary.LittleEndian.PutUint64(head[28:36], payloadSize)
	binary.LittleEndian.PutUint32(head[36:40], uint32(len(blocks)))
	binary.LittleEndian.PutUint32(head[40:44], o.Granularity)
	for i, b := range blocks {
		binary.LittleEndian.PutUint32(head[60+4*i:], uint32(len(b)))
	}

	var written int64
	n, err := w.Write(head)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("write bundle head: %w", err)
	}

	for i, b := range blocks {
		n, err := w.Write(b)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write block %d: %w", i, err)
		}
	}

	return written, nil
}

// BuildInput is one file to pack into a built distribution.
type BuildInput struct {
	// Path is the full slash-separated archive path of the file.
	Path string
	// Data is the file content.
	Data []byte
}

// BuildOptions tunes BuildIndex.
type BuildOptions struct {
	// Codec selects the block compression for bundles and the index itself.
	Codec Codec
	// Granularity is the uncompressed block size.
	Granularity uint32
	// BundleName is the base name of produced bundles. "_" when unset.
	BundleName string
	// MaxBundleSize starts a new bundle once the current one holds at least
	// this many payload bytes. Zero packs everything into one bundle.
	MaxBundleSize uint64
	// Digests records a BLAKE3 content digest on every file entry.
	Digests bool
}

func (o *BuildOptions) applyDefaults() {
	if o.Codec == 0 {
		o.Codec = CodecZstd
	}
	if o.Granularity == 0 {
		o.Granularity = DefaultGranularity
	}
	if o.BundleName == "" {
		o.BundleName = "_"
	}
}

// BuiltBundle is one serialized bundle produced by BuildIndex.
type BuiltBundle struct {
	// Name is the bundle name without the ".bundle.bin" suffix.
	Name string
	// Raw is the serialized bundle, head and compressed blocks.
	Raw []byte
}

// BuildResult holds a serialized index and the bundles it references.
type BuildResult struct {
	// Index is the serialized index bundle, the content of "_.index.bin".
	Index []byte
	// Bundles are the referenced bundles in index order.
	Bundles []BuiltBundle
}

// BuildIndex packs inputs into bundles and serializes an index referencing
// them. Inputs are sorted by path; duplicate paths (case-insensitive) are
// rejected.
func BuildIndex(inputs []BuildInput, opts *BuildOptions) (*BuildResult, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	var o BuildOptions
	if opts != nil {
		o = *opts
	}
	o.applyDefaults()

	ins := make([]BuildInput, len(inputs))
	copy(ins, inputs)
	sort.Slice(ins, func(i, j int) bool { return ins[i].Path < ins[j].Path })

	seen := make(map[uint64]string, len(ins))
	for _, in := range ins {
		if err := checkRelPath(in.Path); err != nil {
			return nil, err
		}
		if uint64(len(in.Data)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrSizeOverflow, in.Path, len(in.Data))
		}

		hash := PathHash(in.Path)
		if prev, dup := seen[hash]; dup {
			return nil, fmt.Errorf("%w: %s collides with %s", ErrDuplicatePath, in.Path, prev)
		}
		seen[hash] = in.Path
	}

	// Pack payloads, starting a new bundle at the size threshold.
	type packed struct {
		payload []byte
	}
	packs := []*packed{{}}
	records := make([]FileEntry, len(ins))
	for i, in := range ins {
		cur := packs[len(packs)-1]
		if o.MaxBundleSize > 0 && len(cur.payload) > 0 &&
			uint64(len(cur.payload))+uint64(len(in.Data)) > o.MaxBundleSize {
			cur = &packed{}
			packs = append(packs, cur)
		}
		if uint64(len(cur.payload))+uint64(len(in.Data)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: bundle %d exceeds offset range", ErrSizeOverflow, len(packs)-1)
		}

		records[i] = FileEntry{
			Path:        in.Path,
			BundleIndex: uint32(len(packs) - 1),
			Offset:      uint32(len(cur.payload)),
			Size:        uint32(len(in.Data)),
		}
		if o.Digests {
			sum := blake3.Sum256(in.Data)
			records[i].Digest = sum[:]
		}

		cur.payload = append(cur.payload, in.Data...)
	}

	wopts := &WriteOptions{Codec: o.Codec, Granularity: o.Granularity}

	result := &BuildResult{Bundles: make([]BuiltBundle, len(packs))}
	bundles := make([]BundleInfo, len(packs))
	for i, p := range packs {
		name := o.BundleName
		if i > 0 {
			name = fmt.Sprintf("%s%d", o.BundleName, i+1)
		}

		var buf bytes.Buffer
		if _, err := Write(&buf, p.payload, wopts); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", name, err)
		}

		result.Bundles[i] = BuiltBundle{Name: name, Raw: buf.Bytes()}
		bundles[i] = BundleInfo{
			Name:             name,
			UncompressedSize: uint64(len(p.payload)),
			Codec:            o.Codec,
		}
	}

	payload := serializeIndex(bundles, records)

	var buf bytes.Buffer
	if _, err := Write(&buf, payload, wopts); err != nil {
		return nil, fmt.Errorf("index bundle: %w", err)
	}
	result.Index = buf.Bytes()

	return result, nil
}

// serializeIndex encodes bundle descriptors and file records as an index
// payload. Records must already be sorted by path.
func serializeIndex(bundles []BundleInfo, records []FileEntry) []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(bundles)))
	for _, b := range bundles {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Name)))
		buf = append(buf, b.Name...)
		buf = binary.LittleEndian.AppendUint64(buf, b.UncompressedSize)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(b.Codec))
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(records)))
	var blobSize int
	for _, r := range records {
		buf = binary.LittleEndian.AppendUint64(buf, PathHash(r.Path))
		buf = binary.LittleEndian.AppendUint32(buf, r.BundleIndex)
		buf = binary.LittleEndian.AppendUint32(buf, r.Offset)
		buf = binary.LittleEndian.AppendUint32(buf, r.Size)
		if len(r.Digest) == DigestSize {
			buf = append(buf, entryFlagDigest)
			buf = append(buf, r.Digest...)
		} else {
			buf = append(buf, 0)
		}
		blobSize += len(r.Path) + 1
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(blobSize))
	for _, r := range records {
		buf = append(buf, r.Path...)
		buf = append(buf, 0)
	}

	return buf
}

// WriteDir writes the index and every bundle into dir using the on-disk
// distribution layout.
func (r *BuildResult) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFileName), r.Index, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	for _, b := range r.Bundles {
		path := filepath.Join(dir, filepath.FromSlash(b.Name)+BundleExt)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create bundle dir: %w", err)
		}
		if err := os.WriteFile(path, b.Raw, 0o644); err != nil {
			return fmt.Errorf("write bundle %s: %w", b.Name, err)
		}
	}

	return nil
}

// Digest returns the BLAKE3-256 digest of data, the hash recorded on index
// file entries.
func Digest(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}
