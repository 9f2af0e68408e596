// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// IndexFileName is the name of the serialized index inside a distribution.
const IndexFileName = "_.index.bin"

// BundleInfo describes one bundle referenced by the index.
type BundleInfo struct {
	// Name is the bundle name without the ".bundle.bin" suffix.
	Name string
	// UncompressedSize is the total decompressed payload size of the bundle.
	UncompressedSize uint64
	// Codec identifies the block compression of the bundle payload.
	Codec Codec
}

// FileEntry is one file record of the index. Offset and Size address the
// decompressed payload of the owning bundle.
type FileEntry struct {
	// Path is the full slash-separated file path.
	Path string
	// Digest is the BLAKE3 hash of the file content, nil when not recorded.
	Digest []byte
	// BundleIndex selects the owning bundle.
	BundleIndex uint32
	// Offset is the byte offset inside the decompressed bundle payload.
	Offset uint32
	// Size is the file size in bytes.
	Size uint32
}

// entryFlagDigest marks file records that carry a content digest.
const entryFlagDigest = 1 << 0

// DigestSize is the byte length of content digests carried by file records.
const DigestSize = 32

// IndexOptions tunes index behavior.
type IndexOptions struct {
	// CacheBundles is the number of decompressed bundle payloads kept in
	// memory for file reads. Zero disables caching and reads decode only
	// the blocks covering the requested span.
	CacheBundles int
}

// DefaultIndexOptions returns options with documented defaults applied.
func DefaultIndexOptions() *IndexOptions {
	o := &IndexOptions{}
	o.applyDefaults()
	return o
}

func (o *IndexOptions) applyDefaults() {
	if o.CacheBundles < 0 {
		o.CacheBundles = 0
	}
}

// defaultCacheBundles is the payload cache size when no options are given.
const defaultCacheBundles = 4

// Index is a parsed bundle index: bundle descriptors, file records addressed
// by path hash, and a directory tree built from the path blob.
type Index struct {
	bundles []BundleInfo
	files   []FileEntry
	byHash  map[uint64]*FileEntry
	root    *Dir
	source  Source
	cache   *payloadCache
}

// PathHash returns the index lookup hash of a file path: 64-bit FNV-1a over
// the lower-cased slash-separated path.
func PathHash(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(path)))
	return h.Sum64()
}

// ParseIndex parses a decompressed index payload. The source resolves bundle
// names for ReadFile and may be nil for metadata-only use.
func ParseIndex(payload []byte, src Source) (*Index, error) {
	return ParseIndexWithOptions(payload, src, nil)
}

// ParseIndexWithOptions parses a decompressed index payload with explicit
// options. A nil options value selects defaults.
func ParseIndexWithOptions(payload []byte, src Source, opts *IndexOptions) (*Index, error) {
	cacheBundles := defaultCacheBundles
	if opts != nil {
		o := *opts
		o.applyDefaults()
		cacheBundles = o.CacheBundles
	}

	cur := &cursor{buf: payload}

	bundleCount, err := cur.u32()
	if err != nil {
		return nil, fmt.Errorf("bundle count: %w", err)
	}
	if uint64(bundleCount) > uint64(len(payload))/bundleRecordMinSize {
		return nil, fmt.Errorf("%w: bundle count %d exceeds payload", ErrIndexCorrupt, bundleCount)
	}

	bundles := make([]BundleInfo, bundleCount)
	for i := range bundles {
		nameLen, err := cur.u32()
		if err != nil {
			return nil, fmt.Errorf("bundle %d name length: %w", i, err)
		}
		name, err := cur.need(int(nameLen))
		if err != nil {
			return nil, fmt.Errorf("bundle %d name: %w", i, err)
		}
		size, err := cur.u64()
		if err != nil {
			return nil, fmt.Errorf("bundle %d size: %w", i, err)
		}
		codec, err := cur.u32()
		if err != nil {
			return nil, fmt.Errorf("bundle %d codec: %w", i, err)
		}

		bundles[i] = BundleInfo{
			Name:             string(name),
			UncompressedSize: size,
			Codec:            Codec(codec),
		}
	}

	fileCount, err := cur.u32()
	if err != nil {
		return nil, fmt.Errorf("file count: %w", err)
	}
	if uint64(fileCount) > uint64(len(payload))/fileRecordMinSize {
		return nil, fmt.Errorf("%w: file count %d exceeds payload", ErrIndexCorrupt, fileCount)
	}

	files := make([]FileEntry, fileCount)
	hashes := make([]uint64, fileCount)
	for i := range files {
		hash, err := cur.u64()
		if err != nil {
			return nil, fmt.Errorf("file %d path hash: %w", i, err)
		}
		bundleIndex, err := cur.u32()
		if err != nil {
			return nil, fmt.Errorf("file %d bundle index: %w", i, err)
		}
		offset, err := cur.u32()
		if err != nil {
			return nil, fmt.Errorf("file %d offset: %w", i, err)
		}
		size, err := cur.u32()
		if err != nil {
			return nil, fmt.Errorf("file %d size: %w", i, err)
		}
		flags, err := cur.u8()
		if err != nil {
			return nil, fmt.Errorf("file %d flags: %w", i, err)
		}

		var digest []byte
		if flags&entryFlagDigest != 0 {
			d, err := cur.need(DigestSize)
			if err != nil {
				return nil, fmt.Errorf("file %d digest: %w", i, err)
			}
			digest = append([]byte(nil), d...)
		}

		if int(bundleIndex) >= len(bundles) {
			return nil, fmt.Errorf("%w: file %d references bundle %d of %d",
				ErrIndexCorrupt, i, bundleIndex, len(bundles))
		}
		if end := uint64(offset) + uint64(size); end > bundles[bundleIndex].UncompressedSize {
			return nil, fmt.Errorf("%w: file %d spans [%d, %d) beyond bundle %q size %d",
				ErrIndexCorrupt, i, offset, end, bundles[bundleIndex].Name,
				bundles[bundleIndex].UncompressedSize)
		}

		hashes[i] = hash
		files[i] = FileEntry{
			Digest:      digest,
			BundleIndex: bundleIndex,
			Offset:      offset,
			Size:        size,
		}
	}

	blobSize, err := cur.u32()
	if err != nil {
		return nil, fmt.Errorf("path blob size: %w", err)
	}
	blob, err := cur.need(int(blobSize))
	if err != nil {
		return nil, fmt.Errorf("path blob: %w", err)
	}

	paths, err := splitPathBlob(blob, int(fileCount))
	if err != nil {
		return nil, err
	}

	x := &Index{
		bundles: bundles,
		files:   files,
		byHash:  make(map[uint64]*FileEntry, fileCount),
		root:    newDir("", ""),
		source:  src,
		cache:   newPayloadCache(cacheBundles),
	}

	for i := range files {
		e := &x.files[i]
		e.Path = paths[i]

		if want := PathHash(e.Path); hashes[i] != want {
			return nil, fmt.Errorf("%w: file %q hash %#x, record says %#x",
				ErrIndexCorrupt, e.Path, want, hashes[i])
		}
		if _, dup := x.byHash[hashes[i]]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, e.Path)
		}
		x.byHash[hashes[i]] = e

		if err := x.root.insert(e); err != nil {
			return nil, err
		}
	}

	x.root.finalize()

	return x, nil
}

// Minimum serialized record sizes, used to bound declared counts.
const (
	bundleRecordMinSize = 4 + 8 + 4
	fileRecordMinSize   = 8 + 4 + 4 + 4 + 1
)

// splitPathBlob splits the NUL-terminated path blob into exactly want paths.
func splitPathBlob(blob []byte, want int) ([]string, error) {
	if len(blob) == 0 {
		if want != 0 {
			return nil, fmt.Errorf("%w: empty path blob for %d files", ErrIndexCorrupt, want)
		}

		return nil, nil
	}
	if blob[len(blob)-1] != 0 {
		return nil, fmt.Errorf("%w: path blob not NUL-terminated", ErrIndexCorrupt)
	}

	parts := bytes.Split(blob[:len(blob)-1], []byte{0})
	if len(parts) != want {
		return nil, fmt.Errorf("%w: path blob holds %d paths for %d files", ErrIndexCorrupt, len(parts), want)
	}

	paths := make([]string, want)
	for i, p := range parts {
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: empty path at blob position %d", ErrIndexCorrupt, i)
		}
		paths[i] = string(p)
	}

	return paths, nil
}

// OpenIndex decompresses a serialized index from a random-access source and
// parses it.
func OpenIndex(ra io.ReaderAt, size int64, src Source) (*Index, error) {
	return OpenIndexWithOptions(ra, size, src, nil)
}

// OpenIndexWithOptions decompresses and parses a serialized index with
// explicit options.
func OpenIndexWithOptions(ra io.ReaderAt, size int64, src Source, opts *IndexOptions) (*Index, error) {
	payload, err := Decompress(ra, size)
	if err != nil {
		return nil, fmt.Errorf("decompress index: %w", err)
	}

	return ParseIndexWithOptions(payload, src, opts)
}

// OpenIndexFile reads a serialized index from disk and serves bundles from
// files next to it.
func OpenIndexFile(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}

	return OpenIndex(bytes.NewReader(raw), int64(len(raw)), NewDirSource(filepath.Dir(path)))
}

// Root returns the root directory of the index tree.
func (x *Index) Root() *Dir {
	return x.root
}

// Bundles returns a copy of the bundle descriptors in index order.
func (x *Index) Bundles() []BundleInfo {
	out := make([]BundleInfo, len(x.bundles))
	copy(out, x.bundles)
	return out
}

// Entries returns a copy of all file records in index order.
func (x *Index) Entries() []FileEntry {
	out := make([]FileEntry, len(x.files))
	copy(out, x.files)
	return out
}

// FileCount returns the number of file records.
func (x *Index) FileCount() int {
	return len(x.files)
}

// BundleCount returns the number of referenced bundles.
func (x *Index) BundleCount() int {
	return len(x.bundles)
}

// Lookup resolves a file path case-insensitively. It returns nil when the
// index holds no such file.
func (x *Index) Lookup(path string) *FileEntry {
	p := normalizeIndexPath(path)
	e, ok := x.byHash[PathHash(p)]
	if !ok {
		return nil
	}
	// Distinct paths can collide on the hash, so confirm the stored path.
	if !strings.EqualFold(e.Path, p) {
		return nil
	}

	return e
}

// Dir resolves a directory path case-insensitively. Empty and "/" resolve to
// the root. It returns nil when the index holds no such directory.
func (x *Index) Dir(path string) *Dir {
	d := x.root
	for _, seg := range strings.Split(normalizeIndexPath(path), "/") {
		if seg == "" {
			continue
		}
		if d = d.Subdir(seg); d == nil {
			return nil
		}
	}

	return d
}

// normalizeIndexPath converts separators and trims the leading slash so that
// absolute-style inputs resolve like relative ones.
func normalizeIndexPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.Trim(path, "/")
}

// ReadFile returns the content of one file record, decompressing its bundle
// as needed.
func (x *Index) ReadFile(e *FileEntry) ([]byte, error) {
	if x.source == nil {
		return nil, fmt.Errorf("read %s: %w", e.Path, ErrNilSource)
	}
	if int(e.BundleIndex) >= len(x.bundles) {
		return nil, fmt.Errorf("read %s: %w: bundle %d of %d", e.Path, ErrBundleNotFound,
			e.BundleIndex, len(x.bundles))
	}

	info := x.bundles[e.BundleIndex]

	if payload := x.cache.get(int(e.BundleIndex)); payload != nil {
		out := make([]byte, e.Size)
		copy(out, payload[e.Offset:uint64(e.Offset)+uint64(e.Size)])
		return out, nil
	}

	raw, err := x.source.OpenBundle(info.Name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Path, err)
	}
	defer func() { _ = raw.Close() }()

	b, err := Parse(raw, raw.Size())
	if err != nil {
		return nil, fmt.Errorf("read %s: bundle %s: %w", e.Path, info.Name, err)
	}
	if b.UncompressedSize() != info.UncompressedSize {
		return nil, fmt.Errorf("read %s: %w: bundle %s decompresses to %d, index says %d",
			e.Path, ErrIndexCorrupt, info.Name, b.UncompressedSize(), info.UncompressedSize)
	}

	if x.cache.capacity() == 0 {
		data, err := b.ReadRange(uint64(e.Offset), uint64(e.Size))
		if err != nil {
			return nil, fmt.Errorf("read %s: bundle %s: %w", e.Path, info.Name, err)
		}

		return data, nil
	}

	payload, err := b.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: bundle %s: %w", e.Path, info.Name, err)
	}
	x.cache.put(int(e.BundleIndex), payload)

	out := make([]byte, e.Size)
	copy(out, payload[e.Offset:uint64(e.Offset)+uint64(e.Size)])
	return out, nil
}

// Dir is one directory of the index tree. The tree is immutable after parse.
type Dir struct {
	name     string
	path     string
	subdirs  map[string]*Dir
	files    map[string]*FileEntry
	dirList  []*Dir
	fileList []*FileEntry
}

func newDir(name, path string) *Dir {
	return &Dir{
		name:    name,
		path:    path,
		subdirs: make(map[string]*Dir),
		files:   make(map[string]*FileEntry),
	}
}

// Name returns the directory name. The root has an empty name.
func (d *Dir) Name() string {
	return d.name
}

// Path returns the full slash-separated directory path. The root has an
// empty path.
func (d *Dir) Path() string {
	return d.path
}

// Dirs returns the child directories sorted by name.
func (d *Dir) Dirs() []*Dir {
	return d.dirList
}

// Files returns the child files sorted by name.
func (d *Dir) Files() []*FileEntry {
	return d.fileList
}

// Subdir resolves one child directory case-insensitively, nil when absent.
func (d *Dir) Subdir(name string) *Dir {
	return d.subdirs[strings.ToLower(name)]
}

// File resolves one child file case-insensitively, nil when absent.
func (d *Dir) File(name string) *FileEntry {
	return d.files[strings.ToLower(name)]
}

// insert attaches a file entry, creating intermediate directories.
func (d *Dir) insert(e *FileEntry) error {
	segs := strings.Split(e.Path, "/")
	cur := d
	for i, seg := range segs[:len(segs)-1] {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrIndexCorrupt, e.Path)
		}

		key := strings.ToLower(seg)
		next, ok := cur.subdirs[key]
		if !ok {
			next = newDir(seg, strings.Join(segs[:i+1], "/"))
			cur.subdirs[key] = next
			cur.dirList = append(cur.dirList, next)
		}
		cur = next
	}

	name := segs[len(segs)-1]
	if name == "" {
		return fmt.Errorf("%w: path %q names no file", ErrIndexCorrupt, e.Path)
	}

	key := strings.ToLower(name)
	if _, dup := cur.files[key]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, e.Path)
	}
	cur.files[key] = e
	cur.fileList = append(cur.fileList, e)

	return nil
}

// finalize sorts child listings recursively.
func (d *Dir) finalize() {
	sort.Slice(d.dirList, func(i, j int) bool {
		return lessName(d.dirList[i].name, d.dirList[j].name)
	})
	sort.Slice(d.fileList, func(i, j int) bool {
		return lessName(baseName(d.fileList[i].Path), baseName(d.fileList[j].Path))
	})

	for _, sub := range d.dirList {
		sub.finalize()
	}
}

// lessName orders names case-insensitively with byte order as tie-break.
func lessName(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}

	return a < b
}

// baseName returns the last segment of a slash-separated path.
func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}

	return path
}

// cursor walks a byte slice with bounds-checked little-endian reads.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) need(n int) ([]byte, error) {
	if n < 0 || len(c.buf)-c.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrIndexCorrupt, n, c.off, len(c.buf)-c.off)
	}

	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.need(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.need(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.need(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// payloadCache keeps recently decompressed bundle payloads, most recent
// first. The list is tiny, a linear scan beats map bookkeeping.
type payloadCache struct {
	mu      sync.Mutex
	cap     int
	entries []cachedPayload
}

type cachedPayload struct {
	bundle int
	data   []byte
}

func newPayloadCache(capacity int) *payloadCache {
	return &payloadCache{cap: capacity}
}

func (c *payloadCache) capacity() int {
	return c.cap
}

func (c *payloadCache) get(bundle int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.bundle == bundle {
			copy(c.entries[1:i+1], c.entries[:i])
			c.entries[0] = e
			return e.data
		}
	}

	return nil
}

func (c *payloadCache) put(bundle int, data []byte) {
	if c.cap == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.bundle == bundle {
			copy(c.entries[1:i+1], c.entries[:i])
			c.entries[0] = cachedPayload{bundle: bundle, data: data}
			return
		}
	}

	if len(c.entries) < c.cap {
		c.entries = append(c.entries, cachedPayload{})
	}
	copy(c.entries[1:], c.entries)
	c.entries[0] = cachedPayload{bundle: bundle, data: data}
}
