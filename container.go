// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Container provides record-level access to a GGPK archive file.
type Container struct {
	// ra is the underlying random-access reader used for record reads.
	ra io.ReaderAt
	// w is set when the container was opened writable.
	w io.WriterAt
	// file is set when Container owns an *os.File opened via OpenContainer.
	file *os.File
	// logger receives structured diagnostics; defaults to a no-op logger.
	logger *zap.Logger
	// dirCache stores parsed directory records keyed by absolute offset.
	dirCache map[int64]*Record
	// path is the archive path when opened from disk.
	path string
	// size is total source size in bytes.
	size int64
	// rootOffset is the absolute offset of the top directory record.
	rootOffset int64
	// firstFree is the absolute offset of the free list head, zero when empty.
	firstFree int64
	// version is the container format version from the root record.
	version uint32
	// mu guards closed state and the directory cache.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// OpenContainer opens a GGPK archive by path and parses the root record.
func OpenContainer(path string) (*Container, error) {
	return OpenContainerWithOptions(path, OpenOptions{})
}

// OpenContainerWithOptions opens a GGPK archive by path using explicit options.
func OpenContainerWithOptions(path string, opts OpenOptions) (*Container, error) {
	opts.applyDefaults()

	flag := os.O_RDONLY
	if opts.ReadWrite {
		flag = os.O_RDWR
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	c, err := NewContainerFromReaderAtWithOptions(f, fi.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	c.file = f
	c.path = path
	if opts.ReadWrite {
		c.w = f
	}

	return c, nil
}

// NewContainerFromReaderAt parses a GGPK archive from an existing ReaderAt
// and known size. The returned container is read-only.
func NewContainerFromReaderAt(ra io.ReaderAt, size int64) (*Container, error) {
	return NewContainerFromReaderAtWithOptions(ra, size, OpenOptions{})
}

// NewContainerFromReaderAtWithOptions parses a GGPK archive from an existing
// ReaderAt and known size using explicit options.
func NewContainerFromReaderAtWithOptions(ra io.ReaderAt, size int64, opts OpenOptions) (*Container, error) {
	opts.applyDefaults()

	if ra == nil {
		return nil, ErrNilReader
	}

	c := &Container{
		ra:       ra,
		logger:   opts.Logger,
		dirCache: make(map[int64]*Record),
		size:     size,
	}
	if err := c.parseRootRecord(); err != nil {
		return nil, err
	}

	c.logger.Debug("container opened",
		zap.Uint32("version", c.version),
		zap.Int64("size", c.size),
		zap.Int64("root_offset", c.rootOffset))

	return c, nil
}

// parseRootRecord reads and validates the GGPK record at offset zero.
func (c *Container) parseRootRecord() error {
	if c.size < rootRecordLength {
		return fmt.Errorf("%w: archive holds %d bytes", ErrInvalidRecordHeader, c.size)
	}

	var rec [rootRecordLength]byte
	if _, err := c.ra.ReadAt(rec[:], 0); err != nil {
		return fmt.Errorf("read root record: %w", err)
	}

	length := binary.LittleEndian.Uint32(rec[0:4])
	if length != rootRecordLength {
		return fmt.Errorf("%w: root record declares %d bytes", ErrInvalidRecordHeader, length)
	}
	if string(rec[4:8]) != tagRoot {
		return fmt.Errorf("%w: root record has tag %q", ErrInvalidRecordHeader, rec[4:8])
	}

	c.version = binary.LittleEndian.Uint32(rec[8:12])
	if c.version != VersionUTF16 && c.version != VersionUTF32 {
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion, c.version)
	}

	c.rootOffset = int64(binary.LittleEndian.Uint64(rec[12:20]))
	if c.rootOffset < rootRecordLength || c.rootOffset >= c.size {
		return fmt.Errorf("%w: top directory offset %d out of bounds", ErrCorruptRecord, c.rootOffset)
	}

	c.firstFree = int64(binary.LittleEndian.Uint64(rec[20:28]))
	if c.firstFree != 0 && (c.firstFree < rootRecordLength || c.firstFree >= c.size) {
		return fmt.Errorf("%w: free list head %d out of bounds", ErrFreeListCorrupt, c.firstFree)
	}

	return nil
}

// Close closes the underlying file if the container owns one.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if c.file != nil {
		return c.file.Close()
	}

	return nil
}

// Path returns the archive path when opened from disk.
func (c *Container) Path() string {
	return c.path
}

// Size returns the total archive size in bytes.
func (c *Container) Size() int64 {
	return c.size
}

// Version returns the container format version.
func (c *Container) Version() uint32 {
	return c.version
}

// ensureOpen reports ErrClosed once Close was called.
func (c *Container) ensureOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	return nil
}

// Root returns the top directory record.
func (c *Container) Root() (*Record, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	rec, err := c.dirAt(c.rootOffset)
	if err != nil {
		return nil, fmt.Errorf("top directory: %w", err)
	}

	return rec, nil
}

// dirAt parses the directory record at an absolute offset through the cache.
func (c *Container) dirAt(off int64) (*Record, error) {
	c.mu.Lock()
	if rec, ok := c.dirCache[off]; ok {
		c.mu.Unlock()
		return rec, nil
	}
	c.mu.Unlock()

	rec, err := c.parseRecordAt(off)
	if err != nil {
		return nil, err
	}
	if rec.Kind != KindDir {
		return nil, fmt.Errorf("%w: record at %d is %s", ErrNotDirectory, off, rec.Kind)
	}

	c.mu.Lock()
	c.dirCache[off] = rec
	c.mu.Unlock()

	return rec, nil
}

// Children parses every child record of a directory. Results follow the
// entry table order, which is sorted by name hash rather than by name.
func (c *Container) Children(dir *Record) ([]*Record, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if dir == nil || dir.Kind != KindDir {
		return nil, ErrNotDirectory
	}

	children := make([]*Record, 0, len(dir.Entries))
	for _, e := range dir.Entries {
		child, err := c.parseRecordAt(e.Offset)
		if err != nil {
			return nil, fmt.Errorf("child of %q: %w", dir.Name, err)
		}
		if child.Kind == KindFree {
			return nil, fmt.Errorf("%w: directory %q references FREE record at %d",
				ErrCorruptRecord, dir.Name, e.Offset)
		}
		if child.Kind == KindDir {
			c.mu.Lock()
			c.dirCache[e.Offset] = child
			c.mu.Unlock()
		}

		children = append(children, child)
	}

	return children, nil
}

// ChildByName finds a direct child by case-insensitive name. It returns
// nil without error when no child matches.
func (c *Container) ChildByName(dir *Record, name string) (*Record, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if dir == nil || dir.Kind != KindDir {
		return nil, ErrNotDirectory
	}

	hash := NameHash(name)
	i := sort.Search(len(dir.Entries), func(i int) bool {
		return dir.Entries[i].NameHash >= hash
	})

	// Distinct names can collide on the hash, so confirm each candidate.
	for ; i < len(dir.Entries) && dir.Entries[i].NameHash == hash; i++ {
		child, err := c.parseRecordAt(dir.Entries[i].Offset)
		if err != nil {
			return nil, fmt.Errorf("child of %q: %w", dir.Name, err)
		}
		if strings.EqualFold(child.Name, name) {
			if child.Kind == KindDir {
				c.mu.Lock()
				c.dirCache[dir.Entries[i].Offset] = child
				c.mu.Unlock()
			}

			return child, nil
		}
	}

	return nil, nil
}

// ResolvePath walks a slash- or backslash-separated archive path from the
// top directory. It returns nil without error when any segment is missing.
func (c *Container) ResolvePath(p string) (*Record, error) {
	root, err := c.Root()
	if err != nil {
		return nil, err
	}

	rec := root
	for _, segment := range splitPath(NormalizePath(p)) {
		if rec.Kind != KindDir {
			return nil, nil
		}

		rec, err = c.ChildByName(rec, segment)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
	}

	return rec, nil
}

// FileSection returns a reader over the file record's data span.
func (c *Container) FileSection(rec *Record) (*io.SectionReader, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if rec == nil || rec.Kind != KindFile {
		return nil, ErrNotFile
	}

	return io.NewSectionReader(c.ra, rec.DataOffset, int64(rec.DataSize)), nil
}

// ReadFileData reads the full data span of a file record.
func (c *Container) ReadFileData(rec *Record) ([]byte, error) {
	sr, err := c.FileSection(rec)
	if err != nil {
		return nil, err
	}

	data := make([]byte, rec.DataSize)
	if _, err := io.ReadFull(sr, data); err != nil {
		return nil, fmt.Errorf("read %q: %w", rec.Name, err)
	}

	return data, nil
}

// VerifyFile recomputes the SHA-256 digest of a file record's data and
// compares it with the stored one.
func (c *Container) VerifyFile(rec *Record) error {
	sr, err := c.FileSection(rec)
	if err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.Copy(h, sr); err != nil {
		return fmt.Errorf("hash %q: %w", rec.Name, err)
	}
	if !bytes.Equal(h.Sum(nil), rec.Digest[:]) {
		return fmt.Errorf("%w: %q", ErrDigestMismatch, rec.Name)
	}

	return nil
}

// FreeSpans follows the free list from the root record head. Loops and
// out-of-bounds links are reported as ErrFreeListCorrupt.
func (c *Container) FreeSpans() ([]FreeSpan, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	var spans []FreeSpan
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

		spans = append(spans, span)
		off = span.Next
	}

	return spans, nil
}

// Walk visits every record reachable from the top directory in depth-first
// entry table order. The callback path is slash-separated and relative to
// the archive root; returning an error aborts the walk.
func (c *Container) Walk(fn func(path string, rec *Record) error) error {
	root, err := c.Root()
	if err != nil {
		return err
	}

	visited := map[int64]struct{}{root.Offset: {}}
	return c.walkDir(root, "", visited, fn)
}

func (c *Container) walkDir(dir *Record, prefix string, visited map[int64]struct{}, fn func(path string, rec *Record) error) error {
	children, err := c.Children(dir)
	if err != nil {
		return err
	}

	for _, child := range children {
		p := joinPath(prefix, child.Name)
		if err := fn(p, child); err != nil {
			return err
		}
		if child.Kind != KindDir {
			continue
		}
		if _, ok := visited[child.Offset]; ok {
			return fmt.Errorf("%w: directory cycle at %d", ErrCorruptRecord, child.Offset)
		}

		visited[child.Offset] = struct{}{}
		if err := c.walkDir(child, p, visited, fn); err != nil {
			return err
		}
	}

	return nil
}
