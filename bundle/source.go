// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package bundle

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ByteSource is random-access input for one raw bundle payload.
type ByteSource interface {
	io.ReaderAt
	// Size returns the total source size in bytes.
	Size() int64
	// Close releases the source.
	Close() error
}

// Source resolves index bundle names to their raw payloads. Names come from
// the index and carry no ".bundle.bin" suffix.
type Source interface {
	// OpenBundle opens the raw payload of the named bundle.
	OpenBundle(name string) (ByteSource, error)
}

// BundleExt is the file name suffix of on-disk bundle payloads.
const BundleExt = ".bundle.bin"

// DirSource serves bundles from files under a directory, the on-disk layout
// of an unpacked distribution.
type DirSource struct {
	root string
}

// NewDirSource returns a Source reading "<name>.bundle.bin" files under root.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// OpenBundle implements Source.
func (s *DirSource) OpenBundle(name string) (ByteSource, error) {
	if err := checkRelPath(name); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, filepath.FromSlash(name)+BundleExt)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, name)
		}

		return nil, fmt.Errorf("open bundle %s: %w", name, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat bundle %s: %w", name, err)
	}

	return &fileSource{f: f, size: st.Size()}, nil
}

// checkRelPath rejects slash paths that would escape a root directory.
func checkRelPath(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, name)
		}
	}

	return nil
}

// fileSource is a ByteSource over one open file.
type fileSource struct {
	f    *os.File
	size int64
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *fileSource) Size() int64                             { return s.size }
func (s *fileSource) Close() error                            { return s.f.Close() }

// ReaderAtSource wraps any random-access reader as a ByteSource with a no-op
// Close. Useful for in-memory payloads and file sections.
func ReaderAtSource(ra io.ReaderAt, size int64) ByteSource {
	return &readerAtSource{ra: ra, size: size}
}

type readerAtSource struct {
	ra   io.ReaderAt
	size int64
}

func (s *readerAtSource) ReadAt(p []byte, off int64) (int, error) { return s.ra.ReadAt(p, off) }
func (s *readerAtSource) Size() int64                             { return s.size }
func (s *readerAtSource) Close() error                            { return nil }
