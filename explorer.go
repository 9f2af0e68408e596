// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wraeclast/ggpk/bundle"
)

// explorerState tracks the facade lifecycle.
type explorerState uint8

const (
	stateClosed explorerState = iota
	stateOpening
	stateOpen
)

// backing serves tree and content operations for one open archive. The
// strategy is chosen once when the archive opens and never re-probed.
type backing interface {
	// hasIndex reports whether bundle index content is being served.
	hasIndex() bool
	// nodesForPath lists the children of a directory path; absent or
	// non-directory paths yield an empty slice.
	nodesForPath(path string) ([]Node, error)
	// find resolves one node case-insensitively; misses return nil, nil.
	find(path string) (*Node, error)
	// readFile returns the full decoded content of a file path.
	readFile(path string) ([]byte, error)
	// verifyFile recomputes and checks the stored digest of a file path.
	verifyFile(path string) error
	// info fills the backing-specific ArchiveInfo fields.
	info(ai *ArchiveInfo) error
	// container returns the underlying record container, nil for
	// standalone bundle indexes.
	container() *Container
	// close releases backing resources.
	close() error
}

// Explorer is a thread-safe facade over one GGPK archive. Content is served
// either from the bundle index or from the plain record tree; the choice is
// made once when the archive opens. A single mutex serializes every public
// operation for its full duration.
type Explorer struct {
	// b is the active backing; nil while closed.
	b backing
	// logger receives structured diagnostics.
	logger *zap.Logger
	// path is the archive path of the current handle.
	path string
	// opts apply to every Open call made through this Explorer.
	opts OpenOptions
	// mu serializes every public operation.
	mu sync.Mutex
	// state tracks the facade lifecycle.
	state explorerState
}

// NewExplorer returns a closed Explorer ready for Open.
func NewExplorer(opts OpenOptions) *Explorer {
	opts.applyDefaults()
	return &Explorer{logger: opts.Logger, opts: opts}
}

// Open opens the GGPK archive at path. Paths ending in the bundle index
// file name open in standalone index mode over loose bundle files.
func Open(path string) (*Explorer, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions opens the GGPK archive at path using explicit options.
func OpenWithOptions(path string, opts OpenOptions) (*Explorer, error) {
	e := NewExplorer(opts)
	if err := e.Open(path); err != nil {
		return nil, err
	}

	return e, nil
}

// OpenStandaloneIndex opens a loose bundle index file; bundles are read
// from files next to it.
func OpenStandaloneIndex(path string) (*Explorer, error) {
	return OpenStandaloneIndexWithOptions(path, OpenOptions{})
}

// OpenStandaloneIndexWithOptions opens a loose bundle index file using
// explicit options.
func OpenStandaloneIndexWithOptions(path string, opts OpenOptions) (*Explorer, error) {
	e := NewExplorer(opts)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.openStandaloneLocked(path); err != nil {
		return nil, err
	}

	return e, nil
}

// Open opens the archive at path on this Explorer. An already-open handle
// is closed first. Every returned error is an *OpenError; on failure the
// Explorer stays closed.
func (e *Explorer) Open(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.EqualFold(filepath.Base(path), bundle.IndexFileName) {
		return e.openStandaloneLocked(path)
	}

	if err := e.closeLocked(); err != nil {
		return &OpenError{Path: path, Category: OpenErrorFileAccess, Err: err}
	}

	e.state = stateOpening
	b, err := e.openContainerBacking(path)
	if err != nil {
		e.state = stateClosed
		return &OpenError{Path: path, Category: classifyOpenError(err), Err: err}
	}

	e.b = b
	e.path = path
	e.state = stateOpen
	e.logger.Info("archive opened",
		zap.String("path", path),
		zap.Bool("bundled", b.hasIndex()))

	return nil
}

// openStandaloneLocked opens a loose index file as the active backing.
func (e *Explorer) openStandaloneLocked(path string) error {
	if err := e.closeLocked(); err != nil {
		return &OpenError{Path: path, Category: OpenErrorFileAccess, Err: err}
	}

	e.state = stateOpening
	b, err := e.openIndexFileBacking(path)
	if err != nil {
		e.state = stateClosed
		return &OpenError{Path: path, Category: classifyOpenError(err), Err: err}
	}

	e.b = b
	e.path = path
	e.state = stateOpen
	e.logger.Info("standalone index opened", zap.String("path", path))

	return nil
}

// openContainerBacking opens the container and probes for the bundle index.
// The two structural-absence signatures degrade to the record backing; any
// other index failure aborts the open.
func (e *Explorer) openContainerBacking(path string) (backing, error) {
	c, err := OpenContainerWithOptions(path, e.opts)
	if err != nil {
		return nil, err
	}

	idx, err := e.loadIndex(c)
	if err != nil {
		if errors.Is(err, ErrBundleDirMissing) || errors.Is(err, ErrBundleIndexMissing) {
			e.logger.Debug("no bundle index, serving record tree", zap.Error(err))
			return &recordBacking{c: c}, nil
		}

		_ = c.Close()
		return nil, err
	}

	return &indexBacking{c: c, idx: idx, bundles: idx.Bundles()}, nil
}

// loadIndex resolves and parses the bundle index inside an open container.
func (e *Explorer) loadIndex(c *Container) (*bundle.Index, error) {
	dir, err := c.ResolvePath(BundlesDirName)
	if err != nil {
		return nil, err
	}
	if dir == nil || dir.Kind != KindDir {
		return nil, fmt.Errorf("%w: %q", ErrBundleDirMissing, BundlesDirName)
	}

	rec, err := c.ChildByName(dir, bundle.IndexFileName)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Kind != KindFile {
		return nil, fmt.Errorf("%w: %q", ErrBundleIndexMissing, bundle.IndexFileName)
	}

	sr, err := c.FileSection(rec)
	if err != nil {
		return nil, &BundleError{Index: bundle.IndexFileName, Err: err}
	}

	idx, err := bundle.OpenIndexWithOptions(sr, sr.Size(), &containerSource{c: c, dir: dir}, e.opts.indexOptions())
	if err != nil {
		return nil, &BundleError{Index: bundle.IndexFileName, Err: err}
	}

	return idx, nil
}

// openIndexFileBacking opens a loose index with bundles served from disk.
func (e *Explorer) openIndexFileBacking(path string) (backing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}

	idx, err := bundle.OpenIndexWithOptions(bytes.NewReader(raw), int64(len(raw)),
		bundle.NewDirSource(filepath.Dir(path)), e.opts.indexOptions())
	if err != nil {
		return nil, &BundleError{Index: filepath.Base(path), Err: err}
	}

	return &indexBacking{idx: idx, bundles: idx.Bundles(), looseSize: int64(len(raw))}, nil
}

// indexOptions translates facade cache settings to the bundle layer, where
// zero means disabled rather than default.
func (o OpenOptions) indexOptions() *bundle.IndexOptions {
	switch {
	case o.CacheBundles > 0:
		return &bundle.IndexOptions{CacheBundles: o.CacheBundles}
	case o.CacheBundles < 0:
		return &bundle.IndexOptions{}
	default:
		return nil
	}
}

// classifyOpenError derives the open failure category from the error chain.
func classifyOpenError(err error) OpenErrorCategory {
	var be *BundleError
	if errors.As(err, &be) || errors.Is(err, bundle.ErrCodecUnavailable) {
		return OpenErrorBundleDecompression
	}

	var pe *fs.PathError
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.As(err, &pe) {
		return OpenErrorFileAccess
	}

	switch {
	case errors.Is(err, ErrInvalidRecordHeader),
		errors.Is(err, ErrUnsupportedVersion),
		errors.Is(err, ErrCorruptRecord),
		errors.Is(err, ErrNameTooLong),
		errors.Is(err, ErrFreeListCorrupt),
		errors.Is(err, ErrDigestMismatch),
		errors.Is(err, bundle.ErrInvalidHeader),
		errors.Is(err, bundle.ErrIndexCorrupt):
		return OpenErrorFileCorruption
	}

	return OpenErrorUnknown
}

// Close releases the active backing. Calling Close on a closed Explorer is
// a no-op.
func (e *Explorer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closeLocked()
}

func (e *Explorer) closeLocked() error {
	if e.state == stateClosed {
		return nil
	}

	err := e.b.close()
	e.b = nil
	e.path = ""
	e.state = stateClosed

	if err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}

// IsOpen reports whether an archive is currently open.
func (e *Explorer) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state == stateOpen
}

// HasIndex reports whether the open archive is served from a bundle index.
// It returns false when no archive is open.
func (e *Explorer) HasIndex() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state == stateOpen && e.b.hasIndex()
}

// Path returns the archive path of the open handle, empty when closed.
func (e *Explorer) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.path
}

// Info returns archive-level metadata and entry counts.
func (e *Explorer) Info() (ArchiveInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return ArchiveInfo{}, ErrNotOpen
	}

	ai := ArchiveInfo{
		Path:    e.path,
		Bundled: e.b.hasIndex(),
	}
	if c := e.b.container(); c != nil {
		ai.Version = c.Version()
		ai.Size = c.Size()
	}
	if err := e.b.info(&ai); err != nil {
		return ArchiveInfo{}, err
	}

	return ai, nil
}

// Children returns a materialized snapshot of a directory node's immediate
// children. File nodes yield an empty slice without error.
func (e *Explorer) Children(dir Node) ([]Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return nil, ErrNotOpen
	}
	if !dir.IsDir() {
		return []Node{}, nil
	}

	return e.b.nodesForPath(dir.Path)
}

// NodesForPath materializes the children of a directory path. Absent paths
// yield an empty slice without error; "" and "/" address the root.
func (e *Explorer) NodesForPath(path string) ([]Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return nil, ErrNotOpen
	}

	return e.b.nodesForPath(path)
}

// ReadFile returns the full decoded content of a file node. Failures are
// wrapped as *FileOperationError.
func (e *Explorer) ReadFile(file Node) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := e.readFileLocked(file.Path, file.IsFile())
	if err != nil {
		return nil, &FileOperationError{Op: "read", Path: file.Path, Err: err}
	}

	return data, nil
}

func (e *Explorer) readFileLocked(path string, isFile bool) ([]byte, error) {
	if e.state != stateOpen {
		return nil, ErrNotOpen
	}
	if !isFile {
		return nil, ErrNotFile
	}

	return e.b.readFile(path)
}

// FindFile resolves a file node by case-insensitive path. Misses return
// nil without error; directories are misses here.
func (e *Explorer) FindFile(path string) (*Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.findLocked(path)
	if err != nil || n == nil || !n.IsFile() {
		return nil, err
	}

	return n, nil
}

// FindDirectory resolves a directory node by case-insensitive path. Misses
// return nil without error; "" and "/" resolve to the root directory.
func (e *Explorer) FindDirectory(path string) (*Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.findLocked(path)
	if err != nil || n == nil || !n.IsDir() {
		return nil, err
	}

	return n, nil
}

func (e *Explorer) findLocked(path string) (*Node, error) {
	if e.state != stateOpen {
		return nil, ErrNotOpen
	}

	return e.b.find(path)
}

// VerifyFile recomputes the stored content digest of a file node and
// reports ErrDigestMismatch when it differs.
func (e *Explorer) VerifyFile(file Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return ErrNotOpen
	}
	if !file.IsFile() {
		return ErrNotFile
	}

	return e.b.verifyFile(file.Path)
}

// ReplaceFile overwrites the content of a container-backed file in place.
// Bundled files are rejected with ErrBundledReplace.
func (e *Explorer) ReplaceFile(file Node, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return ErrNotOpen
	}
	if file.Type == NodeBundleFile {
		return fmt.Errorf("%w: %s", ErrBundledReplace, file.Path)
	}
	if !file.IsFile() {
		return ErrNotFile
	}

	c := e.b.container()
	if c == nil {
		return fmt.Errorf("%w: %s", ErrBundledReplace, file.Path)
	}

	return c.Replace(file.Path, data)
}

// resolveRecordPath walks an archive path through the record tree and
// returns the record with its canonical stored-case path. Misses return a
// nil record.
func resolveRecordPath(c *Container, p string) (*Record, string, error) {
	rec, err := c.Root()
	if err != nil {
		return nil, "", err
	}

	canonical := ""
	for _, seg := range splitPath(NormalizePath(p)) {
		if rec.Kind != KindDir {
			return nil, "", nil
		}

		rec, err = c.ChildByName(rec, seg)
		if err != nil {
			return nil, "", err
		}
		if rec == nil {
			return nil, "", nil
		}

		canonical = joinPath(canonical, rec.Name)
	}

	return rec, canonical, nil
}

// recordBacking serves the facade from the plain container record tree.
type recordBacking struct {
	c *Container
	// files and dirs memoize the first Info walk.
	files, dirs int
	counted     bool
}

func (b *recordBacking) hasIndex() bool { return false }

func (b *recordBacking) container() *Container { return b.c }

func (b *recordBacking) close() error { return b.c.Close() }

func (b *recordBacking) nodesForPath(p string) ([]Node, error) {
	rec, canonical, err := resolveRecordPath(b.c, p)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Kind != KindDir {
		return []Node{}, nil
	}

	children, err := b.c.Children(rec)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(children))
	for _, child := range children {
		nodes = append(nodes, nodeFromRecord(child, joinPath(canonical, child.Name)))
	}
	sortNodes(nodes)

	return nodes, nil
}

func (b *recordBacking) find(p string) (*Node, error) {
	rec, canonical, err := resolveRecordPath(b.c, p)
	if err != nil || rec == nil {
		return nil, err
	}

	var n Node
	if canonical == "" {
		n = rootNode(len(rec.Entries) > 0)
	} else {
		n = nodeFromRecord(rec, canonical)
	}

	return &n, nil
}

func (b *recordBacking) readFile(p string) ([]byte, error) {
	rec, _, err := resolveRecordPath(b.c, p)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, p)
	}

	return b.c.ReadFileData(rec)
}

func (b *recordBacking) verifyFile(p string) error {
	rec, _, err := resolveRecordPath(b.c, p)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, p)
	}

	return b.c.VerifyFile(rec)
}

func (b *recordBacking) info(ai *ArchiveInfo) error {
	if !b.counted {
		files, dirs := 0, 0
		err := b.c.Walk(func(_ string, rec *Record) error {
			switch rec.Kind {
			case KindFile:
				files++
			case KindDir:
				dirs++
			}

			return nil
		})
		if err != nil {
			return err
		}

		b.files, b.dirs, b.counted = files, dirs, true
	}

	ai.FileCount = b.files
	ai.DirCount = b.dirs

	return nil
}

// indexBacking serves the facade from the bundle index. For archives opened
// as containers it falls back to loose record paths outside the index and
// merges loose root children into the materialized root.
type indexBacking struct {
	// c is nil in standalone index mode.
	c   *Container
	idx *bundle.Index
	// bundles caches the descriptor table for node conversion.
	bundles []bundle.BundleInfo
	// looseSize is the index file size in standalone mode.
	looseSize int64
	// dirs memoizes the first Info tree count.
	dirs    int
	counted bool
}

func (b *indexBacking) hasIndex() bool { return true }

func (b *indexBacking) container() *Container { return b.c }

func (b *indexBacking) close() error {
	if b.c != nil {
		return b.c.Close()
	}

	return nil
}

// bundleInfoFor returns the descriptor of an entry's owning bundle.
func (b *indexBacking) bundleInfoFor(e *bundle.FileEntry) bundle.BundleInfo {
	if int(e.BundleIndex) < len(b.bundles) {
		return b.bundles[e.BundleIndex]
	}

	return bundle.BundleInfo{}
}

// dirNodes converts one index directory's children into node snapshots.
func (b *indexBacking) dirNodes(d *bundle.Dir) []Node {
	subdirs, files := d.Dirs(), d.Files()
	nodes := make([]Node, 0, len(subdirs)+len(files))
	for _, sub := range subdirs {
		nodes = append(nodes, nodeFromIndexDir(sub))
	}
	for _, f := range files {
		nodes = append(nodes, nodeFromIndexFile(f, b.bundleInfoFor(f)))
	}

	return nodes
}

func (b *indexBacking) nodesForPath(p string) ([]Node, error) {
	normalized := NormalizePath(p)
	if normalized == "" {
		return b.rootNodes()
	}

	if d := b.idx.Dir(normalized); d != nil {
		nodes := b.dirNodes(d)
		sortNodes(nodes)
		return nodes, nil
	}

	if b.c != nil {
		rec, canonical, err := resolveRecordPath(b.c, normalized)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Kind == KindDir {
			children, err := b.c.Children(rec)
			if err != nil {
				return nil, err
			}

			nodes := make([]Node, 0, len(children))
			for _, child := range children {
				nodes = append(nodes, nodeFromRecord(child, joinPath(canonical, child.Name)))
			}
			sortNodes(nodes)

			return nodes, nil
		}
	}

	return []Node{}, nil
}

// rootNodes materializes the archive root: index children plus loose
// container children, suppressing the bundle container folder on both
// sides. Name collisions resolve in favor of the index.
func (b *indexBacking) rootNodes() ([]Node, error) {
	suppressed := pathKey(BundlesDirName)

	indexed := b.dirNodes(b.idx.Root())
	nodes := make([]Node, 0, len(indexed))
	for _, n := range indexed {
		if pathKey(n.Name) == suppressed {
			continue
		}

		nodes = append(nodes, n)
	}

	if b.c != nil {
		seen := make(map[string]struct{}, len(nodes))
		for _, n := range nodes {
			seen[pathKey(n.Name)] = struct{}{}
		}

		root, err := b.c.Root()
		if err != nil {
			return nil, err
		}
		children, err := b.c.Children(root)
		if err != nil {
			return nil, err
		}

		for _, child := range children {
			if pathKey(child.Name) == suppressed {
				continue
			}
			if _, ok := seen[pathKey(child.Name)]; ok {
				continue
			}

			nodes = append(nodes, nodeFromRecord(child, child.Name))
		}
	}

	sortNodes(nodes)
	return nodes, nil
}

func (b *indexBacking) find(p string) (*Node, error) {
	normalized := NormalizePath(p)
	if normalized == "" {
		root := b.idx.Root()
		hasChildren := len(root.Dirs()) > 0 || len(root.Files()) > 0
		if !hasChildren && b.c != nil {
			rec, err := b.c.Root()
			if err != nil {
				return nil, err
			}

			hasChildren = len(rec.Entries) > 0
		}

		n := rootNode(hasChildren)
		return &n, nil
	}

	if entry := b.idx.Lookup(normalized); entry != nil {
		n := nodeFromIndexFile(entry, b.bundleInfoFor(entry))
		return &n, nil
	}
	if d := b.idx.Dir(normalized); d != nil {
		n := nodeFromIndexDir(d)
		return &n, nil
	}

	if b.c != nil {
		rec, canonical, err := resolveRecordPath(b.c, normalized)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			n := nodeFromRecord(rec, canonical)
			return &n, nil
		}
	}

	return nil, nil
}

func (b *indexBacking) readFile(p string) ([]byte, error) {
	normalized := NormalizePath(p)

	if entry := b.idx.Lookup(normalized); entry != nil {
		data, err := b.idx.ReadFile(entry)
		if err != nil {
			return nil, &BundleError{Index: bundle.IndexFileName, Err: err}
		}

		return data, nil
	}

	if b.c != nil {
		rec, _, err := resolveRecordPath(b.c, normalized)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return b.c.ReadFileData(rec)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, p)
}

func (b *indexBacking) verifyFile(p string) error {
	normalized := NormalizePath(p)

	if entry := b.idx.Lookup(normalized); entry != nil {
		if len(entry.Digest) == 0 {
			return fmt.Errorf("%w: %s", ErrNoDigest, p)
		}

		data, err := b.idx.ReadFile(entry)
		if err != nil {
			return &BundleError{Index: bundle.IndexFileName, Err: err}
		}
		if !bytes.Equal(bundle.Digest(data), entry.Digest) {
			return fmt.Errorf("%w: %s", ErrDigestMismatch, p)
		}

		return nil
	}

	if b.c != nil {
		rec, _, err := resolveRecordPath(b.c, normalized)
		if err != nil {
			return err
		}
		if rec != nil {
			return b.c.VerifyFile(rec)
		}
	}

	return fmt.Errorf("%w: %s", ErrEntryNotFound, p)
}

func (b *indexBacking) info(ai *ArchiveInfo) error {
	if !b.counted {
		b.dirs = countIndexDirs(b.idx.Root()) - 1
		b.counted = true
	}

	ai.FileCount = b.idx.FileCount()
	ai.DirCount = b.dirs
	ai.BundleCount = b.idx.BundleCount()
	if b.c == nil {
		ai.Size = b.looseSize
	}

	return nil
}

// countIndexDirs counts a directory and all of its descendants.
func countIndexDirs(d *bundle.Dir) int {
	n := 1
	for _, sub := range d.Dirs() {
		n += countIndexDirs(sub)
	}

	return n
}

// containerSource serves bundle payloads from FILE records inside the
// container's bundle directory. Bundle names may span subdirectories.
type containerSource struct {
	c   *Container
	dir *Record
}

// OpenBundle implements bundle.Source.
func (s *containerSource) OpenBundle(name string) (bundle.ByteSource, error) {
	segs := strings.Split(name, "/")
	segs[len(segs)-1] += bundle.BundleExt

	rec := s.dir
	for _, seg := range segs {
		if rec == nil || rec.Kind != KindDir {
			return nil, fmt.Errorf("%w: %s", bundle.ErrBundleNotFound, name)
		}

		var err error
		rec, err = s.c.ChildByName(rec, seg)
		if err != nil {
			return nil, err
		}
	}
	if rec == nil || rec.Kind != KindFile {
		return nil, fmt.Errorf("%w: %s", bundle.ErrBundleNotFound, name)
	}

	sr, err := s.c.FileSection(rec)
	if err != nil {
		return nil, err
	}

	return bundle.ReaderAtSource(sr, sr.Size()), nil
}
