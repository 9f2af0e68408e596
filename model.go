// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"runtime"

	"go.uber.org/zap"
)

// Internal binary layout and format limits.
const (
	recordHeaderSize = 8       // uint32 length + 4-byte tag
	rootRecordLength = 28      // fixed GGPK record size in bytes
	digestSize       = 32      // SHA-256 digest size in record headers
	maxNameLen       = 512     // max record name length in code units
	minFreeRecordLen = 16      // smallest representable FREE record
	maxChildCount    = 1 << 24 // sanity bound for directory entry tables
)

// Wire record tags.
const (
	tagRoot = "GGPK"
	tagDir  = "PDIR"
	tagFile = "FILE"
	tagFree = "FREE"
)

// Container versions and their record name encodings.
const (
	// VersionUTF16 stores record names as UTF-16LE code units.
	VersionUTF16 uint32 = 3
	// VersionUTF32 stores record names as UTF-32LE code units.
	VersionUTF32 uint32 = 4
)

// BundlesDirName is the bundle container folder at the archive root.
const BundlesDirName = "Bundles2"

// ArchiveInfo summarizes one opened archive.
type ArchiveInfo struct {
	// Path is the archive file path.
	Path string `json:"path" yaml:"path"`
	// Version is the container version (3 or 4); zero for standalone indexes.
	Version uint32 `json:"version,omitempty" yaml:"version,omitempty"`
	// Bundled reports whether the index backing is active.
	Bundled bool `json:"bundled" yaml:"bundled"`
	// Size is the archive file size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// FileCount is the number of files visible through the active backing.
	FileCount int `json:"file_count" yaml:"file_count"`
	// DirCount is the number of directories visible through the active backing.
	DirCount int `json:"dir_count" yaml:"dir_count"`
	// BundleCount is the number of referenced bundles; zero on the record backing.
	BundleCount int `json:"bundle_count,omitempty" yaml:"bundle_count,omitempty"`
}

// OpenOptions configures archive open behavior for Explorer and Container.
type OpenOptions struct {
	// Logger receives structured progress events. Defaults to a no-op logger.
	Logger *zap.Logger `json:"-" yaml:"-"`
	// ReadWrite opens the container file for in-place replacement.
	ReadWrite bool `json:"read_write,omitempty" yaml:"read_write,omitempty"`
	// CacheBundles is the number of decompressed bundle payloads kept in
	// memory by the index backing. Zero selects the default, negative
	// disables caching.
	CacheBundles int `json:"cache_bundles,omitempty" yaml:"cache_bundles,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeOverwriteSmart rewrites files in place and truncates only when existing file is larger.
	ExtractFileModeOverwriteSmart ExtractFileMode = "overwrite_smart"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnFileDone is called after one file is fully written to disk.
	OnFileDone func(path string, written int64, outputPath string) `json:"-" yaml:"-"`
	// Start limits extraction to one subtree; empty extracts from the root.
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	// Include holds ordered include patterns; empty includes everything.
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	// Exclude holds ordered exclude patterns applied before includes.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// MaxWorkers is the number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// RawNames disables default path sanitization during extract.
	// When false (default), extract rewrites names to filesystem-safe output paths.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// ExtractResult contains extraction output statistics.
type ExtractResult struct {
	// Files is the number of files written to disk.
	Files int `json:"files" yaml:"files"`
	// Bytes is the total payload bytes written.
	Bytes int64 `json:"bytes" yaml:"bytes"`
	// Skipped is the number of existing files left in place by create-only mode.
	Skipped int `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// VerifyOptions configures integrity verification.
type VerifyOptions struct {
	// OnRecord is called after each verified record with its archive path
	// and check result. File callbacks may run concurrently.
	OnRecord func(path string, err error) `json:"-" yaml:"-"`
	// MaxWorkers is the number of digest workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// VerifyReport contains integrity verification results.
type VerifyReport struct {
	// Mismatches lists archive paths whose recomputed digest differs.
	Mismatches []string `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
	// Files is the number of file records checked.
	Files int `json:"files" yaml:"files"`
	// Dirs is the number of directory records checked.
	Dirs int `json:"dirs" yaml:"dirs"`
	// FreeSpans is the number of FREE records walked.
	FreeSpans int `json:"free_spans,omitempty" yaml:"free_spans,omitempty"`
}

// Ok reports whether verification found no mismatches.
func (r *VerifyReport) Ok() bool {
	return len(r.Mismatches) == 0
}

// ListOptions configures ListPaths behavior.
type ListOptions struct {
	// Prefix limits listing to one subtree; empty lists everything.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// IncludeDirs adds directory paths to the listing.
	IncludeDirs bool `json:"include_dirs,omitempty" yaml:"include_dirs,omitempty"`
}

// EditOptions configures the staged archive editor.
type EditOptions struct {
	// Open options applied when the editor opens the archive on Commit.
	Open OpenOptions `json:"open,omitzero" yaml:"open,omitzero"`
	// BackupKeep controls how many backup generations are kept after successful commit.
	// 0 means remove backup, 1 keeps only `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// applyDefaults fills zero-valued open options with defaults.
func (opts *OpenOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeAuto
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}
}

// applyDefaults fills zero-valued edit options with defaults.
func (opts *EditOptions) applyDefaults() {
	opts.Open.applyDefaults()

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
}
