// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"errors"
	"fmt"
)

// Sentinel errors for archive operations. Use errors.Is in callers.
var (
	// ErrInvalidRecordHeader means the container is missing or has a bad root record.
	ErrInvalidRecordHeader = errors.New("invalid container record: missing or bad header")
	// ErrUnsupportedVersion means the container version is not 3 or 4.
	ErrUnsupportedVersion = errors.New("unsupported container version")
	// ErrCorruptRecord means a record did not parse within its declared bounds.
	ErrCorruptRecord = errors.New("corrupt container record")
	// ErrNameTooLong means a record name exceeds the maximum length.
	ErrNameTooLong = errors.New("record name exceeds maximum length")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNotOpen means the explorer has no open archive.
	ErrNotOpen = errors.New("no open archive")
	// ErrClosed means the container or resource is already closed.
	ErrClosed = errors.New("container or resource already closed")
	// ErrNotFile means the record or node is not a file.
	ErrNotFile = errors.New("not a file")
	// ErrNotDirectory means the record or node is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrBundleDirMissing means the container root has no bundle directory.
	ErrBundleDirMissing = errors.New("bundle directory not present in container root")
	// ErrBundleIndexMissing means the bundle directory has no index file.
	ErrBundleIndexMissing = errors.New("bundle index file not present")
	// ErrBundledReplace means the file lives in a bundle and cannot be replaced in place.
	ErrBundledReplace = errors.New("bundled files cannot be replaced in place")
	// ErrReadOnly means the container was opened without write access.
	ErrReadOnly = errors.New("container opened read-only")
	// ErrDigestMismatch means a recomputed record digest differs from the stored one.
	ErrDigestMismatch = errors.New("record digest mismatch")
	// ErrNoDigest means the record carries no content digest to verify against.
	ErrNoDigest = errors.New("record carries no digest")
	// ErrFreeListCorrupt means the free list walk hit a cycle or out-of-bounds span.
	ErrFreeListCorrupt = errors.New("free list is corrupt")
	// ErrSizeOverflow means the size exceeds record or container limits.
	ErrSizeOverflow = errors.New("size exceeds record limits")
	// ErrInvalidEntryPath means an archive path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrInvalidExtractPath means an archive path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrInvalidSelectPattern means an include or exclude pattern failed to compile.
	ErrInvalidSelectPattern = errors.New("invalid selection pattern")
)

// OpenErrorCategory classifies why opening an archive failed.
type OpenErrorCategory string

// Open failure categories.
const (
	// OpenErrorBundleDecompression marks failures decompressing or parsing the bundle index.
	OpenErrorBundleDecompression OpenErrorCategory = "bundle_decompression"
	// OpenErrorFileAccess marks filesystem-level failures reading the archive.
	OpenErrorFileAccess OpenErrorCategory = "file_access"
	// OpenErrorFileCorruption marks structural damage in the archive records.
	OpenErrorFileCorruption OpenErrorCategory = "file_corruption"
	// OpenErrorUnknown marks failures outside the known classes.
	OpenErrorUnknown OpenErrorCategory = "unknown"
)

// OpenError describes a failed archive open with a classified cause.
type OpenError struct {
	// Err is the underlying cause.
	Err error
	// Path is the archive path passed to Open.
	Path string
	// Category is the failure class derived from the error chain.
	Category OpenErrorCategory
}

// Error implements error.
func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s [%s]: %v", e.Path, e.Category, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Suggestion returns a short remedial hint for the failure class.
func (e *OpenError) Suggestion() string {
	switch e.Category {
	case OpenErrorBundleDecompression:
		return "the bundle index could not be decompressed; the archive may use a codec with no registered decoder"
	case OpenErrorFileAccess:
		return "the archive could not be read; check that the file exists and is not locked by another process"
	case OpenErrorFileCorruption:
		return "the archive structure is damaged; repair or re-acquire the file"
	default:
		return "unexpected failure; inspect the wrapped error"
	}
}

// FileOperationError describes a failed operation on one archive file.
type FileOperationError struct {
	// Err is the underlying cause.
	Err error
	// Op is the operation name ("read", "replace", "verify").
	Op string
	// Path is the archive path of the file.
	Path string
}

// Error implements error.
func (e *FileOperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FileOperationError) Unwrap() error {
	return e.Err
}

// BundleError describes a failure inside the bundle index layer.
type BundleError struct {
	// Err is the underlying cause.
	Err error
	// Index is the index file name the failure belongs to.
	Index string
}

// Error implements error.
func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle index %s: %v", e.Index, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BundleError) Unwrap() error {
	return e.Err
}
