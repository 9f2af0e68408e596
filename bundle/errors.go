// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package bundle

import "errors"

// Sentinel errors for bundle operations. Use errors.Is in callers.
var (
	// ErrInvalidHeader means the bundle is missing or has a malformed header.
	ErrInvalidHeader = errors.New("invalid bundle: missing or bad header")
	// ErrCodecUnavailable means no decoder or encoder is registered for the codec.
	ErrCodecUnavailable = errors.New("codec unavailable")
	// ErrBlockSizeMismatch means a decompressed block does not match its expected size.
	ErrBlockSizeMismatch = errors.New("decompressed block size mismatch")
	// ErrRangeOutOfBounds means a requested byte range exceeds the uncompressed payload.
	ErrRangeOutOfBounds = errors.New("range exceeds uncompressed payload")
	// ErrIndexCorrupt means the index payload failed structural validation.
	ErrIndexCorrupt = errors.New("corrupt bundle index")
	// ErrBundleNotFound means the source has no bundle with the requested name.
	ErrBundleNotFound = errors.New("bundle not found")
	// ErrNilSource means the bundle source is nil.
	ErrNilSource = errors.New("bundle source is nil")
	// ErrSizeOverflow means a size field exceeds the addressable range.
	ErrSizeOverflow = errors.New("size exceeds addressable range")
	// ErrEmptyInputs means no inputs were provided for index build.
	ErrEmptyInputs = errors.New("no inputs provided for build")
	// ErrDuplicatePath means two build inputs resolve to the same path (case-insensitive).
	ErrDuplicatePath = errors.New("duplicate file path")
	// ErrInvalidPath means a file path is empty or invalid after normalization.
	ErrInvalidPath = errors.New("invalid file path")
)
