// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Editor accumulates staged file replacements for one archive and applies
// them in a single Commit with backup and rollback.
type Editor struct {
	path string
	ops  []editOperation
	opts EditOptions
}

// editOperation stores one staged replacement.
type editOperation struct {
	path string
	data []byte
}

// EditResult summarizes one applied commit.
type EditResult struct {
	// BackupPath is the backup file location when a backup was kept.
	BackupPath string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	// Replaced is the number of applied replacements.
	Replaced int `json:"replaced" yaml:"replaced"`
	// Bytes is the total size of written content.
	Bytes int64 `json:"bytes" yaml:"bytes"`
}

// OpenEditor creates a staged editor for an archive on disk.
func OpenEditor(path string, opts EditOptions) (*Editor, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, ErrInvalidEntryPath
	}

	opts.applyDefaults()

	return &Editor{
		path: trimmedPath,
		opts: opts,
		ops:  make([]editOperation, 0, 8),
	}, nil
}

// Replace schedules replacing the content of an existing file path. The
// data slice is copied.
func (e *Editor) Replace(path string, data []byte) error {
	if e == nil {
		return ErrNilReader
	}

	canonical, err := normalizeArchiveEntryPath(path)
	if err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	e.ops = append(e.ops, editOperation{path: canonical, data: buf})

	return nil
}

// Pending returns the number of staged replacements.
func (e *Editor) Pending() int {
	if e == nil {
		return 0
	}

	return len(e.ops)
}

// Commit applies all staged replacements in place. The original archive is
// copied to a rotated ".bak" slot first and restored when any replacement
// fails. With BackupKeep zero a successful commit removes the backup.
func (e *Editor) Commit(ctx context.Context) (*EditResult, error) {
	if e == nil {
		return nil, ErrNilReader
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if len(e.ops) == 0 {
		return &EditResult{}, nil
	}

	backupPath := e.path + ".bak"
	if err := prepareBackupSlot(backupPath, e.opts.BackupKeep); err != nil {
		return nil, err
	}
	if err := copyFile(e.path, backupPath); err != nil {
		return nil, fmt.Errorf("back up archive: %w", err)
	}

	res, err := e.applyStaged(ctx)
	if err != nil {
		rollbackErr := rollbackFromBackup(e.path, backupPath)
		if rollbackErr != nil {
			return nil, fmt.Errorf("%v (rollback failed: %v)", err, rollbackErr)
		}

		return nil, err
	}

	if e.opts.BackupKeep == 0 {
		if err := removeIfExists(backupPath); err != nil {
			return nil, fmt.Errorf("remove backup: %w", err)
		}
	} else {
		res.BackupPath = backupPath
	}

	e.ops = e.ops[:0]

	return res, nil
}

// applyStaged opens the archive writable and applies every staged
// replacement in order.
func (e *Editor) applyStaged(ctx context.Context) (*EditResult, error) {
	opts := e.opts.Open
	opts.ReadWrite = true

	c, err := OpenContainerWithOptions(e.path, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	res := &EditResult{}
	for _, op := range e.ops {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := c.Replace(op.path, op.data); err != nil {
			return nil, fmt.Errorf("replace %s: %w", op.path, err)
		}

		res.Replaced++
		res.Bytes += int64(len(op.data))
	}

	return res, nil
}

// copyFile copies src to dst, truncating an existing destination.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}

	return out.Close()
}

// prepareBackupSlot rotates/removes existing backup generations before new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed commit.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
