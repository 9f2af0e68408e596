// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// extractTask stores one selected file node with prepared output relative paths.
type extractTask struct {
	relPath string
	relDir  string
	node    Node
}

// extractOutcome is the per-task result collected from workers.
type extractOutcome struct {
	err     error
	written int64
	skipped bool
}

// Extract writes selected files from the archive to dstDir. The tree walk
// and every content read hold the facade mutex; only disk writes run in
// parallel across MaxWorkers. On failure the first encountered error is
// returned together with the partial result.
func (e *Explorer) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	nodes, err := e.collectExtractNodes(opts)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return &ExtractResult{}, nil
	}

	paths := make([]string, len(nodes))
	for i := range nodes {
		paths[i] = nodes[i].Path
	}
	if !opts.RawNames {
		paths, err = sanitizeArchivePaths(paths)
		if err != nil {
			return nil, err
		}
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tasks, err := prepareExtractTasks(nodes, paths)
	if err != nil {
		return nil, err
	}
	if err := prepareExtractDirs(dstRootAbs, tasks); err != nil {
		return nil, err
	}

	workers := opts.MaxWorkers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskCh := make(chan extractTask, len(tasks))
	resCh := make(chan extractOutcome, len(tasks))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for task := range taskCh {
				written, skipped, err := e.extractOne(ctx, dstRootAbs, task, opts.FileMode, opts.OnFileDone)
				select {
				case resCh <- extractOutcome{written: written, skipped: skipped, err: err}:
				case <-ctx.Done():
					return
				}
			}
		})
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return nil, ctx.Err()
		case taskCh <- task:
		}
	}

	close(taskCh)
	wg.Wait()
	close(resCh)

	result := &ExtractResult{}
	var first error
	for outcome := range resCh {
		switch {
		case outcome.err != nil:
			if first == nil {
				first = outcome.err
			}
		case outcome.skipped:
			result.Skipped++
		default:
			result.Files++
			result.Bytes += outcome.written
		}
	}

	e.logger.Info("extraction finished",
		zap.String("dst", dstRootAbs),
		zap.Int("files", result.Files),
		zap.Int64("bytes", result.Bytes),
		zap.Int("skipped", result.Skipped))

	return result, first
}

// collectExtractNodes walks the active backing from the start path and
// returns the selected file nodes. The whole walk holds the facade mutex.
func (e *Explorer) collectExtractNodes(opts ExtractOptions) ([]Node, error) {
	matcher, err := newSelectMatcher(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return nil, ErrNotOpen
	}

	start := NormalizePath(opts.Start)
	if start != "" {
		n, err := e.b.find(start)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, opts.Start)
		}
		if n.IsFile() {
			if matcher.Match(n.Path) {
				return []Node{*n}, nil
			}

			return nil, nil
		}

		start = n.Path
	}

	var out []Node
	if err := e.collectDirLocked(start, matcher, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func (e *Explorer) collectDirLocked(path string, matcher *selectMatcher, out *[]Node) error {
	children, err := e.b.nodesForPath(path)
	if err != nil {
		return err
	}

	for _, child := range children {
		if child.IsDir() {
			if err := e.collectDirLocked(child.Path, matcher, out); err != nil {
				return err
			}
			continue
		}
		if matcher.Match(child.Path) {
			*out = append(*out, child)
		}
	}

	return nil
}

// prepareExtractTasks validates output paths and prepares relative fs paths.
// outPaths is parallel to nodes.
func prepareExtractTasks(nodes []Node, outPaths []string) ([]extractTask, error) {
	tasks := make([]extractTask, 0, len(nodes))
	for i, node := range nodes {
		if strings.TrimSpace(outPaths[i]) == "" {
			continue
		}

		normalizedPath, err := normalizeExtractEntryPath(outPaths[i])
		if err != nil {
			return nil, fmt.Errorf("normalize entry path %s: %w", node.Path, err)
		}

		relPath := filepath.FromSlash(normalizedPath)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		tasks = append(tasks, extractTask{
			node:    node,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return tasks, nil
}

// prepareExtractDirs creates all unique parent directories needed by tasks.
func prepareExtractDirs(dstRootAbs string, tasks []extractTask) error {
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		key := strings.ToLower(dirPath)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// extractOne reads one file through the facade and writes it to the
// destination root.
func (e *Explorer) extractOne(
	ctx context.Context,
	dstRootAbs string,
	task extractTask,
	fileMode ExtractFileMode,
	onFileDone func(path string, written int64, outputPath string),
) (int64, bool, error) {
	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	default:
	}

	data, err := e.ReadFile(task.node)
	if err != nil {
		return 0, false, err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)
	file, needsTruncate, err := openExtractFile(outPath, fileMode, int64(len(data)))
	if err != nil {
		if fileMode == ExtractFileModeCreateOnly && os.IsExist(err) {
			return 0, true, nil
		}

		return 0, false, fmt.Errorf("open %s: %w", task.node.Path, err)
	}

	written, writeErr := file.Write(data)
	if writeErr == nil && needsTruncate {
		if truncErr := file.Truncate(int64(written)); truncErr != nil {
			_ = file.Close()
			return 0, false, fmt.Errorf("truncate %s: %w", task.node.Path, truncErr)
		}
	}

	closeErr := file.Close()
	if writeErr != nil {
		return 0, false, fmt.Errorf("write %s: %w", task.node.Path, writeErr)
	}
	if closeErr != nil {
		return 0, false, fmt.Errorf("close %s: %w", task.node.Path, closeErr)
	}

	if onFileDone != nil {
		onFileDone(task.node.Path, int64(written), outPath)
	}

	return int64(written), false, nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode, expectedSize int64) (*os.File, bool, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return file, false, nil
		}

		if !os.IsExist(err) {
			return nil, false, err
		}

		file, truncErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		return file, false, truncErr
	case ExtractFileModeOverwriteSmart:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600)
		if err != nil {
			return nil, false, err
		}

		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, false, err
		}

		needsTruncate := info.Size() > expectedSize
		return file, needsTruncate, nil
	case ExtractFileModeTruncate:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		return file, false, err
	case ExtractFileModeCreateOnly:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		return file, false, err
	default:
		return nil, false, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':' && path[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
