// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// verifyTask is one file record queued for digest recomputation.
type verifyTask struct {
	path string
	rec  *Record
}

// Verify recomputes the stored digests of every reachable record and walks
// the free list. Directory entry tables are checked during the tree walk;
// file contents are hashed by a worker pool. Structural corruption aborts
// with an error; digest mismatches are collected in the report.
func (c *Container) Verify(ctx context.Context, opts VerifyOptions) (*VerifyReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	workers := opts.MaxWorkers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	report := &VerifyReport{}
	var tasks []verifyTask

	err := c.Walk(func(path string, rec *Record) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch rec.Kind {
		case KindFile:
			report.Files++
			tasks = append(tasks, verifyTask{path: path, rec: rec})
		case KindDir:
			report.Dirs++
			err := verifyDirDigest(rec)
			if opts.OnRecord != nil {
				opts.OnRecord(path, err)
			}
			if err != nil {
				report.Mismatches = append(report.Mismatches, path)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	spans, err := c.FreeSpans()
	if err != nil {
		return nil, err
	}
	report.FreeSpans = len(spans)

	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskCh := make(chan verifyTask, len(tasks))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for task := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}

				err := c.VerifyFile(task.rec)
				if opts.OnRecord != nil {
					opts.OnRecord(task.path, err)
				}
				if err != nil {
					mu.Lock()
					report.Mismatches = append(report.Mismatches, task.path)
					mu.Unlock()
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

	sort.Strings(report.Mismatches)

	return report, nil
}

// verifyDirDigest recomputes the SHA-256 of a directory's child entry table.
func verifyDirDigest(rec *Record) error {
	table := make([]byte, len(rec.Entries)*12)
	for i, e := range rec.Entries {
		binary.LittleEndian.PutUint32(table[i*12:], e.NameHash)
		binary.LittleEndian.PutUint64(table[i*12+4:], uint64(e.Offset))
	}

	if sha256.Sum256(table) != rec.Digest {
		return fmt.Errorf("%w: directory %q", ErrDigestMismatch, rec.Name)
	}

	return nil
}
