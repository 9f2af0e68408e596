// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"sort"
	"strings"
)

// ReadArchiveInfo opens an archive, gathers summary metadata, and closes it.
func ReadArchiveInfo(path string) (*ArchiveInfo, error) {
	return ReadArchiveInfoWithOptions(path, OpenOptions{})
}

// ReadArchiveInfoWithOptions opens an archive with options, gathers summary
// metadata, and closes it.
func ReadArchiveInfoWithOptions(path string, opts OpenOptions) (*ArchiveInfo, error) {
	e, err := OpenWithOptions(path, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.Close() }()

	ai, err := e.Info()
	if err != nil {
		return nil, err
	}

	return &ai, nil
}

// ListPaths opens an archive and returns entry paths without payload reads.
func ListPaths(path string, opts ListOptions) ([]string, error) {
	return ListPathsWithOptions(path, opts, OpenOptions{})
}

// ListPathsWithOptions opens an archive with open options and returns entry
// paths under opts.Prefix sorted lexically. An unknown prefix yields an
// empty slice.
func ListPathsWithOptions(path string, opts ListOptions, openOpts OpenOptions) ([]string, error) {
	e, err := OpenWithOptions(path, openOpts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.Close() }()

	out := make([]string, 0, 64)

	var walk func(dirPath string) error
	walk = func(dirPath string) error {
		nodes, err := e.NodesForPath(dirPath)
		if err != nil {
			return err
		}

		for _, n := range nodes {
			if n.IsDir() {
				if opts.IncludeDirs {
					out = append(out, n.Path)
				}
				if n.HasChildren {
					if err := walk(n.Path); err != nil {
						return err
					}
				}

				continue
			}

			out = append(out, n.Path)
		}

		return nil
	}

	start := strings.TrimSpace(opts.Prefix)
	switch {
	case start == "" || start == "/":
		if err := walk(""); err != nil {
			return nil, err
		}
	default:
		dir, err := e.FindDirectory(start)
		if err != nil {
			return nil, err
		}
		if dir != nil {
			if err := walk(dir.Path); err != nil {
				return nil, err
			}

			break
		}

		file, err := e.FindFile(start)
		if err != nil {
			return nil, err
		}
		if file != nil {
			out = append(out, file.Path)
		}
	}

	sort.Strings(out)

	return out, nil
}
