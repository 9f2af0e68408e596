// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/wraeclast/ggpk"
)

var lsCommand = &cli.Command{
	Name:  "ls",
	Usage: "List archive entries",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "long",
			Aliases: []string{"l"},
			Usage:   "Long listing with entry type, size and codec",
		},
		&cli.BoolFlag{
			Name:    "recursive",
			Aliases: []string{"R"},
			Usage:   "List the whole subtree instead of one directory",
		},
		&cli.BoolFlag{
			Name:  "dirs",
			Usage: "Include directories in recursive listings",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The GGPK archive or standalone index to list",
		},
		&cli.StringArg{
			Name:      "path",
			UsageText: "Directory path inside the archive (defaults to the root)",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		archive := command.StringArg("archive")
		if archive == "" {
			return fmt.Errorf("no archive provided")
		}
		start := command.StringArg("path")

		if command.Bool("recursive") && !command.Bool("long") {
			paths, err := ggpk.ListPaths(archive, ggpk.ListOptions{
				Prefix:      start,
				IncludeDirs: command.Bool("dirs"),
			})
			if err != nil {
				return fmt.Errorf("failed to list archive: %w", err)
			}
			for _, p := range paths {
				fmt.Println(ggpk.SanitizeDisplayPath(p))
			}
			return nil
		}

		e, err := ggpk.Open(archive)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer func() { _ = e.Close() }()

		if command.Bool("recursive") {
			dir, err := e.FindDirectory(start)
			if err != nil {
				return fmt.Errorf("failed to resolve %q: %w", start, err)
			}
			if dir == nil {
				return fmt.Errorf("directory not found: %s", ggpk.SanitizeDisplayPath(start))
			}
			return listSubtree(e, *dir)
		}

		nodes, err := e.NodesForPath(start)
		if err != nil {
			return fmt.Errorf("failed to list %q: %w", start, err)
		}
		for _, n := range nodes {
			if command.Bool("long") {
				fmt.Println(formatNodeLong(n, false))
			} else {
				fmt.Println(formatNodeShort(n))
			}
		}
		return nil
	},
}

// listSubtree prints a long-format line for every entry below dir.
func listSubtree(e *ggpk.Explorer, dir ggpk.Node) error {
	children, err := e.Children(dir)
	if err != nil {
		return fmt.Errorf("failed to list %q: %w", dir.Path, err)
	}
	for _, n := range children {
		fmt.Println(formatNodeLong(n, true))
		if n.Type == ggpk.NodeDirectory {
			if err := listSubtree(e, n); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatNodeShort(n ggpk.Node) string {
	name := ggpk.SanitizeDisplayPath(n.Name)
	if n.Type == ggpk.NodeDirectory {
		return name + "/"
	}
	return name
}

func formatNodeLong(n ggpk.Node, fullPath bool) string {
	name := n.Name
	if fullPath {
		name = n.Path
	}
	name = ggpk.SanitizeDisplayPath(name)

	if n.Type == ggpk.NodeDirectory {
		return fmt.Sprintf("%c %12s  %s/", nodeMarker(n.Type), "-", name)
	}
	if n.Compression != nil {
		return fmt.Sprintf("%c %12d  %s [%s]", nodeMarker(n.Type), n.Size, name, n.Compression.Codec)
	}
	return fmt.Sprintf("%c %12d  %s", nodeMarker(n.Type), n.Size, name)
}

func nodeMarker(t ggpk.NodeType) byte {
	switch t {
	case ggpk.NodeDirectory:
		return 'd'
	case ggpk.NodeBundleFile:
		return 'b'
	default:
		return 'f'
	}
}
