// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/wraeclast/ggpk"
)

var catCommand = &cli.Command{
	Name:  "cat",
	Usage: "Write one archive file to stdout",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The GGPK archive or standalone index to read",
		},
		&cli.StringArg{
			Name:      "path",
			UsageText: "Archive path of the file to print",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		archive := command.StringArg("archive")
		if archive == "" {
			return fmt.Errorf("no archive provided")
		}
		entry := command.StringArg("path")
		if entry == "" {
			return fmt.Errorf("no file path provided")
		}

		e, err := ggpk.Open(archive)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer func() { _ = e.Close() }()

		node, err := e.FindFile(entry)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", entry, err)
		}
		if node == nil {
			return fmt.Errorf("file not found: %s", ggpk.SanitizeDisplayPath(entry))
		}

		data, err := e.ReadFile(*node)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", entry, err)
		}

		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	},
}
