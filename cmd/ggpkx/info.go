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

var infoCommand = &cli.Command{
	Name:  "info",
	Usage: "Print archive metadata",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The GGPK archive or standalone index to inspect",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		archive := command.StringArg("archive")
		if archive == "" {
			return fmt.Errorf("no archive provided")
		}

		info, err := ggpk.ReadArchiveInfo(archive)
		if err != nil {
			return fmt.Errorf("failed to read archive info: %w", err)
		}

		fmt.Printf("path:    %s\n", info.Path)
		if info.Version != 0 {
			fmt.Printf("version: %d\n", info.Version)
		}
		fmt.Printf("bundled: %t\n", info.Bundled)
		fmt.Printf("size:    %d\n", info.Size)
		fmt.Printf("files:   %d\n", info.FileCount)
		fmt.Printf("dirs:    %d\n", info.DirCount)
		if info.Bundled {
			fmt.Printf("bundles: %d\n", info.BundleCount)
		}
		return nil
	},
}
