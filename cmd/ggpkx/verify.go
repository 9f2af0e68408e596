// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wraeclast/ggpk"
	"go.uber.org/zap"
)

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "Verify record digests of a GGPK archive",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Number of digest workers (0 uses all CPUs)",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The GGPK archive to verify",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		archive := command.StringArg("archive")
		if archive == "" {
			return fmt.Errorf("no archive provided")
		}

		c, err := ggpk.OpenContainer(archive)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer func() { _ = c.Close() }()

		started := time.Now()
		report, err := c.Verify(ctx, ggpk.VerifyOptions{
			MaxWorkers: int(command.Int("workers")),
			OnRecord: func(path string, err error) {
				if err != nil {
					logger.Warn("digest mismatch",
						zap.String("path", ggpk.SanitizeDisplayPath(path)),
						zap.Error(err))
				}
			},
		})
		if err != nil {
			return fmt.Errorf("failed to verify archive: %w", err)
		}

		logger.Info("verification finished",
			zap.Int("files", report.Files),
			zap.Int("dirs", report.Dirs),
			zap.Int("free_spans", report.FreeSpans),
			zap.Duration("elapsed", time.Since(started)))

		fmt.Printf("checked %d file(s), %d dir(s), %d free span(s)\n",
			report.Files, report.Dirs, report.FreeSpans)

		if !report.Ok() {
			for _, p := range report.Mismatches {
				fmt.Printf("mismatch: %s\n", ggpk.SanitizeDisplayPath(p))
			}
			return fmt.Errorf("%d record(s) failed verification", len(report.Mismatches))
		}

		fmt.Println("all digests match")
		return nil
	},
}
