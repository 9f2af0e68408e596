// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wraeclast/ggpk"
	"go.uber.org/zap"
)

var extractCommand = &cli.Command{
	Name:  "extract",
	Usage: "Extract archive files to a directory",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Value:   ".",
			Usage:   "Output directory",
		},
		&cli.StringSliceFlag{
			Name:    "include",
			Aliases: []string{"i"},
			Usage:   "Include glob pattern (can be repeated)",
		},
		&cli.StringSliceFlag{
			Name:    "exclude",
			Aliases: []string{"e"},
			Usage:   "Exclude glob pattern (can be repeated)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Number of extraction workers (0 uses all CPUs)",
		},
		&cli.StringFlag{
			Name:  "file-mode",
			Usage: "Output file policy (auto, overwrite_smart, truncate, create_only)",
			Action: func(ctx context.Context, command *cli.Command, s string) error {
				switch ggpk.ExtractFileMode(s) {
				case ggpk.ExtractFileModeAuto, ggpk.ExtractFileModeOverwriteSmart,
					ggpk.ExtractFileModeTruncate, ggpk.ExtractFileModeCreateOnly:
					return nil
				default:
					return fmt.Errorf("invalid file mode %q", s)
				}
			},
		},
		&cli.BoolFlag{
			Name:  "raw-names",
			Usage: "Keep archive names as-is instead of sanitizing them",
		},
		&cli.StringFlag{
			Name:    "manifest",
			Aliases: []string{"m"},
			Usage:   "YAML manifest with extraction jobs (ignores other arguments)",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The GGPK archive or standalone index to extract from",
		},
		&cli.StringArg{
			Name:      "start",
			UsageText: "Subtree or file to extract (defaults to the whole archive)",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		if manifestPath := command.String("manifest"); manifestPath != "" {
			data, err := os.ReadFile(manifestPath)
			if err != nil {
				return fmt.Errorf("failed to read manifest: %w", err)
			}
			manifest, err := ParseExtractManifest(data)
			if err != nil {
				return fmt.Errorf("manifest %q: %w", manifestPath, err)
			}

			for i, job := range manifest.Jobs {
				if err := runExtractJob(ctx, logger, job); err != nil {
					return fmt.Errorf("job %d: %w", i+1, err)
				}
			}
			return nil
		}

		archive := command.StringArg("archive")
		if archive == "" {
			return fmt.Errorf("no archive provided")
		}

		job := ExtractJob{
			From:     archive,
			To:       command.String("out"),
			Start:    command.StringArg("start"),
			Include:  command.StringSlice("include"),
			Exclude:  command.StringSlice("exclude"),
			Workers:  int(command.Int("workers")),
			FileMode: command.String("file-mode"),
			RawNames: command.Bool("raw-names"),
		}
		return runExtractJob(ctx, logger, job)
	},
}

// runExtractJob opens the job archive and extracts the selected subtree.
func runExtractJob(ctx context.Context, logger *zap.Logger, job ExtractJob) error {
	e, err := ggpk.Open(job.From)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", job.From, err)
	}
	defer func() { _ = e.Close() }()

	opts := job.extractOptions()
	opts.OnFileDone = func(path string, written int64, outputPath string) {
		logger.Debug("extracted file",
			zap.String("path", path),
			zap.Int64("bytes", written),
			zap.String("output", outputPath))
	}

	started := time.Now()
	res, err := e.Extract(ctx, job.To, opts)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", job.From, err)
	}

	logger.Info("extraction finished",
		zap.String("archive", job.From),
		zap.Int("files", res.Files),
		zap.Int64("bytes", res.Bytes),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", time.Since(started)))

	fmt.Printf("extracted %d file(s), %d byte(s): %s -> %s\n", res.Files, res.Bytes, job.From, job.To)
	return nil
}
