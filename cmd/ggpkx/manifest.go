// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/wraeclast/ggpk"
)

// ExtractManifest is a YAML batch description of extraction jobs.
type ExtractManifest struct {
	Jobs []ExtractJob `yaml:"jobs" validate:"required,min=1,dive"`
}

// ExtractJob describes one archive-to-directory extraction.
type ExtractJob struct {
	// From is the archive or standalone index path.
	From string `yaml:"from" validate:"required"`
	// To is the output directory.
	To string `yaml:"to" validate:"required"`
	// Start limits extraction to one subtree; empty extracts everything.
	Start string `yaml:"start,omitempty"`
	// Include holds ordered include glob patterns.
	Include []string `yaml:"include,omitempty"`
	// Exclude holds ordered exclude glob patterns.
	Exclude []string `yaml:"exclude,omitempty"`
	// FileMode selects the output file policy; empty means auto.
	FileMode string `yaml:"file_mode,omitempty" validate:"omitempty,oneof=auto overwrite_smart truncate create_only"`
	// Workers is the extraction worker count; zero uses all CPUs.
	Workers int `yaml:"workers,omitempty" validate:"min=0"`
	// RawNames disables output path sanitization.
	RawNames bool `yaml:"raw_names,omitempty"`
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseExtractManifest parses and validates a YAML extraction manifest.
func ParseExtractManifest(data []byte) (ExtractManifest, error) {
	var m ExtractManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return ExtractManifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	if err := defaultValidator.Struct(m); err != nil {
		return ExtractManifest{}, formatValidationError(err)
	}

	return m, nil
}

// extractOptions maps the job fields onto library extract options.
func (j ExtractJob) extractOptions() ggpk.ExtractOptions {
	return ggpk.ExtractOptions{
		Start:      j.Start,
		Include:    j.Include,
		Exclude:    j.Exclude,
		FileMode:   ggpk.ExtractFileMode(j.FileMode),
		MaxWorkers: j.Workers,
		RawNames:   j.RawNames,
	}
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("manifest has %d validation error(s):", len(validationErrs)))
		for _, fe := range validationErrs {
			sb.WriteString(fmt.Sprintf("\n  %s: failed '%s' validation", fe.Namespace(), fe.Tag()))
			if fe.Param() != "" {
				sb.WriteString(fmt.Sprintf(" (param: %s)", fe.Param()))
			}
		}
		return errors.New(sb.String())
	}
	return err
}
