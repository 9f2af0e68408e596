// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// selectMatcher holds compiled include/exclude rules for extraction walks.
// A nil matcher selects everything.
type selectMatcher struct {
	matcher *pathrules.Matcher
}

// newSelectMatcher compiles include and exclude patterns. Exclude rules
// follow include rules, so a path matching both is excluded. Without
// include patterns every path is selected unless excluded.
func newSelectMatcher(include, exclude []string) (*selectMatcher, error) {
	rules := make([]pathrules.Rule, 0, len(include)+len(exclude))
	for _, pattern := range include {
		pattern = normalizePathForMatching(pattern)
		if pattern == "" {
			continue
		}

		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}

	included := len(rules)
	for _, pattern := range exclude {
		pattern = normalizePathForMatching(pattern)
		if pattern == "" {
			continue
		}

		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	if len(rules) == 0 {
		return nil, nil
	}

	defaultAction := pathrules.ActionInclude
	if included > 0 {
		defaultAction = pathrules.ActionExclude
	}

	matcher, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   defaultAction,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidSelectPattern, err)
	}

	return &selectMatcher{matcher: matcher}, nil
}

// Match reports whether an archive file path is selected.
func (m *selectMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}
