// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"strings"
	"testing"
)

func TestSanitizePathSegment(t *testing.T) {
	t.Parallel()

	longName := strings.Repeat("a", 400)
	gotLong, err := sanitizePathSegment(longName)
	if err != nil {
		t.Fatalf("sanitizePathSegment(long): %v", err)
	}
	if len(gotLong) > maxSanitizedSegmentLen {
		t.Fatalf("len(long)=%d, want <= %d", len(gotLong), maxSanitizedSegmentLen)
	}
	if gotLong == longName {
		t.Fatal("long segment was not shortened")
	}

	testCases := []struct {
		in   string
		want string
	}{
		{in: "CON.txt", want: "_CON.txt"},
		{in: "  COM8.c  ", want: "_COM8.c"},
		{in: ".{22877a6d-37a1-461a-91b0-dbda5aaebc99}", want: "_{22877a6d-37a1-461a-91b0-dbda5aaebc99}"},
		{in: "abc.{22877a6d-37a1-461a-91b0-dbda5aaebc99}", want: "abc_{22877a6d-37a1-461a-91b0-dbda5aaebc99}"},
		{in: "abc.{not-a-guid}", want: "abc.{not-a-guid}"},
		{in: "a:b?.txt", want: "a_b_.txt"},
		{in: "name. ", want: "name"},
		{in: "AUX:", want: "_AUX_"},
		{in: "CLOCK$.cfg", want: "_CLOCK$.cfg"},
		{in: "KEYBD$.txt", want: "_KEYBD$.txt"},
		{in: "SCREEN$", want: "_SCREEN$"},
		{in: "82164A:", want: "_82164A_"},
		{in: "a\x1b[31m.txt", want: "a_[31m.txt"},
		{in: "name0m.txt", want: "name_0m.txt"},
		{in: "a\x7fb.txt", want: "a_b.txt"},
		{in: "a‏b.txt", want: "a_b.txt"},
	}

	for _, tc := range testCases {
		got, err := sanitizePathSegment(tc.in)
		if err != nil {
			t.Fatalf("sanitizePathSegment(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("sanitizePathSegment(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsReservedDeviceName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		want bool
	}{
		{name: "con", want: true},
		{name: "con.txt", want: true},
		{name: "AUX:", want: true},
		{name: "CLOCK$", want: true},
		{name: "lpt9.bin", want: true},
		{name: "normal.txt", want: false},
		{name: "_con.txt", want: false},
		{name: "console.txt", want: false},
	}

	for _, tc := range testCases {
		got := isReservedDeviceName(tc.name)
		if got != tc.want {
			t.Fatalf("isReservedDeviceName(%q)=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSanitizeArchivePathsCollision(t *testing.T) {
	t.Parallel()

	got, err := sanitizeArchivePaths([]string{"a:b.txt", "a?b.txt"})
	if err != nil {
		t.Fatalf("sanitizeArchivePaths: %v", err)
	}
	if got[0] != "a_b.txt" {
		t.Fatalf("got[0]=%q, want a_b.txt", got[0])
	}
	if got[1] != "a_b~2.txt" {
		t.Fatalf("got[1]=%q, want a_b~2.txt", got[1])
	}
}

func TestSanitizeArchivePaths_MangledPaths(t *testing.T) {
	t.Parallel()

	got, err := sanitizeArchivePaths([]string{
		`\\\\\:\`,
		`..\evil.txt`,
		`Art\2DArt\abc.{22877a6d-37a1-461a-91b0-dbda5aaebc99}\COM8.c`,
	})
	if err != nil {
		t.Fatalf("sanitizeArchivePaths: %v", err)
	}

	if got[0] != "_" {
		t.Fatalf("got[0]=%q, want _", got[0])
	}

	if got[1] != "_/evil.txt" {
		t.Fatalf("got[1]=%q, want _/evil.txt", got[1])
	}

	if got[2] != "Art/2DArt/abc_{22877a6d-37a1-461a-91b0-dbda5aaebc99}/_COM8.c" {
		t.Fatalf("got[2]=%q, want Art/2DArt/abc_{22877a6d-37a1-461a-91b0-dbda5aaebc99}/_COM8.c", got[2])
	}
}

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	got, err := SanitizePath(`Art\a:b.txt`)
	if err != nil {
		t.Fatalf("SanitizePath: %v", err)
	}
	if got != "Art/a_b.txt" {
		t.Fatalf("SanitizePath=%q, want Art/a_b.txt", got)
	}

	got, err = SanitizePath("")
	if err != nil {
		t.Fatalf("SanitizePath(empty): %v", err)
	}
	if got != "" {
		t.Fatalf("SanitizePath(empty)=%q, want empty", got)
	}
}

func TestSanitizeDisplayPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{in: "Data/a.txt", want: "Data/a.txt"},
		{in: "a\x1b[31m.txt", want: "a_[31m.txt"},
		{in: "Art/‏name.dds", want: "Art/_name.dds"},
		{in: "..", want: "_"},
		{in: "", want: "_"},
		// Display sanitization keeps filesystem-hostile runes readable.
		{in: "a:b?.txt", want: "a:b?.txt"},
	}

	for _, tc := range testCases {
		got := SanitizeDisplayPath(tc.in)
		if got != tc.want {
			t.Fatalf("SanitizeDisplayPath(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
