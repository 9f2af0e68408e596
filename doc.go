// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

/*
Package ggpk provides browse, read, extract, verify, and edit operations for
GGPK (Grinding Gear Pack) archives. One Explorer handle fronts both archive
generations: bundled archives are browsed through the embedded bundle index,
and legacy archives fall back to the plain record tree automatically.

Open selection (summary):
  - Open first attempts the bundled interpretation of the archive;
  - a missing "Bundles2" directory or a missing "_.index.bin" inside it
    switches the handle to the plain record tree;
  - any other index failure aborts Open and reports an OpenError with a
    category and a suggestion;
  - a path whose base name is "_.index.bin" opens the index standalone.

# Browsing

Open an archive and walk directory listings:

	e, err := ggpk.Open("Content.ggpk")
	if err != nil {
	    return err
	}
	defer e.Close()
	nodes, err := e.NodesForPath("Data")
	if err != nil {
	    return err
	}
	for _, n := range nodes {
	    data, _ := e.ReadFile(n)
	    // use data
	}

Lookups are case-insensitive and miss with nil, nil:

	n, err := e.FindFile("data/passiveskills.dat64")
	if err != nil {
	    return err
	}
	if n == nil {
	    // no such file
	}

For metadata-only scans, use fast helpers without keeping a handle:

	info, err := ggpk.ReadArchiveInfo("Content.ggpk")
	if err != nil {
	    return err
	}
	paths, err := ggpk.ListPaths("Content.ggpk", ggpk.ListOptions{Prefix: "Data"})
	if err != nil {
	    return err
	}
	_, _ = info, paths

# Extracting

Extract a subtree to a directory (parallel workers), with
github.com/woozymasta/pathrules patterns for selection:

	res, err := e.Extract(ctx, "out/", ggpk.ExtractOptions{
	    Start:      "Data",
	    Include:    []string{"*.dat64"},
	    Exclude:    []string{"Japanese/**"},
	    MaxWorkers: 4,
	})
	if err != nil {
	    return err
	}
	_ = res.Files

Path sanitization is enabled by default during extraction.
Disable it explicitly when raw names are required:

	res, err = e.Extract(ctx, "out/", ggpk.ExtractOptions{RawNames: true})

# Verifying

Recompute record digests across the whole container:

	c, err := ggpk.OpenContainer("Content.ggpk")
	if err != nil {
	    return err
	}
	defer c.Close()
	report, err := c.Verify(ctx, ggpk.VerifyOptions{MaxWorkers: 4})
	if err != nil {
	    return err
	}
	if !report.Ok() {
	    // report.Mismatches lists offending paths
	}

# Editing

Replace loose file content in one transaction with backup and rollback:

	editor, err := ggpk.OpenEditor("Content.ggpk", ggpk.EditOptions{
	    BackupKeep: 1,
	})
	if err != nil {
	    return err
	}
	if err := editor.Replace("Data/notes.txt", []byte("patched")); err != nil {
	    return err
	}
	if _, err := editor.Commit(ctx); err != nil {
	    return err
	}

Replacement keeps the container consistent: same-size content is written in
place, shrinking splits the tail into the free list, and growth relocates the
record to a fitting free span or the archive end while the parent directory
entry and digest are rewritten to match.
*/
package ggpk
