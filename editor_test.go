package ggpk

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
)

// readArchiveEntry opens an archive read-only and returns one file's bytes.
func readArchiveEntry(t *testing.T, archivePath, entryPath string) []byte {
	t.Helper()

	c, err := OpenContainer(archivePath)
	if err != nil {
		t.Fatalf("OpenContainer(%s): %v", archivePath, err)
	}
	defer func() { _ = c.Close() }()

	rec := resolveFile(t, c, entryPath)
	data, err := c.ReadFileData(rec)
	if err != nil {
		t.Fatalf("ReadFileData(%s): %v", entryPath, err)
	}

	return data
}

func TestEditor_CommitReplacesAndDropsBackup(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/a.bin": bytes.Repeat([]byte("a"), 10),
		"Data/b.bin": []byte("keep"),
	})

	editor, err := OpenEditor(path, EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	grown := bytes.Repeat([]byte("g"), 64)
	if err := editor.Replace("Data/a.bin", grown); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	// Backslashes and letter case normalize to the stored entry.
	if err := editor.Replace(`data\B.BIN`, []byte("newB")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if editor.Pending() != 2 {
		t.Fatalf("Pending()=%d, want 2", editor.Pending())
	}

	res, err := editor.Commit(t.Context())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if res.Replaced != 2 {
		t.Errorf("Replaced=%d, want 2", res.Replaced)
	}
	if res.Bytes != int64(len(grown)+4) {
		t.Errorf("Bytes=%d, want %d", res.Bytes, len(grown)+4)
	}
	if res.BackupPath != "" {
		t.Errorf("BackupPath=%q, want empty without kept backups", res.BackupPath)
	}
	if editor.Pending() != 0 {
		t.Errorf("Pending()=%d after Commit, want 0", editor.Pending())
	}

	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backup survived a zero-keep commit: %v", err)
	}

	if got := readArchiveEntry(t, path, "Data/a.bin"); !bytes.Equal(got, grown) {
		t.Errorf("Data/a.bin holds %d bytes", len(got))
	}
	if got := readArchiveEntry(t, path, "Data/b.bin"); string(got) != "newB" {
		t.Errorf("Data/b.bin = %q", got)
	}
}

func TestEditor_CommitKeepsBackup(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"a.txt": []byte("orig"),
	})
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	editor, err := OpenEditor(path, EditOptions{BackupKeep: 1})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if err := editor.Replace("a.txt", []byte("edit")); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	res, err := editor.Commit(t.Context())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.BackupPath != path+".bak" {
		t.Fatalf("BackupPath=%q, want %q", res.BackupPath, path+".bak")
	}

	backup, err := os.ReadFile(res.BackupPath)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.Equal(backup, original) {
		t.Error("backup differs from the pre-commit archive")
	}

	if got := readArchiveEntry(t, path, "a.txt"); string(got) != "edit" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestEditor_BackupRotation(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"a.txt": []byte("v0!!"),
	})

	editor, err := OpenEditor(path, EditOptions{BackupKeep: 3})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	for _, version := range []string{"v1!!", "v2!!", "v3!!", "v4!!"} {
		if err := editor.Replace("a.txt", []byte(version)); err != nil {
			t.Fatalf("Replace %s: %v", version, err)
		}
		if _, err := editor.Commit(t.Context()); err != nil {
			t.Fatalf("Commit %s: %v", version, err)
		}
	}

	// Three generations survive: the newest backup plus two rotated ones.
	wantStates := map[string]string{
		path:            "v4!!",
		path + ".bak":   "v3!!",
		path + ".bak.1": "v2!!",
		path + ".bak.2": "v1!!",
	}
	for archive, want := range wantStates {
		if got := readArchiveEntry(t, archive, "a.txt"); string(got) != want {
			t.Errorf("%s holds %q, want %q", archive, got, want)
		}
	}
	if _, err := os.Stat(path + ".bak.3"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("rotation kept more than three generations: %v", err)
	}
}

func TestEditor_RollbackOnFailedReplace(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"a.txt": []byte("orig"),
	})
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	editor, err := OpenEditor(path, EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if err := editor.Replace("a.txt", []byte("applied before failure")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := editor.Replace("missing.bin", []byte("x")); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if _, err := editor.Commit(t.Context()); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("Commit = %v, want ErrEntryNotFound", err)
	}

	restored, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored, original) {
		t.Error("archive differs from the original after rollback")
	}
	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backup left behind after rollback: %v", err)
	}

	// Staged operations survive a failed commit for a retry.
	if editor.Pending() != 2 {
		t.Errorf("Pending()=%d after failed Commit, want 2", editor.Pending())
	}
}

func TestEditor_EmptyCommit(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{"a.txt": []byte("x")})

	editor, err := OpenEditor(path, EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	res, err := editor.Commit(t.Context())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Replaced != 0 || res.Bytes != 0 || res.BackupPath != "" {
		t.Fatalf("result = %+v, want zero", res)
	}
	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("empty commit created a backup: %v", err)
	}
}

func TestEditor_ContextCanceled(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{"a.txt": []byte("orig")})
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	editor, err := OpenEditor(path, EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if err := editor.Replace("a.txt", []byte("edit")); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := editor.Commit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Commit = %v, want context.Canceled", err)
	}

	restored, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored, original) {
		t.Error("archive changed despite the canceled commit")
	}
}

func TestEditor_PathValidation(t *testing.T) {
	t.Parallel()

	if _, err := OpenEditor("   ", EditOptions{}); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("OpenEditor = %v, want ErrInvalidEntryPath", err)
	}

	editor, err := OpenEditor("archive.ggpk", EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if err := editor.Replace("", []byte("x")); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("Replace = %v, want ErrInvalidEntryPath", err)
	}
	if err := editor.Replace("///", []byte("x")); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("Replace(///) = %v, want ErrInvalidEntryPath", err)
	}
}

func TestEditor_NilGuards(t *testing.T) {
	t.Parallel()

	var editor *Editor

	if err := editor.Replace("a", []byte("x")); !errors.Is(err, ErrNilReader) {
		t.Fatalf("Replace = %v, want ErrNilReader", err)
	}
	if editor.Pending() != 0 {
		t.Fatalf("Pending()=%d, want 0", editor.Pending())
	}
	if _, err := editor.Commit(context.Background()); !errors.Is(err, ErrNilReader) {
		t.Fatalf("Commit = %v, want ErrNilReader", err)
	}
}
