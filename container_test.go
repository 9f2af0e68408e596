package ggpk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestContainer_ChildrenFollowEntryTableOrder(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/one.dat":  []byte("1"),
		"Art/two.dds":   []byte("22"),
		"readme.txt":    []byte("333"),
		"Data/more.dat": []byte("4444"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	root, err := c.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	children, err := c.Children(root)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("len(children)=%d, want 3", len(children))
	}

	for i, child := range children {
		if NameHash(child.Name) != root.Entries[i].NameHash {
			t.Errorf("child %d (%q) out of entry table order", i, child.Name)
		}
	}

	names := make([]string, 0, len(children))
	for _, child := range children {
		names = append(names, child.Name)
	}
	sort.Strings(names)
	want := []string{"Art", "Data", "readme.txt"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("root child names = %v, want %v", names, want)
		}
	}
}

func TestContainer_ChildByName(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/example.txt": []byte("hello"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	root, err := c.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	dir, err := c.ChildByName(root, "dATa")
	if err != nil {
		t.Fatalf("ChildByName: %v", err)
	}
	if dir == nil || !dir.IsDir() || dir.Name != "Data" {
		t.Fatalf("ChildByName(dATa) = %+v", dir)
	}

	miss, err := c.ChildByName(root, "nope")
	if err != nil {
		t.Fatalf("ChildByName miss: %v", err)
	}
	if miss != nil {
		t.Fatalf("ChildByName(nope) = %+v, want nil", miss)
	}
}

func TestContainer_ResolvePath(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/example.txt": []byte("hello"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	testCases := []struct {
		name     string
		path     string
		wantName string
		wantKind RecordKind
		wantMiss bool
	}{
		{name: "empty is root", path: "", wantName: "", wantKind: KindDir},
		{name: "slash is root", path: "/", wantName: "", wantKind: KindDir},
		{name: "file", path: "Data/example.txt", wantName: "example.txt", wantKind: KindFile},
		{name: "backslash separators", path: `Data\example.txt`, wantName: "example.txt", wantKind: KindFile},
		{name: "case folded", path: "DATA/EXAMPLE.TXT", wantName: "example.txt", wantKind: KindFile},
		{name: "missing child", path: "Data/absent.txt", wantMiss: true},
		{name: "file used as directory", path: "Data/example.txt/deeper", wantMiss: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := c.ResolvePath(tc.path)
			if err != nil {
				t.Fatalf("ResolvePath(%q): %v", tc.path, err)
			}
			if tc.wantMiss {
				if rec != nil {
					t.Fatalf("ResolvePath(%q) = %+v, want nil", tc.path, rec)
				}

				return
			}
			if rec == nil {
				t.Fatalf("ResolvePath(%q) missed", tc.path)
			}
			if rec.Name != tc.wantName || rec.Kind != tc.wantKind {
				t.Fatalf("ResolvePath(%q) = name %q kind %v", tc.path, rec.Name, rec.Kind)
			}
		})
	}
}

func TestContainer_VerifyFileMismatch(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/example.txt": []byte("hello"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	rec, err := c.ResolvePath("Data/example.txt")
	if err != nil || rec == nil {
		t.Fatalf("ResolvePath: rec=%v err=%v", rec, err)
	}
	dataOffset := rec.DataOffset
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	patchArchive(t, path, dataOffset, []byte("H"))

	c, err = OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer after patch: %v", err)
	}
	defer func() { _ = c.Close() }()

	rec, err = c.ResolvePath("Data/example.txt")
	if err != nil || rec == nil {
		t.Fatalf("ResolvePath after patch: rec=%v err=%v", rec, err)
	}

	data, err := c.ReadFileData(rec)
	if err != nil {
		t.Fatalf("ReadFileData: %v", err)
	}
	if !bytes.Equal(data, []byte("Hello")) {
		t.Fatalf("patched data = %q", data)
	}

	if err := c.VerifyFile(rec); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}
}

func TestContainer_FreeSpans(t *testing.T) {
	t.Parallel()

	raw := buildArchiveBytes(t, VersionUTF16, map[string][]byte{"a.txt": []byte("x")})
	firstOff := int64(len(raw))
	raw = appendFreeList(t, raw, 48, minFreeRecordLen)

	path := filepath.Join(t.TempDir(), "freelist.ggpk")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	spans, err := c.FreeSpans()
	if err != nil {
		t.Fatalf("FreeSpans: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("len(spans)=%d, want 2", len(spans))
	}
	if spans[0].Offset != firstOff || spans[0].Length != 48 {
		t.Errorf("spans[0] = %+v", spans[0])
	}
	if spans[0].Next != spans[1].Offset {
		t.Errorf("spans[0].Next=%d, want %d", spans[0].Next, spans[1].Offset)
	}
	if spans[1].Length != minFreeRecordLen || spans[1].Next != 0 {
		t.Errorf("spans[1] = %+v", spans[1])
	}
}

func TestContainer_FreeSpansCycle(t *testing.T) {
	t.Parallel()

	raw := buildArchiveBytes(t, VersionUTF16, map[string][]byte{"a.txt": []byte("x")})
	firstOff := int64(len(raw))
	raw = appendFreeList(t, raw, 32, 32)

	path := filepath.Join(t.TempDir(), "freecycle.ggpk")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	// Point the second span back at the first.
	var link [8]byte
	binary.LittleEndian.PutUint64(link[:], uint64(firstOff))
	patchArchive(t, path, firstOff+32+recordHeaderSize, link[:])

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, err = c.FreeSpans()
	if !errors.Is(err, ErrFreeListCorrupt) {
		t.Fatalf("expected ErrFreeListCorrupt, got %v", err)
	}
}

func TestContainer_Walk(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/example.txt": []byte("hello"),
		"Data/Sub/x.bin":   []byte("deep"),
		"notes.txt":        []byte("n"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	got := map[string]RecordKind{}
	err = c.Walk(func(p string, rec *Record) error {
		got[p] = rec.Kind
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := map[string]RecordKind{
		"Data":             KindDir,
		"Data/Sub":         KindDir,
		"Data/example.txt": KindFile,
		"Data/Sub/x.bin":   KindFile,
		"notes.txt":        KindFile,
	}
	if len(got) != len(want) {
		t.Fatalf("walked %d records, want %d: %v", len(got), len(want), got)
	}
	for p, kind := range want {
		if got[p] != kind {
			t.Errorf("walk[%q] = %v, want %v", p, got[p], kind)
		}
	}
}

func TestContainer_WalkAbortsOnError(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/example.txt": []byte("hello"),
		"notes.txt":        []byte("n"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	sentinel := errors.New("stop here")
	visits := 0
	err = c.Walk(func(string, *Record) error {
		visits++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Walk error = %v, want sentinel", err)
	}
	if visits != 1 {
		t.Fatalf("visits=%d, want 1", visits)
	}
}

func TestContainer_CloseIdempotent(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{"a.txt": []byte("x")})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := c.Root(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Root after Close = %v, want ErrClosed", err)
	}
}

func TestContainer_KindGuards(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/example.txt": []byte("hello"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	dir, err := c.ResolvePath("Data")
	if err != nil || dir == nil {
		t.Fatalf("ResolvePath(Data): rec=%v err=%v", dir, err)
	}
	file, err := c.ResolvePath("Data/example.txt")
	if err != nil || file == nil {
		t.Fatalf("ResolvePath(file): rec=%v err=%v", file, err)
	}

	if _, err := c.FileSection(dir); !errors.Is(err, ErrNotFile) {
		t.Errorf("FileSection(dir) = %v, want ErrNotFile", err)
	}
	if _, err := c.Children(file); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("Children(file) = %v, want ErrNotDirectory", err)
	}
	if _, err := c.Children(nil); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("Children(nil) = %v, want ErrNotDirectory", err)
	}
}

func TestContainer_ChildPointingAtFreeRecord(t *testing.T) {
	t.Parallel()

	raw := buildArchiveBytes(t, VersionUTF16, map[string][]byte{"a.txt": []byte("x")})

	// Rewrite the a.txt FILE record tag so the directory entry now
	// references dead space.
	copy(raw[rootRecordLength+4:rootRecordLength+8], tagFree)

	path := filepath.Join(t.TempDir(), "freechild.ggpk")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	root, err := c.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	if _, err := c.Children(root); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestNewContainerFromReaderAt_NilReader(t *testing.T) {
	t.Parallel()

	if _, err := NewContainerFromReaderAt(nil, 0); !errors.Is(err, ErrNilReader) {
		t.Fatalf("expected ErrNilReader, got %v", err)
	}
}

func TestNewContainerFromReaderAt_Bytes(t *testing.T) {
	t.Parallel()

	raw := buildArchiveBytes(t, VersionUTF16, map[string][]byte{"a.txt": []byte("x")})

	c, err := NewContainerFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewContainerFromReaderAt: %v", err)
	}
	defer func() { _ = c.Close() }()

	rec, err := c.ResolvePath("a.txt")
	if err != nil || rec == nil {
		t.Fatalf("ResolvePath: rec=%v err=%v", rec, err)
	}

	data, err := c.ReadFileData(rec)
	if err != nil {
		t.Fatalf("ReadFileData: %v", err)
	}
	if string(data) != "x" {
		t.Fatalf("data=%q, want x", data)
	}
}
