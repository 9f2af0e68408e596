package ggpk

import (
	"bytes"
	"testing"

	"github.com/wraeclast/ggpk/bundle"
)

func TestNodeTypeString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   NodeType
		want string
	}{
		{NodeDirectory, "dir"},
		{NodeFile, "file"},
		{NodeBundleFile, "bundle-file"},
		{NodeType(0), "unknown"},
		{NodeType(9), "unknown"},
	}

	for _, tc := range testCases {
		if got := tc.in.String(); got != tc.want {
			t.Fatalf("NodeType(%d).String()=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNodeFromRecord(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, VersionUTF16, map[string][]byte{
		"Data/example.txt": []byte("hello"),
	})

	c, err := OpenContainer(path)
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	defer func() { _ = c.Close() }()

	fileRec := resolveFile(t, c, "Data/example.txt")
	fn := nodeFromRecord(fileRec, "Data/example.txt")
	if fn.Type != NodeFile || fn.Name != "example.txt" || fn.Path != "Data/example.txt" {
		t.Fatalf("file node = %+v", fn)
	}
	if fn.Size != uint64(len("hello")) {
		t.Errorf("Size=%d, want %d", fn.Size, len("hello"))
	}
	if !bytes.Equal(fn.Digest, fileRec.Digest[:]) {
		t.Error("file node digest differs from the record digest")
	}
	if fn.HasChildren || fn.ModTime != nil || fn.Compression != nil {
		t.Errorf("file node carries directory/bundle fields: %+v", fn)
	}

	dirRec, err := c.ResolvePath("Data")
	if err != nil || dirRec == nil {
		t.Fatalf("ResolvePath(Data): rec=%v err=%v", dirRec, err)
	}
	dn := nodeFromRecord(dirRec, "Data")
	if dn.Type != NodeDirectory || !dn.HasChildren {
		t.Fatalf("dir node = %+v", dn)
	}
	if dn.Size != 0 {
		t.Errorf("dir Size=%d, want 0", dn.Size)
	}
	if dn.ModTime != nil {
		t.Errorf("dir ModTime=%v, want nil", dn.ModTime)
	}
}

func TestNodeFromIndexFile(t *testing.T) {
	t.Parallel()

	entry := &bundle.FileEntry{
		Path:   "Data/example.txt",
		Size:   120,
		Digest: []byte{1, 2, 3},
	}

	compressed := nodeFromIndexFile(entry, bundle.BundleInfo{Name: "_", Codec: bundle.CodecZstd})
	if compressed.Type != NodeBundleFile || compressed.Name != "example.txt" {
		t.Fatalf("node = %+v", compressed)
	}
	if compressed.Size != 120 {
		t.Errorf("Size=%d, want 120", compressed.Size)
	}
	if compressed.Compression == nil {
		t.Fatal("Compression is nil for a compressed bundle")
	}
	if compressed.Compression.Codec != bundle.CodecZstd {
		t.Errorf("Codec=%v, want zstd", compressed.Compression.Codec)
	}
	if compressed.Compression.CompressedSize != 120 || compressed.Compression.UncompressedSize != 120 {
		t.Errorf("compression sizes = %+v, want the entry size in both", compressed.Compression)
	}
	if !bytes.Equal(compressed.Digest, entry.Digest) {
		t.Error("digest was not carried over")
	}

	plain := nodeFromIndexFile(&bundle.FileEntry{Path: "top.txt", Size: 3}, bundle.BundleInfo{Codec: bundle.CodecNone})
	if plain.Compression != nil {
		t.Errorf("Compression = %+v for an uncompressed bundle, want nil", plain.Compression)
	}
	if plain.Digest != nil {
		t.Errorf("Digest = %v without a recorded hash, want nil", plain.Digest)
	}
}

func TestRootNode(t *testing.T) {
	t.Parallel()

	n := rootNode(true)
	if !n.IsDir() || !n.HasChildren || n.Name != "" || n.Path != "" {
		t.Fatalf("root node = %+v", n)
	}
	if empty := rootNode(false); empty.HasChildren {
		t.Fatalf("empty root node = %+v", empty)
	}
}

func TestBaseNameOf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{"Data/Sub/c.txt", "c.txt"},
		{"top.txt", "top.txt"},
		{"", ""},
	}

	for _, tc := range testCases {
		if got := baseNameOf(tc.in); got != tc.want {
			t.Fatalf("baseNameOf(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSortNodes(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{Type: NodeFile, Name: "x.txt"},
		{Type: NodeDirectory, Name: "beta"},
		{Type: NodeFile, Name: "a.txt"},
		{Type: NodeBundleFile, Name: "B.txt"},
		{Type: NodeDirectory, Name: "Alpha"},
		{Type: NodeFile, Name: "A.txt"},
	}

	sortNodes(nodes)

	want := []string{"Alpha", "beta", "A.txt", "a.txt", "B.txt", "x.txt"}
	for i, name := range want {
		if nodes[i].Name != name {
			t.Fatalf("nodes[%d]=%q, want %q (all: %v)", i, nodes[i].Name, name, nodeNames(nodes))
		}
	}
	if !nodes[0].IsDir() || !nodes[1].IsDir() || nodes[2].IsDir() {
		t.Fatal("directories must sort before files")
	}
}
