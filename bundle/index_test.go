package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInputs() []BuildInput {
	return []BuildInput{
		{Path: "Data/example.txt", Data: incompressible(120)},
		{Path: "Data/Maps/zone.dat", Data: incompressible(5000)},
		{Path: "Art/logo.dds", Data: compressible(3000)},
		{Path: "readme.txt", Data: []byte("hello bundles\n")},
	}
}

func buildDist(t *testing.T, opts *BuildOptions) string {
	t.Helper()

	res, err := BuildIndex(testInputs(), opts)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, res.WriteDir(dir))

	return dir
}

func TestOpenIndexFile(t *testing.T) {
	dir := buildDist(t, nil)

	x, err := OpenIndexFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	assert.Equal(t, 4, x.FileCount())
	assert.Equal(t, 1, x.BundleCount())
	assert.Equal(t, "_", x.Bundles()[0].Name)
	assert.Equal(t, CodecZstd, x.Bundles()[0].Codec)

	for _, in := range testInputs() {
		e := x.Lookup(in.Path)
		require.NotNil(t, e, "lookup %s", in.Path)
		assert.Equal(t, in.Path, e.Path)
		assert.Equal(t, uint32(len(in.Data)), e.Size)

		data, err := x.ReadFile(e)
		require.NoError(t, err)
		assert.Equal(t, in.Data, data)
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	dir := buildDist(t, nil)
	x, err := OpenIndexFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	for _, path := range []string{
		"data/example.txt",
		"DATA/EXAMPLE.TXT",
		"/Data/example.txt",
		`Data\example.txt`,
	} {
		e := x.Lookup(path)
		require.NotNil(t, e, "lookup %s", path)
		assert.Equal(t, "Data/example.txt", e.Path)
	}

	assert.Nil(t, x.Lookup("Data/absent.txt"))
	assert.Nil(t, x.Lookup(""))
}

func TestLookupRejectsHashCollision(t *testing.T) {
	entry := &FileEntry{Path: "Art/logo.dds", Size: 4}

	// Two hash keys pointing at one entry stand in for an FNV-1a collision
	// between the stored path and an unrelated query path.
	x := &Index{byHash: map[uint64]*FileEntry{
		PathHash("Art/logo.dds"):   entry,
		PathHash("Data/other.bin"): entry,
	}}

	assert.Nil(t, x.Lookup("Data/other.bin"))
	assert.Nil(t, x.Lookup("data/OTHER.bin"))

	got := x.Lookup("ART/logo.DDS")
	require.NotNil(t, got)
	assert.Same(t, entry, got)
}

func TestDirTree(t *testing.T) {
	dir := buildDist(t, nil)
	x, err := OpenIndexFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	root := x.Root()
	require.NotNil(t, root)
	assert.Equal(t, "", root.Name())
	assert.Equal(t, "", root.Path())

	var dirNames []string
	for _, d := range root.Dirs() {
		dirNames = append(dirNames, d.Name())
	}
	assert.Equal(t, []string{"Art", "Data"}, dirNames)

	require.Len(t, root.Files(), 1)
	assert.Equal(t, "readme.txt", root.Files()[0].Path)

	assert.Same(t, root, x.Dir(""))
	assert.Same(t, root, x.Dir("/"))

	maps := x.Dir("data/MAPS")
	require.NotNil(t, maps)
	assert.Equal(t, "Maps", maps.Name())
	assert.Equal(t, "Data/Maps", maps.Path())
	require.Len(t, maps.Files(), 1)

	data := x.Dir("Data")
	require.NotNil(t, data)
	assert.NotNil(t, data.File("EXAMPLE.txt"))
	assert.Same(t, maps, data.Subdir("maps"))
	assert.Nil(t, data.Subdir("absent"))

	assert.Nil(t, x.Dir("Data/absent"))
	assert.Nil(t, x.Dir("Data/example.txt/deeper"))
}

func TestReadFileCaching(t *testing.T) {
	dir := buildDist(t, nil)
	indexPath := filepath.Join(dir, IndexFileName)

	x, err := OpenIndexFile(indexPath)
	require.NoError(t, err)

	want := testInputs()[0]
	e := x.Lookup(want.Path)
	require.NotNil(t, e)

	first, err := x.ReadFile(e)
	require.NoError(t, err)
	require.Equal(t, want.Data, first)

	// The whole bundle payload is cached after the first read, so reads
	// survive the backing file going away.
	require.NoError(t, os.Remove(filepath.Join(dir, "_"+BundleExt)))

	second, err := x.ReadFile(e)
	require.NoError(t, err)
	assert.Equal(t, want.Data, second)

	other := x.Lookup("readme.txt")
	require.NotNil(t, other)
	data, err := x.ReadFile(other)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello bundles\n"), data)
}

func TestReadFileNoCache(t *testing.T) {
	dir := buildDist(t, nil)

	raw, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	x, err := OpenIndexWithOptions(bytes.NewReader(raw), int64(len(raw)),
		NewDirSource(dir), &IndexOptions{CacheBundles: 0})
	require.NoError(t, err)

	e := x.Lookup("Data/example.txt")
	require.NotNil(t, e)

	data, err := x.ReadFile(e)
	require.NoError(t, err)
	assert.Equal(t, testInputs()[0].Data, data)

	require.NoError(t, os.Remove(filepath.Join(dir, "_"+BundleExt)))

	_, err = x.ReadFile(e)
	require.ErrorIs(t, err, ErrBundleNotFound)
}

func TestBuildDigests(t *testing.T) {
	res, err := BuildIndex(testInputs(), &BuildOptions{Digests: true})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, res.WriteDir(dir))

	x, err := OpenIndexFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	for _, in := range testInputs() {
		e := x.Lookup(in.Path)
		require.NotNil(t, e)
		assert.Equal(t, Digest(in.Data), e.Digest, "digest of %s", in.Path)
	}
}

func TestBuildWithoutDigests(t *testing.T) {
	dir := buildDist(t, nil)
	x, err := OpenIndexFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	for _, e := range x.Entries() {
		assert.Nil(t, e.Digest)
	}
}

func TestBuildMultiBundle(t *testing.T) {
	dir := buildDist(t, &BuildOptions{MaxBundleSize: 4096})

	x, err := OpenIndexFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	assert.Equal(t, 3, x.BundleCount())
	for _, name := range []string{"_", "_2", "_3"} {
		_, err := os.Stat(filepath.Join(dir, name+BundleExt))
		assert.NoError(t, err, "bundle %s on disk", name)
	}

	for _, in := range testInputs() {
		e := x.Lookup(in.Path)
		require.NotNil(t, e)

		data, err := x.ReadFile(e)
		require.NoError(t, err)
		assert.Equal(t, in.Data, data, "content of %s", in.Path)
	}
}

func TestBuildRejects(t *testing.T) {
	_, err := BuildIndex(nil, nil)
	require.ErrorIs(t, err, ErrEmptyInputs)

	_, err = BuildIndex([]BuildInput{
		{Path: "a.txt", Data: []byte("x")},
		{Path: "A.TXT", Data: []byte("y")},
	}, nil)
	require.ErrorIs(t, err, ErrDuplicatePath)

	for _, path := range []string{"", "/abs.txt", "../escape.txt", "a//b.txt", `a\b.txt`} {
		_, err := BuildIndex([]BuildInput{{Path: path, Data: []byte("x")}}, nil)
		require.ErrorIs(t, err, ErrInvalidPath, "path %q", path)
	}
}

func TestParseIndexEmpty(t *testing.T) {
	x, err := ParseIndex(serializeIndex(nil, nil), nil)
	require.NoError(t, err)

	assert.Zero(t, x.FileCount())
	assert.Zero(t, x.BundleCount())
	assert.Empty(t, x.Root().Dirs())
	assert.Empty(t, x.Root().Files())
}

func TestParseIndexTruncated(t *testing.T) {
	bundles := []BundleInfo{{Name: "_", UncompressedSize: 10, Codec: CodecNone}}
	records := []FileEntry{{Path: "a.txt", Size: 10}}
	payload := serializeIndex(bundles, records)

	for i := range payload {
		_, err := ParseIndex(payload[:i], nil)
		require.Error(t, err, "prefix of %d bytes", i)
	}
}

func TestParseIndexCorrupt(t *testing.T) {
	bundles := []BundleInfo{{Name: "_", UncompressedSize: 10, Codec: CodecNone}}

	t.Run("path hash mismatch", func(t *testing.T) {
		payload := serializeIndex(bundles, []FileEntry{{Path: "a.txt", Size: 10}})
		// Bundle table is 21 bytes, file count 4; the first record's path
		// hash starts at offset 25.
		payload[25] ^= 0xff

		_, err := ParseIndex(payload, nil)
		require.ErrorIs(t, err, ErrIndexCorrupt)
	})

	t.Run("span beyond bundle", func(t *testing.T) {
		payload := serializeIndex(bundles, []FileEntry{{Path: "a.txt", Size: 11}})
		_, err := ParseIndex(payload, nil)
		require.ErrorIs(t, err, ErrIndexCorrupt)
	})

	t.Run("bundle index out of range", func(t *testing.T) {
		payload := serializeIndex(bundles, []FileEntry{{Path: "a.txt", Size: 10, BundleIndex: 1}})
		_, err := ParseIndex(payload, nil)
		require.ErrorIs(t, err, ErrIndexCorrupt)
	})
}

func TestReadFileNilSource(t *testing.T) {
	bundles := []BundleInfo{{Name: "_", UncompressedSize: 10, Codec: CodecNone}}
	records := []FileEntry{{Path: "a.txt", Size: 10}}

	x, err := ParseIndex(serializeIndex(bundles, records), nil)
	require.NoError(t, err)

	e := x.Lookup("a.txt")
	require.NotNil(t, e)

	_, err = x.ReadFile(e)
	require.ErrorIs(t, err, ErrNilSource)
}

func TestPathHashFoldsCase(t *testing.T) {
	assert.Equal(t, PathHash("data/example.txt"), PathHash("Data/EXAMPLE.txt"))
	assert.NotEqual(t, PathHash("data/example.txt"), PathHash("data/example.bin"))
}
