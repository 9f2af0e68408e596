// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

package ggpk

import (
	"sort"
	"strings"
	"time"

	"github.com/wraeclast/ggpk/bundle"
)

// NodeType discriminates tree node kinds.
type NodeType uint8

// Node kinds.
const (
	// NodeDirectory is a directory from either backing.
	NodeDirectory NodeType = iota + 1
	// NodeFile is a file stored directly in the container record tree.
	NodeFile
	// NodeBundleFile is a file whose bytes live inside a bundle.
	NodeBundleFile
)

// String returns a short lowercase kind name.
func (t NodeType) String() string {
	switch t {
	case NodeDirectory:
		return "dir"
	case NodeFile:
		return "file"
	case NodeBundleFile:
		return "bundle-file"
	default:
		return "unknown"
	}
}

// Node is an immutable snapshot of one archive tree entry. Nodes hold no
// references into the backing that produced them.
type Node struct {
	// ModTime is the entry modification time when the backing records one.
	ModTime *time.Time `json:"mod_time,omitempty" yaml:"mod_time,omitempty"`
	// Compression describes the containing bundle codec for compressed
	// bundle files; nil otherwise.
	Compression *CompressionInfo `json:"compression,omitempty" yaml:"compression,omitempty"`
	// Name is the entry base name; empty for the archive root.
	Name string `json:"name" yaml:"name"`
	// Path is the slash-separated archive path; empty for the archive root.
	Path string `json:"path" yaml:"path"`
	// Digest is the stored content hash: SHA-256 for container records,
	// BLAKE3 for index records carrying one; nil when absent.
	Digest []byte `json:"digest,omitempty" yaml:"digest,omitempty"`
	// Size is the file size in bytes; zero for directories.
	Size uint64 `json:"size" yaml:"size"`
	// Type discriminates the node kind.
	Type NodeType `json:"type" yaml:"type"`
	// HasChildren reports whether a directory has at least one child;
	// always false for files.
	HasChildren bool `json:"has_children" yaml:"has_children"`
}

// CompressionInfo describes how the bundle holding a file is compressed.
// A per-file compressed size is not recoverable from block-compressed
// bundles, so the stored span size fills both size fields.
type CompressionInfo struct {
	// Codec is the bundle block codec.
	Codec bundle.Codec `json:"codec" yaml:"codec"`
	// CompressedSize is the stored span size in bytes.
	CompressedSize uint64 `json:"compressed_size" yaml:"compressed_size"`
	// UncompressedSize equals CompressedSize unless independently known.
	UncompressedSize uint64 `json:"uncompressed_size" yaml:"uncompressed_size"`
}

// IsDir reports whether the node is a directory.
func (n Node) IsDir() bool {
	return n.Type == NodeDirectory
}

// IsFile reports whether the node is a file of either backing.
func (n Node) IsFile() bool {
	return n.Type == NodeFile || n.Type == NodeBundleFile
}

// nodeFromRecord converts a container record into a node snapshot.
func nodeFromRecord(rec *Record, path string) Node {
	n := Node{
		Name:   rec.Name,
		Path:   path,
		Digest: append([]byte(nil), rec.Digest[:]...),
	}

	if rec.Kind == KindDir {
		n.Type = NodeDirectory
		n.HasChildren = len(rec.Entries) > 0
		return n
	}

	n.Type = NodeFile
	n.Size = uint64(rec.DataSize)
	return n
}

// rootNode builds the synthetic root directory node shared by both backings.
func rootNode(hasChildren bool) Node {
	return Node{Type: NodeDirectory, HasChildren: hasChildren}
}

// nodeFromIndexDir converts an index directory into a node snapshot.
func nodeFromIndexDir(d *bundle.Dir) Node {
	return Node{
		Type:        NodeDirectory,
		Name:        d.Name(),
		Path:        d.Path(),
		HasChildren: len(d.Dirs()) > 0 || len(d.Files()) > 0,
	}
}

// nodeFromIndexFile converts an index file entry into a node snapshot.
// info describes the bundle holding the entry.
func nodeFromIndexFile(e *bundle.FileEntry, info bundle.BundleInfo) Node {
	n := Node{
		Type: NodeBundleFile,
		Name: baseNameOf(e.Path),
		Path: e.Path,
		Size: uint64(e.Size),
	}
	if len(e.Digest) > 0 {
		n.Digest = append([]byte(nil), e.Digest...)
	}
	if info.Codec != bundle.CodecNone {
		n.Compression = &CompressionInfo{
			Codec:            info.Codec,
			CompressedSize:   uint64(e.Size),
			UncompressedSize: uint64(e.Size),
		}
	}

	return n
}

// baseNameOf returns the last segment of a slash-separated archive path.
func baseNameOf(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}

	return p
}

// sortNodes orders children directories-first, then by case-folded name.
func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsDir() != nodes[j].IsDir() {
			return nodes[i].IsDir()
		}

		li, lj := strings.ToLower(nodes[i].Name), strings.ToLower(nodes[j].Name)
		if li != lj {
			return li < lj
		}

		return nodes[i].Name < nodes[j].Name
	})
}
