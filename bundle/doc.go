// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Wraeclast
// Source: github.com/wraeclast/ggpk

// Package bundle reads and writes block-compressed bundles and the index
// that maps file paths into them.
//
// A bundle is one payload split into fixed-granularity blocks, compressed
// block by block so that any byte range can be recovered by decompressing
// only the blocks covering it. The index is itself a bundle; its
// decompressed payload lists every bundle, every file as a span inside a
// bundle's decompressed payload, and the full path table.
//
// Open an on-disk distribution through its index:
//
//	x, err := bundle.OpenIndexFile("Bundles2/_.index.bin")
//	if err != nil {
//		return err
//	}
//
//	if e := x.Lookup("data/example.txt"); e != nil {
//		data, err := x.ReadFile(e)
//		...
//	}
//
// Lookups are case-insensitive. Paths use forward slashes and are relative
// to the distribution root.
//
// The proprietary codecs (Kraken, Mermaid, Leviathan) ship with no decoder;
// reading a bundle compressed with one fails with ErrCodecUnavailable unless
// RegisterDecoder installed an implementation first. LZ4, Zstandard and LZSS
// are built in.
package bundle
