// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression provides the compression algorithms used for physical
// blocks. Implementations are stateless or internally synchronized; a single
// Compressor or Decompressor may be used from multiple goroutines.
package compression

import "github.com/cockroachdb/errors"

// Algorithm identifies a compression algorithm.
type Algorithm uint8

// The available compression algorithms.
const (
	None Algorithm = iota
	Snappy
	Zstd
	MinLZ
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case MinLZ:
		return "minlz"
	default:
		panic(errors.Newf("unknown compression algorithm: %d", int(a)))
	}
}

// Compressor compresses blocks of data.
type Compressor interface {
	// Compress appends the compressed form of src to dst[:0] (reusing dst's
	// capacity when possible) and returns the resulting slice.
	Compress(dst, src []byte) []byte
}

// Decompressor decompresses blocks of data.
type Decompressor interface {
	// DecompressInto decompresses src into dst. dst must have exactly the
	// length reported by DecompressedLen.
	DecompressInto(dst, src []byte) error

	// DecompressedLen returns the length of the payload obtained by
	// decompressing src.
	DecompressedLen(src []byte) (int, error)
}

// GetCompressor returns the Compressor for the given algorithm.
func GetCompressor(a Algorithm) Compressor {
	switch a {
	case None:
		return noopCompressor{}
	case Snappy:
		return snappyCompressor{}
	case Zstd:
		return getZstdCompressor()
	case MinLZ:
		return minlzCompressorFastest
	default:
		panic(errors.Newf("unknown compression algorithm: %d", int(a)))
	}
}

// GetDecompressor returns the Decompressor for the given algorithm.
func GetDecompressor(a Algorithm) Decompressor {
	switch a {
	case None:
		return noopDecompressor{}
	case Snappy:
		return snappyDecompressor{}
	case Zstd:
		return getZstdDecompressor()
	case MinLZ:
		return minlzDecompressor{}
	default:
		panic(errors.Newf("unknown compression algorithm: %d", int(a)))
	}
}
