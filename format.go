// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rowblk implements the row-oriented block format of a
// log-structured merge engine: a writer that accumulates sorted key/value
// pairs using prefix compression between periodic restart points, an
// optional hash index accelerating point lookups, and an iterator that
// decodes blocks using binary or hash-assisted search.
//
// A block is laid out as a sequence of entries, each storing the length of
// the prefix shared with the preceding key, the unshared key suffix, and
// the value; a table of little-endian uint32 restart offsets marking the
// entries stored with no shared prefix; an optional hash index region; and
// a 4-byte footer packing the index type and the restart count.
package rowblk

// IndexType selects the in-block search structure a finished block carries.
type IndexType uint8

const (
	// IndexTypeBinarySearch indicates the block carries only the restart
	// table and lookups binary search over the restart points.
	IndexTypeBinarySearch IndexType = 0
	// IndexTypeBinaryAndHash indicates the block additionally carries a hash
	// index region between the restart table and the footer.
	IndexTypeBinaryAndHash IndexType = 1
)

const (
	// EmptySize holds the size of an empty block. Every block ends in a
	// uint32 footer packing the index type and the number of restart points.
	EmptySize = 4

	// MaximumRestartOffset is the largest byte offset the restart table can
	// reference. Entry offsets beyond this would overflow readers that track
	// block positions in signed 32-bit arithmetic, so the writer refuses to
	// grow a block past it.
	MaximumRestartOffset = 1<<31 - 1

	// MaxBlockSizeSupportedByHashIndex is the size above which a block never
	// carries a hash index. Buckets address restart points as single bytes
	// and the bucket count is encoded as a uint16, so the index's addressing
	// assumptions only hold for small blocks. Finish downgrades larger
	// blocks to binary search, and readers of a block larger than this treat
	// the footer as a bare restart count.
	MaxBlockSizeSupportedByHashIndex = 1 << 16
)

const (
	indexTypeBitShift = 31
	numRestartsMask   = 1<<indexTypeBitShift - 1
)

// packIndexTypeAndNumRestarts packs the index type into the top bit of the
// footer word and the restart count into the low 31 bits.
func packIndexTypeAndNumRestarts(indexType IndexType, numRestarts int) uint32 {
	return uint32(indexType)<<indexTypeBitShift | uint32(numRestarts)
}

// unpackIndexTypeAndNumRestarts is the inverse of
// packIndexTypeAndNumRestarts for blocks small enough to carry a hash
// index. Larger blocks never do, so their footer holds a bare restart
// count.
func unpackIndexTypeAndNumRestarts(footer uint32, blockSize int) (IndexType, uint32) {
	if blockSize > MaxBlockSizeSupportedByHashIndex {
		return IndexTypeBinarySearch, footer
	}
	return IndexType(footer >> indexTypeBitShift), footer & numRestartsMask
}
