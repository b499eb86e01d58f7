// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rowblk

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/rowblk/internal/coding"
)

// DefaultUtilRatio is the target ratio of hash index entries to buckets
// used when no explicit ratio is configured.
const DefaultUtilRatio = 0.75

const (
	// maxRestartSupportedByHashIndex bounds the restart indexes a bucket can
	// name: buckets are single bytes and the two largest values are
	// reserved.
	maxRestartSupportedByHashIndex = 253

	// hashIndexCollision marks a bucket hit by distinct restart indexes. A
	// reader must resolve such a bucket with binary search.
	hashIndexCollision = 254
	// hashIndexNoEntry marks a bucket no user key hashed to.
	hashIndexNoEntry = 255
)

// hashUserKey is the hash applied to user keys registered in the index.
// Readers must probe with the identical function, so both sides share this
// helper.
func hashUserKey(userKey []byte) uint32 {
	return uint32(xxhash.Sum64(userKey))
}

type hashRestartEntry struct {
	hash    uint32
	restart uint8
}

// HashIndexBuilder accumulates (user key hash, restart index) pairs while a
// block is under construction and serializes them into a bucket table that
// maps a key's hash to the restart run holding it. It is inactive until
// Init is called; an inactive builder no-ops on every method and reports
// Valid() == false.
type HashIndexBuilder struct {
	bucketPerKey        float64
	estimatedNumBuckets float64
	valid               bool
	entries             []hashRestartEntry
}

// Init activates the builder with a target ratio of entries to buckets. A
// non-positive ratio selects DefaultUtilRatio.
func (b *HashIndexBuilder) Init(utilRatio float64) {
	if utilRatio <= 0 {
		utilRatio = DefaultUtilRatio
	}
	b.bucketPerKey = 1 / utilRatio
	b.valid = true
}

// Valid reports whether the builder has been initialized and can still
// produce an index for the current block.
func (b *HashIndexBuilder) Valid() bool {
	return b.valid && b.bucketPerKey > 0
}

// Add records userKey as present in the run beginning at the given restart
// point. A restart index beyond maxRestartSupportedByHashIndex cannot be
// named by a one-byte bucket, so such an Add invalidates the builder for
// the rest of the block.
func (b *HashIndexBuilder) Add(userKey []byte, restartIndex int) {
	if !b.Valid() {
		return
	}
	if restartIndex > maxRestartSupportedByHashIndex {
		b.valid = false
		return
	}
	b.entries = append(b.entries, hashRestartEntry{
		hash:    hashUserKey(userKey),
		restart: uint8(restartIndex),
	})
	b.estimatedNumBuckets += b.bucketPerKey
}

// EstimatedSize returns the byte length Finish would append right now.
func (b *HashIndexBuilder) EstimatedSize() int {
	return b.numBuckets() + 2
}

func (b *HashIndexBuilder) numBuckets() int {
	// The bucket count is capped by its uint16 encoding and forced odd to
	// spread the modulo mapping.
	return min(int(b.estimatedNumBuckets), math.MaxUint16) | 1
}

// Finish appends the bucket table to buf: one byte per bucket followed by
// the bucket count as a little-endian uint16. A bucket holds the restart
// index of the sole user key hashing to it, hashIndexCollision when
// distinct restart indexes collided, or hashIndexNoEntry.
func (b *HashIndexBuilder) Finish(buf []byte) []byte {
	numBuckets := b.numBuckets()
	bucketOffset := len(buf)
	for j := 0; j < numBuckets; j++ {
		buf = append(buf, byte(hashIndexNoEntry))
	}
	buckets := buf[bucketOffset:]
	for _, e := range b.entries {
		j := e.hash % uint32(numBuckets)
		switch buckets[j] {
		case hashIndexNoEntry:
			buckets[j] = e.restart
		case e.restart:
			// Another version of the same user key, or a colliding key in
			// the same run; the bucket already names the right restart.
		default:
			buckets[j] = hashIndexCollision
		}
	}
	return coding.AppendUint16(buf, uint16(numBuckets))
}

// Clear drops the accumulated entries, keeping the configured ratio, so the
// builder is ready for the next block.
func (b *HashIndexBuilder) Clear() {
	b.estimatedNumBuckets = 0
	b.valid = true
	b.entries = b.entries[:0]
}

// hashLookupResult is the outcome of probing a block's hash index.
type hashLookupResult uint8

const (
	// hashNotFound means the bucket holds no entry. The index is an
	// accelerator, not a membership structure, so the caller still falls
	// back to binary search.
	hashNotFound hashLookupResult = iota
	// hashFound means the bucket names a concrete restart point.
	hashFound
	// hashAmbiguous means distinct restart runs collided in the bucket.
	hashAmbiguous
)

// hashIndex reads the bucket table serialized by HashIndexBuilder.Finish.
type hashIndex struct {
	buckets []byte
}

// lookup probes the bucket for userKey. The returned restart index is
// meaningful only when the result is hashFound.
func (h hashIndex) lookup(userKey []byte) (restart int, result hashLookupResult) {
	switch b := h.buckets[hashUserKey(userKey)%uint32(len(h.buckets))]; b {
	case hashIndexNoEntry:
		return 0, hashNotFound
	case hashIndexCollision:
		return 0, hashAmbiguous
	default:
		return int(b), hashFound
	}
}
