// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rowblk

import (
	"encoding/binary"

	"github.com/cockroachdb/rowblk/block"
	"github.com/cockroachdb/rowblk/internal/base"
	"github.com/cockroachdb/rowblk/internal/coding"
	"github.com/cockroachdb/rowblk/internal/invariants"
)

// Iter is an iterator over a single block of data. It decodes the layout
// produced by Writer: prefix-compressed entries, the restart table, an
// optional hash index, and the packed footer.
//
// A finished block is immutable, so any number of concurrently operating
// iterators may share one. Each Iter holds only private cursor state.
type Iter struct {
	cmp base.Compare
	// data holds the entire block: entries, restart offsets, the optional
	// hash index, and the footer.
	data []byte
	// restarts is the offset in data at which the restart table begins; the
	// entry region is data[:restarts].
	restarts int
	// numRestarts is the number of offsets in the restart table.
	numRestarts int
	// hashIndex wraps the bucket region of a block whose footer carries
	// IndexTypeBinaryAndHash; its buckets slice is nil otherwise.
	hashIndex hashIndex
	// offset is the byte position of the current entry within the entry
	// region. The iterator is exhausted once offset reaches restarts.
	// nextOffset points at the entry that follows.
	offset     int
	nextOffset int
	// fullKey accumulates the current key across prefix-compressed entries.
	// key points either into fullKey or, for entries stored without a
	// shared prefix, directly into data.
	fullKey []byte
	key     []byte
	val     []byte
	// ikv holds the decoded key and value most recently returned to the
	// caller.
	ikv        base.InternalKV
	transforms block.IterTransforms
	closeCheck invariants.CloseChecker
	err        error
}

// NewIter constructs a new iterator over blk.
func NewIter(cmp base.Compare, blk []byte, transforms block.IterTransforms) (*Iter, error) {
	i := &Iter{}
	return i, i.Init(cmp, blk, transforms)
}

// Init initializes the iterator for reading from blk. It parses the footer
// and validates the restart table and hash index bounds. Entry payloads are
// validated lazily as the iterator visits them; a malformed entry surfaces
// through Error.
func (i *Iter) Init(cmp base.Compare, blk []byte, transforms block.IterTransforms) error {
	if len(blk) < EmptySize {
		return base.CorruptionErrorf(
			"rowblk: invalid block (%d bytes, shorter than the footer)", len(blk))
	}
	footer := binary.LittleEndian.Uint32(blk[len(blk)-4:])
	indexType, numRestarts := unpackIndexTypeAndNumRestarts(footer, len(blk))
	if numRestarts == 0 {
		return base.CorruptionErrorf("rowblk: invalid block (block has no restart points)")
	}
	end := len(blk) - EmptySize
	var buckets []byte
	if indexType == IndexTypeBinaryAndHash {
		if end < 2 {
			return base.CorruptionErrorf("rowblk: invalid block (truncated hash index)")
		}
		numBuckets := int(binary.LittleEndian.Uint16(blk[end-2:]))
		end -= 2
		if numBuckets == 0 || numBuckets > end {
			return base.CorruptionErrorf(
				"rowblk: invalid block (hash index with %d buckets)", numBuckets)
		}
		buckets = blk[end-numBuckets : end : end]
		end -= numBuckets
	}
	if uint64(numRestarts) > uint64(end/4) {
		return base.CorruptionErrorf(
			"rowblk: invalid block (restart table overruns block: %d restart points)", numRestarts)
	}
	i.cmp = cmp
	i.data = blk
	i.restarts = end - 4*int(numRestarts)
	i.numRestarts = int(numRestarts)
	i.hashIndex = hashIndex{buckets: buckets}
	i.transforms = transforms
	i.fullKey = i.fullKey[:0]
	i.key = nil
	i.val = nil
	i.ikv = base.InternalKV{}
	i.offset = 0
	i.nextOffset = 0
	i.err = nil
	i.closeCheck = invariants.CloseChecker{}
	return nil
}

// corrupt records a corruption error for the entry at the current offset
// and exhausts the iterator. It returns false for use in readEntry callers.
func (i *Iter) corrupt() bool {
	i.err = base.CorruptionErrorf(
		"rowblk: invalid block (malformed entry at offset %d)", i.offset)
	i.offset = i.restarts
	i.nextOffset = i.restarts
	i.key = nil
	i.val = nil
	return false
}

// readEntry decodes the entry at i.offset, reconstructing its key from the
// shared prefix of the previous key. It reports false after recording a
// corruption error if the entry is malformed.
func (i *Iter) readEntry() bool {
	shared, rest, ok := coding.DecodeUvarint32(i.data[i.offset:i.restarts])
	if !ok {
		return i.corrupt()
	}
	var unshared, value uint32
	if unshared, rest, ok = coding.DecodeUvarint32(rest); !ok {
		return i.corrupt()
	}
	if value, rest, ok = coding.DecodeUvarint32(rest); !ok {
		return i.corrupt()
	}
	if int64(shared) > int64(len(i.fullKey)) ||
		uint64(unshared)+uint64(value) > uint64(len(rest)) {
		return i.corrupt()
	}
	unsharedKey := rest[:unshared:unshared]
	i.fullKey = append(i.fullKey[:shared], unsharedKey...)
	if shared == 0 {
		// Provide stability for the key across positioning calls if the key
		// doesn't share a prefix with the previous key. This removes
		// requiring the key to be copied if the caller knows the block has a
		// restart interval of 1.
		i.key = unsharedKey
	} else {
		i.key = i.fullKey
	}
	rest = rest[unshared:]
	i.val = rest[:value:value]
	i.nextOffset = i.restarts - (len(rest) - int(value))
	return true
}

// decodeInternalKey splits key into i.ikv.K's user key and trailer,
// overriding the sequence number when a synthetic one is configured.
func (i *Iter) decodeInternalKey(key []byte) {
	if n := len(key) - base.InternalTrailerLen; n >= 0 {
		i.ikv.K.Trailer = base.InternalKeyTrailer(binary.LittleEndian.Uint64(key[n:]))
		i.ikv.K.UserKey = key[:n:n]
		if n := i.transforms.SyntheticSeqNum; n != 0 {
			i.ikv.K.SetSeqNum(base.SeqNum(n))
		}
	} else {
		i.ikv.K.Trailer = base.InternalKeyTrailer(base.InternalKeyKindInvalid)
		i.ikv.K.UserKey = nil
	}
}

// restartOffset returns the entry offset recorded for restart point r.
func (i *Iter) restartOffset(r int) int {
	if invariants.Enabled {
		invariants.CheckBounds(r, i.numRestarts)
	}
	return int(binary.LittleEndian.Uint32(i.data[i.restarts+4*r:]))
}

// corruptRestart records a corruption error for restart point r and
// exhausts the iterator.
func (i *Iter) corruptRestart(r int) {
	i.err = base.CorruptionErrorf(
		"rowblk: invalid block (malformed restart point %d)", r)
	i.offset = i.restarts
	i.nextOffset = i.restarts
}

// decodeRestartKey returns the internal key stored at restart point r.
// Restart entries always store their key without prefix compression, which
// lets the search paths decode them in isolation.
func (i *Iter) decodeRestartKey(r int) (base.InternalKey, bool) {
	offset := i.restartOffset(r)
	if offset < 0 || offset >= i.restarts {
		i.corruptRestart(r)
		return base.InternalKey{}, false
	}
	shared, rest, ok := coding.DecodeUvarint32(i.data[offset:i.restarts])
	if !ok || shared != 0 {
		i.corruptRestart(r)
		return base.InternalKey{}, false
	}
	var unshared uint32
	if unshared, rest, ok = coding.DecodeUvarint32(rest); !ok {
		i.corruptRestart(r)
		return base.InternalKey{}, false
	}
	if _, rest, ok = coding.DecodeUvarint32(rest); !ok || uint64(unshared) > uint64(len(rest)) {
		i.corruptRestart(r)
		return base.InternalKey{}, false
	}
	return base.DecodeInternalKey(rest[:unshared:unshared]), true
}

// seekHashRestart consults the hash index for the restart run that could
// hold key. It reports ok=false whenever the probe cannot be trusted: no
// hash index, an empty or collided bucket, a bucket naming an out-of-range
// restart, or a bucket whose run does not actually span the key. The caller
// falls back to binary search in all of those cases, keeping seek outcomes
// identical with and without the index.
func (i *Iter) seekHashRestart(key base.InternalKey) (int, bool) {
	if i.hashIndex.buckets == nil {
		return 0, false
	}
	restart, result := i.hashIndex.lookup(key.UserKey)
	if result != hashFound || restart >= i.numRestarts {
		return 0, false
	}
	// Trust the bucket only after verifying the run it names: its restart
	// key must not exceed the target, and the following restart key, if
	// any, must be strictly greater.
	rk, ok := i.decodeRestartKey(restart)
	if !ok {
		return 0, false
	}
	if base.InternalCompare(i.cmp, rk, key) > 0 {
		return 0, false
	}
	if restart+1 < i.numRestarts {
		next, ok := i.decodeRestartKey(restart + 1)
		if !ok {
			return 0, false
		}
		if base.InternalCompare(i.cmp, next, key) <= 0 {
			return 0, false
		}
	}
	return restart, true
}

// SeekGE positions the iterator at the first entry whose key is greater
// than or equal to key and returns it, or nil if no such entry exists. When
// the block carries a hash index, a verified single-bucket probe replaces
// the binary search over restart points.
func (i *Iter) SeekGE(key base.InternalKey) *base.InternalKV {
	i.closeCheck.AssertNotClosed()

	if i.restarts == 0 {
		// The block is empty; its single restart point references no entry.
		i.offset = 0
		i.nextOffset = 0
		return nil
	}
	var startOffset int
	if restart, ok := i.seekHashRestart(key); ok {
		startOffset = i.restartOffset(restart)
	} else if i.err != nil {
		return nil
	} else {
		// Find the index of the smallest restart point whose key is >= the
		// key sought; index will be numRestarts if there is no such restart
		// point.
		index, upper := 0, i.numRestarts
		for index < upper {
			h := int(uint(index+upper) >> 1) // avoid overflow when computing h
			// index ≤ h < upper
			rk, ok := i.decodeRestartKey(h)
			if !ok {
				return nil
			}
			if base.InternalCompare(i.cmp, key, rk) > 0 {
				// The key sought is greater than the key at this restart
				// point; search beyond it.
				index = h + 1
			} else {
				upper = h
			}
		}
		// Keys between a restart point and the next belong to the earlier
		// restart point, so if index > 0 the scan begins at index-1. If
		// index == 0, every key in the block is >= the key sought and the
		// scan begins at offset zero.
		if index > 0 {
			startOffset = i.restartOffset(index - 1)
		}
	}

	i.offset = startOffset
	if !i.Valid() {
		return nil
	}
	if !i.readEntry() {
		return nil
	}
	i.decodeInternalKey(i.key)
	i.ikv.V = i.val
	if base.InternalCompare(i.cmp, i.ikv.K, key) >= 0 {
		return &i.ikv
	}
	for kv := i.Next(); kv != nil; kv = i.Next() {
		if base.InternalCompare(i.cmp, kv.K, key) >= 0 {
			return kv
		}
	}
	return nil
}

// First positions the iterator at the first entry in the block and returns
// it, or nil if the block holds no entries.
func (i *Iter) First() *base.InternalKV {
	i.closeCheck.AssertNotClosed()

	i.offset = 0
	if !i.Valid() {
		return nil
	}
	if !i.readEntry() {
		return nil
	}
	i.decodeInternalKey(i.key)
	i.ikv.V = i.val
	return &i.ikv
}

// Next advances the iterator one entry and returns it, or nil once the
// iterator is exhausted.
func (i *Iter) Next() *base.InternalKV {
	i.offset = i.nextOffset
	if !i.Valid() {
		return nil
	}
	if !i.readEntry() {
		return nil
	}
	i.decodeInternalKey(i.key)
	i.ikv.V = i.val
	return &i.ikv
}

// KV returns the entry at the iterator's current position. It is only valid
// while Valid reports true.
func (i *Iter) KV() *base.InternalKV {
	return &i.ikv
}

// Valid reports whether the iterator is positioned on an entry.
func (i *Iter) Valid() bool {
	return i.offset < i.restarts && i.err == nil
}

// Error returns the corruption error encountered while decoding, if any.
// Once an error is recorded the iterator remains exhausted.
func (i *Iter) Error() error {
	return i.err
}

// Close drops the iterator's reference to the block. The key buffer is
// retained so a subsequent Init can reuse it.
func (i *Iter) Close() error {
	i.closeCheck.Close()
	fullKey := i.fullKey[:0]
	closeCheck := i.closeCheck
	*i = Iter{
		fullKey:    fullKey,
		closeCheck: closeCheck,
	}
	return nil
}
