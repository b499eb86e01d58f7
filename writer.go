// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rowblk

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/rowblk/internal/base"
	"github.com/cockroachdb/rowblk/internal/invariants"
)

// ErrBlockTooBig is surfaced when a block exceeds the maximum size.
var ErrBlockTooBig = errors.New("rowblk: block size exceeds maximum size")

// Writer buffers and serializes key/value pairs into a row-oriented block.
//
// The zero value is ready for use once the exported configuration fields
// are set. Configuration is fixed for the writer's lifetime: Reset
// preserves it along with the allocated buffers.
type Writer struct {
	// RestartInterval configures the interval at which the writer will write
	// a full key without prefix compression, and encode a corresponding
	// restart point.
	RestartInterval int
	// UseDeltaEncoding configures prefix compression of keys between restart
	// points. When disabled, every entry stores its full key.
	UseDeltaEncoding bool
	// IndexType selects the search structure the finished block carries.
	// IndexTypeBinaryAndHash builds a hash index alongside the restart
	// table, mapping user-key hashes to restart points.
	IndexType IndexType
	// HashUtilRatio is the target ratio of hash index entries to buckets. A
	// non-positive ratio selects DefaultUtilRatio. Consulted only when
	// IndexType is IndexTypeBinaryAndHash.
	HashUtilRatio float64

	nEntries    int
	nextRestart int
	buf         []byte
	restarts    []uint32
	// estimatedSize accumulates the byte cost of the entries and restart
	// offsets written so far. It is maintained incrementally so that
	// EstimatedSize stays O(1) for callers polling it on every Add.
	estimatedSize int
	curKey        []byte
	prevKey       []byte
	// curValue aliases the tail of buf holding the most recent value.
	curValue  []byte
	hashIndex HashIndexBuilder
	tmp       [4]byte
}

// Reset returns the writer to its just-constructed state, preserving
// configuration and retaining allocated buffers for reuse.
func (w *Writer) Reset() {
	*w = Writer{
		RestartInterval:  w.RestartInterval,
		UseDeltaEncoding: w.UseDeltaEncoding,
		IndexType:        w.IndexType,
		HashUtilRatio:    w.HashUtilRatio,
		buf:              w.buf[:0],
		restarts:         w.restarts[:0],
		curKey:           w.curKey[:0],
		prevKey:          w.prevKey[:0],
		curValue:         w.curValue[:0],
		hashIndex:        w.hashIndex,
	}
	w.hashIndex.Clear()
}

// EntryCount returns the count of entries written to the writer.
func (w *Writer) EntryCount() int {
	return w.nEntries
}

// CurKey returns the most recently written key.
func (w *Writer) CurKey() base.InternalKey {
	return base.DecodeInternalKey(w.curKey)
}

// CurValue returns the most recently written value.
func (w *Writer) CurValue() []byte {
	return w.curValue
}

// CurUserKey returns the most recently written user key.
func (w *Writer) CurUserKey() []byte {
	n := len(w.curKey) - base.InternalTrailerLen
	if n < 0 {
		panic(errors.AssertionFailedf("corrupt key in block writer buffer"))
	}
	return w.curKey[:n:n]
}

func (w *Writer) store(keySize int, value []byte) error {
	// Check that the block does not already exceed MaximumRestartOffset. If
	// it does and we append the additional key-value pair, the new pair's
	// offset in the block will be inexpressible as a restart point.
	if len(w.buf) > MaximumRestartOffset {
		return errors.WithDetailf(ErrBlockTooBig, "block is %d bytes long", len(w.buf))
	}
	if w.nEntries == 0 && w.IndexType == IndexTypeBinaryAndHash {
		w.hashIndex.Init(w.HashUtilRatio)
	}

	shared := 0
	if w.nEntries == w.nextRestart {
		w.nextRestart = w.nEntries + w.RestartInterval
		w.restarts = append(w.restarts, uint32(len(w.buf)))
		w.estimatedSize += 4
	} else if w.UseDeltaEncoding {
		shared = base.SharedPrefixLen(w.curKey, w.prevKey)
	}

	needed := 3*binary.MaxVarintLen32 + len(w.curKey[shared:]) + len(value)
	n := len(w.buf)
	if cap(w.buf) < n+needed {
		newCap := 2 * cap(w.buf)
		if newCap == 0 {
			newCap = 1024
		}
		for newCap < n+needed {
			newCap *= 2
		}
		newBuf := make([]byte, n, newCap)
		copy(newBuf, w.buf)
		w.buf = newBuf
	}
	w.buf = w.buf[:n+needed]
	entryStart := n

	// Manually inlined versions of binary.PutUvarint. Varint encoding the
	// three entry lengths is the hottest part of the write path.
	{
		x := uint32(shared)
		for x >= 0x80 {
			w.buf[n] = byte(x) | 0x80
			x >>= 7
			n++
		}
		w.buf[n] = byte(x)
		n++
	}

	{
		x := uint32(keySize - shared)
		for x >= 0x80 {
			w.buf[n] = byte(x) | 0x80
			x >>= 7
			n++
		}
		w.buf[n] = byte(x)
		n++
	}

	{
		x := uint32(len(value))
		for x >= 0x80 {
			w.buf[n] = byte(x) | 0x80
			x >>= 7
			n++
		}
		w.buf[n] = byte(x)
		n++
	}

	n += copy(w.buf[n:], w.curKey[shared:])
	n += copy(w.buf[n:], value)
	w.buf = w.buf[:n]

	w.curValue = w.buf[n-len(value):]
	w.estimatedSize += n - entryStart

	if w.hashIndex.Valid() {
		if keySize < base.InternalTrailerLen {
			panic(errors.AssertionFailedf("rowblk: cannot hash-index a key shorter than the trailer"))
		}
		w.hashIndex.Add(w.curKey[:keySize-base.InternalTrailerLen], len(w.restarts)-1)
	}

	w.nEntries++
	return nil
}

// Add appends a key/value pair to the block. Keys must be added in
// ascending order under bytewise internal-key comparison; the writer trusts
// the caller and verifies only in invariant builds.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if invariants.Enabled && w.nEntries > 0 &&
		base.InternalCompare(bytes.Compare, base.DecodeInternalKey(w.curKey), key) > 0 {
		panic(errors.AssertionFailedf("rowblk: keys must be added in order: %s > %s",
			base.DecodeInternalKey(w.curKey), key))
	}
	w.curKey, w.prevKey = w.prevKey, w.curKey

	size := key.Size()
	if cap(w.curKey) < size {
		w.curKey = make([]byte, 0, size*2)
	}
	w.curKey = w.curKey[:size]
	key.Encode(w.curKey)

	return w.store(size, value)
}

// AddRaw appends an already-encoded key/value pair to the block. The key
// must be an encoded internal key whenever the writer builds a hash index.
func (w *Writer) AddRaw(key, value []byte) error {
	w.curKey, w.prevKey = w.prevKey, w.curKey

	size := len(key)
	if cap(w.curKey) < size {
		w.curKey = make([]byte, 0, size*2)
	}
	w.curKey = w.curKey[:size]
	copy(w.curKey, key)

	return w.store(size, value)
}

// AddRawString is AddRaw but with a string key.
func (w *Writer) AddRawString(key string, value []byte) error {
	return w.AddRaw(unsafe.Slice(unsafe.StringData(key), len(key)), value)
}

// Finish finalizes the block: it appends the restart offsets, the hash
// index when one was built and the block stayed small enough to carry it,
// and the packed footer. The returned slice aliases the writer's buffer.
// The writer remains inspectable afterwards; it must be Reset before
// starting the next block.
func (w *Writer) Finish() []byte {
	// Write the restart points to the buffer.
	if w.nEntries == 0 {
		// Every block must have at least one restart point.
		if cap(w.restarts) > 0 {
			w.restarts = w.restarts[:1]
			w.restarts[0] = 0
		} else {
			w.restarts = append(w.restarts, 0)
		}
	}
	tmp4 := w.tmp[:4]
	for _, x := range w.restarts {
		binary.LittleEndian.PutUint32(tmp4, x)
		w.buf = append(w.buf, tmp4...)
	}
	// A hash index is retained only when it stayed valid and the block is
	// small enough for its one-byte restart addressing. Otherwise the block
	// silently downgrades to binary search. Empty blocks never carry one.
	indexType := IndexTypeBinarySearch
	if w.nEntries > 0 && w.hashIndex.Valid() &&
		w.EstimatedSize() < MaxBlockSizeSupportedByHashIndex {
		indexType = IndexTypeBinaryAndHash
		w.buf = w.hashIndex.Finish(w.buf)
	}
	binary.LittleEndian.PutUint32(tmp4, packIndexTypeAndNumRestarts(indexType, len(w.restarts)))
	w.buf = append(w.buf, tmp4...)
	return w.buf
}

// EstimatedSize returns the estimated size of the finished block in bytes:
// the entries and restart offsets written so far plus the footer, plus the
// hash index's own estimate while one is being built.
func (w *Writer) EstimatedSize() int {
	size := w.estimatedSize + EmptySize
	if w.hashIndex.Valid() {
		size += w.hashIndex.EstimatedSize()
	}
	return size
}
