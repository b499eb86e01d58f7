// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rowblk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/cockroachdb/rowblk/internal/base"
	"github.com/stretchr/testify/require"
)

func ikey(s string) base.InternalKey {
	return base.InternalKey{UserKey: []byte(s)}
}

func TestWriter(t *testing.T) {
	w := &Writer{RestartInterval: 16, UseDeltaEncoding: true}
	require.NoError(t, w.AddRawString("apple", nil))
	require.NoError(t, w.AddRawString("apricot", nil))
	require.NoError(t, w.AddRawString("banana", nil))
	require.Equal(t, 3, w.EntryCount())
	estimate := w.EstimatedSize()
	blk := w.Finish()

	expected := []byte(
		"\x00\x05\x00apple" +
			"\x02\x05\x00ricot" +
			"\x00\x06\x00banana" +
			"\x00\x00\x00\x00\x01\x00\x00\x00")
	if !bytes.Equal(expected, blk) {
		t.Fatalf("expected\n%q\nfound\n%q", expected, blk)
	}
	// Without a hash index the estimate is exact at finish time.
	require.Equal(t, len(blk), estimate)
}

func TestWriterDeltaEncodingDisabled(t *testing.T) {
	w := &Writer{RestartInterval: 16}
	require.NoError(t, w.AddRawString("apple", nil))
	require.NoError(t, w.AddRawString("apricot", nil))
	require.NoError(t, w.AddRawString("banana", nil))
	blk := w.Finish()

	expected := []byte(
		"\x00\x05\x00apple" +
			"\x00\x07\x00apricot" +
			"\x00\x06\x00banana" +
			"\x00\x00\x00\x00\x01\x00\x00\x00")
	if !bytes.Equal(expected, blk) {
		t.Fatalf("expected\n%q\nfound\n%q", expected, blk)
	}
}

func TestWriterReset(t *testing.T) {
	w := Writer{
		RestartInterval:  16,
		UseDeltaEncoding: true,
		IndexType:        IndexTypeBinaryAndHash,
	}
	require.NoError(t, w.Add(ikey("apple"), []byte("red")))
	require.NoError(t, w.Add(ikey("apricot"), []byte("orange")))
	require.NoError(t, w.Add(ikey("banana"), []byte("yellow")))

	w.Reset()

	// Reset clears the accumulated block state but keeps the configuration
	// and the allocated byte slices.
	require.Equal(t, 16, w.RestartInterval)
	require.True(t, w.UseDeltaEncoding)
	require.Equal(t, IndexTypeBinaryAndHash, w.IndexType)
	require.Equal(t, 0, w.nEntries)
	require.Equal(t, 0, w.nextRestart)
	require.Equal(t, 0, w.estimatedSize)
	require.Equal(t, 0, len(w.buf))
	require.Equal(t, 0, len(w.restarts))
	require.Equal(t, 0, len(w.curKey))
	require.Equal(t, 0, len(w.prevKey))
	require.Equal(t, 0, len(w.curValue))
	require.Equal(t, [4]byte{}, w.tmp)

	require.True(t, cap(w.buf) > 0)
	require.True(t, cap(w.restarts) > 0)
	require.True(t, cap(w.curKey) > 0)
	require.True(t, cap(w.prevKey) > 0)
	require.True(t, cap(w.curValue) > 0)
}

func TestWriterResetIdempotent(t *testing.T) {
	build := func(w *Writer) []byte {
		for i := 0; i < 40; i++ {
			key := base.MakeInternalKey([]byte(fmt.Sprintf("key%04d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
			require.NoError(t, w.Add(key, []byte(fmt.Sprintf("value%d", i))))
		}
		return append([]byte(nil), w.Finish()...)
	}

	for _, indexType := range []IndexType{IndexTypeBinarySearch, IndexTypeBinaryAndHash} {
		t.Run(fmt.Sprintf("index=%d", indexType), func(t *testing.T) {
			w := &Writer{RestartInterval: 3, UseDeltaEncoding: true, IndexType: indexType}
			first := build(w)
			w.Reset()
			second := build(w)

			fresh := &Writer{RestartInterval: 3, UseDeltaEncoding: true, IndexType: indexType}
			third := build(fresh)

			require.Equal(t, first, second)
			require.Equal(t, first, third)
		})
	}
}

func TestWriterEmptyFinish(t *testing.T) {
	w := &Writer{RestartInterval: 16}
	blk := w.Finish()
	// A single restart point at offset zero, then the footer.
	require.Equal(t, []byte("\x00\x00\x00\x00\x01\x00\x00\x00"), blk)

	// An empty block never carries a hash index, even when one is
	// configured.
	w = &Writer{RestartInterval: 16, IndexType: IndexTypeBinaryAndHash}
	blk = w.Finish()
	require.Equal(t, []byte("\x00\x00\x00\x00\x01\x00\x00\x00"), blk)
}

func TestWriterCurKV(t *testing.T) {
	w := &Writer{RestartInterval: 2, UseDeltaEncoding: true}
	key := base.MakeInternalKey([]byte("apple"), 7, base.InternalKeyKindSet)
	require.NoError(t, w.Add(key, []byte("red")))
	require.Equal(t, "apple", string(w.CurKey().UserKey))
	require.Equal(t, base.SeqNum(7), w.CurKey().SeqNum())
	require.Equal(t, "apple", string(w.CurUserKey()))
	require.Equal(t, "red", string(w.CurValue()))

	require.NoError(t, w.Add(base.MakeInternalKey([]byte("banana"), 8, base.InternalKeyKindSet), []byte("yellow")))
	require.Equal(t, "banana", string(w.CurUserKey()))
	require.Equal(t, "yellow", string(w.CurValue()))
}

func TestWriterEstimatedSizeMonotonic(t *testing.T) {
	w := &Writer{RestartInterval: 4, UseDeltaEncoding: true, IndexType: IndexTypeBinaryAndHash}
	require.Equal(t, EmptySize, w.EstimatedSize())
	prev := w.EstimatedSize()
	for i := 0; i < 100; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key%04d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(key, []byte("abcdefgh")))
		est := w.EstimatedSize()
		require.GreaterOrEqual(t, est, prev)
		prev = est
	}
	blk := w.Finish()
	// The estimate converges on the exact block size once every entry is in
	// place: the hash index's size is known at finish time.
	require.Equal(t, len(blk), prev)
}

func TestWriterHashIndexRetained(t *testing.T) {
	w := &Writer{RestartInterval: 2, UseDeltaEncoding: true, IndexType: IndexTypeBinaryAndHash}
	for i := 0; i < 4; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key%04d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(key, []byte("value")))
	}
	blk := w.Finish()

	footer := binary.LittleEndian.Uint32(blk[len(blk)-4:])
	indexType, numRestarts := unpackIndexTypeAndNumRestarts(footer, len(blk))
	require.Equal(t, IndexTypeBinaryAndHash, indexType)
	require.Equal(t, uint32(2), numRestarts)

	// Four keys at the default util ratio yield five buckets, forced odd.
	numBuckets := binary.LittleEndian.Uint16(blk[len(blk)-6:])
	require.Equal(t, uint16(5), numBuckets)
}

func TestWriterHashIndexTooManyRestarts(t *testing.T) {
	// A restart interval of 1 makes every entry a restart point; past index
	// 253 the hash index can no longer address them and the block downgrades
	// to binary search.
	w := &Writer{RestartInterval: 1, UseDeltaEncoding: true, IndexType: IndexTypeBinaryAndHash}
	for i := 0; i < 300; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key%04d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(key, nil))
	}
	blk := w.Finish()

	footer := binary.LittleEndian.Uint32(blk[len(blk)-4:])
	indexType, numRestarts := unpackIndexTypeAndNumRestarts(footer, len(blk))
	require.Equal(t, IndexTypeBinarySearch, indexType)
	require.Equal(t, uint32(300), numRestarts)
}

func TestWriterHashIndexOversizedBlock(t *testing.T) {
	// Blocks at or above MaxBlockSizeSupportedByHashIndex drop the hash
	// index at finish time even though one was built throughout.
	w := &Writer{RestartInterval: 16, UseDeltaEncoding: true, IndexType: IndexTypeBinaryAndHash}
	value := bytes.Repeat([]byte("x"), 256)
	for i := 0; i < 300; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key%04d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(key, value))
	}
	require.Greater(t, w.EstimatedSize(), MaxBlockSizeSupportedByHashIndex)
	blk := w.Finish()
	require.Greater(t, len(blk), MaxBlockSizeSupportedByHashIndex)

	footer := binary.LittleEndian.Uint32(blk[len(blk)-4:])
	indexType, numRestarts := unpackIndexTypeAndNumRestarts(footer, len(blk))
	require.Equal(t, IndexTypeBinarySearch, indexType)
	require.Equal(t, uint32(19), numRestarts)
}
