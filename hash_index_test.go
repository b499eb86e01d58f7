// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rowblk

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIndexBuilderZeroValue(t *testing.T) {
	var b HashIndexBuilder
	require.False(t, b.Valid())

	// Adds before Init are dropped.
	b.Add([]byte("alpha"), 0)
	require.False(t, b.Valid())
	require.Equal(t, 0, len(b.entries))

	b.Init(0)
	require.True(t, b.Valid())
}

func TestHashIndexBuilderNumBuckets(t *testing.T) {
	testCases := []struct {
		ratio      float64
		numKeys    int
		numBuckets int
	}{
		// A non-positive ratio falls back to the default of 0.75.
		{0, 4, 5},
		{-1, 4, 5},
		{0.75, 4, 5},
		// One bucket per key, forced odd.
		{1, 4, 5},
		{1, 5, 5},
		// Two buckets per key.
		{0.5, 4, 9},
		// No keys still produces a single bucket.
		{0.75, 0, 1},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("ratio=%v,keys=%d", tc.ratio, tc.numKeys), func(t *testing.T) {
			var b HashIndexBuilder
			b.Init(tc.ratio)
			for i := 0; i < tc.numKeys; i++ {
				b.Add([]byte(fmt.Sprintf("key%05d", i)), 0)
			}
			require.Equal(t, tc.numBuckets+2, b.EstimatedSize())

			buf := b.Finish(nil)
			require.Equal(t, tc.numBuckets+2, len(buf))
			require.Equal(t, uint16(tc.numBuckets), binary.LittleEndian.Uint16(buf[len(buf)-2:]))
			// The bucket count is always odd so that the modulo spreads keys
			// over every bucket.
			require.Equal(t, 1, tc.numBuckets%2)
		})
	}
}

func TestHashIndexBuilderFinishAppends(t *testing.T) {
	var b HashIndexBuilder
	b.Init(0.75)
	b.Add([]byte("alpha"), 1)

	prefix := []byte("existing block data")
	buf := b.Finish(append([]byte(nil), prefix...))
	require.Equal(t, prefix, buf[:len(prefix)])
	require.Equal(t, len(prefix)+b.EstimatedSize(), len(buf))
}

func TestHashIndexBuilderLookup(t *testing.T) {
	var b HashIndexBuilder
	b.Init(0.75)
	// Two versions of the same user key within one restart run keep the
	// bucket pointing at that restart.
	b.Add([]byte("alpha"), 1)
	b.Add([]byte("alpha"), 1)
	b.Add([]byte("beta"), 2)
	b.Add([]byte("gamma"), 3)

	buf := b.Finish(nil)
	numBuckets := binary.LittleEndian.Uint16(buf[len(buf)-2:])
	idx := hashIndex{buckets: buf[:len(buf)-2]}
	require.Equal(t, int(numBuckets), len(idx.buckets))

	// An added key resolves to its own restart unless an unrelated key
	// hashed onto the same bucket, in which case the bucket was marked as a
	// collision.
	expect := map[string]int{"alpha": 1, "beta": 2, "gamma": 3}
	for key, restart := range expect {
		r, res := idx.lookup([]byte(key))
		switch res {
		case hashFound:
			require.Equal(t, restart, r, "key %q", key)
		case hashAmbiguous:
		default:
			t.Fatalf("key %q unexpectedly not found", key)
		}
	}
}

func TestHashIndexBuilderSameKeyAcrossRestarts(t *testing.T) {
	// The same user key recorded against two different restart points is a
	// guaranteed self-collision: both adds hash to the same bucket.
	var b HashIndexBuilder
	b.Init(0.75)
	b.Add([]byte("alpha"), 1)
	b.Add([]byte("alpha"), 7)

	buf := b.Finish(nil)
	idx := hashIndex{buckets: buf[:len(buf)-2]}
	_, res := idx.lookup([]byte("alpha"))
	require.Equal(t, hashAmbiguous, res)
}

func TestHashIndexLookupNotFound(t *testing.T) {
	// An empty builder serializes a single noEntry bucket, so any lookup
	// misses.
	var b HashIndexBuilder
	b.Init(0.75)
	buf := b.Finish(nil)
	require.Equal(t, 3, len(buf))

	idx := hashIndex{buckets: buf[:1]}
	_, res := idx.lookup([]byte("anything"))
	require.Equal(t, hashNotFound, res)

	// With a sparsely populated index, some bucket is empty; find a key that
	// hashes onto one and verify the miss.
	b.Clear()
	b.Add([]byte("alpha"), 1)
	b.Add([]byte("beta"), 2)
	buf = b.Finish(nil)
	numBuckets := binary.LittleEndian.Uint16(buf[len(buf)-2:])
	idx = hashIndex{buckets: buf[:numBuckets]}

	for i := 0; i < 100000; i++ {
		key := []byte(fmt.Sprintf("probe%d", i))
		if idx.buckets[hashUserKey(key)%uint32(len(idx.buckets))] == hashIndexNoEntry {
			_, res := idx.lookup(key)
			require.Equal(t, hashNotFound, res)
			return
		}
	}
	t.Fatal("no probe key hashed onto an empty bucket")
}

func TestHashIndexBuilderTooManyRestarts(t *testing.T) {
	var b HashIndexBuilder
	b.Init(0.5)
	b.Add([]byte("alpha"), maxRestartSupportedByHashIndex)
	require.True(t, b.Valid())

	b.Add([]byte("beta"), maxRestartSupportedByHashIndex+1)
	require.False(t, b.Valid())

	// Further adds are dropped while invalid.
	b.Add([]byte("gamma"), 0)
	require.Equal(t, 1, len(b.entries))

	// Clear revalidates the builder and keeps the configured ratio.
	b.Clear()
	require.True(t, b.Valid())
	for i := 0; i < 4; i++ {
		b.Add([]byte(fmt.Sprintf("key%d", i)), 0)
	}
	buf := b.Finish(nil)
	require.Equal(t, uint16(9), binary.LittleEndian.Uint16(buf[len(buf)-2:]))
}

func TestHashIndexBuilderBucketCap(t *testing.T) {
	// The bucket count saturates at what a two byte length can describe.
	var b HashIndexBuilder
	b.Init(0.75)
	for i := 0; i < 60000; i++ {
		b.Add([]byte(fmt.Sprintf("key%06d", i)), 0)
	}
	require.Equal(t, 65535+2, b.EstimatedSize())

	buf := b.Finish(nil)
	require.Equal(t, 65535+2, len(buf))
	require.Equal(t, uint16(65535), binary.LittleEndian.Uint16(buf[len(buf)-2:]))
}
