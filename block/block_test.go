// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block_test

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/cockroachdb/rowblk/block"
	"github.com/cockroachdb/rowblk/internal/base"
	"github.com/stretchr/testify/require"
)

func TestMakeTrailer(t *testing.T) {
	trailer := block.MakeTrailer(byte(block.SnappyCompressionIndicator), 0xdeadbeef)
	require.Equal(t, block.Trailer{0x01, 0xef, 0xbe, 0xad, 0xde}, trailer)
}

func TestChecksumRoundTrip(t *testing.T) {
	payload := []byte("some block payload")
	for _, typ := range []block.ChecksumType{block.ChecksumTypeCRC32c, block.ChecksumTypeXXHash64} {
		t.Run(typ.String(), func(t *testing.T) {
			checksummer := block.Checksummer{Type: typ}
			sum := checksummer.Checksum(payload, byte(block.NoCompressionIndicator))
			trailer := block.MakeTrailer(byte(block.NoCompressionIndicator), sum)

			physical := append(append([]byte(nil), payload...), trailer[:]...)
			require.NoError(t, block.ValidateChecksum(typ, physical))

			// Corrupt a single bit of the payload. The resulting error
			// message carries the mismatch; the bit flip diagnosis travels
			// as safe details.
			physical[3] ^= 1 << 5
			err := block.ValidateChecksum(typ, physical)
			require.Error(t, err)
			require.True(t, base.IsCorruptionError(err))
			require.Contains(t, err.Error(), "checksum mismatch")
		})
	}
}

func TestValidateChecksumShortBlock(t *testing.T) {
	err := block.ValidateChecksum(block.ChecksumTypeCRC32c, []byte{0x01, 0x02})
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))
}

func TestCompressAndChecksum(t *testing.T) {
	// Highly repetitive, so every real algorithm achieves the required
	// reduction.
	payload := bytes.Repeat([]byte("a run of compressible block data. "), 64)

	for _, tc := range []struct {
		compression block.Compression
		indicator   block.CompressionIndicator
	}{
		{block.NoCompression, block.NoCompressionIndicator},
		{block.SnappyCompression, block.SnappyCompressionIndicator},
		{block.ZstdCompression, block.ZstdCompressionIndicator},
		{block.MinlzCompression, block.MinlzCompressionIndicator},
		{block.DefaultCompression, block.SnappyCompressionIndicator},
	} {
		t.Run(tc.compression.String(), func(t *testing.T) {
			var buf []byte
			checksummer := block.Checksummer{Type: block.ChecksumTypeCRC32c}
			pb := block.CompressAndChecksum(&buf, payload, tc.compression, &checksummer)
			require.Equal(t, tc.indicator, pb.CompressionIndicator())
			if tc.compression != block.NoCompression {
				require.Less(t, pb.LengthWithoutTrailer(), len(payload))
			}

			var physical bytes.Buffer
			n, err := pb.WriteTo(&physical)
			require.NoError(t, err)
			require.Equal(t, pb.LengthWithTrailer(), n)

			b := physical.Bytes()
			require.NoError(t, block.ValidateChecksum(block.ChecksumTypeCRC32c, b))

			reread := block.NewPhysicalBlock(b)
			require.Equal(t, tc.indicator, reread.CompressionIndicator())
			decompressed, err := block.Decompress(
				reread.CompressionIndicator(), b[:len(b)-block.TrailerLen])
			require.NoError(t, err)
			require.Equal(t, payload, decompressed)
		})
	}
}

func TestCompressAndChecksumIncompressible(t *testing.T) {
	// Uniformly random payloads do not achieve the minimum 12.5% reduction,
	// so the block is stored uncompressed regardless of the setting.
	rng := rand.New(rand.NewPCG(0, 17))
	payload := make([]byte, 1<<10)
	for i := range payload {
		payload[i] = byte(rng.Uint32())
	}

	for _, compression := range []block.Compression{
		block.SnappyCompression, block.ZstdCompression, block.MinlzCompression,
	} {
		t.Run(compression.String(), func(t *testing.T) {
			var buf []byte
			checksummer := block.Checksummer{Type: block.ChecksumTypeCRC32c}
			pb := block.CompressAndChecksum(&buf, payload, compression, &checksummer)
			require.Equal(t, block.NoCompressionIndicator, pb.CompressionIndicator())
			require.Equal(t, len(payload), pb.LengthWithoutTrailer())
		})
	}
}

func TestCompressionString(t *testing.T) {
	for _, s := range []string{"Default", "NoCompression", "Snappy", "ZSTD", "Minlz"} {
		require.Equal(t, s, block.CompressionFromString(s).String())
	}
	require.Equal(t, block.DefaultCompression, block.CompressionFromString("unknown"))

	var names []string
	for i := block.NoCompressionIndicator; i <= block.MinlzCompressionIndicator; i++ {
		names = append(names, i.String())
	}
	require.Equal(t, "none,snappy,zlib,bzip2,lz4,lz4hc,xpress,zstd,minlz",
		strings.Join(names, ","))
}

func TestNoTransforms(t *testing.T) {
	transforms := block.NoTransforms
	require.True(t, transforms.NoTransforms())
	transforms.SyntheticSeqNum = block.SyntheticSeqNum(7)
	require.False(t, transforms.NoTransforms())
}
