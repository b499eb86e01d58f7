// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/rowblk/internal/base"
	"github.com/klauspost/compress/zstd"
)

type zstdCompressor zstd.Encoder

var _ Compressor = (*zstdCompressor)(nil)

func (z *zstdCompressor) Compress(dst, src []byte) []byte {
	// The payload is prefixed with a varint encoding the length of the
	// decompressed block.
	if len(dst) < binary.MaxVarintLen64 {
		dst = append(dst, make([]byte, binary.MaxVarintLen64-len(dst))...)
	}
	varIntLen := binary.PutUvarint(dst, uint64(len(src)))
	return (*zstd.Encoder)(z).EncodeAll(src, dst[:varIntLen])
}

type zstdDecompressor zstd.Decoder

var _ Decompressor = (*zstdDecompressor)(nil)

func (z *zstdDecompressor) DecompressInto(dst, src []byte) error {
	decodedLen, varIntLen := binary.Uvarint(src)
	if varIntLen <= 0 {
		return base.CorruptionErrorf("compression block has invalid length")
	}
	src = src[varIntLen:]
	result, err := (*zstd.Decoder)(z).DecodeAll(src, dst[:0])
	if err != nil {
		return err
	}
	if uint64(len(result)) != decodedLen || (len(result) > 0 && &result[0] != &dst[0]) {
		return base.CorruptionErrorf("decompressed into unexpected buffer: %p != %p",
			errors.Safe(result), errors.Safe(dst))
	}
	return nil
}

func (z *zstdDecompressor) DecompressedLen(b []byte) (decompressedLen int, err error) {
	decodedLenU64, varIntLen := binary.Uvarint(b)
	if varIntLen <= 0 {
		return 0, base.CorruptionErrorf("compression block has invalid length")
	}
	return int(decodedLenU64), nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use of EncodeAll and
// DecodeAll, so a single instance of each is shared by all callers.
var (
	zstdCompressorOnce sync.Once
	zstdCompressorVal  *zstdCompressor

	zstdDecompressorOnce sync.Once
	zstdDecompressorVal  *zstdDecompressor
)

func getZstdCompressor() *zstdCompressor {
	zstdCompressorOnce.Do(func() {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err)
		}
		zstdCompressorVal = (*zstdCompressor)(encoder)
	})
	return zstdCompressorVal
}

func getZstdDecompressor() *zstdDecompressor {
	zstdDecompressorOnce.Do(func() {
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		zstdDecompressorVal = (*zstdDecompressor)(decoder)
	})
	return zstdDecompressorVal
}
