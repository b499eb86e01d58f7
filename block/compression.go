// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/rowblk/internal/base"
	"github.com/cockroachdb/rowblk/internal/compression"
)

// Compression is the per-block compression algorithm to use.
type Compression int

// The available compression types.
const (
	DefaultCompression Compression = iota
	NoCompression
	SnappyCompression
	ZstdCompression
	MinlzCompression
	NCompression
)

// String implements fmt.Stringer, returning a human-readable name for the
// compression algorithm.
func (c Compression) String() string {
	switch c {
	case DefaultCompression:
		return "Default"
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	case ZstdCompression:
		return "ZSTD"
	case MinlzCompression:
		return "Minlz"
	default:
		return "Unknown"
	}
}

// CompressionFromString returns a Compression from its string representation.
// Inverse of c.String() above.
func CompressionFromString(s string) Compression {
	switch s {
	case "Default":
		return DefaultCompression
	case "NoCompression":
		return NoCompression
	case "Snappy":
		return SnappyCompression
	case "ZSTD":
		return ZstdCompression
	case "Minlz":
		return MinlzCompression
	default:
		return DefaultCompression
	}
}

// algorithm returns the compression algorithm a setting selects. The default
// is snappy.
func (c Compression) algorithm() compression.Algorithm {
	switch c {
	case DefaultCompression, SnappyCompression:
		return compression.Snappy
	case NoCompression:
		return compression.None
	case ZstdCompression:
		return compression.Zstd
	case MinlzCompression:
		return compression.MinLZ
	default:
		panic(errors.Newf("unknown compression setting: %d", int(c)))
	}
}

// CompressionIndicator is the byte stored physically within the block.Trailer
// to indicate the compression type.
type CompressionIndicator byte

// The block type gives the per-block compression format. These constants are
// part of the file format and should not be changed. They are different from
// the Compression constants because the latter are designed so that the zero
// value of the Compression type means to use the default compression (which
// is snappy). Not all compression types listed here are supported.
const (
	NoCompressionIndicator     CompressionIndicator = 0
	SnappyCompressionIndicator CompressionIndicator = 1
	ZlibCompressionIndicator   CompressionIndicator = 2
	Bzip2CompressionIndicator  CompressionIndicator = 3
	Lz4CompressionIndicator    CompressionIndicator = 4
	Lz4hcCompressionIndicator  CompressionIndicator = 5
	XpressCompressionIndicator CompressionIndicator = 6
	ZstdCompressionIndicator   CompressionIndicator = 7
	MinlzCompressionIndicator  CompressionIndicator = 8
)

// String implements fmt.Stringer.
func (i CompressionIndicator) String() string {
	switch i {
	case 0:
		return "none"
	case 1:
		return "snappy"
	case 2:
		return "zlib"
	case 3:
		return "bzip2"
	case 4:
		return "lz4"
	case 5:
		return "lz4hc"
	case 6:
		return "xpress"
	case 7:
		return "zstd"
	case 8:
		return "minlz"
	default:
		panic(errors.Newf("unknown block type: %d", i))
	}
}

// SafeValue implements redact.SafeValue.
func (i CompressionIndicator) SafeValue() {}

func (i CompressionIndicator) algorithm() compression.Algorithm {
	switch i {
	case NoCompressionIndicator:
		return compression.None
	case SnappyCompressionIndicator:
		return compression.Snappy
	case ZstdCompressionIndicator:
		return compression.Zstd
	case MinlzCompressionIndicator:
		return compression.MinLZ
	default:
		panic(errors.Newf("unsupported block type: %s", i))
	}
}

func compressionIndicatorFromAlgorithm(algo compression.Algorithm) CompressionIndicator {
	switch algo {
	case compression.None:
		return NoCompressionIndicator
	case compression.Snappy:
		return SnappyCompressionIndicator
	case compression.Zstd:
		return ZstdCompressionIndicator
	case compression.MinLZ:
		return MinlzCompressionIndicator
	default:
		panic(errors.Newf("unknown compression algorithm: %s", algo))
	}
}

// DecompressedLen returns the length of the provided block once decompressed,
// allowing the caller to allocate a buffer exactly sized to the decompressed
// payload.
func DecompressedLen(algo CompressionIndicator, b []byte) (decompressedLen int, err error) {
	return compression.GetDecompressor(algo.algorithm()).DecompressedLen(b)
}

// DecompressInto decompresses compressed into buf. The buf slice must have the
// exact size as the decompressed value. Callers may use DecompressedLen to
// determine the correct size.
func DecompressInto(algo CompressionIndicator, compressed []byte, buf []byte) error {
	err := compression.GetDecompressor(algo.algorithm()).DecompressInto(buf, compressed)
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	return nil
}

// Decompress decompresses an entire block, allocating a buffer of exactly the
// decompressed length. Uncompressed blocks are returned unchanged.
func Decompress(algo CompressionIndicator, b []byte) ([]byte, error) {
	if algo == NoCompressionIndicator {
		return b, nil
	}
	decompressedLen, err := DecompressedLen(algo, b)
	if err != nil {
		return nil, err
	}
	decompressed := make([]byte, decompressedLen)
	if err := DecompressInto(algo, b, decompressed); err != nil {
		return nil, err
	}
	return decompressed, nil
}

// PhysicalBlock represents a block (possibly compressed) as it is stored
// physically on disk, including its trailer.
type PhysicalBlock struct {
	// data contains the possibly compressed block data.
	data    []byte
	trailer Trailer
}

// NewPhysicalBlock returns a new PhysicalBlock with the provided block data.
// The trailer is set from the last TrailerLen bytes of the block. The data
// could be compressed.
func NewPhysicalBlock(data []byte) PhysicalBlock {
	trailer := Trailer(data[len(data)-TrailerLen:])
	data = data[:len(data)-TrailerLen]
	return PhysicalBlock{data: data, trailer: trailer}
}

// LengthWithTrailer returns the length of the data block, including the trailer.
func (b *PhysicalBlock) LengthWithTrailer() int {
	return len(b.data) + TrailerLen
}

// LengthWithoutTrailer returns the length of the data block, excluding the trailer.
func (b *PhysicalBlock) LengthWithoutTrailer() int {
	return len(b.data)
}

// CompressionIndicator returns the compression indicator encoded in the
// block's trailer.
func (b *PhysicalBlock) CompressionIndicator() CompressionIndicator {
	return CompressionIndicator(b.trailer[0])
}

// Clone returns a deep copy of the block.
func (b PhysicalBlock) Clone() PhysicalBlock {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	return PhysicalBlock{data: data, trailer: b.trailer}
}

// WriteTo writes the block (including its trailer) to the provided writer. If
// err == nil, n is the number of bytes successfully written.
func (b *PhysicalBlock) WriteTo(w io.Writer) (n int, err error) {
	if n, err = w.Write(b.data); err != nil {
		return n, err
	}
	var m int
	m, err = w.Write(b.trailer[:])
	return n + m, err
}

// CompressAndChecksum compresses and checksums the provided block, returning
// the compressed block and its trailer. The result is appended to the dst
// argument.
//
// If the compressed block is not sufficiently smaller than the original
// block, the compressed payload is discarded and the original, uncompressed
// block data is used to avoid unnecessary decompression overhead at read
// time.
func CompressAndChecksum(
	dst *[]byte, blockData []byte, compression Compression, checksummer *Checksummer,
) PhysicalBlock {
	buf := (*dst)[:0]
	// Compress the buffer, discarding the result if the improvement isn't at
	// least 12.5%.
	indicator, buf := compress(compression, buf, blockData)
	*dst = buf

	checksum := checksummer.Checksum(buf, byte(indicator))
	return PhysicalBlock{data: buf, trailer: MakeTrailer(byte(indicator), checksum)}
}

// compress appends the compressed form of blockData to dst[:0], returning the
// indicator for the algorithm that was used. Blocks that shrink by less than
// an eighth are kept uncompressed.
func compress(c Compression, dst, blockData []byte) (CompressionIndicator, []byte) {
	algo := c.algorithm()
	out := compression.GetCompressor(algo).Compress(dst, blockData)
	if algo != compression.None && len(out) >= len(blockData)-len(blockData)/8 {
		return NoCompressionIndicator, append(out[:0], blockData...)
	}
	return compressionIndicatorFromAlgorithm(algo), out
}
