// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package block provides the physical envelope around serialized blocks:
// checksums, compression, the block trailer, and the read-side transforms
// applied when iterating over a block's contents.
package block

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/rowblk/internal/base"
	"github.com/cockroachdb/rowblk/internal/bitflip"
	"github.com/cockroachdb/rowblk/internal/crc"
)

// TrailerLen is the length of the trailer at the end of a block.
const TrailerLen = 5

// Trailer is the trailer at the end of a block, encoding the block type
// (compression) and a checksum.
type Trailer = [TrailerLen]byte

// MakeTrailer constructs a trailer from a block type and a checksum.
func MakeTrailer(blockType byte, checksum uint32) (t Trailer) {
	t[0] = blockType
	binary.LittleEndian.PutUint32(t[1:5], checksum)
	return t
}

// ChecksumType specifies the checksum used for blocks.
type ChecksumType byte

// The available checksum types. These values are part of the durable format
// and should not be changed.
const (
	ChecksumTypeNone     ChecksumType = 0
	ChecksumTypeCRC32c   ChecksumType = 1
	ChecksumTypeXXHash   ChecksumType = 2
	ChecksumTypeXXHash64 ChecksumType = 3
)

// String implements fmt.Stringer.
func (t ChecksumType) String() string {
	switch t {
	case ChecksumTypeCRC32c:
		return "crc32c"
	case ChecksumTypeNone:
		return "none"
	case ChecksumTypeXXHash:
		return "xxhash"
	case ChecksumTypeXXHash64:
		return "xxhash64"
	default:
		panic(errors.Newf("unknown checksum type: %d", t))
	}
}

// SafeValue implements redact.SafeValue.
func (t ChecksumType) SafeValue() {}

// A Checksummer calculates checksums for blocks.
type Checksummer struct {
	Type         ChecksumType
	xxHasher     *xxhash.Digest
	blockTypeBuf [1]byte
}

// Checksum computes a checksum over the provided block and block type.
func (c *Checksummer) Checksum(block []byte, blockType byte) (checksum uint32) {
	c.blockTypeBuf[0] = blockType
	switch c.Type {
	case ChecksumTypeCRC32c:
		checksum = crc.New(block).Update(c.blockTypeBuf[:]).Value()
	case ChecksumTypeXXHash64:
		if c.xxHasher == nil {
			c.xxHasher = xxhash.New()
		} else {
			c.xxHasher.Reset()
		}
		c.xxHasher.Write(block)
		c.xxHasher.Write(c.blockTypeBuf[:])
		checksum = uint32(c.xxHasher.Sum64())
	default:
		panic(errors.Newf("unsupported checksum type: %d", c.Type))
	}
	return checksum
}

// ValidateChecksum validates the checksum of a block. b holds the block data
// followed by its trailer.
func ValidateChecksum(checksumType ChecksumType, b []byte) error {
	if len(b) < TrailerLen {
		return base.CorruptionErrorf("block too short to hold a trailer (%d bytes)",
			errors.Safe(len(b)))
	}
	// The checksum is computed over the block data plus the single
	// compression-indicator byte that leads the trailer.
	checksummed := b[:len(b)-TrailerLen+1]
	expectedChecksum := binary.LittleEndian.Uint32(b[len(b)-TrailerLen+1:])
	var computedChecksum uint32
	switch checksumType {
	case ChecksumTypeCRC32c:
		computedChecksum = crc.New(checksummed).Value()
	case ChecksumTypeXXHash64:
		computedChecksum = uint32(xxhash.Sum64(checksummed))
	default:
		return errors.Errorf("unsupported checksum type: %d", checksumType)
	}
	if expectedChecksum != computedChecksum {
		// Check if the mismatch was due to a singular bit flip and report it.
		data := slices.Clone(checksummed)
		var checksumFn func([]byte) uint32
		switch checksumType {
		case ChecksumTypeCRC32c:
			checksumFn = func(data []byte) uint32 {
				return crc.New(data).Value()
			}
		case ChecksumTypeXXHash64:
			checksumFn = func(data []byte) uint32 {
				return uint32(xxhash.Sum64(data))
			}
		}
		found, indexFound, bitFound := bitflip.CheckSliceForBitFlip(data, checksumFn, expectedChecksum)
		err := base.CorruptionErrorf("block: %s checksum mismatch %x != %x",
			checksumType, expectedChecksum, computedChecksum)
		if found {
			err = errors.WithSafeDetails(err, ". bit flip found: byte index %d. got: %x. want: %x.",
				errors.Safe(indexFound), errors.Safe(data[indexFound]),
				errors.Safe(data[indexFound]^(1<<bitFound)))
		}
		return err
	}
	return nil
}
