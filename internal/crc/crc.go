// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package crc implements the checksum algorithm used throughout the block
// format: a CRC-32 over the Castagnoli polynomial whose final value is
// masked by a bit rotation and an additive constant. Masking ensures that a
// region of zeroed bytes, or a buffer that embeds checksummed data verbatim,
// cannot be mistaken for carrying a valid checksum of itself.
package crc

import "hash/crc32"

// maskDelta is added to the rotated checksum when masking. The exact value
// is part of the durable format and cannot change.
const maskDelta = 0xa282ead8

var table = crc32.MakeTable(crc32.Castagnoli)

// CRC is a running checksum state.
type CRC uint32

// New returns the checksum state resulting from processing b.
func New(b []byte) CRC {
	return CRC(0).Update(b)
}

// Update returns the checksum state resulting from processing b after the
// bytes already summed into c.
func (c CRC) Update(b []byte) CRC {
	return CRC(crc32.Update(uint32(c), table, b))
}

// Value returns the masked checksum: the raw CRC rotated right by 15 bits
// with maskDelta added, wrapping.
func (c CRC) Value() uint32 {
	return uint32(c>>15|c<<17) + maskDelta
}

// Unmask inverts Value, recovering the raw CRC from a masked checksum.
func Unmask(v uint32) uint32 {
	rot := v - maskDelta
	return rot>>17 | rot<<15
}
