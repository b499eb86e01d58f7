// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package coding implements the integer encodings shared by the block
// format: little-endian base-128 varints (1-5 bytes for 32-bit values, 1-10
// bytes for 64-bit values, continuation bit in the high bit of every byte
// but the last), fixed-width little-endian integers, and varint
// length-prefixed byte strings.
//
// Decoders are checked: they never read past the end of the input and
// report truncated or out-of-range encodings through their ok return value
// rather than panicking.
package coding

import "encoding/binary"

// AppendUvarint32 appends the varint encoding of v to buf, returning the
// extended buffer.
func AppendUvarint32(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// AppendUvarint64 appends the varint encoding of v to buf, returning the
// extended buffer.
func AppendUvarint64(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

// DecodeUvarint32 decodes a varint-encoded uint32 from the start of buf and
// returns the value along with the unconsumed remainder of the buffer. It
// returns ok=false if buf ends partway through an encoding, if the encoding
// occupies more than 5 bytes, or if the encoded value does not fit in 32
// bits; buf is returned unconsumed in that case.
func DecodeUvarint32(buf []byte) (v uint32, rest []byte, ok bool) {
	if len(buf) > 0 && buf[0] < 0x80 {
		return uint32(buf[0]), buf[1:], true
	}
	for i, shift := 0, uint(0); i < len(buf) && shift <= 28; i, shift = i+1, shift+7 {
		b := buf[i]
		if b < 0x80 {
			if shift == 28 && b > 0x0f {
				// The final byte would set bits above bit 31.
				break
			}
			return v | uint32(b)<<shift, buf[i+1:], true
		}
		v |= uint32(b&0x7f) << shift
	}
	return 0, buf, false
}

// DecodeUvarint64 decodes a varint-encoded uint64 from the start of buf and
// returns the value along with the unconsumed remainder of the buffer. It
// returns ok=false on a truncated encoding or one exceeding 64 bits.
func DecodeUvarint64(buf []byte) (v uint64, rest []byte, ok bool) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, buf, false
	}
	return v, buf[n:], true
}

// UvarintLen32 returns the number of bytes AppendUvarint32 would use to
// encode v.
func UvarintLen32(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// UvarintLen64 returns the number of bytes AppendUvarint64 would use to
// encode v.
func UvarintLen64(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// AppendUint16 appends v to buf as 2 little-endian bytes.
func AppendUint16(buf []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, v)
}

// AppendUint32 appends v to buf as 4 little-endian bytes.
func AppendUint32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

// AppendUint64 appends v to buf as 8 little-endian bytes.
func AppendUint64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

// DecodeUint16 decodes 2 little-endian bytes from the start of buf.
func DecodeUint16(buf []byte) (v uint16, rest []byte, ok bool) {
	if len(buf) < 2 {
		return 0, buf, false
	}
	return binary.LittleEndian.Uint16(buf), buf[2:], true
}

// DecodeUint32 decodes 4 little-endian bytes from the start of buf.
func DecodeUint32(buf []byte) (v uint32, rest []byte, ok bool) {
	if len(buf) < 4 {
		return 0, buf, false
	}
	return binary.LittleEndian.Uint32(buf), buf[4:], true
}

// DecodeUint64 decodes 8 little-endian bytes from the start of buf.
func DecodeUint64(buf []byte) (v uint64, rest []byte, ok bool) {
	if len(buf) < 8 {
		return 0, buf, false
	}
	return binary.LittleEndian.Uint64(buf), buf[8:], true
}

// AppendBytes appends s to buf prefixed with its varint-encoded length.
func AppendBytes(buf, s []byte) []byte {
	buf = AppendUvarint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// DecodeBytes decodes a varint length-prefixed byte string from the start
// of buf. The returned slice aliases buf and has its capacity clipped so
// appends by the caller cannot clobber adjacent encodings.
func DecodeBytes(buf []byte) (s, rest []byte, ok bool) {
	n, rem, ok := DecodeUvarint32(buf)
	if !ok || uint64(n) > uint64(len(rem)) {
		return nil, buf, false
	}
	return rem[:n:n], rem[n:], true
}
