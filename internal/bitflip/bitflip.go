// Package bitflip searches corrupt data for single-bit flips, a common
// signature of failing hardware.
package bitflip

// checkLimit bounds how many bytes of a buffer are searched.
const checkLimit = 40 << 10

// CheckSliceForBitFlip flips each bit of data in turn and reports whether the
// checksum then matches, along with the byte index and bit of the first
// match. data is unmodified on return.
func CheckSliceForBitFlip(
	data []byte, computeChecksum func([]byte) uint32, expectedChecksum uint32,
) (found bool, indexFound int, bitFound int) {
	n := min(len(data), checkLimit)
	for i := 0; i < n; i++ {
		for bit := 0; bit < 8; bit++ {
			data[i] ^= 1 << bit
			computed := computeChecksum(data)
			data[i] ^= 1 << bit
			if computed == expectedChecksum {
				return true, i, bit
			}
		}
	}
	return false, 0, 0
}
