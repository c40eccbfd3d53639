package hdkey

import "unicode/utf16"

// IndexFor maps an identifier to a derivation index.
//
// The hash is h = h*31 + c over the UTF-16 code units of identifier in
// wrapping 32-bit arithmetic, then the absolute value reduced modulo 2^31 so
// the result is always a valid non-hardened index. It is deterministic and
// total but not collision resistant; custody resolves collisions by probing.
func IndexFor(identifier string) uint32 {
	var h int32
	for _, c := range utf16.Encode([]rune(identifier)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return uint32(abs % (int64(MaxIndex) + 1))
}

// NextIndex returns the index probed after index when it is already taken.
func NextIndex(index uint32) uint32 {
	if index >= MaxIndex {
		return 0
	}
	return index + 1
}
