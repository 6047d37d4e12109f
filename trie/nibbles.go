package trie

// Keys are navigated nibble-wise: each key byte expands to two 4-bit digits,
// giving branch nodes a fan-out of 16.

// keyToNibbles expands a key into one nibble per byte.
func keyToNibbles(key []byte) []byte {
	out := make([]byte, len(key)*2)
	for i, b := range key {
		out[i*2] = b >> 4
		out[i*2+1] = b & 0x0f
	}
	return out
}

// packNibbles packs a nibble slice into bytes, two nibbles per byte. An odd
// trailing nibble occupies the high half of the last byte.
func packNibbles(nibbles []byte) []byte {
	out := make([]byte, (len(nibbles)+1)/2)
	for i, n := range nibbles {
		if i%2 == 0 {
			out[i/2] = n << 4
		} else {
			out[i/2] |= n & 0x0f
		}
	}
	return out
}

// unpackNibbles reverses packNibbles given the original nibble count.
func unpackNibbles(packed []byte, count int) []byte {
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		if i%2 == 0 {
			out[i] = packed[i/2] >> 4
		} else {
			out[i] = packed[i/2] & 0x0f
		}
	}
	return out
}

// commonPrefixLen returns the length of the shared prefix of two nibble
// slices.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// hasNibblePrefix reports whether s starts with prefix.
func hasNibblePrefix(s, prefix []byte) bool {
	return len(s) >= len(prefix) && commonPrefixLen(s, prefix) == len(prefix)
}
