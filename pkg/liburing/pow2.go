package liburing

import "math/bits"

// RoundupPow2 returns the smallest power of two not below n, treating zero
// as one. Ring capacities handed to the kernel are always powers of two;
// the mask based slot indexing depends on it.
func RoundupPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}

// FloorPow2 returns the largest power of two not above n, zero for zero.
func FloorPow2(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return 1 << (bits.Len32(n) - 1)
}
