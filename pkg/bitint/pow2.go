// SPDX-License-Identifier: MIT

/*
Package bitint provides the integer helpers used when sizing transform
frames and capture buffers.

Usage:

	// Transform sizes must be powers of two.
	ok := bitint.IsPowerOfTwo(2048)

	// Number of 512-point frames needed to cover four seconds at 48 kHz.
	frames := bitint.CeilDiv(4*48000, 512) // 375

NextPowerOfTwo subtracts one before measuring the bit length so that an
exact power of two maps to itself:

	size-1 = 7 (0111), bits.Len(7) = 3, 1<<3 = 8
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the base-2 logarithm of a power of two, or -1 if n is not one.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}

// CeilDiv returns ceil(a/b) for a >= 0 and b > 0. It returns 0 when b <= 0.
func CeilDiv(a, b int) int {
	if b <= 0 || a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
