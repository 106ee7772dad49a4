// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pagemath provides the integer helpers the page-release engine
// uses for its geometry arithmetic: round-up/round-down to arbitrary
// boundaries and ceiling division (which divide), rounding up to a power
// of two, and the log2 / most-significant-bit queries that let PageMap
// address its counters with shifts and masks instead of division.
package pagemath

import "math/bits"

// RoundUp rounds x up to the nearest multiple of align, which need not be a
// power of two. Precondition: align > 0.
func RoundUp(x, align uint64) uint64 {
	if align == 0 {
		panic("pagemath: RoundUp align must be > 0")
	}
	return CeilDiv(x, align) * align
}

// RoundDown rounds x down to the nearest multiple of align, which need not
// be a power of two. Precondition: align > 0.
func RoundDown(x, align uint64) uint64 {
	if align == 0 {
		panic("pagemath: RoundDown align must be > 0")
	}
	return (x / align) * align
}

// CeilDiv returns ceil(x / y). Precondition: y > 0.
func CeilDiv(x, y uint64) uint64 {
	if y == 0 {
		panic("pagemath: CeilDiv divisor must be > 0")
	}
	return (x + y - 1) / y
}

// RoundUpPowerOfTwo rounds x up to the nearest power of two. RoundUpPowerOfTwo(0) == 1.
func RoundUpPowerOfTwo(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	return uint64(1) << bits.Len64(x-1)
}

// IsPowerOfTwo reports whether x is a power of two. 0 is not a power of two.
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && x&(x-1) == 0
}

// Log2 returns the base-2 logarithm of x. Precondition: x is a power of two
// and x > 0.
func Log2(x uint64) uint64 {
	if x == 0 || !IsPowerOfTwo(x) {
		panic("pagemath: Log2 argument must be a positive power of two")
	}
	return uint64(bits.TrailingZeros64(x))
}

// MostSignificantSetBitIndex returns the index (0-based, from the LSB) of
// the highest set bit in x. Precondition: x != 0.
func MostSignificantSetBitIndex(x uint64) uint64 {
	if x == 0 {
		panic("pagemath: MostSignificantSetBitIndex argument must be nonzero")
	}
	return uint64(bits.Len64(x) - 1)
}
