/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package dlog

// These constants and the mixing sequence below are an xxHash64 derivative
// (spec §3 "Span id derivation"): same five primes and avalanche as
// xxHash64, but a bespoke per-lane fold instead of stock block processing.
// Reproduced exactly, plain left shifts and all (not rotations: the
// original's `acc <<= 31` and `acc = (acc << 27) * PRIME64_1` discard the
// high bits rather than wrapping them around), so span ids derived from a
// given (traceIdP0, traceIdP1, counter) triple are bit-for-bit identical to
// this wire format's origin implementation.
const (
	prime64_1      uint64 = 0x9e3779b185ebca87
	prime64_2      uint64 = 0xc2b2ae3d27d4eb4f
	prime64_3      uint64 = 0x165667b19e3779f9
	prime64_4      uint64 = 0x85ebca77c2b2ae63
	prime64_5fixed uint64 = 0x27d4eb2f165667c5
)

func xxHash64Round(acc, lane uint64) uint64 {
	acc += lane * prime64_2
	acc <<= 31
	return acc * prime64_1
}

// deriveSpanID hashes (traceIdP0, traceIdP1, ctr) into a child span id
// using an atomically-incremented per-region counter (spec §3/§4.2).
func deriveSpanID(traceIDP0, traceIDP1, ctr uint64) SpanID {
	acc := prime64_5fixed
	acc += 3 * 8 // input length in bytes, as the original counts 3 uint64 lanes

	acc ^= xxHash64Round(0, traceIDP0)
	acc = (acc << 27) * prime64_1
	acc += prime64_4

	acc ^= xxHash64Round(0, traceIDP1)
	acc = (acc << 27) * prime64_1
	acc += prime64_4

	acc ^= xxHash64Round(0, ctr)
	acc = (acc << 27) * prime64_1
	acc += prime64_4

	// avalanche
	acc ^= acc >> 33
	acc *= prime64_2
	acc ^= acc >> 29
	acc *= prime64_3
	acc ^= acc >> 32

	return spanIDFromUint64(acc)
}
