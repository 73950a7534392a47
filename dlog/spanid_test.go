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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSpanIDIsDeterministic(t *testing.T) {
	a := deriveSpanID(1, 2, 3)
	b := deriveSpanID(1, 2, 3)
	require.Equal(t, a, b)
}

// Property 5: distinct (trace, counter) inputs produce distinct span ids
// with negligible collision probability within a region.
func TestDeriveSpanIDDistinctInputsRarelyCollide(t *testing.T) {
	const n = 20000
	seen := make(map[SpanID]struct{}, n)
	for ctr := uint64(0); ctr < n; ctr++ {
		id := deriveSpanID(0xabc123, 0xdef456, ctr)
		_, dup := seen[id]
		require.False(t, dup, "collision at ctr=%d", ctr)
		seen[id] = struct{}{}
	}
}

func TestDeriveSpanIDVariesWithTraceComponents(t *testing.T) {
	a := deriveSpanID(1, 2, 3)
	b := deriveSpanID(1, 2, 4)
	c := deriveSpanID(1, 99, 3)
	d := deriveSpanID(99, 2, 3)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
	require.NotEqual(t, a, d)
}
