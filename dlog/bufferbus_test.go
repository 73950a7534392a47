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

func TestBufferBusAllocateAndDrainPreservesOrderAndContent(t *testing.T) {
	bb := NewBufferBus(pageSize)

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range payloads {
		guard, err := bb.Allocate(uint32(len(p)))
		require.NoError(t, err)
		copy(guard.buf, p)
	}

	var got [][]byte
	require.NoError(t, bb.Drain(func(b []byte) {
		got = append(got, append([]byte(nil), b...))
	}))
	require.Equal(t, payloads, got)
}

func TestBufferBusDrainResetsWriteOffsetForReuse(t *testing.T) {
	bb := NewBufferBus(pageSize)
	guard, err := bb.Allocate(5)
	require.NoError(t, err)
	copy(guard.buf, []byte("hello"))

	var firstDrain [][]byte
	require.NoError(t, bb.Drain(func(b []byte) { firstDrain = append(firstDrain, b) }))
	require.Len(t, firstDrain, 1)

	require.Equal(t, uint32(0), bb.writeOffset)

	// The buffer must be reusable after a drain.
	guard2, err := bb.Allocate(3)
	require.NoError(t, err)
	copy(guard2.buf, []byte("bye"))
	var secondDrain [][]byte
	require.NoError(t, bb.Drain(func(b []byte) { secondDrain = append(secondDrain, append([]byte(nil), b...)) }))
	require.Equal(t, [][]byte{[]byte("bye")}, secondDrain)
}

func TestBufferBusAllocateRejectsOversizeRequest(t *testing.T) {
	bb := NewBufferBus(pageSize)
	_, err := bb.Allocate(uint32(pageSize) + 1)
	require.Error(t, err)
	require.Equal(t, NotEnoughSpace, codeOf(err))
}

func TestBufferBusDrainOnEmptyBufferIsNoop(t *testing.T) {
	bb := NewBufferBus(pageSize)
	called := false
	require.NoError(t, bb.Drain(func(b []byte) { called = true }))
	require.False(t, called)
}
