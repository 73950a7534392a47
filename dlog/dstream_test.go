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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockSizeGrowsThenPlateaus(t *testing.T) {
	require.Equal(t, int64(pageSize), blockSize(0))
	require.Equal(t, int64(2*pageSize), blockSize(1))
	require.Equal(t, int64(4*pageSize), blockSize(2))
	require.Equal(t, int64(16*pageSize), blockSize(4))
	require.Equal(t, int64(16*pageSize), blockSize(5))
	require.Equal(t, int64(16*pageSize), blockSize(6))
}

func TestBlockOffsetStreamsDoNotOverlap(t *testing.T) {
	// Stream A (even) and stream B (odd) blocks must never collide for any
	// pair of block indices within the range this test walks.
	occupied := map[int64]bool{}
	for k := 0; k < 8; k++ {
		for _, odd := range []bool{false, true} {
			start := blockOffset(k, odd)
			size := blockSize(k)
			for b := start; b < start+size; b += pageSize {
				require.False(t, occupied[b], "overlap at byte offset %d (k=%d odd=%v)", b, k, odd)
				occupied[b] = true
			}
		}
	}
}

func TestWriteStreamAndCursorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	// Span three growing blocks (1+2+4 pages) worth of data.
	data := make([]byte, pageSize+2*pageSize+4*pageSize)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, writeStream(f, false, data))

	cur := newStreamCursor(f, false)
	for {
		more, err := cur.grow()
		require.NoError(t, err)
		if !more {
			break
		}
	}
	require.GreaterOrEqual(t, len(cur.buf), len(data))
	require.Equal(t, data, cur.buf[:len(data)])
}

func TestWriteStreamStreamsDoNotInterfere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	dataA := []byte("stream-a-payload")
	dataB := []byte("stream-b-payload-longer")
	require.NoError(t, writeStream(f, false, dataA))
	require.NoError(t, writeStream(f, true, dataB))

	curA := newStreamCursor(f, false)
	_, err = curA.grow()
	require.NoError(t, err)
	require.Equal(t, dataA, curA.buf[:len(dataA)])

	curB := newStreamCursor(f, true)
	_, err = curB.grow()
	require.NoError(t, err)
	require.Equal(t, dataB, curB.buf[:len(dataB)])
}
