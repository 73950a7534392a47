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
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func pushUint32(t *testing.T, bus *Bus, id uint32, spread uint32) {
	t.Helper()
	g, err := bus.Allocate(4, spread)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(g.Emitter().buf[:4], id)
	g.Sync()
}

func drainAll(bus *Bus, idx int) []uint32 {
	var got []uint32
	for {
		drained := false
		bus.DrainRegion(idx, func(msgs []drainedMessage) {
			drained = true
			for _, m := range msgs {
				got = append(got, binary.LittleEndian.Uint32(m.payload))
			}
		})
		if !drained {
			return got
		}
	}
}

// S1: single region, 64 sequential 4-byte payloads, drained in order.
func TestBusS1SequentialInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus1")
	bus, err := CreateBus(path, 1, minRegionSize)
	require.NoError(t, err)
	defer bus.Close()

	for i := uint32(0); i < 64; i++ {
		pushUint32(t, bus, i, 0)
	}
	got := drainAll(bus, 0)
	require.Len(t, got, 64)
	for i, id := range got {
		require.Equal(t, uint32(i), id)
	}
}

// S2: two regions, 4 producers each pushing 4096 sequential ids, interleaved
// drains; the final multiset must contain every id exactly once.
func TestBusS2ConcurrentMultisetPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus2")
	bus, err := CreateBus(path, 2, minRegionSize)
	require.NoError(t, err)
	defer bus.Close()

	const producers = 4
	const perProducer = 4096

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := make(map[uint32]int)
	stopDrain := make(chan struct{})
	var drainWG sync.WaitGroup
	drainWG.Add(1)
	go func() {
		defer drainWG.Done()
		for {
			select {
			case <-stopDrain:
				// final drain pass to catch anything still pending
				for idx := 0; idx < bus.NumRegions(); idx++ {
					for {
						drained := false
						bus.DrainRegion(idx, func(msgs []drainedMessage) {
							drained = true
							mu.Lock()
							for _, m := range msgs {
								counts[binary.LittleEndian.Uint32(m.payload)]++
							}
							mu.Unlock()
						})
						if !drained {
							break
						}
					}
				}
				return
			default:
				for idx := 0; idx < bus.NumRegions(); idx++ {
					bus.DrainRegion(idx, func(msgs []drainedMessage) {
						mu.Lock()
						for _, m := range msgs {
							counts[binary.LittleEndian.Uint32(m.payload)]++
						}
						mu.Unlock()
					})
				}
			}
		}
	}()

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			base := uint32(p) * perProducer
			for i := uint32(0); i < perProducer; i++ {
				id := base + i
				g, err := bus.Allocate(4, id)
				if err != nil {
					continue
				}
				binary.LittleEndian.PutUint32(g.Emitter().buf[:4], id)
				g.Sync()
			}
		}(p)
	}
	wg.Wait()
	close(stopDrain)
	drainWG.Wait()

	require.Len(t, counts, producers*perProducer)
	for id, n := range counts {
		require.Equalf(t, 1, n, "id %d observed %d times", id, n)
	}
}

func TestBusAllocateRejectsOversizePayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus3")
	bus, err := CreateBus(path, 1, minRegionSize)
	require.NoError(t, err)
	defer bus.Close()

	_, err = bus.Allocate(maxMessageSize+1, 0)
	require.Error(t, err)
}

func TestBusAllocateAcceptsZeroLengthPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus4")
	bus, err := CreateBus(path, 1, minRegionSize)
	require.NoError(t, err)
	defer bus.Close()

	g, err := bus.Allocate(0, 0)
	require.NoError(t, err)
	g.Sync()

	count := 0
	bus.DrainRegion(0, func(msgs []drainedMessage) {
		count = len(msgs)
		require.Len(t, msgs[0].payload, 0)
	})
	require.Equal(t, 1, count)
}

// A region fully filled then fully drained must be reusable with identical
// semantics (wrap test).
func TestBusRegionWrapsAfterFullDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus5")
	bus, err := CreateBus(path, 1, minRegionSize)
	require.NoError(t, err)
	defer bus.Close()

	for round := 0; round < 3; round++ {
		for i := uint32(0); i < 32; i++ {
			pushUint32(t, bus, uint32(round)*100+i, 0)
		}
		got := drainAll(bus, 0)
		require.Len(t, got, 32)
		for i, id := range got {
			require.Equal(t, uint32(round)*100+uint32(i), id)
		}
	}
}
