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
	"sync/atomic"
)

// minRegionSize is the smallest region that can hold a one-byte message:
// the control block, one header block and one payload block.
var minRegionSize = uint32(regionHeaderSize) + busBlockSize + roundUpBlock(1)

// BusInfo is the bus file's head-area descriptor (spec §3/§6).
type BusInfo struct {
	NumRegions uint32
	RegionSize uint32
}

// Bus is the multi-producer, single-consumer shared-memory ring described
// in spec §4.2: a memory-mapped file divided into fixed-size regions, each
// an independent lock-free ring.
type Bus struct {
	file    *os.File
	mapped  []byte
	info    BusInfo
	regions []region
}

func busFileSize(info BusInfo) int64 {
	return int64(busHeadSize) + int64(info.NumRegions)*int64(info.RegionSize)
}

// CreateBus initializes a new bus file: magic, bus_info, and
// sentinel-filled, zero-control-block regions (spec §4.2's create()).
// regionSize is rounded up to a multiple of the page size.
func CreateBus(path string, numRegions int, regionSize uint32) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, wrapErr(Bad, "CreateBus", err)
	}
	bus, err := InitBus(f, numRegions, regionSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return bus, nil
}

// InitBus writes a fresh bus header and sentinel-filled, zero-control-block
// regions onto an already-open file (spec §4.2's create()), so a bus can be
// initialized directly on top of a file FileDatabase.CreateMessageBus just
// created — making the catalog's registered path the literal mmap bus file,
// rather than a separate registration placeholder, so PruneMessageBuses'
// crash-recovery drain can later OpenBus it (spec §4.5). regionSize is
// rounded up to a multiple of the page size.
func InitBus(f *os.File, numRegions int, regionSize uint32) (*Bus, error) {
	regionSize = (regionSize + pageSize - 1) &^ (pageSize - 1)
	if regionSize < minRegionSize {
		regionSize = pageSize
	}
	info := BusInfo{NumRegions: uint32(numRegions), RegionSize: regionSize}

	if err := lockExclusive(f, lockDeadline); err != nil {
		return nil, err
	}
	size := busFileSize(info)
	if err := f.Truncate(size); err != nil {
		return nil, wrapErr(Bad, "InitBus.Truncate", err)
	}

	head := make([]byte, busHeadSize)
	copy(head, messageBusMagic)
	e := NewEmitter(18)
	EncodeUint(e, uint64(info.NumRegions))
	EncodeUint(e, uint64(info.RegionSize))
	copy(head[len(messageBusMagic):], e.Bytes())
	if _, err := f.WriteAt(head, 0); err != nil {
		return nil, wrapErr(Bad, "InitBus.header", err)
	}

	mapped, err := mmapFile(f, int(size))
	if err != nil {
		return nil, wrapErr(NotEnoughMemory, "InitBus.mmap", err)
	}
	regions := make([]region, numRegions)
	for i := range regions {
		off := busHeadSize + i*int(regionSize)
		regions[i] = region{buf: mapped[off : off+int(regionSize)]}
		initRegion(regions[i].buf)
	}
	return &Bus{file: f, mapped: mapped, info: info, regions: regions}, nil
}

// OpenBus maps an existing bus file, validating its magic and bus_info.
func OpenBus(path string) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, wrapErr(Bad, "OpenBus", err)
	}
	head := make([]byte, len(messageBusMagic)+2*9)
	if _, err := f.ReadAt(head, 0); err != nil {
		f.Close()
		return nil, wrapErr(InvalidRecordContainerHeader, "OpenBus.read", err)
	}
	for i, b := range messageBusMagic {
		if head[i] != b {
			f.Close()
			return nil, newErr(InvalidRecordContainerHeader, "OpenBus.magic")
		}
	}
	p := NewParser(head[len(messageBusMagic):])
	numRegions, err := DecodeUint(p)
	if err != nil {
		f.Close()
		return nil, err
	}
	regionSize, err := DecodeUint(p)
	if err != nil {
		f.Close()
		return nil, err
	}
	info := BusInfo{NumRegions: uint32(numRegions), RegionSize: uint32(regionSize)}
	size := busFileSize(info)
	mapped, err := mmapFile(f, int(size))
	if err != nil {
		f.Close()
		return nil, wrapErr(NotEnoughMemory, "OpenBus.mmap", err)
	}
	regions := make([]region, info.NumRegions)
	for i := range regions {
		off := busHeadSize + i*int(info.RegionSize)
		regions[i] = region{buf: mapped[off : off+int(info.RegionSize)]}
	}
	return &Bus{file: f, mapped: mapped, info: info, regions: regions}, nil
}

// Close unmaps and closes the bus file.
func (b *Bus) Close() error {
	munmapRegion(b.mapped)
	return b.file.Close()
}

// NumRegions reports the region count.
func (b *Bus) NumRegions() int { return len(b.regions) }

// hashToIndex maps a 32-bit spread value into [0, n) using Lemire's
// multiply-shift method (spec §4.2 step 2).
func hashToIndex(spread uint32, n uint32) uint32 {
	return uint32((uint64(spread) * uint64(n)) >> 32)
}

// Allocate reserves payloadSize bytes starting from the region chosen by
// spread, advancing to subsequent regions on NotEnoughSpace until every
// region has been tried once (spec §4.2 steps 1-3).
func (b *Bus) Allocate(payloadSize uint32, spread uint32) (*RecordOutputGuard, error) {
	if payloadSize > maxMessageSize {
		return nil, newErr(NotEnoughSpace, "Bus.Allocate")
	}
	n := uint32(len(b.regions))
	if n == 0 {
		return nil, newErr(InvalidArgument, "Bus.Allocate")
	}
	start := hashToIndex(spread, n)
	idx := start
	for {
		r := &b.regions[idx]
		off, ok := r.allocate(payloadSize)
		if ok {
			r.commitHeader(off, payloadSize)
			return newRecordOutputGuard(r, off, payloadSize), nil
		}
		idx = (idx + 1) % n
		if idx == start {
			return nil, newErr(NotEnoughSpace, "Bus.Allocate")
		}
	}
}

// CreateSpanContext derives a new span context for a span opened under
// parent (spec §4.2/§4.10): if the parent has a valid trace id it is
// reused and the region is chosen from the parent's span id; otherwise a
// fresh random trace id is drawn and the region is chosen from a hash of
// its bytes. The child span id is derived from the chosen region's counter.
func (b *Bus) CreateSpanContext(parent SpanContext) SpanContext {
	var traceID TraceID
	var spread uint32
	if parent.TraceID.Valid() {
		traceID = parent.TraceID
		spread = parent.SpanID.spread()
	} else {
		traceID = RandomTraceID()
		w0, w1, w2, w3 := traceID.hashWords()
		spread = w0 ^ w1 ^ w2 ^ w3
	}
	idx := hashToIndex(spread, uint32(len(b.regions)))
	r := &b.regions[idx]
	ctr := atomic.AddUint64(r.spanCtr(), 1)
	p0, p1 := traceID.p0p1()
	spanID := deriveSpanID(p0, p1, ctr)
	return SpanContext{TraceID: traceID, SpanID: spanID}
}

// DrainRegion pulls up to consumeBatchSize ready messages from region idx,
// invokes consume with the batch, then reclaims the drained slots (spec
// §4.2 "Consumer path").
func (b *Bus) DrainRegion(idx int, consume func([]drainedMessage)) {
	r := &b.regions[idx]
	msgs, newReadPos, advanced := r.drainBatch()
	if len(msgs) == 0 {
		return
	}
	consume(msgs)
	r.finishDrain(msgs, newReadPos, advanced)
}
