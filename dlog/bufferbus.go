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

// BufferBus is the single-threaded bump-allocated variant of the bus
// (spec §4.3), useful for tests and single-writer embeddings where the
// MPSC machinery in bus.go is unnecessary ceremony.
type BufferBus struct {
	buf         []byte
	writeOffset uint32
}

// NewBufferBus allocates a page-aligned buffer of the given size.
func NewBufferBus(size int) *BufferBus {
	size = (size + pageSize - 1) &^ (pageSize - 1)
	return &BufferBus{buf: make([]byte, size)}
}

// BufferBusGuard is the writable span handed back by Allocate.
type BufferBusGuard struct {
	buf []byte
}

// Emitter returns a codec Emitter over the reserved payload span.
func (g *BufferBusGuard) Emitter() *Emitter { return &Emitter{buf: g.buf[:0]} }

// Allocate frames payloadSize with a CBOR byte-string header carrying the
// length, then bump-allocates the payload span after it (spec §4.3).
func (bb *BufferBus) Allocate(payloadSize uint32) (*BufferBusGuard, error) {
	headerSize := uint32(sizeOfUint(uint64(payloadSize)))
	remaining := uint32(len(bb.buf)) - bb.writeOffset
	if headerSize+payloadSize > remaining {
		return nil, newErr(NotEnoughSpace, "BufferBus.Allocate")
	}
	e := &Emitter{buf: bb.buf[bb.writeOffset:bb.writeOffset]}
	encodeHead(e, majorBstr, uint64(payloadSize))
	payloadStart := bb.writeOffset + uint32(len(e.Bytes()))
	bb.writeOffset = payloadStart + payloadSize
	return &BufferBusGuard{buf: bb.buf[payloadStart : payloadStart+payloadSize]}, nil
}

// Drain parses the buffer's byte-string-framed messages linearly, feeding
// each to consume as a single-element batch, then overwrites the consumed
// region with the null item byte pattern and resets the write offset
// (spec §4.3).
func (bb *BufferBus) Drain(consume func([]byte)) error {
	if bb.writeOffset == 0 {
		return nil
	}
	p := NewParser(bb.buf[:bb.writeOffset])
	for p.Remaining() > 0 {
		b, err := DecodeBytes(p)
		if err != nil {
			return err
		}
		consume(b)
	}
	nullByte := byte(majorSimp | simpleNull)
	for i := uint32(0); i < bb.writeOffset; i++ {
		bb.buf[i] = nullByte
	}
	bb.writeOffset = 0
	return nil
}
