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

// RecordOutputGuard is the producer-side handle on a reserved bus slot
// (spec §4.4). Callers write into the buffer returned by Emitter(), then
// call Sync to release the slot to the consumer. Go has no destructors,
// so unlike the C++ RAII guard, Sync must be called explicitly — the
// logging entry points in logger.go and span.go call Sync right after
// encoding into the slot.
type RecordOutputGuard struct {
	r            *region
	headerOffset uint32
	payloadSize  uint32
	buf          []byte
	synced       bool
}

func newRecordOutputGuard(r *region, headerOffset, payloadSize uint32) *RecordOutputGuard {
	start := headerOffset + busBlockSize
	return &RecordOutputGuard{
		r:            r,
		headerOffset: headerOffset,
		payloadSize:  payloadSize,
		buf:          r.payload()[start : start+payloadSize],
	}
}

// Emitter returns a codec Emitter that writes directly into the reserved
// slot; its capacity exactly matches the allocation so no growth ever
// occurs.
func (g *RecordOutputGuard) Emitter() *Emitter {
	return &Emitter{buf: g.buf[:0]}
}

// Sync clears the header's lock flag with release semantics, publishing
// the message to the consumer (spec §4.2 step 5, §4.4).
func (g *RecordOutputGuard) Sync() {
	if g.synced {
		return
	}
	g.r.releaseLock(g.headerOffset, g.payloadSize)
	g.synced = true
}
