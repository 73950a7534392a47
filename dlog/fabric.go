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
	"github.com/launix-de/NonLockingReadMap"
)

// PreparsedKind classifies a raw bus message by its outer tuple arity
// (spec §4.7).
type PreparsedKind uint8

const (
	KindMalformed PreparsedKind = iota
	KindRecord
	KindSpanStart
	KindSpanEnd
)

// PreparsedMessage is one bus message after the fabric's cheap
// classification pass: enough to route it to sinks without a full decode.
type PreparsedMessage struct {
	Kind      PreparsedKind
	Severity  Severity // valid only for KindRecord
	Timestamp uint64   // valid only for KindRecord
	RawData   []byte   // the full encoded message, including its consumed prefix
}

// preparseMessage classifies raw by peeking its outer array arity: 6 is a
// log record (decode severity+timestamp eagerly, skip the rest), 7 a span
// start, 2 a span end, anything else malformed (spec §4.7, and §9's
// tolerance note for legacy 5-/2-element schemas — a 5-element array is
// simply folded into "malformed" here since this implementation only
// understands the current 6-tuple record and skips unknown bodies rather
// than attempting to interpret the older shape).
func preparseMessage(raw []byte) PreparsedMessage {
	p := NewParser(raw)
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return PreparsedMessage{Kind: KindMalformed, RawData: raw}
	}
	switch n {
	case 6:
		sev, err := DecodeSeverity(p)
		if err != nil {
			return PreparsedMessage{Kind: KindMalformed, RawData: raw}
		}
		// owner context, skip
		if err := SkipItem(p); err != nil {
			return PreparsedMessage{Kind: KindMalformed, RawData: raw}
		}
		ts, err := decodeFixedTimestamp(p)
		if err != nil {
			return PreparsedMessage{Kind: KindMalformed, RawData: raw}
		}
		return PreparsedMessage{Kind: KindRecord, Severity: sev, Timestamp: ts, RawData: raw}
	case 7:
		for i := 0; i < 7; i++ {
			if err := SkipItem(p); err != nil {
				return PreparsedMessage{Kind: KindMalformed, RawData: raw}
			}
		}
		return PreparsedMessage{Kind: KindSpanStart, RawData: raw}
	case 2:
		for i := 0; i < 2; i++ {
			if err := SkipItem(p); err != nil {
				return PreparsedMessage{Kind: KindMalformed, RawData: raw}
			}
		}
		return PreparsedMessage{Kind: KindSpanEnd, RawData: raw}
	default:
		return PreparsedMessage{Kind: KindMalformed, RawData: raw}
	}
}

// sinkEntry adapts an attached SinkFrontend to NonLockingReadMap's
// KeyGetter/Sizable contract, keyed by sink id (spec §4.7 "sink
// management").
type sinkEntry struct {
	id    uint64
	front SinkFrontend
}

func (e sinkEntry) GetKey() uint64    { return e.id }
func (e sinkEntry) ComputeSize() uint { return 64 }

// LogFabric owns the bus and the set of attached sinks, and drains
// messages from the bus to the sinks (spec §4.7).
type LogFabric struct {
	bus     *Bus
	sinks   NonLockingReadMap.NonLockingReadMap[sinkEntry, uint64]
	nextID  uint64
	clock   *LogClock
}

// NewLogFabric creates a fabric over bus.
func NewLogFabric(bus *Bus) *LogFabric {
	return &LogFabric{bus: bus, sinks: NonLockingReadMap.New[sinkEntry, uint64](), clock: DefaultClock()}
}

// DefaultThreshold is the record port's configured minimum severity before
// a producer even bothers allocating a bus slot (spec §4.7's record port
// interface). The fabric currently exposes no per-scope override, so it
// mirrors the lowest active sink threshold.
func (f *LogFabric) DefaultThreshold() Severity {
	min := SeverityDisable
	for _, e := range f.sinks.GetAll() {
		if t := e.front.Threshold(); t < min {
			min = t
		}
	}
	if min == SeverityDisable {
		return SeverityTrace
	}
	return min
}

// AllocateRecordBufferInplace reserves a bus slot sized for payloadSize,
// choosing a region by spread (spec §4.7 record port interface,
// forwarding to Bus.Allocate).
func (f *LogFabric) AllocateRecordBufferInplace(payloadSize uint32, spread uint32) (*RecordOutputGuard, error) {
	return f.bus.Allocate(payloadSize, spread)
}

// CreateSpanContext forwards to the bus (spec §4.7).
func (f *LogFabric) CreateSpanContext(parent SpanContext) SpanContext {
	return f.bus.CreateSpanContext(parent)
}

// AttachSink registers frontend under a fresh id and returns that id, the
// "raw observer pointer" handed back by spec §4.7's attach operation.
func (f *LogFabric) AttachSink(frontend SinkFrontend) uint64 {
	f.nextID++
	id := f.nextID
	f.sinks.Set(&sinkEntry{id: id, front: frontend})
	return id
}

// RemoveSink drops a sink from the active list without finalizing it
// (spec §4.7 "remove: drop in place").
func (f *LogFabric) RemoveSink(id uint64) {
	f.sinks.Remove(id)
}

// DestroySink finalizes and drops a sink (spec §4.7 "destroy: finalize
// and drop").
func (f *LogFabric) DestroySink(id uint64) error {
	e := f.sinks.Get(id)
	if e == nil {
		return newErr(UnknownSink, "DestroySink")
	}
	err := e.front.TryFinalize()
	f.sinks.Remove(id)
	return err
}

// RetireLogRecords pulls up to consumeBatchSize messages from every
// region, classifies them, and fans the batch out to each surviving sink;
// inactive sinks are dropped (spec §4.7).
func (f *LogFabric) RetireLogRecords() {
	for i := 0; i < f.bus.NumRegions(); i++ {
		f.bus.DrainRegion(i, f.fanOutBatch)
	}
}

func (f *LogFabric) fanOutBatch(msgs []drainedMessage) {
	parses := make([]PreparsedMessage, len(msgs))
	totalSize := 0
	for i, m := range msgs {
		parses[i] = preparseMessage(m.payload)
		totalSize += len(m.payload)
	}
	for _, e := range f.sinks.GetAll() {
		if !e.front.Active() {
			f.sinks.Remove(e.id)
			continue
		}
		e.front.TryConsume(totalSize, parses)
	}
	for _, e := range f.sinks.GetAll() {
		if e.front.Active() {
			e.front.TrySync()
		}
	}
}
