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

// SpanScope is the manual handle for a span opened without an implicit
// context: it carries the span's own context and start time so a caller
// can thread it through explicitly and close it exactly once (spec §4.10's
// span-start/span-end pair, without relying on the goroutine-local stack
// in context.go).
type SpanScope struct {
	fabric    *LogFabric
	ctx       SpanContext
	kind      SpanKind
	name      string
	start     uint64
	links     []SpanContext
	attrs     Attributes
	ended     bool
}

// Context returns the span's own context, to attach to records or to pass
// as the parent of a nested span.
func (s *SpanScope) Context() SpanContext { return s.ctx }

// StartSpan opens a span under parent and allocates/emits its SpanStart
// record immediately (spec §4.10). The caller owns the returned scope and
// must call End exactly once; Go has no destructors, so there is no
// guarantee of that beyond the caller's own defer discipline.
func (f *LogFabric) StartSpan(parent SpanContext, name string, kind SpanKind, links []SpanContext, attrs Attributes) (*SpanScope, error) {
	ctx := f.CreateSpanContext(parent)
	now := f.clock.Now()
	s := &SpanScope{fabric: f, ctx: ctx, kind: kind, name: name, start: now, links: links, attrs: attrs}
	start := SpanStart{
		Context:   ctx,
		Kind:      kind,
		Parent:    parent,
		Timestamp: now,
		Name:      name,
		Links:     links,
		Attrs:     attrs,
	}
	if err := f.emitSpanStart(start); err != nil {
		return nil, err
	}
	return s, nil
}

// End emits the span's SpanEnd record. Calling End more than once is a
// no-op, matching the idempotent-close convention used elsewhere in this
// package (e.g. RecordOutputGuard.Sync).
func (s *SpanScope) End() error {
	if s.ended {
		return nil
	}
	s.ended = true
	return s.fabric.emitSpanEnd(SpanEnd{Context: s.ctx, Timestamp: s.fabric.clock.Now()})
}

// WithSpan opens a span, installs it (and the enclosing scope name) as the
// current goroutine's implicit LogContext for the extent of fn, and closes
// the span when fn returns — the closure-based substitute Go code reaches
// for in place of C++'s RAII scope guard (spec §4.10 Design Notes). Any
// goroutine spawned from within fn via GoWithContext inherits this span as
// its parent context.
func (f *LogFabric) WithSpan(name string, kind SpanKind, fn func(ctx SpanContext)) error {
	parent := CurrentContext()
	scope, err := f.StartSpan(parent.Span, name, kind, nil, nil)
	if err != nil {
		return err
	}
	newCtx := LogContext{Span: scope.ctx, Scope: parent.Scope}
	withContext(newCtx, func() {
		fn(scope.ctx)
	})
	return scope.End()
}

// emitSpanStart sizes, allocates, and encodes a SpanStart message onto the
// bus (spec §4.7's record port, generalized from records to span events).
func (f *LogFabric) emitSpanStart(s SpanStart) error {
	size := SizeOfSpanStart(s)
	guard, err := f.AllocateRecordBufferInplace(uint32(size), s.Context.SpanID.spread())
	if err != nil {
		return err
	}
	EncodeSpanStart(guard.Emitter(), s)
	guard.Sync()
	return nil
}

// emitSpanEnd sizes, allocates, and encodes a SpanEnd message onto the bus.
func (f *LogFabric) emitSpanEnd(s SpanEnd) error {
	size := SizeOfSpanEnd(s)
	guard, err := f.AllocateRecordBufferInplace(uint32(size), s.Context.SpanID.spread())
	if err != nil {
		return err
	}
	EncodeSpanEnd(guard.Emitter(), s)
	guard.Sync()
	return nil
}
