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

import "github.com/jtolds/gls"

// contextMgr backs the implicit per-goroutine LogContext stack (design
// notes' "thread-local context"): Go has no thread-locals, so the teacher's
// own `gls.Go` goroutine-spawn wrapper's underlying package is pressed
// into service for the stronger job of actually carrying a value, not just
// propagating it across one goroutine hop.
var contextMgr = gls.NewContextManager()

const contextGlsKey = "dlog.context"

// LogContext is the implicit state a SpanScope pushes/pops: the active
// span context and the instrumentation scope name records inherit when
// neither is passed explicitly (spec §4.10/Design Notes).
type LogContext struct {
	Span  SpanContext
	Scope string
}

// CurrentContext returns the calling goroutine's active LogContext, or the
// zero value if no SpanScope is active on it.
func CurrentContext() LogContext {
	if v, ok := contextMgr.GetValue(contextGlsKey); ok {
		return v.(LogContext)
	}
	return LogContext{}
}

// withContext runs fn with ctx installed as the current goroutine's
// LogContext, restoring whatever was there before once fn returns.
func withContext(ctx LogContext, fn func()) {
	contextMgr.SetValues(gls.Values{contextGlsKey: ctx}, fn)
}

// GoWithContext spawns fn on a new goroutine that inherits the caller's
// current LogContext, the way spec.md's spans are expected to follow a
// logical operation across a goroutine hand-off (mirrors the teacher's
// `gls.Go` call sites in storage/compute.go, but carries an explicit value
// instead of only a goroutine-local call stack).
func GoWithContext(fn func()) {
	ctx := CurrentContext()
	gls.Go(func() {
		withContext(ctx, fn)
	})
}
