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

import "runtime"

// Log allocates, encodes, and publishes one log record, below-threshold
// calls short-circuiting before the record is ever sized or a bus slot is
// even requested (spec §4.7's "record port" fast path). The owner context
// (instrumentation scope + span) comes from the calling goroutine's
// implicit LogContext, set up by WithSpan/GoWithContext.
func (f *LogFabric) Log(sev Severity, message string, args ...LoggableArg) error {
	return f.logAt(sev, message, args, 3)
}

// callerAttributes captures the reserved source-file/line/function-name
// attributes the way a typical structured logger auto-populates them.
func callerAttributes(skip int) Attributes {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}
	attrs := Attributes{
		ResourceSourceFile: StringValue(file),
		ResourceSourceLine: Int64Value(int64(line)),
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		attrs[ResourceFunctionName] = StringValue(fn.Name())
	}
	return attrs
}

func (f *LogFabric) Trace(message string, args ...LoggableArg) error {
	return f.logAt(SeverityTrace, message, args, 3)
}
func (f *LogFabric) Debug(message string, args ...LoggableArg) error {
	return f.logAt(SeverityDebug, message, args, 3)
}
func (f *LogFabric) Info(message string, args ...LoggableArg) error {
	return f.logAt(SeverityInfo, message, args, 3)
}
func (f *LogFabric) Warn(message string, args ...LoggableArg) error {
	return f.logAt(SeverityWarn, message, args, 3)
}
func (f *LogFabric) Error(message string, args ...LoggableArg) error {
	return f.logAt(SeverityError, message, args, 3)
}
func (f *LogFabric) Fatal(message string, args ...LoggableArg) error {
	return f.logAt(SeverityFatal, message, args, 3)
}

// logAt implements every severity-named entry point and Log itself, with
// skip tuned so callerAttributes reports the application call site rather
// than one of these wrappers.
func (f *LogFabric) logAt(sev Severity, message string, args []LoggableArg, skip int) error {
	if sev < f.DefaultThreshold() {
		return nil
	}
	ctx := CurrentContext()
	owner := OwnerContext{
		Scope:    ctx.Scope,
		HasScope: ctx.Scope != "",
		Span:     ctx.Span,
		HasSpan:  ctx.Span.Valid(),
	}
	r := LogRecord{
		Severity:  sev,
		Owner:     owner,
		Timestamp: f.clock.Now(),
		Message:   message,
		Args:      args,
		Attrs:     callerAttributes(skip),
	}
	size := SizeOfLogRecord(r)
	guard, err := f.AllocateRecordBufferInplace(uint32(size), ctx.Span.SpanID.spread())
	if err != nil {
		return err
	}
	EncodeLogRecord(guard.Emitter(), r)
	guard.Sync()
	return nil
}
