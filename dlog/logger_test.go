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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogBelowThresholdShortCircuitsWithoutAllocating(t *testing.T) {
	f := newTestFabric(t)
	f.AttachSink(NewBasicSinkFrontend(SeverityError, &fakeSinkBackend{}))

	require.NoError(t, f.Info("should not be queued"))

	f.RetireLogRecords()
	// Nothing was ever allocated onto the bus, so a drain finds nothing.
	entries := drainSpanStarts(f.bus)
	require.Empty(t, entries)
}

func TestLogAboveThresholdIsPublishedWithArgsAndMessage(t *testing.T) {
	f := newTestFabric(t)
	backend := &fakeSinkBackend{}
	f.AttachSink(NewBasicSinkFrontend(SeverityTrace, backend))

	require.NoError(t, f.Warn("disk at {pct}%", NamedIntArg("pct", 91)))
	f.RetireLogRecords()

	require.Len(t, backend.consumed, 1)
	rec, err := DecodeLogRecord(NewParser(backend.consumed[0]))
	require.NoError(t, err)
	require.Equal(t, SeverityWarn, rec.Severity)
	require.Equal(t, "disk at {pct}%", rec.Message)
	require.Len(t, rec.Args, 1)
	require.Equal(t, "pct", rec.Args[0].Name)
}

func TestLogCapturesCallerSourceFile(t *testing.T) {
	f := newTestFabric(t)
	backend := &fakeSinkBackend{}
	f.AttachSink(NewBasicSinkFrontend(SeverityTrace, backend))

	require.NoError(t, f.Error("boom"))
	f.RetireLogRecords()

	require.Len(t, backend.consumed, 1)
	rec, err := DecodeLogRecord(NewParser(backend.consumed[0]))
	require.NoError(t, err)
	sourceFile, ok := rec.Attrs[ResourceSourceFile]
	require.True(t, ok)
	require.True(t, strings.HasSuffix(sourceFile.Str, "logger_test.go"))
}

func TestLogCarriesCurrentSpanAsOwner(t *testing.T) {
	f := newTestFabric(t)
	backend := &fakeSinkBackend{}
	f.AttachSink(NewBasicSinkFrontend(SeverityTrace, backend))

	var loggedOwner OwnerContext
	err := f.WithSpan("work", SpanKindInternal, func(ctx SpanContext) {
		require.NoError(t, f.Info("inside span"))
		f.RetireLogRecords()
		rec, err := DecodeLogRecord(NewParser(backend.consumed[len(backend.consumed)-1]))
		require.NoError(t, err)
		loggedOwner = rec.Owner
		require.Equal(t, ctx, loggedOwner.Span)
	})
	require.NoError(t, err)
	require.True(t, loggedOwner.HasSpan)
}
