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
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFabric(t *testing.T) *LogFabric {
	t.Helper()
	bus, err := CreateBus(filepath.Join(t.TempDir(), "bus"), 1, minRegionSize*2)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })
	return NewLogFabric(bus)
}

func pushRecord(t *testing.T, f *LogFabric, sev Severity, message string) {
	t.Helper()
	r := LogRecord{Severity: sev, Message: message}
	size := SizeOfLogRecord(r)
	guard, err := f.AllocateRecordBufferInplace(uint32(size), 0)
	require.NoError(t, err)
	EncodeLogRecord(guard.Emitter(), r)
	guard.Sync()
}

func TestLogFabricDefaultThresholdWithNoSinksIsTrace(t *testing.T) {
	f := newTestFabric(t)
	require.Equal(t, SeverityTrace, f.DefaultThreshold())
}

func TestLogFabricDefaultThresholdTracksLowestSink(t *testing.T) {
	f := newTestFabric(t)
	f.AttachSink(NewBasicSinkFrontend(SeverityError, &fakeSinkBackend{}))
	f.AttachSink(NewBasicSinkFrontend(SeverityWarn, &fakeSinkBackend{}))
	require.Equal(t, SeverityWarn, f.DefaultThreshold())
}

func TestLogFabricRetireFansOutAndFiltersByThreshold(t *testing.T) {
	f := newTestFabric(t)
	backend := &fakeSinkBackend{}
	id := f.AttachSink(NewBasicSinkFrontend(SeverityWarn, backend))

	pushRecord(t, f, SeverityInfo, "below threshold")
	pushRecord(t, f, SeverityError, "above threshold")

	f.RetireLogRecords()

	require.Len(t, backend.consumed, 1)
	rec, err := DecodeLogRecord(NewParser(backend.consumed[0]))
	require.NoError(t, err)
	require.Equal(t, "above threshold", rec.Message)
	require.Equal(t, 1, backend.syncCount)

	require.NoError(t, f.DestroySink(id))
	require.True(t, backend.finalized)
}

func TestLogFabricRetireDropsInactiveSinks(t *testing.T) {
	f := newTestFabric(t)
	backend := &fakeSinkBackend{consumeErr: errors.New("boom")}
	f.AttachSink(NewBasicSinkFrontend(SeverityTrace, backend))

	pushRecord(t, f, SeverityError, "anything")
	f.RetireLogRecords()

	// The sink latched an error on first consume and must be dropped from
	// the active set on the next retire pass.
	pushRecord(t, f, SeverityError, "more")
	f.RetireLogRecords()
	require.Len(t, backend.consumed, 1)
}

func TestLogFabricRemoveSinkSkipsFinalize(t *testing.T) {
	f := newTestFabric(t)
	backend := &fakeSinkBackend{}
	id := f.AttachSink(NewBasicSinkFrontend(SeverityTrace, backend))
	f.RemoveSink(id)
	require.False(t, backend.finalized)
	require.Error(t, f.DestroySink(id))
}
