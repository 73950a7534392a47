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
	"sync/atomic"
	"time"
)

// EpochInfo bridges the monotonic LogClock to wall-clock time (spec §4.9).
// It is persisted in each record container header (attribute map key 4)
// so that records can be re-projected to wall time during analysis.
type EpochInfo struct {
	SystemReference uint64 // wall clock, ns since Unix epoch, at capture time
	SteadyReference uint64 // LogClock.Now() at the same instant
}

// LogClock is a monotonic, high-resolution nanosecond counter with a
// lazily-synchronized bridge to wall-clock time.
type LogClock struct {
	epoch atomic.Value // holds EpochInfo
	start time.Time    // process-local monotonic reference point
}

// NewLogClock captures the initial epoch_info at program start.
func NewLogClock() *LogClock {
	c := &LogClock{start: time.Now()}
	c.epoch.Store(EpochInfo{
		SystemReference: uint64(c.start.UnixNano()),
		SteadyReference: 0,
	})
	return c
}

// Now returns nanoseconds since the clock's monotonic epoch (spec §4.9).
func (c *LogClock) Now() uint64 {
	return uint64(time.Since(c.start).Nanoseconds())
}

// Epoch returns the currently published epoch_info snapshot.
func (c *LogClock) Epoch() EpochInfo {
	return c.epoch.Load().(EpochInfo)
}

// TrySyncEpoch atomically refreshes the system (wall-clock) reference so
// that Epoch().SystemReference tracks NTP corrections etc. without
// disturbing the monotonic counter itself.
func (c *LogClock) TrySyncEpoch() {
	now := c.Now()
	c.epoch.Store(EpochInfo{
		SystemReference: uint64(time.Now().UnixNano()),
		SteadyReference: now,
	})
}

// ToWallTime re-projects a LogClock timestamp to wall-clock time using the
// given epoch_info, as the analysis side would when reading back a
// container file.
func (e EpochInfo) ToWallTime(ts uint64) time.Time {
	deltaNS := int64(ts) - int64(e.SteadyReference)
	return time.Unix(0, int64(e.SystemReference)+deltaNS)
}

var defaultClock = NewLogClock()

// DefaultClock returns the process-wide LogClock used when callers don't
// supply their own (e.g. for tests that need a deterministic clock).
func DefaultClock() *LogClock { return defaultClock }
