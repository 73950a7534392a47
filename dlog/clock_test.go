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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogClockNowIsMonotonicNonDecreasing(t *testing.T) {
	c := NewLogClock()
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	require.Greater(t, b, a)
}

func TestLogClockEpochToWallTimeRoundTrip(t *testing.T) {
	c := NewLogClock()
	epoch := c.Epoch()
	ts := c.Now()

	wall := epoch.ToWallTime(ts)
	wantDelta := int64(ts) - int64(epoch.SteadyReference)
	wantWall := time.Unix(0, int64(epoch.SystemReference)+wantDelta)
	require.True(t, wall.Equal(wantWall))
}

func TestLogClockTrySyncEpochPreservesNowProjection(t *testing.T) {
	c := NewLogClock()
	before := c.Now()
	c.TrySyncEpoch()
	epoch := c.Epoch()
	after := c.Now()

	require.GreaterOrEqual(t, after, before)
	// A timestamp taken right at sync should project close to the wall
	// clock observed at that same instant.
	wall := epoch.ToWallTime(epoch.SteadyReference)
	require.WithinDuration(t, time.Now(), wall, time.Second)
}

func TestDefaultClockIsSingleton(t *testing.T) {
	require.Same(t, DefaultClock(), DefaultClock())
}
