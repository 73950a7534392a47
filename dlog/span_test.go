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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func drainSpanStarts(bus *Bus) []SpanStart {
	var out []SpanStart
	for i := 0; i < bus.NumRegions(); i++ {
		for {
			drained := false
			bus.DrainRegion(i, func(msgs []drainedMessage) {
				drained = true
				for _, m := range msgs {
					if preparseMessage(m.payload).Kind != KindSpanStart {
						continue
					}
					s, err := DecodeSpanStart(NewParser(m.payload))
					if err == nil {
						out = append(out, s)
					}
				}
			})
			if !drained {
				break
			}
		}
	}
	return out
}

// S6: span hierarchy — a child span's SpanStart carries parent=A.context
// and shares A's trace id, with a distinct span id.
func TestSpanHierarchyS6(t *testing.T) {
	bus, err := CreateBus(filepath.Join(t.TempDir(), "bus"), 1, minRegionSize*4)
	require.NoError(t, err)
	defer bus.Close()
	f := NewLogFabric(bus)

	scopeA, err := f.StartSpan(InvalidSpanContext, "root", SpanKindInternal, nil, nil)
	require.NoError(t, err)
	scopeB, err := f.StartSpan(scopeA.Context(), "child", SpanKindInternal, nil, nil)
	require.NoError(t, err)
	require.NoError(t, scopeB.End())
	require.NoError(t, scopeA.End())

	starts := drainSpanStarts(bus)
	require.Len(t, starts, 2)

	var root, child SpanStart
	for _, s := range starts {
		if s.Name == "root" {
			root = s
		} else {
			child = s
		}
	}
	require.Equal(t, scopeA.Context(), root.Context)
	require.Equal(t, scopeB.Context(), child.Context)
	require.Equal(t, scopeA.Context(), child.Parent)
	require.Equal(t, root.Context.TraceID, child.Context.TraceID)
	require.NotEqual(t, root.Context.SpanID, child.Context.SpanID)
}

func TestWithSpanInstallsAndRestoresContext(t *testing.T) {
	bus, err := CreateBus(filepath.Join(t.TempDir(), "bus"), 1, minRegionSize*2)
	require.NoError(t, err)
	defer bus.Close()
	f := NewLogFabric(bus)

	require.False(t, CurrentContext().Span.Valid())

	var insideSpan SpanContext
	err = f.WithSpan("work", SpanKindInternal, func(ctx SpanContext) {
		insideSpan = ctx
		require.Equal(t, ctx, CurrentContext().Span)
	})
	require.NoError(t, err)
	require.True(t, insideSpan.Valid())
	require.False(t, CurrentContext().Span.Valid())
}

func TestGoWithContextPropagatesSpan(t *testing.T) {
	bus, err := CreateBus(filepath.Join(t.TempDir(), "bus"), 1, minRegionSize*2)
	require.NoError(t, err)
	defer bus.Close()
	f := NewLogFabric(bus)

	done := make(chan SpanContext, 1)
	err = f.WithSpan("outer", SpanKindInternal, func(ctx SpanContext) {
		GoWithContext(func() {
			done <- CurrentContext().Span
		})
	})
	require.NoError(t, err)
	got := <-done
	require.True(t, got.Valid())
}
