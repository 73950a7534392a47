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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// S4 via the watcher path: a write to the catalog file (as a rotation
// would cause) debounces into a single PruneMessageBuses pass that removes
// an orphaned bus.
func TestCatalogWatcherPrunesOrphanedBusAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	db, err := OpenFileDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	busID := uuid.New()
	f, entry, err := db.CreateMessageBus(filepath.Join(dir, "bus-{id}.bin"), busID, messageBusMagic)
	require.NoError(t, err)
	f.Close()

	w, err := WatchCatalog(db, path)
	require.NoError(t, err)
	defer w.Close()

	// Touch the catalog file the way a retire would, to trigger the watch
	// event that schedules the debounced prune.
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now()))

	require.Eventually(t, func() bool {
		snap := db.Snapshot()
		return len(snap.MessageBuses) == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, statErr := os.Stat(entry.Path)
	require.True(t, os.IsNotExist(statErr))
}

func TestCatalogWatcherCloseStopsLoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	db, err := OpenFileDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	w, err := WatchCatalog(db, path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
