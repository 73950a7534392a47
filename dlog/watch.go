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
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces a burst of catalog writes (every rotation
// touches the file twice, once per stream) into a single prune pass.
const debounceWindow = 250 * time.Millisecond

// CatalogWatcher watches the directory holding a FileDatabase's file and
// runs PruneMessageBuses whenever the catalog changes, catching crashed
// producers' orphaned bus files without a dedicated poll loop (spec §4.5
// "crash recovery").
type CatalogWatcher struct {
	db   *FileDatabase
	path string
	w    *fsnotify.Watcher
	done chan struct{}
}

// WatchCatalog starts watching db's backing file's parent directory.
func WatchCatalog(db *FileDatabase, catalogPath string) (*CatalogWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, wrapErr(Bad, "WatchCatalog", err)
	}
	dir := filepath.Dir(catalogPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, wrapErr(Bad, "WatchCatalog.Add", err)
	}
	cw := &CatalogWatcher{db: db, path: filepath.Clean(catalogPath), w: w, done: make(chan struct{})}
	go cw.loop()
	return cw, nil
}

func (cw *CatalogWatcher) loop() {
	var pending *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path {
				continue
			}
			if pending == nil {
				pending = time.AfterFunc(debounceWindow, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				pending.Reset(debounceWindow)
			}
		case <-fire:
			cw.db.PruneMessageBuses()
		case _, ok := <-cw.w.Errors:
			if !ok {
				return
			}
		case <-cw.done:
			if pending != nil {
				pending.Stop()
			}
			return
		}
	}
}

// Close stops the watcher.
func (cw *CatalogWatcher) Close() error {
	close(cw.done)
	return cw.w.Close()
}
