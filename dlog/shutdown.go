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

import "github.com/dc0d/onexit"

// RegisterShutdown hooks a process-exit handler that drains every pending
// message one last time, finalizes every attached sink, and (if db and
// busEntry are both non-nil) removes the bus's entry from the catalog.
// The bus file itself is not deleted (spec §4.5 "crash recovery", §4.8
// sink lifecycle). Mirrors the teacher's own
// `onexit.Register(func() {...})` cleanup-hook idiom.
func RegisterShutdown(fabric *LogFabric, db *FileDatabase, busEntry *MessageBusEntry) {
	onexit.Register(func() {
		fabric.RetireLogRecords()
		for _, e := range fabric.sinks.GetAll() {
			e.front.TryFinalize()
		}
		if db != nil && busEntry != nil {
			db.RemoveMessageBus(busEntry.ID)
		}
	})
}
