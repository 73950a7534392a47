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

// Package persistence holds cold-storage backends a rotated-out, already
// archived record container file can be handed off to, so a sink's active
// directory doesn't grow without bound. It plays the same role dlog's
// catalog/bus files play for "hot" storage, but for "cold" storage, and
// is modeled directly on memcp's pluggable PersistenceEngine backends
// (local filesystem, S3, Ceph/RADOS) with the concerns narrowed from
// schema/column/log storage down to "store, open, remove one named blob".
package persistence

import "io"

// Backend is a named-blob store: Store uploads/writes the object named by
// name, Open retrieves it, Remove deletes it. All three are best-effort
// from the caller's perspective (failures are dropped, never fatal to the
// producing sink) the way archiveFile's compression step already is.
type Backend interface {
	Store(name string, r io.Reader) error
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
}
