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

// SinkBackend is the I/O layer a BasicSinkFrontend streams preparsed
// message bytes to (spec §4.8 GLOSSARY "Sink backend").
type SinkBackend interface {
	Consume(raw []byte) error
	Sync() error
	// Finalize closes the backend for good and returns the final byte size
	// written, if that concept applies to the backend.
	Finalize() (uint64, error)
}

// SinkFrontend is the policy layer over a backend: severity threshold and
// an active/inactive error latch (spec §4.8).
type SinkFrontend interface {
	Active() bool
	Threshold() Severity
	TryConsume(binarySize int, parses []PreparsedMessage)
	TrySync()
	TryFinalize() error
}

// BasicSinkFrontend implements SinkFrontend by filtering record messages
// below threshold and streaming every surviving message's raw bytes to a
// backend (spec §4.8 "BasicSinkFrontend<Backend>").
type BasicSinkFrontend struct {
	threshold Severity
	status    error
	backend   SinkBackend
}

// NewBasicSinkFrontend wraps backend with a severity threshold.
func NewBasicSinkFrontend(threshold Severity, backend SinkBackend) *BasicSinkFrontend {
	return &BasicSinkFrontend{threshold: threshold, backend: backend}
}

// Active reports whether the frontend still accepts messages: no latched
// error and not administratively disabled.
func (f *BasicSinkFrontend) Active() bool {
	return f.status == nil && f.threshold != SeverityDisable
}

// Threshold returns the frontend's current severity floor.
func (f *BasicSinkFrontend) Threshold() Severity { return f.threshold }

// Status returns the first latched error, if any.
func (f *BasicSinkFrontend) Status() error { return f.status }

func (f *BasicSinkFrontend) latch(err error) {
	if err != nil && f.status == nil {
		f.status = err
	}
}

// TryConsume streams every message whose kind isn't a below-threshold
// record to the backend, latching the first error (spec §4.8).
func (f *BasicSinkFrontend) TryConsume(binarySize int, parses []PreparsedMessage) {
	if !f.Active() {
		return
	}
	for _, pm := range parses {
		if pm.Kind == KindRecord && pm.Severity < f.threshold {
			continue
		}
		if err := f.backend.Consume(pm.RawData); err != nil {
			f.latch(err)
			return
		}
	}
}

// TrySync flushes the backend, latching any error.
func (f *BasicSinkFrontend) TrySync() {
	if !f.Active() {
		return
	}
	f.latch(f.backend.Sync())
}

// TryFinalize finalizes the backend; on success the threshold is raised
// to SeverityDisable so the frontend permanently stops accepting messages
// (spec §4.8).
func (f *BasicSinkFrontend) TryFinalize() error {
	if !f.Active() {
		return f.status
	}
	_, err := f.backend.Finalize()
	f.latch(err)
	if err == nil {
		f.threshold = SeverityDisable
	}
	return err
}
