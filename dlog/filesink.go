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
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/go-units"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/launix-de/logbus/persistence"
)

// targetBufferSize is the FileSinkBackend's default page-aligned output
// buffer size (spec §4.8.x).
const targetBufferSize = 64 * 1024

// ParseFileSize parses a human-readable size ("64MiB", "1GB", ...) for
// max_file_size configuration, the way operators size rotation thresholds.
func ParseFileSize(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, wrapErr(InvalidArgument, "ParseFileSize", err)
	}
	return uint64(n), nil
}

// ArchiveCodec selects the compression applied to a container file once
// it is rotated out of active use (not part of the core spec, but a
// natural extension point alongside the pack's lz4/xz codecs).
type ArchiveCodec uint8

const (
	ArchiveNone ArchiveCodec = iota
	ArchiveLZ4
	ArchiveXZ
)

// archiveFile compresses path in place (writing path+extension, then
// removing the original) using the configured codec. Best-effort: a
// failure here never blocks rotation; archiveAndStore, its caller, drops
// the error and leaves the original file in place.
func archiveFile(path string, codec ArchiveCodec) error {
	if codec == ArchiveNone {
		return nil
	}
	src, err := os.Open(path)
	if err != nil {
		return wrapErr(Bad, "archiveFile.open", err)
	}
	defer src.Close()

	ext := ".lz4"
	if codec == ArchiveXZ {
		ext = ".xz"
	}
	dst, err := os.Create(path + ext)
	if err != nil {
		return wrapErr(Bad, "archiveFile.create", err)
	}

	var w io.WriteCloser
	switch codec {
	case ArchiveLZ4:
		w = lz4.NewWriter(dst)
	case ArchiveXZ:
		xw, err := xz.NewWriter(dst)
		if err != nil {
			dst.Close()
			return wrapErr(Bad, "archiveFile.xz", err)
		}
		w = xw
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		dst.Close()
		return wrapErr(Bad, "archiveFile.copy", err)
	}
	if err := w.Close(); err != nil {
		dst.Close()
		return wrapErr(Bad, "archiveFile.close", err)
	}
	if err := dst.Close(); err != nil {
		return wrapErr(Bad, "archiveFile.close", err)
	}
	return os.Remove(path)
}

// archiveAndStore runs a rotated-out file through compression (if
// configured) and then a remote backend (if configured), removing the
// local copy once it's safely off to the backend. Runs on its own
// goroutine from rotate(), so a slow upload never stalls the sink.
func (b *FileSinkBackend) archiveAndStore(path string) {
	local := path
	if b.archive != ArchiveNone {
		if err := archiveFile(path, b.archive); err != nil {
			return
		}
		ext := ".lz4"
		if b.archive == ArchiveXZ {
			ext = ".xz"
		}
		local = path + ext
	}
	if b.remote == nil {
		return
	}
	f, err := os.Open(local)
	if err != nil {
		return
	}
	defer f.Close()
	if err := b.remote.Store(filepath.Base(local), f); err != nil {
		return
	}
	f.Close()
	os.Remove(local)
}

func sizeOfEpochInfo(e EpochInfo) int {
	return sizeOfHead(2) + sizeOfUint(e.SystemReference) + sizeOfUint(e.SteadyReference)
}

func encodeEpochInfo(e *Emitter, info EpochInfo) {
	EncodeArrayHeader(e, 2)
	EncodeUint(e, info.SystemReference)
	EncodeUint(e, info.SteadyReference)
}

func decodeEpochInfo(p *Parser) (EpochInfo, error) {
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return EpochInfo{}, err
	}
	if n != 2 {
		return EpochInfo{}, newErr(TupleSizeMismatch, "decodeEpochInfo")
	}
	var info EpochInfo
	if info.SystemReference, err = DecodeUint(p); err != nil {
		return EpochInfo{}, err
	}
	if info.SteadyReference, err = DecodeUint(p); err != nil {
		return EpochInfo{}, err
	}
	return info, nil
}

// FileSinkBackend is an append-mode file wrapped in a page-aligned
// double-buffered writer, with rotation as an extension point (spec
// §4.8.x).
type FileSinkBackend struct {
	mu sync.Mutex

	pattern     string
	sinkID      uint64
	clock       *LogClock
	headerAttrs Attributes
	archive     ArchiveCodec
	remote      persistence.Backend

	// rotation policy, consulted by maybeRotate; only a DB-tracked sink
	// (catalog set) rotates, once writtenSize exceeds maxFileSize, so a
	// zero maxFileSize rotates at every Sync that follows written data.
	catalog     *FileDatabase
	maxFileSize uint64
	lastEpoch   EpochInfo

	file        *os.File
	path        string
	rotation    uint64
	writtenSize uint64

	buf  []byte
	used int
}

// FileSinkOption configures NewFileSinkBackend.
type FileSinkOption func(*FileSinkBackend)

// WithCatalog makes the backend DB-tracked: container files are created
// through catalog, and rotation updates the catalog with each file's
// final size (spec §4.8.x "DB-tracking variant").
func WithCatalog(catalog *FileDatabase, maxFileSize uint64) FileSinkOption {
	return func(b *FileSinkBackend) {
		b.catalog = catalog
		b.maxFileSize = maxFileSize
	}
}

// WithArchive enables best-effort compression of each rotated-out file.
func WithArchive(codec ArchiveCodec) FileSinkOption {
	return func(b *FileSinkBackend) { b.archive = codec }
}

// WithRemoteArchive hands each rotated-out (and, if WithArchive is also
// set, compressed) file to a cold-storage backend once rotation
// completes, then removes the local copy. Best-effort, like compression:
// a failed upload leaves the local file in place rather than losing it.
func WithRemoteArchive(backend persistence.Backend) FileSinkOption {
	return func(b *FileSinkBackend) { b.remote = backend }
}

// WithHeaderAttributes sets the record container header's attribute_map
// (key 23).
func WithHeaderAttributes(attrs Attributes) FileSinkOption {
	return func(b *FileSinkBackend) { b.headerAttrs = attrs }
}

// NewFileSinkBackend allocates the output buffer and performs the first
// rotation (spec §4.8.x "initialize").
func NewFileSinkBackend(pattern string, sinkID uint64, clock *LogClock, opts ...FileSinkOption) (*FileSinkBackend, error) {
	b := &FileSinkBackend{
		pattern: pattern,
		sinkID:  sinkID,
		clock:   clock,
		buf:     make([]byte, targetBufferSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.rotate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileSinkBackend) flush() error {
	if b.used == 0 {
		return nil
	}
	n, err := b.file.Write(b.buf[:b.used])
	b.writtenSize += uint64(n)
	b.used = 0
	if err != nil {
		return wrapErr(Bad, "FileSinkBackend.flush", err)
	}
	return nil
}

// write implements the do_grow / do_bulk_write split from spec §4.8.x as
// a single method: small writes buffer, writes at least half the buffer's
// size bypass it entirely after a flush.
func (b *FileSinkBackend) write(p []byte) error {
	if len(p) >= len(b.buf)/2 {
		if err := b.flush(); err != nil {
			return err
		}
		n, err := b.file.Write(p)
		b.writtenSize += uint64(n)
		if err != nil {
			return wrapErr(Bad, "FileSinkBackend.write", err)
		}
		return nil
	}
	if b.used+len(p) > len(b.buf) {
		if err := b.flush(); err != nil {
			return err
		}
	}
	copy(b.buf[b.used:], p)
	b.used += len(p)
	return nil
}

// Consume appends one message's raw bytes (spec §4.8.x).
func (b *FileSinkBackend) Consume(raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(raw)
}

// Sync flushes the buffer, restores it to the target size, and invokes
// the rotation check (spec §4.8.x "do_sync_output").
func (b *FileSinkBackend) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.flush(); err != nil {
		return err
	}
	if cap(b.buf) != targetBufferSize {
		b.buf = make([]byte, targetBufferSize)
	}
	return b.maybeRotate()
}

// maybeRotate rotates when the DB-tracked variant's size threshold is
// exceeded or the clock's epoch was re-synchronized since the last
// rotation (spec §4.8.x).
func (b *FileSinkBackend) maybeRotate() error {
	if b.catalog == nil {
		return nil
	}
	epochChanged := b.clock != nil && b.clock.Epoch() != b.lastEpoch
	if b.writtenSize > b.maxFileSize || epochChanged {
		return b.rotate()
	}
	return nil
}

// rotate closes the current file (if any), opens the next one, and
// writes its container header (spec §4.8.x).
func (b *FileSinkBackend) rotate() error {
	if b.file != nil {
		if err := b.write([]byte{majorSimp | simpleBreak}); err != nil {
			return err
		}
		if err := b.flush(); err != nil {
			return err
		}
		closedPath := b.path
		closedSize := b.writtenSize
		if err := b.file.Close(); err != nil {
			return wrapErr(Bad, "FileSinkBackend.rotate.close", err)
		}
		if b.catalog != nil {
			if err := b.catalog.UpdateRecordContainerSize(closedPath, closedSize); err != nil {
				return err
			}
		}
		if b.archive != ArchiveNone || b.remote != nil {
			go b.archiveAndStore(closedPath)
		}
	}

	b.rotation++
	var f *os.File
	var path string
	if b.catalog != nil {
		var entry RecordContainerEntry
		var err error
		f, entry, err = b.catalog.CreateRecordContainer(b.pattern, b.sinkID)
		if err != nil {
			return err
		}
		path = entry.Path
	} else {
		path = expandNamePattern(b.pattern, nameParams{ID: uuidString(), Ctr: b.rotation, Now: wallNow()})
		var err error
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return wrapErr(Bad, "FileSinkBackend.rotate.create", err)
		}
	}
	b.file = f
	b.path = path
	b.writtenSize = 0
	if b.clock != nil {
		b.lastEpoch = b.clock.Epoch()
	}

	size := sizeOfHead(3) + sizeOfUint(containerHeaderKeyVersion) + sizeOfUint(currentContainerVersion) +
		sizeOfUint(containerHeaderKeyEpoch) + sizeOfEpochInfo(b.lastEpoch) +
		sizeOfUint(containerHeaderKeyAttrs) + sizeOfAttributes(b.headerAttrs)
	e := NewEmitter(len(recordContainerMagic) + size + 1)
	e.write(recordContainerMagic)
	EncodeMapHeader(e, 3)
	EncodeUint(e, containerHeaderKeyVersion)
	EncodeUint(e, currentContainerVersion)
	EncodeUint(e, containerHeaderKeyEpoch)
	encodeEpochInfo(e, b.lastEpoch)
	EncodeUint(e, containerHeaderKeyAttrs)
	EncodeAttributes(e, b.headerAttrs)
	EncodeIndefiniteArrayHeader(e)
	return b.write(e.Bytes())
}

// Finalize writes the closing break, flushes, and returns the final file
// size (spec §4.8.x "finalize").
func (b *FileSinkBackend) Finalize() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.write([]byte{majorSimp | simpleBreak}); err != nil {
		return 0, err
	}
	if err := b.flush(); err != nil {
		return 0, err
	}
	size := b.writtenSize
	if b.catalog != nil {
		if err := b.catalog.UpdateRecordContainerSize(b.path, size); err != nil {
			return 0, err
		}
	}
	if err := b.file.Close(); err != nil {
		return 0, wrapErr(SinkFinalizationFailed, "FileSinkBackend.Finalize", err)
	}
	return size, nil
}
