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
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
)

func wallNow() time.Time { return time.Now() }

// RecordContainerEntry is one row of the catalog's record_containers table
// (spec §6).
type RecordContainerEntry struct {
	SinkID   uint64
	Rotation uint64
	ByteSize uint64
	Path     string
}

// MessageBusEntry is one row of the catalog's message_buses table (spec §6).
type MessageBusEntry struct {
	Magic     []byte
	ID        uuid.UUID
	Rotation  uint64
	ProcessID uint64
	Path      string
}

// Contents is the catalog payload: {revision, record_containers[],
// message_buses[]} (spec §3/§6).
type Contents struct {
	Revision         uint64
	RecordContainers []RecordContainerEntry
	MessageBuses     []MessageBusEntry
}

func sizeOfContents(c Contents) int {
	n := sizeOfHead(3)
	n += sizeOfUint(c.Revision)
	n += sizeOfHead(uint64(len(c.RecordContainers)))
	for _, rc := range c.RecordContainers {
		n += sizeOfHead(4) + sizeOfUint(rc.SinkID) + sizeOfUint(rc.Rotation) + sizeOfUint(rc.ByteSize) + sizeOfText(rc.Path)
	}
	n += sizeOfHead(uint64(len(c.MessageBuses)))
	for _, mb := range c.MessageBuses {
		n += sizeOfHead(5) + sizeOfBytes(mb.Magic) + sizeOfBytes(mb.ID[:]) + sizeOfUint(mb.Rotation) + sizeOfUint(mb.ProcessID) + sizeOfText(mb.Path)
	}
	return n
}

func encodeContents(e *Emitter, c Contents) {
	EncodeArrayHeader(e, 3)
	EncodeUint(e, c.Revision)
	EncodeArrayHeader(e, len(c.RecordContainers))
	for _, rc := range c.RecordContainers {
		EncodeArrayHeader(e, 4)
		EncodeUint(e, rc.SinkID)
		EncodeUint(e, rc.Rotation)
		EncodeUint(e, rc.ByteSize)
		EncodeText(e, rc.Path)
	}
	EncodeArrayHeader(e, len(c.MessageBuses))
	for _, mb := range c.MessageBuses {
		EncodeArrayHeader(e, 5)
		EncodeBytes(e, mb.Magic)
		EncodeBytes(e, mb.ID[:])
		EncodeUint(e, mb.Rotation)
		EncodeUint(e, mb.ProcessID)
		EncodeText(e, mb.Path)
	}
}

func decodeContents(p *Parser) (Contents, error) {
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return Contents{}, err
	}
	if n != 3 {
		return Contents{}, newErr(TupleSizeMismatch, "decodeContents")
	}
	var c Contents
	if c.Revision, err = DecodeUint(p); err != nil {
		return Contents{}, err
	}
	rcCount, err := DecodeArrayHeader(p)
	if err != nil {
		return Contents{}, err
	}
	c.RecordContainers = make([]RecordContainerEntry, rcCount)
	for i := range c.RecordContainers {
		m, err := DecodeArrayHeader(p)
		if err != nil {
			return Contents{}, err
		}
		if m != 4 {
			return Contents{}, newErr(TupleSizeMismatch, "decodeContents.record_container")
		}
		rc := &c.RecordContainers[i]
		if rc.SinkID, err = DecodeUint(p); err != nil {
			return Contents{}, err
		}
		if rc.Rotation, err = DecodeUint(p); err != nil {
			return Contents{}, err
		}
		if rc.ByteSize, err = DecodeUint(p); err != nil {
			return Contents{}, err
		}
		if rc.Path, err = DecodeText(p); err != nil {
			return Contents{}, err
		}
	}
	mbCount, err := DecodeArrayHeader(p)
	if err != nil {
		return Contents{}, err
	}
	c.MessageBuses = make([]MessageBusEntry, mbCount)
	for i := range c.MessageBuses {
		m, err := DecodeArrayHeader(p)
		if err != nil {
			return Contents{}, err
		}
		if m != 5 {
			return Contents{}, newErr(TupleSizeMismatch, "decodeContents.message_bus")
		}
		mb := &c.MessageBuses[i]
		magic, err := DecodeBytes(p)
		if err != nil {
			return Contents{}, err
		}
		mb.Magic = magic
		idb, err := DecodeBytes(p)
		if err != nil {
			return Contents{}, err
		}
		if len(idb) == 16 {
			copy(mb.ID[:], idb)
		}
		if mb.Rotation, err = DecodeUint(p); err != nil {
			return Contents{}, err
		}
		if mb.ProcessID, err = DecodeUint(p); err != nil {
			return Contents{}, err
		}
		if mb.Path, err = DecodeText(p); err != nil {
			return Contents{}, err
		}
	}
	return c, nil
}

// containerIndexItem backs the btree secondary index over record
// containers, keyed by path for O(log n) lookup during rotation/byte-size
// updates (spec §4.5) rather than a linear scan of Contents.RecordContainers.
type containerIndexItem struct {
	path string
	idx  int
}

func (a containerIndexItem) Less(than btree.Item) bool {
	return a.path < than.(containerIndexItem).path
}

// FileDatabase is the durable manifest of record-container and message-bus
// files (spec §4.5): two independently-recorded interleaved streams, the
// higher revision winning on open.
type FileDatabase struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	contents Contents
	index    *btree.BTree
}

// OpenFileDatabase opens (or initializes) the catalog at path.
func OpenFileDatabase(path string) (*FileDatabase, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, wrapErr(Bad, "OpenFileDatabase", err)
	}
	db := &FileDatabase{path: path, file: file}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, wrapErr(Bad, "OpenFileDatabase.Stat", err)
	}
	if info.Size() == 0 {
		if err := db.initializeHeader(); err != nil {
			file.Close()
			return nil, err
		}
	} else if err := db.validateHeader(); err != nil {
		file.Close()
		return nil, err
	}
	if err := db.fetchContent(); err != nil {
		file.Close()
		return nil, err
	}
	db.rebuildIndex()
	return db, nil
}

func (db *FileDatabase) initializeHeader() error {
	head := make([]byte, catalogHeadSize)
	copy(head, catalogMagic)
	if _, err := db.file.WriteAt(head, 0); err != nil {
		return wrapErr(Bad, "initializeHeader", err)
	}
	db.contents = Contents{Revision: 0}
	e := NewEmitter(sizeOfContents(db.contents))
	encodeContents(e, db.contents)
	return writeStream(db.file, false, e.Bytes())
}

func (db *FileDatabase) validateHeader() error {
	head := make([]byte, catalogHeadSize)
	if _, err := db.file.ReadAt(head, 0); err != nil {
		return wrapErr(InvalidFileDatabaseHeader, "validateHeader", err)
	}
	for i, b := range catalogMagic {
		if head[i] != b {
			return newErr(InvalidFileDatabaseHeader, "validateHeader.magic")
		}
	}
	for _, b := range head[len(catalogMagic):] {
		if b != 0 {
			return newErr(InvalidFileDatabaseHeader, "validateHeader.padding")
		}
	}
	return nil
}

func (db *FileDatabase) rebuildIndex() {
	db.index = btree.New(32)
	for i, rc := range db.contents.RecordContainers {
		db.index.ReplaceOrInsert(containerIndexItem{path: rc.Path, idx: i})
	}
}

// indexLookup finds a record container's slice index by path via the
// btree secondary index rather than a linear scan (spec §4.5).
func (db *FileDatabase) indexLookup(path string) (int, bool) {
	item := db.index.Get(containerIndexItem{path: path})
	if item == nil {
		return 0, false
	}
	return item.(containerIndexItem).idx, true
}

// decodeStream grows a stream's cursor block by block, attempting a decode
// after each grow, until it succeeds, the stream runs dry, or the
// attempt limit is hit (spec §4.6).
func decodeStream(file *os.File, odd bool) (Contents, bool) {
	cur := newStreamCursor(file, odd)
	for {
		c, ok := tryDecodeContents(cur.buf)
		if ok {
			return c, true
		}
		more, _ := cur.grow()
		if !more {
			c, ok := tryDecodeContents(cur.buf)
			return c, ok
		}
	}
}

func tryDecodeContents(buf []byte) (Contents, bool) {
	if len(buf) == 0 {
		return Contents{}, false
	}
	p := NewParser(buf)
	c, err := decodeContents(p)
	if err != nil {
		return Contents{}, false
	}
	return c, true
}

// fetchContent decodes both streams independently; the higher revision
// wins. If only one decodes, that one wins; if neither, the error
// propagates (spec §4.5).
func (db *FileDatabase) fetchContent() error {
	a, okA := decodeStream(db.file, false)
	b, okB := decodeStream(db.file, true)
	switch {
	case okA && okB:
		if a.Revision >= b.Revision {
			db.contents = a
		} else {
			db.contents = b
		}
	case okA:
		db.contents = a
	case okB:
		db.contents = b
	default:
		return newErr(InvalidFileDatabaseHeader, "fetchContent")
	}
	return nil
}

// retireToStorage writes a full snapshot into the stream selected by the
// new revision's parity (odd -> B), bumping the in-memory revision first
// so callers always alternate streams (spec §4.5).
func (db *FileDatabase) retireToStorage(c Contents) error {
	c.Revision = db.contents.Revision + 1
	size := sizeOfContents(c)
	e := NewEmitter(size)
	encodeContents(e, c)
	odd := c.Revision%2 == 1
	if err := writeStream(db.file, odd, e.Bytes()); err != nil {
		return err
	}
	db.contents = c
	db.rebuildIndex()
	return nil
}

// Close releases the catalog's file handle.
func (db *FileDatabase) Close() error {
	return db.file.Close()
}

// Snapshot returns a copy of the catalog's current in-memory view.
func (db *FileDatabase) Snapshot() Contents {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.contents
}

const maxRotationRetries = 5

// CreateRecordContainer expands pattern, creates the file exclusively
// (retrying up to 5 times on collision by incrementing the rotation by 2,
// preserving its parity), and registers it in the catalog (spec §4.5).
func (db *FileDatabase) CreateRecordContainer(pattern string, sinkID uint64) (*os.File, RecordContainerEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := lockExclusive(db.file, lockDeadline); err != nil {
		return nil, RecordContainerEntry{}, err
	}
	defer unlockFile(db.file)

	if err := db.fetchContent(); err != nil {
		return nil, RecordContainerEntry{}, err
	}
	rotation := db.lastRotationForSink(sinkID) + 1
	var f *os.File
	var path string
	var err error
	for attempt := 0; attempt < maxRotationRetries; attempt++ {
		path = expandNamePattern(pattern, nameParams{ID: uuidString(), Ctr: rotation, Now: wallNow()})
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			break
		}
		rotation += 2
	}
	if err != nil {
		return nil, RecordContainerEntry{}, wrapErr(Bad, "CreateRecordContainer", err)
	}
	entry := RecordContainerEntry{SinkID: sinkID, Rotation: rotation, ByteSize: 0, Path: path}
	next := db.contents
	next.RecordContainers = append(append([]RecordContainerEntry{}, next.RecordContainers...), entry)
	if err := db.retireToStorage(next); err != nil {
		f.Close()
		os.Remove(path)
		return nil, RecordContainerEntry{}, err
	}
	return f, entry, nil
}

func (db *FileDatabase) lastRotationForSink(sinkID uint64) uint64 {
	var last uint64
	for _, rc := range db.contents.RecordContainers {
		if rc.SinkID == sinkID && rc.Rotation > last {
			last = rc.Rotation
		}
	}
	return last
}

// UpdateRecordContainerSize persists the final byte size for the container
// at path, e.g. when a sink rotates or finalizes (spec §4.8.x).
func (db *FileDatabase) UpdateRecordContainerSize(path string, size uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := lockExclusive(db.file, lockDeadline); err != nil {
		return err
	}
	defer unlockFile(db.file)
	if err := db.fetchContent(); err != nil {
		return err
	}
	db.rebuildIndex()
	idx, found := db.indexLookup(path)
	if !found {
		return newErr(MissingData, "UpdateRecordContainerSize")
	}
	next := db.contents
	next.RecordContainers = append([]RecordContainerEntry{}, next.RecordContainers...)
	next.RecordContainers[idx].ByteSize = size
	return db.retireToStorage(next)
}

// CreateMessageBus expands pattern, creates the bus file, and registers it
// along with its magic and this process's pid (spec §4.5).
func (db *FileDatabase) CreateMessageBus(pattern string, id uuid.UUID, magic []byte) (*os.File, MessageBusEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := lockExclusive(db.file, lockDeadline); err != nil {
		return nil, MessageBusEntry{}, err
	}
	defer unlockFile(db.file)

	if err := db.fetchContent(); err != nil {
		return nil, MessageBusEntry{}, err
	}
	rotation := uint64(1)
	var f *os.File
	var path string
	var err error
	for attempt := 0; attempt < maxRotationRetries; attempt++ {
		path = expandNamePattern(pattern, nameParams{ID: id.String(), Ctr: rotation, Now: wallNow()})
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			break
		}
		rotation += 2
	}
	if err != nil {
		return nil, MessageBusEntry{}, wrapErr(Bad, "CreateMessageBus", err)
	}
	entry := MessageBusEntry{Magic: magic, ID: id, Rotation: rotation, ProcessID: uint64(os.Getpid()), Path: path}
	next := db.contents
	next.MessageBuses = append(append([]MessageBusEntry{}, next.MessageBuses...), entry)
	if err := db.retireToStorage(next); err != nil {
		f.Close()
		os.Remove(path)
		return nil, MessageBusEntry{}, err
	}
	return f, entry, nil
}

// RemoveMessageBus drops the bus entry matching id from the manifest
// without touching the file on disk (the caller unlinks separately).
func (db *FileDatabase) RemoveMessageBus(id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := lockExclusive(db.file, lockDeadline); err != nil {
		return err
	}
	defer unlockFile(db.file)
	if err := db.fetchContent(); err != nil {
		return err
	}
	next := db.contents
	kept := make([]MessageBusEntry, 0, len(next.MessageBuses))
	for _, mb := range next.MessageBuses {
		if mb.ID != id {
			kept = append(kept, mb)
		}
	}
	next.MessageBuses = kept
	return db.retireToStorage(next)
}

// UnlinkAll best-effort deletes every referenced file, prunes entries
// whose deletion failed, retires the pruned view, then unlinks the
// catalog itself (spec §4.5).
func (db *FileDatabase) UnlinkAll() error {
	db.mu.Lock()
	contents := db.contents
	db.mu.Unlock()

	keptContainers := make([]RecordContainerEntry, 0, len(contents.RecordContainers))
	for _, rc := range contents.RecordContainers {
		if err := os.Remove(rc.Path); err != nil && !os.IsNotExist(err) {
			keptContainers = append(keptContainers, rc)
		}
	}
	keptBuses := make([]MessageBusEntry, 0, len(contents.MessageBuses))
	for _, mb := range contents.MessageBuses {
		if err := os.Remove(mb.Path); err != nil && !os.IsNotExist(err) {
			keptBuses = append(keptBuses, mb)
		}
	}
	pruned := Contents{RecordContainers: keptContainers, MessageBuses: keptBuses}

	db.mu.Lock()
	if err := lockExclusive(db.file, lockDeadline); err != nil {
		db.mu.Unlock()
		return err
	}
	err := db.retireToStorage(pruned)
	unlockFile(db.file)
	db.mu.Unlock()
	if err != nil {
		return err
	}
	db.file.Close()
	if err := os.Remove(db.path); err != nil {
		return wrapErr(ContainerUnlinkFailed, "UnlinkAll", err)
	}
	return nil
}

// RecoveredSinkID is the reserved sink id tagging record containers
// produced by PruneMessageBuses' crash-recovery drain, distinguishing
// them from containers written by any live producer's attached sink
// (spec §4.5 "reserved `recovered` sink id"). Sink ids handed out by
// LogFabric.AttachSink start at 1, so 0 never collides with one.
const RecoveredSinkID uint64 = 0

// PruneMessageBuses probes every registered message bus by attempting a
// non-blocking exclusive lock on its file: a lock that succeeds means no
// process still holds the bus open, so it is orphaned (its owning process
// crashed without unlinking it). An orphaned bus is recovered before it is
// deleted: every message still queued in it is drained into a fresh
// RecoveredSinkID container via recoverOrphanedBus, so a crash never
// silently loses queued messages. A lock that fails with EWOULDBLOCK means
// some process is still actively using the bus, so it is left alone (spec
// §4.5 "crash recovery").
func (db *FileDatabase) PruneMessageBuses() ([]MessageBusEntry, error) {
	db.mu.Lock()
	buses := append([]MessageBusEntry{}, db.contents.MessageBuses...)
	db.mu.Unlock()

	var pruned []MessageBusEntry
	for _, mb := range buses {
		f, err := os.OpenFile(mb.Path, os.O_RDWR, 0644)
		if err != nil {
			if os.IsNotExist(err) {
				pruned = append(pruned, mb)
			}
			continue
		}
		ok, err := tryLockExclusive(f)
		if err != nil {
			f.Close()
			continue
		}
		if !ok {
			f.Close()
			continue
		}
		unlockFile(f)
		f.Close()
		if err := db.recoverOrphanedBus(mb); err != nil {
			continue
		}
		if err := os.Remove(mb.Path); err != nil && !os.IsNotExist(err) {
			continue
		}
		pruned = append(pruned, mb)
	}
	if len(pruned) == 0 {
		return nil, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := lockExclusive(db.file, lockDeadline); err != nil {
		return nil, err
	}
	defer unlockFile(db.file)
	if err := db.fetchContent(); err != nil {
		return nil, err
	}
	prunedIDs := make(map[uuid.UUID]bool, len(pruned))
	for _, mb := range pruned {
		prunedIDs[mb.ID] = true
	}
	next := db.contents
	kept := make([]MessageBusEntry, 0, len(next.MessageBuses))
	for _, mb := range next.MessageBuses {
		if !prunedIDs[mb.ID] {
			kept = append(kept, mb)
		}
	}
	next.MessageBuses = kept
	if err := db.retireToStorage(next); err != nil {
		return nil, err
	}
	return pruned, nil
}

// recoverOrphanedBus opens an orphaned bus, drains every region to
// exhaustion into a freshly-created RecoveredSinkID container, and
// finalizes that container, so PruneMessageBuses only unlinks the bus
// file once none of its queued messages can be lost (spec §4.5
// "construct a db_file_sink in a reserved recovered sink id, drain all
// messages from the orphaned bus into it via consume_messages, finalize
// the sink, and unlink the bus file").
func (db *FileDatabase) recoverOrphanedBus(mb MessageBusEntry) error {
	bus, err := OpenBus(mb.Path)
	if err != nil {
		// Not a bus this implementation ever initialized (truncated,
		// corrupt, or a placeholder registration that predates InitBus):
		// nothing can be drained from it, so don't block the caller from
		// unlinking it.
		return nil
	}
	defer bus.Close()

	pattern := filepath.Join(filepath.Dir(db.path), "recovered-{ctr}-{now}.log")
	backend, err := NewFileSinkBackend(pattern, RecoveredSinkID, DefaultClock(), WithCatalog(db, 0))
	if err != nil {
		return err
	}
	sink := NewBasicSinkFrontend(SeverityTrace, backend)

	for i := 0; i < bus.NumRegions(); i++ {
		for {
			drained := false
			bus.DrainRegion(i, func(msgs []drainedMessage) {
				drained = true
				parses := make([]PreparsedMessage, len(msgs))
				total := 0
				for j, m := range msgs {
					parses[j] = preparseMessage(m.payload)
					total += len(m.payload)
				}
				sink.TryConsume(total, parses)
			})
			if !drained {
				break
			}
		}
	}

	return sink.TryFinalize()
}

func uuidString() string { return uuid.New().String() }
