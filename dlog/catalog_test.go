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

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Property 4: a re-open via OpenFileDatabase yields identical contents to
// the last successful retire.
func TestFileDatabaseReopenMatchesLastRetire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := OpenFileDatabase(path)
	require.NoError(t, err)

	f1, entry1, err := db.CreateRecordContainer(filepath.Join(filepath.Dir(path), "container-{ctr}.log"), 1)
	require.NoError(t, err)
	f1.Close()

	busID := uuid.New()
	f2, _, err := db.CreateMessageBus(filepath.Join(filepath.Dir(path), "bus-{id}.bin"), busID, messageBusMagic)
	require.NoError(t, err)
	f2.Close()

	require.NoError(t, db.UpdateRecordContainerSize(entry1.Path, 4096))
	require.NoError(t, db.RemoveMessageBus(busID))

	want := db.Snapshot()
	require.NoError(t, db.Close())

	reopened, err := OpenFileDatabase(path)
	require.NoError(t, err)
	defer reopened.Close()

	got := reopened.Snapshot()
	require.Equal(t, want.RecordContainers, got.RecordContainers)
	require.Equal(t, want.MessageBuses, got.MessageBuses)
}

// A corrupt write to one of the catalog's two interleaved streams must not
// lose data: the other (even/odd) stream still decodes and wins.
func TestFileDatabaseSurvivesOneCorruptStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := OpenFileDatabase(path)
	require.NoError(t, err)

	f, _, err := db.CreateRecordContainer(filepath.Join(filepath.Dir(path), "container-{ctr}.log"), 1)
	require.NoError(t, err)
	f.Close()
	want := db.Snapshot()
	require.NoError(t, db.Close())

	// Corrupt whichever stream the next write would target (the "other"
	// one, holding the older revision): clobber the first bytes of its
	// first block so a decode attempt against that half fails, without
	// touching the already-good stream the last retire wrote to.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	nextOdd := (want.Revision+1)%2 == 1
	off := int(blockOffset(0, nextOdd))
	for i := off; i < off+16 && i < len(raw); i++ {
		raw[i] = 0xff
	}
	require.NoError(t, os.WriteFile(path, raw, 0644))

	reopened, err := OpenFileDatabase(path)
	require.NoError(t, err)
	defer reopened.Close()
	got := reopened.Snapshot()
	require.Equal(t, want.Revision, got.Revision)
	require.Equal(t, want.RecordContainers, got.RecordContainers)
}

// S4: a crashed producer leaves a bus file registered but with no process
// still holding it open; PruneMessageBuses must detect and remove it.
func TestPruneMessageBusesRemovesOrphanedBus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	db, err := OpenFileDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	busID := uuid.New()
	f, entry, err := db.CreateMessageBus(filepath.Join(dir, "bus-{id}.bin"), busID, messageBusMagic)
	require.NoError(t, err)
	// Simulate a crash: close the file handle without unregistering it.
	f.Close()

	pruned, err := db.PruneMessageBuses()
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	require.Equal(t, entry.ID, pruned[0].ID)

	_, err = os.Stat(entry.Path)
	require.True(t, os.IsNotExist(err))

	snap := db.Snapshot()
	require.Empty(t, snap.MessageBuses)
}

// S4: a crashed producer leaves queued messages sitting in an orphaned bus.
// PruneMessageBuses must drain them into a fresh container tagged with
// RecoveredSinkID before unlinking the bus, rather than discarding them.
func TestPruneMessageBusesRecoversQueuedMessages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	db, err := OpenFileDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	busID := uuid.New()
	busFile, entry, err := db.CreateMessageBus(filepath.Join(dir, "bus-{id}.bin"), busID, messageBusMagic)
	require.NoError(t, err)

	bus, err := InitBus(busFile, 1, minRegionSize)
	require.NoError(t, err)

	severities := []Severity{SeverityWarn, SeverityError}
	messages := []string{"queued before crash", "also queued"}
	for i, sev := range severities {
		r := LogRecord{Severity: sev, Message: messages[i]}
		g, err := bus.Allocate(uint32(SizeOfLogRecord(r)), 0)
		require.NoError(t, err)
		EncodeLogRecord(g.Emitter(), r)
		g.Sync()
	}

	// Simulate a crash: the producer dies without draining or unlinking.
	require.NoError(t, bus.Close())

	pruned, err := db.PruneMessageBuses()
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	require.Equal(t, entry.ID, pruned[0].ID)

	_, err = os.Stat(entry.Path)
	require.True(t, os.IsNotExist(err))

	snap := db.Snapshot()
	require.Len(t, snap.RecordContainers, 1)
	container := snap.RecordContainers[0]
	require.Equal(t, RecoveredSinkID, container.SinkID)

	raw, err := os.ReadFile(container.Path)
	require.NoError(t, err)
	require.Equal(t, recordContainerMagic, raw[:len(recordContainerMagic)])

	p := NewParser(raw[len(recordContainerMagic):])
	n, err := DecodeMapHeader(p)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		key, err := DecodeUint(p)
		require.NoError(t, err)
		switch key {
		case containerHeaderKeyEpoch:
			_, err = decodeEpochInfo(p)
		case containerHeaderKeyAttrs:
			_, err = DecodeAttributes(p)
		default:
			_, err = DecodeUint(p)
		}
		require.NoError(t, err)
	}

	var gotMessages []string
	for {
		b, err := p.peekByte()
		if err != nil || b == (majorSimp|simpleBreak) {
			break
		}
		rec, err := DecodeLogRecord(p)
		require.NoError(t, err)
		gotMessages = append(gotMessages, rec.Message)
	}
	require.ElementsMatch(t, messages, gotMessages)
}

// A still-open bus (the test holding its own handle on the file with an
// exclusive lock, standing in for "another process") must survive a prune.
func TestPruneMessageBusesSparesLiveBus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	db, err := OpenFileDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	busID := uuid.New()
	f, entry, err := db.CreateMessageBus(filepath.Join(dir, "bus-{id}.bin"), busID, messageBusMagic)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, lockExclusive(f, lockDeadline))
	defer unlockFile(f)

	pruned, err := db.PruneMessageBuses()
	require.NoError(t, err)
	require.Empty(t, pruned)

	snap := db.Snapshot()
	require.Len(t, snap.MessageBuses, 1)
	require.Equal(t, entry.ID, snap.MessageBuses[0].ID)
}
