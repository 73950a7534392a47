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
	"time"

	"golang.org/x/sys/unix"
)

// lockDeadline is the default wait for the catalog's advisory file lock
// before giving up with ContainerCouldNotBeLocked (spec §5).
const lockDeadline = 30 * time.Second

// lockExclusive blocks, polling, until it holds an exclusive advisory lock
// on file or the deadline elapses.
func lockExclusive(file *os.File, deadline time.Duration) error {
	fd := int(file.Fd())
	deadlineAt := time.Now().Add(deadline)
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if time.Now().After(deadlineAt) {
			return wrapErr(ContainerCouldNotBeLocked, "lockExclusive", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// tryLockExclusive attempts the lock once without blocking, reporting
// whether it was acquired. Used by prune_message_buses to probe whether a
// bus's owning process is still alive (spec §4.5).
func tryLockExclusive(file *os.File) (bool, error) {
	fd := int(file.Fd())
	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, wrapErr(Bad, "tryLockExclusive", err)
}

func unlockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}
