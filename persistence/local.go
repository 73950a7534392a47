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
package persistence

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBackend stores blobs as plain files under Dir, the same
// os.Open/os.Create/os.Remove shape memcp's FileStorage uses for columns,
// narrowed to one flat directory of named objects.
type LocalBackend struct {
	Dir string
}

// NewLocalBackend creates Dir if it doesn't already exist.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("persistence.NewLocalBackend: %w", err)
	}
	return &LocalBackend{Dir: dir}, nil
}

func (b *LocalBackend) path(name string) string {
	return filepath.Join(b.Dir, filepath.Base(name))
}

func (b *LocalBackend) Store(name string, r io.Reader) error {
	f, err := os.Create(b.path(name))
	if err != nil {
		return fmt.Errorf("persistence.LocalBackend.Store: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("persistence.LocalBackend.Store: %w", err)
	}
	return nil
}

func (b *LocalBackend) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(b.path(name))
	if err != nil {
		return nil, fmt.Errorf("persistence.LocalBackend.Open: %w", err)
	}
	return f, nil
}

func (b *LocalBackend) Remove(name string) error {
	if err := os.Remove(b.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("persistence.LocalBackend.Remove: %w", err)
	}
	return nil
}
