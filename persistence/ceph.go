//go:build ceph

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
	"bytes"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephConfig names the cluster/pool a CephBackend archives into. Mirrors
// memcp's CephFactory field-for-field.
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// CephBackend archives rotated-out container files as whole RADOS
// objects, the same WriteFull/Read-whole-object shape memcp's CephStorage
// uses for columns and blobs (RADOS has no append primitive).
type CephBackend struct {
	cfg CephConfig

	mu     sync.Mutex
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

func NewCephBackend(cfg CephConfig) *CephBackend {
	return &CephBackend{cfg: cfg}
}

func (b *CephBackend) ensureOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return nil
	}
	conn, err := rados.NewConnWithClusterAndUser(b.cfg.ClusterName, b.cfg.UserName)
	if err != nil {
		return fmt.Errorf("persistence.CephBackend: %w", err)
	}
	if b.cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(b.cfg.ConfFile); err != nil {
			return fmt.Errorf("persistence.CephBackend: %w", err)
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("persistence.CephBackend: %w", err)
	}
	ioctx, err := conn.OpenIOContext(b.cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return fmt.Errorf("persistence.CephBackend: %w", err)
	}
	b.conn = conn
	b.ioctx = ioctx
	b.opened = true
	return nil
}

func (b *CephBackend) obj(name string) string {
	return path.Join(b.cfg.Prefix, name)
}

func (b *CephBackend) Store(name string, r io.Reader) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("persistence.CephBackend.Store: %w", err)
	}
	if err := b.ioctx.WriteFull(b.obj(name), data); err != nil {
		return fmt.Errorf("persistence.CephBackend.Store: %w", err)
	}
	return nil
}

func (b *CephBackend) Open(name string) (io.ReadCloser, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	obj := b.obj(name)
	stat, err := b.ioctx.Stat(obj)
	if err != nil {
		return nil, fmt.Errorf("persistence.CephBackend.Open: %w", err)
	}
	data := make([]byte, stat.Size)
	n, err := b.ioctx.Read(obj, data, 0)
	if err != nil {
		return nil, fmt.Errorf("persistence.CephBackend.Open: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data[:n])), nil
}

func (b *CephBackend) Remove(name string) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if err := b.ioctx.Delete(b.obj(name)); err != nil {
		return fmt.Errorf("persistence.CephBackend.Remove: %w", err)
	}
	return nil
}
