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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestS3BackendKeyJoinsPrefix(t *testing.T) {
	b := NewS3Backend(S3Config{Bucket: "logs", Prefix: "archive/containers"})
	require.Equal(t, "archive/containers/container-1.log", b.key("container-1.log"))
}

func TestS3BackendKeyTrimsTrailingSlashInPrefix(t *testing.T) {
	b := NewS3Backend(S3Config{Bucket: "logs", Prefix: "archive/"})
	require.Equal(t, "archive/container-1.log", b.key("container-1.log"))
}

func TestS3BackendKeyWithNoPrefixIsBareName(t *testing.T) {
	b := NewS3Backend(S3Config{Bucket: "logs"})
	require.Equal(t, "container-1.log", b.key("container-1.log"))
}
