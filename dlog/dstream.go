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

import "os"

// Two independent streams (A, even revisions; B, odd) interleave inside
// the catalog file in exponentially growing blocks (spec §3/§4.6):
// block k holds 2^k pages for k<5, then plateaus at 16 pages.

// blockPageIndex returns the page offset of block k of stream A (odd=false)
// or B (odd=true), following the exact placement formula from spec §3:
// page_size × ((k<5 ? (2|odd)<<k : 32·(k-3)+odd<<4)).
func blockPageIndex(k int, odd bool) int64 {
	oddBit := int64(0)
	if odd {
		oddBit = 1
	}
	if k < 5 {
		return (2 | oddBit) << uint(k)
	}
	return 32*int64(k-3) + oddBit<<4
}

// blockOffset returns the byte offset of block k within the catalog file.
func blockOffset(k int, odd bool) int64 { return pageSize * blockPageIndex(k, odd) }

// blockSize returns the byte size of block k (spec §4.6): 2^k pages while
// k<5, then a flat 16 pages (64 KiB) per block thereafter.
func blockSize(k int) int64 {
	if k < 5 {
		return (int64(1) << uint(k)) * pageSize
	}
	return 16 * pageSize
}

// maxStreamBlocks bounds how many growing blocks a reader will walk before
// giving up on a stream as truncated/corrupt (spec §4.6 "incomplete tails
// are rejected as EndOfStream"). 40 blocks spans well past any catalog
// this process is expected to grow to in one run.
const maxStreamBlocks = 40

// writeStream serializes data across stream (A or B)'s growing blocks
// starting at block 0, one WriteAt per block.
func writeStream(file *os.File, odd bool, data []byte) error {
	off := 0
	for k := 0; off < len(data); k++ {
		bs := int(blockSize(k))
		end := off + bs
		if end > len(data) {
			end = len(data)
		}
		if _, err := file.WriteAt(data[off:end], blockOffset(k, odd)); err != nil {
			return wrapErr(Bad, "writeStream", err)
		}
		off = end
		if k > maxStreamBlocks {
			return newErr(NotEnoughSpace, "writeStream")
		}
	}
	return nil
}

// streamCursor reads one stream block by block: grow appends one more block
// to buf and reports whether the stream is exhausted (a short read at the
// current block). The catalog calls grow in a loop, attempting to decode
// after each one, since the
// stream's total length isn't known until its self-describing payload
// fully decodes.
type streamCursor struct {
	file *os.File
	odd  bool
	k    int
	buf  []byte
}

func newStreamCursor(file *os.File, odd bool) *streamCursor {
	return &streamCursor{file: file, odd: odd}
}

// grow reads the next block and appends it to buf, returning false once
// the file has no more data at the expected offset (end of stream).
func (c *streamCursor) grow() (more bool, err error) {
	if c.k > maxStreamBlocks {
		return false, nil
	}
	bs := int(blockSize(c.k))
	chunk := make([]byte, bs)
	n, rerr := c.file.ReadAt(chunk, blockOffset(c.k, c.odd))
	if n > 0 {
		c.buf = append(c.buf, chunk[:n]...)
	}
	c.k++
	if rerr != nil || n < bs {
		return false, nil
	}
	return true, nil
}
