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

// Package dlog implements a structured, binary, trace-aware logging
// runtime: a self-describing record codec, a multi-producer single-
// consumer shared-memory bus, a durable file catalog, and the log fabric
// that drains the bus into sinks.
package dlog

import "math"

// major type tags of the CBOR-like grammar (spec §4.1).
const (
	majorUint byte = 0 << 5
	majorNInt byte = 1 << 5
	majorBstr byte = 2 << 5
	majorTstr byte = 3 << 5
	majorArr  byte = 4 << 5
	majorMap  byte = 5 << 5
	majorSimp byte = 7 << 5
)

const (
	addIndefinite byte = 31
	simpleNull    byte = 22
	simpleBreak   byte = 31
)

// Emitter is the context-carrying output buffer used by size_of/encode
// (spec §4.1): a growable byte buffer capable of requesting additional
// capacity. Composite operations write directly into it.
type Emitter struct {
	buf []byte
}

// NewEmitter returns an Emitter with capacity pre-reserved via a prior
// SizeOf pass, mirroring the "compute size, then allocate the record
// buffer, then encode" control flow the bus producer path uses.
func NewEmitter(capacityHint int) *Emitter {
	return &Emitter{buf: make([]byte, 0, capacityHint)}
}

// Bytes returns the encoded buffer so far.
func (e *Emitter) Bytes() []byte { return e.buf }

// Len reports how many bytes have been written.
func (e *Emitter) Len() int { return len(e.buf) }

// ensureSize grows the backing array if necessary (the Emitter's
// ensure_size(n) operation from spec §4.1).
func (e *Emitter) ensureSize(n int) {
	if cap(e.buf)-len(e.buf) >= n {
		return
	}
	grown := make([]byte, len(e.buf), len(e.buf)+n)
	copy(grown, e.buf)
	e.buf = grown
}

func (e *Emitter) writeByte(b byte) {
	e.ensureSize(1)
	e.buf = append(e.buf, b)
}

func (e *Emitter) write(p []byte) {
	e.ensureSize(len(p))
	e.buf = append(e.buf, p...)
}

// Parser is the context-carrying input buffer used by decode (spec §4.1).
type Parser struct {
	buf []byte
	pos int
}

// NewParser wraps buf for sequential decoding.
func NewParser(buf []byte) *Parser {
	return &Parser{buf: buf}
}

// Remaining reports how many bytes are left to consume.
func (p *Parser) Remaining() int { return len(p.buf) - p.pos }

// Consumed returns the bytes already parsed (used by the preparser to
// capture raw_data for a classified record, spec §4.7).
func (p *Parser) Consumed() []byte { return p.buf[:p.pos] }

// requireInput is the Parser's require_input(n) operation: it fails with
// EndOfStream rather than panicking on short input (spec §4.1).
func (p *Parser) requireInput(n int) error {
	if p.Remaining() < n {
		return newErr(EndOfStream, "parser.requireInput")
	}
	return nil
}

func (p *Parser) peekByte() (byte, error) {
	if err := p.requireInput(1); err != nil {
		return 0, err
	}
	return p.buf[p.pos], nil
}

func (p *Parser) readByte() (byte, error) {
	b, err := p.peekByte()
	if err != nil {
		return 0, err
	}
	p.pos++
	return b, nil
}

func (p *Parser) readN(n int) ([]byte, error) {
	if err := p.requireInput(n); err != nil {
		return nil, err
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

// --- unsigned integers --------------------------------------------------

// sizeOfUint returns the number of bytes EncodeUint would write (the
// codec's size_of for a positive integer item): minimal-width encoding.
func sizeOfUint(v uint64) int {
	switch {
	case v < 24:
		return 1
	case v <= 0xff:
		return 2
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// EncodeUint emits v as a CBOR-like unsigned integer item, choosing the
// minimal width (spec §4.1).
func EncodeUint(e *Emitter, v uint64) {
	encodeHead(e, majorUint, v)
}

func encodeHead(e *Emitter, major byte, v uint64) {
	switch {
	case v < 24:
		e.writeByte(major | byte(v))
	case v <= 0xff:
		e.writeByte(major | 24)
		e.writeByte(byte(v))
	case v <= 0xffff:
		e.writeByte(major | 25)
		e.write([]byte{byte(v >> 8), byte(v)})
	case v <= 0xffffffff:
		e.writeByte(major | 26)
		e.write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	default:
		e.writeByte(major | 27)
		e.write([]byte{
			byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
			byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
		})
	}
}

// decodeHead reads a major/additional-info item head, rejecting overlong
// (non-minimal) encodings as OversizedAdditionalInformationCoding (spec
// §4.1's "decoding rejects non-minimal encodings").
func decodeHead(p *Parser, wantMajor byte) (value uint64, additional byte, err error) {
	b, err := p.readByte()
	if err != nil {
		return 0, 0, err
	}
	major := b & 0xe0
	additional = b & 0x1f
	if major != wantMajor {
		return 0, additional, newErr(ItemTypeMismatch, "decodeHead")
	}
	switch {
	case additional < 24:
		return uint64(additional), additional, nil
	case additional == 24:
		raw, err := p.readN(1)
		if err != nil {
			return 0, additional, err
		}
		v := uint64(raw[0])
		if v < 24 {
			return 0, additional, newErr(OversizedAdditionalInformationCoding, "decodeHead")
		}
		return v, additional, nil
	case additional == 25:
		raw, err := p.readN(2)
		if err != nil {
			return 0, additional, err
		}
		v := uint64(raw[0])<<8 | uint64(raw[1])
		if v <= 0xff {
			return 0, additional, newErr(OversizedAdditionalInformationCoding, "decodeHead")
		}
		return v, additional, nil
	case additional == 26:
		raw, err := p.readN(4)
		if err != nil {
			return 0, additional, err
		}
		v := uint64(raw[0])<<24 | uint64(raw[1])<<16 | uint64(raw[2])<<8 | uint64(raw[3])
		if v <= 0xffff {
			return 0, additional, newErr(OversizedAdditionalInformationCoding, "decodeHead")
		}
		return v, additional, nil
	case additional == 27:
		raw, err := p.readN(8)
		if err != nil {
			return 0, additional, err
		}
		v := uint64(raw[0])<<56 | uint64(raw[1])<<48 | uint64(raw[2])<<40 | uint64(raw[3])<<32 |
			uint64(raw[4])<<24 | uint64(raw[5])<<16 | uint64(raw[6])<<8 | uint64(raw[7])
		if v <= 0xffffffff {
			return 0, additional, newErr(OversizedAdditionalInformationCoding, "decodeHead")
		}
		return v, additional, nil
	case additional == addIndefinite:
		return 0, additional, nil
	default:
		return 0, additional, newErr(Bad, "decodeHead")
	}
}

// DecodeUint parses a CBOR-like unsigned integer item.
func DecodeUint(p *Parser) (uint64, error) {
	v, add, err := decodeHead(p, majorUint)
	if err != nil {
		return 0, err
	}
	if add == addIndefinite {
		return 0, newErr(ItemTypeMismatch, "DecodeUint")
	}
	return v, nil
}

// --- signed integers -----------------------------------------------------

// sizeOfInt returns the byte size of EncodeInt(v).
func sizeOfInt(v int64) int {
	if v >= 0 {
		return sizeOfUint(uint64(v))
	}
	return sizeOfUint(uint64(-(v + 1)))
}

// EncodeInt emits a signed integer, using the negative-integer major type
// for v<0 (CBOR's -1-n encoding), spec §4.1.
func EncodeInt(e *Emitter, v int64) {
	if v >= 0 {
		encodeHead(e, majorUint, uint64(v))
		return
	}
	encodeHead(e, majorNInt, uint64(-(v + 1)))
}

// DecodeInt parses a signed integer item (either major type).
func DecodeInt(p *Parser) (int64, error) {
	b, err := p.peekByte()
	if err != nil {
		return 0, err
	}
	if b&0xe0 == majorNInt {
		v, _, err := decodeHead(p, majorNInt)
		if err != nil {
			return 0, err
		}
		if v > math.MaxInt64 {
			return 0, newErr(ItemValueOutOfRange, "DecodeInt")
		}
		return -1 - int64(v), nil
	}
	v, err := DecodeUint(p)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt64 {
		return 0, newErr(ItemValueOutOfRange, "DecodeInt")
	}
	return int64(v), nil
}

// --- byte / text strings --------------------------------------------------

func sizeOfBytes(b []byte) int { return sizeOfUint(uint64(len(b))) + len(b) }

// EncodeBytes emits a definite-length byte string item.
func EncodeBytes(e *Emitter, b []byte) {
	encodeHead(e, majorBstr, uint64(len(b)))
	e.write(b)
}

// DecodeBytes parses a definite-length byte string item.
func DecodeBytes(p *Parser) ([]byte, error) {
	n, _, err := decodeHead(p, majorBstr)
	if err != nil {
		return nil, err
	}
	return p.readN(int(n))
}

func sizeOfText(s string) int { return sizeOfUint(uint64(len(s))) + len(s) }

// EncodeText emits a definite-length UTF-8 text string item.
func EncodeText(e *Emitter, s string) {
	encodeHead(e, majorTstr, uint64(len(s)))
	e.write([]byte(s))
}

// DecodeText parses a definite-length UTF-8 text string item.
func DecodeText(p *Parser) (string, error) {
	n, _, err := decodeHead(p, majorTstr)
	if err != nil {
		return "", err
	}
	b, err := p.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --- arrays / maps ---------------------------------------------------------

func sizeOfHead(v uint64) int { return sizeOfUint(v) }

// EncodeArrayHeader emits a definite-length array head of n elements.
func EncodeArrayHeader(e *Emitter, n int) { encodeHead(e, majorArr, uint64(n)) }

// DecodeArrayHeader parses a definite-length array head, returning its
// declared arity. Used by the preparser to classify messages by outer
// tuple arity (spec §4.7).
func DecodeArrayHeader(p *Parser) (int, error) {
	n, add, err := decodeHead(p, majorArr)
	if err != nil {
		return 0, err
	}
	if add == addIndefinite {
		return -1, nil
	}
	return int(n), nil
}

// EncodeIndefiniteArrayHeader opens an indefinite-length array (spec
// §3's record container payload, §4.1).
func EncodeIndefiniteArrayHeader(e *Emitter) {
	e.writeByte(majorArr | addIndefinite)
}

// EncodeBreak closes an indefinite-length array/map.
func EncodeBreak(e *Emitter) {
	e.writeByte(majorSimp | simpleBreak)
}

// PeekIsBreak reports whether the next byte is the break terminator,
// without consuming it unless it is.
func PeekIsBreak(p *Parser) (bool, error) {
	b, err := p.peekByte()
	if err != nil {
		return false, err
	}
	if b == majorSimp|simpleBreak {
		p.pos++
		return true, nil
	}
	return false, nil
}

// EncodeMapHeader emits a definite-length map head of n key-value pairs.
func EncodeMapHeader(e *Emitter, n int) { encodeHead(e, majorMap, uint64(n)) }

// DecodeMapHeader parses a definite-length map head, returning its arity.
func DecodeMapHeader(p *Parser) (int, error) {
	n, add, err := decodeHead(p, majorMap)
	if err != nil {
		return 0, err
	}
	if add == addIndefinite {
		return -1, nil
	}
	return int(n), nil
}

// --- null --------------------------------------------------------------

// EncodeNull emits the null item (used for an invalid span context, spec §3).
func EncodeNull(e *Emitter) { e.writeByte(majorSimp | simpleNull) }

// PeekIsNull reports whether the next byte is the null item, consuming it
// if so.
func PeekIsNull(p *Parser) (bool, error) {
	b, err := p.peekByte()
	if err != nil {
		return false, err
	}
	if b == majorSimp|simpleNull {
		p.pos++
		return true, nil
	}
	return false, nil
}

// --- skip (used by the tolerant preparser, spec §9) -----------------------

// SkipItem consumes and discards one well-formed item of any type,
// recursing into arrays/maps. Used by preparse_messages to skip over a
// record's tail (or an entire legacy 5-/2-element record) without fully
// decoding it (spec §4.7, §9).
func SkipItem(p *Parser) error {
	b, err := p.peekByte()
	if err != nil {
		return err
	}
	major := b & 0xe0
	additional := b & 0x1f
	switch major {
	case majorUint, majorNInt:
		_, _, err := decodeHead(p, major)
		return err
	case majorBstr:
		_, err := DecodeBytes(p)
		return err
	case majorTstr:
		_, err := DecodeText(p)
		return err
	case majorArr:
		if additional == addIndefinite {
			p.pos++
			for {
				isBreak, err := PeekIsBreak(p)
				if err != nil {
					return err
				}
				if isBreak {
					return nil
				}
				if err := SkipItem(p); err != nil {
					return err
				}
			}
		}
		n, _, err := decodeHead(p, majorArr)
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := SkipItem(p); err != nil {
				return err
			}
		}
		return nil
	case majorMap:
		if additional == addIndefinite {
			p.pos++
			for {
				isBreak, err := PeekIsBreak(p)
				if err != nil {
					return err
				}
				if isBreak {
					return nil
				}
				if err := SkipItem(p); err != nil {
					return err
				}
				if err := SkipItem(p); err != nil {
					return err
				}
			}
		}
		n, _, err := decodeHead(p, majorMap)
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := SkipItem(p); err != nil {
				return err
			}
			if err := SkipItem(p); err != nil {
				return err
			}
		}
		return nil
	case majorSimp:
		p.pos++
		if additional >= 25 && additional <= 27 {
			n := 1 << (additional - 24)
			_, err := p.readN(n)
			return err
		}
		return nil
	default:
		return newErr(ItemTypeMismatch, "SkipItem")
	}
}
