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

// Wire magic prefixes (spec §3/§6). Kept as package-level vars rather than
// consts since []byte literals can't be consts.
var (
	recordContainerMagic = []byte{0x83, 0x4e, 0x0d, 0x0a, 0xab, 0x7e, 0x7b, 0x64, 0x6c, 0x6f, 0x67, 0x7d, 0x7e, 0xbb, 0x0a, 0x1a}
	messageBusMagic      = []byte{0x82, 0x50, 0x0d, 0x0a, 0xab, 0x7e, 0x7b, 0x64, 0x6d, 0x70, 0x73, 0x63, 0x62, 0x7d, 0x7e, 0xbb, 0x0a, 0x1a}
	catalogMagic         = []byte{0x82, 0x4e, 0x0d, 0x0a, 0xab, 0x7e, 0x7b, 0x64, 0x72, 0x6f, 0x74, 0x7d, 0x7e, 0xbb, 0x0a, 0x1a, 0xa0}
)

const (
	pageSize           = 4096
	catalogHeadSize    = 4096
	busHeadSize        = 4096
	containerHeaderKeyVersion  = 0
	containerHeaderKeyEpoch    = 4
	containerHeaderKeyAttrs    = 23
	currentContainerVersion    = 1
)

// ReificationTypeID tags the concrete wire representation of one
// LoggableArg/AttributeValue (the GLOSSARY's "reification type id").
type ReificationTypeID uint8

const (
	ReifyInt64 ReificationTypeID = iota + 1
	ReifyUint64
	ReifyString
	ReifySpanContext
	ReifyStatusCode
	// ReifyCustom is the escape case of the design note's closed
	// any_loggable_ref variant: the value is encoded by a caller-supplied
	// (size_of, encode) pair rather than one of the built-in kinds.
	ReifyCustom
)

// SpanKind is the span-start kind enumeration (spec §3).
type SpanKind uint8

const (
	SpanKindInternal SpanKind = iota
	SpanKindConsumer
	SpanKindProducer
	SpanKindClient
	SpanKindServer
)

// Value is the closed variant carried by a LoggableArg or an attribute map
// entry: one of int64, uint64, string, span context, or error code, plus the
// ReifyCustom escape hatch for caller-supplied encoders (design note
// "type-erased loggable arguments").
type Value struct {
	Kind   ReificationTypeID
	I64    int64
	U64    uint64
	Str    string
	Span   SpanContext
	Status ErrorCode

	// custom backs ReifyCustom: a vtable-style (size_of, encode) pair
	// supplied by the call site instead of a built-in representation.
	customSize   func() int
	customEncode func(*Emitter)
}

func Int64Value(v int64) Value  { return Value{Kind: ReifyInt64, I64: v} }
func Uint64Value(v uint64) Value { return Value{Kind: ReifyUint64, U64: v} }
func StringValue(s string) Value { return Value{Kind: ReifyString, Str: s} }
func SpanContextValue(c SpanContext) Value { return Value{Kind: ReifySpanContext, Span: c} }
func StatusValue(code ErrorCode) Value { return Value{Kind: ReifyStatusCode, Status: code} }

// CustomValue installs the escape case: sizeOf/encode are invoked lazily at
// wire time, letting a call site plug in an arbitrary encoder trio without
// this package knowing its concrete type.
func CustomValue(sizeOf func() int, encode func(*Emitter)) Value {
	return Value{Kind: ReifyCustom, customSize: sizeOf, customEncode: encode}
}

func sizeOfValue(v Value) int {
	switch v.Kind {
	case ReifyInt64:
		return sizeOfInt(v.I64)
	case ReifyUint64:
		return sizeOfUint(v.U64)
	case ReifyString:
		return sizeOfText(v.Str)
	case ReifySpanContext:
		return sizeOfSpanContext(v.Span)
	case ReifyStatusCode:
		return sizeOfUint(uint64(v.Status))
	case ReifyCustom:
		return v.customSize()
	default:
		return 0
	}
}

// EncodeValue writes the raw wire representation for v's kind. The kind
// itself is carried by the surrounding [reification_type_id, value] (or
// [id, name, value]) array, not duplicated onto the value's own bytes.
func EncodeValue(e *Emitter, v Value) {
	switch v.Kind {
	case ReifyInt64:
		EncodeInt(e, v.I64)
	case ReifyUint64:
		EncodeUint(e, v.U64)
	case ReifyString:
		EncodeText(e, v.Str)
	case ReifySpanContext:
		EncodeSpanContext(e, v.Span)
	case ReifyStatusCode:
		EncodeUint(e, uint64(v.Status))
	case ReifyCustom:
		v.customEncode(e)
	}
}

// DecodeValue reads a value's raw wire representation given its already-
// known kind (read from the preceding reification_type_id array slot).
func DecodeValue(p *Parser, kind ReificationTypeID) (Value, error) {
	switch kind {
	case ReifyInt64:
		v, err := DecodeInt(p)
		return Value{Kind: kind, I64: v}, err
	case ReifyUint64:
		v, err := DecodeUint(p)
		return Value{Kind: kind, U64: v}, err
	case ReifyString:
		v, err := DecodeText(p)
		return Value{Kind: kind, Str: v}, err
	case ReifySpanContext:
		v, err := DecodeSpanContext(p)
		return Value{Kind: kind, Span: v}, err
	case ReifyStatusCode:
		v, err := DecodeUint(p)
		return Value{Kind: kind, Status: ErrorCode(v)}, err
	default:
		return Value{}, newErr(UnknownArgumentTypeID, "DecodeValue")
	}
}

// --- span context codec (spec §3/§4.1) --------------------------------

func sizeOfSpanContext(c SpanContext) int {
	if !c.Valid() {
		return 1 // null item
	}
	return 1 + sizeOfBytes(c.TraceID[:]) + sizeOfBytes(c.SpanID[:])
}

// EncodeSpanContext emits null for the zero context, otherwise a
// 2-element array of (trace_id, span_id) byte strings (spec §3).
func EncodeSpanContext(e *Emitter, c SpanContext) {
	if !c.Valid() {
		EncodeNull(e)
		return
	}
	EncodeArrayHeader(e, 2)
	EncodeBytes(e, c.TraceID[:])
	EncodeBytes(e, c.SpanID[:])
}

func DecodeSpanContext(p *Parser) (SpanContext, error) {
	isNull, err := PeekIsNull(p)
	if err != nil {
		return SpanContext{}, err
	}
	if isNull {
		return InvalidSpanContext, nil
	}
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return SpanContext{}, err
	}
	if n != 2 {
		return SpanContext{}, newErr(TupleSizeMismatch, "DecodeSpanContext")
	}
	tb, err := DecodeBytes(p)
	if err != nil {
		return SpanContext{}, err
	}
	sb, err := DecodeBytes(p)
	if err != nil {
		return SpanContext{}, err
	}
	if len(tb) != 16 || len(sb) != 8 {
		return SpanContext{}, newErr(ItemValueOutOfRange, "DecodeSpanContext")
	}
	var c SpanContext
	copy(c.TraceID[:], tb)
	copy(c.SpanID[:], sb)
	return c, nil
}

// --- severity codec ------------------------------------------------------

// EncodeSeverity writes sev with the wire's offset-of-one so that the zero
// item stays reserved (spec §3/§4.1).
func EncodeSeverity(e *Emitter, sev Severity) { EncodeUint(e, uint64(sev)+1) }

func DecodeSeverity(p *Parser) (Severity, error) {
	v, err := DecodeUint(p)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, newErr(ItemValueOutOfRange, "DecodeSeverity")
	}
	return Severity(v - 1), nil
}

// --- owner context (spec §3 "2. owner context") ---------------------------

// OwnerContext is the log record's tight, flagged pair of an optional
// instrumentation-scope name and an optional span context.
type OwnerContext struct {
	Scope    string
	HasScope bool
	Span     SpanContext
	HasSpan  bool
}

const (
	ownerFlagScope = 1 << 0
	ownerFlagSpan  = 1 << 1
)

func ownerFlags(o OwnerContext) uint64 {
	var f uint64
	if o.HasScope {
		f |= ownerFlagScope
	}
	if o.HasSpan {
		f |= ownerFlagSpan
	}
	return f
}

func sizeOfOwnerContext(o OwnerContext) int {
	n := sizeOfUint(ownerFlags(o))
	count := 0
	if o.HasScope {
		n += sizeOfText(o.Scope)
		count++
	}
	if o.HasSpan {
		n += sizeOfSpanContext(o.Span)
		count++
	}
	n += sizeOfHead(uint64(count))
	return n
}

// EncodeOwnerContext writes the flags word followed by a tight array
// holding only the present elements, in (scope, span) order.
func EncodeOwnerContext(e *Emitter, o OwnerContext) {
	EncodeUint(e, ownerFlags(o))
	count := 0
	if o.HasScope {
		count++
	}
	if o.HasSpan {
		count++
	}
	EncodeArrayHeader(e, count)
	if o.HasScope {
		EncodeText(e, o.Scope)
	}
	if o.HasSpan {
		EncodeSpanContext(e, o.Span)
	}
}

func DecodeOwnerContext(p *Parser) (OwnerContext, error) {
	flags, err := DecodeUint(p)
	if err != nil {
		return OwnerContext{}, err
	}
	if _, err := DecodeArrayHeader(p); err != nil {
		return OwnerContext{}, err
	}
	var o OwnerContext
	if flags&ownerFlagScope != 0 {
		s, err := DecodeText(p)
		if err != nil {
			return OwnerContext{}, err
		}
		o.Scope, o.HasScope = s, true
	}
	if flags&ownerFlagSpan != 0 {
		sc, err := DecodeSpanContext(p)
		if err != nil {
			return OwnerContext{}, err
		}
		o.Span, o.HasSpan = sc, true
	}
	return o, nil
}

// --- format arguments (spec §3 "5. format arguments") ---------------------

// LoggableArg is one element of a log record's argument list: a typed
// value, optionally named.
type LoggableArg struct {
	Name    string
	HasName bool
	Value   Value
}

func sizeOfArg(a LoggableArg) int {
	n := sizeOfUint(uint64(a.Value.Kind))
	count := 2
	if a.HasName {
		n += sizeOfText(a.Name)
		count = 3
	}
	n += sizeOfHead(uint64(count))
	n += sizeOfValue(a.Value)
	return n
}

// EncodeArg writes [id, value] or, if named, [id, name, value].
func EncodeArg(e *Emitter, a LoggableArg) {
	if a.HasName {
		EncodeArrayHeader(e, 3)
		EncodeUint(e, uint64(a.Value.Kind))
		EncodeText(e, a.Name)
		EncodeValue(e, a.Value)
		return
	}
	EncodeArrayHeader(e, 2)
	EncodeUint(e, uint64(a.Value.Kind))
	EncodeValue(e, a.Value)
}

func DecodeArg(p *Parser) (LoggableArg, error) {
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return LoggableArg{}, err
	}
	idv, err := DecodeUint(p)
	if err != nil {
		return LoggableArg{}, err
	}
	kind := ReificationTypeID(idv)
	switch n {
	case 2:
		v, err := DecodeValue(p, kind)
		if err != nil {
			return LoggableArg{}, err
		}
		return LoggableArg{Value: v}, nil
	case 3:
		name, err := DecodeText(p)
		if err != nil {
			return LoggableArg{}, err
		}
		v, err := DecodeValue(p, kind)
		if err != nil {
			return LoggableArg{}, err
		}
		return LoggableArg{Name: name, HasName: true, Value: v}, nil
	default:
		return LoggableArg{}, newErr(TupleSizeMismatch, "DecodeArg")
	}
}

// --- attributes (spec §3 "6. attributes") --------------------------------

// Attributes maps a resource id to a typed value, wire-encoded as a map
// from resource id to a [reification_type_id, value] pair so the map stays
// self-describing without a secondary schema.
type Attributes map[ResourceID]Value

func sizeOfAttributes(attrs Attributes) int {
	n := sizeOfHead(uint64(len(attrs)))
	for id, v := range attrs {
		n += sizeOfUint(uint64(id))
		n += sizeOfHead(2) + sizeOfUint(uint64(v.Kind)) + sizeOfValue(v)
	}
	return n
}

func EncodeAttributes(e *Emitter, attrs Attributes) {
	EncodeMapHeader(e, len(attrs))
	for id, v := range attrs {
		EncodeUint(e, uint64(id))
		EncodeArrayHeader(e, 2)
		EncodeUint(e, uint64(v.Kind))
		EncodeValue(e, v)
	}
}

func DecodeAttributes(p *Parser) (Attributes, error) {
	n, err := DecodeMapHeader(p)
	if err != nil {
		return nil, err
	}
	attrs := make(Attributes, n)
	for i := 0; i < n; i++ {
		idv, err := DecodeUint(p)
		if err != nil {
			return nil, err
		}
		pairN, err := DecodeArrayHeader(p)
		if err != nil {
			return nil, err
		}
		if pairN != 2 {
			return nil, newErr(TupleSizeMismatch, "DecodeAttributes")
		}
		kindv, err := DecodeUint(p)
		if err != nil {
			return nil, err
		}
		v, err := DecodeValue(p, ReificationTypeID(kindv))
		if err != nil {
			return nil, err
		}
		attrs[ResourceID(idv)] = v
	}
	return attrs, nil
}

// --- log record (spec §3 6-tuple) -----------------------------------------

// LogRecord is the 6-tuple described in spec §3.
type LogRecord struct {
	Severity  Severity
	Owner     OwnerContext
	Timestamp uint64 // ns since the monotonic epoch
	Message   string
	Args      []LoggableArg
	Attrs     Attributes
}

// timestampWireSize is the fixed width the spec mandates for a record's
// timestamp field: "serialized as a fixed 9-byte 64-bit positive integer"
// (major-type byte + 8 value bytes, i.e. always the additional-info-27 form).
const timestampWireSize = 9

func encodeFixedTimestamp(e *Emitter, ts uint64) {
	e.writeByte(majorUint | 27)
	e.write([]byte{
		byte(ts >> 56), byte(ts >> 48), byte(ts >> 40), byte(ts >> 32),
		byte(ts >> 24), byte(ts >> 16), byte(ts >> 8), byte(ts),
	})
}

func decodeFixedTimestamp(p *Parser) (uint64, error) {
	b, err := p.readByte()
	if err != nil {
		return 0, err
	}
	if b != majorUint|27 {
		return 0, newErr(InvalidArgument, "decodeFixedTimestamp")
	}
	raw, err := p.readN(8)
	if err != nil {
		return 0, err
	}
	return uint64(raw[0])<<56 | uint64(raw[1])<<48 | uint64(raw[2])<<40 | uint64(raw[3])<<32 |
		uint64(raw[4])<<24 | uint64(raw[5])<<16 | uint64(raw[6])<<8 | uint64(raw[7]), nil
}

// SizeOfLogRecord returns the encoded byte length of r, used by the
// producer to size its bus allocation before writing.
func SizeOfLogRecord(r LogRecord) int {
	n := sizeOfHead(6)
	n += sizeOfUint(uint64(r.Severity) + 1)
	n += sizeOfOwnerContext(r.Owner)
	n += timestampWireSize
	n += sizeOfText(r.Message)
	n += sizeOfHead(uint64(len(r.Args)))
	for _, a := range r.Args {
		n += sizeOfArg(a)
	}
	n += sizeOfAttributes(r.Attrs)
	return n
}

// EncodeLogRecord writes the full 6-element array.
func EncodeLogRecord(e *Emitter, r LogRecord) {
	EncodeArrayHeader(e, 6)
	EncodeSeverity(e, r.Severity)
	EncodeOwnerContext(e, r.Owner)
	encodeFixedTimestamp(e, r.Timestamp)
	EncodeText(e, r.Message)
	EncodeArrayHeader(e, len(r.Args))
	for _, a := range r.Args {
		EncodeArg(e, a)
	}
	EncodeAttributes(e, r.Attrs)
}

// DecodeLogRecord parses a full 6-element log record.
func DecodeLogRecord(p *Parser) (LogRecord, error) {
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return LogRecord{}, err
	}
	if n != 6 {
		return LogRecord{}, newErr(TupleSizeMismatch, "DecodeLogRecord")
	}
	var r LogRecord
	if r.Severity, err = DecodeSeverity(p); err != nil {
		return LogRecord{}, err
	}
	if r.Owner, err = DecodeOwnerContext(p); err != nil {
		return LogRecord{}, err
	}
	if r.Timestamp, err = decodeFixedTimestamp(p); err != nil {
		return LogRecord{}, err
	}
	if r.Message, err = DecodeText(p); err != nil {
		return LogRecord{}, err
	}
	argc, err := DecodeArrayHeader(p)
	if err != nil {
		return LogRecord{}, err
	}
	r.Args = make([]LoggableArg, argc)
	for i := range r.Args {
		if r.Args[i], err = DecodeArg(p); err != nil {
			return LogRecord{}, err
		}
	}
	if r.Attrs, err = DecodeAttributes(p); err != nil {
		return LogRecord{}, err
	}
	return r, nil
}

// --- span start / end (spec §3) -------------------------------------------

// SpanStart is the 7-tuple described in spec §3.
type SpanStart struct {
	Context Context7
	Kind    SpanKind
	Parent  SpanContext
	Timestamp uint64
	Name    string
	Links   []SpanContext
	Attrs   Attributes
}

// Context7 names the span-start's own context field to avoid confusion
// with its parent field; both are plain SpanContext values.
type Context7 = SpanContext

func SizeOfSpanStart(s SpanStart) int {
	n := sizeOfHead(7)
	n += sizeOfSpanContext(s.Context)
	n += sizeOfUint(uint64(s.Kind))
	n += sizeOfSpanContext(s.Parent)
	n += timestampWireSize
	n += sizeOfText(s.Name)
	n += sizeOfHead(uint64(len(s.Links)))
	for _, l := range s.Links {
		n += sizeOfSpanContext(l)
	}
	n += sizeOfAttributes(s.Attrs)
	return n
}

func EncodeSpanStart(e *Emitter, s SpanStart) {
	EncodeArrayHeader(e, 7)
	EncodeSpanContext(e, s.Context)
	EncodeUint(e, uint64(s.Kind))
	EncodeSpanContext(e, s.Parent)
	encodeFixedTimestamp(e, s.Timestamp)
	EncodeText(e, s.Name)
	EncodeArrayHeader(e, len(s.Links))
	for _, l := range s.Links {
		EncodeSpanContext(e, l)
	}
	EncodeAttributes(e, s.Attrs)
}

func DecodeSpanStart(p *Parser) (SpanStart, error) {
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return SpanStart{}, err
	}
	if n != 7 {
		return SpanStart{}, newErr(TupleSizeMismatch, "DecodeSpanStart")
	}
	var s SpanStart
	if s.Context, err = DecodeSpanContext(p); err != nil {
		return SpanStart{}, err
	}
	kindv, err := DecodeUint(p)
	if err != nil {
		return SpanStart{}, err
	}
	s.Kind = SpanKind(kindv)
	if s.Parent, err = DecodeSpanContext(p); err != nil {
		return SpanStart{}, err
	}
	if s.Timestamp, err = decodeFixedTimestamp(p); err != nil {
		return SpanStart{}, err
	}
	if s.Name, err = DecodeText(p); err != nil {
		return SpanStart{}, err
	}
	linkc, err := DecodeArrayHeader(p)
	if err != nil {
		return SpanStart{}, err
	}
	s.Links = make([]SpanContext, linkc)
	for i := range s.Links {
		if s.Links[i], err = DecodeSpanContext(p); err != nil {
			return SpanStart{}, err
		}
	}
	if s.Attrs, err = DecodeAttributes(p); err != nil {
		return SpanStart{}, err
	}
	return s, nil
}

// SpanEnd is the 2-tuple described in spec §3.
type SpanEnd struct {
	Context   SpanContext
	Timestamp uint64
}

func SizeOfSpanEnd(s SpanEnd) int {
	return sizeOfHead(2) + sizeOfSpanContext(s.Context) + timestampWireSize
}

func EncodeSpanEnd(e *Emitter, s SpanEnd) {
	EncodeArrayHeader(e, 2)
	EncodeSpanContext(e, s.Context)
	encodeFixedTimestamp(e, s.Timestamp)
}

func DecodeSpanEnd(p *Parser) (SpanEnd, error) {
	n, err := DecodeArrayHeader(p)
	if err != nil {
		return SpanEnd{}, err
	}
	if n != 2 {
		return SpanEnd{}, newErr(TupleSizeMismatch, "DecodeSpanEnd")
	}
	var s SpanEnd
	if s.Context, err = DecodeSpanContext(p); err != nil {
		return SpanEnd{}, err
	}
	if s.Timestamp, err = decodeFixedTimestamp(p); err != nil {
		return SpanEnd{}, err
	}
	return s, nil
}
