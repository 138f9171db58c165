// Package codec implements the deterministic binary format exchanged between a
// guest program and its host.
//
// Integers and floats are fixed-width little-endian. Byte strings, strings and
// sequences carry a u32 length prefix. Optional values and sum types carry a one
// byte tag. The format has no hidden state: equal values always encode to
// identical bytes.
//
// A count prefix is checked against the bytes left in the payload, so every
// sequence element must encode to at least one byte. Sequences of zero-width
// types such as struct{} are not supported.
package codec

import (
	"encoding/binary"
	"math"
)

// Encoder appends encoded values to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with an empty buffer.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded payload.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// PutU8 appends one byte.
func (e *Encoder) PutU8(v uint8) {
	e.buf = append(e.buf, v)
}

// PutU16 appends v little-endian.
func (e *Encoder) PutU16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

// PutU32 appends v little-endian.
func (e *Encoder) PutU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// PutU64 appends v little-endian.
func (e *Encoder) PutU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// PutI32 appends the two's complement bits of v.
func (e *Encoder) PutI32(v int32) {
	e.PutU32(uint32(v))
}

// PutI64 appends the two's complement bits of v.
func (e *Encoder) PutI64(v int64) {
	e.PutU64(uint64(v))
}

// PutF32 appends the IEEE 754 bits of v.
func (e *Encoder) PutF32(v float32) {
	e.PutU32(math.Float32bits(v))
}

// PutF64 appends the IEEE 754 bits of v.
func (e *Encoder) PutF64(v float64) {
	e.PutU64(math.Float64bits(v))
}

// PutBool appends 1 for true and 0 for false.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutU8(1)
		return
	}
	e.PutU8(0)
}

// PutTag writes a sum type or option discriminant.
func (e *Encoder) PutTag(tag uint8) {
	e.PutU8(tag)
}

// PutLen writes a u32 length or element count prefix.
func (e *Encoder) PutLen(n int) {
	e.PutU32(uint32(n))
}

// PutBytes writes a length-prefixed byte string.
func (e *Encoder) PutBytes(b []byte) {
	e.PutLen(len(b))
	e.buf = append(e.buf, b...)
}

// PutString writes a length-prefixed string.
func (e *Encoder) PutString(s string) {
	e.PutLen(len(s))
	e.buf = append(e.buf, s...)
}

// PutFixed writes raw bytes without a prefix. The reader must know the size.
func (e *Encoder) PutFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// PutOptionalBytes writes an option tag followed by the bytes when present.
// A nil slice encodes as none, an empty non-nil slice as some.
func (e *Encoder) PutOptionalBytes(b []byte) {
	if b == nil {
		e.PutTag(0)
		return
	}
	e.PutTag(1)
	e.PutBytes(b)
}

// Put writes a nested value.
func (e *Encoder) Put(v Marshaler) {
	v.MarshalZephyr(e)
}

// PutSeq writes a count-prefixed sequence of values. Each item must encode to
// at least one byte.
func PutSeq[T Marshaler](e *Encoder, items []T) {
	e.PutLen(len(items))
	for _, item := range items {
		item.MarshalZephyr(e)
	}
}

// PutBytesSeq writes a count-prefixed sequence of byte strings.
func (e *Encoder) PutBytesSeq(items [][]byte) {
	e.PutLen(len(items))
	for _, item := range items {
		e.PutBytes(item)
	}
}
