package codec

import (
	"encoding/binary"
	"math"
)

// Decoder reads values from a payload in the order they were encoded.
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder creates a decoder over data. The slice is not copied; values
// returned by Bytes are copies and stay valid after data is mutated.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Offset returns the number of bytes consumed.
func (d *Decoder) Offset() int {
	return d.off
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.off
}

// Finish fails with a trailing bytes error when input remains.
func (d *Decoder) Finish() error {
	if extra := d.Remaining(); extra > 0 {
		return trailing(d.off, extra)
	}
	return nil
}

func (d *Decoder) take(n int, what string) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, truncated(d.off, "%s needs %d bytes, %d left", what, n, d.Remaining())
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

// U8 reads one byte.
func (d *Decoder) U8() (uint8, error) {
	b, err := d.take(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian u16.
func (d *Decoder) U16() (uint16, error) {
	b, err := d.take(2, "u16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian u32.
func (d *Decoder) U32() (uint32, error) {
	b, err := d.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian u64.
func (d *Decoder) U64() (uint64, error) {
	b, err := d.take(8, "u64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// I32 reads a two's complement i32.
func (d *Decoder) I32() (int32, error) {
	v, err := d.U32()
	return int32(v), err
}

// I64 reads a two's complement i64.
func (d *Decoder) I64() (int64, error) {
	v, err := d.U64()
	return int64(v), err
}

// F32 reads an IEEE 754 f32.
func (d *Decoder) F32() (float32, error) {
	v, err := d.U32()
	return math.Float32frombits(v), err
}

// F64 reads an IEEE 754 f64.
func (d *Decoder) F64() (float64, error) {
	v, err := d.U64()
	return math.Float64frombits(v), err
}

// Bool reads a u8 that must be 0 or 1.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Tag(2)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// Tag reads a discriminant and checks it against the number of variants.
func (d *Decoder) Tag(variants int) (uint8, error) {
	at := d.off
	tag, err := d.U8()
	if err != nil {
		return 0, err
	}
	if int(tag) >= variants {
		return 0, badTag(at, tag, variants)
	}
	return tag, nil
}

// Option reads an option tag and reports whether a value follows.
func (d *Decoder) Option() (bool, error) {
	tag, err := d.Tag(2)
	if err != nil {
		return false, err
	}
	return tag == 1, nil
}

// Len reads a length or count prefix. A prefix larger than the remaining input
// is reported as truncated because every element occupies at least one byte.
func (d *Decoder) Len() (int, error) {
	at := d.off
	n, err := d.U32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(d.Remaining()) {
		return 0, truncated(at, "length prefix %d exceeds %d remaining bytes", n, d.Remaining())
	}
	return int(n), nil
}

// Bytes reads a length-prefixed byte string. The result is always non-nil.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	b, err := d.take(n, "bytes")
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// String reads a length-prefixed string.
func (d *Decoder) String() (string, error) {
	n, err := d.Len()
	if err != nil {
		return "", err
	}
	b, err := d.take(n, "string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Fixed reads n raw bytes.
func (d *Decoder) Fixed(n int) ([]byte, error) {
	b, err := d.take(n, "fixed")
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// OptionalBytes is the inverse of Encoder.PutOptionalBytes.
func (d *Decoder) OptionalBytes() ([]byte, error) {
	some, err := d.Option()
	if err != nil || !some {
		return nil, err
	}
	return d.Bytes()
}

// Get decodes a nested value.
func (d *Decoder) Get(v Unmarshaler) error {
	return v.UnmarshalZephyr(d)
}

// BytesSeq reads a count-prefixed sequence of byte strings.
func (d *Decoder) BytesSeq() ([][]byte, error) {
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := d.Bytes()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ReadSeq reads a count-prefixed sequence written by PutSeq. A count larger
// than the remaining bytes is truncated input, which rules out zero-width T.
func ReadSeq[T any, PT Decodable[T]](d *Decoder) ([]T, error) {
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		if err := PT(&out[i]).UnmarshalZephyr(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}
