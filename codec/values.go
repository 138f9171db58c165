package codec

// Scalar value types that guest programs exchange with the host. Each one is
// a Marshaler, an Unmarshaler (through its pointer) and a Shaped type, so it
// can be used directly with the typed bridge operations.

// I128 is a signed 128 bit integer split into two halves. It encodes the low
// half first.
type I128 struct {
	Hi int64
	Lo uint64
}

// I128FromInt64 sign-extends v.
func I128FromInt64(v int64) I128 {
	hi := int64(0)
	if v < 0 {
		hi = -1
	}
	return I128{Hi: hi, Lo: uint64(v)}
}

func (v I128) MarshalZephyr(e *Encoder) {
	e.PutU64(v.Lo)
	e.PutI64(v.Hi)
}

func (v *I128) UnmarshalZephyr(d *Decoder) error {
	lo, err := d.U64()
	if err != nil {
		return err
	}
	hi, err := d.I64()
	if err != nil {
		return err
	}
	v.Hi, v.Lo = hi, lo
	return nil
}

func (I128) ZephyrShape() Shape { return I128Shape() }

// I64 is a signed 64 bit integer.
type I64 int64

func (v I64) MarshalZephyr(e *Encoder) { e.PutI64(int64(v)) }

func (v *I64) UnmarshalZephyr(d *Decoder) error {
	x, err := d.I64()
	*v = I64(x)
	return err
}

func (I64) ZephyrShape() Shape { return I64Shape() }

// U64 is an unsigned 64 bit integer.
type U64 uint64

func (v U64) MarshalZephyr(e *Encoder) { e.PutU64(uint64(v)) }

func (v *U64) UnmarshalZephyr(d *Decoder) error {
	x, err := d.U64()
	*v = U64(x)
	return err
}

func (U64) ZephyrShape() Shape { return U64Shape() }

// F64 is a 64 bit float, encoded by its IEEE 754 bits.
type F64 float64

func (v F64) MarshalZephyr(e *Encoder) { e.PutF64(float64(v)) }

func (v *F64) UnmarshalZephyr(d *Decoder) error {
	x, err := d.F64()
	*v = F64(x)
	return err
}

func (F64) ZephyrShape() Shape { return F64Shape() }

// U32 is an unsigned 32 bit integer.
type U32 uint32

func (v U32) MarshalZephyr(e *Encoder) { e.PutU32(uint32(v)) }

func (v *U32) UnmarshalZephyr(d *Decoder) error {
	x, err := d.U32()
	*v = U32(x)
	return err
}

func (U32) ZephyrShape() Shape { return U32Shape() }

// I32 is a signed 32 bit integer.
type I32 int32

func (v I32) MarshalZephyr(e *Encoder) { e.PutI32(int32(v)) }

func (v *I32) UnmarshalZephyr(d *Decoder) error {
	x, err := d.I32()
	*v = I32(x)
	return err
}

func (I32) ZephyrShape() Shape { return I32Shape() }

// F32 is a 32 bit float, encoded by its IEEE 754 bits.
type F32 float32

func (v F32) MarshalZephyr(e *Encoder) { e.PutF32(float32(v)) }

func (v *F32) UnmarshalZephyr(d *Decoder) error {
	x, err := d.F32()
	*v = F32(x)
	return err
}

func (F32) ZephyrShape() Shape { return F32Shape() }

// String is a length-prefixed UTF-8 string. The codec does not check the
// encoding.
type String string

func (v String) MarshalZephyr(e *Encoder) { e.PutString(string(v)) }

func (v *String) UnmarshalZephyr(d *Decoder) error {
	x, err := d.String()
	*v = String(x)
	return err
}

func (String) ZephyrShape() Shape { return StringShape() }

// Bytes is a length-prefixed byte string.
type Bytes []byte

func (v Bytes) MarshalZephyr(e *Encoder) { e.PutBytes(v) }

func (v *Bytes) UnmarshalZephyr(d *Decoder) error {
	x, err := d.Bytes()
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func (Bytes) ZephyrShape() Shape { return BytesShape() }

// Bool is a single byte that must be 0 or 1.
type Bool bool

func (v Bool) MarshalZephyr(e *Encoder) { e.PutBool(bool(v)) }

func (v *Bool) UnmarshalZephyr(d *Decoder) error {
	x, err := d.Bool()
	*v = Bool(x)
	return err
}

func (Bool) ZephyrShape() Shape { return BoolShape() }
