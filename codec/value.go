package codec

import "fmt"

// Discriminants of Value, in wire order.
const (
	TagI128 uint8 = iota
	TagI64
	TagU64
	TagF64
	TagU32
	TagI32
	TagF32
	TagString
	TagBytes

	valueVariants = 9
)

// Value holds any one of the scalar value types. The zero Value is invalid:
// Marshal panics on it and Encode rejects it.
type Value struct {
	Val Marshaler
}

// Tag returns the discriminant of the held scalar.
func (v Value) Tag() (uint8, error) {
	switch v.Val.(type) {
	case I128:
		return TagI128, nil
	case I64:
		return TagI64, nil
	case U64:
		return TagU64, nil
	case F64:
		return TagF64, nil
	case U32:
		return TagU32, nil
	case I32:
		return TagI32, nil
	case F32:
		return TagF32, nil
	case String:
		return TagString, nil
	case Bytes:
		return TagBytes, nil
	default:
		return 0, fmt.Errorf("codec: unsupported value type %T", v.Val)
	}
}

func (v Value) MarshalZephyr(e *Encoder) {
	tag, err := v.Tag()
	if err != nil {
		panic(err)
	}
	e.PutTag(tag)
	v.Val.MarshalZephyr(e)
}

func (v *Value) UnmarshalZephyr(d *Decoder) error {
	tag, err := d.Tag(valueVariants)
	if err != nil {
		return err
	}
	switch tag {
	case TagI128:
		var x I128
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagI64:
		var x I64
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagU64:
		var x U64
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagF64:
		var x F64
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagU32:
		var x U32
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagI32:
		var x I32
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagF32:
		var x F32
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagString:
		var x String
		err = x.UnmarshalZephyr(d)
		v.Val = x
	case TagBytes:
		var x Bytes
		err = x.UnmarshalZephyr(d)
		v.Val = x
	}
	return err
}

func (Value) ZephyrShape() Shape {
	return VariantShape(
		I128Shape(), I64Shape(), U64Shape(), F64Shape(), U32Shape(),
		I32Shape(), F32Shape(), StringShape(), BytesShape(),
	)
}
