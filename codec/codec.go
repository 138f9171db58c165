package codec

import (
	"errors"
	"fmt"
)

// ErrUnsupportedValue is returned by Encode for values that have no encoding.
var ErrUnsupportedValue = errors.New("codec: unsupported value")
// Marshaler is implemented by every value that can cross the host boundary.
type Marshaler interface {
	MarshalZephyr(e *Encoder)
}

// Unmarshaler is implemented by pointers to values that can be decoded.
type Unmarshaler interface {
	UnmarshalZephyr(d *Decoder) error
}

// Decodable constrains a type parameter to pointers that know how to decode T.
type Decodable[T any] interface {
	*T
	Unmarshaler
}

// Shaped is implemented by values that can describe their own wire layout.
type Shaped interface {
	ZephyrShape() Shape
}

// Marshal encodes v into a fresh payload. It panics on a nil v or a zero
// Value; Encode reports those as errors instead.
func Marshal(v Marshaler) []byte {
	e := NewEncoder()
	v.MarshalZephyr(e)
	if e.buf == nil {
		return []byte{}
	}
	return e.buf
}

// Encode is Marshal for values supplied by callers: a nil v or a Value
// without a scalar is rejected with ErrUnsupportedValue.
func Encode(v Marshaler) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	case Value:
		if _, err := x.Tag(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
	case *Value:
		if x == nil {
			return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
		}
		if _, err := x.Tag(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
	}
	return Marshal(v), nil
}

// Unmarshal decodes data into v and requires the whole payload to be consumed.
func Unmarshal(data []byte, v Unmarshaler) error {
	d := NewDecoder(data)
	if err := v.UnmarshalZephyr(d); err != nil {
		return err
	}
	return d.Finish()
}

// Decode decodes data as a T.
func Decode[T any, PT Decodable[T]](data []byte) (T, error) {
	var v T
	if err := Unmarshal(data, PT(&v)); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// ShapeOf returns the shape declared by T, if any.
func ShapeOf[T any]() (Shape, bool) {
	var v T
	if s, ok := any(&v).(Shaped); ok {
		return s.ZephyrShape(), true
	}
	if s, ok := any(v).(Shaped); ok {
		return s.ZephyrShape(), true
	}
	return Shape{}, false
}
