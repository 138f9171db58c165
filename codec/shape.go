package codec

import (
	"errors"
	"fmt"
)

// MaxShapeDepth bounds the nesting of a Shape.
const MaxShapeDepth = 32

// ErrShapeTooDeep is returned when a shape nests deeper than MaxShapeDepth.
var ErrShapeTooDeep = errors.New("codec: shape nesting too deep")

// ShapeKind identifies the layout of one node of a Shape.
type ShapeKind uint8

const (
	KindU8 ShapeKind = iota + 1
	KindU16
	KindU32
	KindU64
	KindI32
	KindI64
	KindI128
	KindF32
	KindF64
	KindBool
	KindBytes
	KindString
	KindFixed
	KindOption
	KindSeq
	KindStruct
	KindVariant

	maxShapeKind = KindVariant
)

var shapeKindNames = map[ShapeKind]string{
	KindU8:      "u8",
	KindU16:     "u16",
	KindU32:     "u32",
	KindU64:     "u64",
	KindI32:     "i32",
	KindI64:     "i64",
	KindI128:    "i128",
	KindF32:     "f32",
	KindF64:     "f64",
	KindBool:    "bool",
	KindBytes:   "bytes",
	KindString:  "string",
	KindFixed:   "fixed",
	KindOption:  "option",
	KindSeq:     "seq",
	KindStruct:  "struct",
	KindVariant: "variant",
}

func (k ShapeKind) String() string {
	if name, ok := shapeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// width returns the encoded size of fixed-width scalar kinds, or 0.
func (k ShapeKind) width() int {
	switch k {
	case KindU8:
		return 1
	case KindU16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindU64, KindI64, KindF64:
		return 8
	case KindI128:
		return 16
	}
	return 0
}

// Shape describes the structure of an encoded payload. The host uses it to
// check a stored value against what the guest expects before answering a
// read.
type Shape struct {
	Kind ShapeKind
	// Elem is the element of Option and Seq shapes.
	Elem *Shape
	// Fields are the members of a Struct or the alternatives of a Variant.
	Fields []Shape
	// Size is the byte length of a Fixed shape.
	Size int
}

// U8Shape describes a u8.
func U8Shape() Shape { return Shape{Kind: KindU8} }

// U16Shape describes a u16.
func U16Shape() Shape { return Shape{Kind: KindU16} }

// U32Shape describes a u32.
func U32Shape() Shape { return Shape{Kind: KindU32} }

// U64Shape describes a u64.
func U64Shape() Shape { return Shape{Kind: KindU64} }

// I32Shape describes an i32.
func I32Shape() Shape { return Shape{Kind: KindI32} }

// I64Shape describes an i64.
func I64Shape() Shape { return Shape{Kind: KindI64} }

// I128Shape describes an i128.
func I128Shape() Shape { return Shape{Kind: KindI128} }

// F32Shape describes an f32.
func F32Shape() Shape { return Shape{Kind: KindF32} }

// F64Shape describes an f64.
func F64Shape() Shape { return Shape{Kind: KindF64} }

// BoolShape describes a bool.
func BoolShape() Shape { return Shape{Kind: KindBool} }

// BytesShape describes a byte string.
func BytesShape() Shape { return Shape{Kind: KindBytes} }

// StringShape describes a string.
func StringShape() Shape { return Shape{Kind: KindString} }

// FixedShape is n raw bytes without a prefix.
func FixedShape(n int) Shape { return Shape{Kind: KindFixed, Size: n} }

// OptionShape is an option tag followed by elem when present.
func OptionShape(elem Shape) Shape { return Shape{Kind: KindOption, Elem: &elem} }

// SeqShape is a count-prefixed sequence of elem.
func SeqShape(elem Shape) Shape { return Shape{Kind: KindSeq, Elem: &elem} }

// StructShape is fields encoded back to back.
func StructShape(fields ...Shape) Shape { return Shape{Kind: KindStruct, Fields: fields} }

// VariantShape is a one byte tag selecting one of alts.
func VariantShape(alts ...Shape) Shape { return Shape{Kind: KindVariant, Fields: alts} }

func (s Shape) String() string {
	switch s.Kind {
	case KindFixed:
		return fmt.Sprintf("fixed(%d)", s.Size)
	case KindOption, KindSeq:
		if s.Elem == nil {
			return s.Kind.String() + "(?)"
		}
		return fmt.Sprintf("%s(%s)", s.Kind, s.Elem)
	case KindStruct, KindVariant:
		return fmt.Sprintf("%s%v", s.Kind, s.Fields)
	default:
		return s.Kind.String()
	}
}

// Validate checks that payload is exactly one value of this shape.
func (s Shape) Validate(payload []byte) error {
	d := NewDecoder(payload)
	if err := s.skip(d, 0); err != nil {
		return err
	}
	return d.Finish()
}

func (s Shape) skip(d *Decoder, depth int) error {
	if depth > MaxShapeDepth {
		return ErrShapeTooDeep
	}
	if n := s.Kind.width(); n > 0 {
		_, err := d.take(n, s.Kind.String())
		return err
	}
	switch s.Kind {
	case KindBool:
		_, err := d.Bool()
		return err
	case KindBytes, KindString:
		n, err := d.Len()
		if err != nil {
			return err
		}
		_, err = d.take(n, s.Kind.String())
		return err
	case KindFixed:
		_, err := d.take(s.Size, "fixed")
		return err
	case KindOption:
		some, err := d.Option()
		if err != nil || !some {
			return err
		}
		return s.elem().skip(d, depth+1)
	case KindSeq:
		n, err := d.Len()
		if err != nil {
			return err
		}
		elem := s.elem()
		for i := 0; i < n; i++ {
			if err := elem.skip(d, depth+1); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		for _, f := range s.Fields {
			if err := f.skip(d, depth+1); err != nil {
				return err
			}
		}
		return nil
	case KindVariant:
		tag, err := d.Tag(len(s.Fields))
		if err != nil {
			return err
		}
		return s.Fields[tag].skip(d, depth+1)
	default:
		return fmt.Errorf("codec: cannot validate against %s", s.Kind)
	}
}

func (s Shape) elem() Shape {
	if s.Elem == nil {
		return Shape{Kind: KindStruct}
	}
	return *s.Elem
}

// Depth returns the nesting depth of the shape; scalars have depth 0.
func (s Shape) Depth() int {
	deepest := 0
	if s.Elem != nil {
		deepest = s.Elem.Depth() + 1
	}
	for _, f := range s.Fields {
		if d := f.Depth() + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

// MarshalZephyr writes the shape as a kind tag followed by its parameters.
func (s Shape) MarshalZephyr(e *Encoder) {
	e.PutTag(uint8(s.Kind))
	switch s.Kind {
	case KindFixed:
		e.PutLen(s.Size)
	case KindOption, KindSeq:
		s.elem().MarshalZephyr(e)
	case KindStruct, KindVariant:
		PutSeq(e, s.Fields)
	}
}

func (s *Shape) UnmarshalZephyr(d *Decoder) error {
	return s.decode(d, 0)
}

func (s *Shape) decode(d *Decoder, depth int) error {
	if depth > MaxShapeDepth {
		return ErrShapeTooDeep
	}
	at := d.Offset()
	tag, err := d.U8()
	if err != nil {
		return err
	}
	kind := ShapeKind(tag)
	if kind == 0 || kind > maxShapeKind {
		return badTag(at, tag, int(maxShapeKind)+1)
	}
	*s = Shape{Kind: kind}
	switch kind {
	case KindFixed:
		n, err := d.U32()
		if err != nil {
			return err
		}
		s.Size = int(n)
	case KindOption, KindSeq:
		var elem Shape
		if err := elem.decode(d, depth+1); err != nil {
			return err
		}
		s.Elem = &elem
	case KindStruct, KindVariant:
		n, err := d.Len()
		if err != nil {
			return err
		}
		s.Fields = make([]Shape, n)
		for i := range s.Fields {
			if err := s.Fields[i].decode(d, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
