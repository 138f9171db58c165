package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type pair struct {
	Name  string
	Count uint32
	Tags  [][]byte
	Extra []byte
}

func (p pair) MarshalZephyr(e *Encoder) {
	e.PutString(p.Name)
	e.PutU32(p.Count)
	e.PutBytesSeq(p.Tags)
	e.PutOptionalBytes(p.Extra)
}

func (p *pair) UnmarshalZephyr(d *Decoder) error {
	var err error
	if p.Name, err = d.String(); err != nil {
		return err
	}
	if p.Count, err = d.U32(); err != nil {
		return err
	}
	if p.Tags, err = d.BytesSeq(); err != nil {
		return err
	}
	p.Extra, err = d.OptionalBytes()
	return err
}

func (pair) ZephyrShape() Shape {
	return StructShape(StringShape(), U32Shape(), SeqShape(BytesShape()), OptionShape(BytesShape()))
}

func TestScalarLayout(t *testing.T) {
	e := NewEncoder()
	e.PutU32(1)
	e.PutI64(-2)
	e.PutBool(true)
	e.PutBytes([]byte("ab"))

	expected := []byte{
		1, 0, 0, 0,
		0xfe, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		1,
		2, 0, 0, 0, 'a', 'b',
	}
	assert.Equal(t, expected, e.Bytes())
}

func TestI128Layout(t *testing.T) {
	v := I128FromInt64(-1)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 16), Marshal(v))

	v = I128{Hi: 2, Lo: 1}
	b := Marshal(v)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0}, b)

	got, err := Decode[I128](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestStructRoundTrip(t *testing.T) {
	in := pair{Name: "counter", Count: 7, Tags: [][]byte{{1}, {}}, Extra: []byte{}}
	b := Marshal(in)

	out, err := Decode[pair](b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	require.NoError(t, in.ZephyrShape().Validate(b))
}

func TestNilOptionalBytes(t *testing.T) {
	in := pair{Name: "x", Tags: [][]byte{}}
	out, err := Decode[pair](Marshal(in))
	require.NoError(t, err)
	assert.Nil(t, out.Extra)
}

func TestDecodeErrors(t *testing.T) {
	valid := Marshal(pair{Name: "abc", Count: 1, Tags: [][]byte{{9}}})

	t.Run("truncated", func(t *testing.T) {
		for i := 0; i < len(valid); i++ {
			_, err := Decode[pair](valid[:i])
			require.Error(t, err, "prefix %d", i)
			assert.ErrorIs(t, err, ErrTruncated, "prefix %d", i)
		}
	})

	t.Run("trailing", func(t *testing.T) {
		_, err := Decode[pair](append(append([]byte{}, valid...), 0))
		assert.ErrorIs(t, err, ErrTrailingBytes)
		assert.NotErrorIs(t, err, ErrTruncated)
	})

	t.Run("oversized length", func(t *testing.T) {
		_, err := Decode[Bytes]([]byte{0xff, 0xff, 0xff, 0xff, 1})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("bad option tag", func(t *testing.T) {
		b := Marshal(pair{Name: "", Tags: [][]byte{}})
		b[len(b)-1] = 2
		_, err := Decode[pair](b)
		assert.ErrorIs(t, err, ErrInvalidDiscriminant)
	})

	t.Run("bad bool", func(t *testing.T) {
		_, err := Decode[Bool]([]byte{3})
		assert.ErrorIs(t, err, ErrInvalidDiscriminant)
	})
}

func TestErrorDetails(t *testing.T) {
	_, err := Decode[U64]([]byte{1, 2})
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, KindTruncated, cerr.Kind)
	assert.Equal(t, 0, cerr.Offset)
	assert.Contains(t, err.Error(), "truncated")
}

func TestValueVariants(t *testing.T) {
	cases := []struct {
		val Marshaler
		tag uint8
	}{
		{I128{Hi: -1, Lo: 5}, TagI128},
		{I64(-9), TagI64},
		{U64(9), TagU64},
		{F64(1.5), TagF64},
		{U32(3), TagU32},
		{I32(-3), TagI32},
		{F32(0.25), TagF32},
		{String("hi"), TagString},
		{Bytes{1, 2}, TagBytes},
	}
	for _, c := range cases {
		b := Marshal(Value{Val: c.val})
		require.Equal(t, c.tag, b[0])

		got, err := Decode[Value](b)
		require.NoError(t, err)
		assert.Equal(t, c.val, got.Val)
		require.NoError(t, Value{}.ZephyrShape().Validate(b))
	}

	_, err := Decode[Value]([]byte{9, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidDiscriminant)
}

func TestValueUnsupported(t *testing.T) {
	_, err := Value{Val: Bool(true)}.Tag()
	assert.Error(t, err)
	assert.Panics(t, func() { Marshal(Value{}) })
}

func TestEncodeRejectsUnsupported(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	_, err = Encode(Value{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	_, err = Encode((*Value)(nil))
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	_, err = Encode(&Value{Val: Bool(true)})
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	b, err := Encode(Value{Val: U32(5)})
	require.NoError(t, err)
	assert.Equal(t, []byte{TagU32, 5, 0, 0, 0}, b)
	b, err = Encode(String("hi"))
	require.NoError(t, err)
	assert.Equal(t, Marshal(String("hi")), b)
}

type empty struct{}

func (empty) MarshalZephyr(*Encoder) {}
func (*empty) UnmarshalZephyr(*Decoder) error { return nil }

// A count prefix must fit in the remaining bytes, so zero-width elements are
// rejected as truncated input rather than decoded.
func TestZeroWidthSeqRejected(t *testing.T) {
	e := NewEncoder()
	PutSeq(e, []empty{{}, {}, {}})
	_, err := ReadSeq[empty](NewDecoder(e.Bytes()))
	assert.ErrorIs(t, err, ErrTruncated)

	e = NewEncoder()
	PutSeq(e, []empty{})
	got, err := ReadSeq[empty](NewDecoder(e.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestShapeOf(t *testing.T) {
	s, ok := ShapeOf[pair]()
	require.True(t, ok)
	assert.Equal(t, KindStruct, s.Kind)

	_, ok = ShapeOf[int]()
	assert.False(t, ok)
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := pair{
			Name:  rapid.String().Draw(t, "name"),
			Count: rapid.Uint32().Draw(t, "count"),
			Tags:  rapid.SliceOf(rapid.SliceOf(rapid.Byte())).Draw(t, "tags"),
		}
		if rapid.Bool().Draw(t, "has-extra") {
			in.Extra = rapid.SliceOf(rapid.Byte()).Draw(t, "extra")
			if in.Extra == nil {
				in.Extra = []byte{}
			}
		}
		for i := range in.Tags {
			if in.Tags[i] == nil {
				in.Tags[i] = []byte{}
			}
		}
		if in.Tags == nil {
			in.Tags = [][]byte{}
		}

		b := Marshal(in)
		// encoding is deterministic
		if !bytes.Equal(b, Marshal(in)) {
			t.Fatalf("two encodings of the same value differ")
		}
		out, err := Decode[pair](b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(b, Marshal(out)) {
			t.Fatalf("re-encoding changed the payload")
		}
		if err := in.ZephyrShape().Validate(b); err != nil {
			t.Fatalf("validate: %v", err)
		}
	})
}

func TestFloatRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := rapid.Float64().Draw(t, "f")
		if math.IsNaN(f) {
			t.Skip("NaN has no equality")
		}
		got, err := Decode[F64](Marshal(F64(f)))
		if err != nil || float64(got) != f {
			t.Fatalf("round trip of %v gave %v (%v)", f, got, err)
		}
	})
}

func TestTruncationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := String(rapid.StringN(1, 64, -1).Draw(t, "s"))
		b := Marshal(s)
		cut := rapid.IntRange(0, len(b)-1).Draw(t, "cut")
		_, err := Decode[String](b[:cut])
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("expected truncated, got %v", err)
		}
	})
}
