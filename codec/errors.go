package codec

import "fmt"

// ErrorKind classifies a decoding failure.
type ErrorKind uint8

const (
	// KindTruncated means the payload ended before a declared length was satisfied
	KindTruncated ErrorKind = iota + 1
	// KindTrailingBytes means bytes remained after the value was fully decoded
	KindTrailingBytes
	// KindInvalidDiscriminant means a tag was outside the known variant range
	KindInvalidDiscriminant
)

func (k ErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindTrailingBytes:
		return "trailing bytes"
	case KindInvalidDiscriminant:
		return "invalid discriminant"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Error is returned for every payload that does not match the expected shape.
// Two errors are considered equal by errors.Is when their kinds match, so the
// sentinels below can be used to branch on the failure class.
type Error struct {
	Kind   ErrorKind
	Offset int
	Detail string
}

var (
	ErrTruncated           = &Error{Kind: KindTruncated}
	ErrTrailingBytes       = &Error{Kind: KindTrailingBytes}
	ErrInvalidDiscriminant = &Error{Kind: KindInvalidDiscriminant}
)

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("codec: %s at offset %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("codec: %s at offset %d: %s", e.Kind, e.Offset, e.Detail)
}

// Is reports whether target is a codec error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func truncated(offset int, format string, args ...any) *Error {
	return &Error{Kind: KindTruncated, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

func trailing(offset, extra int) *Error {
	return &Error{Kind: KindTrailingBytes, Offset: offset, Detail: fmt.Sprintf("%d unread bytes", extra)}
}

func badTag(offset int, tag uint8, max int) *Error {
	return &Error{
		Kind:   KindInvalidDiscriminant,
		Offset: offset,
		Detail: fmt.Sprintf("tag %d outside [0, %d)", tag, max),
	}
}
