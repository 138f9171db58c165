package types

import (
	"fmt"
	"log/slog"

	"github.com/xycloo/zephyr-go/codec"
)

// Invocation identifies one run of guest logic.
type Invocation struct {
	ID       uint64
	Contract []byte
	// Timestamp is the invocation time in unix seconds; zero lets the host
	// pick its own clock.
	Timestamp int64
}

func putShape(e *codec.Encoder, s *codec.Shape) {
	if s == nil {
		e.PutTag(0)
		return
	}
	e.PutTag(1)
	e.Put(*s)
}

func getShape(d *codec.Decoder) (*codec.Shape, error) {
	some, err := d.Option()
	if err != nil || !some {
		return nil, err
	}
	var s codec.Shape
	if err := d.Get(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StorageReadParams asks for the value stored under Key. When Shape is set the
// host checks the stored value against it and answers StatusInvalidInput on a
// mismatch.
type StorageReadParams struct {
	Key   []byte
	Shape *codec.Shape
}

func (p StorageReadParams) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(p.Key)
	putShape(e, p.Shape)
}

func (p *StorageReadParams) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if p.Key, err = d.Bytes(); err != nil {
		return err
	}
	p.Shape, err = getShape(d)
	return err
}

type StorageWriteParams struct {
	Key   []byte
	Value []byte
}

func (p StorageWriteParams) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(p.Key)
	e.PutBytes(p.Value)
}

func (p *StorageWriteParams) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if p.Key, err = d.Bytes(); err != nil {
		return err
	}
	p.Value, err = d.Bytes()
	return err
}

type StorageDeleteParams struct {
	Key []byte
}

func (p StorageDeleteParams) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(p.Key)
}

func (p *StorageDeleteParams) UnmarshalZephyr(d *codec.Decoder) (err error) {
	p.Key, err = d.Bytes()
	return err
}

// StorageRangeParams lists the entries of the invocation's storage view whose
// key starts with Prefix, in key order. Limit zero means no limit. When Shape
// is set every listed value must match it.
type StorageRangeParams struct {
	Prefix []byte
	Limit  uint32
	Shape  *codec.Shape
}

func (p StorageRangeParams) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(p.Prefix)
	e.PutU32(p.Limit)
	putShape(e, p.Shape)
}

func (p *StorageRangeParams) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if p.Prefix, err = d.Bytes(); err != nil {
		return err
	}
	if p.Limit, err = d.U32(); err != nil {
		return err
	}
	p.Shape, err = getShape(d)
	return err
}

// StorageEntry is one key of the storage view with its current value.
type StorageEntry struct {
	Key   []byte
	Value []byte
}

func (s StorageEntry) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(s.Key)
	e.PutBytes(s.Value)
}

func (s *StorageEntry) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if s.Key, err = d.Bytes(); err != nil {
		return err
	}
	s.Value, err = d.Bytes()
	return err
}

type StorageRangeResult struct {
	Entries []StorageEntry
}

func (r StorageRangeResult) MarshalZephyr(e *codec.Encoder) {
	codec.PutSeq(e, r.Entries)
}

func (r *StorageRangeResult) UnmarshalZephyr(d *codec.Decoder) (err error) {
	r.Entries, err = codec.ReadSeq[StorageEntry](d)
	return err
}

// Event is an indexed notification produced by guest logic.
type Event struct {
	Topics [][]byte
	Data   []byte
}

func (ev Event) MarshalZephyr(e *codec.Encoder) {
	e.PutBytesSeq(ev.Topics)
	e.PutBytes(ev.Data)
}

func (ev *Event) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if ev.Topics, err = d.BytesSeq(); err != nil {
		return err
	}
	ev.Data, err = d.Bytes()
	return err
}

// LedgerGetParams reads Key as of the committed Sequence. Sequence zero means
// the latest committed state.
type LedgerGetParams struct {
	Key      []byte
	Sequence uint64
	Shape    *codec.Shape
}

func (p LedgerGetParams) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(p.Key)
	e.PutU64(p.Sequence)
	putShape(e, p.Shape)
}

func (p *LedgerGetParams) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if p.Key, err = d.Bytes(); err != nil {
		return err
	}
	if p.Sequence, err = d.U64(); err != nil {
		return err
	}
	p.Shape, err = getShape(d)
	return err
}

// LedgerRangeParams selects entry changes whose key starts with Prefix and
// whose sequence lies in [FromSequence, ToSequence]. ToSequence zero means no
// upper bound, Limit zero means no limit.
type LedgerRangeParams struct {
	Prefix       []byte
	FromSequence uint64
	ToSequence   uint64
	Limit        uint32
}

func (p LedgerRangeParams) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(p.Prefix)
	e.PutU64(p.FromSequence)
	e.PutU64(p.ToSequence)
	e.PutU32(p.Limit)
}

func (p *LedgerRangeParams) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if p.Prefix, err = d.Bytes(); err != nil {
		return err
	}
	if p.FromSequence, err = d.U64(); err != nil {
		return err
	}
	if p.ToSequence, err = d.U64(); err != nil {
		return err
	}
	p.Limit, err = d.U32()
	return err
}

// ChangeKind classifies an entry change within a transition.
type ChangeKind uint8

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeRemoved

	changeKinds = 3
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return fmt.Sprintf("change(%d)", uint8(k))
	}
}

// EntryChange is one key touched by a committed transition. Value is nil for
// removals.
type EntryChange struct {
	Sequence  uint64
	Timestamp int64
	Key       []byte
	Kind      ChangeKind
	Value     []byte
}

func (c EntryChange) MarshalZephyr(e *codec.Encoder) {
	e.PutU64(c.Sequence)
	e.PutI64(c.Timestamp)
	e.PutBytes(c.Key)
	e.PutTag(uint8(c.Kind))
	e.PutOptionalBytes(c.Value)
}

func (c *EntryChange) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if c.Sequence, err = d.U64(); err != nil {
		return err
	}
	if c.Timestamp, err = d.I64(); err != nil {
		return err
	}
	if c.Key, err = d.Bytes(); err != nil {
		return err
	}
	kind, err := d.Tag(changeKinds)
	if err != nil {
		return err
	}
	c.Kind = ChangeKind(kind)
	c.Value, err = d.OptionalBytes()
	return err
}

type LedgerRangeResult struct {
	Changes []EntryChange
}

func (r LedgerRangeResult) MarshalZephyr(e *codec.Encoder) {
	codec.PutSeq(e, r.Changes)
}

func (r *LedgerRangeResult) UnmarshalZephyr(d *codec.Decoder) (err error) {
	r.Changes, err = codec.ReadSeq[EntryChange](d)
	return err
}

// LedgerInfo describes the state an invocation runs against.
type LedgerInfo struct {
	Sequence     uint64
	Timestamp    int64
	InvocationID uint64
	Contract     []byte
}

func (l LedgerInfo) MarshalZephyr(e *codec.Encoder) {
	e.PutU64(l.Sequence)
	e.PutI64(l.Timestamp)
	e.PutU64(l.InvocationID)
	e.PutBytes(l.Contract)
}

func (l *LedgerInfo) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if l.Sequence, err = d.U64(); err != nil {
		return err
	}
	if l.Timestamp, err = d.I64(); err != nil {
		return err
	}
	if l.InvocationID, err = d.U64(); err != nil {
		return err
	}
	l.Contract, err = d.Bytes()
	return err
}

// LogLevel is the severity of a guest log record.
type LogLevel uint8

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarning
	LogError

	logLevels = 4
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarning:
		return "warning"
	case LogError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// Slog maps the level onto log/slog.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarning:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type LogParams struct {
	Level   LogLevel
	Message string
	Data    []byte
}

func (p LogParams) MarshalZephyr(e *codec.Encoder) {
	e.PutTag(uint8(p.Level))
	e.PutString(p.Message)
	e.PutOptionalBytes(p.Data)
}

func (p *LogParams) UnmarshalZephyr(d *codec.Decoder) error {
	level, err := d.Tag(logLevels)
	if err != nil {
		return err
	}
	p.Level = LogLevel(level)
	if p.Message, err = d.String(); err != nil {
		return err
	}
	p.Data, err = d.OptionalBytes()
	return err
}

// ConcludeParams carries the invocation result.
type ConcludeParams struct {
	Result []byte
}

func (p ConcludeParams) MarshalZephyr(e *codec.Encoder) {
	e.PutBytes(p.Result)
}

func (p *ConcludeParams) UnmarshalZephyr(d *codec.Decoder) (err error) {
	p.Result, err = d.Bytes()
	return err
}
