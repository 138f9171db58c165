package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/xycloo/zephyr-go/types"
)

// OpKind is the type of a buffered storage operation.
type OpKind uint8

const (
	OpWrite OpKind = iota + 1
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Operation is one write or delete in the order it was issued.
type Operation struct {
	Kind  OpKind `cbor:"1,keyasint"`
	Key   []byte `cbor:"2,keyasint"`
	Value []byte `cbor:"3,keyasint,omitempty"`
}

var ErrInvalidOperation = errors.New("invalid operation")

// Validate checks the structural bounds of the operation.
func (op Operation) Validate() error {
	if op.Kind != OpWrite && op.Kind != OpDelete {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidOperation, op.Kind)
	}
	if err := CheckKey(op.Key); err != nil {
		return err
	}
	if op.Kind == OpWrite && len(op.Value) > types.MaxPayloadSize {
		return fmt.Errorf("%w: value of %d bytes exceeds %d", ErrInvalidOperation, len(op.Value), types.MaxPayloadSize)
	}
	return nil
}

// CheckKey rejects empty and oversized keys.
func CheckKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidOperation)
	}
	if len(key) > types.MaxKeySize {
		return fmt.Errorf("%w: key of %d bytes exceeds %d", ErrInvalidOperation, len(key), types.MaxKeySize)
	}
	return nil
}

// Transition is the committed effect of one invocation. It is never mutated
// after construction.
type Transition struct {
	Sequence     uint64
	InvocationID uint64
	Timestamp    int64
	Before       *Snapshot
	After        *Snapshot
	Ops          []Operation
}

// NewTransition applies ops on top of before at the next sequence.
func NewTransition(before *Snapshot, invocationID uint64, timestamp int64, ops []Operation) (*Transition, error) {
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
	}
	seq := before.Sequence() + 1
	return &Transition{
		Sequence:     seq,
		InvocationID: invocationID,
		Timestamp:    timestamp,
		Before:       before,
		After:        before.Apply(seq, timestamp, ops),
		Ops:          append([]Operation(nil), ops...),
	}, nil
}

// Changes returns the net change of every key touched by the transition, in
// key order. A key deleted without ever existing produces no change.
func (t *Transition) Changes() []types.EntryChange {
	return Diff(t.Before, t.After, t.Ops, t.Sequence, t.Timestamp)
}

// Diff compares before and after on the keys named by ops.
func Diff(before, after *Snapshot, ops []Operation, sequence uint64, timestamp int64) []types.EntryChange {
	seen := make(map[string]struct{}, len(ops))
	var keys [][]byte
	for _, op := range ops {
		if _, ok := seen[string(op.Key)]; ok {
			continue
		}
		seen[string(op.Key)] = struct{}{}
		keys = append(keys, op.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	var changes []types.EntryChange
	for _, key := range keys {
		was := before.Has(key)
		value, is := after.Get(key)
		change := types.EntryChange{Sequence: sequence, Timestamp: timestamp, Key: clone(key)}
		switch {
		case !was && is:
			change.Kind = types.ChangeCreated
			change.Value = value
		case was && is:
			change.Kind = types.ChangeUpdated
			change.Value = value
		case was && !is:
			change.Kind = types.ChangeRemoved
		default:
			continue
		}
		changes = append(changes, change)
	}
	return changes
}
