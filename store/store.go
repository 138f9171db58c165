// Package store defines the append-only backing store of committed ledger
// state.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/types"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// RangeQuery selects entry changes. To zero means the head, Limit zero means
// unlimited.
type RangeQuery struct {
	Prefix []byte
	From   uint64
	To     uint64
	Limit  int
}

// Store keeps an ordered history of transitions.
//
// Append is atomic and serialized: the stored transition gets the sequence
// after the current head and its operations are applied on top of the head,
// whatever snapshot the caller started from. Concurrent appends are therefore
// ordered by append, last committed wins.
type Store interface {
	// BeginReadOnly returns the snapshot at the current head.
	BeginReadOnly(ctx context.Context) (*ledger.Snapshot, error)
	// Append commits t and returns the stored transition.
	Append(ctx context.Context, t *ledger.Transition) (*ledger.Transition, error)
	// QueryByKey returns the value of key as of atSequence. Zero, or a
	// sequence past the head, reads the head.
	QueryByKey(ctx context.Context, key []byte, atSequence uint64) ([]byte, bool, error)
	// QueryByRange lists entry changes ordered by sequence then key.
	QueryByRange(ctx context.Context, q RangeQuery) ([]types.EntryChange, error)
	Close() error
}

// OpLog is implemented by stores that keep the issued operation order of
// each transition.
type OpLog interface {
	Operations(ctx context.Context, sequence uint64) ([]ledger.Operation, error)
}

// Rebase rebuilds t on top of head. Stores call it inside their append
// critical section.
func Rebase(head *ledger.Snapshot, t *ledger.Transition) (*ledger.Transition, error) {
	if t == nil {
		return nil, errors.New("nil transition")
	}
	rebased, err := ledger.NewTransition(head, t.InvocationID, t.Timestamp, t.Ops)
	if err != nil {
		return nil, fmt.Errorf("failed to rebase transition on sequence %d: %w", head.Sequence(), err)
	}
	return rebased, nil
}

// ResolveSequence clamps a requested sequence to the head.
func ResolveSequence(atSequence, head uint64) uint64 {
	if atSequence == 0 || atSequence > head {
		return head
	}
	return atSequence
}

// PrefixRange returns key range that corresponds to the given prefix.
// It returns start (inclusive) and end (exclusive) keys for iteration.
// A nil end means no upper bound.
func PrefixRange(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return nil, nil
	}

	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return prefix, end[:i+1]
		}
	}
	// all bytes are 0xff
	return prefix, nil
}
