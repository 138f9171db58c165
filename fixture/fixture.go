// Package fixture builds ledger snapshots and transition chains for tests and
// for seeding a store.
package fixture

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/store"
)

// Fixture is a named genesis snapshot followed by the transitions built on it.
type Fixture struct {
	Name        string
	Genesis     *ledger.Snapshot
	Transitions []*ledger.Transition
}

// Head returns the snapshot after the last transition.
func (f *Fixture) Head() *ledger.Snapshot {
	if len(f.Transitions) == 0 {
		return f.Genesis
	}
	return f.Transitions[len(f.Transitions)-1].After
}

// Persist appends the fixture to s. A non-empty genesis goes first as one
// transition of writes, then every transition in order. The store assigns the
// sequences; the stored transitions are returned.
func (f *Fixture) Persist(ctx context.Context, s store.Store) ([]*ledger.Transition, error) {
	var stored []*ledger.Transition
	appendOps := func(invocationID uint64, ts int64, ops []ledger.Operation) error {
		head, err := s.BeginReadOnly(ctx)
		if err != nil {
			return fmt.Errorf("failed to read head: %w", err)
		}
		tr, err := ledger.NewTransition(head, invocationID, ts, ops)
		if err != nil {
			return err
		}
		out, err := s.Append(ctx, tr)
		if err != nil {
			return fmt.Errorf("failed to append transition: %w", err)
		}
		stored = append(stored, out)
		return nil
	}

	if f.Genesis != nil && f.Genesis.Len() > 0 {
		ops := make([]ledger.Operation, 0, f.Genesis.Len())
		for _, key := range f.Genesis.Keys() {
			value, _ := f.Genesis.Get(key)
			ops = append(ops, ledger.Operation{Kind: ledger.OpWrite, Key: key, Value: value})
		}
		if err := appendOps(0, f.Genesis.Timestamp(), ops); err != nil {
			return stored, fmt.Errorf("fixture %s genesis: %w", f.Name, err)
		}
	}
	for i, t := range f.Transitions {
		if err := appendOps(t.InvocationID, t.Timestamp, t.Ops); err != nil {
			return stored, fmt.Errorf("fixture %s transition %d: %w", f.Name, i, err)
		}
	}
	return stored, nil
}

// SnapshotBuilder accumulates entries for a snapshot. The first invalid key or
// value is reported by Snapshot.
type SnapshotBuilder struct {
	name     string
	sequence uint64
	ts       int64
	entries  map[string][]byte
	err      error
}

// New starts an empty snapshot builder at sequence zero.
func New(name string) *SnapshotBuilder {
	return &SnapshotBuilder{name: name, entries: make(map[string][]byte)}
}

// At sets the sequence and timestamp of the snapshot.
func (b *SnapshotBuilder) At(sequence uint64, ts int64) *SnapshotBuilder {
	b.sequence, b.ts = sequence, ts
	return b
}

// Set stores the encoding of v under key.
func (b *SnapshotBuilder) Set(key []byte, v codec.Marshaler) *SnapshotBuilder {
	value, err := codec.Encode(v)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("fixture %s: key %q: %w", b.name, key, err)
		}
		return b
	}
	return b.SetRaw(key, value)
}

// SetRaw stores value under key as is.
func (b *SnapshotBuilder) SetRaw(key, value []byte) *SnapshotBuilder {
	if b.err != nil {
		return b
	}
	op := ledger.Operation{Kind: ledger.OpWrite, Key: key, Value: value}
	if err := op.Validate(); err != nil {
		b.err = fmt.Errorf("fixture %s: %w", b.name, err)
		return b
	}
	b.entries[string(key)] = append([]byte{}, value...)
	return b
}

// Delete removes key from the entries set so far.
func (b *SnapshotBuilder) Delete(key []byte) *SnapshotBuilder {
	if b.err != nil {
		return b
	}
	if err := ledger.CheckKey(key); err != nil {
		b.err = fmt.Errorf("fixture %s: %w", b.name, err)
		return b
	}
	delete(b.entries, string(key))
	return b
}

// Snapshot returns the built snapshot or the first recorded error.
func (b *SnapshotBuilder) Snapshot() (*ledger.Snapshot, error) {
	if b.err != nil {
		return nil, b.err
	}
	return ledger.NewSnapshot(b.sequence, b.ts, b.entries), nil
}

// MustSnapshot is Snapshot for test setup; it panics on error.
func (b *SnapshotBuilder) MustSnapshot() *ledger.Snapshot {
	s, err := b.Snapshot()
	if err != nil {
		panic(err)
	}
	return s
}

// Fixture wraps the snapshot as a fixture without transitions.
func (b *SnapshotBuilder) Fixture() (*Fixture, error) {
	s, err := b.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Fixture{Name: b.name, Genesis: s}, nil
}

// Chain builds transitions on top of a genesis snapshot.
type Chain struct {
	name    string
	genesis *ledger.Snapshot
	steps   []*Step
}

// NewChain starts a chain at genesis; a nil genesis is the empty snapshot.
func NewChain(name string, genesis *ledger.Snapshot) *Chain {
	if genesis == nil {
		genesis = ledger.EmptySnapshot()
	}
	return &Chain{name: name, genesis: genesis}
}

// Step starts the next transition, produced by invocation invocationID at ts.
func (c *Chain) Step(invocationID uint64, ts int64) *Step {
	s := &Step{chain: c, invocationID: invocationID, ts: ts}
	c.steps = append(c.steps, s)
	return s
}

// Build validates every step and computes the transitions.
func (c *Chain) Build() (*Fixture, error) {
	f := &Fixture{Name: c.name, Genesis: c.genesis}
	head := c.genesis
	var errs *multierror.Error
	for i, s := range c.steps {
		if s.err != nil {
			errs = multierror.Append(errs, fmt.Errorf("fixture %s step %d: %w", c.name, i, s.err))
			continue
		}
		tr, err := ledger.NewTransition(head, s.invocationID, s.ts, s.ops)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("fixture %s step %d: %w", c.name, i, err))
			continue
		}
		f.Transitions = append(f.Transitions, tr)
		head = tr.After
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return f, nil
}

// Step is one transition of a Chain.
type Step struct {
	chain        *Chain
	invocationID uint64
	ts           int64
	ops          []ledger.Operation
	err          error
}

// Set writes the encoding of v under key.
func (s *Step) Set(key []byte, v codec.Marshaler) *Step {
	value, err := codec.Encode(v)
	if err != nil {
		if s.err == nil {
			s.err = fmt.Errorf("key %q: %w", key, err)
		}
		return s
	}
	return s.SetRaw(key, value)
}

// SetRaw writes value under key as is.
func (s *Step) SetRaw(key, value []byte) *Step {
	s.ops = append(s.ops, ledger.Operation{Kind: ledger.OpWrite, Key: key, Value: append([]byte{}, value...)})
	return s
}

// Delete removes key.
func (s *Step) Delete(key []byte) *Step {
	s.ops = append(s.ops, ledger.Operation{Kind: ledger.OpDelete, Key: key})
	return s
}

// Step starts the transition after s.
func (s *Step) Step(invocationID uint64, ts int64) *Step {
	return s.chain.Step(invocationID, ts)
}

// Build builds the whole chain.
func (s *Step) Build() (*Fixture, error) {
	return s.chain.Build()
}
