// Package ledger models committed state: immutable snapshots and the
// transitions between them.
package ledger

import (
	"bytes"
	"sort"
)

// Entry is one key/value pair of a snapshot.
type Entry struct {
	Key   []byte
	Value []byte
}

// Snapshot is an immutable view of state at a sequence. All accessors return
// copies.
type Snapshot struct {
	sequence  uint64
	timestamp int64
	entries   map[string][]byte
}

// NewSnapshot copies entries into a new snapshot.
func NewSnapshot(sequence uint64, timestamp int64, entries map[string][]byte) *Snapshot {
	s := &Snapshot{sequence: sequence, timestamp: timestamp, entries: make(map[string][]byte, len(entries))}
	for k, v := range entries {
		s.entries[k] = clone(v)
	}
	return s
}

// EmptySnapshot is the state before any transition.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(0, 0, nil)
}

func (s *Snapshot) Sequence() uint64 { return s.sequence }
func (s *Snapshot) Timestamp() int64 { return s.timestamp }
func (s *Snapshot) Len() int         { return len(s.entries) }

// Get returns the value under key.
func (s *Snapshot) Get(key []byte) ([]byte, bool) {
	v, ok := s.entries[string(key)]
	if !ok {
		return nil, false
	}
	return clone(v), true
}

func (s *Snapshot) Has(key []byte) bool {
	_, ok := s.entries[string(key)]
	return ok
}

// Keys returns every key in byte order.
func (s *Snapshot) Keys() [][]byte {
	keys := make([][]byte, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys
}

// Range returns the entries whose key starts with prefix, in key order.
func (s *Snapshot) Range(prefix []byte) []Entry {
	var out []Entry
	for _, k := range s.Keys() {
		if bytes.HasPrefix(k, prefix) {
			out = append(out, Entry{Key: k, Value: clone(s.entries[string(k)])})
		}
	}
	return out
}

// Entries returns a copy of the whole state.
func (s *Snapshot) Entries() map[string][]byte {
	out := make(map[string][]byte, len(s.entries))
	for k, v := range s.entries {
		out[k] = clone(v)
	}
	return out
}

// Apply returns the snapshot produced by applying ops in order at sequence.
// The receiver is left untouched.
func (s *Snapshot) Apply(sequence uint64, timestamp int64, ops []Operation) *Snapshot {
	next := &Snapshot{sequence: sequence, timestamp: timestamp, entries: make(map[string][]byte, len(s.entries))}
	for k, v := range s.entries {
		next.entries[k] = v
	}
	for _, op := range ops {
		switch op.Kind {
		case OpWrite:
			next.entries[string(op.Key)] = clone(op.Value)
		case OpDelete:
			delete(next.entries, string(op.Key))
		}
	}
	return next
}

// Equal reports whether both snapshots hold the same entries. Sequence and
// timestamp are not compared.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if len(s.entries) != len(other.entries) {
		return false
	}
	for k, v := range s.entries {
		ov, ok := other.entries[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
