// Package kvstore keeps ledger history in a cometbft-db key/value database,
// either in memory or on goleveldb.
package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/types"
)

const dbName = "zephyr"

// Store implements store.Store over a dbm.DB.
type Store struct {
	mu     sync.RWMutex
	db     dbm.DB
	logger *slog.Logger
	closed atomic.Bool
}

type options struct {
	genesis *ledger.Snapshot
	logger  *slog.Logger
}

type Option func(*options)

// WithGenesis seeds an empty database with s. Its entries are recorded as
// created at the snapshot's sequence.
func WithGenesis(s *ledger.Snapshot) Option {
	return func(o *options) {
		o.genesis = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New wraps db. The store owns db and closes it.
func New(db dbm.DB, opts ...Option) (*Store, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{db: db, logger: o.logger}

	has, err := db.Has(headKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read head: %w", err)
	}
	if !has {
		if err := s.init(o.genesis); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewMemory creates an in-memory store seeded with genesis, which may be nil.
func NewMemory(genesis *ledger.Snapshot, opts ...Option) (*Store, error) {
	return New(dbm.NewMemDB(), append(opts, WithGenesis(genesis))...)
}

// OpenLevelDB opens or creates a goleveldb database under dir.
func OpenLevelDB(dir string, opts ...Option) (*Store, error) {
	db, err := dbm.NewDB(dbName, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	return New(db, opts...)
}

// NewFromParams opens a store from registry style parameters: "kv_dir"
// selects goleveldb, otherwise the store is in memory.
func NewFromParams(params map[string]any) (*Store, error) {
	if dir, ok := params["kv_dir"].(string); ok && dir != "" {
		return OpenLevelDB(dir)
	}
	return NewMemory(nil)
}

func (s *Store) init(genesis *ledger.Snapshot) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	var seq uint64
	var ts int64
	if genesis != nil {
		seq, ts = genesis.Sequence(), genesis.Timestamp()
		for _, key := range genesis.Keys() {
			value, _ := genesis.Get(key)
			change := types.EntryChange{Sequence: seq, Timestamp: ts, Key: key, Kind: types.ChangeCreated, Value: value}
			if err := s.putChange(batch, change); err != nil {
				return err
			}
		}
	}
	if err := batch.Set(headKey(), encodeHead(seq, ts)); err != nil {
		return fmt.Errorf("failed to write head: %w", err)
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("failed to write genesis: %w", err)
	}
	return nil
}

func (s *Store) putChange(batch dbm.Batch, c types.EntryChange) error {
	record := codec.Marshal(c)
	if err := batch.Set(keyHistoryKey(c.Key, c.Sequence), record); err != nil {
		return fmt.Errorf("failed to write key history: %w", err)
	}
	if err := batch.Set(changesKey(c.Sequence, c.Key), record); err != nil {
		return fmt.Errorf("failed to write change: %w", err)
	}
	if c.Kind == types.ChangeRemoved {
		return batch.Delete(stateKey(c.Key))
	}
	return batch.Set(stateKey(c.Key), c.Value)
}

func (s *Store) check() error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) head() (uint64, int64, error) {
	b, err := s.db.Get(headKey())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read head: %w", err)
	}
	seq, ts, ok := decodeHead(b)
	if !ok {
		return 0, 0, fmt.Errorf("corrupt head record of %d bytes", len(b))
	}
	return seq, ts, nil
}

func (s *Store) snapshot() (*ledger.Snapshot, error) {
	seq, ts, err := s.head()
	if err != nil {
		return nil, err
	}
	start, end := store.PrefixRange([]byte{prefixState})
	iter, err := s.db.Iterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate state: %w", err)
	}
	defer iter.Close()

	entries := make(map[string][]byte)
	for ; iter.Valid(); iter.Next() {
		entries[string(iter.Key()[1:])] = iter.Value()
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate state: %w", err)
	}
	return ledger.NewSnapshot(seq, ts, entries), nil
}

// BeginReadOnly implements store.Store
func (s *Store) BeginReadOnly(ctx context.Context) (*ledger.Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Append implements store.Store
func (s *Store) Append(ctx context.Context, t *ledger.Transition) (*ledger.Transition, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	rebased, err := store.Rebase(base, t)
	if err != nil {
		return nil, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	header := transitionRecord{InvocationID: rebased.InvocationID, Timestamp: rebased.Timestamp, Ops: rebased.Ops}
	if err := batch.Set(transitionKey(rebased.Sequence), codec.Marshal(header)); err != nil {
		return nil, fmt.Errorf("failed to write transition: %w", err)
	}
	for _, c := range rebased.Changes() {
		if err := s.putChange(batch, c); err != nil {
			return nil, err
		}
	}
	if err := batch.Set(headKey(), encodeHead(rebased.Sequence, rebased.Timestamp)); err != nil {
		return nil, fmt.Errorf("failed to write head: %w", err)
	}
	if err := batch.WriteSync(); err != nil {
		s.logger.Error("failed to append transition", "invocation", rebased.InvocationID, "error", err)
		return nil, fmt.Errorf("failed to append transition: %w", err)
	}

	s.logger.Debug("appended transition", "sequence", rebased.Sequence, "invocation", rebased.InvocationID)
	return rebased, nil
}

// QueryByKey implements store.Store
func (s *Store) QueryByKey(ctx context.Context, key []byte, atSequence uint64) ([]byte, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	head, _, err := s.head()
	if err != nil {
		return nil, false, err
	}
	at := store.ResolveSequence(atSequence, head)

	iter, err := s.db.ReverseIterator(keyHistoryPrefix(key), keyHistoryKey(key, at+1))
	if err != nil {
		return nil, false, fmt.Errorf("failed to iterate key history: %w", err)
	}
	defer iter.Close()
	if !iter.Valid() {
		return nil, false, iter.Error()
	}

	change, err := codec.Decode[types.EntryChange](iter.Value())
	if err != nil {
		return nil, false, fmt.Errorf("corrupt key history record: %w", err)
	}
	if change.Kind == types.ChangeRemoved {
		return nil, false, nil
	}
	return change.Value, true, nil
}

// QueryByRange implements store.Store
func (s *Store) QueryByRange(ctx context.Context, q store.RangeQuery) ([]types.EntryChange, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := changesBound(q.From)
	_, end := store.PrefixRange([]byte{prefixChanges})
	if q.To > 0 {
		end = changesBound(q.To + 1)
	}
	iter, err := s.db.Iterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}
	defer iter.Close()

	var out []types.EntryChange
	for ; iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(keyFromChanges(iter.Key()), q.Prefix) {
			continue
		}
		change, err := codec.Decode[types.EntryChange](iter.Value())
		if err != nil {
			return nil, fmt.Errorf("corrupt change record: %w", err)
		}
		out = append(out, change)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}
	return out, nil
}

// Operations returns the operation log of a committed sequence.
func (s *Store) Operations(ctx context.Context, sequence uint64) ([]ledger.Operation, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	b, err := s.db.Get(transitionKey(sequence))
	if err != nil {
		return nil, fmt.Errorf("failed to read transition: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("transition %d not found", sequence)
	}
	rec, err := codec.Decode[transitionRecord](b)
	if err != nil {
		return nil, fmt.Errorf("corrupt transition record: %w", err)
	}
	return rec.Ops, nil
}

// Close implements store.Store
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
