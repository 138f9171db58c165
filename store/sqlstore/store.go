// Package sqlstore keeps ledger history in SQLite through GORM.
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/types"
)

const (
	defaultDBPath    = "./zephyr.db"
	defaultCacheSize = 64

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

// Store implements store.Store over two tables: transitions holds one row per
// committed sequence and entries one row per changed key and sequence.
// Materialized snapshots are cached by sequence.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	cache  *lru.Cache[uint64, *ledger.Snapshot]
	logger *slog.Logger
	closed atomic.Bool
}

type options struct {
	cacheSize int
	logger    *slog.Logger
}

type Option func(*options)

// WithCacheSize sets how many materialized snapshots are kept.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{cacheSize: defaultCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if path == "" {
		path = defaultDBPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// a single connection keeps sqlite free of busy errors and makes
	// in-memory databases shared across calls
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&DBTransition{}, &DBEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	cache, err := lru.New[uint64, *ledger.Snapshot](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}
	return &Store{db: db, cache: cache, logger: o.logger}, nil
}

// NewFromParams opens a store from registry style parameters. It reads
// "db_path".
func NewFromParams(params map[string]any) (*Store, error) {
	path := defaultDBPath
	if p, ok := params["db_path"].(string); ok && p != "" {
		path = p
	}
	return Open(path)
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	return s.db.WithContext(ctx), nil
}

func (s *Store) head(tx *gorm.DB) (uint64, int64, error) {
	var last DBTransition
	if err := tx.Order("sequence DESC").Limit(1).Find(&last).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to get head: %w", err)
	}
	return last.Sequence, last.Timestamp, nil
}

type entryRow struct {
	Key   []byte `gorm:"column:entry_key"`
	Value []byte `gorm:"column:entry_value"`
}

const snapshotQuery = `SELECT e.entry_key, e.entry_value FROM entries e
JOIN (SELECT entry_key, MAX(sequence) AS seq FROM entries WHERE sequence <= ? GROUP BY entry_key) latest
ON e.entry_key = latest.entry_key AND e.sequence = latest.seq
WHERE e.kind <> ?`

func (s *Store) snapshotAt(tx *gorm.DB, seq uint64, ts int64) (*ledger.Snapshot, error) {
	if seq == 0 {
		return ledger.EmptySnapshot(), nil
	}
	if snap, ok := s.cache.Get(seq); ok {
		return snap, nil
	}

	var rows []entryRow
	if err := tx.Raw(snapshotQuery, seq, uint8(types.ChangeRemoved)).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to materialize snapshot %d: %w", seq, err)
	}
	entries := make(map[string][]byte, len(rows))
	for _, r := range rows {
		entries[string(r.Key)] = r.Value
	}
	snap := ledger.NewSnapshot(seq, ts, entries)
	s.cache.Add(seq, snap)
	return snap, nil
}

// BeginReadOnly implements store.Store
func (s *Store) BeginReadOnly(ctx context.Context) (*ledger.Snapshot, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	seq, ts, err := s.head(db)
	if err != nil {
		return nil, err
	}
	return s.snapshotAt(db, seq, ts)
}

// Append implements store.Store
func (s *Store) Append(ctx context.Context, t *ledger.Transition) (*ledger.Transition, error) {
	if t == nil {
		return nil, fmt.Errorf("failed to append transition: nil transition")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var stored *ledger.Transition
	err = db.Transaction(func(tx *gorm.DB) error {
		seq, ts, err := s.head(tx)
		if err != nil {
			return err
		}
		base, err := s.snapshotAt(tx, seq, ts)
		if err != nil {
			return err
		}
		rebased, err := store.Rebase(base, t)
		if err != nil {
			return err
		}

		ops, err := cbor.Marshal(rebased.Ops)
		if err != nil {
			return fmt.Errorf("failed to encode operation log: %w", err)
		}
		rec := &DBTransition{
			Sequence:     rebased.Sequence,
			InvocationID: rebased.InvocationID,
			Timestamp:    rebased.Timestamp,
			Ops:          ops,
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to insert transition: %w", err)
		}

		changes := rebased.Changes()
		if len(changes) > 0 {
			rows := make([]DBEntry, 0, len(changes))
			for _, c := range changes {
				rows = append(rows, DBEntry{
					Sequence:  c.Sequence,
					Key:       c.Key,
					Kind:      uint8(c.Kind),
					Value:     c.Value,
					Timestamp: c.Timestamp,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert entries: %w", err)
			}
		}
		stored = rebased
		return nil
	})
	if err != nil {
		s.logger.Error("failed to append transition", "invocation", t.InvocationID, "error", err)
		return nil, fmt.Errorf("failed to append transition: %w", err)
	}

	s.cache.Add(stored.Sequence, stored.After)
	s.logger.Debug("appended transition", "sequence", stored.Sequence, "invocation", stored.InvocationID, "ops", len(stored.Ops))
	return stored, nil
}

// QueryByKey implements store.Store
func (s *Store) QueryByKey(ctx context.Context, key []byte, atSequence uint64) ([]byte, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	head, _, err := s.head(db)
	if err != nil {
		return nil, false, err
	}
	at := store.ResolveSequence(atSequence, head)

	var entry DBEntry
	res := db.Where("entry_key = ? AND sequence <= ?", key, at).Order("sequence DESC").Limit(1).Find(&entry)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to query key: %w", res.Error)
	}
	if res.RowsAffected == 0 || types.ChangeKind(entry.Kind) == types.ChangeRemoved {
		return nil, false, nil
	}
	if entry.Value == nil {
		return []byte{}, true, nil
	}
	return entry.Value, true, nil
}

// QueryByRange implements store.Store
func (s *Store) QueryByRange(ctx context.Context, q store.RangeQuery) ([]types.EntryChange, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&DBEntry{})
	start, end := store.PrefixRange(q.Prefix)
	if start != nil {
		query = query.Where("entry_key >= ?", start)
	}
	if end != nil {
		query = query.Where("entry_key < ?", end)
	}
	if q.From > 0 {
		query = query.Where("sequence >= ?", q.From)
	}
	if q.To > 0 {
		query = query.Where("sequence <= ?", q.To)
	}
	query = query.Order("sequence ASC").Order("entry_key ASC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []DBEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query range: %w", err)
	}
	changes := make([]types.EntryChange, 0, len(rows))
	for _, r := range rows {
		c := types.EntryChange{
			Sequence:  r.Sequence,
			Timestamp: r.Timestamp,
			Key:       r.Key,
			Kind:      types.ChangeKind(r.Kind),
			Value:     r.Value,
		}
		if c.Kind != types.ChangeRemoved && c.Value == nil {
			c.Value = []byte{}
		}
		if c.Kind == types.ChangeRemoved {
			c.Value = nil
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// Operations returns the operation log of a committed sequence in the order
// the invocation issued it.
func (s *Store) Operations(ctx context.Context, sequence uint64) ([]ledger.Operation, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rec DBTransition
	res := db.Where("sequence = ?", sequence).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to get transition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("transition %d not found", sequence)
	}
	var ops []ledger.Operation
	if err := cbor.Unmarshal(rec.Ops, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode operation log: %w", err)
	}
	return ops, nil
}

// Close implements store.Store
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
