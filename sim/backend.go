// Package sim implements a local host that answers guest calls from a
// backing store.
//
// Reads see the invocation's own buffered writes first and then the snapshot
// taken when the invocation began. Writes stay in a private overlay until the
// invocation commits, at which point they are appended to the store as one
// transition. A discarded invocation leaves the store untouched.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/store/kvstore"
	"github.com/xycloo/zephyr-go/types"
)

var (
	// ErrNotBound is reported for calls outside Begin/Commit.
	ErrNotBound = errors.New("simulation backend is not bound to an invocation")
	// ErrAlreadyBound is returned by Begin while another invocation is active.
	ErrAlreadyBound = errors.New("simulation backend is already bound to an invocation")
)

type overlayEntry struct {
	value   []byte
	deleted bool
}

// Backend is a host.Backend with host.Lifecycle and host.FaultReporter.
// One backend serves one invocation at a time.
type Backend struct {
	mu sync.Mutex

	store     store.Store
	ownsStore bool
	genesis   *ledger.Snapshot
	readOnly  bool
	faults    map[types.HostFunctionID]error
	logger    *slog.Logger
	clock     func() time.Time
	ctx       context.Context

	active    bool
	inv       types.Invocation
	base      *ledger.Snapshot
	overlay   map[string]overlayEntry
	ops       []ledger.Operation
	lastFault error
	committed []*ledger.Transition
}

// New creates a backend. Without WithStore it runs against a private
// in-memory store, seeded by WithSnapshot when given.
func New(opts ...Option) (*Backend, error) {
	b := &Backend{
		faults: make(map[types.HostFunctionID]error),
		logger: slog.Default(),
		clock:  time.Now,
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		s, err := kvstore.NewMemory(b.genesis, kvstore.WithLogger(b.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create memory store: %w", err)
		}
		b.store = s
		b.ownsStore = true
	}
	return b, nil
}

// Store returns the backing store.
func (b *Backend) Store() store.Store {
	return b.store
}

// Committed returns the transitions this backend appended, oldest first.
func (b *Backend) Committed() []*ledger.Transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ledger.Transition(nil), b.committed...)
}

// Head returns the current committed snapshot.
func (b *Backend) Head() (*ledger.Snapshot, error) {
	return b.store.BeginReadOnly(b.ctx)
}

// Close releases the store when the backend created it.
func (b *Backend) Close() error {
	if b.ownsStore {
		return b.store.Close()
	}
	return nil
}

// Begin implements host.Lifecycle
func (b *Backend) Begin(inv types.Invocation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return fmt.Errorf("%w: invocation %d", ErrAlreadyBound, b.inv.ID)
	}
	base, err := b.store.BeginReadOnly(b.ctx)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	b.active = true
	b.inv = inv
	b.base = base
	b.overlay = make(map[string]overlayEntry)
	b.ops = nil
	b.lastFault = nil
	return nil
}

// Commit implements host.Lifecycle
func (b *Backend) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return ErrNotBound
	}
	defer b.reset()

	if len(b.ops) == 0 {
		return nil
	}
	tr, err := ledger.NewTransition(b.base, b.inv.ID, b.timestamp(), b.ops)
	if err != nil {
		return fmt.Errorf("failed to build transition: %w", err)
	}
	stored, err := b.store.Append(b.ctx, tr)
	if err != nil {
		b.lastFault = err
		return fmt.Errorf("failed to commit invocation %d: %w", b.inv.ID, err)
	}
	b.committed = append(b.committed, stored)
	b.logger.Debug("committed invocation", "invocation", b.inv.ID, "sequence", stored.Sequence, "ops", len(stored.Ops))
	return nil
}

// Discard implements host.Lifecycle
func (b *Backend) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active && len(b.ops) > 0 {
		b.logger.Debug("discarding overlay", "invocation", b.inv.ID, "ops", len(b.ops))
	}
	b.reset()
}

func (b *Backend) reset() {
	b.active = false
	b.base = nil
	b.overlay = nil
	b.ops = nil
}

// LastFault implements host.FaultReporter
func (b *Backend) LastFault() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFault
}

func (b *Backend) timestamp() int64 {
	if b.inv.Timestamp != 0 {
		return b.inv.Timestamp
	}
	return b.clock().Unix()
}

func (b *Backend) fault(err error) (types.StatusCode, []byte) {
	b.lastFault = err
	b.logger.Error("simulated host fault", "invocation", b.inv.ID, "error", err)
	return types.StatusHostFault, nil
}

func invalid() (types.StatusCode, []byte) {
	return types.StatusInvalidInput, nil
}

// Invoke implements host.Backend
func (b *Backend) Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return b.fault(ErrNotBound)
	}
	if err, ok := b.faults[code]; ok {
		return b.fault(fmt.Errorf("injected fault on %s: %w", code, err))
	}
	if len(input) > types.MaxPayloadSize+types.MaxKeySize+64 {
		return invalid()
	}
	if b.readOnly && code.Mutating() {
		return types.StatusPermissionDenied, nil
	}

	switch code {
	case types.FuncStorageRead:
		return b.storageRead(input)
	case types.FuncStorageWrite:
		return b.storageWrite(input)
	case types.FuncStorageDelete:
		return b.storageDelete(input)
	case types.FuncEmitEvent:
		return b.emitEvent(input)
	case types.FuncLedgerGet:
		return b.ledgerGet(input)
	case types.FuncLedgerRange:
		return b.ledgerRange(input)
	case types.FuncLedgerInfo:
		return b.ledgerInfo(input)
	case types.FuncLog:
		return b.log(input)
	case types.FuncConclude:
		return b.conclude(input)
	case types.FuncStorageRange:
		return b.storageRange(input)
	default:
		b.logger.Warn("unknown host function", "code", uint32(code))
		return invalid()
	}
}

func (b *Backend) lookup(key []byte) ([]byte, bool) {
	if e, ok := b.overlay[string(key)]; ok {
		if e.deleted {
			return nil, false
		}
		return append([]byte{}, e.value...), true
	}
	return b.base.Get(key)
}

func matchShape(shape *codec.Shape, value []byte) bool {
	return shape == nil || shape.Validate(value) == nil
}

func (b *Backend) storageRead(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.StorageReadParams](input)
	if err != nil || ledger.CheckKey(p.Key) != nil {
		return invalid()
	}
	value, ok := b.lookup(p.Key)
	if !ok {
		return types.StatusNotFound, nil
	}
	if !matchShape(p.Shape, value) {
		b.logger.Debug("stored value does not match requested shape", "key", string(p.Key), "shape", p.Shape.String())
		return invalid()
	}
	return types.StatusOk, value
}

func (b *Backend) storageWrite(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.StorageWriteParams](input)
	if err != nil {
		return invalid()
	}
	op := ledger.Operation{Kind: ledger.OpWrite, Key: p.Key, Value: p.Value}
	if op.Validate() != nil {
		return invalid()
	}
	b.overlay[string(p.Key)] = overlayEntry{value: p.Value}
	b.ops = append(b.ops, op)
	return types.StatusOk, nil
}

func (b *Backend) storageDelete(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.StorageDeleteParams](input)
	if err != nil || ledger.CheckKey(p.Key) != nil {
		return invalid()
	}
	if _, ok := b.lookup(p.Key); !ok {
		return types.StatusNotFound, nil
	}
	b.overlay[string(p.Key)] = overlayEntry{deleted: true}
	b.ops = append(b.ops, ledger.Operation{Kind: ledger.OpDelete, Key: p.Key})
	return types.StatusOk, nil
}

// storageRange merges the base snapshot with the overlay; deleted keys are
// hidden.
func (b *Backend) storageRange(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.StorageRangeParams](input)
	if err != nil || len(p.Prefix) > types.MaxKeySize {
		return invalid()
	}
	view := make(map[string][]byte)
	for _, entry := range b.base.Range(p.Prefix) {
		view[string(entry.Key)] = entry.Value
	}
	for k, e := range b.overlay {
		if !strings.HasPrefix(k, string(p.Prefix)) {
			continue
		}
		if e.deleted {
			delete(view, k)
			continue
		}
		view[k] = append([]byte{}, e.value...)
	}

	keys := make([]string, 0, len(view))
	for k := range view {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if p.Limit > 0 && len(keys) > int(p.Limit) {
		keys = keys[:p.Limit]
	}

	entries := make([]types.StorageEntry, 0, len(keys))
	for _, k := range keys {
		if !matchShape(p.Shape, view[k]) {
			b.logger.Debug("stored value does not match requested shape", "key", k, "shape", p.Shape.String())
			return invalid()
		}
		entries = append(entries, types.StorageEntry{Key: []byte(k), Value: view[k]})
	}
	out := codec.Marshal(types.StorageRangeResult{Entries: entries})
	if len(out) > types.MaxPayloadSize {
		b.logger.Debug("storage range exceeds payload limit", "prefix", string(p.Prefix), "entries", len(entries))
		return invalid()
	}
	return types.StatusOk, out
}

func (b *Backend) emitEvent(input []byte) (types.StatusCode, []byte) {
	ev, err := codec.Decode[types.Event](input)
	if err != nil || len(ev.Data) > types.MaxPayloadSize {
		return invalid()
	}
	return types.StatusOk, nil
}

func (b *Backend) ledgerGet(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.LedgerGetParams](input)
	if err != nil || ledger.CheckKey(p.Key) != nil {
		return invalid()
	}
	value, found, err := b.store.QueryByKey(b.ctx, p.Key, p.Sequence)
	if err != nil {
		return b.fault(fmt.Errorf("failed to query key: %w", err))
	}
	if !found {
		return types.StatusNotFound, nil
	}
	if !matchShape(p.Shape, value) {
		return invalid()
	}
	return types.StatusOk, value
}

func (b *Backend) ledgerRange(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.LedgerRangeParams](input)
	if err != nil {
		return invalid()
	}
	if p.ToSequence != 0 && p.ToSequence < p.FromSequence {
		return invalid()
	}
	changes, err := b.store.QueryByRange(b.ctx, store.RangeQuery{
		Prefix: p.Prefix,
		From:   p.FromSequence,
		To:     p.ToSequence,
		Limit:  int(p.Limit),
	})
	if err != nil {
		return b.fault(fmt.Errorf("failed to query range: %w", err))
	}
	if changes == nil {
		changes = []types.EntryChange{}
	}
	return types.StatusOk, codec.Marshal(types.LedgerRangeResult{Changes: changes})
}

func (b *Backend) ledgerInfo(input []byte) (types.StatusCode, []byte) {
	if len(input) != 0 {
		return invalid()
	}
	contract := b.inv.Contract
	if contract == nil {
		contract = []byte{}
	}
	return types.StatusOk, codec.Marshal(types.LedgerInfo{
		Sequence:     b.base.Sequence(),
		Timestamp:    b.timestamp(),
		InvocationID: b.inv.ID,
		Contract:     contract,
	})
}

func (b *Backend) log(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.LogParams](input)
	if err != nil {
		return invalid()
	}
	attrs := []any{"invocation", b.inv.ID, "source", "guest"}
	if p.Data != nil {
		attrs = append(attrs, "data", fmt.Sprintf("%x", p.Data))
	}
	b.logger.Log(b.ctx, p.Level.Slog(), p.Message, attrs...)
	return types.StatusOk, nil
}

func (b *Backend) conclude(input []byte) (types.StatusCode, []byte) {
	p, err := codec.Decode[types.ConcludeParams](input)
	if err != nil || len(p.Result) > types.MaxPayloadSize {
		return invalid()
	}
	return types.StatusOk, nil
}
