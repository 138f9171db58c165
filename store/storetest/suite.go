// Package storetest holds the behavior every store.Store implementation must
// share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/types"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

func write(key string, value ...byte) ledger.Operation {
	return ledger.Operation{Kind: ledger.OpWrite, Key: []byte(key), Value: value}
}

func remove(key string) ledger.Operation {
	return ledger.Operation{Kind: ledger.OpDelete, Key: []byte(key)}
}

func appendOps(t *testing.T, s store.Store, inv uint64, ts int64, ops ...ledger.Operation) *ledger.Transition {
	t.Helper()
	ctx := context.Background()
	head, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)
	tr, err := ledger.NewTransition(head, inv, ts, ops)
	require.NoError(t, err)
	stored, err := s.Append(ctx, tr)
	require.NoError(t, err)
	return stored
}

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(t *testing.T, s store.Store){
		"EmptyHead":         testEmptyHead,
		"AppendAssignsHead": testAppendAssignsHead,
		"StaleBaseRebases":  testStaleBaseRebases,
		"QueryByKey":        testQueryByKey,
		"QueryByRange":      testQueryByRange,
		"ConcurrentAppends": testConcurrentAppends,
		"SnapshotIsolation": testSnapshotIsolation,
	}
	for name, fn := range tests {
		fn := fn
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func testEmptyHead(t *testing.T, s store.Store) {
	snap, err := s.BeginReadOnly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), snap.Sequence())
	assert.Equal(t, 0, snap.Len())

	_, found, err := s.QueryByKey(context.Background(), []byte("missing"), 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func testAppendAssignsHead(t *testing.T, s store.Store) {
	first := appendOps(t, s, 1, 100, write("a", 1), write("b", 2))
	assert.Equal(t, uint64(1), first.Sequence)

	second := appendOps(t, s, 2, 200, write("a", 3), remove("b"), remove("never"))
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, int64(200), second.Timestamp)

	changes := second.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, types.ChangeUpdated, changes[0].Kind)
	assert.Equal(t, types.ChangeRemoved, changes[1].Kind)

	head, err := s.BeginReadOnly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), head.Sequence())
	assert.Equal(t, int64(200), head.Timestamp())
	v, ok := head.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte{3}, v)
	assert.False(t, head.Has([]byte("b")))
}

func testStaleBaseRebases(t *testing.T, s store.Store) {
	ctx := context.Background()
	base, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)

	t1, err := ledger.NewTransition(base, 1, 10, []ledger.Operation{write("x", 1), write("y", 1)})
	require.NoError(t, err)
	t2, err := ledger.NewTransition(base, 2, 20, []ledger.Operation{write("x", 2)})
	require.NoError(t, err)

	_, err = s.Append(ctx, t1)
	require.NoError(t, err)
	stored, err := s.Append(ctx, t2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stored.Sequence)
	assert.Equal(t, types.ChangeUpdated, stored.Changes()[0].Kind)

	head, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)
	x, _ := head.Get([]byte("x"))
	assert.Equal(t, []byte{2}, x)
	assert.True(t, head.Has([]byte("y")))
}

func testQueryByKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	appendOps(t, s, 1, 10, write("k", 1))
	appendOps(t, s, 2, 20, write("other", 0))
	appendOps(t, s, 3, 30, write("k", 2))
	appendOps(t, s, 4, 40, remove("k"))

	cases := []struct {
		at    uint64
		value []byte
		found bool
	}{
		{1, []byte{1}, true},
		{2, []byte{1}, true},
		{3, []byte{2}, true},
		{4, nil, false},
		{0, nil, false},
		{99, nil, false},
	}
	for _, c := range cases {
		v, found, err := s.QueryByKey(ctx, []byte("k"), c.at)
		require.NoError(t, err)
		assert.Equal(t, c.found, found, "at %d", c.at)
		if c.found {
			assert.Equal(t, c.value, v, "at %d", c.at)
		}
	}
}

func testQueryByRange(t *testing.T, s store.Store) {
	ctx := context.Background()
	appendOps(t, s, 1, 10, write("acc/1", 1), write("acc/2", 2), write("cfg", 0))
	appendOps(t, s, 2, 20, write("acc/1", 5))
	appendOps(t, s, 3, 30, remove("acc/2"), write("acc/3", 3))

	all, err := s.QueryByRange(ctx, store.RangeQuery{Prefix: []byte("acc/")})
	require.NoError(t, err)
	require.Len(t, all, 5)
	var got []string
	for _, c := range all {
		got = append(got, fmt.Sprintf("%d:%s:%s", c.Sequence, c.Key, c.Kind))
	}
	assert.Equal(t, []string{
		"1:acc/1:created",
		"1:acc/2:created",
		"2:acc/1:updated",
		"3:acc/2:removed",
		"3:acc/3:created",
	}, got)
	assert.Nil(t, all[3].Value)
	assert.Equal(t, int64(30), all[4].Timestamp)

	window, err := s.QueryByRange(ctx, store.RangeQuery{Prefix: []byte("acc/"), From: 2, To: 2})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, []byte{5}, window[0].Value)

	limited, err := s.QueryByRange(ctx, store.RangeQuery{From: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, []byte("acc/1"), limited[0].Key)
	assert.Equal(t, []byte("acc/2"), limited[1].Key)

	everything, err := s.QueryByRange(ctx, store.RangeQuery{})
	require.NoError(t, err)
	assert.Len(t, everything, 6)
}

func testConcurrentAppends(t *testing.T, s store.Store) {
	const n = 8
	ctx := context.Background()
	base, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	seqs := make(chan uint64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := ledger.NewTransition(base, uint64(i), int64(i), []ledger.Operation{
				write("counter", byte(i)),
				write(fmt.Sprintf("own/%d", i), byte(i)),
			})
			if err != nil {
				errs <- err
				return
			}
			stored, err := s.Append(ctx, tr)
			if err != nil {
				errs <- err
				return
			}
			seqs <- stored.Sequence
		}(i)
	}
	wg.Wait()
	close(seqs)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[uint64]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "sequence %d assigned twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, n)

	head, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), head.Sequence())
	// every append saw the writes of the ones before it
	assert.Len(t, head.Range([]byte("own/")), n)
}

func testSnapshotIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	appendOps(t, s, 1, 10, write("a", 1))
	snap, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)

	appendOps(t, s, 2, 20, write("a", 2), write("b", 2))
	v, _ := snap.Get([]byte("a"))
	assert.Equal(t, []byte{1}, v)
	assert.False(t, snap.Has([]byte("b")))
}
