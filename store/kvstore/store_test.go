package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/store/storetest"
	"github.com/xycloo/zephyr-go/types"
)

func TestConformanceMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := NewMemory(nil)
		require.NoError(t, err)
		return s
	})
}

func TestConformanceLevelDB(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := OpenLevelDB(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestGenesis(t *testing.T) {
	ctx := context.Background()
	genesis := ledger.NewSnapshot(10, 1000, map[string][]byte{"a": {1}, "b": {2}})
	s, err := NewMemory(genesis)
	require.NoError(t, err)
	defer s.Close()

	head, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), head.Sequence())
	assert.Equal(t, int64(1000), head.Timestamp())
	assert.True(t, head.Equal(genesis))

	tr, err := ledger.NewTransition(head, 1, 1001, []ledger.Operation{{Kind: ledger.OpDelete, Key: []byte("a")}})
	require.NoError(t, err)
	stored, err := s.Append(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), stored.Sequence)

	v, found, err := s.QueryByKey(ctx, []byte("a"), 10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{1}, v)
	_, found, err = s.QueryByKey(ctx, []byte("a"), 0)
	require.NoError(t, err)
	assert.False(t, found)

	changes, err := s.QueryByRange(ctx, store.RangeQuery{Prefix: []byte("a")})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, types.ChangeCreated, changes[0].Kind)
	assert.Equal(t, types.ChangeRemoved, changes[1].Kind)
}

func TestOperationLog(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemory(nil)
	require.NoError(t, err)
	defer s.Close()

	ops := []ledger.Operation{
		{Kind: ledger.OpWrite, Key: []byte("x"), Value: []byte{1}},
		{Kind: ledger.OpDelete, Key: []byte("x")},
	}
	tr, err := ledger.NewTransition(ledger.EmptySnapshot(), 4, 0, ops)
	require.NoError(t, err)
	_, err = s.Append(ctx, tr)
	require.NoError(t, err)

	got, err := s.Operations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger.OpWrite, got[0].Kind)
	assert.Equal(t, []byte{1}, got[0].Value)
	assert.Equal(t, ledger.OpDelete, got[1].Kind)

	_, err = s.Operations(ctx, 2)
	assert.Error(t, err)
}

func TestLevelDBReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFromParams(map[string]any{"kv_dir": dir})
	require.NoError(t, err)
	tr, err := ledger.NewTransition(ledger.EmptySnapshot(), 1, 7, []ledger.Operation{
		{Kind: ledger.OpWrite, Key: []byte("k"), Value: []byte("v")},
	})
	require.NoError(t, err)
	_, err = s.Append(ctx, tr)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.BeginReadOnly(ctx)
	assert.ErrorIs(t, err, store.ErrClosed)

	// genesis is ignored for a database that already has a head
	s, err = OpenLevelDB(dir, WithGenesis(ledger.NewSnapshot(50, 0, map[string][]byte{"other": {1}})))
	require.NoError(t, err)
	defer s.Close()
	head, err := s.BeginReadOnly(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Sequence())
	assert.False(t, head.Has([]byte("other")))
}
