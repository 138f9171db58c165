package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/env"
	"github.com/xycloo/zephyr-go/host/hosttest"
	"github.com/xycloo/zephyr-go/types"
)

func setupEnv(t *testing.T, mock *hosttest.Mock) *env.Env {
	e := env.New(mock)
	require.NoError(t, e.Begin(types.Invocation{ID: 1}))
	return e
}

func TestReadSendsShape(t *testing.T) {
	mock := hosttest.New().On(types.FuncStorageRead, types.StatusOk, codec.Marshal(codec.U64(42)))
	e := setupEnv(t, mock)

	v, err := Read[codec.U64](e, []byte("balance"))
	require.NoError(t, err)
	assert.Equal(t, codec.U64(42), v)

	last, _ := mock.LastCall()
	assert.Equal(t, types.FuncStorageRead, last.Code)
	req, err := codec.Decode[types.StorageReadParams](last.Input)
	require.NoError(t, err)
	assert.Equal(t, []byte("balance"), req.Key)
	require.NotNil(t, req.Shape)
	assert.Equal(t, codec.KindU64, req.Shape.Kind)
}

func TestReadStatuses(t *testing.T) {
	tests := []struct {
		status types.StatusCode
		target error
	}{
		{types.StatusNotFound, ErrNotFound},
		{types.StatusInvalidInput, ErrInvalidInput},
		{types.StatusPermissionDenied, ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			e := setupEnv(t, hosttest.New().On(types.FuncStorageRead, tt.status, nil))
			_, err := Read[codec.U64](e, []byte("k"))
			require.ErrorIs(t, err, tt.target)

			var serr *StatusError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.status, serr.Status)
			assert.NotErrorIs(t, err, ErrHostFault)
		})
	}
}

func TestReadFault(t *testing.T) {
	cause := errors.New("connection reset")
	mock := hosttest.New().On(types.FuncStorageRead, types.StatusHostFault, nil).Fault(cause)
	e := setupEnv(t, mock)

	_, err := Read[codec.U64](e, []byte("k"))
	require.ErrorIs(t, err, ErrHostFault)
	assert.ErrorIs(t, err, cause)

	// the invocation is poisoned, the backend is not called again
	err = Write(e, []byte("k"), codec.U64(1))
	assert.ErrorIs(t, err, ErrHostFault)
	assert.Len(t, mock.Calls(), 1)
}

func TestReadEmptyPayload(t *testing.T) {
	e := setupEnv(t, hosttest.New().On(types.FuncStorageRead, types.StatusOk, nil))
	_, err := Read[codec.U64](e, []byte("k"))
	assert.ErrorIs(t, err, codec.ErrTruncated)
	assert.ErrorIs(t, err, ErrInvalidInput)

	raw, err := ReadRaw(e, []byte("k"))
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Empty(t, raw)
}

func TestReadDecodeMismatch(t *testing.T) {
	e := setupEnv(t, hosttest.New().On(types.FuncStorageRead, types.StatusOk, codec.Marshal(codec.U64(1))))
	_, err := Read[codec.U32](e, []byte("k"))
	assert.ErrorIs(t, err, codec.ErrTrailingBytes)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, types.FuncStorageRead, serr.Op)
}

// point has no declared shape, so only the guest can tell a bad stored value.
type point struct {
	X, Y uint64
}

func (p point) MarshalZephyr(e *codec.Encoder) {
	e.PutU64(p.X)
	e.PutU64(p.Y)
}

func (p *point) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if p.X, err = d.U64(); err != nil {
		return err
	}
	p.Y, err = d.U64()
	return err
}

func TestUnshapedDecodeMismatch(t *testing.T) {
	mock := hosttest.New().
		On(types.FuncStorageRead, types.StatusOk, codec.Marshal(codec.String("alice"))).
		On(types.FuncLedgerGet, types.StatusOk, []byte{1})
	e := setupEnv(t, mock)

	_, err := Read[point](e, []byte("owner"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, codec.ErrTruncated)
	req, err := codec.Decode[types.StorageReadParams](mock.Calls()[0].Input)
	require.NoError(t, err)
	assert.Nil(t, req.Shape)

	_, err = LedgerGet[point](e, []byte("owner"), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrHostFault)
}

func TestUnsupportedValues(t *testing.T) {
	mock := hosttest.New()
	e := setupEnv(t, mock)

	err := Write(e, []byte("k"), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, codec.ErrUnsupportedValue)

	assert.ErrorIs(t, Emit(e, nil, codec.Value{}), ErrInvalidInput)
	assert.ErrorIs(t, Conclude(e, nil), ErrInvalidInput)
	assert.Empty(t, mock.Calls(), "nothing reaches the host")

	_, concluded := e.Result()
	assert.False(t, concluded)
	require.NoError(t, Write(e, []byte("k"), codec.Value{Val: codec.U64(1)}))
}

func TestReadRange(t *testing.T) {
	listed := types.StorageRangeResult{Entries: []types.StorageEntry{
		{Key: []byte("user/a"), Value: codec.Marshal(codec.String("alice"))},
		{Key: []byte("user/b"), Value: codec.Marshal(codec.String("bob"))},
	}}
	mock := hosttest.New().On(types.FuncStorageRange, types.StatusOk, codec.Marshal(listed))
	e := setupEnv(t, mock)

	entries, err := ReadRange(e, []byte("user/"), 1)
	require.NoError(t, err)
	assert.Equal(t, listed.Entries, entries)
	req, err := codec.Decode[types.StorageRangeParams](mock.Calls()[0].Input)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), req.Limit)
	assert.Nil(t, req.Shape)

	names, err := ReadAll[codec.String](e, []byte("user/"))
	require.NoError(t, err)
	assert.Equal(t, []codec.String{"alice", "bob"}, names)
	last, _ := mock.LastCall()
	req, err = codec.Decode[types.StorageRangeParams](last.Input)
	require.NoError(t, err)
	require.NotNil(t, req.Shape)
	assert.Equal(t, codec.KindString, req.Shape.Kind)

	_, err = ReadAll[point](e, []byte("user/"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "user/a")
}

func TestWriteDeleteEmit(t *testing.T) {
	mock := hosttest.New()
	e := setupEnv(t, mock)

	require.NoError(t, Write(e, []byte("a"), codec.String("x")))
	require.NoError(t, Delete(e, []byte("b")))
	require.NoError(t, Emit(e, [][]byte{[]byte("topic")}, codec.U32(3)))

	calls := mock.Calls()
	require.Len(t, calls, 3)

	w, err := codec.Decode[types.StorageWriteParams](calls[0].Input)
	require.NoError(t, err)
	assert.Equal(t, codec.Marshal(codec.String("x")), w.Value)

	d, err := codec.Decode[types.StorageDeleteParams](calls[1].Input)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), d.Key)

	assert.Equal(t, types.FuncEmitEvent, calls[2].Code)
	require.Len(t, e.Events(), 1)
	assert.Equal(t, codec.Marshal(codec.U32(3)), e.Events()[0].Data)
}

func TestLedgerQueries(t *testing.T) {
	info := types.LedgerInfo{Sequence: 4, Timestamp: 100, InvocationID: 1}
	changes := types.LedgerRangeResult{Changes: []types.EntryChange{
		{Sequence: 2, Key: []byte("a"), Kind: types.ChangeUpdated, Value: []byte{1}},
	}}
	mock := hosttest.New().
		On(types.FuncLedgerInfo, types.StatusOk, codec.Marshal(info)).
		On(types.FuncLedgerRange, types.StatusOk, codec.Marshal(changes)).
		On(types.FuncLedgerGet, types.StatusOk, codec.Marshal(codec.I64(-5)))
	e := setupEnv(t, mock)

	gotInfo, err := LedgerInfo(e)
	require.NoError(t, err)
	assert.Equal(t, info.Sequence, gotInfo.Sequence)

	gotChanges, err := LedgerRange(e, types.LedgerRangeParams{Prefix: []byte("a")})
	require.NoError(t, err)
	assert.Equal(t, changes.Changes, gotChanges)

	v, err := LedgerGet[codec.I64](e, []byte("a"), 2)
	require.NoError(t, err)
	assert.Equal(t, codec.I64(-5), v)

	last, _ := mock.LastCall()
	req, err := codec.Decode[types.LedgerGetParams](last.Input)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), req.Sequence)
}

func TestLoggerAndConclude(t *testing.T) {
	mock := hosttest.New()
	e := setupEnv(t, mock)

	log := NewLogger(e)
	require.NoError(t, log.Warning("careful", []byte{1}))
	require.NoError(t, log.Debugf("n=%d", 3))
	require.NoError(t, Conclude(e, codec.Bool(true)))

	calls := mock.Calls()
	require.Len(t, calls, 3)
	p, err := codec.Decode[types.LogParams](calls[1].Input)
	require.NoError(t, err)
	assert.Equal(t, types.LogDebug, p.Level)
	assert.Equal(t, "n=3", p.Message)

	result, ok := e.Result()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, result)
}

func TestLifecycleMisuse(t *testing.T) {
	mock := hosttest.New()
	e := env.New(mock)

	_, err := Read[codec.U64](e, []byte("k"))
	assert.ErrorIs(t, err, env.ErrLifecycle)
	assert.Empty(t, mock.Calls())
}
