package wasi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/env"
	"github.com/xycloo/zephyr-go/sim"
	"github.com/xycloo/zephyr-go/types"
)

func uleb(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func section(id byte, body []byte) []byte {
	return append(append([]byte{id}, uleb(len(body))...), body...)
}

func name(s string) []byte {
	return append(uleb(len(s)), s...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Guest memory layout.
const (
	writeArgs   = 0  // storage_write "k" = u64 7
	missingArgs = 24 // storage_read "x"
	readArgs    = 32 // storage_read "k"
	resultBuf   = 40
)

// guestModule imports zephyr_invoke and zephyr_take_result and exports three
// entry points that trap when the host answers differently than expected:
//
//	write         storage_write "k" = u64 7, expects status ok and no result
//	read_missing  storage_read "x", expects status not found
//	read_back     storage_read "k", expects 8 bytes holding u64 7
func guestModule(t *testing.T) []byte {
	writeParams := codec.Marshal(types.StorageWriteParams{Key: []byte("k"), Value: codec.Marshal(codec.U64(7))})
	missingParams := codec.Marshal(types.StorageReadParams{Key: []byte("x")})
	readParams := codec.Marshal(types.StorageReadParams{Key: []byte("k")})
	require.Len(t, writeParams, 17)
	require.Len(t, missingParams, 6)
	require.Len(t, readParams, 6)

	const (
		i32 = 0x7f
		i64 = 0x7e
	)
	typeSec := concat(uleb(3),
		[]byte{0x60, 3, i32, i32, i32, 1, i64}, // zephyr_invoke
		[]byte{0x60, 2, i32, i32, 1, i32},      // zephyr_take_result
		[]byte{0x60, 0, 0},                     // entry points
	)
	imports := concat(uleb(2),
		name(ModuleName), name("zephyr_invoke"), []byte{0x00, 0},
		name(ModuleName), name("zephyr_take_result"), []byte{0x00, 1},
	)
	funcs := []byte{3, 2, 2, 2}
	memory := []byte{1, 0x00, 1}
	exports := concat(uleb(4),
		name("memory"), []byte{0x02, 0},
		name("write"), []byte{0x00, 2},
		name("read_missing"), []byte{0x00, 3},
		name("read_back"), []byte{0x00, 4},
	)

	// trap unless the i64 on the stack equals the packed answer
	expectPacked := func(status types.StatusCode, size int) []byte {
		packed := uint64(status)<<32 | uint64(size)
		out := []byte{0x42}
		for {
			b := byte(packed & 0x7f)
			packed >>= 7
			if packed == 0 && b&0x40 == 0 {
				out = append(out, b)
				break
			}
			out = append(out, b|0x80)
		}
		return append(out, 0x52, 0x04, 0x40, 0x00, 0x0b)
	}
	invoke := func(code types.HostFunctionID, ptr, size int) []byte {
		return []byte{0x41, byte(code), 0x41, byte(ptr), 0x41, byte(size), 0x10, 0}
	}
	// no locals, instrs, end
	body := func(instrs ...[]byte) []byte {
		fn := concat(append([][]byte{{0x00}}, append(instrs, []byte{0x0b})...)...)
		return append(uleb(len(fn)), fn...)
	}
	codeSec := concat(uleb(3),
		body(invoke(types.FuncStorageWrite, writeArgs, len(writeParams)), expectPacked(types.StatusOk, 0)),
		body(invoke(types.FuncStorageRead, missingArgs, len(missingParams)), expectPacked(types.StatusNotFound, 0)),
		body(
			invoke(types.FuncStorageRead, readArgs, len(readParams)), expectPacked(types.StatusOk, 8),
			// zephyr_take_result(resultBuf, 8) must copy 8 bytes
			[]byte{0x41, resultBuf, 0x41, 8, 0x10, 1, 0x41, 8, 0x47, 0x04, 0x40, 0x00, 0x0b},
			// the copied bytes must read back as u64 7
			[]byte{0x41, resultBuf, 0x29, 0x03, 0x00, 0x42, 7, 0x52, 0x04, 0x40, 0x00, 0x0b},
		),
	)
	segment := func(offset int, payload []byte) []byte {
		return concat([]byte{0x00, 0x41, byte(offset), 0x0b}, uleb(len(payload)), payload)
	}
	data := concat(uleb(3),
		segment(writeArgs, writeParams),
		segment(missingArgs, missingParams),
		segment(readArgs, readParams),
	)

	return concat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, typeSec),
		section(2, imports),
		section(3, funcs),
		section(5, memory),
		section(7, exports),
		section(10, codeSec),
		section(11, data),
	)
}

func TestGuestCallsHost(t *testing.T) {
	ctx := context.Background()
	module := guestModule(t)
	b, err := sim.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	run := func(id uint64, entry string) (*env.Outcome, error) {
		return env.New(b).Run(types.Invocation{ID: id}, func(e *env.Env) error {
			return Run(ctx, module, entry, e)
		})
	}

	out, err := run(1, "read_back")
	require.Error(t, err, "nothing stored under k yet")
	assert.ErrorContains(t, err, "failed to execute read_back")
	assert.False(t, out.Committed)

	out, err = run(2, "read_missing")
	require.NoError(t, err)
	assert.True(t, out.Committed)

	out, err = run(3, "write")
	require.NoError(t, err)
	require.True(t, out.Committed)
	committed := b.Committed()
	require.Len(t, committed, 1)
	assert.Equal(t, uint64(3), committed[0].InvocationID)
	head, err := b.Head()
	require.NoError(t, err)
	stored, ok := head.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, codec.Marshal(codec.U64(7)), stored)

	out, err = run(4, "read_back")
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.Len(t, b.Committed(), 1, "reads append nothing")
}

func TestGuestWriteDeniedReadOnly(t *testing.T) {
	b, err := sim.New(sim.WithReadOnly())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	out, err := env.New(b).Run(types.Invocation{ID: 1}, func(e *env.Env) error {
		return Run(context.Background(), guestModule(t), "write", e)
	})
	require.Error(t, err, "permission denied is not the ok answer the guest expects")
	assert.False(t, out.Committed)
	assert.Empty(t, b.Committed())
}
