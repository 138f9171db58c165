package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycloo/zephyr-go/types"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	echo := func(map[string]any) (Backend, error) {
		return BackendFunc(func(code types.HostFunctionID, input []byte) (types.StatusCode, []byte) {
			return types.StatusOk, input
		}), nil
	}

	require.NoError(t, r.Register("echo", echo))
	assert.Error(t, r.Register("echo", echo))
	assert.Error(t, r.SetDefault("missing"))

	_, err := r.Get("missing", nil)
	assert.Error(t, err)

	require.NoError(t, r.SetDefault("echo"))
	assert.Equal(t, BackendKind("echo"), r.DefaultKind())

	b, err := r.Get("", nil)
	require.NoError(t, err)
	status, out := b.Invoke(types.FuncLog, []byte{1})
	assert.Equal(t, types.StatusOk, status)
	assert.Equal(t, []byte{1}, out)
	assert.Equal(t, []BackendKind{"echo"}, r.ListRegistered())
}
