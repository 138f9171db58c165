//go:build !wasip1

package host

import (
	"errors"

	"github.com/xycloo/zephyr-go/types"
)

// ErrNoHost is reported by the wasm backend when the program is not running
// inside a wasm host.
var ErrNoHost = errors.New("wasm host functions are only available on wasip1")

type wasmBackend struct{}

func newWasmBackend() Backend {
	return wasmBackend{}
}

func (wasmBackend) Invoke(types.HostFunctionID, []byte) (types.StatusCode, []byte) {
	return types.StatusHostFault, nil
}

func (wasmBackend) LastFault() error {
	return ErrNoHost
}
