//go:build wasip1

package host

import (
	"fmt"
	"unsafe"

	"github.com/xycloo/zephyr-go/types"
)

// zephyr_invoke runs a host function over the argument buffer. The result
// packs the status in the high 32 bits and the pending result length in the
// low 32 bits.
//
//go:wasmimport env zephyr_invoke
func zephyrInvoke(code uint32, argPtr unsafe.Pointer, argLen uint32) uint64

// zephyr_take_result copies the pending result into the guest buffer and
// returns the number of bytes written.
//
//go:wasmimport env zephyr_take_result
func zephyrTakeResult(ptr unsafe.Pointer, size uint32) uint32

type wasmBackend struct {
	fault error
}

func newWasmBackend() Backend {
	return &wasmBackend{}
}

func (b *wasmBackend) Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte) {
	var arg unsafe.Pointer
	if len(input) > 0 {
		arg = unsafe.Pointer(&input[0])
	}
	packed := zephyrInvoke(uint32(code), arg, uint32(len(input)))
	status := types.StatusCode(packed >> 32).Normalize()
	size := uint32(packed)
	if size == 0 {
		if status == types.StatusHostFault {
			b.fault = fmt.Errorf("host reported a fault for %s", code)
		}
		return status, nil
	}

	out := make([]byte, size)
	if n := zephyrTakeResult(unsafe.Pointer(&out[0]), size); n != size {
		b.fault = fmt.Errorf("short result for %s: %d of %d bytes", code, n, size)
		return types.StatusHostFault, nil
	}
	if status != types.StatusOk {
		return status, nil
	}
	return status, out
}

func (b *wasmBackend) LastFault() error {
	return b.fault
}
