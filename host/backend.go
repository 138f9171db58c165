// Package host defines the single primitive that crosses the guest/host
// boundary and the registry of backends that implement it.
package host

import (
	"github.com/xycloo/zephyr-go/types"
)

// Backend answers host calls. Invoke is the only place where side effects
// happen; it never retries. The returned payload is only meaningful with
// types.StatusOk.
type Backend interface {
	Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(code types.HostFunctionID, input []byte) (types.StatusCode, []byte)

func (f BackendFunc) Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte) {
	return f(code, input)
}

// Lifecycle is implemented by backends that hold per-invocation state.
// Begin binds the backend to an invocation; exactly one of Commit or Discard
// follows.
type Lifecycle interface {
	Begin(inv types.Invocation) error
	Commit() error
	Discard()
}

// FaultReporter is implemented by backends that can explain their last
// types.StatusHostFault answer.
type FaultReporter interface {
	LastFault() error
}
