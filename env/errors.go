package env

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of an Env.
type State uint8

const (
	StateUninitialized State = iota
	StateActive
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrLifecycle matches every LifecycleError.
var ErrLifecycle = errors.New("environment used outside its lifecycle")

// LifecycleError reports an operation attempted in the wrong state. It is a
// programming error in the caller, not a host outcome.
type LifecycleError struct {
	State State
	Op    string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("cannot %s: environment is %s", e.Op, e.State)
}

func (e *LifecycleError) Is(target error) bool {
	return target == ErrLifecycle
}
