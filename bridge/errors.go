package bridge

import (
	"errors"
	"fmt"

	"github.com/xycloo/zephyr-go/types"
)

// Sentinels matched by StatusError and FaultError through errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPermissionDenied = errors.New("permission denied")
	ErrHostFault        = errors.New("host fault")
)

// StatusError is a recoverable host answer other than success. Cause is set
// when the status was decided on the guest side, such as a value that could
// not be encoded or a stored value that does not decode as the requested type.
type StatusError struct {
	Op     types.HostFunctionID
	Status types.StatusCode
	Cause  error
}

func (e *StatusError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Status, e.Cause)
}

func (e *StatusError) Unwrap() error {
	return e.Cause
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == types.StatusNotFound
	case ErrInvalidInput:
		return e.Status == types.StatusInvalidInput
	case ErrPermissionDenied:
		return e.Status == types.StatusPermissionDenied
	}
	return false
}

// FaultError reports a host fault. The invocation it happened in can no longer
// commit.
type FaultError struct {
	Op    types.HostFunctionID
	Cause error
}

func (e *FaultError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: host fault", e.Op)
	}
	return fmt.Sprintf("%s: host fault: %v", e.Op, e.Cause)
}

func (e *FaultError) Is(target error) bool {
	return target == ErrHostFault
}

func (e *FaultError) Unwrap() error {
	return e.Cause
}
