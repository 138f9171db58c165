// Package bridge turns typed guest operations into host calls.
//
// Every operation encodes its request, invokes the matching host function
// through the environment and maps the answer: success is decoded into the
// result type, recoverable statuses become a *StatusError and host faults a
// *FaultError. A value that cannot be encoded, or a stored value that does not
// decode as the requested type, is reported as invalid input like the host
// would.
package bridge

import (
	"fmt"

	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/env"
	"github.com/xycloo/zephyr-go/types"
)

func call(e *env.Env, code types.HostFunctionID, req codec.Marshaler) ([]byte, error) {
	var input []byte
	if req != nil {
		input = codec.Marshal(req)
	}
	status, out, err := e.Invoke(code, input)
	if err != nil {
		return nil, err
	}
	switch status {
	case types.StatusOk:
		return out, nil
	case types.StatusHostFault:
		return nil, &FaultError{Op: code, Cause: e.Fault()}
	default:
		return nil, &StatusError{Op: code, Status: status}
	}
}

func decode[T any, PT codec.Decodable[T]](code types.HostFunctionID, out []byte) (T, error) {
	if out == nil {
		var zero T
		return zero, fmt.Errorf("%s returned no payload: %w", code, codec.ErrTruncated)
	}
	v, err := codec.Decode[T, PT](out)
	if err != nil {
		return v, fmt.Errorf("failed to decode %s result: %w", code, err)
	}
	return v, nil
}

func invalid(code types.HostFunctionID, cause error) error {
	return &StatusError{Op: code, Status: types.StatusInvalidInput, Cause: cause}
}

// decodeStored decodes a stored value. The host only validates values against
// a declared shape, so a mismatch for other types surfaces here.
func decodeStored[T any, PT codec.Decodable[T]](code types.HostFunctionID, out []byte) (T, error) {
	v, err := decode[T, PT](code, out)
	if err != nil {
		return v, invalid(code, err)
	}
	return v, nil
}

func encode(code types.HostFunctionID, v codec.Marshaler) ([]byte, error) {
	b, err := codec.Encode(v)
	if err != nil {
		return nil, invalid(code, err)
	}
	return b, nil
}

func shapeOf[T any]() *codec.Shape {
	if s, ok := codec.ShapeOf[T](); ok {
		return &s
	}
	return nil
}

// Read loads the value stored under key and decodes it as T. When T declares
// a shape the host validates the stored value against it.
func Read[T any, PT codec.Decodable[T]](e *env.Env, key []byte) (T, error) {
	out, err := call(e, types.FuncStorageRead, types.StorageReadParams{Key: key, Shape: shapeOf[T]()})
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeStored[T, PT](types.FuncStorageRead, out)
}

// ReadRaw loads the stored bytes under key.
func ReadRaw(e *env.Env, key []byte) ([]byte, error) {
	out, err := call(e, types.FuncStorageRead, types.StorageReadParams{Key: key})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return []byte{}, nil
	}
	return out, nil
}

// Write stores the encoding of v under key.
func Write(e *env.Env, key []byte, v codec.Marshaler) error {
	value, err := encode(types.FuncStorageWrite, v)
	if err != nil {
		return err
	}
	return WriteRaw(e, key, value)
}

// WriteRaw stores value under key as is.
func WriteRaw(e *env.Env, key, value []byte) error {
	_, err := call(e, types.FuncStorageWrite, types.StorageWriteParams{Key: key, Value: value})
	return err
}

// Delete removes key. A key that is not in the storage view is ErrNotFound.
func Delete(e *env.Env, key []byte) error {
	_, err := call(e, types.FuncStorageDelete, types.StorageDeleteParams{Key: key})
	return err
}

// Emit publishes an event whose data is the encoding of data.
func Emit(e *env.Env, topics [][]byte, data codec.Marshaler) error {
	payload, err := encode(types.FuncEmitEvent, data)
	if err != nil {
		return err
	}
	return EmitRaw(e, types.Event{Topics: topics, Data: payload})
}

// EmitRaw publishes ev. The event is kept only if the invocation commits.
func EmitRaw(e *env.Env, ev types.Event) error {
	if ev.Topics == nil {
		ev.Topics = [][]byte{}
	}
	_, err := call(e, types.FuncEmitEvent, ev)
	return err
}

// ReadRange lists the entries of the storage view whose key starts with
// prefix, in key order. The view includes the invocation's own writes and
// deletes. Limit zero returns every entry.
func ReadRange(e *env.Env, prefix []byte, limit uint32) ([]types.StorageEntry, error) {
	out, err := call(e, types.FuncStorageRange, types.StorageRangeParams{Prefix: prefix, Limit: limit})
	if err != nil {
		return nil, err
	}
	res, err := decode[types.StorageRangeResult](types.FuncStorageRange, out)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// ReadAll decodes every value stored under prefix as T, in key order.
func ReadAll[T any, PT codec.Decodable[T]](e *env.Env, prefix []byte) ([]T, error) {
	out, err := call(e, types.FuncStorageRange, types.StorageRangeParams{Prefix: prefix, Shape: shapeOf[T]()})
	if err != nil {
		return nil, err
	}
	res, err := decode[types.StorageRangeResult](types.FuncStorageRange, out)
	if err != nil {
		return nil, err
	}
	values := make([]T, 0, len(res.Entries))
	for _, entry := range res.Entries {
		v, err := decodeStored[T, PT](types.FuncStorageRange, entry.Value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", entry.Key, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// LedgerGet reads key as of a committed sequence; zero means the latest.
func LedgerGet[T any, PT codec.Decodable[T]](e *env.Env, key []byte, sequence uint64) (T, error) {
	out, err := call(e, types.FuncLedgerGet, types.LedgerGetParams{Key: key, Sequence: sequence, Shape: shapeOf[T]()})
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeStored[T, PT](types.FuncLedgerGet, out)
}

// LedgerRange lists committed entry changes in sequence order.
func LedgerRange(e *env.Env, params types.LedgerRangeParams) ([]types.EntryChange, error) {
	out, err := call(e, types.FuncLedgerRange, params)
	if err != nil {
		return nil, err
	}
	res, err := decode[types.LedgerRangeResult](types.FuncLedgerRange, out)
	if err != nil {
		return nil, err
	}
	return res.Changes, nil
}

// LedgerInfo describes the snapshot the invocation runs against.
func LedgerInfo(e *env.Env) (types.LedgerInfo, error) {
	out, err := call(e, types.FuncLedgerInfo, nil)
	if err != nil {
		return types.LedgerInfo{}, err
	}
	return decode[types.LedgerInfo](types.FuncLedgerInfo, out)
}

// Log forwards a record to the host logger.
func Log(e *env.Env, level types.LogLevel, message string, data []byte) error {
	_, err := call(e, types.FuncLog, types.LogParams{Level: level, Message: message, Data: data})
	return err
}

// Conclude sets the invocation result to the encoding of v.
func Conclude(e *env.Env, v codec.Marshaler) error {
	result, err := encode(types.FuncConclude, v)
	if err != nil {
		return err
	}
	return ConcludeRaw(e, result)
}

// ConcludeRaw sets the invocation result. A later call replaces it.
func ConcludeRaw(e *env.Env, result []byte) error {
	_, err := call(e, types.FuncConclude, types.ConcludeParams{Result: result})
	return err
}
