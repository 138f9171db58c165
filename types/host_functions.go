// Package types contains the numeric host function table and the request and
// response payloads shared by guest programs and every host implementation.
package types

import "fmt"

// ABIVersion identifies the op-code table below. Hosts that claim
// compatibility with a given version must answer every code with the meaning
// listed here.
const ABIVersion = 1

// HostFunctionID is the operation code of a host call.
//
// IMPORTANT: these values are the only contract between a compiled guest and
// its host. Changing the number of an existing function, or its meaning, is a
// breaking change and requires a new ABIVersion. New functions may only be
// appended.
type HostFunctionID uint32

const (
	// FuncStorageRead reads a value from the invocation's storage view
	FuncStorageRead HostFunctionID = iota + 1 // 1
	// FuncStorageWrite buffers a write in the invocation overlay
	FuncStorageWrite // 2
	// FuncStorageDelete buffers a delete in the invocation overlay
	FuncStorageDelete // 3
	// FuncEmitEvent records an event for the invocation
	FuncEmitEvent // 4
	// FuncLedgerGet reads a committed value at a historical sequence
	FuncLedgerGet // 5
	// FuncLedgerRange lists committed entry changes
	FuncLedgerRange // 6
	// FuncLedgerInfo describes the snapshot the invocation runs against
	FuncLedgerInfo // 7
	// FuncLog forwards a guest log record to the host logger
	FuncLog // 8
	// FuncConclude sets the invocation result
	FuncConclude // 9
	// FuncStorageRange lists the entries of the invocation's storage view
	FuncStorageRange // 10

	maxHostFunction = FuncStorageRange
)

var hostFunctionNames = map[HostFunctionID]string{
	FuncStorageRead:   "storage_read",
	FuncStorageWrite:  "storage_write",
	FuncStorageDelete: "storage_delete",
	FuncEmitEvent:     "emit_event",
	FuncLedgerGet:     "ledger_get",
	FuncLedgerRange:   "ledger_range",
	FuncLedgerInfo:    "ledger_info",
	FuncLog:           "log",
	FuncConclude:      "conclude",
	FuncStorageRange:  "storage_range",
}

func (id HostFunctionID) String() string {
	if name, ok := hostFunctionNames[id]; ok {
		return name
	}
	return fmt.Sprintf("host_function(%d)", uint32(id))
}

// Valid reports whether id is part of the table.
func (id HostFunctionID) Valid() bool {
	return id >= FuncStorageRead && id <= maxHostFunction
}

// Mutating reports whether the function changes invocation state that a
// read-only host must refuse.
func (id HostFunctionID) Mutating() bool {
	return id == FuncStorageWrite || id == FuncStorageDelete
}

// StatusCode is the outcome of a host call. A payload is only meaningful
// alongside StatusOk.
type StatusCode uint32

const (
	StatusOk StatusCode = iota
	StatusNotFound
	StatusInvalidInput
	StatusPermissionDenied
	StatusHostFault
)

func (s StatusCode) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusInvalidInput:
		return "invalid input"
	case StatusPermissionDenied:
		return "permission denied"
	case StatusHostFault:
		return "host fault"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Normalize maps codes outside the table to StatusHostFault.
func (s StatusCode) Normalize() StatusCode {
	if s > StatusHostFault {
		return StatusHostFault
	}
	return s
}

const (
	// MaxKeySize bounds storage keys.
	MaxKeySize = 1024
	// MaxPayloadSize bounds stored values and host call payloads.
	MaxPayloadSize = 1 << 20
)
