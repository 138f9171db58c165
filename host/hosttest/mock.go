// Package hosttest provides a scripted backend for exercising the bridge
// without a real or simulated host.
package hosttest

import (
	"sync"

	"github.com/xycloo/zephyr-go/types"
)

// Call records one invocation seen by the mock.
type Call struct {
	Code  types.HostFunctionID
	Input []byte
}

type response struct {
	status  types.StatusCode
	payload []byte
}

// Mock answers each op code with a canned response. Responses queued with On
// are consumed in order; the last one for a code repeats. Unscripted codes
// answer types.StatusOk with no payload.
type Mock struct {
	mu        sync.Mutex
	responses map[types.HostFunctionID][]response
	calls     []Call
	fault     error

	Began     []types.Invocation
	Commits   int
	Discards  int
	CommitErr error
}

func New() *Mock {
	return &Mock{responses: make(map[types.HostFunctionID][]response)}
}

// On queues a response for code.
func (m *Mock) On(code types.HostFunctionID, status types.StatusCode, payload []byte) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[code] = append(m.responses[code], response{status: status, payload: payload})
	return m
}

// Fault makes the mock report err from LastFault.
func (m *Mock) Fault(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = err
	return m
}

func (m *Mock) Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Code: code, Input: append([]byte(nil), input...)})
	queue := m.responses[code]
	if len(queue) == 0 {
		return types.StatusOk, nil
	}
	r := queue[0]
	if len(queue) > 1 {
		m.responses[code] = queue[1:]
	}
	return r.status, r.payload
}

// Calls returns every call seen so far.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// LastCall returns the most recent call.
func (m *Mock) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

func (m *Mock) Begin(inv types.Invocation) error {
	m.Began = append(m.Began, inv)
	return nil
}

func (m *Mock) Commit() error {
	m.Commits++
	return m.CommitErr
}

func (m *Mock) Discard() {
	m.Discards++
}

func (m *Mock) LastFault() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fault
}
