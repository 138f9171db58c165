// Package env holds the per-invocation environment that every bridge call is
// routed through.
package env

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/host"
	"github.com/xycloo/zephyr-go/types"
)

// Env binds one backend to one invocation. It moves from Uninitialized to
// Active on Begin and to Finalized on Finalize; it is never reused. An Env is
// not safe for concurrent use.
type Env struct {
	backend host.Backend
	logger  *slog.Logger
	trace   bool

	state     State
	inv       types.Invocation
	events    []types.Event
	result    []byte
	concluded bool
	fault     error
	aborted   *multierror.Error
}

// Outcome is the result of a finalized invocation.
type Outcome struct {
	Invocation types.Invocation
	Committed  bool
	// Events holds the emitted events of a committed invocation.
	Events []types.Event
	Result []byte
	Err    error
}

// Option configures an Env.
type Option func(*Env)

// WithLogger sets the logger used by the environment.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Env) {
		e.logger = logger
	}
}

// WithTracing logs every host call through host.Trace.
func WithTracing() Option {
	return func(e *Env) {
		e.trace = true
	}
}

// New creates an environment over backend.
func New(backend host.Backend, opts ...Option) *Env {
	e := &Env{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.trace {
		e.backend = host.Trace(e.backend, e.logger)
	}
	return e
}

// Open creates an environment over a registered backend kind. An empty kind
// selects the registry default.
func Open(kind host.BackendKind, params map[string]any, opts ...Option) (*Env, error) {
	backend, err := host.Get(kind, params)
	if err != nil {
		return nil, fmt.Errorf("failed to open environment: %w", err)
	}
	return New(backend, opts...), nil
}

// State returns the lifecycle position.
func (e *Env) State() State { return e.state }

// Invocation returns the invocation passed to Begin.
func (e *Env) Invocation() types.Invocation { return e.inv }

// Backend returns the backend calls are routed to, wrapped when tracing is on.
func (e *Env) Backend() host.Backend { return e.backend }

// Fault returns the cause of the host fault that ended the invocation, if any.
func (e *Env) Fault() error { return e.fault }

// Events returns the events accepted so far.
func (e *Env) Events() []types.Event {
	return append([]types.Event(nil), e.events...)
}

// Result returns the concluded result and whether Conclude succeeded.
func (e *Env) Result() ([]byte, bool) {
	return e.result, e.concluded
}

// Begin activates the environment for inv.
func (e *Env) Begin(inv types.Invocation) error {
	if e.state != StateUninitialized {
		return &LifecycleError{State: e.state, Op: "begin"}
	}
	if lc, ok := e.backend.(host.Lifecycle); ok {
		if err := lc.Begin(inv); err != nil {
			return fmt.Errorf("failed to begin invocation %d: %w", inv.ID, err)
		}
	}
	e.inv = inv
	e.state = StateActive
	e.logger.Debug("invocation started", "invocation", inv.ID)
	return nil
}

// Invoke performs one host call. Outside the Active state it fails with a
// LifecycleError and no backend I/O. Once a call has faulted every later call
// answers StatusHostFault without reaching the backend.
func (e *Env) Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte, error) {
	if e.state != StateActive {
		return types.StatusHostFault, nil, &LifecycleError{State: e.state, Op: "invoke " + code.String()}
	}
	if e.fault != nil {
		return types.StatusHostFault, nil, nil
	}

	status, out := e.backend.Invoke(code, input)
	status = status.Normalize()
	switch {
	case status == types.StatusHostFault:
		e.recordFault(code, nil)
		return status, nil, nil
	case status != types.StatusOk:
		return status, nil, nil
	}

	switch code {
	case types.FuncEmitEvent:
		ev, err := codec.Decode[types.Event](input)
		if err != nil {
			e.recordFault(code, fmt.Errorf("failed to decode accepted event: %w", err))
			return types.StatusHostFault, nil, nil
		}
		e.events = append(e.events, ev)
	case types.FuncConclude:
		p, err := codec.Decode[types.ConcludeParams](input)
		if err != nil {
			e.recordFault(code, fmt.Errorf("failed to decode accepted result: %w", err))
			return types.StatusHostFault, nil, nil
		}
		e.result = p.Result
		e.concluded = true
	}
	return status, out, nil
}

func (e *Env) recordFault(code types.HostFunctionID, cause error) {
	if cause == nil {
		if fr, ok := e.backend.(host.FaultReporter); ok {
			cause = fr.LastFault()
		}
	}
	if cause == nil {
		cause = fmt.Errorf("host fault during %s", code)
	}
	e.fault = cause
	e.logger.Error("host fault", "invocation", e.inv.ID, "function", code.String(), "error", cause)
}

// Abort marks the invocation as failed; Finalize will discard its effects.
// A cause that wraps the recorded host fault adds nothing and is dropped.
func (e *Env) Abort(cause error) {
	if e.state != StateActive {
		return
	}
	if cause == nil {
		cause = errors.New("invocation aborted")
	}
	if e.fault != nil && errors.Is(cause, e.fault) {
		return
	}
	e.aborted = multierror.Append(e.aborted, cause)
}

// Finalize ends the invocation. The backend commits when no fault or abort was
// recorded and discards otherwise.
func (e *Env) Finalize() (*Outcome, error) {
	if e.state != StateActive {
		return nil, &LifecycleError{State: e.state, Op: "finalize"}
	}
	e.state = StateFinalized
	out := &Outcome{Invocation: e.inv, Result: e.result}

	var errs *multierror.Error
	if e.fault != nil {
		errs = multierror.Append(errs, fmt.Errorf("host fault: %w", e.fault))
	}
	if e.aborted != nil {
		errs = multierror.Append(errs, e.aborted.Errors...)
	}

	lc, hasLifecycle := e.backend.(host.Lifecycle)
	if errs == nil && hasLifecycle {
		if err := lc.Commit(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to commit invocation %d: %w", e.inv.ID, err))
			lc.Discard()
		}
	} else if hasLifecycle {
		lc.Discard()
	}

	if err := errs.ErrorOrNil(); err != nil {
		out.Err = err
		e.logger.Warn("invocation rolled back", "invocation", e.inv.ID, "error", err)
		return out, err
	}
	out.Committed = true
	out.Events = e.Events()
	e.logger.Debug("invocation committed", "invocation", e.inv.ID, "events", len(out.Events))
	return out, nil
}

// Run begins inv, runs fn and finalizes. An error or panic from fn aborts the
// invocation.
func (e *Env) Run(inv types.Invocation, fn func(*Env) error) (out *Outcome, err error) {
	if err := e.Begin(inv); err != nil {
		return nil, err
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.Abort(fmt.Errorf("guest panic: %v", r))
			}
		}()
		if err := fn(e); err != nil {
			e.Abort(err)
		}
	}()
	return e.Finalize()
}
