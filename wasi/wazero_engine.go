// Package wasi serves a compiled guest from an env.Env using wazero.
package wasi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/xycloo/zephyr-go/types"
)

// ModuleName is the import module of the host functions.
const ModuleName = "env"

// Dispatcher answers host calls. *env.Env implements it.
type Dispatcher interface {
	Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte, error)
}

// Memory is the subset of api.Memory used by the host functions.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// HostModule holds the result of the last zephyr_invoke until the guest takes
// it with zephyr_take_result.
type HostModule struct {
	d      Dispatcher
	logger *slog.Logger

	mu      sync.Mutex
	pending []byte
	err     error
}

// NewHostModule creates the host functions for d. A nil logger uses
// slog.Default().
func NewHostModule(d Dispatcher, logger *slog.Logger) *HostModule {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostModule{d: d, logger: logger}
}

// Err returns the first dispatcher error seen, usually a lifecycle misuse.
func (h *HostModule) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func pack(status types.StatusCode, size int) uint64 {
	return uint64(status)<<32 | uint64(uint32(size))
}

// invoke implements zephyr_invoke.
func (h *HostModule) invoke(mem Memory, code, argPtr, argLen uint32) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil

	var input []byte
	if argLen > 0 {
		buf, ok := mem.Read(argPtr, argLen)
		if !ok {
			h.logger.Warn("argument out of guest memory", "code", code, "ptr", argPtr, "len", argLen)
			return pack(types.StatusInvalidInput, 0)
		}
		input = append([]byte(nil), buf...)
	}

	status, out, err := h.d.Invoke(types.HostFunctionID(code), input)
	if err != nil {
		if h.err == nil {
			h.err = err
		}
		h.logger.Error("failed to dispatch host call", "code", types.HostFunctionID(code).String(), "error", err)
		return pack(types.StatusHostFault, 0)
	}
	if status == types.StatusOk {
		h.pending = out
	}
	return pack(status, len(h.pending))
}

// takeResult implements zephyr_take_result.
func (h *HostModule) takeResult(mem Memory, ptr, size uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.pending
	h.pending = nil
	if uint32(len(out)) > size {
		out = out[:size]
	}
	if len(out) == 0 {
		return 0
	}
	if !mem.Write(ptr, out) {
		h.logger.Warn("result buffer out of guest memory", "ptr", ptr, "len", len(out))
		return 0
	}
	return uint32(len(out))
}

// Instantiate registers the host functions on r as module "env".
func (h *HostModule) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)

	builder.NewFunctionBuilder().
		WithParameterNames("code", "argPtr", "argLen").
		WithResultNames("packed").
		WithFunc(func(_ context.Context, m api.Module, code, argPtr, argLen uint32) uint64 {
			return h.invoke(m.Memory(), code, argPtr, argLen)
		}).
		Export("zephyr_invoke")

	builder.NewFunctionBuilder().
		WithParameterNames("ptr", "size").
		WithResultNames("written").
		WithFunc(func(_ context.Context, m api.Module, ptr, size uint32) uint32 {
			return h.takeResult(m.Memory(), ptr, size)
		}).
		Export("zephyr_take_result")

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}
	return mod, nil
}

// Instantiate registers a host module serving d on r.
func Instantiate(ctx context.Context, r wazero.Runtime, d Dispatcher) (*HostModule, error) {
	h := NewHostModule(d, nil)
	if _, err := h.Instantiate(ctx, r); err != nil {
		return nil, err
	}
	return h, nil
}

type runConfig struct {
	stdout      io.Writer
	stderr      io.Writer
	logger      *slog.Logger
	memoryPages uint32
	timeout     time.Duration
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithStdout sets the guest's standard output. The default is os.Stdout.
func WithStdout(w io.Writer) RunOption {
	return func(c *runConfig) { c.stdout = w }
}

// WithStderr sets the guest's standard error. The default is os.Stderr.
func WithStderr(w io.Writer) RunOption {
	return func(c *runConfig) { c.stderr = w }
}

// WithLogger sets the logger for host call diagnostics.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = logger }
}

// WithMemoryLimitPages caps guest memory at n pages of 64KiB.
func WithMemoryLimitPages(n uint32) RunOption {
	return func(c *runConfig) { c.memoryPages = n }
}

// WithTimeout stops the guest after d.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) { c.timeout = d }
}

// ErrEntryNotFound is returned when the guest does not export the entry point.
var ErrEntryNotFound = errors.New("entry point not exported")

// Run compiles wasm, instantiates it against d with WASI preview1 and calls
// the exported function entry. Reactor modules are initialized through
// _initialize before the call.
func Run(ctx context.Context, wasm []byte, entry string, d Dispatcher, opts ...RunOption) error {
	c := runConfig{stdout: os.Stdout, stderr: os.Stderr, logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	if len(wasm) == 0 {
		return errors.New("module code cannot be empty")
	}

	rc := wazero.NewRuntimeConfig()
	if c.memoryPages > 0 {
		rc = rc.WithMemoryLimitPages(c.memoryPages)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
		rc = rc.WithCloseOnContextDone(true)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, rc)
	defer runtime.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return fmt.Errorf("failed to instantiate wasi: %w", err)
	}
	h := NewHostModule(d, c.logger)
	if _, err := h.Instantiate(ctx, runtime); err != nil {
		return err
	}

	compiled, err := runtime.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}
	config := wazero.NewModuleConfig().
		WithName("guest").
		WithStdout(c.stdout).
		WithStderr(c.stderr).
		WithStartFunctions("_initialize")

	mod, err := runtime.InstantiateModule(ctx, compiled, config)
	if err != nil {
		return fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(entry)
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entry)
	}
	if _, err := fn.Call(ctx); err != nil {
		return fmt.Errorf("failed to execute %s: %w", entry, err)
	}
	if err := h.Err(); err != nil {
		return fmt.Errorf("host call rejected: %w", err)
	}
	return nil
}
