package host

import (
	"log/slog"

	"github.com/xycloo/zephyr-go/types"
)

// Traced wraps a backend and logs every call at debug level. Optional
// capabilities of the wrapped backend stay reachable through it.
type Traced struct {
	inner  Backend
	logger *slog.Logger
}

// Trace wraps b. A nil logger uses slog.Default().
func Trace(b Backend, logger *slog.Logger) *Traced {
	if logger == nil {
		logger = slog.Default()
	}
	return &Traced{inner: b, logger: logger}
}

// Invoke forwards to the wrapped backend and logs the call.
func (t *Traced) Invoke(code types.HostFunctionID, input []byte) (types.StatusCode, []byte) {
	status, out := t.inner.Invoke(code, input)
	attrs := []any{"function", code.String(), "status", status.String(), "input_size", len(input), "output_size", len(out)}
	if status == types.StatusHostFault {
		if err := t.LastFault(); err != nil {
			attrs = append(attrs, "error", err)
		}
		t.logger.Warn("host call faulted", attrs...)
		return status, out
	}
	t.logger.Debug("host call", attrs...)
	return status, out
}

func (t *Traced) Begin(inv types.Invocation) error {
	if lc, ok := t.inner.(Lifecycle); ok {
		t.logger.Debug("begin invocation", "invocation", inv.ID)
		return lc.Begin(inv)
	}
	return nil
}

func (t *Traced) Commit() error {
	if lc, ok := t.inner.(Lifecycle); ok {
		if err := lc.Commit(); err != nil {
			t.logger.Error("failed to commit invocation", "error", err)
			return err
		}
		t.logger.Debug("committed invocation")
	}
	return nil
}

func (t *Traced) Discard() {
	if lc, ok := t.inner.(Lifecycle); ok {
		t.logger.Debug("discarding invocation")
		lc.Discard()
	}
}

func (t *Traced) LastFault() error {
	if fr, ok := t.inner.(FaultReporter); ok {
		return fr.LastFault()
	}
	return nil
}
