package sim

import (
	"context"
	"log/slog"
	"time"

	"github.com/xycloo/zephyr-go/ledger"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/types"
)

// Option configures a Backend.
type Option func(*Backend)

// WithStore runs invocations against s. The caller keeps ownership of s.
func WithStore(s store.Store) Option {
	return func(b *Backend) {
		b.store = s
		b.ownsStore = false
		b.genesis = nil
	}
}

// WithSnapshot seeds a private in-memory store with s.
func WithSnapshot(s *ledger.Snapshot) Option {
	return func(b *Backend) {
		b.store = nil
		b.genesis = s
	}
}

// WithReadOnly makes every mutating host function answer
// types.StatusPermissionDenied.
func WithReadOnly() Option {
	return func(b *Backend) {
		b.readOnly = true
	}
}

// WithFault makes every call to code answer types.StatusHostFault with err as
// the reported cause.
func WithFault(code types.HostFunctionID, err error) Option {
	return func(b *Backend) {
		b.faults[code] = err
	}
}

// WithLogger sets the logger for guest records and backend diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithClock sets the clock used for invocations without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(b *Backend) {
		b.clock = clock
	}
}

// WithContext sets the context passed to store operations.
func WithContext(ctx context.Context) Option {
	return func(b *Backend) {
		b.ctx = ctx
	}
}
