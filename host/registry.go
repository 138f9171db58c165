package host

import (
	"fmt"
	"sort"
	"sync"
)

// BackendKind names a backend implementation.
type BackendKind string

const (
	// KindWasm is the real host reached through wasm imports
	KindWasm BackendKind = "wasm"
	// KindSim is the local simulation backend
	KindSim BackendKind = "sim"
)

// Constructor creates a backend from free-form parameters.
type Constructor func(params map[string]any) (Backend, error)

// Registry keeps the known backend implementations.
type Registry interface {
	// Register adds a new backend implementation
	Register(kind BackendKind, constructor Constructor) error
	// SetDefault sets the kind used when none is requested
	SetDefault(kind BackendKind) error
	// Get constructs a backend of the given kind
	Get(kind BackendKind, params map[string]any) (Backend, error)
	// DefaultKind returns the current default kind
	DefaultKind() BackendKind
	// ListRegistered returns the registered kinds in sorted order
	ListRegistered() []BackendKind
}

type registry struct {
	mu          sync.RWMutex
	backends    map[BackendKind]Constructor
	defaultKind BackendKind
}

var defaultRegistry Registry

func init() {
	defaultRegistry = NewRegistry()
	if err := defaultRegistry.Register(KindWasm, func(map[string]any) (Backend, error) {
		return newWasmBackend(), nil
	}); err != nil {
		panic(err)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return &registry{backends: make(map[BackendKind]Constructor)}
}

// GetRegistry returns the process-wide registry.
func GetRegistry() Registry {
	return defaultRegistry
}

func (r *registry) Register(kind BackendKind, constructor Constructor) error {
	if kind == "" || constructor == nil {
		return fmt.Errorf("invalid backend registration %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[kind]; exists {
		return fmt.Errorf("backend kind %s already registered", kind)
	}
	r.backends[kind] = constructor
	return nil
}

func (r *registry) SetDefault(kind BackendKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[kind]; !exists {
		return fmt.Errorf("backend kind %s not registered", kind)
	}
	r.defaultKind = kind
	return nil
}

func (r *registry) Get(kind BackendKind, params map[string]any) (Backend, error) {
	if kind == "" {
		kind = r.DefaultKind()
	}
	r.mu.RLock()
	constructor, exists := r.backends[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("backend kind %s not found", kind)
	}
	b, err := constructor(params)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s backend: %w", kind, err)
	}
	return b, nil
}

func (r *registry) DefaultKind() BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultKind == "" {
		return KindWasm
	}
	return r.defaultKind
}

func (r *registry) ListRegistered() []BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]BackendKind, 0, len(r.backends))
	for kind := range r.backends {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Package level functions that delegate to the process-wide registry

func Register(kind BackendKind, constructor Constructor) error {
	return GetRegistry().Register(kind, constructor)
}

func SetDefault(kind BackendKind) error {
	return GetRegistry().SetDefault(kind)
}

// Get constructs a backend; an empty kind selects the default.
func Get(kind BackendKind, params map[string]any) (Backend, error) {
	return GetRegistry().Get(kind, params)
}

func DefaultKind() BackendKind {
	return GetRegistry().DefaultKind()
}

func ListRegistered() []BackendKind {
	return GetRegistry().ListRegistered()
}
