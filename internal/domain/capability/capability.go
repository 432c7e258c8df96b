// Package capability maps task types to the operations that execute them. The
// orchestrator invokes capabilities without knowing anything about the tools behind
// them.
package capability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/recon-armada/internal/domain/task"
)

// ErrUnknownCapability is returned when a task type has no registered capability.
var ErrUnknownCapability = errors.New("unknown capability")

// Capability performs the actual scan for one task type.
//
// Expected operational failures (missing tool, unreachable host, non-zero exit) should
// be reported through Result.Error. A returned error is reserved for exceptional
// conditions; the orchestrator treats both the same way for retry purposes.
type Capability interface {
	Invoke(ctx context.Context, target string, params task.Params) (task.Result, error)
}

// Func adapts an ordinary function to the Capability interface.
type Func func(ctx context.Context, target string, params task.Params) (task.Result, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, target string, params task.Params) (task.Result, error) {
	return f(ctx, target, params)
}

// Registry is a lookup from task type to capability. Registration normally happens
// once at startup; lookups are safe from any goroutine.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[task.Type]Capability
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[task.Type]Capability)}
}

// Register binds typ to c, replacing any previous binding.
func (r *Registry) Register(typ task.Type, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[typ] = c
}

// Lookup returns the capability for typ or ErrUnknownCapability.
func (r *Registry) Lookup(typ task.Type) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, typ)
	}
	return c, nil
}

// Types lists the registered task types in sorted order.
func (r *Registry) Types() []task.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]task.Type, 0, len(r.capabilities))
	for t := range r.capabilities {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
