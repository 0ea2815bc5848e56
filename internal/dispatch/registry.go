// Package dispatch resolves a task's destination to a capability and runs it.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

// Capability is the handler behind a destination name. The result is either
// a mapping of artifact name to content or a single scalar value.
type Capability interface {
	Run(ctx context.Context, task model.Task) (any, error)
}

// CapabilityFunc lets a plain function serve as a Capability.
type CapabilityFunc func(ctx context.Context, task model.Task) (any, error)

func (f CapabilityFunc) Run(ctx context.Context, task model.Task) (any, error) {
	return f(ctx, task)
}

// Factory builds a capability object on demand. It is called once per
// dispatch, so stateful capabilities start fresh for every task.
type Factory func() (Capability, error)

type registration struct {
	fn      CapabilityFunc
	obj     Capability
	factory Factory
}

// Registry maps destination names to capabilities. A name may carry a
// function, an object and a factory at once; resolution prefers them in that
// order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registration)}
}

func (r *Registry) entry(name string) *registration {
	e, ok := r.entries[name]
	if !ok {
		e = &registration{}
		r.entries[name] = e
	}
	return e
}

func (r *Registry) Register(name string, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name).obj = c
}

func (r *Registry) RegisterFunc(name string, fn CapabilityFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name).fn = fn
}

func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name).factory = f
}

// Resolve returns the capability for name. An unknown name yields
// ErrUnregisteredDestination; a known name with nothing runnable behind it
// yields ErrNoRunnableCapability.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	var reg registration
	if ok {
		reg = *e
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredDestination, name)
	}
	if reg.fn != nil {
		return reg.fn, nil
	}
	if reg.obj != nil {
		return reg.obj, nil
	}
	if reg.factory != nil {
		c, err := reg.factory()
		if err != nil {
			return nil, fmt.Errorf("%w: %q: factory: %v", ErrNoRunnableCapability, name, err)
		}
		if c != nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoRunnableCapability, name)
}

// Names lists registered destinations in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
