package vm

import (
	"fmt"
	"sync"
)

// SyncFunc is a host function that completes immediately. args is a Map:
// slot-keyed for actuator/sensor calls, position-keyed for operator calls.
type SyncFunc func(ctx *ExecutionContext, args Value) (Value, error)

// AsyncFunc starts a host operation whose result is delivered later by
// resolving, rejecting or cancelling handle through ctx.Handles(). The VM
// takes no further action on the handle. Returning an error rejects the
// handle immediately.
type AsyncFunc func(ctx *ExecutionContext, args Value, handle HandleID) error

// PageEnteredFunc runs once per page activation for every call site of the
// function compiled into that page. ctx.CallSiteID() identifies the site.
type PageEnteredFunc func(ctx *ExecutionContext)

// HostFunction is a registered function callable from bytecode. Exactly
// one of Sync and Async is set.
type HostFunction struct {
	ID            int
	Name          string
	Sync          SyncFunc
	Async         AsyncFunc
	OnPageEntered PageEnteredFunc
}

// IsAsync reports whether the function completes through a handle.
func (f *HostFunction) IsAsync() bool {
	return f.Async != nil
}

// FunctionRegistry assigns dense ids to host functions.
type FunctionRegistry struct {
	mu     sync.RWMutex
	fns    []*HostFunction
	byName map[string]int
	sealed bool
}

// NewFunctionRegistry returns an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{byName: make(map[string]int)}
}

// Register adds fn and returns its id.
func (r *FunctionRegistry) Register(fn HostFunction) (int, error) {
	if fn.Name == "" {
		return 0, fmt.Errorf("functions: host function needs a name")
	}
	if (fn.Sync == nil) == (fn.Async == nil) {
		return 0, fmt.Errorf("functions: %q must set exactly one of Sync or Async", fn.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return 0, fmt.Errorf("functions: registry sealed, cannot register %q", fn.Name)
	}
	if _, dup := r.byName[fn.Name]; dup {
		return 0, fmt.Errorf("functions: %q already registered", fn.Name)
	}
	fn.ID = len(r.fns)
	entry := fn
	r.fns = append(r.fns, &entry)
	r.byName[fn.Name] = fn.ID
	return fn.ID, nil
}

// MustRegister is Register for package-level setup code.
func (r *FunctionRegistry) MustRegister(fn HostFunction) int {
	id, err := r.Register(fn)
	if err != nil {
		panic(err)
	}
	return id
}

// Get returns the function with id.
func (r *FunctionRegistry) Get(id int) (*HostFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.fns) {
		return nil, false
	}
	return r.fns[id], true
}

// Lookup returns the function registered under name.
func (r *FunctionRegistry) Lookup(name string) (*HostFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.fns[id], true
}

// Len returns the number of registered functions.
func (r *FunctionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fns)
}

func (r *FunctionRegistry) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}
