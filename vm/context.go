package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Host surface
// ---------------------------------------------------------------------------

// Scope resolves variable ids for the rule compiled into funcID. The
// owning brain walks rule locals, then the ancestor rules, then globals.
type Scope interface {
	Load(funcID, varID int) Value
	Store(funcID, varID int, v Value)
	Clear(funcID, varID int)
}

// Clock is the time reported to host functions.
type Clock struct {
	Tick    uint64
	Elapsed time.Duration
	Delta   time.Duration
}

// Host is the owner of a scheduler's fibers, normally a brain.
type Host interface {
	Scope

	// CallSiteStates returns the persistent per-call-site state map.
	CallSiteStates() map[int]any
	Clock() Clock
	RequestPage(key string) error
}

// ---------------------------------------------------------------------------
// ExecutionContext
// ---------------------------------------------------------------------------

// ExecutionContext is the per-fiber view host functions receive. Its
// lifetime is the fiber's; call-site state lives in the Host.
type ExecutionContext struct {
	host    Host
	prog    *BrainProgram
	handles *HandleTable
	fiber   *Fiber

	funcID     int
	callSiteID int
}

// NewHookContext returns a fiber-less context for page-entered hooks
// running on behalf of one call site.
func NewHookContext(host Host, prog *BrainProgram, handles *HandleTable, funcID, callSiteID int) *ExecutionContext {
	return &ExecutionContext{host: host, prog: prog, handles: handles, funcID: funcID, callSiteID: callSiteID}
}

// Host returns the owner of the fiber.
func (c *ExecutionContext) Host() Host { return c.host }

// Program returns the program being executed.
func (c *ExecutionContext) Program() *BrainProgram { return c.prog }

// FiberID returns the id of the calling fiber.
func (c *ExecutionContext) FiberID() FiberID {
	if c.fiber == nil {
		return 0
	}
	return c.fiber.ID
}

// FuncID returns the function executing the current host call.
func (c *ExecutionContext) FuncID() int { return c.funcID }

// CallSiteID returns the compile-time id of the current host call, or 0
// outside of a host call.
func (c *ExecutionContext) CallSiteID() int { return c.callSiteID }

// Rule returns the metadata of the rule executing the current host call.
func (c *ExecutionContext) Rule() (RuleMetadata, bool) {
	return c.prog.Rule(c.funcID)
}

// Handles exposes the handle table so async host functions can complete
// the handle they were given.
func (c *ExecutionContext) Handles() *HandleTable { return c.handles }

// LastError returns the most recent error caught by a TRY region of the
// calling fiber.
func (c *ExecutionContext) LastError() *ErrorValue {
	if c.fiber == nil {
		return nil
	}
	return c.fiber.lastError
}

// GetVar reads a variable through the calling rule's scope chain.
func (c *ExecutionContext) GetVar(varID int) Value {
	return c.host.Load(c.funcID, varID)
}

// SetVar writes a variable through the calling rule's scope chain.
func (c *ExecutionContext) SetVar(varID int, v Value) {
	c.host.Store(c.funcID, varID, v)
}

// ClearVar unsets a variable.
func (c *ExecutionContext) ClearVar(varID int) {
	c.host.Clear(c.funcID, varID)
}

// VarID resolves a variable name.
func (c *ExecutionContext) VarID(name string) (int, bool) {
	return c.prog.VariableID(name)
}

// State returns the persistent state of the current call site.
func (c *ExecutionContext) State() (any, bool) {
	s, ok := c.host.CallSiteStates()[c.callSiteID]
	return s, ok
}

// SetState replaces the persistent state of the current call site.
func (c *ExecutionContext) SetState(s any) {
	c.host.CallSiteStates()[c.callSiteID] = s
}

// Now returns the time elapsed since the host started.
func (c *ExecutionContext) Now() time.Duration { return c.host.Clock().Elapsed }

// Delta returns the duration of the current tick.
func (c *ExecutionContext) Delta() time.Duration { return c.host.Clock().Delta }

// Tick returns the current tick number.
func (c *ExecutionContext) Tick() uint64 { return c.host.Clock().Tick }

// RequestPage asks the host to switch pages at the next tick.
func (c *ExecutionContext) RequestPage(key string) error {
	return c.host.RequestPage(key)
}

// CallSiteState returns the state of the current call site as a T,
// creating it with init when it is missing or of another type.
func CallSiteState[T any](c *ExecutionContext, init func() T) T {
	if s, ok := c.State(); ok {
		if t, ok := s.(T); ok {
			return t
		}
	}
	t := init()
	c.SetState(t)
	return t
}
