package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Fiber: one cooperative execution of a function tree
// ---------------------------------------------------------------------------

// FiberID identifies a fiber within its scheduler. Zero is never valid.
type FiberID int

// FiberState is the scheduler-visible state of a fiber.
type FiberState uint8

const (
	FiberRunnable FiberState = iota
	FiberWaiting
	FiberDone
	FiberFault
	FiberCancelled
)

func (s FiberState) String() string {
	switch s {
	case FiberRunnable:
		return "runnable"
	case FiberWaiting:
		return "waiting"
	case FiberDone:
		return "done"
	case FiberFault:
		return "fault"
	case FiberCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("FiberState(%d)", s)
}

// Terminal reports whether the state is final.
func (s FiberState) Terminal() bool {
	return s == FiberDone || s == FiberFault || s == FiberCancelled
}

// Frame is one activation record.
type Frame struct {
	FuncID int
	PC     int
	Base   int // operand stack height when the frame was entered
}

// Fiber holds the explicit execution state the interpreter trampolines
// over. It is owned by exactly one Scheduler.
type Fiber struct {
	ID     FiberID
	State  FiberState
	Entry  int   // function the fiber was spawned on
	Result Value // set when Done
	Err    *ErrorValue

	stack    []Value
	frames   []Frame
	handlers []Handler

	awaiting  HandleID
	handles   []HandleID // handles created by this fiber
	lastError *ErrorValue
	ctx       *ExecutionContext
}

func newFiber(id FiberID, funcID int) *Fiber {
	return &Fiber{
		ID:     id,
		State:  FiberRunnable,
		Entry:  funcID,
		Result: Void,
		stack:  make([]Value, 0, 16),
		frames: []Frame{{FuncID: funcID}},
	}
}

// Context returns the fiber's execution context.
func (f *Fiber) Context() *ExecutionContext { return f.ctx }

// StackHeight returns the current operand stack height.
func (f *Fiber) StackHeight() int { return len(f.stack) }

// FrameDepth returns the number of active frames.
func (f *Fiber) FrameDepth() int { return len(f.frames) }

// HandlerDepth returns the number of active TRY regions.
func (f *Fiber) HandlerDepth() int { return len(f.handlers) }

// Awaiting returns the handle the fiber is parked on, or 0.
func (f *Fiber) Awaiting() HandleID { return f.awaiting }

// LastError returns the most recent error caught by a TRY region.
func (f *Fiber) LastError() *ErrorValue { return f.lastError }

func (f *Fiber) String() string {
	return fmt.Sprintf("fiber %d (fn%d, %s)", f.ID, f.Entry, f.State)
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (f *Fiber) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Fiber) pop() Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack[n] = Value{}
	f.stack = f.stack[:n]
	return v
}

func (f *Fiber) top() Value {
	return f.stack[len(f.stack)-1]
}

func (f *Fiber) frame() *Frame {
	return &f.frames[len(f.frames)-1]
}

// trace snapshots the call chain, innermost frame first.
func (f *Fiber) trace() []Site {
	sites := make([]Site, 0, len(f.frames))
	for i := len(f.frames) - 1; i >= 0; i-- {
		fr := f.frames[i]
		pc := fr.PC - 1
		if pc < 0 {
			pc = 0
		}
		sites = append(sites, Site{FuncID: fr.FuncID, PC: pc})
	}
	return sites
}

// clear drops execution state once the fiber is terminal.
func (f *Fiber) clear() {
	f.stack = nil
	f.frames = nil
	f.handlers = nil
	f.awaiting = 0
}
