package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// RunStatus
// ---------------------------------------------------------------------------

// RunStatus reports why Interpreter.Run returned.
type RunStatus uint8

const (
	RunDone    RunStatus = iota // outermost frame returned
	RunYielded                  // YIELD; resume next tick
	RunWaiting                  // parked on a pending handle
	RunFault                    // uncaught error
	RunBudget                   // instruction budget exhausted; resume next tick
)

func (s RunStatus) String() string {
	switch s {
	case RunDone:
		return "done"
	case RunYielded:
		return "yielded"
	case RunWaiting:
		return "waiting"
	case RunFault:
		return "fault"
	case RunBudget:
		return "budget"
	}
	return fmt.Sprintf("RunStatus(%d)", s)
}

// ---------------------------------------------------------------------------
// Interpreter: Bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes the functions of one BrainProgram. It holds no
// per-fiber state; all execution state lives in the Fiber it is given.
type Interpreter struct {
	prog    *BrainProgram
	svc     *Services
	limits  Limits
	handles *HandleTable
}

// NewInterpreter creates an interpreter for prog.
func NewInterpreter(prog *BrainProgram, svc *Services, limits Limits, handles *HandleTable) *Interpreter {
	return &Interpreter{
		prog:    prog,
		svc:     svc,
		limits:  limits.withDefaults(),
		handles: handles,
	}
}

// Program returns the program being executed.
func (it *Interpreter) Program() *BrainProgram { return it.prog }

// Run executes f until it returns, yields, suspends, faults, or has
// executed budget instructions.
func (it *Interpreter) Run(f *Fiber, budget int) RunStatus {
	if f.State.Terminal() {
		return RunDone
	}
	if budget <= 0 {
		budget = it.limits.InstrBudget
	}
	f.State = FiberRunnable

	for {
		if len(f.frames) == 0 {
			f.State = FiberDone
			return RunDone
		}
		fr := f.frame()
		code := it.prog.Functions[fr.FuncID].Code

		// Falling off the end of a function is an implicit RET.
		if fr.PC >= len(code) {
			if it.ret(f) {
				return RunDone
			}
			continue
		}

		if budget == 0 {
			return RunBudget
		}
		budget--

		pc := fr.PC
		in := code[pc]
		fr.PC = pc + 1

		if err := it.checkStack(f, in); err != nil {
			if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
				return RunFault
			}
			continue
		}

		switch in.Op {

		// --- Stack ---

		case OpNOP, OpWhenStart, OpDoStart:

		case OpPushConst:
			c := it.prog.Constants[in.A]
			if !c.kind.IsPrimitive() {
				c = c.DeepCopy()
			}
			f.push(c)

		case OpPop, OpDoEnd:
			f.pop()

		case OpDup:
			f.push(f.top())

		// --- Variables ---

		case OpLoadVar:
			f.push(f.ctx.host.Load(fr.FuncID, int(in.A)))

		case OpStoreVar:
			f.ctx.host.Store(fr.FuncID, int(in.A), f.pop())

		// --- Control flow ---

		case OpJump:
			fr.PC = pc + int(in.A)

		case OpJumpIfFalse, OpWhenEnd:
			if !f.pop().Truthy() {
				fr.PC = pc + int(in.A)
			}

		case OpJumpIfTrue:
			if f.pop().Truthy() {
				fr.PC = pc + int(in.A)
			}

		case OpCall:
			if len(f.frames) >= it.limits.MaxFrameDepth {
				err := NewError(ErrStackOverflow, "call depth exceeds %d frames", it.limits.MaxFrameDepth)
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
				continue
			}
			for i := 0; i < int(in.B); i++ {
				f.pop()
			}
			f.frames = append(f.frames, Frame{FuncID: int(in.A), Base: len(f.stack)})

		case OpRet:
			if it.ret(f) {
				return RunDone
			}

		case OpYield:
			return RunYielded

		// --- Host calls ---

		case OpHostCall, OpHostCallArgs:
			var args Value
			if in.Op == OpHostCall {
				args = it.popRaw(f, int(in.B))
			} else {
				args = f.pop()
			}
			result, err := it.callSync(f, int(in.A), int(in.C), fr.FuncID, args)
			if err != nil {
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
				continue
			}
			f.push(result)

		case OpHostCallAsync, OpHostCallArgsAsync:
			var args Value
			if in.Op == OpHostCallAsync {
				args = it.popRaw(f, int(in.B))
			} else {
				args = f.pop()
			}
			id, err := it.callAsync(f, int(in.A), int(in.C), fr.FuncID, args)
			if err != nil {
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
				continue
			}
			f.push(HandleValue(id))

		case OpAwait:
			v := f.top()
			if !v.IsHandle() {
				// Awaiting a plain value yields the value itself.
				continue
			}
			h, ok := it.handles.Get(v.Handle())
			if !ok {
				f.pop()
				err := NewError(ErrScript, "await on released handle %d", v.Handle())
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
				continue
			}
			if !h.Done() {
				// Re-execute AWAIT once the handle completes.
				fr.PC = pc
				f.awaiting = h.ID
				f.State = FiberWaiting
				h.addWaiter(f.ID)
				return RunWaiting
			}
			f.pop()
			it.handles.consume(h, f.ID)
			if h.State == HandleResolved {
				f.push(h.Result)
				continue
			}
			if !it.throw(f, h.Err, Site{FuncID: fr.FuncID, PC: pc}) {
				return RunFault
			}

		// --- Exceptions ---

		case OpTry:
			f.pushHandler(Handler{
				CatchPC:     pc + int(in.A),
				StackHeight: len(f.stack),
				FrameDepth:  len(f.frames),
			})

		case OpEndTry:
			f.popHandler()

		case OpThrow:
			if !it.throw(f, toError(f.pop()), Site{FuncID: fr.FuncID, PC: pc}) {
				return RunFault
			}

		// --- Containers ---

		case OpMapNew:
			name, _ := it.prog.Constants[in.A].AsString()
			f.push(NewMap(TypeID(name)))

		case OpMapSet:
			val := f.pop()
			key := f.pop()
			if len(f.stack) <= fr.Base {
				err := NewError(ErrStackUnderflow, "MAP_SET without a map")
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
				continue
			}
			m := f.top().Map()
			if m == nil || !m.Set(key, val) {
				err := NewError(ErrScript, "cannot set key %v on %v", key, f.top())
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
			}

		case OpGetField:
			name := f.pop()
			obj := f.pop()
			v, err := it.getField(obj, name)
			if err != nil {
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
				continue
			}
			f.push(v)

		case OpSetField:
			val := f.pop()
			name := f.pop()
			obj := f.pop()
			if err := it.setField(obj, name, val); err != nil {
				if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
					return RunFault
				}
				continue
			}
			f.push(val)

		default:
			err := NewError(ErrScript, "unknown opcode 0x%02X", byte(in.Op))
			if !it.throw(f, err, Site{FuncID: fr.FuncID, PC: pc}) {
				return RunFault
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// checkStack enforces the stack ceilings before in executes.
func (it *Interpreter) checkStack(f *Fiber, in Instr) *ErrorValue {
	pops := in.Pops()
	avail := len(f.stack) - f.frame().Base
	if pops > avail {
		return NewError(ErrStackUnderflow, "%s needs %d operands, frame has %d", in.Op, pops, avail)
	}
	pushes := in.Op.Info().Pushes
	if len(f.stack)-pops+pushes > it.limits.MaxStackSize {
		return NewError(ErrStackOverflow, "operand stack exceeds %d slots", it.limits.MaxStackSize)
	}
	return nil
}

// ret pops the current frame, handing its result to the caller. It
// reports whether the outermost frame returned.
func (it *Interpreter) ret(f *Fiber) bool {
	fr := f.frame()
	result := Void
	if len(f.stack) > fr.Base {
		result = f.top()
	}
	for i := fr.Base; i < len(f.stack); i++ {
		f.stack[i] = Value{}
	}
	f.stack = f.stack[:fr.Base]
	f.frames = f.frames[:len(f.frames)-1]

	// Drop TRY regions left open by the returning frame.
	for len(f.handlers) > 0 && f.handlers[len(f.handlers)-1].FrameDepth > len(f.frames) {
		f.handlers = f.handlers[:len(f.handlers)-1]
	}

	if len(f.frames) == 0 {
		f.Result = result
		f.State = FiberDone
		return true
	}
	f.push(result)
	return false
}

// throw raises err inside f. It returns true when a handler caught it and
// false when the fiber faulted.
func (it *Interpreter) throw(f *Fiber, err *ErrorValue, site Site) bool {
	if err.Site == (Site{}) {
		err.Site = site
	}
	if err.Trace == nil {
		err.Trace = f.trace()
	}
	if f.unwind(err) {
		return true
	}
	f.Err = err
	f.State = FiberFault
	return false
}

// popRaw pops n operator operands into a position-keyed args map.
func (it *Interpreter) popRaw(f *Fiber, n int) Value {
	vals := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		vals[i] = f.pop()
	}
	return PositionalArgs(vals...)
}

func (it *Interpreter) enter(f *Fiber, funcID, callSite int) *ExecutionContext {
	ctx := f.ctx
	ctx.funcID = funcID
	ctx.callSiteID = callSite
	return ctx
}

func (it *Interpreter) callSync(f *Fiber, fnID, callSite, funcID int, args Value) (result Value, ev *ErrorValue) {
	fn, ok := it.svc.Functions.Get(fnID)
	if !ok {
		return Nil, NewError(ErrHost, "unknown host function %d", fnID)
	}
	if fn.Sync == nil {
		return Nil, NewError(ErrHost, "%s is async and cannot be called synchronously", fn.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			result, ev = Nil, NewError(ErrHost, "%s panicked: %v", fn.Name, r)
		}
	}()
	v, err := fn.Sync(it.enter(f, funcID, callSite), args)
	if err != nil {
		e := AsErrorValue(err)
		if e.Tag == ErrHost && e.Detail == "" {
			e.Detail = fn.Name
		}
		return Nil, e
	}
	return v, nil
}

func (it *Interpreter) callAsync(f *Fiber, fnID, callSite, funcID int, args Value) (id HandleID, ev *ErrorValue) {
	fn, ok := it.svc.Functions.Get(fnID)
	if !ok {
		return 0, NewError(ErrHost, "unknown host function %d", fnID)
	}
	if fn.Async == nil {
		// A sync function called through the async path resolves at once.
		v, err := it.callSync(f, fnID, callSite, funcID, args)
		if err != nil {
			return 0, err
		}
		id, cerr := it.handles.CreatePending(f.ID)
		if cerr != nil {
			return 0, AsErrorValue(cerr)
		}
		f.handles = append(f.handles, id)
		_ = it.handles.Resolve(id, v)
		return id, nil
	}

	id, err := it.handles.CreatePending(f.ID)
	if err != nil {
		return 0, AsErrorValue(err)
	}
	f.handles = append(f.handles, id)

	defer func() {
		if r := recover(); r != nil {
			_ = it.handles.Reject(id, NewError(ErrHost, "%s panicked: %v", fn.Name, r))
			ev = nil
		}
	}()
	if err := fn.Async(it.enter(f, funcID, callSite), args, id); err != nil {
		if h, ok := it.handles.Get(id); ok && !h.Done() {
			_ = it.handles.Reject(id, err)
		}
	}
	return id, nil
}

func fieldName(name Value) (string, *ErrorValue) {
	s, ok := name.AsString()
	if !ok {
		return "", NewError(ErrScript, "field name must be a string, got %v", name)
	}
	return s, nil
}

func (it *Interpreter) getField(obj, name Value) (Value, *ErrorValue) {
	field, err := fieldName(name)
	if err != nil {
		return Nil, err
	}
	switch obj.Kind() {
	case KindStruct:
		s := obj.Struct()
		if def, ok := it.svc.Types.Get(obj.Type()); ok && def.Hooks != nil && def.Hooks.Get != nil {
			if v, ok := def.Hooks.Get(s, field); ok {
				return v, nil
			}
		}
		if v, ok := s.Fields[field]; ok {
			return v, nil
		}
		return Nil, nil
	case KindMap:
		if v, ok := obj.Map().Get(String(field)); ok {
			return v, nil
		}
		return Nil, nil
	case KindNil, KindVoid, KindUnknown:
		return Nil, nil
	}
	return Nil, NewError(ErrScript, "cannot read field %q of %v", field, obj)
}

func (it *Interpreter) setField(obj, name, val Value) *ErrorValue {
	field, err := fieldName(name)
	if err != nil {
		return err
	}
	switch obj.Kind() {
	case KindStruct:
		s := obj.Struct()
		if def, ok := it.svc.Types.Get(obj.Type()); ok && def.Hooks != nil && def.Hooks.Set != nil {
			if def.Hooks.Set(s, field, val) {
				return nil
			}
		}
		s.Fields[field] = val
		return nil
	case KindMap:
		obj.Map().Set(String(field), val)
		return nil
	}
	return NewError(ErrScript, "cannot set field %q on %v", field, obj)
}
