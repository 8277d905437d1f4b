package compiler

import (
	"github.com/chazu/brain/vm"
)

// ---------------------------------------------------------------------------
// Codegen: typed expression trees to bytecode
// ---------------------------------------------------------------------------

// siteAllocator hands out program-wide call-site ids, starting at 1.
type siteAllocator struct {
	next int
}

func (s *siteAllocator) alloc() int {
	s.next++
	return s.next
}

// codegen compiles the expressions of one rule function.
type codegen struct {
	em    *Emitter
	pool  *ConstantPool
	types *TypeEnv
	vars  func(name string) int
	sites *siteAllocator
	page  *vm.PageMetadata
	diags diagSink
	err   error
}

func (g *codegen) emit(op vm.Opcode, a, b, c int) {
	if _, err := g.em.Emit(op, a, b, c); err != nil && g.err == nil {
		g.err = err
	}
}

func (g *codegen) jump(op vm.Opcode, l Label) {
	if _, err := g.em.EmitJump(op, l, vm.FieldA); err != nil && g.err == nil {
		g.err = err
	}
}

func (g *codegen) mark(l Label) {
	if err := g.em.Mark(l); err != nil && g.err == nil {
		g.err = err
	}
}

func (g *codegen) pushConst(v vm.Value) {
	g.emit(vm.OpPushConst, g.pool.Add(v), 0, 0)
}

// expr compiles e, leaving exactly one value on the operand stack.
func (g *codegen) expr(e Expr) {
	info, ok := g.types.Lookup(e.ID())
	if !ok {
		g.diags.errorf(MissingTypeInfo, e, "no type information for node %d", e.ID())
		g.pushConst(vm.Nil)
		return
	}

	switch n := e.(type) {
	case *Literal:
		g.pushConst(n.Value)

	case *Variable:
		g.emit(vm.OpLoadVar, g.vars(n.Name), 0, 0)

	case *FieldAccess:
		g.expr(n.Object)
		g.pushConst(vm.String(n.Field))
		g.emit(vm.OpGetField, 0, 0, 0)

	case *Assignment:
		g.assign(n, info)
		return

	case *BinaryOp:
		if n.Op == vm.OpAnd || n.Op == vm.OpOr {
			g.shortCircuit(n)
			break
		}
		if info.Overload == nil {
			g.pushConst(vm.Nil)
			break
		}
		g.expr(n.Left)
		g.expr(n.Right)
		g.callOverload(info.Overload, 2)

	case *UnaryOp:
		if info.Overload == nil {
			g.pushConst(vm.Nil)
			break
		}
		g.expr(n.Operand)
		g.callOverload(info.Overload, 1)

	case *Parameter:
		if n.Value == nil {
			g.pushConst(vm.Nil)
			break
		}
		g.expr(n.Value)

	case *Modifier:
		g.pushConst(vm.Int(n.Count))

	case *Actuator:
		g.call(n.Tile, n.Args)

	case *Sensor:
		g.call(n.Tile, n.Args)

	case *Empty:
		g.pushConst(vm.Void)

	default:
		g.pushConst(vm.Nil)
	}

	g.convert(info.Conversion)
}

// convert applies a conversion path to the value on top of the stack.
func (g *codegen) convert(path []vm.Conversion) {
	for _, c := range path {
		g.emit(vm.OpHostCall, c.Fn, 1, 0)
	}
}

func (g *codegen) assign(n *Assignment, info *TypeInfo) {
	switch t := n.Target.(type) {
	case *Variable:
		g.expr(n.Value)
		g.convert(info.Conversion)
		g.emit(vm.OpDup, 0, 0, 0)
		g.emit(vm.OpStoreVar, g.vars(t.Name), 0, 0)

	case *FieldAccess:
		g.expr(t.Object)
		g.pushConst(vm.String(t.Field))
		g.expr(n.Value)
		g.convert(info.Conversion)
		g.emit(vm.OpSetField, 0, 0, 0)

	default:
		g.pushConst(vm.Nil)
	}
}

// shortCircuit compiles `a and b` / `a or b`. The left value is kept when
// it decides the result.
func (g *codegen) shortCircuit(n *BinaryOp) {
	end := g.em.Label()
	g.expr(n.Left)
	g.emit(vm.OpDup, 0, 0, 0)
	if n.Op == vm.OpAnd {
		g.jump(vm.OpJumpIfFalse, end)
	} else {
		g.jump(vm.OpJumpIfTrue, end)
	}
	g.emit(vm.OpPop, 0, 0, 0)
	g.expr(n.Right)
	g.mark(end)
}

func (g *codegen) callOverload(o *vm.OpOverload, arity int) {
	if o.Async {
		g.emit(vm.OpHostCallAsync, o.Fn, arity, 0)
		g.emit(vm.OpAwait, 0, 0, 0)
		return
	}
	g.emit(vm.OpHostCall, o.Fn, arity, 0)
}

// call builds the slot-keyed args map of a tile call site and invokes the
// tile's host function with a fresh call-site id.
func (g *codegen) call(tile *Tile, args []SlotArg) {
	g.emit(vm.OpMapNew, g.pool.Add(vm.String(string(vm.TypeArgs))), 0, 0)
	for _, a := range args {
		g.pushConst(vm.Int(a.Slot))
		g.expr(a.Value)
		g.emit(vm.OpMapSet, 0, 0, 0)
	}

	site := g.sites.alloc()
	if g.page != nil {
		g.page.HostCallSites = append(g.page.HostCallSites, vm.HostCallSite{FnID: tile.FnID, CallSiteID: site})
	}
	if tile.Async {
		g.emit(vm.OpHostCallArgsAsync, tile.FnID, 0, site)
		g.emit(vm.OpAwait, 0, 0, 0)
		return
	}
	g.emit(vm.OpHostCallArgs, tile.FnID, 0, site)
}

// rule compiles one rule function:
//
//	WHEN_START; <when>; WHEN_END skip; DO_START; <do>; DO_END;
//	(CALL child 0; POP)...; skip: RET
func (g *codegen) rule(when, do Expr, children []int, isolate bool) {
	skip := g.em.Label()

	g.emit(vm.OpWhenStart, 0, 0, 0)
	if _, empty := when.(*Empty); empty {
		g.pushConst(vm.True)
	} else {
		g.expr(when)
	}
	g.jump(vm.OpWhenEnd, skip)

	g.emit(vm.OpDoStart, 0, 0, 0)
	g.expr(do)
	g.emit(vm.OpDoEnd, 0, 0, 0)

	for _, child := range children {
		if !isolate {
			g.emit(vm.OpCall, child, 0, 0)
			g.emit(vm.OpPop, 0, 0, 0)
			continue
		}
		next := g.em.Label()
		g.jump(vm.OpTry, next)
		g.emit(vm.OpCall, child, 0, 0)
		g.emit(vm.OpPop, 0, 0, 0)
		g.emit(vm.OpEndTry, 0, 0, 0)
		g.mark(next)
	}

	g.mark(skip)
	g.emit(vm.OpRet, 0, 0, 0)
}
