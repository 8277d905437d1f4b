package compiler

import (
	"github.com/chazu/brain/vm"
)

// VarTypes resolves the declared type of a variable visible to a rule.
type VarTypes func(name string) (vm.TypeID, bool)

// Infer runs both type passes over e, filling env and appending to diags.
//
// Pass 1 walks top-down and records the type each node is expected to
// have. Pass 2 walks bottom-up, infers each node's type, resolves operator
// overloads and records an implicit conversion wherever the inferred type
// differs from the expected one.
func Infer(e Expr, env *TypeEnv, svc *vm.Services, vars VarTypes, diags *Diagnostics, rule string) {
	if vars == nil {
		vars = func(string) (vm.TypeID, bool) { return "", false }
	}
	in := &inferer{env: env, svc: svc, vars: vars, diags: diagSink{list: diags, rule: rule}}
	in.expect(e, vm.TypeUnknown)
	in.infer(e)
}

type inferer struct {
	env   *TypeEnv
	svc   *vm.Services
	vars  VarTypes
	diags diagSink
}

// ---------------------------------------------------------------------------
// Pass 1: expected types
// ---------------------------------------------------------------------------

func (in *inferer) expect(e Expr, t vm.TypeID) {
	info := in.env.Get(e.ID())
	if t != "" && t != vm.TypeUnknown {
		info.Expected = t
	}

	switch n := e.(type) {
	case *Assignment:
		target := in.declaredType(n.Target)
		in.expect(n.Target, target)
		in.env.Get(n.Target.ID()).IsLVal = true
		in.expect(n.Value, target)

	case *Parameter:
		info.Expected = n.Tile.Value
		if n.Value != nil {
			in.expect(n.Value, n.Tile.Value)
		}

	case *Modifier:
		info.Expected = vm.TypeNumber

	case *Actuator:
		info.Expected = vm.TypeVoid
		in.expectArgs(n.Tile, n.Args)

	case *Sensor:
		info.Expected = n.Tile.Output
		in.expectArgs(n.Tile, n.Args)

	default:
		for _, c := range Children(e) {
			in.expect(c, vm.TypeUnknown)
		}
	}
}

func (in *inferer) expectArgs(tile *Tile, args []SlotArg) {
	for _, a := range args {
		slot := tile.Spec.Slots[a.Slot]
		switch slot.Arg.Kind {
		case ArgAnonymous:
			in.expect(a.Value, slot.Arg.Type)
		default:
			// Parameter and Modifier nodes set their own expectation.
			in.expect(a.Value, vm.TypeUnknown)
		}
	}
}

// declaredType returns the statically known type of an assignment target.
func (in *inferer) declaredType(target Expr) vm.TypeID {
	switch n := target.(type) {
	case *Variable:
		if t, ok := in.vars(n.Name); ok {
			return t
		}
	case *FieldAccess:
		if v, ok := n.Object.(*Variable); ok {
			if t, ok := in.vars(v.Name); ok {
				if def, ok := in.svc.Types.Get(t); ok && def.Kind == vm.KindStruct {
					if f, ok := def.Field(n.Field); ok {
						return f.Type
					}
				}
			}
		}
	}
	return vm.TypeUnknown
}

// ---------------------------------------------------------------------------
// Pass 2: inferred types
// ---------------------------------------------------------------------------

func (in *inferer) infer(e Expr) vm.TypeID {
	info := in.env.Get(e.ID())
	t := vm.TypeUnknown

	switch n := e.(type) {
	case *Literal:
		t = n.Value.Type()

	case *Variable:
		if vt, ok := in.vars(n.Name); ok {
			t = vt
		} else {
			in.diags.warnf(UnknownVariable, n, "variable $%s is not declared", n.Name)
		}

	case *FieldAccess:
		t = in.fieldType(n, in.infer(n.Object))

	case *Assignment:
		target := in.infer(n.Target)
		value := in.infer(n.Value)
		t = target
		if t == vm.TypeUnknown {
			t = value
		}
		// Call nodes keep their own expected type, so the conversion to
		// the target type is recorded on the assignment itself.
		vi := in.env.Get(n.Value.ID())
		if vi.Expected != target && vi.Conversion == nil {
			info.Conversion = in.conversion(n, value, target)
		}

	case *BinaryOp:
		left := in.infer(n.Left)
		right := in.infer(n.Right)
		if n.Op == vm.OpAnd || n.Op == vm.OpOr {
			if left == right {
				t = left
			}
			break
		}
		t = in.resolve(n, n.Op, []Expr{n.Left, n.Right}, []vm.TypeID{left, right})

	case *UnaryOp:
		operand := in.infer(n.Operand)
		t = in.resolve(n, n.Op, []Expr{n.Operand}, []vm.TypeID{operand})

	case *Parameter:
		if n.Value != nil {
			in.infer(n.Value)
		}
		t = n.Tile.Value

	case *Modifier:
		t = vm.TypeNumber

	case *Actuator:
		for _, a := range n.Args {
			in.infer(a.Value)
		}
		t = vm.TypeVoid

	case *Sensor:
		for _, a := range n.Args {
			in.infer(a.Value)
		}
		t = n.Tile.Output

	case *Empty:
		t = vm.TypeVoid

	case *Error:
		t = vm.TypeUnknown
	}

	info.Inferred = t
	if info.Conversion == nil {
		if _, isAssign := e.(*Assignment); !isAssign {
			info.Conversion = in.conversion(e, t, info.Expected)
		}
	}
	return t
}

// conversion returns the conversion path from -> to, or nil when none is
// needed. A missing path is reported as a type mismatch.
func (in *inferer) conversion(e Expr, from, to vm.TypeID) []vm.Conversion {
	if to == "" || to == vm.TypeUnknown || to == vm.TypeVoid ||
		from == vm.TypeUnknown || from == vm.TypeNil || from == to {
		return nil
	}
	path, _, ok := in.svc.Conversions.BestPath(from, to)
	if !ok {
		in.diags.errorf(TypeMismatch, e, "cannot convert %s to %s", from, to)
		return nil
	}
	return path
}

func (in *inferer) fieldType(n *FieldAccess, object vm.TypeID) vm.TypeID {
	if object == vm.TypeUnknown {
		return vm.TypeUnknown
	}
	def, ok := in.svc.Types.Get(object)
	if !ok {
		return vm.TypeUnknown
	}
	switch def.Kind {
	case vm.KindStruct:
		if f, ok := def.Field(n.Field); ok {
			return f.Type
		}
		if def.Hooks != nil && def.Hooks.Get != nil {
			// Native-backed structs may expose undeclared fields.
			return vm.TypeUnknown
		}
	case vm.KindMap:
		if def.Elem != "" {
			return def.Elem
		}
		return vm.TypeUnknown
	}
	in.diags.errorf(UnknownField, n, "%s has no field %q", object, n.Field)
	return vm.TypeUnknown
}

// resolve picks the overload for op. Exact matches win; otherwise the
// overload reachable with the cheapest implicit conversions is used.
// Unknown operands match any parameter type.
func (in *inferer) resolve(n Expr, op vm.OpID, operands []Expr, types []vm.TypeID) vm.TypeID {
	info := in.env.Get(n.ID())

	var (
		best          *vm.OpOverload
		bestPaths     [][]vm.Conversion
		bestCost      = -1
		bestWildcards int
	)
	for _, o := range in.svc.Operators.Overloads(op, len(types)) {
		cost, wildcards := 0, 0
		paths := make([][]vm.Conversion, len(types))
		ok := true
		for i, at := range types {
			switch {
			case at == vm.TypeUnknown:
				wildcards++
			case at == o.Args[i]:
			default:
				path, c, found := in.svc.Conversions.BestPath(at, o.Args[i])
				if !found {
					ok = false
				}
				cost += c
				paths[i] = path
			}
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}
		if bestCost < 0 || cost < bestCost || (cost == bestCost && wildcards < bestWildcards) {
			best, bestPaths, bestCost, bestWildcards = o, paths, cost, wildcards
		}
	}

	if best == nil {
		in.diags.errorf(MissingOperatorOverload, n, "no overload of %s for %v", op, types)
		return vm.TypeUnknown
	}

	info.Overload = best
	for i, path := range bestPaths {
		if path == nil {
			continue
		}
		oi := in.env.Get(operands[i].ID())
		oi.Expected = best.Args[i]
		oi.Conversion = path
	}
	return best.Result
}
