package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Operator registration helpers
// ---------------------------------------------------------------------------

// ArgAt returns positional argument i of a raw (operator) call.
func ArgAt(args Value, i int) Value {
	m := args.Map()
	if m == nil {
		return Nil
	}
	v, ok := m.Slot(i)
	if !ok {
		return Nil
	}
	return v
}

// PositionalArgs builds the argument map of a raw call.
func PositionalArgs(vals ...Value) Value {
	args := NewMap(TypeArgs)
	for i, v := range vals {
		args.Map().Set(Int(i), v)
	}
	return args
}

func registerOperator(s *Services, op OpID, args []TypeID, result TypeID, fn SyncFunc) {
	name := fmt.Sprintf("op.%s", op)
	for _, a := range args {
		name += "." + string(a)
	}
	id := s.Functions.MustRegister(HostFunction{Name: name, Sync: fn})
	if err := s.Operators.Add(OpOverload{Op: op, Args: args, Result: result, Fn: id}); err != nil {
		panic(err)
	}
}

func registerConversion(s *Services, from, to TypeID, cost int, fn SyncFunc) {
	name := fmt.Sprintf("conv.%s.%s", from, to)
	id := s.Functions.MustRegister(HostFunction{Name: name, Sync: fn})
	if err := s.Conversions.Register(from, to, cost, id); err != nil {
		panic(err)
	}
}

func numbers(args Value) (float64, float64, error) {
	a, ok1 := ArgAt(args, 0).AsNumber()
	b, ok2 := ArgAt(args, 1).AsNumber()
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("expected two numbers, got %v and %v", ArgAt(args, 0), ArgAt(args, 1))
	}
	return a, b, nil
}

func numberOp(f func(a, b float64) Value) SyncFunc {
	return func(_ *ExecutionContext, args Value) (Value, error) {
		a, b, err := numbers(args)
		if err != nil {
			return Nil, err
		}
		return f(a, b), nil
	}
}

// ---------------------------------------------------------------------------
// Number Primitives
// ---------------------------------------------------------------------------

func registerNumberPrimitives(s *Services) {
	nn := []TypeID{TypeNumber, TypeNumber}

	// Arithmetic
	registerOperator(s, OpAdd, nn, TypeNumber, numberOp(func(a, b float64) Value { return Number(a + b) }))
	registerOperator(s, OpSub, nn, TypeNumber, numberOp(func(a, b float64) Value { return Number(a - b) }))
	registerOperator(s, OpMul, nn, TypeNumber, numberOp(func(a, b float64) Value { return Number(a * b) }))
	registerOperator(s, OpDiv, nn, TypeNumber, numberOp(func(a, b float64) Value {
		if b == 0 {
			return Nil // Division by zero
		}
		return Number(a / b)
	}))
	registerOperator(s, OpMod, nn, TypeNumber, numberOp(func(a, b float64) Value {
		if b == 0 {
			return Nil
		}
		return Number(math.Mod(a, b))
	}))

	registerOperator(s, OpNeg, []TypeID{TypeNumber}, TypeNumber, func(_ *ExecutionContext, args Value) (Value, error) {
		a, ok := ArgAt(args, 0).AsNumber()
		if !ok {
			return Nil, fmt.Errorf("expected a number, got %v", ArgAt(args, 0))
		}
		return Number(-a), nil
	})

	// Comparison
	registerOperator(s, OpEq, nn, TypeBoolean, numberOp(func(a, b float64) Value { return Bool(a == b) }))
	registerOperator(s, OpNe, nn, TypeBoolean, numberOp(func(a, b float64) Value { return Bool(a != b) }))
	registerOperator(s, OpLt, nn, TypeBoolean, numberOp(func(a, b float64) Value { return Bool(a < b) }))
	registerOperator(s, OpLe, nn, TypeBoolean, numberOp(func(a, b float64) Value { return Bool(a <= b) }))
	registerOperator(s, OpGt, nn, TypeBoolean, numberOp(func(a, b float64) Value { return Bool(a > b) }))
	registerOperator(s, OpGe, nn, TypeBoolean, numberOp(func(a, b float64) Value { return Bool(a >= b) }))

	// Conversions
	registerConversion(s, TypeNumber, TypeString, 1, func(_ *ExecutionContext, args Value) (Value, error) {
		a, ok := ArgAt(args, 0).AsNumber()
		if !ok {
			return Nil, fmt.Errorf("expected a number, got %v", ArgAt(args, 0))
		}
		return String(strconv.FormatFloat(a, 'g', -1, 64)), nil
	})
}
