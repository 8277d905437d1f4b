package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Boolean Primitives
// ---------------------------------------------------------------------------

func booleans(args Value) (bool, bool, error) {
	a, ok1 := ArgAt(args, 0).AsBool()
	b, ok2 := ArgAt(args, 1).AsBool()
	if !ok1 || !ok2 {
		return false, false, fmt.Errorf("expected two booleans, got %v and %v", ArgAt(args, 0), ArgAt(args, 1))
	}
	return a, b, nil
}

func registerBooleanPrimitives(s *Services) {
	bb := []TypeID{TypeBoolean, TypeBoolean}

	registerOperator(s, OpNot, []TypeID{TypeBoolean}, TypeBoolean, func(_ *ExecutionContext, args Value) (Value, error) {
		a, ok := ArgAt(args, 0).AsBool()
		if !ok {
			return Nil, fmt.Errorf("expected a boolean, got %v", ArgAt(args, 0))
		}
		return Bool(!a), nil
	})

	registerOperator(s, OpEq, bb, TypeBoolean, func(_ *ExecutionContext, args Value) (Value, error) {
		a, b, err := booleans(args)
		if err != nil {
			return Nil, err
		}
		return Bool(a == b), nil
	})

	registerOperator(s, OpNe, bb, TypeBoolean, func(_ *ExecutionContext, args Value) (Value, error) {
		a, b, err := booleans(args)
		if err != nil {
			return Nil, err
		}
		return Bool(a != b), nil
	})

	registerConversion(s, TypeBoolean, TypeString, 1, func(_ *ExecutionContext, args Value) (Value, error) {
		a, ok := ArgAt(args, 0).AsBool()
		if !ok {
			return Nil, fmt.Errorf("expected a boolean, got %v", ArgAt(args, 0))
		}
		return String(strconv.FormatBool(a)), nil
	})

	// true -> 1, false -> 0. Costlier than the string conversion so that
	// mixed boolean/string operands prefer string concatenation.
	registerConversion(s, TypeBoolean, TypeNumber, 2, func(_ *ExecutionContext, args Value) (Value, error) {
		a, ok := ArgAt(args, 0).AsBool()
		if !ok {
			return Nil, fmt.Errorf("expected a boolean, got %v", ArgAt(args, 0))
		}
		if a {
			return Int(1), nil
		}
		return Int(0), nil
	})
}
