package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// String Primitives
// ---------------------------------------------------------------------------

func stringsOf(args Value) (string, string, error) {
	a, ok1 := ArgAt(args, 0).AsString()
	b, ok2 := ArgAt(args, 1).AsString()
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("expected two strings, got %v and %v", ArgAt(args, 0), ArgAt(args, 1))
	}
	return a, b, nil
}

func registerStringPrimitives(s *Services) {
	ss := []TypeID{TypeString, TypeString}

	// Concatenation
	registerOperator(s, OpAdd, ss, TypeString, func(_ *ExecutionContext, args Value) (Value, error) {
		a, b, err := stringsOf(args)
		if err != nil {
			return Nil, err
		}
		return String(a + b), nil
	})

	registerOperator(s, OpEq, ss, TypeBoolean, func(_ *ExecutionContext, args Value) (Value, error) {
		a, b, err := stringsOf(args)
		if err != nil {
			return Nil, err
		}
		return Bool(a == b), nil
	})

	registerOperator(s, OpNe, ss, TypeBoolean, func(_ *ExecutionContext, args Value) (Value, error) {
		a, b, err := stringsOf(args)
		if err != nil {
			return Nil, err
		}
		return Bool(a != b), nil
	})

	registerOperator(s, OpLt, ss, TypeBoolean, func(_ *ExecutionContext, args Value) (Value, error) {
		a, b, err := stringsOf(args)
		if err != nil {
			return Nil, err
		}
		return Bool(a < b), nil
	})
}
