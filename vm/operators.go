package vm

import (
	"fmt"
	"strings"
	"sync"
)

// OpID names an operator independently of its operand types.
type OpID string

const (
	OpAdd OpID = "add"
	OpSub OpID = "sub"
	OpMul OpID = "mul"
	OpDiv OpID = "div"
	OpMod OpID = "mod"
	OpNeg OpID = "neg"
	OpNot OpID = "not"
	OpEq  OpID = "eq"
	OpNe  OpID = "ne"
	OpLt  OpID = "lt"
	OpLe  OpID = "le"
	OpGt  OpID = "gt"
	OpGe  OpID = "ge"

	// Short-circuit operators are compiled to jumps and never resolved
	// through the operator table.
	OpAnd OpID = "and"
	OpOr  OpID = "or"
)

// OpOverload binds an operator applied to specific operand types to the
// host function that implements it.
type OpOverload struct {
	Op     OpID
	Args   []TypeID
	Result TypeID
	Fn     int
	Async  bool
}

func (o *OpOverload) String() string {
	args := make([]string, len(o.Args))
	for i, a := range o.Args {
		args[i] = string(a)
	}
	return fmt.Sprintf("%s(%s) -> %s", o.Op, strings.Join(args, ", "), o.Result)
}

// OperatorTable maps (OpID, operand types) to overloads.
type OperatorTable struct {
	mu        sync.RWMutex
	overloads map[OpID][]*OpOverload
	sealed    bool
}

// NewOperatorTable returns an empty table.
func NewOperatorTable() *OperatorTable {
	return &OperatorTable{overloads: make(map[OpID][]*OpOverload)}
}

// Add registers an overload. A second overload with identical operand
// types for the same operator is rejected.
func (t *OperatorTable) Add(o OpOverload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return fmt.Errorf("operators: table sealed, cannot add %s", o.Op)
	}
	for _, existing := range t.overloads[o.Op] {
		if sameTypes(existing.Args, o.Args) {
			return fmt.Errorf("operators: duplicate overload %s", existing)
		}
	}
	entry := o
	entry.Args = append([]TypeID(nil), o.Args...)
	t.overloads[o.Op] = append(t.overloads[o.Op], &entry)
	return nil
}

// Resolve returns the overload whose operand types match exactly.
func (t *OperatorTable) Resolve(op OpID, args []TypeID) (*OpOverload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, o := range t.overloads[op] {
		if sameTypes(o.Args, args) {
			return o, true
		}
	}
	return nil, false
}

// Overloads returns every overload of op with the given arity, in
// registration order.
func (t *OperatorTable) Overloads(op OpID, arity int) []*OpOverload {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*OpOverload
	for _, o := range t.overloads[op] {
		if len(o.Args) == arity {
			out = append(out, o)
		}
	}
	return out
}

func (t *OperatorTable) seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

func sameTypes(a, b []TypeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
