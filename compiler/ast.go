package compiler

import (
	"fmt"

	"github.com/chazu/brain/vm"
)

// ---------------------------------------------------------------------------
// AST: typed expression tree of one rule row
// ---------------------------------------------------------------------------

// Position represents a location in a rule row.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// NodeID keys the side tables of a compilation. Ids come from one counter
// per compilation and are never reused.
type NodeID int

// NodeIDs allocates node ids.
type NodeIDs struct {
	next NodeID
}

// Next returns a fresh id.
func (g *NodeIDs) Next() NodeID {
	g.next++
	return g.next
}

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	ID() NodeID
	Pos() Position
	expr() // marker method
}

type exprBase struct {
	NodeID NodeID
	PosVal Position
}

func (n *exprBase) ID() NodeID    { return n.NodeID }
func (n *exprBase) Pos() Position { return n.PosVal }
func (n *exprBase) expr()         {}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// BinaryOp applies an operator to two operands.
type BinaryOp struct {
	exprBase
	Op    vm.OpID
	Left  Expr
	Right Expr
}

// UnaryOp applies an operator to one operand.
type UnaryOp struct {
	exprBase
	Op      vm.OpID
	Operand Expr
}

// Literal is a constant value.
type Literal struct {
	exprBase
	Value vm.Value
}

// Variable reads a named variable.
type Variable struct {
	exprBase
	Name string
}

// FieldAccess reads a field of a struct or map.
type FieldAccess struct {
	exprBase
	Object Expr
	Field  string
}

// Assignment stores Value into Target, which is a Variable or a
// FieldAccess, and yields the stored value.
type Assignment struct {
	exprBase
	Target Expr
	Value  Expr
}

// Parameter is a parameter tile and the value supplied for it.
type Parameter struct {
	exprBase
	Tile  *Tile
	Value Expr
}

// Modifier is a modifier tile; Count is how often it appeared.
type Modifier struct {
	exprBase
	Tile  *Tile
	Count int
}

// SlotArg binds one flattened argument slot at a call site. Value is a
// *Parameter, a *Modifier or an anonymous expression.
type SlotArg struct {
	Slot  int
	Value Expr
}

// Actuator calls an actuator tile.
type Actuator struct {
	exprBase
	Tile *Tile
	Args []SlotArg
}

// Sensor calls a sensor tile.
type Sensor struct {
	exprBase
	Tile *Tile
	Args []SlotArg
}

// Empty is an empty row.
type Empty struct {
	exprBase
}

// Error stands in for a part of the row that could not be parsed.
type Error struct {
	exprBase
	Message string
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// Children returns the direct sub-expressions of e.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *BinaryOp:
		return []Expr{n.Left, n.Right}
	case *UnaryOp:
		return []Expr{n.Operand}
	case *FieldAccess:
		return []Expr{n.Object}
	case *Assignment:
		return []Expr{n.Target, n.Value}
	case *Parameter:
		if n.Value != nil {
			return []Expr{n.Value}
		}
	case *Actuator:
		return slotValues(n.Args)
	case *Sensor:
		return slotValues(n.Args)
	}
	return nil
}

func slotValues(args []SlotArg) []Expr {
	out := make([]Expr, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

// Walk visits e and its descendants in pre-order.
func Walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}
