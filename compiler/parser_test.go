package compiler

import (
	"fmt"
	"strings"
	"testing"
)

// sexpr renders e compactly so tree shapes can be compared as strings.
func sexpr(e Expr) string {
	switch n := e.(type) {
	case *Literal:
		return n.Value.String()
	case *Variable:
		return "$" + n.Name
	case *BinaryOp:
		return fmt.Sprintf("(%s %s %s)", n.Op, sexpr(n.Left), sexpr(n.Right))
	case *UnaryOp:
		return fmt.Sprintf("(%s %s)", n.Op, sexpr(n.Operand))
	case *FieldAccess:
		return sexpr(n.Object) + "." + n.Field
	case *Assignment:
		return fmt.Sprintf("(= %s %s)", sexpr(n.Target), sexpr(n.Value))
	case *Parameter:
		return fmt.Sprintf("%s:%s", n.Tile.ID, sexpr(n.Value))
	case *Modifier:
		return fmt.Sprintf("%s*%d", n.Tile.ID, n.Count)
	case *Actuator:
		return call(n.Tile.ID, n.Args)
	case *Sensor:
		return call(n.Tile.ID, n.Args)
	case *Empty:
		return "<empty>"
	case *Error:
		return "<error>"
	}
	return fmt.Sprintf("<%T>", e)
}

func call(id string, args []SlotArg) string {
	parts := []string{id}
	for _, a := range args {
		parts = append(parts, fmt.Sprintf("%d=%s", a.Slot, sexpr(a.Value)))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func TestParserExpressions(t *testing.T) {
	fx := newFixture(t)
	tests := []struct {
		input string
		want  string
	}{
		{"", "<empty>"},
		{"1 + 2 * 3", "(add 1 (mul 2 3))"},
		{"(1 + 2) * 3", "(mul (add 1 2) 3)"},
		{"1 - 2 - 3", "(sub (sub 1 2) 3)"},
		{"-1 + 2", "(add (neg 1) 2)"},
		{"!true && false", "(and (not true) false)"},
		{"1 < 2 || 3 >= 4 && 5 != 6", "(or (lt 1 2) (and (ge 3 4) (ne 5 6)))"},
		{"$a == $b", "(eq $a $b)"},
		{"$a = $b = 3", "(= $a (= $b 3))"},
		{"$p.x = 1 + 1", "(= $p.x (add 1 1))"},
		{`"a" + "b"`, `(add "a" "b")`},
		{"nil", "nil"},
		{"origin.x", "[origin].x"},
		{"distance > 3", "(gt [distance] 3)"},
	}
	for _, tt := range tests {
		e, diags := ParseRow(tt.input, fx.catalog)
		if diags.HasErrors() {
			t.Errorf("%q: unexpected diagnostics:\n%s", tt.input, diags)
			continue
		}
		if got := sexpr(e); got != tt.want {
			t.Errorf("%q:\n got  %s\n want %s", tt.input, got, tt.want)
		}
	}
}

func TestParserCallSites(t *testing.T) {
	fx := newFixture(t)
	// move: 0 anon number, 1 left, 2 right, 3 speed, 4 quickly
	tests := []struct {
		input string
		want  string
	}{
		{"move", "[move]"},
		{"move 5", "[move 0=5]"},
		{"move left", "[move 1=left*1]"},
		{"move right speed 2", "[move 2=right*1 3=speed:2]"},
		{"move quickly quickly", "[move 4=quickly*2]"},
		{"move quickly speed 3 quickly 1", "[move 0=1 3=speed:3 4=quickly*2]"},
		{"move distance", "[move 0=[distance]]"},
		{"move $x", "[move 0=$x]"},
		{"move (1 + 2)", "[move 0=(add 1 2)]"},
		{"move speed -1", "[move 3=speed:(neg 1)]"},
		{"move -3", "[move 0=(neg 3)]"},
		{"move -3 left", "[move 0=(neg 3) 1=left*1]"},
		{"distance - 1", "(sub [distance] 1)"},
	}
	for _, tt := range tests {
		e, diags := ParseRow(tt.input, fx.catalog)
		if diags.HasErrors() {
			t.Errorf("%q: unexpected diagnostics:\n%s", tt.input, diags)
			continue
		}
		if got := sexpr(e); got != tt.want {
			t.Errorf("%q:\n got  %s\n want %s", tt.input, got, tt.want)
		}
	}
}

func TestParserDiagnostics(t *testing.T) {
	fx := newFixture(t)
	tests := []struct {
		input string
		code  DiagCode
	}{
		{"jump", MissingTile},
		{"1 +", ParseError},
		{"(1", ParseError},
		{"1 2", ParseError},
		{"3 = 4", ParseError},
		{"move left right", ParseError},
		{`"open`, ParseError},
	}
	for _, tt := range tests {
		_, diags := ParseRow(tt.input, fx.catalog)
		if len(diags.WithCode(tt.code)) == 0 {
			t.Errorf("%q: no %s diagnostic (got %v)", tt.input, tt.code, diags)
		}
	}
}

func TestParserUnknownTileBecomesErrorNode(t *testing.T) {
	fx := newFixture(t)
	e, _ := ParseRow("jump + 1", fx.catalog)
	b, ok := e.(*BinaryOp)
	if !ok {
		t.Fatalf("got %T, want *BinaryOp", e)
	}
	if _, ok := b.Left.(*Error); !ok {
		t.Errorf("left operand is %T, want *Error", b.Left)
	}
}

func TestParserNodeIDsAreUnique(t *testing.T) {
	fx := newFixture(t)
	ids := &NodeIDs{}
	var diags Diagnostics
	seen := map[NodeID]bool{}
	for _, row := range []string{"move left speed 1 + 2", "$a = distance * 2"} {
		e := NewParser(row, fx.catalog, ids, &diags, "").Parse()
		Walk(e, func(n Expr) {
			if seen[n.ID()] {
				t.Errorf("node id %d reused", n.ID())
			}
			seen[n.ID()] = true
		})
	}
}
