package compiler

import (
	"testing"

	"github.com/chazu/brain/vm"
)

// inferRow parses and types a single row against fixed variable types.
func inferRow(t *testing.T, fx *fixture, row string, vars map[string]vm.TypeID) (Expr, *TypeEnv, Diagnostics) {
	t.Helper()
	var diags Diagnostics
	e := NewParser(row, fx.catalog, &NodeIDs{}, &diags, "0/0").Parse()
	if diags.HasErrors() {
		t.Fatalf("%q: parse diagnostics:\n%s", row, diags)
	}
	env := NewTypeEnv()
	lookup := func(name string) (vm.TypeID, bool) {
		ty, ok := vars[name]
		return ty, ok
	}
	Infer(e, env, fx.svc, lookup, &diags, "0/0")
	return e, env, diags
}

func TestInferEveryNodeHasTypeInfo(t *testing.T) {
	fx := newFixture(t)
	e, env, _ := inferRow(t, fx, "move left speed ($n + 1) quickly", map[string]vm.TypeID{"n": vm.TypeNumber})
	Walk(e, func(n Expr) {
		if _, ok := env.Lookup(n.ID()); !ok {
			t.Errorf("node %d (%T) has no type info", n.ID(), n)
		}
	})
}

func TestInferTypes(t *testing.T) {
	fx := newFixture(t)
	vars := map[string]vm.TypeID{"n": vm.TypeNumber, "s": vm.TypeString, "b": vm.TypeBoolean, "p": fx.pos}
	tests := []struct {
		row  string
		want vm.TypeID
	}{
		{"1 + 2", vm.TypeNumber},
		{"1 < 2", vm.TypeBoolean},
		{`"a" + "b"`, vm.TypeString},
		{"-$n", vm.TypeNumber},
		{"!$b", vm.TypeBoolean},
		{"$b && true", vm.TypeBoolean},
		{"$b || 1", vm.TypeUnknown},
		{"$p.x", vm.TypeNumber},
		{"origin.y * 2", vm.TypeNumber},
		{"distance", vm.TypeNumber},
		{"label", vm.TypeString},
		{"move", vm.TypeVoid},
		{"$n = 4", vm.TypeNumber},
		{"$undeclared", vm.TypeUnknown},
		{"", vm.TypeVoid},
	}
	for _, tt := range tests {
		e, env, diags := inferRow(t, fx, tt.row, vars)
		if diags.HasErrors() {
			t.Errorf("%q: diagnostics:\n%s", tt.row, diags)
			continue
		}
		if got := env.Get(e.ID()).Inferred; got != tt.want {
			t.Errorf("%q: inferred %s, want %s", tt.row, got, tt.want)
		}
	}
}

func TestInferResolvesOverloadWithConversion(t *testing.T) {
	fx := newFixture(t)
	e, env, diags := inferRow(t, fx, `"n=" + 1`, nil)
	if diags.HasErrors() {
		t.Fatalf("diagnostics:\n%s", diags)
	}
	info := env.Get(e.ID())
	if info.Overload == nil || info.Overload.Args[0] != vm.TypeString || info.Overload.Args[1] != vm.TypeString {
		t.Fatalf("overload = %v, want add(string, string)", info.Overload)
	}
	right := env.Get(e.(*BinaryOp).Right.ID())
	if right.Expected != vm.TypeString {
		t.Errorf("right operand expected %s, want string", right.Expected)
	}
	if len(right.Conversion) != 1 || right.Conversion[0].From != vm.TypeNumber || right.Conversion[0].To != vm.TypeString {
		t.Errorf("right operand conversion = %v", right.Conversion)
	}
	left := env.Get(e.(*BinaryOp).Left.ID())
	if left.Conversion != nil {
		t.Errorf("left operand needs no conversion, got %v", left.Conversion)
	}
}

func TestInferPrefersExactOverload(t *testing.T) {
	fx := newFixture(t)
	e, env, _ := inferRow(t, fx, "1 + 2", nil)
	b := e.(*BinaryOp)
	for _, op := range []Expr{b.Left, b.Right} {
		if c := env.Get(op.ID()).Conversion; c != nil {
			t.Errorf("exact match operand converted: %v", c)
		}
	}
	if o := env.Get(e.ID()).Overload; o == nil || o.Args[0] != vm.TypeNumber {
		t.Errorf("overload = %v, want add(number, number)", o)
	}
}

func TestInferAssignmentConversions(t *testing.T) {
	fx := newFixture(t)
	vars := map[string]vm.TypeID{"s": vm.TypeString}

	// A literal value carries the conversion itself.
	e, env, diags := inferRow(t, fx, "$s = 3", vars)
	if diags.HasErrors() {
		t.Fatalf("diagnostics:\n%s", diags)
	}
	val := env.Get(e.(*Assignment).Value.ID())
	if val.Expected != vm.TypeString || len(val.Conversion) != 1 {
		t.Errorf("value info = %+v, want a number->string conversion", val)
	}
	if env.Get(e.(*Assignment).Target.ID()).IsLVal != true {
		t.Errorf("target not marked as an lvalue")
	}

	// A sensor keeps its output type; the assignment converts.
	e, env, diags = inferRow(t, fx, "$s = distance", vars)
	if diags.HasErrors() {
		t.Fatalf("diagnostics:\n%s", diags)
	}
	if c := env.Get(e.ID()).Conversion; len(c) != 1 || c[0].To != vm.TypeString {
		t.Errorf("assignment conversion = %v, want number->string", c)
	}
	if c := env.Get(e.(*Assignment).Value.ID()).Conversion; c != nil {
		t.Errorf("sensor node converted: %v", c)
	}
}

func TestInferDiagnostics(t *testing.T) {
	fx := newFixture(t)
	vars := map[string]vm.TypeID{"b": vm.TypeBoolean, "p": fx.pos}
	tests := []struct {
		row  string
		code DiagCode
		sev  Severity
	}{
		{"!1", MissingOperatorOverload, SeverityError},
		{`$b = "x"`, TypeMismatch, SeverityError},
		{"$p.z", UnknownField, SeverityError},
		{"$nope + 1", UnknownVariable, SeverityWarning},
		{`move "fast"`, TypeMismatch, SeverityError},
	}
	for _, tt := range tests {
		_, _, diags := inferRow(t, fx, tt.row, vars)
		got := diags.WithCode(tt.code)
		if len(got) == 0 {
			t.Errorf("%q: no %s diagnostic (got %v)", tt.row, tt.code, diags)
			continue
		}
		if got[0].Severity != tt.sev {
			t.Errorf("%q: severity %s, want %s", tt.row, got[0].Severity, tt.sev)
		}
		if got[0].Rule != "0/0" {
			t.Errorf("%q: rule %q, want 0/0", tt.row, got[0].Rule)
		}
	}
}

func TestInferParameterValueExpectsTileType(t *testing.T) {
	fx := newFixture(t)
	e, env, diags := inferRow(t, fx, "move speed true", nil)
	if diags.HasErrors() {
		t.Fatalf("diagnostics:\n%s", diags)
	}
	param := e.(*Actuator).Args[0].Value.(*Parameter)
	val := env.Get(param.Value.ID())
	if val.Expected != vm.TypeNumber {
		t.Errorf("parameter value expected %s, want number", val.Expected)
	}
	if len(val.Conversion) != 1 || val.Conversion[0].From != vm.TypeBoolean {
		t.Errorf("parameter value conversion = %v, want boolean->number", val.Conversion)
	}
}
