package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/brain/vm"
)

// fixture is a small tile vocabulary used across the compiler tests.
type fixture struct {
	svc     *vm.Services
	catalog *Catalog
	calls   []vm.Value // args maps received by "move"
	sites   []int      // call-site ids received by "move"
	pending []vm.HandleID
	pos     vm.TypeID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{svc: vm.NewCoreServices()}

	pos, err := fx.svc.Types.RegisterStruct("pos", []vm.FieldDef{
		{Name: "x", Type: vm.TypeNumber},
		{Name: "y", Type: vm.TypeNumber},
	}, nil)
	if err != nil {
		t.Fatalf("RegisterStruct: %v", err)
	}
	fx.pos = pos

	fns := []vm.HostFunction{
		{Name: "move", Sync: func(ctx *vm.ExecutionContext, args vm.Value) (vm.Value, error) {
			fx.calls = append(fx.calls, args)
			fx.sites = append(fx.sites, ctx.CallSiteID())
			return vm.Void, nil
		}},
		{Name: "distance", Sync: func(*vm.ExecutionContext, vm.Value) (vm.Value, error) {
			return vm.Number(7), nil
		}},
		{Name: "label", Sync: func(*vm.ExecutionContext, vm.Value) (vm.Value, error) {
			return vm.String("hi"), nil
		}},
		{Name: "origin", Sync: func(*vm.ExecutionContext, vm.Value) (vm.Value, error) {
			return vm.NewStruct(pos, map[string]vm.Value{"x": vm.Number(3), "y": vm.Number(4)}), nil
		}},
		{Name: "boom", Sync: func(*vm.ExecutionContext, vm.Value) (vm.Value, error) {
			return vm.Nil, errors.New("boom")
		}},
		{Name: "fetch", Async: func(_ *vm.ExecutionContext, _ vm.Value, h vm.HandleID) error {
			fx.pending = append(fx.pending, h)
			return nil
		}},
	}
	for _, fn := range fns {
		if _, err := fx.svc.Functions.Register(fn); err != nil {
			t.Fatalf("Register(%s): %v", fn.Name, err)
		}
	}
	fx.svc.Seal()

	c := NewCatalog(fx.svc)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("catalog: %v", err)
		}
	}
	must(c.AddModifier("quickly"))
	must(c.AddModifier("left"))
	must(c.AddModifier("right"))
	must(c.AddParameter("speed", vm.TypeNumber))
	must(c.AddActuator("move", "move", Seq(
		Optional(Anon(vm.TypeNumber)),
		Choice("dir", Mod("left"), Mod("right")),
		Optional(Param("speed")),
		Repeat(Mod("quickly"), 0, 0),
	)))
	must(c.AddSensor("distance", "distance", nil, vm.TypeNumber))
	must(c.AddSensor("label", "label", nil, vm.TypeString))
	must(c.AddSensor("origin", "origin", nil, pos))
	must(c.AddSensor("fetch", "fetch", nil, vm.TypeNumber))
	must(c.AddActuator("boom", "boom", nil))
	fx.catalog = c
	return fx
}

func (fx *fixture) env() *Env {
	return &Env{Services: fx.svc, Catalog: fx.catalog}
}

// testHost is a flat variable store.
type testHost struct {
	vars   map[int]vm.Value
	states map[int]any
}

func newTestHost() *testHost {
	return &testHost{vars: make(map[int]vm.Value), states: make(map[int]any)}
}

func (h *testHost) Load(_, id int) vm.Value {
	if v, ok := h.vars[id]; ok {
		return v
	}
	return vm.Nil
}
func (h *testHost) Store(_, id int, v vm.Value) { h.vars[id] = v }
func (h *testHost) Clear(_, id int)             { delete(h.vars, id) }
func (h *testHost) CallSiteStates() map[int]any { return h.states }
func (h *testHost) Clock() vm.Clock             { return vm.Clock{} }
func (h *testHost) RequestPage(string) error    { return nil }

// compileBrain compiles def and fails the test on an error or an error
// diagnostic.
func compileBrain(t *testing.T, fx *fixture, def *BrainDef) *vm.BrainProgram {
	t.Helper()
	prog, diags, err := CompileBrain(def, fx.env())
	if err != nil {
		t.Fatalf("CompileBrain: %v", err)
	}
	if diags.HasErrors() {
		t.Fatalf("diagnostics:\n%s", diags)
	}
	return prog
}

// runPage spawns every root rule of the entry page and runs one tick.
func runPage(t *testing.T, fx *fixture, prog *vm.BrainProgram) (*vm.Scheduler, *testHost, []*vm.Fiber) {
	t.Helper()
	host := newTestHost()
	s := vm.NewScheduler(prog, fx.svc, host, vm.DefaultLimits())
	var fibers []*vm.Fiber
	for _, fn := range prog.Pages[prog.EntryPoint].RootRules {
		f, err := s.Spawn(fn)
		if err != nil {
			t.Fatalf("Spawn(%d): %v", fn, err)
		}
		fibers = append(fibers, f)
	}
	s.Tick()
	return s, host, fibers
}

// oneRule wraps a single root rule into a brain definition.
func oneRule(when, do string, vars ...VarDecl) *BrainDef {
	return &BrainDef{
		Name:      "test",
		Variables: vars,
		Pages:     []PageDef{{ID: "main", Rules: []RuleDef{{When: when, Do: do}}}},
	}
}

// varValue reads a variable of prog from host by name.
func varValue(t *testing.T, prog *vm.BrainProgram, host *testHost, name string) vm.Value {
	t.Helper()
	id, ok := prog.VariableID(name)
	if !ok {
		t.Fatalf("variable %q not in program (%v)", name, prog.VariableNames)
	}
	return host.Load(0, id)
}
