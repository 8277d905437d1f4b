package vm

import (
	"testing"
)

// testHost is a flat global scope with a manual clock.
type testHost struct {
	vars   map[int]Value
	states map[int]any
	clock  Clock
	pages  []string
}

func newTestHost() *testHost {
	return &testHost{vars: make(map[int]Value), states: make(map[int]any)}
}

func (h *testHost) Load(_, varID int) Value {
	if v, ok := h.vars[varID]; ok {
		return v
	}
	return Nil
}

func (h *testHost) Store(_, varID int, v Value) { h.vars[varID] = v }
func (h *testHost) Clear(_, varID int)          { delete(h.vars, varID) }
func (h *testHost) CallSiteStates() map[int]any { return h.states }
func (h *testHost) Clock() Clock                { return h.clock }

func (h *testHost) RequestPage(key string) error {
	h.pages = append(h.pages, key)
	return nil
}

// program builds a single-page program whose functions are code.
func program(consts []Value, vars []string, code ...[]Instr) *BrainProgram {
	p := &BrainProgram{
		Version:       ProgramVersion,
		Constants:     consts,
		VariableNames: vars,
		RuleIndex:     map[string]int{},
		Pages:         []PageMetadata{{Index: 0, ID: "main", Name: "main"}},
	}
	for i, c := range code {
		p.Functions = append(p.Functions, FunctionBytecode{Name: "fn", Code: c})
		p.Rules = append(p.Rules, RuleMetadata{FuncID: i, Parent: -1})
	}
	p.Pages[0].RootRules = []int{0}
	return p
}

// runOnce spawns fn0 on a fresh scheduler and runs it to its first stop.
func runOnce(t *testing.T, p *BrainProgram, svc *Services, limits Limits) (*Fiber, RunStatus, *testHost) {
	t.Helper()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	host := newTestHost()
	s := NewScheduler(p, svc, host, limits)
	f, err := s.Spawn(0)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	status := s.interp.Run(f, 0)
	return f, status, host
}

func coreServices(t *testing.T, extra ...HostFunction) (*Services, []int) {
	t.Helper()
	svc := NewCoreServices()
	var ids []int
	for _, fn := range extra {
		id, err := svc.Functions.Register(fn)
		if err != nil {
			t.Fatalf("Register(%s): %v", fn.Name, err)
		}
		ids = append(ids, id)
	}
	return svc.Seal(), ids
}
