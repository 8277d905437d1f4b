package brain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/brain/compiler"
	"github.com/chazu/brain/vm"
)

const tick = 500 * time.Millisecond

type kit struct {
	svc     *vm.Services
	catalog *compiler.Catalog
	notes   []vm.Value
}

func newKit(t *testing.T) *kit {
	t.Helper()
	k := &kit{svc: vm.NewCoreServices()}
	k.catalog = compiler.NewCatalog(k.svc)
	if err := InstallBuiltins(k.svc, k.catalog); err != nil {
		t.Fatalf("InstallBuiltins: %v", err)
	}
	k.svc.Functions.MustRegister(vm.HostFunction{Name: "note", Sync: func(_ *vm.ExecutionContext, args vm.Value) (vm.Value, error) {
		k.notes = append(k.notes, vm.ArgAt(args, 0))
		return vm.Void, nil
	}})
	k.svc.Functions.MustRegister(vm.HostFunction{Name: "boom", Sync: func(*vm.ExecutionContext, vm.Value) (vm.Value, error) {
		return vm.Nil, errors.New("boom")
	}})
	k.svc.Seal()
	if err := k.catalog.AddActuator("note", "note", compiler.Anon(vm.TypeUnknown)); err != nil {
		t.Fatal(err)
	}
	if err := k.catalog.AddActuator("boom", "boom", nil); err != nil {
		t.Fatal(err)
	}
	return k
}

func (k *kit) compile(t *testing.T, def *compiler.BrainDef) *vm.BrainProgram {
	t.Helper()
	prog, diags, err := compiler.CompileBrain(def, &compiler.Env{Services: k.svc, Catalog: k.catalog})
	if err != nil {
		t.Fatalf("CompileBrain: %v", err)
	}
	if diags.HasErrors() {
		t.Fatalf("diagnostics:\n%s", diags)
	}
	return prog
}

func (k *kit) brain(t *testing.T, def *compiler.BrainDef) *Brain {
	t.Helper()
	b, err := New(k.compile(t, def), k.svc, Options{Limits: vm.DefaultLimits()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func think(t *testing.T, b *Brain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.Think(tick); err != nil {
			t.Fatalf("Think: %v", err)
		}
	}
}

func wantVar(t *testing.T, b *Brain, name string, want vm.Value) {
	t.Helper()
	got, ok := b.Variable(name)
	if !ok {
		t.Fatalf("no variable %q", name)
	}
	if !vm.Equal(got, want) {
		t.Errorf("$%s = %v, want %v", name, got, want)
	}
}

func numberVar(name string) compiler.VarDecl {
	return compiler.VarDecl{Name: name, Type: vm.TypeNumber}
}

func TestNewAssignsID(t *testing.T) {
	k := newKit(t)
	def := &compiler.BrainDef{Pages: []compiler.PageDef{{ID: "main"}}}
	a, b := k.brain(t, def), k.brain(t, def)
	if _, err := uuid.Parse(a.ID()); err != nil {
		t.Errorf("ID %q: %v", a.ID(), err)
	}
	if a.ID() == b.ID() {
		t.Errorf("two brains share id %s", a.ID())
	}
}

func TestNewRejectsMissingInputs(t *testing.T) {
	k := newKit(t)
	if _, err := New(nil, k.svc, Options{}); err == nil {
		t.Errorf("New(nil program) succeeded")
	}
	bad := &vm.BrainProgram{EntryPoint: 3}
	if _, err := New(bad, k.svc, Options{Limits: vm.DefaultLimits()}); err == nil {
		t.Errorf("New accepted an invalid program")
	}
}

func TestThinkRunsRootRulesEveryTick(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("n")},
		Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{
			{Do: "$n = tick"},
			{When: "tick > 2", Do: `note "late"`},
		}}},
	})
	think(t, b, 3)
	wantVar(t, b, "n", vm.Number(3))
	if len(k.notes) != 1 {
		t.Errorf("conditional rule ran %d times, want 1", len(k.notes))
	}
	if got := b.Clock(); got.Tick != 3 || got.Elapsed != 3*tick || got.Delta != tick {
		t.Errorf("clock = %+v", got)
	}
}

func TestPageSwitch(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("ona"), numberVar("onb")},
		Pages: []compiler.PageDef{
			{ID: "a", Rules: []compiler.RuleDef{{Do: "$ona = tick"}, {When: "tick == 2", Do: `switch_page "b"`}}},
			{ID: "b", Rules: []compiler.RuleDef{{Do: "$onb = tick"}}},
		},
	})
	think(t, b, 2)
	if got := b.ActivePage().Meta.ID; got != "a" {
		t.Fatalf("page switched within the requesting tick: %s", got)
	}
	think(t, b, 2)
	if got := b.ActivePage().Meta.ID; got != "b" {
		t.Fatalf("active page = %s, want b", got)
	}
	wantVar(t, b, "ona", vm.Number(2))
	wantVar(t, b, "onb", vm.Number(4))

	if err := b.RequestPage("0"); err != nil {
		t.Fatalf("RequestPage by index: %v", err)
	}
	think(t, b, 1)
	if got := b.ActivePage().Meta.ID; got != "a" {
		t.Errorf("active page = %s, want a", got)
	}
	if err := b.RequestPage("nowhere"); err == nil {
		t.Errorf("RequestPage of an unknown page succeeded")
	}
}

func TestSwitchPageByIndex(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{Pages: []compiler.PageDef{
		{ID: "a", Rules: []compiler.RuleDef{{Do: "switch_page 1"}}},
		{ID: "b"},
	}})
	think(t, b, 2)
	if got := b.ActivePage().Meta.ID; got != "b" {
		t.Errorf("active page = %s, want b", got)
	}
}

func TestTimerFiresOncePerPeriod(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("fired")},
		Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{
			{When: "timer 1", Do: "$fired = $fired + 1"},
		}}},
	})
	if err := b.SetVariable("fired", vm.Number(0)); err != nil {
		t.Fatal(err)
	}
	// elapsed 0.5 starts the timer; it fires at 1.5 and 2.5.
	think(t, b, 4)
	wantVar(t, b, "fired", vm.Number(1))
	think(t, b, 2)
	wantVar(t, b, "fired", vm.Number(2))
}

func TestPageEnteredResetsTimerState(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{
		{When: "timer 10"},
	}}}})
	think(t, b, 3)

	site := b.Program().Pages[0].HostCallSites[0].CallSiteID
	st, ok := b.CallSiteStates()[site].(*timerState)
	if !ok || st.last != tick {
		t.Fatalf("timer state = %v, want started at %s", b.CallSiteStates()[site], tick)
	}

	if err := b.RequestPage("main"); err != nil {
		t.Fatal(err)
	}
	think(t, b, 1)
	st, ok = b.CallSiteStates()[site].(*timerState)
	if !ok || st.last != 4*tick {
		t.Errorf("timer state after re-entering = %v, want restarted at %s", b.CallSiteStates()[site], 4*tick)
	}
}

func TestWaitParksTheRule(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("done")},
		Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{
			{Do: "wait 1", Children: []compiler.RuleDef{{Do: "$done = tick"}}},
		}}},
	})

	think(t, b, 2)
	wantVar(t, b, "done", vm.Nil)
	if live := b.Scheduler().Live(); live != 1 {
		t.Errorf("live fibers = %d, want the one waiting rule", live)
	}

	think(t, b, 1)
	wantVar(t, b, "done", vm.Number(3))
	if live := b.Scheduler().Live(); live != 0 {
		t.Errorf("live fibers after the wait = %d", live)
	}
	if n := b.timers.len(); n != 0 {
		t.Errorf("%d timers left", n)
	}
}

func TestPageSwitchCancelsWaitingRules(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("done")},
		Pages: []compiler.PageDef{
			{ID: "a", Rules: []compiler.RuleDef{{Do: "wait 5", Children: []compiler.RuleDef{{Do: "$done = 1"}}}}},
			{ID: "b"},
		},
	})
	think(t, b, 1)
	if err := b.RequestPage("b"); err != nil {
		t.Fatal(err)
	}
	think(t, b, 20)
	wantVar(t, b, "done", vm.Nil)
	if live := b.Scheduler().Live(); live != 0 {
		t.Errorf("live fibers = %d after leaving the page", live)
	}
}

func TestPageSwitchesReleaseWaitHandles(t *testing.T) {
	k := newKit(t)
	limits := vm.DefaultLimits()
	limits.MaxHandles = 4
	b, err := New(k.compile(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("x")},
		Pages: []compiler.PageDef{
			{ID: "a", Rules: []compiler.RuleDef{{Do: "wait 100"}}},
			{ID: "b", Rules: []compiler.RuleDef{{Do: "$x = 2"}}},
		},
	}), k.svc, Options{Limits: limits})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for round := 0; round < 10; round++ {
		for _, page := range []string{"a", "b"} {
			if err := b.RequestPage(page); err != nil {
				t.Fatal(err)
			}
			think(t, b, 1)
		}
		if n := b.Scheduler().Handles().Len(); n != 0 {
			t.Fatalf("round %d: %d handles outstanding", round, n)
		}
	}
	if faults := b.Faults(); len(faults) != 0 {
		t.Errorf("faults = %v", faults)
	}
	if n := b.timers.len(); n != 0 {
		t.Errorf("%d timers left", n)
	}

	if err := b.RequestPage("a"); err != nil {
		t.Fatal(err)
	}
	think(t, b, 1)
	b.Stop()
	if n := b.Scheduler().Handles().Len(); n != 0 {
		t.Errorf("%d handles outstanding after Stop", n)
	}
}

func TestLocalsLiveInTheirRule(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("n")},
		Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{
			{
				Locals:   []compiler.VarDecl{{Name: "n", Type: vm.TypeString}},
				Do:       `$n = "x"`,
				Children: []compiler.RuleDef{{Do: `$n = $n + "y"`}},
			},
			{Do: "$n = 5"},
		}}},
	})
	think(t, b, 1)
	wantVar(t, b, "n", vm.Number(5))

	r, ok := b.Rule(0)
	if !ok || len(r.Meta.Locals) != 1 {
		t.Fatalf("rule 0 = %+v", r)
	}
	if got := r.locals[r.Meta.Locals[0]]; !vm.Equal(got, vm.String("xy")) {
		t.Errorf("local $n = %v, want \"xy\"", got)
	}
	if len(r.Children) != 1 || r.Children[0].Parent != r {
		t.Errorf("rule tree not linked: %+v", r.Children)
	}
}

func TestReloadKeepsGlobalsAndPage(t *testing.T) {
	k := newKit(t)
	def := &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("n")},
		Pages:     []compiler.PageDef{{ID: "a"}, {ID: "b"}},
	}
	b := k.brain(t, def)
	if err := b.SetVariable("n", vm.Number(7)); err != nil {
		t.Fatal(err)
	}
	if err := b.RequestPage("b"); err != nil {
		t.Fatal(err)
	}
	think(t, b, 1)

	next := k.compile(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("m"), numberVar("n")},
		Pages: []compiler.PageDef{
			{ID: "b", Rules: []compiler.RuleDef{{Do: "$m = $n + 1"}}},
			{ID: "a"},
		},
	})
	if err := b.Reload(next, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := b.ActivePage().Meta.ID; got != "b" {
		t.Errorf("active page after reload = %s, want b", got)
	}
	think(t, b, 1)
	wantVar(t, b, "n", vm.Number(7))
	wantVar(t, b, "m", vm.Number(8))
}

func TestStop(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{{Do: "wait 10"}}}}})
	think(t, b, 1)
	b.Stop()
	if live := b.Scheduler().Live(); live != 0 {
		t.Errorf("live fibers after Stop = %d", live)
	}
	if err := b.Think(tick); !errors.Is(err, ErrStopped) {
		t.Errorf("Think after Stop = %v, want ErrStopped", err)
	}
	if err := b.Reload(b.Program(), nil); !errors.Is(err, ErrStopped) {
		t.Errorf("Reload after Stop = %v, want ErrStopped", err)
	}
}

func TestFaultsAreRecorded(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{
		{Do: "boom"},
		{Do: `note "still running"`},
	}}}})
	think(t, b, 2)

	faults := b.Faults()
	if len(faults) != 2 {
		t.Fatalf("faults = %v, want one per tick", faults)
	}
	if f := faults[0]; f.Rule != "0/0" || f.Tick != 1 || f.Err.Tag != vm.ErrHost {
		t.Errorf("fault = %s (tag %s)", f, f.Err.Tag)
	}
	if len(k.notes) != 2 {
		t.Errorf("sibling rule ran %d times, want 2", len(k.notes))
	}
}

func TestPostRunsOnNextTick(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{Variables: []compiler.VarDecl{numberVar("n")}, Pages: []compiler.PageDef{{ID: "main"}}})
	done := make(chan struct{})
	go func() {
		b.Post(func() { _ = b.SetVariable("n", vm.Number(1)) })
		close(done)
	}()
	<-done
	think(t, b, 1)
	wantVar(t, b, "n", vm.Number(1))
}

func TestGlobalsSkipsLocals(t *testing.T) {
	k := newKit(t)
	b := k.brain(t, &compiler.BrainDef{
		Variables: []compiler.VarDecl{numberVar("g"), numberVar("unset")},
		Pages: []compiler.PageDef{{ID: "main", Rules: []compiler.RuleDef{
			{Locals: []compiler.VarDecl{numberVar("l")}, Do: "$l = 1"},
			{Do: "$g = 2"},
		}}},
	})
	think(t, b, 1)
	got := b.Globals()
	if len(got) != 2 {
		t.Fatalf("globals = %v", got)
	}
	if !vm.Equal(got["g"], vm.Number(2)) || !got["unset"].IsNil() {
		t.Errorf("globals = %v", got)
	}
}
