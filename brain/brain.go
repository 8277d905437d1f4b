package brain

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/brain/vm"
)

var log = commonlog.GetLogger("brain")

// ErrStopped is returned by operations on a stopped brain.
var ErrStopped = errors.New("brain: stopped")

// ---------------------------------------------------------------------------
// Brain: pages, rules and the tick loop
// ---------------------------------------------------------------------------

// Options configure a Brain.
type Options struct {
	Limits vm.Limits
}

// Rule is the runtime instance of one compiled rule. Locals declared by
// the rule live here and persist across ticks.
type Rule struct {
	Meta     vm.RuleMetadata
	Parent   *Rule
	Children []*Rule

	locals map[int]vm.Value
	owns   map[int]bool
	fiber  vm.FiberID // live fiber of a root rule, 0 for none
}

// Path returns the rule's page/rule/child path.
func (r *Rule) Path() string { return r.Meta.Path }

func (r *Rule) declares(varID int) bool { return r.owns[varID] }

// Page is the runtime view of one page.
type Page struct {
	Meta  vm.PageMetadata
	Rules []*Rule // root rules
}

// Fault records an error that escaped a rule's fiber.
type Fault struct {
	Rule string
	Tick uint64
	Err  *vm.ErrorValue
}

func (f Fault) String() string {
	return fmt.Sprintf("tick %d rule %s: %v", f.Tick, f.Rule, f.Err)
}

// Brain runs a compiled program. It is the vm.Host of its scheduler:
// variables resolve through the calling rule's chain to the brain's
// globals, and per-call-site state persists across ticks.
//
// A Brain is not safe for concurrent use; use Post to hand work to the
// goroutine that calls Think.
type Brain struct {
	id   uuid.UUID
	prog *vm.BrainProgram
	svc  *vm.Services
	opts Options

	sched   *vm.Scheduler
	rules   map[int]*Rule // by function id
	locals  map[int]bool  // variable ids declared by some rule
	pages   []*Page
	globals map[int]vm.Value
	states  map[int]any
	timers  timerQueue
	clock   vm.Clock

	active  int
	pending int // page to activate at the next tick, -1 for none
	faults  []Fault
	stopped bool
}

// New creates a brain for prog. The entry page is activated by the first
// call to Think.
func New(prog *vm.BrainProgram, svc *vm.Services, opts Options) (*Brain, error) {
	if prog == nil || svc == nil {
		return nil, errors.New("brain: program and services are required")
	}
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("brain: %w", err)
	}
	b := &Brain{
		id:      uuid.New(),
		svc:     svc,
		opts:    opts,
		globals: make(map[int]vm.Value),
	}
	b.load(prog)
	b.active = prog.EntryPoint
	b.pending = prog.EntryPoint
	log.Infof("brain %s: loaded %d pages, %d rules", b.id, len(b.pages), len(b.rules))
	return b, nil
}

// load installs prog and a fresh scheduler.
func (b *Brain) load(prog *vm.BrainProgram) {
	b.prog = prog
	b.states = make(map[int]any)
	b.timers = timerQueue{}
	b.sched = vm.NewScheduler(prog, b.svc, b, b.opts.Limits)
	b.sched.OnFiberFault = b.onFault

	b.rules = make(map[int]*Rule, len(prog.Rules))
	b.locals = make(map[int]bool)
	for _, meta := range prog.Rules {
		r := &Rule{Meta: meta, locals: make(map[int]vm.Value), owns: make(map[int]bool)}
		for _, id := range meta.Locals {
			r.owns[id] = true
			b.locals[id] = true
		}
		b.rules[meta.FuncID] = r
	}
	for _, meta := range prog.Rules {
		if meta.Parent < 0 {
			continue
		}
		if p, ok := b.rules[meta.Parent]; ok {
			r := b.rules[meta.FuncID]
			r.Parent = p
			p.Children = append(p.Children, r)
		}
	}

	b.pages = make([]*Page, len(prog.Pages))
	for i, meta := range prog.Pages {
		page := &Page{Meta: meta}
		for _, fn := range meta.RootRules {
			r, ok := b.rules[fn]
			if !ok {
				r = &Rule{Meta: vm.RuleMetadata{FuncID: fn, Page: i, Parent: -1}, locals: make(map[int]vm.Value), owns: map[int]bool{}}
				b.rules[fn] = r
			}
			page.Rules = append(page.Rules, r)
		}
		b.pages[i] = page
	}
}

// ID returns the brain's instance id.
func (b *Brain) ID() string { return b.id.String() }

// Program returns the running program.
func (b *Brain) Program() *vm.BrainProgram { return b.prog }

// Scheduler returns the brain's scheduler.
func (b *Brain) Scheduler() *vm.Scheduler { return b.sched }

// Pages returns the runtime pages.
func (b *Brain) Pages() []*Page { return b.pages }

// Rule returns the rule compiled into funcID.
func (b *Brain) Rule(funcID int) (*Rule, bool) {
	r, ok := b.rules[funcID]
	return r, ok
}

// ActivePage returns the page currently running.
func (b *Brain) ActivePage() *Page {
	if b.active < 0 || b.active >= len(b.pages) {
		return nil
	}
	return b.pages[b.active]
}

// Think advances the brain by one tick of length dt: it fires due timers,
// applies a pending page switch, spawns every root rule of the active page
// that has no live fiber, and runs the scheduler.
func (b *Brain) Think(dt time.Duration) error {
	if b.stopped {
		return ErrStopped
	}
	b.clock.Tick++
	b.clock.Delta = dt
	b.clock.Elapsed += dt

	b.timers.fire(b.clock.Elapsed, b.sched.Handles())

	if b.pending >= 0 {
		b.switchPage(b.pending)
	}

	page := b.ActivePage()
	if page != nil {
		for _, r := range page.Rules {
			if r.fiber != 0 {
				if _, live := b.sched.Fiber(r.fiber); live {
					continue
				}
			}
			f, err := b.sched.Spawn(r.Meta.FuncID)
			if err != nil {
				b.record(r.Path(), vm.AsErrorValue(err))
				continue
			}
			r.fiber = f.ID
		}
	}

	b.sched.Tick()
	return nil
}

// switchPage cancels every fiber and activates page idx, running the
// page-entered hook of every host call site compiled into it.
func (b *Brain) switchPage(idx int) {
	b.pending = -1
	b.sched.CancelAll()
	for _, r := range b.rules {
		r.fiber = 0
	}
	b.timers.cancel(b.sched.Handles())
	b.active = idx

	page := b.pages[idx]
	log.Debugf("brain %s: entering page %q", b.id, page.Meta.Name)
	for _, site := range page.Meta.HostCallSites {
		fn, ok := b.svc.Functions.Get(site.FnID)
		if !ok || fn.OnPageEntered == nil {
			continue
		}
		ctx := vm.NewHookContext(b, b.prog, b.sched.Handles(), -1, site.CallSiteID)
		fn.OnPageEntered(ctx)
	}
}

// RequestPage schedules a switch to the page with the given id, name or
// index. The switch happens at the start of the next tick.
func (b *Brain) RequestPage(key string) error {
	idx, ok := b.prog.PageIndex(key)
	if !ok {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || n >= len(b.pages) {
			return fmt.Errorf("brain: unknown page %q", key)
		}
		idx = n
	}
	b.pending = idx
	return nil
}

// globalID resolves name to a global variable id, skipping rule locals
// that share the name.
func (b *Brain) globalID(prog *vm.BrainProgram, name string) (int, bool) {
	for id, n := range prog.VariableNames {
		if n == name && !b.locals[id] {
			return id, true
		}
	}
	return 0, false
}

// Variable returns the value of a global variable.
func (b *Brain) Variable(name string) (vm.Value, bool) {
	id, ok := b.globalID(b.prog, name)
	if !ok {
		return vm.Nil, false
	}
	if v, ok := b.globals[id]; ok {
		return v, true
	}
	return vm.Nil, true
}

// Globals returns the current value of every global variable by name.
// Unassigned globals are nil.
func (b *Brain) Globals() map[string]vm.Value {
	out := make(map[string]vm.Value)
	for id, name := range b.prog.VariableNames {
		if b.locals[id] {
			continue
		}
		if v, ok := b.globals[id]; ok {
			out[name] = v
		} else {
			out[name] = vm.Nil
		}
	}
	return out
}

// SetVariable assigns a global variable.
func (b *Brain) SetVariable(name string, v vm.Value) error {
	id, ok := b.globalID(b.prog, name)
	if !ok {
		return fmt.Errorf("brain: unknown variable %q", name)
	}
	b.globals[id] = v
	return nil
}

// Reload swaps in a recompiled program. svc replaces the brain's services
// when the program was compiled against a rebuilt registry; nil keeps the
// current ones. Globals carry over by name; call site state and running
// fibers are dropped. The active page is kept when the new program still
// has it.
func (b *Brain) Reload(prog *vm.BrainProgram, svc *vm.Services) error {
	if b.stopped {
		return ErrStopped
	}
	if err := prog.Validate(); err != nil {
		return fmt.Errorf("brain: reload: %w", err)
	}

	values := make(map[string]vm.Value, len(b.globals))
	for id, v := range b.globals {
		values[b.prog.VariableNames[id]] = v
	}
	current := ""
	if page := b.ActivePage(); page != nil {
		current = page.Meta.ID
	}

	b.sched.CancelAll()
	if svc != nil {
		b.svc = svc
	}
	b.load(prog)

	b.globals = make(map[int]vm.Value, len(values))
	for name, v := range values {
		if id, ok := b.globalID(prog, name); ok {
			b.globals[id] = v
		}
	}
	b.pending = prog.EntryPoint
	if idx, ok := prog.PageIndex(current); ok && current != "" {
		b.pending = idx
	}
	b.active = b.pending
	log.Infof("brain %s: reloaded (%d rules)", b.id, len(b.rules))
	return nil
}

// Stop cancels every fiber. A stopped brain does not think again.
func (b *Brain) Stop() {
	if b.stopped {
		return
	}
	b.sched.CancelAll()
	b.timers.cancel(b.sched.Handles())
	b.stopped = true
	log.Infof("brain %s: stopped at tick %d", b.id, b.clock.Tick)
}

// Faults returns the errors that escaped rule fibers so far.
func (b *Brain) Faults() []Fault {
	return append([]Fault(nil), b.faults...)
}

// Post queues fn to run at the start of the next tick. It is safe to call
// from any goroutine.
func (b *Brain) Post(fn func()) {
	b.sched.Post(fn)
}

// After resolves handle with Void once d has elapsed on the brain's clock.
func (b *Brain) After(d time.Duration, handle vm.HandleID) {
	b.timers.add(b.clock.Elapsed+d, handle)
}

func (b *Brain) onFault(f *vm.Fiber, err *vm.ErrorValue) {
	path := strconv.Itoa(f.Entry)
	if r, ok := b.rules[f.Entry]; ok {
		path = r.Path()
	}
	b.record(path, err)
}

func (b *Brain) record(rule string, err *vm.ErrorValue) {
	log.Warningf("brain %s: rule %s faulted: %v", b.id, rule, err)
	b.faults = append(b.faults, Fault{Rule: rule, Tick: b.clock.Tick, Err: err})
}

// ---------------------------------------------------------------------------
// vm.Host
// ---------------------------------------------------------------------------

// scope returns the storage holding varID as seen from funcID: the first
// rule on the chain from funcID to its root that declares it, else the
// globals.
func (b *Brain) scope(funcID, varID int) map[int]vm.Value {
	for r := b.rules[funcID]; r != nil; r = r.Parent {
		if r.declares(varID) {
			return r.locals
		}
	}
	return b.globals
}

// Load implements vm.Scope.
func (b *Brain) Load(funcID, varID int) vm.Value {
	if v, ok := b.scope(funcID, varID)[varID]; ok {
		return v
	}
	return vm.Nil
}

// Store implements vm.Scope.
func (b *Brain) Store(funcID, varID int, v vm.Value) {
	b.scope(funcID, varID)[varID] = v
}

// Clear implements vm.Scope.
func (b *Brain) Clear(funcID, varID int) {
	delete(b.scope(funcID, varID), varID)
}

// CallSiteStates implements vm.Host.
func (b *Brain) CallSiteStates() map[int]any { return b.states }

// Clock implements vm.Host.
func (b *Brain) Clock() vm.Clock { return b.clock }
