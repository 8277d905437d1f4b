package compiler

import (
	"sync/atomic"

	"github.com/chazu/brain/vm"
)

// ---------------------------------------------------------------------------
// Call-spec grammar
// ---------------------------------------------------------------------------

// ArgKind classifies one argument of a call spec.
type ArgKind uint8

const (
	ArgAnonymous ArgKind = iota // bare expression
	ArgParameter                // parameter tile followed by a value
	ArgModifier                 // flag-like tile, counted
)

func (k ArgKind) String() string {
	switch k {
	case ArgParameter:
		return "parameter"
	case ArgModifier:
		return "modifier"
	}
	return "anonymous"
}

// ArgSpec describes one argument. Tile names the parameter or modifier
// tile; Type is the expected type of an anonymous value.
type ArgSpec struct {
	Kind ArgKind
	Tile string
	Type vm.TypeID
}

// CallSpec is a node of the argument grammar of a sensor or actuator.
type CallSpec interface {
	flatten(f *flattener)
}

type argSpec struct{ spec ArgSpec }
type seqSpec struct{ items []CallSpec }
type bagSpec struct{ items []CallSpec }
type choiceSpec struct {
	name    string
	options []CallSpec
}
type optionalSpec struct{ item CallSpec }
type repeatSpec struct {
	item     CallSpec
	min, max int
}
type conditionalSpec struct {
	choice    string
	then, els CallSpec
}

// Arg is a single argument.
func Arg(spec ArgSpec) CallSpec { return argSpec{spec} }

// Anon is an anonymous argument of type t.
func Anon(t vm.TypeID) CallSpec { return argSpec{ArgSpec{Kind: ArgAnonymous, Type: t}} }

// Param is a named parameter argument.
func Param(tile string) CallSpec { return argSpec{ArgSpec{Kind: ArgParameter, Tile: tile}} }

// Mod is a modifier argument.
func Mod(tile string) CallSpec { return argSpec{ArgSpec{Kind: ArgModifier, Tile: tile}} }

// Seq is an ordered sequence.
func Seq(items ...CallSpec) CallSpec { return seqSpec{items} }

// Bag is an unordered set; call sites may supply its items in any order.
func Bag(items ...CallSpec) CallSpec { return bagSpec{items} }

// Choice is a named set of mutually exclusive options.
func Choice(name string, options ...CallSpec) CallSpec { return choiceSpec{name, options} }

// Optional marks item as omittable.
func Optional(item CallSpec) CallSpec { return optionalSpec{item} }

// Repeat allows item between min and max times (max <= 0 is unbounded).
func Repeat(item CallSpec, min, max int) CallSpec { return repeatSpec{item, min, max} }

// Conditional applies then when any slot of the named choice is filled at
// the call site, and els (which may be nil) otherwise.
func Conditional(choice string, then, els CallSpec) CallSpec {
	return conditionalSpec{choice, then, els}
}

// ---------------------------------------------------------------------------
// Flattening
// ---------------------------------------------------------------------------

// choiceGroups hands out globally unique choice group ids.
var choiceGroups atomic.Int64

// SlotCondition gates a slot produced by a Conditional.
type SlotCondition struct {
	Choice string
	Else   bool
}

// ArgSlot is one flattened argument position. SlotID equals the slot's
// index in FlatSpec.Slots.
type ArgSlot struct {
	SlotID      int
	Arg         ArgSpec
	ChoiceGroup int   // innermost choice group, 0 for none
	Option      int   // option index within ChoiceGroup
	Groups      []int // every enclosing choice group, outermost first
	Condition   *SlotCondition
	Optional    bool
	Repeat      bool
}

// InGroup reports whether the slot sits inside choice group g.
func (s *ArgSlot) InGroup(g int) bool {
	for _, x := range s.Groups {
		if x == g {
			return true
		}
	}
	return false
}

// FlatSpec is the flattened form of a call spec.
type FlatSpec struct {
	Slots   []ArgSlot
	Choices map[string]int
}

// Slot returns the first slot for a parameter or modifier tile.
func (f FlatSpec) Slot(kind ArgKind, tile string) (ArgSlot, bool) {
	for _, s := range f.Slots {
		if s.Arg.Kind == kind && s.Arg.Tile == tile {
			return s, true
		}
	}
	return ArgSlot{}, false
}

type flattener struct {
	out      FlatSpec
	groups   []int
	options  []int
	cond     *SlotCondition
	optional bool
	repeat   bool
}

// Flatten assigns dense slot ids in pre-order. Slot ids depend only on the
// shape of spec; choice group ids are unique across every flattening.
func Flatten(spec CallSpec) FlatSpec {
	f := &flattener{out: FlatSpec{Choices: make(map[string]int)}}
	if spec != nil {
		spec.flatten(f)
	}
	return f.out
}

func (s argSpec) flatten(f *flattener) {
	slot := ArgSlot{
		SlotID:    len(f.out.Slots),
		Arg:       s.spec,
		Groups:    append([]int(nil), f.groups...),
		Condition: f.cond,
		Optional:  f.optional,
		Repeat:    f.repeat,
	}
	if n := len(f.groups); n > 0 {
		slot.ChoiceGroup = f.groups[n-1]
		slot.Option = f.options[n-1]
	}
	f.out.Slots = append(f.out.Slots, slot)
}

func (s seqSpec) flatten(f *flattener) {
	for _, it := range s.items {
		it.flatten(f)
	}
}

func (s bagSpec) flatten(f *flattener) {
	for _, it := range s.items {
		it.flatten(f)
	}
}

func (s choiceSpec) flatten(f *flattener) {
	g := int(choiceGroups.Add(1))
	if s.name != "" {
		f.out.Choices[s.name] = g
	}
	f.groups = append(f.groups, g)
	f.options = append(f.options, 0)
	for i, opt := range s.options {
		f.options[len(f.options)-1] = i
		opt.flatten(f)
	}
	f.groups = f.groups[:len(f.groups)-1]
	f.options = f.options[:len(f.options)-1]
}

func (s optionalSpec) flatten(f *flattener) {
	saved := f.optional
	f.optional = true
	s.item.flatten(f)
	f.optional = saved
}

func (s repeatSpec) flatten(f *flattener) {
	saved := f.repeat
	f.repeat = true
	s.item.flatten(f)
	f.repeat = saved
}

func (s conditionalSpec) flatten(f *flattener) {
	saved := f.cond
	f.cond = &SlotCondition{Choice: s.choice}
	s.then.flatten(f)
	if s.els != nil {
		f.cond = &SlotCondition{Choice: s.choice, Else: true}
		s.els.flatten(f)
	}
	f.cond = saved
}
