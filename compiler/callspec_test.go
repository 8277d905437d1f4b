package compiler

import (
	"testing"

	"github.com/chazu/brain/vm"
)

func TestFlattenAssignsDenseSlotsInPreOrder(t *testing.T) {
	flat := Flatten(Seq(
		Anon(vm.TypeNumber),
		Bag(Param("speed"), Mod("quickly")),
		Optional(Anon(vm.TypeString)),
	))

	want := []struct {
		kind     ArgKind
		tile     string
		optional bool
	}{
		{ArgAnonymous, "", false},
		{ArgParameter, "speed", false},
		{ArgModifier, "quickly", false},
		{ArgAnonymous, "", true},
	}
	if len(flat.Slots) != len(want) {
		t.Fatalf("got %d slots, want %d", len(flat.Slots), len(want))
	}
	for i, w := range want {
		s := flat.Slots[i]
		if s.SlotID != i {
			t.Errorf("slot %d: SlotID = %d", i, s.SlotID)
		}
		if s.Arg.Kind != w.kind || s.Arg.Tile != w.tile || s.Optional != w.optional {
			t.Errorf("slot %d = %+v, want kind=%s tile=%q optional=%v", i, s, w.kind, w.tile, w.optional)
		}
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	spec := func() CallSpec {
		return Seq(Anon(vm.TypeNumber), Optional(Param("speed")), Repeat(Mod("quickly"), 0, 3))
	}
	a, b := Flatten(spec()), Flatten(spec())
	if len(a.Slots) != len(b.Slots) {
		t.Fatalf("slot counts differ: %d vs %d", len(a.Slots), len(b.Slots))
	}
	for i := range a.Slots {
		if a.Slots[i].SlotID != b.Slots[i].SlotID || a.Slots[i].Arg != b.Slots[i].Arg {
			t.Errorf("slot %d differs: %+v vs %+v", i, a.Slots[i], b.Slots[i])
		}
	}
}

func TestFlattenChoiceGroups(t *testing.T) {
	a := Flatten(Choice("dir", Mod("left"), Mod("right")))
	b := Flatten(Choice("dir", Mod("left"), Mod("right")))

	ga, gb := a.Slots[0].ChoiceGroup, b.Slots[0].ChoiceGroup
	if ga == 0 || gb == 0 {
		t.Fatalf("choice slots have no group: %d %d", ga, gb)
	}
	if ga == gb {
		t.Errorf("separate flattenings share choice group %d", ga)
	}
	if a.Slots[1].ChoiceGroup != ga {
		t.Errorf("options of one choice in different groups: %d, %d", ga, a.Slots[1].ChoiceGroup)
	}
	if a.Slots[0].Option != 0 || a.Slots[1].Option != 1 {
		t.Errorf("options = %d, %d; want 0, 1", a.Slots[0].Option, a.Slots[1].Option)
	}
	if a.Choices["dir"] != ga {
		t.Errorf("Choices[dir] = %d, want %d", a.Choices["dir"], ga)
	}
}

func TestFlattenNestedChoiceRecordsEveryGroup(t *testing.T) {
	flat := Flatten(Choice("outer", Mod("a"), Choice("inner", Mod("b"), Mod("c"))))
	outer, inner := flat.Choices["outer"], flat.Choices["inner"]

	b := flat.Slots[1]
	if b.ChoiceGroup != inner {
		t.Errorf("innermost group = %d, want %d", b.ChoiceGroup, inner)
	}
	if !b.InGroup(outer) || !b.InGroup(inner) {
		t.Errorf("slot b groups = %v, want both %d and %d", b.Groups, outer, inner)
	}
	if flat.Slots[0].InGroup(inner) {
		t.Errorf("slot a should not be in the inner group")
	}
}

func TestFlattenConditional(t *testing.T) {
	flat := Flatten(Seq(
		Optional(Choice("dir", Mod("left"), Mod("right"))),
		Conditional("dir", Param("speed"), Mod("quickly")),
	))
	speed, ok := flat.Slot(ArgParameter, "speed")
	if !ok || speed.Condition == nil || speed.Condition.Choice != "dir" || speed.Condition.Else {
		t.Errorf("then branch slot = %+v", speed)
	}
	quick, ok := flat.Slot(ArgModifier, "quickly")
	if !ok || quick.Condition == nil || !quick.Condition.Else {
		t.Errorf("else branch slot = %+v", quick)
	}
}

func TestFlattenNil(t *testing.T) {
	if got := Flatten(nil); len(got.Slots) != 0 {
		t.Errorf("Flatten(nil) has %d slots", len(got.Slots))
	}
}

func TestConditionalSlotsAtCallSite(t *testing.T) {
	svc := vm.NewCoreServices()
	svc.Functions.MustRegister(vm.HostFunction{Name: "go", Sync: func(*vm.ExecutionContext, vm.Value) (vm.Value, error) {
		return vm.Void, nil
	}})
	c := NewCatalog(svc.Seal())
	for _, m := range []string{"left", "right", "quickly"} {
		if err := c.AddModifier(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.AddParameter("speed", vm.TypeNumber); err != nil {
		t.Fatal(err)
	}
	err := c.AddActuator("go", "go", Seq(
		Optional(Choice("dir", Mod("left"), Mod("right"))),
		Conditional("dir", Param("speed"), Mod("quickly")),
	))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		row   string
		slots int // bound args
		extra bool
	}{
		{"go left speed 2", 2, false},
		{"go quickly", 1, false},
		{"go speed 2", 0, true},      // speed needs a direction
		{"go left quickly", 1, true}, // quickly only without one
		{"go left right", 1, true},   // exclusive options
	}
	for _, tt := range tests {
		e, diags := ParseRow(tt.row, c)
		a, ok := e.(*Actuator)
		if !ok {
			t.Errorf("%q: got %T, want *Actuator", tt.row, e)
			continue
		}
		if len(a.Args) != tt.slots {
			t.Errorf("%q: %d args bound, want %d", tt.row, len(a.Args), tt.slots)
		}
		if got := len(diags.WithCode(ParseError)) > 0; got != tt.extra {
			t.Errorf("%q: parse error = %v, want %v (%s)", tt.row, got, tt.extra, diags)
		}
	}
}
