package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ErrorValue
// ---------------------------------------------------------------------------

func TestErrorValueMessage(t *testing.T) {
	err := &ErrorValue{Tag: ErrHost, Message: "no target", Detail: "attack", Site: Site{FuncID: 2, PC: 7}}
	msg := err.Error()
	for _, want := range []string{"HostError", "no target", "attack", "fn2@7"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestErrorValueIsMatchesTag(t *testing.T) {
	err := NewError(ErrTimeout, "wait expired")
	if !errors.Is(err, &ErrorValue{Tag: ErrTimeout}) {
		t.Error("errors.Is should match by tag")
	}
	if errors.Is(err, &ErrorValue{Tag: ErrCancelled}) {
		t.Error("errors.Is should not match a different tag")
	}
}

func TestAsErrorValueWrapsPlainErrors(t *testing.T) {
	plain := errors.New("disk full")
	ev := AsErrorValue(plain)
	if ev.Tag != ErrHost || !errors.Is(ev, plain) {
		t.Errorf("AsErrorValue = %v, want HostError wrapping the cause", ev)
	}
	same := NewError(ErrScript, "x")
	if AsErrorValue(same) != same {
		t.Error("AsErrorValue should return existing ErrorValues unchanged")
	}
}

// ---------------------------------------------------------------------------
// TRY / THROW
// ---------------------------------------------------------------------------

func TestThrowRestoresStackAndFrames(t *testing.T) {
	p := program([]Value{Int(1), String("boom")}, nil,
		[]Instr{
			{Op: OpPushConst, A: 0}, // 0
			{Op: OpPushConst, A: 0}, // 1
			{Op: OpTry, A: 4},       // 2: catch at 6
			{Op: OpPushConst, A: 0}, // 3
			{Op: OpCall, A: 1},      // 4
			{Op: OpEndTry},          // 5
			{Op: OpYield},           // 6
			{Op: OpRet},             // 7
		},
		[]Instr{
			{Op: OpPushConst, A: 0},
			{Op: OpPushConst, A: 0},
			{Op: OpPushConst, A: 1},
			{Op: OpThrow},
		},
	)

	f, status, _ := runOnce(t, p, NewCoreServices().Seal(), Limits{})
	if status != RunYielded {
		t.Fatalf("status = %s (err %v), want yielded at the catch pc", status, f.Err)
	}
	if f.StackHeight() != 2 {
		t.Errorf("stack height = %d, want 2", f.StackHeight())
	}
	if f.FrameDepth() != 1 {
		t.Errorf("frame depth = %d, want 1", f.FrameDepth())
	}
	if f.HandlerDepth() != 0 {
		t.Errorf("handler depth = %d, want 0", f.HandlerDepth())
	}
	if f.frame().PC != 7 {
		t.Errorf("pc = %d, want 7", f.frame().PC)
	}
	caught := f.LastError()
	if caught == nil || caught.Tag != ErrScript || caught.Message != "boom" {
		t.Fatalf("LastError = %v, want ScriptError boom", caught)
	}
	if caught.Site != (Site{FuncID: 1, PC: 3}) {
		t.Errorf("site = %v, want fn1@3", caught.Site)
	}
}

func TestNestedTryCatchesInnermost(t *testing.T) {
	p := program([]Value{String("inner"), Int(1)}, []string{"where"}, []Instr{
		{Op: OpTry, A: 8},       // 0: outer, catch at 8
		{Op: OpTry, A: 4},       // 1: inner, catch at 5
		{Op: OpPushConst, A: 0}, // 2
		{Op: OpThrow},           // 3
		{Op: OpEndTry},          // 4
		{Op: OpPushConst, A: 1}, // 5: inner catch
		{Op: OpStoreVar, A: 0},  // 6
		{Op: OpEndTry},          // 7
		{Op: OpRet},             // 8
	})

	f, status, host := runOnce(t, p, NewCoreServices().Seal(), Limits{})
	if status != RunDone {
		t.Fatalf("status = %s (err %v)", status, f.Err)
	}
	if got := host.vars[0]; !Equal(got, Int(1)) {
		t.Errorf("where = %v, want 1 (inner handler)", got)
	}
}

func TestUncaughtThrowFaults(t *testing.T) {
	p := program([]Value{String("bad")}, nil, []Instr{
		{Op: OpPushConst, A: 0},
		{Op: OpThrow},
	})
	f, status, _ := runOnce(t, p, NewCoreServices().Seal(), Limits{})
	if status != RunFault || f.State != FiberFault {
		t.Fatalf("status = %s state = %s, want fault", status, f.State)
	}
	if f.Err.Message != "bad" {
		t.Errorf("message = %q", f.Err.Message)
	}
}

func TestTryCatchesStackOverflow(t *testing.T) {
	p := program(nil, []string{"ok"},
		[]Instr{
			{Op: OpTry, A: 3},  // 0: catch at 3
			{Op: OpCall, A: 1}, // 1
			{Op: OpEndTry},     // 2
			{Op: OpRet},        // 3
		},
		[]Instr{{Op: OpCall, A: 1}, {Op: OpRet}},
	)
	f, status, _ := runOnce(t, p, NewCoreServices().Seal(), Limits{MaxFrameDepth: 8})
	if status != RunDone {
		t.Fatalf("status = %s (err %v), want done", status, f.Err)
	}
	if f.LastError() == nil || f.LastError().Tag != ErrStackOverflow {
		t.Errorf("LastError = %v, want StackOverflow", f.LastError())
	}
}
