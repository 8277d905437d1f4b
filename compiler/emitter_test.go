package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/brain/vm"
)

func TestEmitterForwardAndBackwardJumps(t *testing.T) {
	e := NewEmitter()
	top, end := e.Label(), e.Label()

	if err := e.Mark(top); err != nil {
		t.Fatal(err)
	}
	e.Emit(vm.OpNOP, 0, 0, 0)                    // 0
	e.EmitJump(vm.OpJumpIfFalse, end, vm.FieldA) // 1
	e.Emit(vm.OpNOP, 0, 0, 0)                    // 2
	e.EmitJump(vm.OpJump, top, vm.FieldA)        // 3
	if err := e.Mark(end); err != nil {
		t.Fatal(err)
	}
	e.Emit(vm.OpRet, 0, 0, 0) // 4

	code, err := e.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if code[1].A != 3 {
		t.Errorf("forward offset = %d, want 3", code[1].A)
	}
	if code[3].A != -3 {
		t.Errorf("backward offset = %d, want -3", code[3].A)
	}
}

func TestEmitterPatchesSelectedField(t *testing.T) {
	e := NewEmitter()
	l := e.Label()
	e.EmitJump(vm.OpNOP, l, vm.FieldC)
	e.Emit(vm.OpNOP, 0, 0, 0)
	e.Mark(l)
	e.Emit(vm.OpRet, 0, 0, 0)
	code, err := e.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if code[0].C != 2 || code[0].A != 0 {
		t.Errorf("instr = %+v, want C=2 A=0", code[0])
	}
}

func TestEmitterErrors(t *testing.T) {
	e := NewEmitter()
	l := e.Label()
	if err := e.Mark(l); err != nil {
		t.Fatal(err)
	}
	if err := e.Mark(l); err == nil {
		t.Errorf("second Mark succeeded")
	}
	if err := e.Mark(Label(42)); err == nil {
		t.Errorf("Mark of unknown label succeeded")
	}

	if _, err := e.EmitJump(vm.OpJump, Label(42), vm.FieldA); err == nil {
		t.Errorf("EmitJump to an unknown label succeeded")
	}
	if n := e.Len(); n != 0 {
		t.Errorf("EmitJump to an unknown label left %d instructions", n)
	}

	unbound := NewEmitter()
	unbound.EmitJump(vm.OpJump, unbound.Label(), vm.FieldA)
	if _, err := unbound.Finalize(); err == nil {
		t.Errorf("Finalize with unbound label succeeded")
	}

	done := NewEmitter()
	done.Emit(vm.OpRet, 0, 0, 0)
	if _, err := done.Finalize(); err != nil {
		t.Fatal(err)
	}
	if _, err := done.Emit(vm.OpNOP, 0, 0, 0); !errors.Is(err, ErrFinalized) {
		t.Errorf("Emit after Finalize: %v, want ErrFinalized", err)
	}
	if _, err := done.EmitJump(vm.OpJump, l, vm.FieldA); !errors.Is(err, ErrFinalized) {
		t.Errorf("EmitJump after Finalize: %v, want ErrFinalized", err)
	}
	if _, err := done.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Finalize: %v, want ErrFinalized", err)
	}
}

func TestMaxStackDepth(t *testing.T) {
	tests := []struct {
		name string
		code []vm.Instr
		want int
	}{
		{"empty", nil, 0},
		{"straight", []vm.Instr{
			{Op: vm.OpPushConst}, {Op: vm.OpPushConst}, {Op: vm.OpHostCall, B: 2}, {Op: vm.OpPop}, {Op: vm.OpRet},
		}, 2},
		{"dup", []vm.Instr{
			{Op: vm.OpPushConst}, {Op: vm.OpDup}, {Op: vm.OpStoreVar}, {Op: vm.OpPop}, {Op: vm.OpRet},
		}, 2},
		{"branch takes the deeper path", []vm.Instr{
			{Op: vm.OpPushConst},
			{Op: vm.OpJumpIfFalse, A: 4}, // -> 5
			{Op: vm.OpPushConst},
			{Op: vm.OpPushConst},
			{Op: vm.OpPushConst},
			{Op: vm.OpRet},
		}, 3},
		{"map build", []vm.Instr{
			{Op: vm.OpMapNew}, {Op: vm.OpPushConst}, {Op: vm.OpPushConst}, {Op: vm.OpMapSet},
			{Op: vm.OpHostCallArgs}, {Op: vm.OpPop}, {Op: vm.OpRet},
		}, 3},
	}
	for _, tt := range tests {
		if got := MaxStackDepth(tt.code); got != tt.want {
			t.Errorf("%s: MaxStackDepth = %d, want %d", tt.name, got, tt.want)
		}
	}
}
