package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/brain/vm"
)

// ---------------------------------------------------------------------------
// Emitter: instruction buffer with label fixups
// ---------------------------------------------------------------------------

// Label is a jump target that may be bound after the jumps referring to it
// have been emitted.
type Label int

// Fixup records an operand to patch once its label is bound.
type Fixup struct {
	InstrIdx int
	Label    Label
	Field    vm.Field
}

// ErrFinalized is returned when emitting into a finalized emitter.
var ErrFinalized = errors.New("emitter: already finalized")

// Emitter builds the code of one function in two passes: instructions are
// appended with placeholder jump operands, then Finalize rewrites each
// fixup to the relative offset target - instrIdx.
type Emitter struct {
	code      []vm.Instr
	labels    []int // bound index per label, -1 while unbound
	fixups    []Fixup
	finalized bool
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Label allocates a new unbound label.
func (e *Emitter) Label() Label {
	e.labels = append(e.labels, -1)
	return Label(len(e.labels) - 1)
}

// Mark binds l to the index of the next emitted instruction.
func (e *Emitter) Mark(l Label) error {
	if int(l) < 0 || int(l) >= len(e.labels) {
		return fmt.Errorf("emitter: unknown label %d", l)
	}
	if e.labels[l] >= 0 {
		return fmt.Errorf("emitter: label %d bound twice", l)
	}
	e.labels[l] = len(e.code)
	return nil
}

// Emit appends an instruction and returns its index.
func (e *Emitter) Emit(op vm.Opcode, a, b, c int) (int, error) {
	if e.finalized {
		return 0, ErrFinalized
	}
	e.code = append(e.code, vm.Instr{Op: op, A: int32(a), B: int32(b), C: int32(c)})
	return len(e.code) - 1, nil
}

// EmitJump appends op with its field operand referring to label.
func (e *Emitter) EmitJump(op vm.Opcode, l Label, field vm.Field) (int, error) {
	if e.finalized {
		return 0, ErrFinalized
	}
	if int(l) < 0 || int(l) >= len(e.labels) {
		return 0, fmt.Errorf("emitter: unknown label %d", l)
	}
	idx, err := e.Emit(op, 0, 0, 0)
	if err != nil {
		return 0, err
	}
	e.fixups = append(e.fixups, Fixup{InstrIdx: idx, Label: l, Field: field})
	return idx, nil
}

// Len returns the number of instructions emitted so far.
func (e *Emitter) Len() int { return len(e.code) }

// Finalize patches every fixup and returns the code. Emitting afterwards
// fails with ErrFinalized.
func (e *Emitter) Finalize() ([]vm.Instr, error) {
	if e.finalized {
		return nil, ErrFinalized
	}
	for _, fx := range e.fixups {
		target := e.labels[fx.Label]
		if target < 0 {
			return nil, fmt.Errorf("emitter: label %d never bound (instr %d)", fx.Label, fx.InstrIdx)
		}
		e.code[fx.InstrIdx].SetOperand(fx.Field, int32(target-fx.InstrIdx))
	}
	e.finalized = true
	return e.code, nil
}

// MaxStackDepth returns the highest operand stack height reachable in
// code, following every control-flow edge from instruction 0.
func MaxStackDepth(code []vm.Instr) int {
	if len(code) == 0 {
		return 0
	}
	heights := make([]int, len(code))
	for i := range heights {
		heights[i] = -1
	}
	max := 0
	work := []int{0}
	heights[0] = 0

	visit := func(pc, h int) {
		if pc < 0 || pc >= len(code) {
			return
		}
		if heights[pc] >= h {
			return
		}
		heights[pc] = h
		work = append(work, pc)
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := code[pc]

		h := heights[pc]
		if need := h - in.Pops(); need < 0 {
			h = 0
		} else {
			h += in.StackEffect()
		}
		if h > max {
			max = h
		}
		switch in.Op {
		case vm.OpRet, vm.OpThrow:
			continue
		case vm.OpJump:
			visit(pc+int(in.A), h)
			continue
		case vm.OpTry:
			visit(pc+int(in.A), heights[pc])
		case vm.OpJumpIfFalse, vm.OpJumpIfTrue, vm.OpWhenEnd:
			visit(pc+int(in.A), h)
		}
		visit(pc+1, h)
	}
	return max
}
