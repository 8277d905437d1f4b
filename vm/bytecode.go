package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode uint8

// Stack Operations
const (
	OpNOP       Opcode = 0x00 // no operation
	OpPushConst Opcode = 0x01 // push constant A (complex constants are deep-copied)
	OpPop       Opcode = 0x02 // discard top of stack
	OpDup       Opcode = 0x03 // duplicate top of stack
)

// Variable Operations
const (
	OpLoadVar  Opcode = 0x10 // push variable A (resolved rule locals -> ancestors -> globals)
	OpStoreVar Opcode = 0x11 // pop into variable A
)

// Control Flow
const (
	OpJump        Opcode = 0x20 // pc += A
	OpJumpIfFalse Opcode = 0x21 // pop, pc += A if falsy
	OpJumpIfTrue  Opcode = 0x22 // pop, pc += A if truthy
	OpCall        Opcode = 0x23 // call function A with B arguments
	OpRet         Opcode = 0x24 // return top of frame (or void) to the caller
	OpYield       Opcode = 0x25 // suspend until the next tick
)

// Host Calls
const (
	OpHostCall          Opcode = 0x30 // pop B raw args, call sync fn A, call site C
	OpHostCallAsync     Opcode = 0x31 // pop B raw args, call async fn A, push handle
	OpHostCallArgs      Opcode = 0x32 // pop args map, call sync fn A, call site C
	OpHostCallArgsAsync Opcode = 0x33 // pop args map, call async fn A, push handle
	OpAwait             Opcode = 0x34 // pop handle, push its result or suspend
)

// Exceptions
const (
	OpTry    Opcode = 0x40 // install handler, catch at pc + A
	OpEndTry Opcode = 0x41 // remove innermost handler
	OpThrow  Opcode = 0x42 // pop value and throw it
)

// Rule Boundaries
const (
	OpWhenStart Opcode = 0x50 // begin predicate
	OpWhenEnd   Opcode = 0x51 // pop predicate, pc += A if falsy
	OpDoStart   Opcode = 0x52 // begin action
	OpDoEnd     Opcode = 0x53 // pop action result
)

// Containers
const (
	OpMapNew   Opcode = 0x60 // push new map of type named by constant A
	OpMapSet   Opcode = 0x61 // pop value, key; set on map at top of stack
	OpGetField Opcode = 0x62 // pop name, object; push field
	OpSetField Opcode = 0x63 // pop value, name, object; set field; push value
)

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instr is one decoded instruction: an opcode plus up to three integer
// operands (constant, variable or function indices, or relative offsets).
type Instr struct {
	Op Opcode `cbor:"1,keyasint"`
	A  int32  `cbor:"2,keyasint,omitempty"`
	B  int32  `cbor:"3,keyasint,omitempty"`
	C  int32  `cbor:"4,keyasint,omitempty"`
}

func (in Instr) String() string {
	info := in.Op.Info()
	switch info.Operands {
	case 0:
		return info.Name
	case 1:
		return fmt.Sprintf("%s %d", info.Name, in.A)
	case 2:
		return fmt.Sprintf("%s %d %d", info.Name, in.A, in.B)
	}
	return fmt.Sprintf("%s %d %d %d", info.Name, in.A, in.B, in.C)
}

// Operand field selectors, used by the emitter's label fixups.
type Field uint8

const (
	FieldA Field = iota
	FieldB
	FieldC
)

// Operand returns the operand stored in field.
func (in *Instr) Operand(f Field) int32 {
	switch f {
	case FieldB:
		return in.B
	case FieldC:
		return in.C
	}
	return in.A
}

// SetOperand patches the operand stored in field.
func (in *Instr) SetOperand(f Field, v int32) {
	switch f {
	case FieldB:
		in.B = v
	case FieldC:
		in.C = v
	default:
		in.A = v
	}
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Variable marks a stack effect that depends on the instruction's operands.
const Variable = -1

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string // human-readable name
	Operands int    // number of meaningful operands
	Pops     int    // values popped (Variable = operand dependent)
	Pushes   int    // values pushed
	Jump     bool   // operand A is a relative pc offset
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:       {"NOP", 0, 0, 0, false},
	OpPushConst: {"PUSH_CONST", 1, 0, 1, false},
	OpPop:       {"POP", 0, 1, 0, false},
	OpDup:       {"DUP", 0, 1, 2, false},

	OpLoadVar:  {"LOAD_VAR", 1, 0, 1, false},
	OpStoreVar: {"STORE_VAR", 1, 1, 0, false},

	OpJump:        {"JMP", 1, 0, 0, true},
	OpJumpIfFalse: {"JMP_IF_FALSE", 1, 1, 0, true},
	OpJumpIfTrue:  {"JMP_IF_TRUE", 1, 1, 0, true},
	OpCall:        {"CALL", 2, Variable, 0, false}, // callee's RET pushes the result
	OpRet:         {"RET", 0, 0, 0, false},
	OpYield:       {"YIELD", 0, 0, 0, false},

	OpHostCall:          {"HOST_CALL", 3, Variable, 1, false},
	OpHostCallAsync:     {"HOST_CALL_ASYNC", 3, Variable, 1, false},
	OpHostCallArgs:      {"HOST_CALL_ARGS", 3, 1, 1, false},
	OpHostCallArgsAsync: {"HOST_CALL_ARGS_ASYNC", 3, 1, 1, false},
	OpAwait:             {"AWAIT", 0, 1, 1, false},

	OpTry:    {"TRY", 1, 0, 0, true},
	OpEndTry: {"END_TRY", 0, 0, 0, false},
	OpThrow:  {"THROW", 0, 1, 0, false},

	OpWhenStart: {"WHEN_START", 0, 0, 0, false},
	OpWhenEnd:   {"WHEN_END", 1, 1, 0, true},
	OpDoStart:   {"DO_START", 0, 0, 0, false},
	OpDoEnd:     {"DO_END", 0, 1, 0, false},

	OpMapNew:   {"MAP_NEW", 1, 0, 1, false},
	OpMapSet:   {"MAP_SET", 0, 2, 0, false},
	OpGetField: {"GET_FIELD", 0, 2, 1, false},
	OpSetField: {"SET_FIELD", 0, 3, 1, false},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether operand A is a relative jump offset that the
// emitter patches through a label fixup.
func (op Opcode) IsJump() bool {
	return op.Info().Jump
}

// Pops returns how many operands in executes with.
func (in Instr) Pops() int {
	info := in.Op.Info()
	if info.Pops != Variable {
		return info.Pops
	}
	return int(in.B)
}

// StackEffect returns the net change in operand stack height produced by
// in, as seen by the code that follows it in the same function.
func (in Instr) StackEffect() int {
	pushes := in.Op.Info().Pushes
	if in.Op == OpCall {
		pushes = 1
	}
	return pushes - in.Pops()
}

// AllOpcodes returns every defined opcode. Useful for testing that all
// opcodes have metadata.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeTable))
	for op := range opcodeTable {
		ops = append(ops, op)
	}
	return ops
}
