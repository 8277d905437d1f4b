package vm

import (
	"fmt"
)

// ProgramVersion is the current BrainProgram format version. Increment it
// on any incompatible change to opcodes, operand meaning or layout.
const ProgramVersion = 1

// FunctionBytecode is the compiled body of one rule.
type FunctionBytecode struct {
	Name          string  `cbor:"1,keyasint"`
	Code          []Instr `cbor:"2,keyasint"`
	NumParams     int     `cbor:"3,keyasint,omitempty"`
	MaxStackDepth int     `cbor:"4,keyasint,omitempty"`
}

// HostCallSite is one compiled call of a host function.
type HostCallSite struct {
	FnID       int `cbor:"1,keyasint"`
	CallSiteID int `cbor:"2,keyasint"`
}

// PageMetadata describes one page: its root rules and every host call
// site compiled into the page's rules (children included).
type PageMetadata struct {
	Index         int            `cbor:"1,keyasint"`
	ID            string         `cbor:"2,keyasint"`
	Name          string         `cbor:"3,keyasint"`
	RootRules     []int          `cbor:"4,keyasint"`
	HostCallSites []HostCallSite `cbor:"5,keyasint"`
}

// RuleMetadata links a rule's function back to its place in the brain.
type RuleMetadata struct {
	Path   string `cbor:"1,keyasint"`
	FuncID int    `cbor:"2,keyasint"`
	Page   int    `cbor:"3,keyasint"`
	Parent int    `cbor:"4,keyasint"` // parent rule's FuncID, -1 for root rules
	Locals []int  `cbor:"5,keyasint,omitempty"`
}

// BrainProgram is the immutable compiled unit consumed by the VM.
// EntryPoint is the index of the page activated when a brain starts.
type BrainProgram struct {
	Version       int                `cbor:"1,keyasint"`
	Functions     []FunctionBytecode `cbor:"2,keyasint"`
	Constants     []Value            `cbor:"3,keyasint"`
	VariableNames []string           `cbor:"4,keyasint"`
	EntryPoint    int                `cbor:"5,keyasint"`
	RuleIndex     map[string]int     `cbor:"6,keyasint"`
	Pages         []PageMetadata     `cbor:"7,keyasint"`
	Rules         []RuleMetadata     `cbor:"8,keyasint"`
}

// CheckVersion fails when p was produced for a different VM format.
func (p *BrainProgram) CheckVersion() error {
	if p.Version != ProgramVersion {
		return fmt.Errorf("program version %d is incompatible with VM version %d", p.Version, ProgramVersion)
	}
	return nil
}

// Validate checks the structural invariants the interpreter relies on.
func (p *BrainProgram) Validate() error {
	if err := p.CheckVersion(); err != nil {
		return err
	}
	if len(p.Pages) > 0 && (p.EntryPoint < 0 || p.EntryPoint >= len(p.Pages)) {
		return fmt.Errorf("entry point %d out of range (%d pages)", p.EntryPoint, len(p.Pages))
	}
	for fnID, fn := range p.Functions {
		for pc, in := range fn.Code {
			switch in.Op {
			case OpPushConst, OpMapNew:
				if int(in.A) < 0 || int(in.A) >= len(p.Constants) {
					return fmt.Errorf("fn%d@%d: constant %d out of range", fnID, pc, in.A)
				}
			case OpLoadVar, OpStoreVar:
				if int(in.A) < 0 || int(in.A) >= len(p.VariableNames) {
					return fmt.Errorf("fn%d@%d: variable %d out of range", fnID, pc, in.A)
				}
			case OpCall:
				if int(in.A) < 0 || int(in.A) >= len(p.Functions) {
					return fmt.Errorf("fn%d@%d: function %d out of range", fnID, pc, in.A)
				}
			}
			if in.Op.IsJump() {
				target := pc + int(in.A)
				if target < 0 || target > len(fn.Code) {
					return fmt.Errorf("fn%d@%d: jump target %d out of range", fnID, pc, target)
				}
			}
		}
	}
	for _, page := range p.Pages {
		for _, fnID := range page.RootRules {
			if fnID < 0 || fnID >= len(p.Functions) {
				return fmt.Errorf("page %q: root rule %d out of range", page.Name, fnID)
			}
		}
	}
	return nil
}

// VariableID returns the id of a named variable.
func (p *BrainProgram) VariableID(name string) (int, bool) {
	for i, n := range p.VariableNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// PageIndex resolves a page by id or name.
func (p *BrainProgram) PageIndex(key string) (int, bool) {
	for _, page := range p.Pages {
		if page.ID == key || page.Name == key {
			return page.Index, true
		}
	}
	return 0, false
}

// Rule returns the metadata of the rule compiled into funcID.
func (p *BrainProgram) Rule(funcID int) (RuleMetadata, bool) {
	for _, r := range p.Rules {
		if r.FuncID == funcID {
			return r, true
		}
	}
	return RuleMetadata{}, false
}
