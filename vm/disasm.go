package vm

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a human-readable listing of the whole program.
// fns may be nil; when set, host call operands are annotated with the
// function name.
func (p *BrainProgram) Disassemble(fns *FunctionRegistry) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; Brain Bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; Entry page: %d\n", p.EntryPoint))

	if len(p.VariableNames) > 0 {
		sb.WriteString(fmt.Sprintf("; Variables (%d): %s\n", len(p.VariableNames), strings.Join(p.VariableNames, ", ")))
	}
	sb.WriteString("\n")

	// Constants
	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range p.Constants {
			display := c.String()
			// Truncate long values for readability
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
		sb.WriteString("\n")
	}

	// Pages
	for _, page := range p.Pages {
		sb.WriteString(fmt.Sprintf("; Page %d %q (id %s) roots=%v\n", page.Index, page.Name, page.ID, page.RootRules))
		for _, site := range page.HostCallSites {
			sb.WriteString(fmt.Sprintf(";   site %d -> %s\n", site.CallSiteID, hostName(fns, site.FnID)))
		}
	}
	if len(p.Pages) > 0 {
		sb.WriteString("\n")
	}

	paths := make(map[int]string, len(p.RuleIndex))
	for path, id := range p.RuleIndex {
		paths[id] = path
	}

	for id := range p.Functions {
		sb.WriteString(p.DisassembleFunction(id, fns, paths[id]))
		sb.WriteString("\n")
	}
	return sb.String()
}

// DisassembleFunction lists one function.
func (p *BrainProgram) DisassembleFunction(id int, fns *FunctionRegistry, path string) string {
	var sb strings.Builder
	fn := p.Functions[id]

	name := fn.Name
	if path != "" {
		name = fmt.Sprintf("%s [%s]", name, path)
	}
	sb.WriteString(fmt.Sprintf("; === fn%d %s ===\n", id, name))
	if fn.MaxStackDepth > 0 {
		sb.WriteString(fmt.Sprintf("; max stack: %d\n", fn.MaxStackDepth))
	}

	for pc, in := range fn.Code {
		line := in.String()
		if note := p.annotate(pc, in, fns); note != "" {
			sb.WriteString(fmt.Sprintf("%04d  %-28s ; %s\n", pc, line, note))
		} else {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", pc, line))
		}
	}
	return sb.String()
}

func (p *BrainProgram) annotate(pc int, in Instr, fns *FunctionRegistry) string {
	if in.Op.IsJump() {
		return fmt.Sprintf("-> %04d", pc+int(in.A))
	}
	switch in.Op {
	case OpPushConst, OpMapNew:
		if int(in.A) < len(p.Constants) {
			s := p.Constants[in.A].String()
			if len(s) > 20 {
				s = s[:17] + "..."
			}
			return s
		}
	case OpLoadVar, OpStoreVar:
		if int(in.A) < len(p.VariableNames) {
			return "$" + p.VariableNames[in.A]
		}
	case OpCall:
		if int(in.A) < len(p.Functions) {
			return p.Functions[in.A].Name
		}
	case OpHostCall, OpHostCallAsync, OpHostCallArgs, OpHostCallArgsAsync:
		s := hostName(fns, int(in.A))
		if in.C != 0 {
			s += fmt.Sprintf(" site=%d", in.C)
		}
		return s
	}
	return ""
}

func hostName(fns *FunctionRegistry, id int) string {
	if fns != nil {
		if fn, ok := fns.Get(id); ok {
			return fn.Name
		}
	}
	return fmt.Sprintf("host#%d", id)
}

// RulePaths returns the rule paths of the program, sorted.
func (p *BrainProgram) RulePaths() []string {
	paths := make([]string, 0, len(p.RuleIndex))
	for path := range p.RuleIndex {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
