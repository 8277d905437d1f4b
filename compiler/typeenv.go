package compiler

import (
	"github.com/chazu/brain/vm"
)

// TypeInfo is the type side-table entry of one node.
type TypeInfo struct {
	Inferred   vm.TypeID
	Expected   vm.TypeID
	Overload   *vm.OpOverload  // resolved operator overload
	Conversion []vm.Conversion // applied after the node is evaluated
	IsLVal     bool
}

// TypeEnv maps node ids to type information for one compilation.
type TypeEnv struct {
	infos map[NodeID]*TypeInfo
}

// NewTypeEnv returns an empty environment.
func NewTypeEnv() *TypeEnv {
	return &TypeEnv{infos: make(map[NodeID]*TypeInfo)}
}

// Get returns the entry for id, creating it with Unknown types on first
// use. Every visited node therefore has exactly one entry.
func (e *TypeEnv) Get(id NodeID) *TypeInfo {
	info, ok := e.infos[id]
	if !ok {
		info = &TypeInfo{Inferred: vm.TypeUnknown, Expected: vm.TypeUnknown}
		e.infos[id] = info
	}
	return info
}

// Lookup returns the entry for id without creating one.
func (e *TypeEnv) Lookup(id NodeID) (*TypeInfo, bool) {
	info, ok := e.infos[id]
	return info, ok
}

// Len returns the number of entries.
func (e *TypeEnv) Len() int {
	return len(e.infos)
}
