// Package vm implements the brain virtual machine.
//
// This package contains:
//   - Tagged value representation and the type registry
//   - Host function and operator registries
//   - Program and bytecode layout, disassembly and the CBOR wire format
//   - The stack interpreter with fibers, handles and a cooperative scheduler
package vm
