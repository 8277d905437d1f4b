package vm

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical encoding so the same program always encodes
// to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Program files
// ---------------------------------------------------------------------------

// ProgramMagic tags encoded programs.
const ProgramMagic = "brain-bbc"

type programFile struct {
	Magic   string        `cbor:"1,keyasint"`
	Program *BrainProgram `cbor:"2,keyasint"`
}

// MarshalProgram serializes a program to CBOR bytes.
func MarshalProgram(p *BrainProgram) ([]byte, error) {
	data, err := cborEncMode.Marshal(programFile{Magic: ProgramMagic, Program: p})
	if err != nil {
		return nil, fmt.Errorf("vm: marshal program: %w", err)
	}
	return data, nil
}

// UnmarshalProgram deserializes a program and checks that its version
// matches this VM.
func UnmarshalProgram(data []byte) (*BrainProgram, error) {
	var pf programFile
	if err := cbor.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("vm: unmarshal program: %w", err)
	}
	if pf.Magic != ProgramMagic || pf.Program == nil {
		return nil, fmt.Errorf("vm: not a brain program")
	}
	if err := pf.Program.CheckVersion(); err != nil {
		return nil, fmt.Errorf("vm: %w", err)
	}
	return pf.Program, nil
}

// WriteProgram encodes p to w.
func WriteProgram(w io.Writer, p *BrainProgram) error {
	data, err := MarshalProgram(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadProgram decodes a program from r.
func ReadProgram(r io.Reader) (*BrainProgram, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vm: read program: %w", err)
	}
	return UnmarshalProgram(data)
}

// ---------------------------------------------------------------------------
// Value encoding
// ---------------------------------------------------------------------------

type wireValue struct {
	Kind   Kind             `cbor:"1,keyasint"`
	Num    float64          `cbor:"2,keyasint,omitempty"`
	Str    string           `cbor:"3,keyasint,omitempty"`
	Type   TypeID           `cbor:"4,keyasint,omitempty"`
	Items  []Value          `cbor:"5,keyasint,omitempty"`
	Keys   []Value          `cbor:"6,keyasint,omitempty"`
	Fields map[string]Value `cbor:"7,keyasint,omitempty"`
}

// MarshalCBOR encodes constants. Handles and errors only exist at run time
// and cannot be encoded; native struct state is dropped.
func (v Value) MarshalCBOR() ([]byte, error) {
	w := wireValue{Kind: v.kind, Num: v.num, Str: v.str, Type: v.typ}
	switch v.kind {
	case KindList:
		w.Items = v.List().Items
	case KindMap:
		m := v.Map()
		w.Keys = m.keys
		w.Items = make([]Value, len(m.keys))
		for i, k := range m.keys {
			w.Items[i] = m.entries[k]
		}
	case KindStruct:
		w.Fields = v.Struct().Fields
	case KindHandle, KindErr:
		return nil, fmt.Errorf("vm: cannot encode %s value", v.kind)
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalCBOR decodes a value written by MarshalCBOR.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindList:
		*v = NewList(w.Type, w.Items...)
	case KindMap:
		if len(w.Keys) != len(w.Items) {
			return fmt.Errorf("vm: map with %d keys and %d values", len(w.Keys), len(w.Items))
		}
		*v = NewMap(w.Type)
		for i, k := range w.Keys {
			if !v.Map().Set(k, w.Items[i]) {
				return fmt.Errorf("vm: invalid map key %v", k)
			}
		}
	case KindStruct:
		*v = NewStruct(w.Type, w.Fields)
	case KindHandle, KindErr:
		return fmt.Errorf("vm: cannot decode %s value", w.Kind)
	default:
		if w.Kind > KindErr {
			return fmt.Errorf("vm: unknown value kind %d", w.Kind)
		}
		*v = Value{kind: w.Kind, num: w.Num, str: w.Str, typ: w.Type}
	}
	return nil
}
