package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindVoid
	KindNil
	KindBoolean
	KindNumber
	KindString
	KindEnum
	KindList
	KindMap
	KindStruct

	// VM-internal variants. They never appear in compiled constants.
	KindHandle
	KindErr
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindVoid:    "void",
	KindNil:     "nil",
	KindBoolean: "boolean",
	KindNumber:  "number",
	KindString:  "string",
	KindEnum:    "enum",
	KindList:    "list",
	KindMap:     "map",
	KindStruct:  "struct",
	KindHandle:  "handle",
	KindErr:     "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsPrimitive reports whether values of this kind are immutable scalars.
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindVoid, KindNil, KindBoolean, KindNumber, KindString, KindEnum:
		return true
	}
	return false
}

// Value is the closed tagged union manipulated by compiled brain code.
//
// Value is small and comparable. Lists, maps and structs live behind
// pointers, so copying a Value that holds one of them aliases the
// container: a mutation through one copy is visible through all of them.
type Value struct {
	kind Kind
	num  float64 // Number payload, Boolean as 0/1, Handle id
	str  string  // String payload, Enum key
	typ  TypeID  // Enum/List/Map/Struct type
	ref  any     // *List, *Map, *Struct, *ErrorValue
}

// List is the backing store of a List value.
type List struct {
	Items []Value
}

// Map is the backing store of a Map value. Keys are primitive values and
// keep their insertion order.
type Map struct {
	keys    []Value
	entries map[Value]Value
}

// Struct is the backing store of a Struct value. Types that register
// StructHooks may ignore Fields and keep their state in Native.
type Struct struct {
	Fields map[string]Value
	Native any
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

var (
	Unknown = Value{kind: KindUnknown}
	Void    = Value{kind: KindVoid}
	Nil     = Value{kind: KindNil}
	True    = Value{kind: KindBoolean, num: 1}
	False   = Value{kind: KindBoolean}
)

// Bool returns the Boolean value for b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number returns a Number value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Int is shorthand for Number(float64(n)).
func Int(n int) Value {
	return Value{kind: KindNumber, num: float64(n)}
}

// String returns a String value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Enum returns an Enum value of the given type.
func Enum(t TypeID, key string) Value {
	return Value{kind: KindEnum, typ: t, str: key}
}

// NewList returns a fresh List value holding items.
func NewList(t TypeID, items ...Value) Value {
	l := &List{Items: append([]Value(nil), items...)}
	return Value{kind: KindList, typ: t, ref: l}
}

// NewMap returns a fresh, empty Map value.
func NewMap(t TypeID) Value {
	return Value{kind: KindMap, typ: t, ref: &Map{entries: make(map[Value]Value)}}
}

// NewStruct returns a fresh Struct value with the given fields.
func NewStruct(t TypeID, fields map[string]Value) Value {
	s := &Struct{Fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		s.Fields[k] = v
	}
	return Value{kind: KindStruct, typ: t, ref: s}
}

// NewNativeStruct returns a Struct value wrapping a native handle.
func NewNativeStruct(t TypeID, native any) Value {
	return Value{kind: KindStruct, typ: t, ref: &Struct{Fields: map[string]Value{}, Native: native}}
}

// HandleValue wraps an async handle id.
func HandleValue(id HandleID) Value {
	return Value{kind: KindHandle, num: float64(id)}
}

// ErrValue wraps a runtime error.
func ErrValue(e *ErrorValue) Value {
	return Value{kind: KindErr, ref: e}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Type returns the TypeID of the value. Primitive kinds map to their
// built-in type ids.
func (v Value) Type() TypeID {
	switch v.kind {
	case KindVoid:
		return TypeVoid
	case KindNil:
		return TypeNil
	case KindBoolean:
		return TypeBoolean
	case KindNumber:
		return TypeNumber
	case KindString:
		return TypeString
	case KindEnum, KindList, KindMap, KindStruct:
		return v.typ
	}
	return TypeUnknown
}

func (v Value) IsNil() bool     { return v.kind == KindNil }
func (v Value) IsVoid() bool    { return v.kind == KindVoid }
func (v Value) IsNumber() bool  { return v.kind == KindNumber }
func (v Value) IsString() bool  { return v.kind == KindString }
func (v Value) IsBoolean() bool { return v.kind == KindBoolean }
func (v Value) IsHandle() bool  { return v.kind == KindHandle }
func (v Value) IsErr() bool     { return v.kind == KindErr }

// AsNumber returns the numeric payload and whether v is a Number.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean payload and whether v is a Boolean.
func (v Value) AsBool() (bool, bool) {
	return v.num != 0, v.kind == KindBoolean
}

// AsString returns the string payload and whether v is a String.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// EnumKey returns the key of an Enum value.
func (v Value) EnumKey() string {
	if v.kind != KindEnum {
		return ""
	}
	return v.str
}

// List returns the list backing store, or nil.
func (v Value) List() *List {
	l, _ := v.ref.(*List)
	return l
}

// Map returns the map backing store, or nil.
func (v Value) Map() *Map {
	m, _ := v.ref.(*Map)
	return m
}

// Struct returns the struct backing store, or nil.
func (v Value) Struct() *Struct {
	s, _ := v.ref.(*Struct)
	return s
}

// Handle returns the handle id carried by v.
func (v Value) Handle() HandleID {
	if v.kind != KindHandle {
		return 0
	}
	return HandleID(v.num)
}

// Err returns the runtime error carried by v, or nil.
func (v Value) Err() *ErrorValue {
	e, _ := v.ref.(*ErrorValue)
	return e
}

// Truthy implements the WHEN_END and conditional jump test. Boolean false,
// nil, void, unknown and errors are falsy; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBoolean:
		return v.num != 0
	case KindNil, KindVoid, KindUnknown, KindErr:
		return false
	}
	return true
}

// Equal compares two values. Primitives compare by kind and payload,
// containers by identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindList, KindMap, KindStruct, KindErr:
		return a.ref == b.ref
	}
	return a == b
}

// DeepCopy returns a copy of v in which every reachable list, map and
// struct is freshly allocated. Native struct handles are shared.
func (v Value) DeepCopy() Value {
	switch v.kind {
	case KindList:
		src := v.List()
		items := make([]Value, len(src.Items))
		for i, it := range src.Items {
			items[i] = it.DeepCopy()
		}
		return Value{kind: KindList, typ: v.typ, ref: &List{Items: items}}
	case KindMap:
		src := v.Map()
		out := NewMap(v.typ)
		dst := out.Map()
		for _, k := range src.keys {
			dst.Set(k, src.entries[k].DeepCopy())
		}
		return out
	case KindStruct:
		src := v.Struct()
		s := &Struct{Fields: make(map[string]Value, len(src.Fields)), Native: src.Native}
		for k, f := range src.Fields {
			s.Fields[k] = f.DeepCopy()
		}
		return Value{kind: KindStruct, typ: v.typ, ref: s}
	}
	return v
}

// String renders the value for logs and the CLI.
func (v Value) String() string {
	switch v.kind {
	case KindUnknown:
		return "<unknown>"
	case KindVoid:
		return "<void>"
	case KindNil:
		return "nil"
	case KindBoolean:
		return strconv.FormatBool(v.num != 0)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindEnum:
		return fmt.Sprintf("%s.%s", v.typ, v.str)
	case KindList:
		parts := make([]string, len(v.List().Items))
		for i, it := range v.List().Items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		m := v.Map()
		parts := make([]string, 0, len(m.keys))
		for _, k := range m.keys {
			parts = append(parts, k.String()+": "+m.entries[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindStruct:
		return fmt.Sprintf("<%s>", v.typ)
	case KindHandle:
		return fmt.Sprintf("<handle %d>", HandleID(v.num))
	case KindErr:
		return fmt.Sprintf("<error %v>", v.Err())
	}
	return "<?>"
}

// ---------------------------------------------------------------------------
// Container operations
// ---------------------------------------------------------------------------

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }

// Get looks up key.
func (m *Map) Get(key Value) (Value, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Set stores value under key. Only primitive keys are accepted.
func (m *Map) Set(key, value Value) bool {
	if !key.kind.IsPrimitive() {
		return false
	}
	if _, exists := m.entries[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.entries[key] = value
	return true
}

// Delete removes key.
func (m *Map) Delete(key Value) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []Value {
	return append([]Value(nil), m.keys...)
}

// Slot returns the value stored under an integer slot id, the key shape
// used by call-site argument maps.
func (m *Map) Slot(slotID int) (Value, bool) {
	return m.Get(Int(slotID))
}
