package vm

import (
	"fmt"
	"sort"
	"sync"
)

// TypeID identifies a registered type. Primitive ids are fixed; composite
// ids are derived from the type's shape or name at registration.
type TypeID string

// Built-in type ids.
const (
	TypeUnknown TypeID = "unknown"
	TypeVoid    TypeID = "void"
	TypeNil     TypeID = "nil"
	TypeBoolean TypeID = "boolean"
	TypeNumber  TypeID = "number"
	TypeString  TypeID = "string"

	// TypeArgs is the type of the slot-keyed argument map built at every
	// actuator and sensor call site.
	TypeArgs TypeID = "args"
)

// FieldDef declares one struct field.
type FieldDef struct {
	Name string
	Type TypeID
}

// StructHooks let a struct type keep its state in a native representation.
// GET_FIELD and SET_FIELD consult the hooks before the plain field map.
type StructHooks struct {
	// Get returns the field value; ok=false falls back to the field map.
	Get func(s *Struct, field string) (Value, bool)
	// Set stores the field value; false falls back to the field map.
	Set func(s *Struct, field string, v Value) bool
	// Snapshot renders the native state as a plain value (for logging).
	Snapshot func(s *Struct) Value
}

// TypeDef is an immutable registered type.
type TypeDef struct {
	ID     TypeID
	Kind   Kind
	Name   string
	Keys   []string   // enum keys
	Elem   TypeID     // list/map element type
	Fields []FieldDef // struct fields
	Hooks  *StructHooks
}

// Field returns the declared field with the given name.
func (d *TypeDef) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// HasKey reports whether an enum type declares key.
func (d *TypeDef) HasKey(key string) bool {
	for _, k := range d.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// TypeRegistry holds every type known to a compilation and its VM.
type TypeRegistry struct {
	mu     sync.RWMutex
	types  map[TypeID]*TypeDef
	sealed bool
}

// NewTypeRegistry returns a registry preloaded with the primitive types.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{types: make(map[TypeID]*TypeDef)}
	for _, p := range []struct {
		id   TypeID
		kind Kind
	}{
		{TypeUnknown, KindUnknown},
		{TypeVoid, KindVoid},
		{TypeNil, KindNil},
		{TypeBoolean, KindBoolean},
		{TypeNumber, KindNumber},
		{TypeString, KindString},
		{TypeArgs, KindMap},
	} {
		r.types[p.id] = &TypeDef{ID: p.id, Kind: p.kind, Name: string(p.id)}
	}
	return r
}

// Get returns the definition for id.
func (r *TypeRegistry) Get(id TypeID) (*TypeDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[id]
	return d, ok
}

// IDs returns every registered type id, sorted.
func (r *TypeRegistry) IDs() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]TypeID, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RegisterEnum registers an enum type with the given keys.
func (r *TypeRegistry) RegisterEnum(name string, keys ...string) (TypeID, error) {
	return r.register(&TypeDef{ID: TypeID(name), Kind: KindEnum, Name: name, Keys: append([]string(nil), keys...)})
}

// RegisterList registers the list type with the given element type.
func (r *TypeRegistry) RegisterList(elem TypeID) (TypeID, error) {
	id := TypeID(fmt.Sprintf("list<%s>", elem))
	return r.register(&TypeDef{ID: id, Kind: KindList, Name: string(id), Elem: elem})
}

// RegisterMap registers the map type with the given value type.
func (r *TypeRegistry) RegisterMap(elem TypeID) (TypeID, error) {
	id := TypeID(fmt.Sprintf("map<%s>", elem))
	return r.register(&TypeDef{ID: id, Kind: KindMap, Name: string(id), Elem: elem})
}

// RegisterStruct registers a struct shape. hooks may be nil.
func (r *TypeRegistry) RegisterStruct(name string, fields []FieldDef, hooks *StructHooks) (TypeID, error) {
	return r.register(&TypeDef{
		ID:     TypeID(name),
		Kind:   KindStruct,
		Name:   name,
		Fields: append([]FieldDef(nil), fields...),
		Hooks:  hooks,
	})
}

func (r *TypeRegistry) register(def *TypeDef) (TypeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return "", fmt.Errorf("types: registry sealed, cannot register %q", def.ID)
	}
	if existing, ok := r.types[def.ID]; ok {
		if sameShape(existing, def) {
			return existing.ID, nil
		}
		return "", fmt.Errorf("types: %q already registered with a different shape", def.ID)
	}
	r.types[def.ID] = def
	return def.ID, nil
}

func (r *TypeRegistry) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func sameShape(a, b *TypeDef) bool {
	if a.Kind != b.Kind || a.Elem != b.Elem || len(a.Keys) != len(b.Keys) || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Keys {
		if a.Keys[i] != b.Keys[i] {
			return false
		}
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}
