package compiler

import (
	"strconv"

	"github.com/chazu/brain/vm"
)

// ConstantPool deduplicates the constants of one program. Primitive
// values share a slot; lists, maps and structs always get their own.
type ConstantPool struct {
	values []vm.Value
	index  map[string]int
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{index: make(map[string]int)}
}

// Add returns the slot of v, appending it if no equal primitive exists.
func (p *ConstantPool) Add(v vm.Value) int {
	if !v.Kind().IsPrimitive() {
		p.values = append(p.values, v)
		return len(p.values) - 1
	}
	key := constKey(v)
	if i, ok := p.index[key]; ok {
		return i
	}
	p.values = append(p.values, v)
	i := len(p.values) - 1
	p.index[key] = i
	return i
}

// Values returns the pool contents in slot order.
func (p *ConstantPool) Values() []vm.Value {
	out := make([]vm.Value, len(p.values))
	copy(out, p.values)
	return out
}

// Len returns the number of slots.
func (p *ConstantPool) Len() int { return len(p.values) }

// Reset empties the pool.
func (p *ConstantPool) Reset() {
	p.values = p.values[:0]
	p.index = make(map[string]int)
}

func constKey(v vm.Value) string {
	switch v.Kind() {
	case vm.KindNumber:
		n, _ := v.AsNumber()
		return "n|" + strconv.FormatFloat(n, 'g', -1, 64)
	case vm.KindString:
		s, _ := v.AsString()
		return "s|" + s
	case vm.KindBoolean:
		b, _ := v.AsBool()
		return "b|" + strconv.FormatBool(b)
	case vm.KindEnum:
		return "e|" + string(v.Type()) + "|" + v.EnumKey()
	}
	return v.Kind().String()
}
