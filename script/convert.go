package script

import (
	"math"
	"sort"
	"strconv"

	"github.com/d5/tengo/v2"

	"github.com/chazu/brain/vm"
)

// maxDepth bounds container conversion; deeper values become undefined.
const maxDepth = 32

// ToObject converts a brain value to a tengo object. Numbers become
// floats, enums their key, structs maps of their fields, and void, nil,
// unknown and handles become undefined.
func ToObject(v vm.Value) tengo.Object {
	return toObject(v, 0)
}

func toObject(v vm.Value, depth int) tengo.Object {
	if depth > maxDepth {
		return tengo.UndefinedValue
	}
	switch v.Kind() {
	case vm.KindBoolean:
		if b, _ := v.AsBool(); b {
			return tengo.TrueValue
		}
		return tengo.FalseValue
	case vm.KindNumber:
		n, _ := v.AsNumber()
		return &tengo.Float{Value: n}
	case vm.KindString:
		s, _ := v.AsString()
		return &tengo.String{Value: s}
	case vm.KindEnum:
		return &tengo.String{Value: v.EnumKey()}
	case vm.KindList:
		items := v.List().Items
		arr := make([]tengo.Object, len(items))
		for i, it := range items {
			arr[i] = toObject(it, depth+1)
		}
		return &tengo.Array{Value: arr}
	case vm.KindMap:
		m := v.Map()
		out := make(map[string]tengo.Object, m.Len())
		for _, k := range m.Keys() {
			val, _ := m.Get(k)
			out[keyString(k)] = toObject(val, depth+1)
		}
		return &tengo.Map{Value: out}
	case vm.KindStruct:
		out := make(map[string]tengo.Object)
		for name, f := range v.Struct().Fields {
			out[name] = toObject(f, depth+1)
		}
		return &tengo.Map{Value: out}
	case vm.KindErr:
		return &tengo.Error{Value: &tengo.String{Value: v.Err().Error()}}
	}
	return tengo.UndefinedValue
}

// keyString renders a primitive map key. Integral numbers print without a
// fraction so slot 3 is "3".
func keyString(k vm.Value) string {
	if n, ok := k.AsNumber(); ok {
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	if s, ok := k.AsString(); ok {
		return s
	}
	if k.Kind() == vm.KindEnum {
		return k.EnumKey()
	}
	return k.String()
}

// FromObject converts a tengo object to a brain value. Arrays and maps
// become untyped lists and string-keyed maps; undefined becomes nil.
// Script errors are returned as error values.
func FromObject(o tengo.Object) vm.Value {
	return fromObject(o, 0)
}

func fromObject(o tengo.Object, depth int) vm.Value {
	if depth > maxDepth {
		return vm.Nil
	}
	switch o := o.(type) {
	case nil, *tengo.Undefined:
		return vm.Nil
	case *tengo.Bool:
		return vm.Bool(!o.IsFalsy())
	case *tengo.Int:
		return vm.Number(float64(o.Value))
	case *tengo.Float:
		return vm.Number(o.Value)
	case *tengo.Char:
		return vm.String(string(o.Value))
	case *tengo.String:
		return vm.String(o.Value)
	case *tengo.Array:
		return listOf(o.Value, depth)
	case *tengo.ImmutableArray:
		return listOf(o.Value, depth)
	case *tengo.Map:
		return mapOf(o.Value, depth)
	case *tengo.ImmutableMap:
		return mapOf(o.Value, depth)
	case *tengo.Error:
		msg := "error"
		if o.Value != nil {
			msg, _ = tengo.ToString(o.Value)
		}
		return vm.ErrValue(vm.NewError(vm.ErrScript, "%s", msg))
	}
	return vm.String(o.String())
}

func listOf(objs []tengo.Object, depth int) vm.Value {
	items := make([]vm.Value, len(objs))
	for i, it := range objs {
		items[i] = fromObject(it, depth+1)
	}
	return vm.NewList(vm.TypeUnknown, items...)
}

func mapOf(objs map[string]tengo.Object, depth int) vm.Value {
	out := vm.NewMap(vm.TypeUnknown)
	m := out.Map()
	keys := make([]string, 0, len(objs))
	for k := range objs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Set(vm.String(k), fromObject(objs[k], depth+1))
	}
	return out
}
