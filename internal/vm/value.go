package vm

import (
	"math"
	"strconv"
	"strings"

	"tern/internal/errors"
)

// Kind is the closed set of runtime value kinds. Operator and container
// code dispatches on it with a switch; there is no open polymorphism.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindNumber
	KindString
	KindFunction
	KindList
	KindMap
	KindSet
	KindClass
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	}
	return "unknown"
}

// Object is the header shared by every heap-resident value. The collector
// owns all Objects through the registry linked list threaded by next; the
// payload fields mirror the value kinds, exactly one is set per object.
type Object struct {
	kind       Kind
	marked     bool
	registered bool
	next       *Object

	str   string
	list  *List
	table *MapTable
	set   *SetTable
	fn    *Function
	class *Class
	inst  *Instance
}

// Value is the tagged handle passed around the interpreter. Numbers, Null
// and Undefined are immortal and carry no Object; everything else points
// into the heap.
type Value struct {
	kind Kind
	num  float64
	obj  *Object
}

var (
	Undefined = Value{kind: KindUndefined}
	Null      = Value{kind: KindNull}
)

func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

func BoolValue(b bool) Value {
	if b {
		return NumberValue(1)
	}
	return NumberValue(0)
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) Num() float64   { return v.num }
func (v Value) Str() string    { return v.obj.str }
func (v Value) List() *List    { return v.obj.list }
func (v Value) Map() *MapTable { return v.obj.table }
func (v Value) Set() *SetTable { return v.obj.set }
func (v Value) Fn() *Function  { return v.obj.fn }
func (v Value) Class() *Class  { return v.obj.class }
func (v Value) Inst() *Instance {
	return v.obj.inst
}

func (v Value) TypeName() string { return v.kind.String() }

// Truthy converts a value to a branch condition. Null, Undefined, zero and
// the empty containers are falsey.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindNumber:
		return v.num != 0
	case KindString:
		return len(v.obj.str) > 0
	case KindList:
		return v.obj.list.Len() > 0
	case KindMap:
		return v.obj.table.Len() > 0
	case KindSet:
		return v.obj.set.Len() > 0
	}
	return true
}

// Identical is pointer identity for heap values, tag+payload identity for
// the immortal kinds.
func (v Value) Identical(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	}
	return v.obj == o.obj
}

// Equal is the structural equality contract: pointwise for lists, key-set
// plus values for maps, mutual subset for sets, identity for functions,
// classes and instances.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.obj.str == b.obj.str
	case KindList:
		return a.obj.list.Equals(b.obj.list, true)
	case KindMap:
		return a.obj.table.Equals(b.obj.table)
	case KindSet:
		return a.obj.set.Equals(b.obj.set)
	}
	return a.obj == b.obj
}

// hashString is djb2, the same hash the original runtime keyed its
// identifier tables with.
func hashString(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}

// Hash agrees with Equal for the keyable kinds and signals TypeError for
// the rest.
func Hash(v Value) (uint64, error) {
	switch v.kind {
	case KindUndefined:
		return 0x9b, nil
	case KindNull:
		return 0x7f, nil
	case KindNumber:
		n := v.num
		if n == 0 {
			n = 0
		}
		return math.Float64bits(n), nil
	case KindString:
		return hashString(v.obj.str), nil
	}
	return 0, errors.NewRuntimeError(errors.TypeError, "unhashable type: %s", v.TypeName())
}

// mapKey is the comparable projection of a hashable value; Go's map
// equality on it coincides with structural equality.
type mapKey struct {
	kind Kind
	num  float64
	str  string
}

func makeKey(v Value) (mapKey, error) {
	switch v.kind {
	case KindUndefined, KindNull:
		return mapKey{kind: v.kind}, nil
	case KindNumber:
		n := v.num
		if n == 0 {
			n = 0
		}
		return mapKey{kind: KindNumber, num: n}, nil
	case KindString:
		return mapKey{kind: KindString, str: v.obj.str}, nil
	}
	return mapKey{}, errors.NewRuntimeError(errors.TypeError, "unhashable type: %s", v.TypeName())
}

// ToString renders a value for the print builtins. Containers render
// recursively with strings quoted; a container reached twice on one path
// prints as an ellipsis so cycles terminate.
func ToString(v Value) string {
	var sb strings.Builder
	stringify(&sb, v, false, nil)
	return sb.String()
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func stringify(sb *strings.Builder, v Value, quoted bool, seen map[*Object]bool) {
	switch v.kind {
	case KindUndefined:
		sb.WriteString("undefined")
	case KindNull:
		sb.WriteString("null")
	case KindNumber:
		sb.WriteString(formatNumber(v.num))
	case KindString:
		if quoted {
			sb.WriteByte('"')
			sb.WriteString(v.obj.str)
			sb.WriteByte('"')
		} else {
			sb.WriteString(v.obj.str)
		}
	case KindList:
		if seen[v.obj] {
			sb.WriteString("[...]")
			return
		}
		seen = enter(seen, v.obj)
		sb.WriteByte('[')
		for i, el := range v.obj.list.elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			stringify(sb, el, true, seen)
		}
		sb.WriteByte(']')
		delete(seen, v.obj)
	case KindMap:
		if seen[v.obj] {
			sb.WriteString("{...}")
			return
		}
		seen = enter(seen, v.obj)
		sb.WriteByte('{')
		first := true
		for _, e := range v.obj.table.entries {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			stringify(sb, e.key, true, seen)
			sb.WriteString(": ")
			stringify(sb, e.val, true, seen)
		}
		sb.WriteByte('}')
		delete(seen, v.obj)
	case KindSet:
		if seen[v.obj] {
			sb.WriteString("{...}")
			return
		}
		seen = enter(seen, v.obj)
		sb.WriteByte('{')
		first := true
		for _, el := range v.obj.set.elems {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			stringify(sb, el, true, seen)
		}
		sb.WriteByte('}')
		delete(seen, v.obj)
	case KindFunction:
		fn := v.obj.fn
		if fn.Builtin != nil {
			sb.WriteString("<builtin fn " + fn.Name + ">")
		} else {
			sb.WriteString("<fn " + fn.Name + ">")
		}
	case KindClass:
		sb.WriteString("<class " + v.obj.class.Name + ">")
	case KindInstance:
		sb.WriteString("<" + v.obj.inst.ClassOf().Name + " instance>")
	}
}

func enter(seen map[*Object]bool, o *Object) map[*Object]bool {
	if seen == nil {
		seen = make(map[*Object]bool)
	}
	seen[o] = true
	return seen
}

// refs appends every value directly referenced by o. The collector's mark
// phase traverses the object graph through this single enumeration, so a
// payload added here is a payload the GC can see.
func (o *Object) refs(out []Value) []Value {
	switch o.kind {
	case KindList:
		out = append(out, o.list.elems...)
	case KindMap:
		for _, e := range o.table.entries {
			out = append(out, e.key, e.val)
		}
	case KindSet:
		for _, el := range o.set.elems {
			out = append(out, el)
		}
	case KindFunction:
		for _, cell := range o.fn.Upvalues {
			out = append(out, cell.v)
		}
	case KindClass:
		for _, m := range o.class.Methods {
			out = append(out, m)
		}
		out = append(out, o.class.Init)
	case KindInstance:
		out = append(out, o.inst.Class)
		for _, f := range o.inst.Fields {
			out = append(out, f)
		}
	}
	return out
}
