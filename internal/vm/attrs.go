package vm

import (
	"fmt"
	"strings"

	"tern/internal/errors"
)

// Attribute methods on the builtin container kinds, dispatched by
// (kind, name) the way the original runtime's attribute registry is keyed.

type attrKey struct {
	kind Kind
	name string
}

type attrFn func(in *Interp, target Value, args []Value) (Value, error)

type attrEntry struct {
	arity int
	fn    attrFn
}

func newAttrRegistry() map[attrKey]attrEntry {
	r := make(map[attrKey]attrEntry)
	add := func(kind Kind, name string, arity int, fn attrFn) {
		r[attrKey{kind, name}] = attrEntry{arity: arity, fn: fn}
	}

	// Lists
	add(KindList, "append", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		t.List().Append(a[0])
		return t, nil
	})
	add(KindList, "pop", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return t.List().PopLast()
	})
	add(KindList, "popFirst", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return t.List().PopFirst()
	})
	add(KindList, "removeAt", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		i, err := toInt64(a[0], "list index")
		if err != nil {
			return Undefined, err
		}
		return t.List().RemoveAt(int(i))
	})
	add(KindList, "remove", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		return t.List().RemoveFirst(a[0]), nil
	})
	add(KindList, "contains", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		return BoolValue(t.List().Contains(a[0])), nil
	})
	add(KindList, "reverse", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		t.List().Reverse()
		return t, nil
	})
	add(KindList, "len", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return NumberValue(float64(t.List().Len())), nil
	})
	add(KindList, "copy", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return ShallowCopy(in.gc, t), nil
	})
	add(KindList, "deepCopy", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return DeepCopy(in.gc, t), nil
	})

	// Maps
	add(KindMap, "set", 2, func(in *Interp, t Value, a []Value) (Value, error) {
		if err := t.Map().Put(a[0], a[1]); err != nil {
			return Undefined, err
		}
		return t, nil
	})
	add(KindMap, "get", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		return t.Map().Get(a[0])
	})
	add(KindMap, "delete", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		ok, err := t.Map().Delete(a[0])
		if err != nil {
			return Undefined, err
		}
		return BoolValue(ok), nil
	})
	add(KindMap, "contains", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		ok, err := t.Map().Contains(a[0])
		if err != nil {
			return Undefined, err
		}
		return BoolValue(ok), nil
	})
	add(KindMap, "size", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return NumberValue(float64(t.Map().Len())), nil
	})
	add(KindMap, "keys", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return in.gc.NewListFrom(t.Map().Keys()), nil
	})
	add(KindMap, "values", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return in.gc.NewListFrom(t.Map().Values()), nil
	})

	// Sets
	add(KindSet, "add", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		if a[0].kind == KindSet && a[0].obj == t.obj {
			fmt.Fprintln(in.errw, "Cannot add a set to itself")
			return t, nil
		}
		if err := t.Set().Add(a[0]); err != nil {
			return Undefined, err
		}
		return t, nil
	})
	add(KindSet, "remove", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		ok, err := t.Set().Remove(a[0])
		if err != nil {
			return Undefined, err
		}
		return BoolValue(ok), nil
	})
	add(KindSet, "contains", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		ok, err := t.Set().Contains(a[0])
		if err != nil {
			return Undefined, err
		}
		return BoolValue(ok), nil
	})
	add(KindSet, "clear", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		t.Set().Clear()
		return t, nil
	})
	add(KindSet, "toList", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return in.gc.NewListFrom(t.Set().Members()), nil
	})
	add(KindSet, "union", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		if a[0].kind != KindSet {
			return Undefined, errors.NewRuntimeError(errors.TypeError, "union requires a set, not %s", a[0].TypeName())
		}
		return in.gc.adoptSet(t.Set().union(a[0].Set())), nil
	})
	add(KindSet, "intersection", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		if a[0].kind != KindSet {
			return Undefined, errors.NewRuntimeError(errors.TypeError, "intersection requires a set, not %s", a[0].TypeName())
		}
		return in.gc.adoptSet(t.Set().intersection(a[0].Set())), nil
	})

	// Strings
	add(KindString, "len", 0, func(in *Interp, t Value, a []Value) (Value, error) {
		return NumberValue(float64(len(t.Str()))), nil
	})
	add(KindString, "contains", 1, func(in *Interp, t Value, a []Value) (Value, error) {
		if a[0].kind != KindString {
			return Undefined, errors.NewRuntimeError(errors.TypeError, "contains requires a string, not %s", a[0].TypeName())
		}
		return BoolValue(strings.Contains(t.Str(), a[0].Str())), nil
	})

	return r
}
