package vm

import (
	"tern/internal/errors"
)

// Lists never shrink below this reserve.
const minListCap = 8

// List is a dynamic array of value handles. Growth doubles the backing
// store when full; removal halves it once length falls to half capacity,
// never below the minimum reserve.
type List struct {
	elems []Value
}

func newListStorage(capacity int) *List {
	if capacity < minListCap {
		capacity = minListCap
	}
	return &List{elems: make([]Value, 0, capacity)}
}

func (l *List) Len() int { return len(l.elems) }
func (l *List) Cap() int { return cap(l.elems) }

func (l *List) Append(v Value) {
	if len(l.elems) == cap(l.elems) {
		l.resize(cap(l.elems) * 2)
	}
	l.elems = append(l.elems, v)
}

func (l *List) resize(capacity int) {
	if capacity < minListCap {
		capacity = minListCap
	}
	grown := make([]Value, len(l.elems), capacity)
	copy(grown, l.elems)
	l.elems = grown
}

// shrink halves the backing store when occupancy has dropped to half.
func (l *List) shrink() {
	if len(l.elems) <= cap(l.elems)/2 && cap(l.elems)/2 >= minListCap {
		l.resize(cap(l.elems) / 2)
	}
}

func (l *List) PopLast() (Value, error) {
	if len(l.elems) == 0 {
		return Undefined, errors.NewRuntimeError(errors.IndexError, "pop from empty list")
	}
	v := l.elems[len(l.elems)-1]
	l.elems[len(l.elems)-1] = Value{}
	l.elems = l.elems[:len(l.elems)-1]
	l.shrink()
	return v, nil
}

func (l *List) PopFirst() (Value, error) {
	if len(l.elems) == 0 {
		return Undefined, errors.NewRuntimeError(errors.IndexError, "pop from empty list")
	}
	return l.RemoveAt(0)
}

func (l *List) RemoveAt(i int) (Value, error) {
	if i < 0 || i >= len(l.elems) {
		return Undefined, errors.NewRuntimeError(errors.IndexError, "list index %d out of range", i)
	}
	v := l.elems[i]
	copy(l.elems[i:], l.elems[i+1:])
	l.elems[len(l.elems)-1] = Value{}
	l.elems = l.elems[:len(l.elems)-1]
	l.shrink()
	return v, nil
}

// RemoveFirst removes the first element structurally equal to v, returning
// it, or Undefined when there is no match.
func (l *List) RemoveFirst(v Value) Value {
	for i, el := range l.elems {
		if Equal(el, v) {
			removed, _ := l.RemoveAt(i)
			return removed
		}
	}
	return Undefined
}

// Get resolves negative indices from the end: -1 is the last element.
func (l *List) Get(i int) (Value, error) {
	idx := i
	if idx < 0 {
		idx += len(l.elems)
	}
	if idx < 0 || idx >= len(l.elems) {
		return Undefined, errors.NewRuntimeError(errors.IndexError, "list index %d out of range", i)
	}
	return l.elems[idx], nil
}

func (l *List) Put(i int, v Value) error {
	idx := i
	if idx < 0 {
		idx += len(l.elems)
	}
	if idx < 0 || idx >= len(l.elems) {
		return errors.NewRuntimeError(errors.IndexError, "list index %d out of range", i)
	}
	l.elems[idx] = v
	return nil
}

func (l *List) Contains(v Value) bool {
	for _, el := range l.elems {
		if Equal(el, v) {
			return true
		}
	}
	return false
}

// Reverse flips the list in place.
func (l *List) Reverse() {
	for i := 0; i < len(l.elems)/2; i++ {
		j := len(l.elems) - i - 1
		l.elems[i], l.elems[j] = l.elems[j], l.elems[i]
	}
}

// Equals compares pointwise; deep selects structural element comparison,
// otherwise identity.
func (l *List) Equals(o *List, deep bool) bool {
	if l.Len() != o.Len() {
		return false
	}
	for i := range l.elems {
		if deep {
			if !Equal(l.elems[i], o.elems[i]) {
				return false
			}
		} else if !l.elems[i].Identical(o.elems[i]) {
			return false
		}
	}
	return true
}

func (l *List) Elements() []Value {
	return l.elems
}
