package vm

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"tern/internal/errors"
)

// GC owns every heap value the interpreter creates. The registry is an
// intrusive singly-linked list threaded through the Object headers; sweep
// is the single point of deallocation. Collection is stop-the-world and
// runs only at instruction boundaries, so a freshly built value is always
// rooted before the next safe point.
type GC struct {
	head      *Object
	count     int
	threshold int
	baseline  int
	heapCap   int
	stats     GCStats
}

type GCStats struct {
	Collections    int
	TotalAllocated uint64
	TotalFreed     uint64
	Live           int
}

func newGC(threshold, heapCap int) *GC {
	if threshold <= 0 {
		threshold = 1024
	}
	return &GC{threshold: threshold, baseline: threshold, heapCap: heapCap}
}

// register links a fresh object into the registry. Every constructor ends
// here; exceeding the heap cap is an AllocationError, which no handler may
// catch, so it travels as a panic straight to Run's fault recovery.
func (g *GC) register(o *Object) {
	if g.heapCap > 0 && g.count >= g.heapCap {
		panic(errors.NewRuntimeError(errors.AllocationError, "heap cap of %d objects exceeded", g.heapCap))
	}
	o.registered = true
	o.next = g.head
	g.head = o
	g.count++
	g.stats.TotalAllocated++
}

func (g *GC) Count() int { return g.count }

func (g *GC) Stats() GCStats {
	s := g.stats
	s.Live = g.count
	return s
}

// needsCollection reports whether the registry has crossed the threshold.
func (g *GC) needsCollection() bool {
	return g.count > g.threshold
}

// Constructors. Each builds the payload, wraps it in an Object header, and
// registers the header before returning the handle.

func (g *GC) NewString(s string) Value {
	o := &Object{kind: KindString, str: s}
	g.register(o)
	return Value{kind: KindString, obj: o}
}

func (g *GC) NewList(capacity int) Value {
	o := &Object{kind: KindList, list: newListStorage(capacity)}
	g.register(o)
	return Value{kind: KindList, obj: o}
}

func (g *GC) NewListFrom(elems []Value) Value {
	v := g.NewList(len(elems))
	for _, el := range elems {
		v.obj.list.Append(el)
	}
	return v
}

func (g *GC) NewMap() Value {
	o := &Object{kind: KindMap, table: newMapStorage()}
	g.register(o)
	return Value{kind: KindMap, obj: o}
}

func (g *GC) NewSet() Value {
	o := &Object{kind: KindSet, set: newSetStorage()}
	g.register(o)
	return Value{kind: KindSet, obj: o}
}

// adoptSet wraps storage produced by union/intersection.
func (g *GC) adoptSet(st *SetTable) Value {
	o := &Object{kind: KindSet, set: st}
	g.register(o)
	return Value{kind: KindSet, obj: o}
}

func (g *GC) NewFunction(fn *Function) Value {
	o := &Object{kind: KindFunction, fn: fn}
	g.register(o)
	return Value{kind: KindFunction, obj: o}
}

func (g *GC) NewClass(c *Class) Value {
	o := &Object{kind: KindClass, class: c}
	g.register(o)
	return Value{kind: KindClass, obj: o}
}

func (g *GC) NewInstance(class Value) Value {
	o := &Object{kind: KindInstance, inst: &Instance{
		Class:  class,
		Fields: make(map[string]Value),
	}}
	g.register(o)
	return Value{kind: KindInstance, obj: o}
}

// Collect marks everything reachable from roots, sweeps the rest, and
// returns how many objects were freed. Mark is iterative so arbitrarily
// deep or cyclic structures cannot exhaust the Go stack.
func (g *GC) Collect(roots []Value) int {
	var worklist []*Object
	var scratch []Value

	mark := func(v Value) {
		if v.obj != nil && !v.obj.marked {
			v.obj.marked = true
			worklist = append(worklist, v.obj)
		}
	}
	for _, r := range roots {
		mark(r)
	}
	for len(worklist) > 0 {
		o := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		scratch = o.refs(scratch[:0])
		for _, r := range scratch {
			mark(r)
		}
	}

	freed := g.sweep()
	g.stats.Collections++
	// Back off the threshold so collections stay proportional to the
	// surviving heap.
	g.threshold = g.count * 2
	if g.threshold < g.baseline {
		g.threshold = g.baseline
	}
	return freed
}

// sweep walks the registry, unlinking and gutting every unmarked object
// and clearing the mark on survivors for the next cycle.
func (g *GC) sweep() int {
	freed := 0
	var prev *Object
	o := g.head
	for o != nil {
		next := o.next
		if o.marked {
			o.marked = false
			prev = o
		} else {
			if prev == nil {
				g.head = next
			} else {
				prev.next = next
			}
			g.release(o)
			freed++
		}
		o = next
	}
	g.count -= freed
	g.stats.TotalFreed += uint64(freed)
	return freed
}

// release guts a dead object so nothing dangles through it.
func (g *GC) release(o *Object) {
	o.registered = false
	o.next = nil
	o.str = ""
	o.list = nil
	o.table = nil
	o.set = nil
	o.fn = nil
	o.class = nil
	o.inst = nil
}

// SweepAll frees every registered value regardless of reachability; the
// teardown path.
func (g *GC) SweepAll() int {
	return g.sweep() // nothing is marked outside a collection
}

// WriteStats renders a one-line summary.
func (g *GC) WriteStats(w io.Writer) {
	s := g.Stats()
	fmt.Fprintf(w, "gc: %s collections, %s allocated, %s freed, %s live\n",
		humanize.Comma(int64(s.Collections)),
		humanize.Comma(int64(s.TotalAllocated)),
		humanize.Comma(int64(s.TotalFreed)),
		humanize.Comma(int64(s.Live)))
}
