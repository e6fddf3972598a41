package vm

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	perrors "github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"tern/internal/bytecode"
	"tern/internal/compiler"
	"tern/internal/errors"
)

// State tracks the interpreter lifecycle: Uninitialised -> Ready ->
// Running <-> Collecting -> Halted or Faulted.
type State uint8

const (
	StateUninitialised State = iota
	StateReady
	StateRunning
	StateCollecting
	StateHalted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "uninitialised"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCollecting:
		return "collecting"
	case StateHalted:
		return "halted"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

// Config sizes one interpreter instance. Zero writers default to the
// process streams; a zero HeapCap is unlimited.
type Config struct {
	MaxStack    int
	MaxFrames   int
	GCThreshold int
	HeapCap     int
	Stdout      io.Writer
	Stderr      io.Writer
}

func DefaultConfig() Config {
	return Config{
		MaxStack:    65536,
		MaxFrames:   1024,
		GCThreshold: 1024,
	}
}

// Headroom past MaxStack so a single instruction's pushes never need a
// bounds check; the limit itself is enforced at the instruction boundary.
const stackSlack = 64

// Interp is one virtual machine instance. All of its state, including the
// GC registry, interned constants and builtin table, lives here; two
// interpreters share nothing.
type Interp struct {
	id    uuid.UUID
	conf  Config
	state State

	stack    []Value
	stackTop int

	frames     []Frame
	frameCount int

	globals  map[string]*Cell
	gc       *GC
	tryStack []tryFrame

	consts   map[*bytecode.Chunk][]Value
	interned map[string]Value
	attrs    map[attrKey]attrEntry

	out  io.Writer
	errw io.Writer
}

func New(conf Config) *Interp {
	def := DefaultConfig()
	if conf.MaxStack <= 0 {
		conf.MaxStack = def.MaxStack
	}
	if conf.MaxFrames <= 0 {
		conf.MaxFrames = def.MaxFrames
	}
	if conf.GCThreshold <= 0 {
		conf.GCThreshold = def.GCThreshold
	}
	if conf.Stdout == nil {
		conf.Stdout = os.Stdout
	}
	if conf.Stderr == nil {
		conf.Stderr = os.Stderr
	}
	return &Interp{
		id:    uuid.New(),
		conf:  conf,
		state: StateUninitialised,
		out:   conf.Stdout,
		errw:  conf.Stderr,
	}
}

func (in *Interp) ID() uuid.UUID { return in.id }
func (in *Interp) State() State  { return in.state }
func (in *Interp) GC() *GC       { return in.gc }

// Global reads a top-level variable; hosts and tests inspect results
// through it.
func (in *Interp) Global(name string) (Value, bool) {
	cell, ok := in.globals[name]
	if !ok {
		return Undefined, false
	}
	return cell.v, true
}

// GlobalNames lists the defined globals, sorted; the REPL's inspection
// command uses it.
func (in *Interp) GlobalNames() []string {
	names := maps.Keys(in.globals)
	sort.Strings(names)
	return names
}

// Prepare builds the root scope, installs the builtins, and loads the
// program. argv becomes the global `argv` as a list of strings.
func (in *Interp) Prepare(chunk *bytecode.Chunk, argv []string) error {
	if in.state != StateUninitialised {
		return perrors.Errorf("prepare: interpreter is %s, not uninitialised", in.state)
	}
	if chunk == nil {
		return perrors.New("prepare: nil program")
	}
	in.stack = make([]Value, in.conf.MaxStack+stackSlack)
	in.frames = make([]Frame, in.conf.MaxFrames)
	in.globals = make(map[string]*Cell)
	in.gc = newGC(in.conf.GCThreshold, in.conf.HeapCap)
	in.consts = make(map[*bytecode.Chunk][]Value)
	in.interned = make(map[string]Value)
	in.attrs = newAttrRegistry()
	in.tryStack = in.tryStack[:0]

	in.installBuiltins()

	args := in.gc.NewList(len(argv))
	for _, a := range argv {
		args.List().Append(in.gc.NewString(a))
	}
	in.globals["argv"] = NewCell(args)

	in.frames[0] = Frame{chunk: chunk, locals: in.globals}
	in.frameCount = 1
	in.state = StateReady
	return nil
}

// Run drives the dispatch loop to completion. 0 is normal completion, 1 an
// uncaught raise, 2 an internal fault or allocation failure.
func (in *Interp) Run() (code int) {
	if in.state != StateReady {
		fmt.Fprintf(in.errw, "run: interpreter is %s, not ready\n", in.state)
		return 2
	}
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(*errors.RuntimeError); ok && rerr.Kind == errors.AllocationError {
				fmt.Fprintf(in.errw, "%s\n", rerr.Error())
			} else {
				fmt.Fprintf(in.errw, "internal fault in interpreter %s: %v\n", in.id, r)
			}
			in.state = StateFaulted
			code = 2
		}
	}()

	in.state = StateRunning
	err := in.run()
	if err == nil {
		in.state = StateHalted
		return 0
	}
	in.state = StateFaulted
	rerr, ok := err.(*errors.RuntimeError)
	if !ok {
		fmt.Fprintf(in.errw, "internal fault in interpreter %s: %v\n", in.id, err)
		return 2
	}
	fmt.Fprintf(in.errw, "%s\n", rerr.Error())
	if rerr.Kind == errors.AllocationError {
		return 2
	}
	return 1
}

// RunChunk executes another top-level chunk against the existing root
// scope, so definitions persist; the REPL drives successive lines through
// it.
func (in *Interp) RunChunk(chunk *bytecode.Chunk) int {
	switch in.state {
	case StateReady, StateHalted, StateFaulted:
	default:
		fmt.Fprintf(in.errw, "run: interpreter is %s\n", in.state)
		return 2
	}
	in.frames[0] = Frame{chunk: chunk, locals: in.globals}
	in.frameCount = 1
	in.dropTo(0)
	in.tryStack = in.tryStack[:0]
	in.state = StateReady
	return in.Run()
}

// Teardown sweeps every registered value and releases the stack, frames
// and root scope. The interpreter returns to Uninitialised.
func (in *Interp) Teardown() {
	if in.gc != nil {
		in.gc.SweepAll()
	}
	in.stack = nil
	in.frames = nil
	in.globals = nil
	in.consts = nil
	in.interned = nil
	in.tryStack = nil
	in.stackTop = 0
	in.frameCount = 0
	in.state = StateUninitialised
}

// ForceCollect runs a collection immediately; the test suites and the
// REPL's :gc command use it.
func (in *Interp) ForceCollect() int {
	if in.gc == nil {
		return 0
	}
	prev := in.state
	in.state = StateCollecting
	freed := in.gc.Collect(in.roots())
	in.state = prev
	return freed
}

// Stack operations.

func (in *Interp) push(v Value) {
	in.stack[in.stackTop] = v
	in.stackTop++
}

func (in *Interp) pop() Value {
	in.stackTop--
	v := in.stack[in.stackTop]
	in.stack[in.stackTop] = Value{}
	return v
}

func (in *Interp) peek(n int) Value {
	return in.stack[in.stackTop-1-n]
}

func (in *Interp) popN(n int) {
	for i := in.stackTop - n; i < in.stackTop; i++ {
		in.stack[i] = Value{}
	}
	in.stackTop -= n
}

// dropTo lowers the stack to top, clearing the abandoned slots so the
// collector cannot see stale handles.
func (in *Interp) dropTo(top int) {
	for i := top; i < in.stackTop; i++ {
		in.stack[i] = Value{}
	}
	in.stackTop = top
}

// Instruction reading.

func (in *Interp) readByte(frame *Frame) byte {
	b := frame.chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (in *Interp) readShort(frame *Frame) uint16 {
	hi := uint16(frame.chunk.Code[frame.ip])
	lo := uint16(frame.chunk.Code[frame.ip+1])
	frame.ip += 2
	return hi<<8 | lo
}

func (in *Interp) constName(frame *Frame, idx uint16) string {
	return frame.chunk.Constants[idx].(string)
}

// constValue precaches a chunk's number and string constants as runtime
// values on first touch; the cache is a GC root. Function and class
// descriptors stay raw and are realised by MAKE_FUNC / MAKE_CLASS.
func (in *Interp) constValue(chunk *bytecode.Chunk, idx uint16) Value {
	cache, ok := in.consts[chunk]
	if !ok {
		cache = make([]Value, len(chunk.Constants))
		for i, c := range chunk.Constants {
			switch v := c.(type) {
			case float64:
				cache[i] = NumberValue(v)
			case string:
				cache[i] = in.intern(v)
			default:
				cache[i] = Undefined
			}
		}
		in.consts[chunk] = cache
	}
	return cache[idx]
}

func (in *Interp) intern(s string) Value {
	if v, ok := in.interned[s]; ok {
		return v
	}
	v := in.gc.NewString(s)
	in.interned[s] = v
	return v
}

// collect is the synchronous GC pause, entered only between instructions.
func (in *Interp) collect() {
	prev := in.state
	in.state = StateCollecting
	in.gc.Collect(in.roots())
	in.state = prev
}

// roots enumerates the operand stack, every live frame's locals, upvalues
// and executing function, the globals, and the interned constant pools.
func (in *Interp) roots() []Value {
	roots := make([]Value, 0, in.stackTop+64)
	roots = append(roots, in.stack[:in.stackTop]...)
	for i := 0; i < in.frameCount; i++ {
		f := &in.frames[i]
		for _, cell := range f.locals {
			roots = append(roots, cell.v)
		}
		if f.fn != nil {
			for _, cell := range f.fn.Upvalues {
				roots = append(roots, cell.v)
			}
		}
		roots = append(roots, f.fnVal, f.self)
	}
	for _, cell := range in.globals {
		roots = append(roots, cell.v)
	}
	for _, cache := range in.consts {
		roots = append(roots, cache...)
	}
	for _, v := range in.interned {
		roots = append(roots, v)
	}
	return roots
}

// fault routes a runtime error through the handler chain; anything
// uncatchable or unhandled propagates to Run.
func (in *Interp) fault(err error, line int) error {
	rerr, ok := err.(*errors.RuntimeError)
	if !ok {
		return err
	}
	if rerr.Location.Line == 0 {
		rerr.Location.Line = line
	}
	if !rerr.Catchable() {
		return rerr
	}
	if !in.unwind(in.gc.NewString(rerr.Error())) {
		return rerr
	}
	return nil
}

// unwind pops frames back to the nearest installed handler, restores the
// recorded stack depths, and delivers the raised value to the handler.
func (in *Interp) unwind(raised Value) bool {
	if len(in.tryStack) == 0 {
		return false
	}
	tf := in.tryStack[len(in.tryStack)-1]
	in.tryStack = in.tryStack[:len(in.tryStack)-1]
	for i := tf.frameDepth; i < in.frameCount; i++ {
		in.frames[i] = Frame{}
	}
	in.frameCount = tf.frameDepth
	in.dropTo(tf.stackDepth)
	in.frames[in.frameCount-1].ip = tf.catchIP
	in.push(raised)
	return true
}

// invoke applies a callee to already-popped arguments. Builtins run
// inline; scripted functions get a frame; classes construct an instance.
func (in *Interp) invoke(callee Value, args []Value) error {
	switch callee.kind {
	case KindFunction:
		fn := callee.Fn()
		if fn.Builtin != nil {
			if fn.Arity >= 0 && len(args) != fn.Arity {
				return errors.NewRuntimeError(errors.ArityError,
					"%s expects %d arguments, got %d", fn.Name, fn.Arity, len(args))
			}
			res, err := fn.Builtin(in, args)
			if err != nil {
				return err
			}
			in.push(res)
			return nil
		}
		if len(args) != fn.Arity {
			return errors.NewRuntimeError(errors.ArityError,
				"%s expects %d arguments, got %d", fn.Name, fn.Arity, len(args))
		}
		return in.pushFrame(fn, callee, args, false, Undefined)
	case KindClass:
		cls := callee.Class()
		inst := in.gc.NewInstance(callee)
		if cls.Init.kind == KindFunction {
			initFn := cls.Init.Fn()
			if len(args) != initFn.Arity-1 {
				return errors.NewRuntimeError(errors.ArityError,
					"%s constructor expects %d arguments, got %d", cls.Name, initFn.Arity-1, len(args))
			}
			return in.pushFrame(initFn, cls.Init, append([]Value{inst}, args...), true, inst)
		}
		if len(args) != 0 {
			return errors.NewRuntimeError(errors.ArityError,
				"%s has no constructor but got %d arguments", cls.Name, len(args))
		}
		in.push(inst)
		return nil
	}
	return errors.NewRuntimeError(errors.TypeError, "%s is not callable", callee.TypeName())
}

func (in *Interp) pushFrame(fn *Function, fnVal Value, args []Value, isCtor bool, self Value) error {
	if in.frameCount >= in.conf.MaxFrames {
		return errors.NewRuntimeError(errors.StackOverflow,
			"call depth limit of %d exceeded", in.conf.MaxFrames)
	}
	locals := make(map[string]*Cell, len(fn.Params))
	for i, p := range fn.Params {
		locals[p] = NewCell(args[i])
	}
	in.frames[in.frameCount] = Frame{
		chunk:     fn.Chunk,
		locals:    locals,
		fn:        fn,
		fnVal:     fnVal,
		stackBase: in.stackTop,
		isCtor:    isCtor,
		self:      self,
	}
	in.frameCount++
	return nil
}

// returnFrom pops the current frame, restores the caller's stack, and
// pushes the result (the instance, for a constructor frame).
func (in *Interp) returnFrom(res Value) {
	in.frameCount--
	f := in.frames[in.frameCount]
	in.frames[in.frameCount] = Frame{}
	in.dropTo(f.stackBase)
	for len(in.tryStack) > 0 && in.tryStack[len(in.tryStack)-1].frameDepth > in.frameCount {
		in.tryStack = in.tryStack[:len(in.tryStack)-1]
	}
	if f.isCtor {
		res = f.self
	}
	if in.frameCount > 0 {
		in.push(res)
	}
}

// makeFunction realises a function descriptor, capturing each free
// variable's cell from the defining frame.
func (in *Interp) makeFunction(proto *compiler.FuncProto, frame *Frame) (Value, error) {
	fn := &Function{
		Name:      proto.Name,
		Arity:     proto.Arity,
		Params:    proto.Params,
		FreeNames: proto.FreeNames,
		Chunk:     proto.Chunk,
	}
	fn.Upvalues = make([]*Cell, len(proto.FreeNames))
	for i, name := range proto.FreeNames {
		cell, err := in.captureCell(frame, name)
		if err != nil {
			return Undefined, err
		}
		fn.Upvalues[i] = cell
	}
	return in.gc.NewFunction(fn), nil
}

// captureCell finds the storage cell for a free variable: the defining
// frame's locals, then the defining function's own upvalues, then the
// globals.
func (in *Interp) captureCell(frame *Frame, name string) (*Cell, error) {
	if cell, ok := frame.locals[name]; ok {
		return cell, nil
	}
	if frame.fn != nil {
		for i, free := range frame.fn.FreeNames {
			if free == name {
				return frame.fn.Upvalues[i], nil
			}
		}
	}
	if cell, ok := in.globals[name]; ok {
		return cell, nil
	}
	return nil, errors.NewRuntimeError(errors.NameError, "name '%s' is not defined", name)
}

// run is the dispatch loop: fetch, advance, execute, poll the collector.
func (in *Interp) run() error {
	for in.frameCount > 0 {
		if in.gc.needsCollection() {
			in.collect()
		}
		if in.stackTop > in.conf.MaxStack {
			err := errors.NewRuntimeError(errors.StackOverflow,
				"operand stack limit of %d exceeded", in.conf.MaxStack)
			if ferr := in.fault(err, 0); ferr != nil {
				return ferr
			}
			continue
		}

		frame := &in.frames[in.frameCount-1]
		if frame.ip >= len(frame.chunk.Code) {
			in.returnFrom(Undefined)
			continue
		}
		line := frame.chunk.Line(frame.ip)
		op := bytecode.OpCode(frame.chunk.Code[frame.ip])
		frame.ip++

		var err error
		switch op {
		case bytecode.OpLoadConst:
			idx := in.readShort(frame)
			in.push(in.constValue(frame.chunk, idx))
		case bytecode.OpLoadNull:
			in.push(Null)
		case bytecode.OpLoadUndef:
			in.push(Undefined)
		case bytecode.OpLoadTrue:
			in.push(NumberValue(1))
		case bytecode.OpLoadFalse:
			in.push(NumberValue(0))

		case bytecode.OpDeclareName:
			name := in.constName(frame, in.readShort(frame))
			frame.locals[name] = NewCell(in.pop())
		case bytecode.OpLoadName:
			name := in.constName(frame, in.readShort(frame))
			if cell, ok := frame.locals[name]; ok {
				in.push(cell.v)
			} else if cell, ok := in.globals[name]; ok {
				in.push(cell.v)
			} else {
				err = errors.NewRuntimeError(errors.NameError, "name '%s' is not defined", name)
			}
		case bytecode.OpStoreName:
			name := in.constName(frame, in.readShort(frame))
			v := in.pop()
			if cell, ok := frame.locals[name]; ok {
				cell.v = v
			} else if cell, ok := in.globals[name]; ok {
				cell.v = v
			} else {
				err = errors.NewRuntimeError(errors.NameError, "name '%s' is not defined", name)
			}
		case bytecode.OpLoadUpval:
			idx := in.readShort(frame)
			in.push(frame.fn.Upvalues[idx].v)
		case bytecode.OpStoreUpval:
			idx := in.readShort(frame)
			frame.fn.Upvalues[idx].v = in.pop()

		case bytecode.OpAdd:
			b, a := in.pop(), in.pop()
			var res Value
			if res, err = kernelAdd(in.gc, a, b); err == nil {
				in.push(res)
			}
		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow:
			b, a := in.pop(), in.pop()
			var res Value
			if res, err = kernelArith(op, a, b); err == nil {
				in.push(res)
			}
		case bytecode.OpNegate:
			var res Value
			if res, err = kernelNegate(in.pop()); err == nil {
				in.push(res)
			}
		case bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr:
			b, a := in.pop(), in.pop()
			var res Value
			if res, err = kernelBitwise(op, a, b); err == nil {
				in.push(res)
			}

		case bytecode.OpEqual:
			b, a := in.pop(), in.pop()
			in.push(BoolValue(Equal(a, b)))
		case bytecode.OpNotEqual:
			b, a := in.pop(), in.pop()
			in.push(BoolValue(!Equal(a, b)))
		case bytecode.OpGreater, bytecode.OpGreaterEqual, bytecode.OpLess, bytecode.OpLessEqual:
			b, a := in.pop(), in.pop()
			var res Value
			if res, err = kernelCompare(op, a, b); err == nil {
				in.push(res)
			}

		case bytecode.OpAnd:
			b, a := in.pop(), in.pop()
			in.push(BoolValue(a.Truthy() && b.Truthy()))
		case bytecode.OpOr:
			b, a := in.pop(), in.pop()
			in.push(BoolValue(a.Truthy() || b.Truthy()))
		case bytecode.OpNot:
			in.push(BoolValue(!in.pop().Truthy()))

		case bytecode.OpMakeList:
			n := int(in.readShort(frame))
			list := in.gc.NewListFrom(in.stack[in.stackTop-n : in.stackTop])
			in.popN(n)
			in.push(list)
		case bytecode.OpMakeMap:
			n := int(in.readShort(frame))
			m := in.gc.NewMap()
			base := in.stackTop - 2*n
			for i := 0; i < n && err == nil; i++ {
				err = m.Map().Put(in.stack[base+2*i], in.stack[base+2*i+1])
			}
			in.popN(2 * n)
			if err == nil {
				in.push(m)
			}
		case bytecode.OpMakeSet:
			n := int(in.readShort(frame))
			s := in.gc.NewSet()
			base := in.stackTop - n
			for i := 0; i < n && err == nil; i++ {
				err = s.Set().Add(in.stack[base+i])
			}
			in.popN(n)
			if err == nil {
				in.push(s)
			}

		case bytecode.OpIndexGet:
			idx, c := in.pop(), in.pop()
			var res Value
			if res, err = indexGet(in.gc, c, idx); err == nil {
				in.push(res)
			}
		case bytecode.OpIndexSet:
			v, idx, c := in.pop(), in.pop(), in.pop()
			err = indexSet(c, idx, v)
		case bytecode.OpAttrGet:
			name := in.constName(frame, in.readShort(frame))
			err = in.attrGet(in.pop(), name)
		case bytecode.OpAttrSet:
			name := in.constName(frame, in.readShort(frame))
			v, target := in.pop(), in.pop()
			err = in.attrSet(target, name, v)
		case bytecode.OpAttrCall:
			name := in.constName(frame, in.readShort(frame))
			argc := int(in.readByte(frame))
			args := make([]Value, argc)
			copy(args, in.stack[in.stackTop-argc:in.stackTop])
			in.popN(argc)
			target := in.pop()
			err = in.attrCall(target, name, args)

		case bytecode.OpJump:
			frame.ip = int(in.readShort(frame))
		case bytecode.OpJumpIfFalse:
			target := int(in.readShort(frame))
			if !in.pop().Truthy() {
				frame.ip = target
			}
		case bytecode.OpJumpIfTrue:
			target := int(in.readShort(frame))
			if in.pop().Truthy() {
				frame.ip = target
			}
		case bytecode.OpPop:
			in.pop()
		case bytecode.OpDup:
			in.push(in.peek(0))

		case bytecode.OpCall:
			argc := int(in.readByte(frame))
			args := make([]Value, argc)
			copy(args, in.stack[in.stackTop-argc:in.stackTop])
			in.popN(argc)
			callee := in.pop()
			err = in.invoke(callee, args)
		case bytecode.OpReturn:
			in.returnFrom(in.pop())
		case bytecode.OpReturnNone:
			in.returnFrom(Undefined)

		case bytecode.OpMakeFunc:
			idx := in.readShort(frame)
			proto, ok := frame.chunk.Constants[idx].(*compiler.FuncProto)
			if !ok {
				err = errors.NewRuntimeError(errors.TypeError, "constant %d is not a function descriptor", idx)
				break
			}
			var fnVal Value
			if fnVal, err = in.makeFunction(proto, frame); err == nil {
				in.push(fnVal)
			}
		case bytecode.OpMakeClass:
			idx := in.readShort(frame)
			proto, ok := frame.chunk.Constants[idx].(*compiler.ClassProto)
			if !ok {
				err = errors.NewRuntimeError(errors.TypeError, "constant %d is not a class descriptor", idx)
				break
			}
			cls := &Class{Name: proto.Name, Methods: make(map[string]Value), Init: Undefined}
			for _, m := range proto.Methods {
				var mv Value
				if mv, err = in.makeFunction(m, frame); err != nil {
					break
				}
				cls.Methods[m.Name] = mv
				if m.Name == "init" {
					cls.Init = mv
				}
			}
			if err == nil {
				in.push(in.gc.NewClass(cls))
			}

		case bytecode.OpTry:
			target := int(in.readShort(frame))
			in.tryStack = append(in.tryStack, tryFrame{
				catchIP:    target,
				stackDepth: in.stackTop,
				frameDepth: in.frameCount,
			})
		case bytecode.OpEndTry:
			in.tryStack = in.tryStack[:len(in.tryStack)-1]
		case bytecode.OpRaise:
			raised := in.pop()
			if !in.unwind(raised) {
				return errors.NewRuntimeError(errors.RaisedError, "%s", ToString(raised))
			}

		default:
			return perrors.Errorf("unknown opcode %d at ip %d", op, frame.ip-1)
		}

		if err != nil {
			if ferr := in.fault(err, line); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

// attrGet resolves target.name without calling it. Instance fields shadow
// methods; map attribute access is string-keyed lookup and a missing key
// is a KeyError; builtin kinds hand back a bound method function.
func (in *Interp) attrGet(target Value, name string) error {
	switch target.kind {
	case KindInstance:
		inst := target.Inst()
		if v, ok := inst.Fields[name]; ok {
			in.push(v)
			return nil
		}
		if m, ok := inst.ClassOf().Methods[name]; ok {
			in.push(m)
			return nil
		}
		return errors.NewRuntimeError(errors.AttributeError,
			"%s instance has no attribute '%s'", inst.ClassOf().Name, name)
	case KindClass:
		if m, ok := target.Class().Methods[name]; ok {
			in.push(m)
			return nil
		}
		return errors.NewRuntimeError(errors.AttributeError,
			"class %s has no attribute '%s'", target.Class().Name, name)
	case KindMap:
		key := in.intern(name)
		ok, err := target.Map().Contains(key)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewRuntimeError(errors.KeyError, "map has no key '%s'", name)
		}
		v, err := target.Map().Get(key)
		if err != nil {
			return err
		}
		in.push(v)
		return nil
	}
	if entry, ok := in.attrs[attrKey{target.kind, name}]; ok {
		bound := entry
		recv := target
		in.push(in.gc.NewFunction(&Function{
			Name:  name,
			Arity: entry.arity,
			Builtin: func(in *Interp, args []Value) (Value, error) {
				return bound.fn(in, recv, args)
			},
		}))
		return nil
	}
	return errors.NewRuntimeError(errors.AttributeError,
		"%s has no attribute '%s'", target.TypeName(), name)
}

// attrSet stores target.name = v for instances and maps.
func (in *Interp) attrSet(target Value, name string, v Value) error {
	switch target.kind {
	case KindInstance:
		target.Inst().Fields[name] = v
		return nil
	case KindMap:
		return target.Map().Put(in.intern(name), v)
	}
	return errors.NewRuntimeError(errors.TypeError,
		"cannot set attribute '%s' on %s", name, target.TypeName())
}

// attrCall is method dispatch: class method with the instance bound as the
// implicit first argument, falling through to a callable field, then the
// builtin attribute table for the container kinds.
func (in *Interp) attrCall(target Value, name string, args []Value) error {
	switch target.kind {
	case KindInstance:
		inst := target.Inst()
		if m, ok := inst.ClassOf().Methods[name]; ok {
			return in.invoke(m, append([]Value{target}, args...))
		}
		if f, ok := inst.Fields[name]; ok {
			return in.invoke(f, args)
		}
		return errors.NewRuntimeError(errors.AttributeError,
			"%s instance has no attribute '%s'", inst.ClassOf().Name, name)
	case KindClass:
		if m, ok := target.Class().Methods[name]; ok {
			return in.invoke(m, args)
		}
		return errors.NewRuntimeError(errors.AttributeError,
			"class %s has no attribute '%s'", target.Class().Name, name)
	case KindMap:
		if entry, ok := in.attrs[attrKey{KindMap, name}]; ok {
			return in.applyAttr(entry, name, target, args)
		}
		if v, err := target.Map().Get(in.intern(name)); err == nil && v.kind == KindFunction {
			return in.invoke(v, args)
		}
		return errors.NewRuntimeError(errors.AttributeError, "map has no method '%s'", name)
	}
	if entry, ok := in.attrs[attrKey{target.kind, name}]; ok {
		return in.applyAttr(entry, name, target, args)
	}
	return errors.NewRuntimeError(errors.AttributeError,
		"%s has no attribute '%s'", target.TypeName(), name)
}

func (in *Interp) applyAttr(entry attrEntry, name string, target Value, args []Value) error {
	if entry.arity >= 0 && len(args) != entry.arity {
		return errors.NewRuntimeError(errors.ArityError,
			"%s expects %d arguments, got %d", name, entry.arity, len(args))
	}
	res, err := entry.fn(in, target, args)
	if err != nil {
		return err
	}
	in.push(res)
	return nil
}
