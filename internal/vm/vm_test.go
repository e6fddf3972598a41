package vm

import (
	"bytes"
	"strings"
	"testing"

	"tern/internal/bytecode"
	"tern/internal/compiler"
	"tern/internal/lexer"
	"tern/internal/parser"
)

// runChunk executes a hand-assembled chunk and returns the interpreter,
// exit code, and captured streams.
func runChunk(t *testing.T, code []byte, constants []interface{}) (*Interp, int, string, string) {
	t.Helper()
	chunk := bytecode.NewChunk("test")
	chunk.Code = code
	chunk.Constants = constants
	chunk.Lines = make([]int, len(code))

	var out, errw bytes.Buffer
	conf := DefaultConfig()
	conf.Stdout = &out
	conf.Stderr = &errw
	interp := New(conf)
	if err := interp.Prepare(chunk, nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	exit := interp.Run()
	return interp, exit, out.String(), errw.String()
}

// runSource drives the whole pipeline on a source program.
func runSource(t *testing.T, src string) (*Interp, int, string, string) {
	t.Helper()
	scanner := lexer.NewScanner(src, "test.tn")
	tokens := scanner.ScanTokens()
	if len(scanner.Errors) > 0 {
		t.Fatalf("scan: %v", scanner.Errors[0])
	}
	p := parser.NewParserWithSource(tokens, src, "test.tn")
	stmts := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse: %v", p.Errors[0])
	}
	chunk, err := compiler.NewCompilerForFile("test.tn").Compile(stmts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var out, errw bytes.Buffer
	conf := DefaultConfig()
	conf.Stdout = &out
	conf.Stderr = &errw
	interp := New(conf)
	if err := interp.Prepare(chunk, nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	exit := interp.Run()
	return interp, exit, out.String(), errw.String()
}

// Test basic arithmetic through hand-assembled chunks.
func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       bytecode.OpCode
		a, b     float64
		expected float64
	}{
		{name: "addition", op: bytecode.OpAdd, a: 10, b: 20, expected: 30},
		{name: "subtraction", op: bytecode.OpSub, a: 50, b: 20, expected: 30},
		{name: "multiplication", op: bytecode.OpMul, a: 5, b: 6, expected: 30},
		{name: "division", op: bytecode.OpDiv, a: 60, b: 2, expected: 30},
		{name: "modulo", op: bytecode.OpMod, a: 67, b: 37, expected: 30},
		{name: "power", op: bytecode.OpPow, a: 2, b: 5, expected: 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := []byte{
				byte(bytecode.OpLoadConst), 0, 0,
				byte(bytecode.OpLoadConst), 0, 1,
				byte(tt.op),
				byte(bytecode.OpDeclareName), 0, 2,
				byte(bytecode.OpReturnNone),
			}
			interp, exit, _, _ := runChunk(t, code, []interface{}{tt.a, tt.b, "result"})
			if exit != 0 {
				t.Fatalf("exit = %d, want 0", exit)
			}
			got, ok := interp.Global("result")
			if !ok {
				t.Fatal("result not defined")
			}
			if got.Kind() != KindNumber || got.Num() != tt.expected {
				t.Errorf("result = %v, want %v", got.Num(), tt.expected)
			}
		})
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		name     string
		op       bytecode.OpCode
		a, b     float64
		expected float64
	}{
		{name: "less true", op: bytecode.OpLess, a: 1, b: 2, expected: 1},
		{name: "less false", op: bytecode.OpLess, a: 2, b: 1, expected: 0},
		{name: "less equal", op: bytecode.OpLessEqual, a: 2, b: 2, expected: 1},
		{name: "greater", op: bytecode.OpGreater, a: 3, b: 2, expected: 1},
		{name: "greater equal false", op: bytecode.OpGreaterEqual, a: 1, b: 2, expected: 0},
		{name: "equal", op: bytecode.OpEqual, a: 2, b: 2, expected: 1},
		{name: "not equal", op: bytecode.OpNotEqual, a: 2, b: 2, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := []byte{
				byte(bytecode.OpLoadConst), 0, 0,
				byte(bytecode.OpLoadConst), 0, 1,
				byte(tt.op),
				byte(bytecode.OpDeclareName), 0, 2,
				byte(bytecode.OpReturnNone),
			}
			interp, exit, _, _ := runChunk(t, code, []interface{}{tt.a, tt.b, "result"})
			if exit != 0 {
				t.Fatalf("exit = %d, want 0", exit)
			}
			got, _ := interp.Global("result")
			if got.Num() != tt.expected {
				t.Errorf("result = %v, want %v", got.Num(), tt.expected)
			}
		})
	}
}

func TestDivisionByZeroFaults(t *testing.T) {
	code := []byte{
		byte(bytecode.OpLoadConst), 0, 0,
		byte(bytecode.OpLoadConst), 0, 1,
		byte(bytecode.OpDiv),
		byte(bytecode.OpPop),
		byte(bytecode.OpReturnNone),
	}
	interp, exit, _, errOut := runChunk(t, code, []interface{}{float64(1), float64(0)})
	if exit != 1 {
		t.Fatalf("exit = %d, want 1", exit)
	}
	if !strings.Contains(errOut, "ArithError: division by zero") {
		t.Errorf("stderr = %q, want ArithError", errOut)
	}
	if interp.State() != StateFaulted {
		t.Errorf("state = %v, want faulted", interp.State())
	}
}

// End-to-end programs.

func TestEndToEnd(t *testing.T) {
	tests := []struct {
		name string
		src  string
		out  string
	}{
		{
			name: "precedence",
			src:  `println(1 + 2 * 3);`,
			out:  "7 \n",
		},
		{
			name: "typeof and indexing",
			src:  `let a = [1,"x",null]; println(typeof(a), a[1]);`,
			out:  "list x \n",
		},
		{
			name: "set membership",
			src:  `let s = {1,2,3}; println(s.contains(2), s.contains(5));`,
			out:  "1 0 \n",
		},
		{
			name: "fib",
			src:  `func fib(n){ if(n<2) return n; return fib(n-1)+fib(n-2); } println(fib(10));`,
			out:  "55 \n",
		},
		{
			name: "try catch division",
			src:  `try { let x = 1/0; } catch { println("caught"); }`,
			out:  "caught \n",
		},
		{
			name: "catch binds raised value",
			src:  `try { raise "boom"; } catch (e) { println(e); }`,
			out:  "boom \n",
		},
		{
			name: "while loop",
			src:  `let s = 0; let i = 0; while (i < 5) { s = s + i; i = i + 1; } println(s);`,
			out:  "10 \n",
		},
		{
			name: "for loop",
			src:  `let s = 0; for (let i = 0; i < 5; i = i + 1) { s = s + i; } println(s);`,
			out:  "10 \n",
		},
		{
			name: "string ops",
			src:  `let s = "he" + "llo"; println(s, s[1], s[-1], s.len());`,
			out:  "hello e o 5 \n",
		},
		{
			name: "list attrs",
			src:  `let l = [1,2,3]; l.append(4); l.reverse(); println(l[0], l.len(), l.contains(2));`,
			out:  "4 4 1 \n",
		},
		{
			name: "negative list index",
			src:  `let l = [1,2,3]; println(l[-1]);`,
			out:  "3 \n",
		},
		{
			name: "map ops",
			src:  `let m = {"a": 1, 2: "b"}; println(m["a"], m[2], m.size(), m.contains("a"), m["zz"]);`,
			out:  "1 b 2 1 undefined \n",
		},
		{
			name: "map attr sugar",
			src:  `let m = {}; m.x = 5; println(m.x, m["x"]);`,
			out:  "5 5 \n",
		},
		{
			name: "closures share cells",
			src: `func counter() { let n = 0; func inc() { n = n + 1; return n; } return inc; }
let c = counter(); println(c(), c(), c());`,
			out: "1 2 3 \n",
		},
		{
			name: "classes",
			src: `class Point {
	func init(x, y) { self.x = x; self.y = y; }
	func norm() { return self.x * self.x + self.y * self.y; }
}
let p = Point(3, 4); println(p.norm(), p.x);`,
			out: "25 3 \n",
		},
		{
			name: "logical short circuit",
			src:  `func boom() { raise "no"; } println(0 && boom(), 1 || boom());`,
			out:  "0 1 \n",
		},
		{
			name: "truthiness",
			src:  `println(!0, !1, !"", !"x", ![], !null, !undefined);`,
			out:  "1 0 1 0 1 1 1 \n",
		},
		{
			name: "bitwise",
			src:  `println(6 & 3, 6 | 3, 6 ^ 3, 1 << 4, 32 >> 2);`,
			out:  "2 7 5 16 8 \n",
		},
		{
			name: "set algebra",
			src: `let a = {1,2}; let b = {2,3};
let u = a.union(b); let i = a.intersection(b);
println(u.contains(1), u.contains(3), i.contains(2), i.contains(1), a.contains(3));`,
			out: "1 1 1 0 0 \n",
		},
		{
			name: "list concat copies",
			src:  `let a = [1]; let b = [2]; let c = a + b; c.append(9); println(a.len(), b.len(), c.len());`,
			out:  "1 1 3 \n",
		},
		{
			name: "string builtin",
			src:  `println(string("n=", 42));`,
			out:  "n=42 \n",
		},
		{
			name: "print no newline",
			src:  `print("a"); print("b");`,
			out:  "a b ",
		},
		{
			name: "anonymous function value",
			src:  `let add = func(a, b) { return a + b; }; println(add(2, 3));`,
			out:  "5 \n",
		},
		{
			name: "nested try rethrow",
			src: `try {
	try { raise "inner"; } catch (e) { raise e + " out"; }
} catch (e) { println(e); }`,
			out: "inner out \n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, exit, out, errOut := runSource(t, tt.src)
			if exit != 0 {
				t.Fatalf("exit = %d, stderr = %q", exit, errOut)
			}
			if out != tt.out {
				t.Errorf("stdout = %q, want %q", out, tt.out)
			}
		})
	}
}

func TestRuntimeFaults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind string
	}{
		{name: "name error", src: `println(nope);`, kind: "NameError"},
		{name: "type error add", src: `let x = 1 + "a";`, kind: "TypeError"},
		{name: "index error", src: `let l = [1]; println(l[3]);`, kind: "IndexError"},
		{name: "index error negative", src: `let l = [1,2]; println(l[-3]);`, kind: "IndexError"},
		{name: "arity error", src: `func f(a) { return a; } f(1, 2);`, kind: "ArityError"},
		{name: "attribute error", src: `let l = [1]; l.explode();`, kind: "AttributeError"},
		{name: "key error", src: `let m = {}; println(m.missing);`, kind: "KeyError"},
		{name: "unhashable key", src: `let m = {}; m.set([1], 2);`, kind: "TypeError"},
		{name: "not callable", src: `let x = 3; x(1);`, kind: "TypeError"},
		{name: "uncaught raise", src: `raise "boom";`, kind: "RuntimeError"},
		{name: "modulo by zero", src: `let x = 1 % 0;`, kind: "ArithError"},
		{name: "string immutable", src: `let s = "ab"; s[0] = "c";`, kind: "TypeError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, exit, _, errOut := runSource(t, tt.src)
			if exit != 1 {
				t.Fatalf("exit = %d, want 1 (stderr %q)", exit, errOut)
			}
			if !strings.Contains(errOut, tt.kind+":") {
				t.Errorf("stderr = %q, want kind %s", errOut, tt.kind)
			}
		})
	}
}

func TestCaughtErrorsKeepRunning(t *testing.T) {
	src := `
let log = [];
try { let x = [1][9]; } catch (e) { log.append(e); }
try { let m = {}; println(m.gone); } catch (e) { log.append(e); }
println(log.len());`
	_, exit, out, errOut := runSource(t, src)
	if exit != 0 {
		t.Fatalf("exit = %d, stderr = %q", exit, errOut)
	}
	if out != "2 \n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestStackOverflowIsCatchable(t *testing.T) {
	src := `func f() { return f(); } try { f(); } catch (e) { println("deep"); }`
	_, exit, out, errOut := runSource(t, src)
	if exit != 0 {
		t.Fatalf("exit = %d, stderr = %q", exit, errOut)
	}
	if out != "deep \n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestUncaughtStackOverflowExits(t *testing.T) {
	src := `func f() { return f(); } f();`
	_, exit, _, errOut := runSource(t, src)
	if exit != 1 {
		t.Fatalf("exit = %d", exit)
	}
	if !strings.Contains(errOut, "StackOverflow:") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestAllocationErrorIsFatal(t *testing.T) {
	src := `try { let l = []; while (1) { l.append("x" + "y"); } } catch (e) { println("caught"); }`
	scanner := lexer.NewScanner(src, "test.tn")
	p := parser.NewParserWithSource(scanner.ScanTokens(), src, "test.tn")
	chunk, err := compiler.NewCompilerForFile("test.tn").Compile(p.Parse())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var out, errw bytes.Buffer
	conf := DefaultConfig()
	conf.Stdout = &out
	conf.Stderr = &errw
	conf.HeapCap = 512
	interp := New(conf)
	if err := interp.Prepare(chunk, nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	exit := interp.Run()
	if exit != 2 {
		t.Fatalf("exit = %d, want 2", exit)
	}
	if strings.Contains(out.String(), "caught") {
		t.Error("AllocationError must not be catchable")
	}
	if !strings.Contains(errw.String(), "AllocationError:") {
		t.Errorf("stderr = %q", errw.String())
	}
}

func TestTypeofWarnsOnExtraArguments(t *testing.T) {
	_, exit, out, errOut := runSource(t, `println(typeof(1, 2));`)
	if exit != 0 {
		t.Fatalf("exit = %d", exit)
	}
	if out != "undefined \n" {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(errOut, "typeof builtin function can only take 1 argument") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestSetAddSelfWarns(t *testing.T) {
	_, exit, out, errOut := runSource(t, `let s = {1}; s.add(s); println(s.toList().len());`)
	if exit != 0 {
		t.Fatalf("exit = %d, stderr = %q", exit, errOut)
	}
	if out != "1 \n" {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(errOut, "Cannot add a set to itself") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestArgvIsBound(t *testing.T) {
	src := `println(argv.len(), argv[0]);`
	scanner := lexer.NewScanner(src, "test.tn")
	p := parser.NewParserWithSource(scanner.ScanTokens(), src, "test.tn")
	chunk, err := compiler.NewCompilerForFile("test.tn").Compile(p.Parse())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var out bytes.Buffer
	conf := DefaultConfig()
	conf.Stdout = &out
	conf.Stderr = &out
	interp := New(conf)
	if err := interp.Prepare(chunk, []string{"one", "two"}); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if exit := interp.Run(); exit != 0 {
		t.Fatalf("exit = %d", exit)
	}
	if out.String() != "2 one \n" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestLifecycleStates(t *testing.T) {
	chunk := bytecode.NewChunk("test")
	chunk.WriteOp(bytecode.OpReturnNone, 1)

	interp := New(DefaultConfig())
	if interp.State() != StateUninitialised {
		t.Fatalf("state = %v", interp.State())
	}
	if err := interp.Prepare(chunk, nil); err != nil {
		t.Fatal(err)
	}
	if interp.State() != StateReady {
		t.Fatalf("state = %v", interp.State())
	}
	if exit := interp.Run(); exit != 0 {
		t.Fatalf("exit = %d", exit)
	}
	if interp.State() != StateHalted {
		t.Fatalf("state = %v", interp.State())
	}
	interp.Teardown()
	if interp.State() != StateUninitialised {
		t.Fatalf("state = %v", interp.State())
	}
	if interp.GC().Count() != 0 {
		t.Errorf("registry not empty after teardown: %d", interp.GC().Count())
	}
	// A second Prepare on the same instance must work.
	if err := interp.Prepare(chunk, nil); err != nil {
		t.Fatal(err)
	}
	if exit := interp.Run(); exit != 0 {
		t.Fatalf("second run exit = %d", exit)
	}
	interp.Teardown()
}

func TestPrepareRejectsDoubleUse(t *testing.T) {
	chunk := bytecode.NewChunk("test")
	chunk.WriteOp(bytecode.OpReturnNone, 1)
	interp := New(DefaultConfig())
	if err := interp.Prepare(chunk, nil); err != nil {
		t.Fatal(err)
	}
	if err := interp.Prepare(chunk, nil); err == nil {
		t.Fatal("second Prepare should fail")
	}
	if err := New(DefaultConfig()).Prepare(nil, nil); err == nil {
		t.Fatal("nil program should fail")
	}
}
