package vm

import (
	"fmt"
	"strings"
)

// The general builtin functions. print and println write each argument's
// string form followed by a single space; string concatenates; typeof
// names the kind.

func (in *Interp) installBuiltins() {
	install := func(name string, arity int, fn BuiltinFunc) {
		v := in.gc.NewFunction(&Function{Name: name, Arity: arity, Builtin: fn})
		in.globals[name] = NewCell(v)
	}
	install("print", -1, builtinPrint)
	install("println", -1, builtinPrintln)
	install("string", -1, builtinString)
	install("typeof", -1, builtinTypeof)
}

func builtinPrint(in *Interp, args []Value) (Value, error) {
	for _, a := range args {
		fmt.Fprintf(in.out, "%s ", ToString(a))
	}
	return Undefined, nil
}

func builtinPrintln(in *Interp, args []Value) (Value, error) {
	if _, err := builtinPrint(in, args); err != nil {
		return Undefined, err
	}
	fmt.Fprintln(in.out)
	return Undefined, nil
}

func builtinString(in *Interp, args []Value) (Value, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(ToString(a))
	}
	return in.gc.NewString(sb.String()), nil
}

func builtinTypeof(in *Interp, args []Value) (Value, error) {
	if len(args) == 0 {
		return Undefined, nil
	}
	if len(args) > 1 {
		fmt.Fprintln(in.errw, "typeof builtin function can only take 1 argument")
		return Undefined, nil
	}
	return in.gc.NewString(args[0].TypeName()), nil
}
