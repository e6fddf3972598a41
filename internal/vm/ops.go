package vm

import (
	"math"

	"tern/internal/bytecode"
	"tern/internal/errors"
)

// The operator kernel. Each entry point checks the allowed tag
// combinations, performs the operation, and hands back a fresh handle;
// mismatched kinds are a TypeError.

func typeErr2(op string, a, b Value) error {
	return errors.NewRuntimeError(errors.TypeError,
		"unsupported operand types for %s: %s and %s", op, a.TypeName(), b.TypeName())
}

// kernelAdd: Number+Number, String+String (fresh string), List+List
// (concat copy).
func kernelAdd(g *GC, a, b Value) (Value, error) {
	switch {
	case a.kind == KindNumber && b.kind == KindNumber:
		return NumberValue(a.num + b.num), nil
	case a.kind == KindString && b.kind == KindString:
		return g.NewString(a.Str() + b.Str()), nil
	case a.kind == KindList && b.kind == KindList:
		out := g.NewList(a.List().Len() + b.List().Len())
		for _, el := range a.List().elems {
			out.List().Append(el)
		}
		for _, el := range b.List().elems {
			out.List().Append(el)
		}
		return out, nil
	}
	return Undefined, typeErr2("+", a, b)
}

func kernelArith(op bytecode.OpCode, a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Undefined, typeErr2(op.String(), a, b)
	}
	x, y := a.num, b.num
	switch op {
	case bytecode.OpSub:
		return NumberValue(x - y), nil
	case bytecode.OpMul:
		return NumberValue(x * y), nil
	case bytecode.OpDiv:
		if y == 0 {
			return Undefined, errors.NewRuntimeError(errors.ArithError, "division by zero")
		}
		return NumberValue(x / y), nil
	case bytecode.OpMod:
		if y == 0 {
			return Undefined, errors.NewRuntimeError(errors.ArithError, "modulo by zero")
		}
		return NumberValue(math.Mod(x, y)), nil
	case bytecode.OpPow:
		return NumberValue(math.Pow(x, y)), nil
	}
	panic("not an arithmetic opcode: " + op.String())
}

// toInt64 admits only integer-valued numbers; the bitwise operators and
// index positions require them.
func toInt64(v Value, what string) (int64, error) {
	if v.kind != KindNumber {
		return 0, errors.NewRuntimeError(errors.TypeError, "%s must be a number, not %s", what, v.TypeName())
	}
	if v.num != math.Trunc(v.num) || math.IsInf(v.num, 0) || math.IsNaN(v.num) {
		return 0, errors.NewRuntimeError(errors.TypeError, "%s must be an integer", what)
	}
	return int64(v.num), nil
}

func kernelBitwise(op bytecode.OpCode, a, b Value) (Value, error) {
	x, err := toInt64(a, "bitwise operand")
	if err != nil {
		return Undefined, typeErr2(op.String(), a, b)
	}
	y, err := toInt64(b, "bitwise operand")
	if err != nil {
		return Undefined, typeErr2(op.String(), a, b)
	}
	switch op {
	case bytecode.OpBitAnd:
		return NumberValue(float64(x & y)), nil
	case bytecode.OpBitOr:
		return NumberValue(float64(x | y)), nil
	case bytecode.OpBitXor:
		return NumberValue(float64(x ^ y)), nil
	case bytecode.OpShl:
		if y < 0 {
			return Undefined, errors.NewRuntimeError(errors.ArithError, "negative shift count")
		}
		return NumberValue(float64(x << uint(y))), nil
	case bytecode.OpShr:
		if y < 0 {
			return Undefined, errors.NewRuntimeError(errors.ArithError, "negative shift count")
		}
		return NumberValue(float64(x >> uint(y))), nil
	}
	panic("not a bitwise opcode: " + op.String())
}

// kernelCompare orders Numbers and Strings pairwise; the result is a
// Number 0/1. Equality is handled separately and admits any kinds.
func kernelCompare(op bytecode.OpCode, a, b Value) (Value, error) {
	var less, equal bool
	switch {
	case a.kind == KindNumber && b.kind == KindNumber:
		less, equal = a.num < b.num, a.num == b.num
	case a.kind == KindString && b.kind == KindString:
		less, equal = a.Str() < b.Str(), a.Str() == b.Str()
	default:
		return Undefined, typeErr2(op.String(), a, b)
	}
	switch op {
	case bytecode.OpLess:
		return BoolValue(less), nil
	case bytecode.OpLessEqual:
		return BoolValue(less || equal), nil
	case bytecode.OpGreater:
		return BoolValue(!less && !equal), nil
	case bytecode.OpGreaterEqual:
		return BoolValue(!less), nil
	}
	panic("not a comparison opcode: " + op.String())
}

func kernelNegate(v Value) (Value, error) {
	if v.kind != KindNumber {
		return Undefined, errors.NewRuntimeError(errors.TypeError,
			"unary - requires a number, not %s", v.TypeName())
	}
	return NumberValue(-v.num), nil
}

// indexGet implements a[i]: integer index into List or String, hashable
// key into Map. String indexing yields a one-character string.
func indexGet(g *GC, container, index Value) (Value, error) {
	switch container.kind {
	case KindList:
		i, err := toInt64(index, "list index")
		if err != nil {
			return Undefined, err
		}
		return container.List().Get(int(i))
	case KindMap:
		return container.Map().Get(index)
	case KindString:
		i, err := toInt64(index, "string index")
		if err != nil {
			return Undefined, err
		}
		s := container.Str()
		idx := int(i)
		if idx < 0 {
			idx += len(s)
		}
		if idx < 0 || idx >= len(s) {
			return Undefined, errors.NewRuntimeError(errors.IndexError, "string index %d out of range", i)
		}
		return g.NewString(s[idx : idx+1]), nil
	}
	return Undefined, errors.NewRuntimeError(errors.TypeError, "%s is not indexable", container.TypeName())
}

// indexSet implements a[i] = v for Lists and Maps. Strings are immutable.
func indexSet(container, index, v Value) error {
	switch container.kind {
	case KindList:
		i, err := toInt64(index, "list index")
		if err != nil {
			return err
		}
		return container.List().Put(int(i), v)
	case KindMap:
		return container.Map().Put(index, v)
	case KindString:
		return errors.NewRuntimeError(errors.TypeError, "strings are immutable")
	}
	return errors.NewRuntimeError(errors.TypeError, "%s does not support index assignment", container.TypeName())
}
