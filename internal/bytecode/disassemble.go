package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders a chunk as human-readable assembly, one instruction
// per line. Function and class descriptor constants render through their
// String methods.
func Disassemble(c *Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", c.Name)
	for ip := 0; ip < len(c.Code); {
		ip = disassembleInstruction(&sb, c, ip)
	}
	return sb.String()
}

func disassembleInstruction(sb *strings.Builder, c *Chunk, ip int) int {
	op := OpCode(c.Code[ip])
	fmt.Fprintf(sb, "%04d %4d %-14s", ip, c.Line(ip), op.String())
	next := ip + 1

	switch op {
	case OpLoadConst, OpDeclareName, OpLoadName, OpStoreName,
		OpAttrGet, OpAttrSet, OpMakeFunc, OpMakeClass:
		idx := readShort(c, next)
		fmt.Fprintf(sb, " %d (%v)", idx, constantAt(c, int(idx)))
		next += 2
	case OpLoadUpval, OpStoreUpval, OpMakeList, OpMakeMap, OpMakeSet:
		fmt.Fprintf(sb, " %d", readShort(c, next))
		next += 2
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpTry:
		fmt.Fprintf(sb, " -> %04d", readShort(c, next))
		next += 2
	case OpCall:
		fmt.Fprintf(sb, " argc=%d", c.Code[next])
		next++
	case OpAttrCall:
		idx := readShort(c, next)
		fmt.Fprintf(sb, " %d (%v) argc=%d", idx, constantAt(c, int(idx)), c.Code[next+2])
		next += 3
	}
	sb.WriteByte('\n')
	return next
}

func readShort(c *Chunk, pos int) uint16 {
	return uint16(c.Code[pos])<<8 | uint16(c.Code[pos+1])
}

func constantAt(c *Chunk, idx int) interface{} {
	if idx < 0 || idx >= len(c.Constants) {
		return "?"
	}
	if s, ok := c.Constants[idx].(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return c.Constants[idx]
}
