package compiler

import (
	"tern/internal/bytecode"
	"tern/internal/parser"
)

// Statement visitors.

func (c *Compiler) VisitLetStmt(s *parser.LetStmt) interface{} {
	s.Value.Accept(c)
	c.emitConstOp(bytecode.OpDeclareName, s.Name, s.Line)
	c.scope.locals[s.Name] = true
	return nil
}

func (c *Compiler) VisitAssignStmt(s *parser.AssignStmt) interface{} {
	switch target := s.Target.(type) {
	case *parser.Variable:
		s.Value.Accept(c)
		c.emitStoreVariable(target.Name, s.Line)
	case *parser.IndexExpr:
		target.Object.Accept(c)
		target.Index.Accept(c)
		s.Value.Accept(c)
		c.emit(bytecode.OpIndexSet, s.Line)
	case *parser.AttrExpr:
		target.Object.Accept(c)
		s.Value.Accept(c)
		c.emitConstOp(bytecode.OpAttrSet, target.Name, s.Line)
	default:
		c.compileError(s.Line, "invalid assignment target")
	}
	return nil
}

func (c *Compiler) VisitExprStmt(s *parser.ExprStmt) interface{} {
	s.E.Accept(c)
	c.emit(bytecode.OpPop, 0)
	return nil
}

func (c *Compiler) VisitFuncStmt(s *parser.FuncStmt) interface{} {
	// Declare the name (with a placeholder cell) before the function value
	// exists, so the body can capture it for recursion.
	c.scope.locals[s.Fn.Name] = true
	c.emit(bytecode.OpLoadUndef, s.Fn.Line)
	c.emitConstOp(bytecode.OpDeclareName, s.Fn.Name, s.Fn.Line)
	proto := c.compileFunction(s.Fn, false)
	c.emitConstOp(bytecode.OpMakeFunc, proto, s.Fn.Line)
	c.emitStoreVariable(s.Fn.Name, s.Fn.Line)
	return nil
}

func (c *Compiler) VisitClassStmt(s *parser.ClassStmt) interface{} {
	proto := &ClassProto{Name: s.Name}
	for _, m := range s.Methods {
		proto.Methods = append(proto.Methods, c.compileFunction(m, true))
	}
	c.emitConstOp(bytecode.OpMakeClass, proto, s.Line)
	c.emitConstOp(bytecode.OpDeclareName, s.Name, s.Line)
	c.scope.locals[s.Name] = true
	return nil
}

func (c *Compiler) VisitIfStmt(s *parser.IfStmt) interface{} {
	s.Cond.Accept(c)
	skipThen := c.emitJump(bytecode.OpJumpIfFalse, s.Line)
	for _, st := range s.Then {
		st.Accept(c)
	}
	if len(s.Else) > 0 {
		skipElse := c.emitJump(bytecode.OpJump, s.Line)
		c.patchJump(skipThen)
		for _, st := range s.Else {
			st.Accept(c)
		}
		c.patchJump(skipElse)
	} else {
		c.patchJump(skipThen)
	}
	return nil
}

func (c *Compiler) VisitWhileStmt(s *parser.WhileStmt) interface{} {
	loopStart := len(c.scope.chunk.Code)
	s.Cond.Accept(c)
	exit := c.emitJump(bytecode.OpJumpIfFalse, s.Line)
	for _, st := range s.Body {
		st.Accept(c)
	}
	c.emit(bytecode.OpJump, s.Line)
	c.emitShort(uint16(loopStart), s.Line)
	c.patchJump(exit)
	return nil
}

func (c *Compiler) VisitForStmt(s *parser.ForStmt) interface{} {
	if s.Init != nil {
		s.Init.Accept(c)
	}
	loopStart := len(c.scope.chunk.Code)
	if s.Cond != nil {
		s.Cond.Accept(c)
	} else {
		c.emit(bytecode.OpLoadTrue, s.Line)
	}
	exit := c.emitJump(bytecode.OpJumpIfFalse, s.Line)
	for _, st := range s.Body {
		st.Accept(c)
	}
	if s.Step != nil {
		s.Step.Accept(c)
	}
	c.emit(bytecode.OpJump, s.Line)
	c.emitShort(uint16(loopStart), s.Line)
	c.patchJump(exit)
	return nil
}

func (c *Compiler) VisitReturnStmt(s *parser.ReturnStmt) interface{} {
	if s.Value != nil {
		s.Value.Accept(c)
		c.emit(bytecode.OpReturn, s.Line)
	} else {
		c.emit(bytecode.OpReturnNone, s.Line)
	}
	return nil
}

func (c *Compiler) VisitTryStmt(s *parser.TryStmt) interface{} {
	handler := c.emitJump(bytecode.OpTry, s.Line)
	for _, st := range s.Body {
		st.Accept(c)
	}
	c.emit(bytecode.OpEndTry, s.Line)
	end := c.emitJump(bytecode.OpJump, s.Line)
	c.patchJump(handler)
	// The raised value arrives on the stack.
	if s.CatchName != "" {
		c.emitConstOp(bytecode.OpDeclareName, s.CatchName, s.Line)
		c.scope.locals[s.CatchName] = true
	} else {
		c.emit(bytecode.OpPop, s.Line)
	}
	for _, st := range s.Catch {
		st.Accept(c)
	}
	c.patchJump(end)
	return nil
}

func (c *Compiler) VisitRaiseStmt(s *parser.RaiseStmt) interface{} {
	s.Value.Accept(c)
	c.emit(bytecode.OpRaise, s.Line)
	return nil
}

func (c *Compiler) VisitBlockStmt(s *parser.BlockStmt) interface{} {
	for _, st := range s.Stmts {
		st.Accept(c)
	}
	return nil
}
