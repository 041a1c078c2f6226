package compiler

import (
	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/token"
)

func (c *compiler) classDecl(d *ast.ClassDecl) {
	line := c.line(d.NameSpan)
	nameIdx := c.identifierConstant(d.Name, d.NameSpan.Off)

	c.declareVariable(d.Name, d.NameSpan)
	c.emit(OpClass, line)
	c.emitByte(nameIdx, line)
	c.defineVariable(nameIdx, line)

	c.curClass = &classComp{enclosing: c.curClass}
	defer func() { c.curClass = c.curClass.enclosing }()

	if d.Superclass != nil {
		c.namedVariable(d.Superclass.Name, d.Superclass.Span(), false)

		// the superclass value stays on the stack as the "super" local,
		// capturable by the methods
		c.beginScope()
		c.cur.locals = append(c.cur.locals, local{name: "super", depth: c.cur.scopeDepth})

		c.namedVariable(d.Name, d.NameSpan, false)
		c.emit(OpInherit, line)
		c.curClass.hasSuper = true
	}

	c.namedVariable(d.Name, d.NameSpan, false)
	for _, m := range d.Methods {
		kind := kindMethod
		if m.Name == "init" {
			kind = kindInitializer
		}
		mline := c.line(m.NameSpan)
		mIdx := c.identifierConstant(m.Name, m.NameSpan.Off)
		c.function(m, kind)
		c.emit(OpMethod, mline)
		c.emitByte(mIdx, mline)
	}
	c.emit(OpPop, line) // the class value pushed for the methods

	if c.curClass.hasSuper {
		c.endScope(line)
	}
}

func (c *compiler) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		c.expr(s.Expr)
		c.emit(OpPop, token.Line(c.src, s.End-1))

	case *ast.PrintStmt:
		c.expr(s.Expr)
		c.emit(OpPrint, c.line(s.Print))

	case *ast.ReturnStmt:
		line := c.line(s.Return)
		if s.Value != nil {
			c.expr(s.Value)
		} else if c.cur.kind == kindInitializer {
			c.emit(OpGetLocal, line)
			c.emitByte(0, line)
		} else {
			c.emit(OpNil, line)
		}
		c.emit(OpReturn, line)

	case *ast.BlockStmt:
		c.beginScope()
		for _, d := range s.Decls {
			c.decl(d)
		}
		c.endScope(token.Line(c.src, s.End-1))

	case *ast.IfStmt:
		line := c.line(s.If)
		c.expr(s.Cond)
		thenJump := c.emitJump(OpJumpIfFalse, line)
		c.emit(OpPop, line)
		c.stmt(s.Then)
		elseJump := c.emitJump(OpJump, line)
		c.patchJump(thenJump, s.If.Off)
		c.emit(OpPop, line)
		if s.Else != nil {
			c.stmt(s.Else)
		}
		c.patchJump(elseJump, s.If.Off)

	case *ast.WhileStmt:
		line := c.line(s.While)
		loopStart := len(c.chunk().Code)
		c.expr(s.Cond)
		exitJump := c.emitJump(OpJumpIfFalse, line)
		c.emit(OpPop, line)
		c.stmt(s.Body)
		c.emitLoop(loopStart, line, s.While.Off)
		c.patchJump(exitJump, s.While.Off)
		c.emit(OpPop, line)
	}
}

func (c *compiler) expr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.LiteralExpr:
		c.literal(e)

	case *ast.GroupingExpr:
		c.expr(e.Expr)

	case *ast.VariableExpr:
		c.namedVariable(e.Name, e.Span(), false)

	case *ast.AssignExpr:
		c.expr(e.Value)
		c.namedVariable(e.Name, e.Span(), true)

	case *ast.UnaryExpr:
		c.expr(e.Right)
		line := c.line(e.Span())
		switch e.Op {
		case token.MINUS:
			c.emit(OpNegate, line)
		case token.BANG:
			c.emit(OpNot, line)
		}

	case *ast.BinaryExpr:
		c.binary(e)

	case *ast.LogicalExpr:
		c.logical(e)

	case *ast.CallExpr:
		c.call(e)

	case *ast.GetExpr:
		c.expr(e.Object)
		line := c.line(e.NameSpan)
		c.emit(OpGetProperty, line)
		c.emitByte(c.identifierConstant(e.Name, e.NameSpan.Off), line)

	case *ast.SetExpr:
		c.expr(e.Object)
		c.expr(e.Value)
		line := c.line(e.Span())
		c.emit(OpSetProperty, line)
		c.emitByte(c.identifierConstant(e.Name, e.Span().Off), line)

	case *ast.ThisExpr:
		c.namedVariable("this", e.Span(), false)

	case *ast.SuperExpr:
		c.superGet(e)
	}
}

func (c *compiler) literal(e *ast.LiteralExpr) {
	line := c.line(e.Span())
	switch v := e.Value.(type) {
	case nil:
		c.emit(OpNil, line)
	case bool:
		if v {
			c.emit(OpTrue, line)
		} else {
			c.emit(OpFalse, line)
		}
	case float64:
		c.emitConstant(Constant{Kind: KindNumber, Num: v}, e.Span())
	case string:
		c.emitConstant(Constant{Kind: KindString, Str: v}, e.Span())
	}
}

func (c *compiler) binary(e *ast.BinaryExpr) {
	c.expr(e.Left)
	c.expr(e.Right)
	line := c.line(e.Span())
	switch e.Op {
	case token.PLUS:
		c.emit(OpAdd, line)
	case token.MINUS:
		c.emit(OpSubtract, line)
	case token.STAR:
		c.emit(OpMultiply, line)
	case token.SLASH:
		c.emit(OpDivide, line)
	case token.EQEQ:
		c.emit(OpEqual, line)
	case token.BANGEQ:
		c.emit(OpEqual, line)
		c.emit(OpNot, line)
	case token.GT:
		c.emit(OpGreater, line)
	case token.GE:
		c.emit(OpLess, line)
		c.emit(OpNot, line)
	case token.LT:
		c.emit(OpLess, line)
	case token.LE:
		c.emit(OpGreater, line)
		c.emit(OpNot, line)
	}
}

func (c *compiler) logical(e *ast.LogicalExpr) {
	line := c.line(e.Span())
	c.expr(e.Left)
	if e.Op == token.AND {
		end := c.emitJump(OpJumpIfFalse, line)
		c.emit(OpPop, line)
		c.expr(e.Right)
		c.patchJump(end, e.Span().Off)
		return
	}
	// or: skip the right operand when the left is truthy
	elseJump := c.emitJump(OpJumpIfFalse, line)
	endJump := c.emitJump(OpJump, line)
	c.patchJump(elseJump, e.Span().Off)
	c.emit(OpPop, line)
	c.expr(e.Right)
	c.patchJump(endJump, e.Span().Off)
}

// call compiles a call expression, fusing property and super accesses into
// Invoke and SuperInvoke to avoid constructing transient bound methods.
func (c *compiler) call(e *ast.CallExpr) {
	line := c.line(e.Paren)

	switch callee := e.Callee.(type) {
	case *ast.GetExpr:
		c.expr(callee.Object)
		for _, arg := range e.Args {
			c.expr(arg)
		}
		c.emit(OpInvoke, line)
		c.emitByte(c.identifierConstant(callee.Name, callee.NameSpan.Off), line)
		c.emitByte(byte(len(e.Args)), line)

	case *ast.SuperExpr:
		c.superInvoke(callee, e.Args)

	default:
		c.expr(e.Callee)
		for _, arg := range e.Args {
			c.expr(arg)
		}
		c.emit(OpCall, line)
		c.emitByte(byte(len(e.Args)), line)
	}
}

// superGet compiles a super.method access into a bound method via GetSuper.
func (c *compiler) superGet(e *ast.SuperExpr) {
	sp := e.Span()
	line := c.line(sp)
	nameIdx := c.identifierConstant(e.Method, sp.Off)

	c.namedVariable("this", sp, false)
	c.namedVariable("super", sp, false)
	c.emit(OpGetSuper, line)
	c.emitByte(nameIdx, line)
}

// superInvoke compiles a super.method(...) call, fused into SuperInvoke.
func (c *compiler) superInvoke(e *ast.SuperExpr, args []ast.Expr) {
	sp := e.Span()
	line := c.line(sp)
	nameIdx := c.identifierConstant(e.Method, sp.Off)

	c.namedVariable("this", sp, false)
	for _, arg := range args {
		c.expr(arg)
	}
	c.namedVariable("super", sp, false)
	c.emit(OpSuperInvoke, line)
	c.emitByte(nameIdx, line)
	c.emitByte(byte(len(args)), line)
}
