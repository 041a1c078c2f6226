// Package parser implements the parser that transforms source code into an
// abstract syntax tree (AST).
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/scanner"
	"github.com/mna/blox/lang/token"
)

// maxArity is the maximum number of parameters of a function and of
// arguments at a call site.
const maxArity = 255

// ParseFile is a helper function that reads, scans and parses a single
// source file. The error, if non-nil, is guaranteed to be a
// scanner.ErrorList.
func ParseFile(ctx context.Context, file string) (*ast.Program, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		var el scanner.ErrorList
		el.Add(token.Position(file, nil, 0), err.Error())
		return nil, el.Err()
	}
	return Parse(file, b)
}

// Parse scans and parses src. Scan errors prevent the parse phase from
// running. Parse errors are accumulated with recovery at statement
// boundaries; if any occurred, the returned error is a non-empty
// scanner.ErrorList.
func Parse(filename string, src []byte) (*ast.Program, error) {
	toks, err := scanner.Scan(filename, src)
	if err != nil {
		return nil, err
	}

	var p parser
	p.init(filename, src, toks)
	prog := p.program()
	p.errors.Sort()
	return prog, p.errors.Err()
}

// errPanicMode is the sentinel panic value used to unwind the parser to the
// closest synchronization point on a parse error.
var errPanicMode = errors.New("panic")

type parser struct {
	filename string
	src      []byte
	toks     []scanner.TokenAndValue
	pos      int
	errors   scanner.ErrorList
	nextID   ast.ExprID
}

func (p *parser) init(filename string, src []byte, toks []scanner.TokenAndValue) {
	p.filename = filename
	p.src = src
	p.toks = toks
	p.pos = 0
	p.nextID = 0
}

func (p *parser) cur() scanner.TokenAndValue  { return p.toks[p.pos] }
func (p *parser) prev() scanner.TokenAndValue { return p.toks[p.pos-1] }
func (p *parser) atEnd() bool                 { return p.cur().Token == token.EOF }

func (p *parser) advance() scanner.TokenAndValue {
	if !p.atEnd() {
		p.pos++
	}
	return p.prev()
}

func (p *parser) check(tok token.Token) bool { return p.cur().Token == tok }

func (p *parser) match(toks ...token.Token) bool {
	for _, tok := range toks {
		if p.check(tok) {
			p.advance()
			return true
		}
	}
	return false
}

// expect advances and returns the current token if it matches tok, otherwise
// it reports an error and panics with errPanicMode which gets recovered at
// the declaration level, resulting in the parser synchronizing to the next
// safe point.
func (p *parser) expect(tok token.Token, context string) scanner.TokenAndValue {
	if p.check(tok) {
		return p.advance()
	}
	p.errorExpected(context)
	panic(errPanicMode)
}

func (p *parser) error(off int, msg string) {
	p.errors.Add(token.Position(p.filename, p.src, off), msg)
}

func (p *parser) errorExpected(what string) {
	cur := p.cur()
	found := cur.Value.Raw
	if cur.Token == token.EOF {
		found = "end of file"
	}
	p.error(cur.Value.Span.Off, fmt.Sprintf("expected %s, found '%s'", what, found))
}

// exprID allocates the next unique expression ID.
func (p *parser) exprID() ast.ExprID {
	id := p.nextID
	p.nextID++
	return id
}

func (p *parser) base(start token.Span) ast.ExprBase {
	end := p.prev().Value.Span.End()
	return ast.NewExprBase(p.exprID(), token.Span{Off: start.Off, Len: end - start.Off})
}

// synchronize discards tokens until just past a semicolon or until a
// statement-starting keyword.
func (p *parser) synchronize() {
	for !p.atEnd() {
		if p.advance().Token == token.SEMICOLON {
			return
		}
		switch p.cur().Token {
		case token.CLASS, token.FUN, token.VAR, token.FOR,
			token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
	}
}

// program → declaration* EOF
func (p *parser) program() *ast.Program {
	prog := &ast.Program{}
	for !p.atEnd() {
		if d := p.declaration(); d != nil {
			prog.Decls = append(prog.Decls, d)
		}
	}
	prog.EOF = p.cur().Value.Span
	return prog
}

// declaration parses a single declaration, recovering to the next statement
// boundary on a parse error (in which case it returns nil).
func (p *parser) declaration() (d ast.Decl) {
	defer func() {
		if e := recover(); e != nil {
			if e != errPanicMode { //nolint:errorlint
				panic(e)
			}
			p.synchronize()
			d = nil
		}
	}()

	switch {
	case p.match(token.CLASS):
		return p.classDecl()
	case p.match(token.FUN):
		return &ast.FunDecl{Fn: p.function("function")}
	case p.match(token.VAR):
		return p.varDecl()
	default:
		return &ast.StmtDecl{Stmt: p.statement()}
	}
}

// classDecl → "class" IDENT ( "<" IDENT )? "{" function* "}"
func (p *parser) classDecl() ast.Decl {
	class := p.prev().Value.Span
	name := p.expect(token.IDENT, "class name")

	var superclass *ast.VariableExpr
	if p.match(token.LT) {
		sup := p.expect(token.IDENT, "superclass name")
		superclass = &ast.VariableExpr{
			ExprBase: ast.NewExprBase(p.exprID(), sup.Value.Span),
			Name:     sup.Value.Raw,
		}
	}

	p.expect(token.LBRACE, "'{' before class body")
	var methods []*ast.Function
	for !p.check(token.RBRACE) && !p.atEnd() {
		methods = append(methods, p.function("method"))
	}
	rbrace := p.expect(token.RBRACE, "'}' after class body")

	return &ast.ClassDecl{
		Class:      class,
		Name:       name.Value.Raw,
		NameSpan:   name.Value.Span,
		Superclass: superclass,
		Methods:    methods,
		End:        rbrace.Value.Span.End(),
	}
}

// function → IDENT "(" params? ")" block
func (p *parser) function(kind string) *ast.Function {
	start := p.prev().Value.Span
	name := p.expect(token.IDENT, kind+" name")
	if kind == "method" {
		start = name.Value.Span
	}

	p.expect(token.LPAREN, "'(' after "+kind+" name")
	var params []string
	if !p.check(token.RPAREN) {
		for {
			if len(params) >= maxArity {
				p.error(p.cur().Value.Span.Off, "can't have more than 255 parameters")
			}
			prm := p.expect(token.IDENT, "parameter name")
			params = append(params, prm.Value.Raw)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.expect(token.RPAREN, "')' after parameters")

	p.expect(token.LBRACE, "'{' before "+kind+" body")
	body, end := p.blockDecls()

	return &ast.Function{
		Name:     name.Value.Raw,
		NameSpan: name.Value.Span,
		Params:   params,
		Body:     body,
		Fun:      start,
		End:      end,
	}
}

// varDecl → "var" IDENT ( "=" expression )? ";"
func (p *parser) varDecl() ast.Decl {
	kw := p.prev().Value.Span
	name := p.expect(token.IDENT, "variable name")

	var init ast.Expr
	if p.match(token.EQ) {
		init = p.expression()
	}
	semi := p.expect(token.SEMICOLON, "';' after variable declaration")

	return &ast.VarDecl{
		Var:      kw,
		Name:     name.Value.Raw,
		NameSpan: name.Value.Span,
		Init:     init,
		End:      semi.Value.Span.End(),
	}
}

func (p *parser) statement() ast.Stmt {
	switch {
	case p.match(token.PRINT):
		return p.printStmt()
	case p.match(token.RETURN):
		return p.returnStmt()
	case p.match(token.LBRACE):
		lbrace := p.prev().Value.Span
		decls, end := p.blockDecls()
		return &ast.BlockStmt{Lbrace: lbrace, Decls: decls, End: end}
	case p.match(token.IF):
		return p.ifStmt()
	case p.match(token.WHILE):
		return p.whileStmt()
	case p.match(token.FOR):
		return p.forStmt()
	default:
		return p.exprStmt()
	}
}

func (p *parser) printStmt() ast.Stmt {
	kw := p.prev().Value.Span
	e := p.expression()
	semi := p.expect(token.SEMICOLON, "';' after value")
	return &ast.PrintStmt{Print: kw, Expr: e, End: semi.Value.Span.End()}
}

func (p *parser) returnStmt() ast.Stmt {
	kw := p.prev().Value.Span
	var value ast.Expr
	if !p.check(token.SEMICOLON) {
		value = p.expression()
	}
	semi := p.expect(token.SEMICOLON, "';' after return value")
	return &ast.ReturnStmt{Return: kw, Value: value, End: semi.Value.Span.End()}
}

// blockDecls parses declarations until the closing brace, which must have
// been preceded by an already-consumed opening brace. Returns the
// declarations and the offset just past the closing brace.
func (p *parser) blockDecls() ([]ast.Decl, int) {
	var decls []ast.Decl
	for !p.check(token.RBRACE) && !p.atEnd() {
		if d := p.declaration(); d != nil {
			decls = append(decls, d)
		}
	}
	rbrace := p.expect(token.RBRACE, "'}' after block")
	return decls, rbrace.Value.Span.End()
}

func (p *parser) ifStmt() ast.Stmt {
	kw := p.prev().Value.Span
	p.expect(token.LPAREN, "'(' after 'if'")
	cond := p.expression()
	p.expect(token.RPAREN, "')' after if condition")

	then := p.statement()
	var els ast.Stmt
	if p.match(token.ELSE) {
		els = p.statement()
	}
	return &ast.IfStmt{If: kw, Cond: cond, Then: then, Else: els}
}

func (p *parser) whileStmt() ast.Stmt {
	kw := p.prev().Value.Span
	p.expect(token.LPAREN, "'(' after 'while'")
	cond := p.expression()
	p.expect(token.RPAREN, "')' after while condition")
	body := p.statement()
	return &ast.WhileStmt{While: kw, Cond: cond, Body: body}
}

// forStmt desugars "for (init; cond; incr) body" to
// "{ init; while (cond) { body; incr; } }". An omitted condition becomes a
// literal true.
func (p *parser) forStmt() ast.Stmt {
	kw := p.prev().Value.Span
	p.expect(token.LPAREN, "'(' after 'for'")

	var init ast.Decl
	switch {
	case p.match(token.SEMICOLON):
		// no initializer
	case p.match(token.VAR):
		init = p.varDecl()
	default:
		init = &ast.StmtDecl{Stmt: p.exprStmt()}
	}

	var cond ast.Expr
	if !p.check(token.SEMICOLON) {
		cond = p.expression()
	}
	semi := p.expect(token.SEMICOLON, "';' after loop condition")
	if cond == nil {
		cond = &ast.LiteralExpr{
			ExprBase: ast.NewExprBase(p.exprID(), semi.Value.Span),
			Value:    true,
		}
	}

	var incr ast.Expr
	if !p.check(token.RPAREN) {
		incr = p.expression()
	}
	p.expect(token.RPAREN, "')' after for clauses")

	body := p.statement()
	if incr != nil {
		body = &ast.BlockStmt{
			Lbrace: token.Span{Off: body.Span().Off},
			Decls: []ast.Decl{
				&ast.StmtDecl{Stmt: body},
				&ast.StmtDecl{Stmt: &ast.ExprStmt{Expr: incr, End: incr.Span().End()}},
			},
			End: body.Span().End(),
		}
	}

	var loop ast.Stmt = &ast.WhileStmt{While: kw, Cond: cond, Body: body}
	if init != nil {
		loop = &ast.BlockStmt{
			Lbrace: token.Span{Off: kw.Off},
			Decls:  []ast.Decl{init, &ast.StmtDecl{Stmt: loop}},
			End:    body.Span().End(),
		}
	}
	return loop
}

func (p *parser) exprStmt() ast.Stmt {
	e := p.expression()
	semi := p.expect(token.SEMICOLON, "';' after expression")
	return &ast.ExprStmt{Expr: e, End: semi.Value.Span.End()}
}

// expression → assignment
func (p *parser) expression() ast.Expr { return p.assignment() }

// assignment is right-associative: parse the LHS as an or-expression and if
// an "=" follows, validate it as a Variable (producing Assign) or a Get
// (rewritten as Set).
func (p *parser) assignment() ast.Expr {
	e := p.or()

	if p.match(token.EQ) {
		eq := p.prev()
		value := p.assignment()

		switch target := e.(type) {
		case *ast.VariableExpr:
			start := e.Span()
			return &ast.AssignExpr{
				ExprBase: p.base(start),
				Name:     target.Name,
				Value:    value,
			}
		case *ast.GetExpr:
			start := e.Span()
			return &ast.SetExpr{
				ExprBase: p.base(start),
				Object:   target.Object,
				Name:     target.Name,
				Value:    value,
			}
		}
		// report but do not panic: the expression is already parsed
		p.error(eq.Value.Span.Off, "invalid assignment target")
	}
	return e
}

// or → and ("or" and)*
func (p *parser) or() ast.Expr {
	e := p.and()
	for p.match(token.OR) {
		right := p.and()
		e = &ast.LogicalExpr{
			ExprBase: p.base(e.Span()),
			Left:     e,
			Op:       token.OR,
			Right:    right,
		}
	}
	return e
}

// and → equality ("and" equality)*
func (p *parser) and() ast.Expr {
	e := p.equality()
	for p.match(token.AND) {
		right := p.equality()
		e = &ast.LogicalExpr{
			ExprBase: p.base(e.Span()),
			Left:     e,
			Op:       token.AND,
			Right:    right,
		}
	}
	return e
}

func (p *parser) binaryLoop(next func() ast.Expr, ops ...token.Token) ast.Expr {
	e := next()
	for p.match(ops...) {
		op := p.prev().Token
		right := next()
		e = &ast.BinaryExpr{
			ExprBase: p.base(e.Span()),
			Left:     e,
			Op:       op,
			Right:    right,
		}
	}
	return e
}

// equality → comparison (("=="|"!=") comparison)*
func (p *parser) equality() ast.Expr {
	return p.binaryLoop(p.comparison, token.EQEQ, token.BANGEQ)
}

// comparison → term ((">"|">="|"<"|"<=") term)*
func (p *parser) comparison() ast.Expr {
	return p.binaryLoop(p.term, token.GT, token.GE, token.LT, token.LE)
}

// term → factor (("+"|"-") factor)*
func (p *parser) term() ast.Expr {
	return p.binaryLoop(p.factor, token.PLUS, token.MINUS)
}

// factor → unary (("*"|"/") unary)*
func (p *parser) factor() ast.Expr {
	return p.binaryLoop(p.unary, token.STAR, token.SLASH)
}

// unary → ("!"|"-") unary | call
func (p *parser) unary() ast.Expr {
	if p.match(token.BANG, token.MINUS) {
		op := p.prev()
		right := p.unary()
		return &ast.UnaryExpr{
			ExprBase: p.base(op.Value.Span),
			Op:       op.Token,
			Right:    right,
		}
	}
	return p.call()
}

// call → primary ( "(" args? ")" | "." IDENT )*
func (p *parser) call() ast.Expr {
	e := p.primary()
	for {
		switch {
		case p.match(token.LPAREN):
			e = p.finishCall(e)
		case p.match(token.DOT):
			name := p.expect(token.IDENT, "property name after '.'")
			e = &ast.GetExpr{
				ExprBase: p.base(e.Span()),
				Object:   e,
				Name:     name.Value.Raw,
				NameSpan: name.Value.Span,
			}
		default:
			return e
		}
	}
}

func (p *parser) finishCall(callee ast.Expr) ast.Expr {
	var args []ast.Expr
	if !p.check(token.RPAREN) {
		for {
			if len(args) >= maxArity {
				p.error(p.cur().Value.Span.Off, "can't have more than 255 arguments")
			}
			args = append(args, p.expression())
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	paren := p.expect(token.RPAREN, "')' after arguments")
	return &ast.CallExpr{
		ExprBase: p.base(callee.Span()),
		Callee:   callee,
		Paren:    paren.Value.Span,
		Args:     args,
	}
}

func (p *parser) primary() ast.Expr {
	switch {
	case p.match(token.NUMBER):
		v := p.prev().Value
		return &ast.LiteralExpr{ExprBase: ast.NewExprBase(p.exprID(), v.Span), Value: v.Num}
	case p.match(token.STRING):
		v := p.prev().Value
		return &ast.LiteralExpr{ExprBase: ast.NewExprBase(p.exprID(), v.Span), Value: v.Str}
	case p.match(token.TRUE):
		return &ast.LiteralExpr{ExprBase: ast.NewExprBase(p.exprID(), p.prev().Value.Span), Value: true}
	case p.match(token.FALSE):
		return &ast.LiteralExpr{ExprBase: ast.NewExprBase(p.exprID(), p.prev().Value.Span), Value: false}
	case p.match(token.NIL):
		return &ast.LiteralExpr{ExprBase: ast.NewExprBase(p.exprID(), p.prev().Value.Span), Value: nil}
	case p.match(token.THIS):
		return &ast.ThisExpr{ExprBase: ast.NewExprBase(p.exprID(), p.prev().Value.Span)}
	case p.match(token.SUPER):
		kw := p.prev().Value.Span
		p.expect(token.DOT, "'.' after 'super'")
		method := p.expect(token.IDENT, "superclass method name")
		return &ast.SuperExpr{
			ExprBase: p.base(kw),
			Method:   method.Value.Raw,
		}
	case p.match(token.IDENT):
		v := p.prev().Value
		return &ast.VariableExpr{ExprBase: ast.NewExprBase(p.exprID(), v.Span), Name: v.Raw}
	case p.match(token.LPAREN):
		lparen := p.prev().Value.Span
		e := p.expression()
		p.expect(token.RPAREN, "')' after expression")
		return &ast.GroupingExpr{ExprBase: p.base(lparen), Expr: e}
	}

	cur := p.cur()
	found := cur.Value.Raw
	if cur.Token == token.EOF {
		found = "end of file"
	}
	p.error(cur.Value.Span.Off, fmt.Sprintf("expected expression, found '%s'", found))
	panic(errPanicMode)
}
