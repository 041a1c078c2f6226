// Package resolver implements the static scope analysis pass that runs
// between the parser and every backend. It maps each variable-use expression
// to the distance of the scope that declares it (absence means global) and
// validates the semantic rules around this, super and return.
package resolver

import (
	"fmt"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/scanner"
	"github.com/mna/blox/lang/token"
)

// FuncKind identifies the kind of function enclosing the code being
// resolved.
type FuncKind uint8

const (
	FuncNone FuncKind = iota
	FuncFunction
	FuncMethod
	FuncInitializer
)

// ClassKind identifies the kind of class enclosing the code being resolved.
type ClassKind uint8

const (
	ClassNone ClassKind = iota
	ClassClass
	ClassSubclass
)

// Info is the result of a successful resolve pass.
type Info struct {
	// Distances maps a variable-use expression ID to the number of scopes
	// between the use and the declaration. An ID absent from the map refers
	// to a global.
	Distances map[ast.ExprID]int
}

// Resolve walks the program and computes the scope-distance map. All
// semantic errors are accumulated; if any occurred, the returned error is a
// non-empty scanner.ErrorList and the Info is nil.
func Resolve(filename string, src []byte, prog *ast.Program) (*Info, error) {
	r := resolver{
		filename: filename,
		src:      src,
		info:     &Info{Distances: make(map[ast.ExprID]int)},
	}
	for _, d := range prog.Decls {
		r.decl(d)
	}
	r.errors.Sort()
	if err := r.errors.Err(); err != nil {
		return nil, err
	}
	return r.info, nil
}

type resolver struct {
	filename string
	src      []byte
	errors   scanner.ErrorList
	info     *Info

	// scopes is the stack of lexical scopes, innermost last. Each scope maps
	// a name to its defined bit: declared-but-undefined names catch reads of
	// a local inside its own initializer.
	scopes []map[string]bool

	funcKind  FuncKind
	classKind ClassKind
}

func (r *resolver) error(off int, msg string) {
	r.errors.Add(token.Position(r.filename, r.src, off), msg)
}

func (r *resolver) beginScope() { r.scopes = append(r.scopes, make(map[string]bool)) }
func (r *resolver) endScope()  { r.scopes = r.scopes[:len(r.scopes)-1] }

// declare inserts name into the innermost scope with its defined bit unset.
// Re-declaring a name within the same non-global scope is an error.
func (r *resolver) declare(name string, sp token.Span) {
	if len(r.scopes) == 0 {
		return
	}
	scope := r.scopes[len(r.scopes)-1]
	if _, ok := scope[name]; ok {
		r.error(sp.Off, fmt.Sprintf("variable '%s' already declared in this scope", name))
	}
	scope[name] = false
}

// define flips the defined bit of name in the innermost scope.
func (r *resolver) define(name string) {
	if len(r.scopes) == 0 {
		return
	}
	r.scopes[len(r.scopes)-1][name] = true
}

// resolveLocal walks the scopes innermost-out and records the distance of
// the first scope containing name. A name found in no scope is a global and
// is left out of the map.
func (r *resolver) resolveLocal(id ast.ExprID, name string) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if _, ok := r.scopes[i][name]; ok {
			r.info.Distances[id] = len(r.scopes) - 1 - i
			return
		}
	}
}

func (r *resolver) decl(d ast.Decl) {
	switch d := d.(type) {
	case *ast.VarDecl:
		r.declare(d.Name, d.NameSpan)
		if d.Init != nil {
			r.expr(d.Init)
		}
		r.define(d.Name)

	case *ast.FunDecl:
		// define before resolving the body so the function can refer to
		// itself recursively
		r.declare(d.Fn.Name, d.Fn.NameSpan)
		r.define(d.Fn.Name)
		r.function(d.Fn, FuncFunction)

	case *ast.ClassDecl:
		r.classDecl(d)

	case *ast.StmtDecl:
		r.stmt(d.Stmt)
	}
}

func (r *resolver) classDecl(d *ast.ClassDecl) {
	enclosing := r.classKind
	r.classKind = ClassClass
	defer func() { r.classKind = enclosing }()

	r.declare(d.Name, d.NameSpan)
	r.define(d.Name)

	if d.Superclass != nil {
		if d.Superclass.Name == d.Name {
			r.error(d.Superclass.Span().Off, "a class can't inherit from itself")
		}
		r.classKind = ClassSubclass
		r.expr(d.Superclass)

		r.beginScope()
		r.scopes[len(r.scopes)-1]["super"] = true
		defer r.endScope()
	}

	r.beginScope()
	r.scopes[len(r.scopes)-1]["this"] = true

	for _, m := range d.Methods {
		kind := FuncMethod
		if m.Name == "init" {
			kind = FuncInitializer
		}
		r.function(m, kind)
	}
	r.endScope()
}

func (r *resolver) function(fn *ast.Function, kind FuncKind) {
	enclosing := r.funcKind
	r.funcKind = kind
	defer func() { r.funcKind = enclosing }()

	r.beginScope()
	for _, prm := range fn.Params {
		r.declare(prm, fn.NameSpan)
		r.define(prm)
	}
	for _, d := range fn.Body {
		r.decl(d)
	}
	r.endScope()
}

func (r *resolver) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		r.expr(s.Expr)
	case *ast.PrintStmt:
		r.expr(s.Expr)
	case *ast.ReturnStmt:
		if r.funcKind == FuncNone {
			r.error(s.Return.Off, "can't return from top-level code")
		}
		if s.Value != nil {
			if r.funcKind == FuncInitializer {
				r.error(s.Return.Off, "can't return a value from an initializer")
			}
			r.expr(s.Value)
		}
	case *ast.BlockStmt:
		r.beginScope()
		for _, d := range s.Decls {
			r.decl(d)
		}
		r.endScope()
	case *ast.IfStmt:
		r.expr(s.Cond)
		r.stmt(s.Then)
		if s.Else != nil {
			r.stmt(s.Else)
		}
	case *ast.WhileStmt:
		r.expr(s.Cond)
		r.stmt(s.Body)
	}
}

func (r *resolver) expr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		r.expr(e.Left)
		r.expr(e.Right)
	case *ast.UnaryExpr:
		r.expr(e.Right)
	case *ast.LiteralExpr:
		// nothing to resolve
	case *ast.GroupingExpr:
		r.expr(e.Expr)
	case *ast.VariableExpr:
		if len(r.scopes) > 0 {
			if defined, ok := r.scopes[len(r.scopes)-1][e.Name]; ok && !defined {
				r.error(e.Span().Off, "can't read local variable in its own initializer")
			}
		}
		r.resolveLocal(e.ID(), e.Name)
	case *ast.AssignExpr:
		r.expr(e.Value)
		r.resolveLocal(e.ID(), e.Name)
	case *ast.LogicalExpr:
		r.expr(e.Left)
		r.expr(e.Right)
	case *ast.CallExpr:
		r.expr(e.Callee)
		for _, arg := range e.Args {
			r.expr(arg)
		}
	case *ast.GetExpr:
		r.expr(e.Object)
	case *ast.SetExpr:
		r.expr(e.Value)
		r.expr(e.Object)
	case *ast.ThisExpr:
		if r.classKind == ClassNone {
			r.error(e.Span().Off, "can't use 'this' outside of a class")
			return
		}
		r.resolveLocal(e.ID(), "this")
	case *ast.SuperExpr:
		switch r.classKind {
		case ClassNone:
			r.error(e.Span().Off, "can't use 'super' outside of a class")
			return
		case ClassClass:
			r.error(e.Span().Off, "can't use 'super' in a class with no superclass")
			return
		}
		r.resolveLocal(e.ID(), "super")
	}
}
