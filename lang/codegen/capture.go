// Package codegen implements the native backend: a capture-analysis
// pre-pass over the AST followed by lowering to LLVM IR that links against
// the C runtime. Captured variables live in heap-allocated cells shared by
// pointer identity; non-captured locals live in stack slots.
package codegen

import "github.com/mna/blox/lang/ast"

// VarKey identifies a captured variable by its name and the function that
// declares it. The empty function name means the top level.
type VarKey struct {
	Name string
	Fn   string
}

// CaptureInfo is the result of the capture-analysis pre-pass.
type CaptureInfo struct {
	// Captured holds the variables captured by at least one inner function.
	// These must be stored in cells instead of stack slots.
	Captured map[VarKey]bool

	// FunctionCaptures maps a function name to the ordered, deduplicated
	// list of captured variable names it references from enclosing scopes.
	// This list is the layout of the function's env array.
	FunctionCaptures map[string][]string
}

// AnalyzeCaptures walks the program and computes which variable references
// cross a function boundary. Intermediate enclosing functions between the
// declaring and the referencing function are marked as capturing too, so
// the cell threads through every env array on the way down.
func AnalyzeCaptures(prog *ast.Program) *CaptureInfo {
	a := &captureAnalyzer{
		scopes: []fnScope{{name: ""}},
		info: &CaptureInfo{
			Captured:         make(map[VarKey]bool),
			FunctionCaptures: make(map[string][]string),
		},
	}
	for _, d := range prog.Decls {
		a.decl(d)
	}
	return a.info
}

// fnScope is one entry of the function-scope stack: the function name and
// the set of variables it declares.
type fnScope struct {
	name     string
	declared map[string]bool
}

func (s *fnScope) declare(name string) {
	if s.declared == nil {
		s.declared = make(map[string]bool)
	}
	s.declared[name] = true
}

type captureAnalyzer struct {
	scopes []fnScope
	info   *CaptureInfo
}

func (a *captureAnalyzer) current() *fnScope { return &a.scopes[len(a.scopes)-1] }

func (a *captureAnalyzer) addCapture(fn, name string) {
	caps := a.info.FunctionCaptures[fn]
	for _, c := range caps {
		if c == name {
			return
		}
	}
	a.info.FunctionCaptures[fn] = append(caps, name)
}

// reference records a variable reference. A reference that resolves to a
// declaration in an outer function (but not the top level, whose variables
// are globals) marks the variable captured.
func (a *captureAnalyzer) reference(name string) {
	cur := a.current().name
	for i := len(a.scopes) - 1; i >= 0; i-- {
		scope := &a.scopes[i]
		if !scope.declared[name] {
			continue
		}
		if scope.name == "" || scope.name == cur {
			// top-level variables are globals; same-function references are
			// plain locals
			return
		}
		a.info.Captured[VarKey{Name: name, Fn: scope.name}] = true
		a.addCapture(cur, name)

		// thread the capture through the intermediate enclosing functions
		for _, mid := range a.scopes[i+1 : len(a.scopes)-1] {
			a.addCapture(mid.name, name)
		}
		return
	}
	// not declared in any function scope: a global
}

func (a *captureAnalyzer) decl(d ast.Decl) {
	switch d := d.(type) {
	case *ast.VarDecl:
		if d.Init != nil {
			a.expr(d.Init)
		}
		a.current().declare(d.Name)
	case *ast.FunDecl:
		a.current().declare(d.Fn.Name)
		a.function(d.Fn)
	case *ast.StmtDecl:
		a.stmt(d.Stmt)
	case *ast.ClassDecl:
		// classes are rejected by the native backend before lowering
	}
}

func (a *captureAnalyzer) function(fn *ast.Function) {
	a.scopes = append(a.scopes, fnScope{name: fn.Name})
	for _, prm := range fn.Params {
		a.current().declare(prm)
	}
	for _, d := range fn.Body {
		a.decl(d)
	}
	a.scopes = a.scopes[:len(a.scopes)-1]
}

func (a *captureAnalyzer) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		a.expr(s.Expr)
	case *ast.PrintStmt:
		a.expr(s.Expr)
	case *ast.ReturnStmt:
		if s.Value != nil {
			a.expr(s.Value)
		}
	case *ast.BlockStmt:
		for _, d := range s.Decls {
			a.decl(d)
		}
	case *ast.IfStmt:
		a.expr(s.Cond)
		a.stmt(s.Then)
		if s.Else != nil {
			a.stmt(s.Else)
		}
	case *ast.WhileStmt:
		a.expr(s.Cond)
		a.stmt(s.Body)
	}
}

func (a *captureAnalyzer) expr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.VariableExpr:
		a.reference(e.Name)
	case *ast.AssignExpr:
		a.expr(e.Value)
		a.reference(e.Name)
	case *ast.BinaryExpr:
		a.expr(e.Left)
		a.expr(e.Right)
	case *ast.UnaryExpr:
		a.expr(e.Right)
	case *ast.LogicalExpr:
		a.expr(e.Left)
		a.expr(e.Right)
	case *ast.CallExpr:
		a.expr(e.Callee)
		for _, arg := range e.Args {
			a.expr(arg)
		}
	case *ast.GroupingExpr:
		a.expr(e.Expr)
	case *ast.GetExpr:
		a.expr(e.Object)
	case *ast.SetExpr:
		a.expr(e.Value)
		a.expr(e.Object)
	}
}
