// Package interp implements the tree-walk evaluator. It executes the
// resolved AST directly, using a chain of environments for lexical scoping
// and the resolver's scope-distance map for variable lookup.
package interp

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/resolver"
	"github.com/mna/blox/lang/stdlib"
	"github.com/mna/blox/lang/token"
	"github.com/mna/blox/lang/types"
)

// errReturn is the control-flow signal used to propagate a return statement
// out of a function body. It is never reported to the user.
type errReturn struct {
	value types.Value
}

func (errReturn) Error() string { return "return" }

// Interp is the tree-walk evaluator. The zero value is not usable; create
// one with New. An Interp retains its global environment across Run calls,
// which is what makes the REPL work.
type Interp struct {
	// Out is the print sink. Defaults to os.Stdout.
	Out io.Writer

	globals *Environment
	env     *Environment
	dist    map[ast.ExprID]int
	in      *bufio.Reader

	filename string
	src      []byte
	frames   []types.StackFrame
}

// New returns an interpreter with the native functions defined in its
// global environment. Input for the readLine native is read from in, which
// may be nil to use os.Stdin.
func New(in io.Reader) *Interp {
	if in == nil {
		in = os.Stdin
	}
	i := &Interp{
		Out:     os.Stdout,
		globals: NewEnvironment(nil),
		in:      bufio.NewReader(in),
	}
	i.env = i.globals

	i.globals.Define("clock", &Native{name: "clock", arity: 0,
		fn: func(_ *Interp, _ []types.Value) (types.Value, error) {
			return types.Number(stdlib.Clock()), nil
		}})
	i.globals.Define("readLine", &Native{name: "readLine", arity: 0,
		fn: func(i *Interp, _ []types.Value) (types.Value, error) {
			line, ok := stdlib.ReadLine(i.in)
			if !ok {
				return types.Nil, nil
			}
			return types.String(line), nil
		}})
	i.globals.Define("toNumber", &Native{name: "toNumber", arity: 1,
		fn: func(_ *Interp, args []types.Value) (types.Value, error) {
			switch v := args[0].(type) {
			case types.Number:
				return v, nil
			case types.String:
				if n, ok := stdlib.ParseNumber(string(v)); ok {
					return types.Number(n), nil
				}
			}
			return types.Nil, nil
		}})
	return i
}

// Run executes the resolved program. The returned error, if non-nil, is a
// *types.RuntimeError with the call stack frozen at the point of failure.
func (i *Interp) Run(filename string, src []byte, prog *ast.Program, info *resolver.Info) error {
	i.filename = filename
	i.src = src
	i.dist = info.Distances
	i.frames = i.frames[:0]

	for _, d := range prog.Decls {
		if err := i.execDecl(d); err != nil {
			return err
		}
	}
	return nil
}

// Eval evaluates a single expression of a resolved program and returns its
// value. It exists to support printing bare expression results in the REPL.
func (i *Interp) Eval(filename string, src []byte, e ast.Expr, info *resolver.Info) (types.Value, error) {
	i.filename = filename
	i.src = src
	i.dist = info.Distances
	i.frames = i.frames[:0]
	return i.eval(e)
}

// errorAt builds a runtime error at the given span, freezing the current
// call stack into the error's backtrace, innermost frame first.
func (i *Interp) errorAt(sp token.Span, msg string) *types.RuntimeError {
	e := &types.RuntimeError{Msg: msg, Line: token.Line(i.src, sp.Off)}
	if len(i.frames) > 0 {
		e.Frames = make([]types.StackFrame, 0, len(i.frames))
		for j := len(i.frames) - 1; j >= 0; j-- {
			e.Frames = append(e.Frames, i.frames[j])
		}
	}
	return e
}

func (i *Interp) execDecl(d ast.Decl) error {
	switch d := d.(type) {
	case *ast.VarDecl:
		var v types.Value = types.Nil
		if d.Init != nil {
			var err error
			if v, err = i.eval(d.Init); err != nil {
				return err
			}
		}
		i.env.Define(d.Name, v)
		return nil

	case *ast.FunDecl:
		// snapshot the declaring environment for the closure
		i.env.Define(d.Fn.Name, &Function{decl: d.Fn, closure: i.env})
		return nil

	case *ast.ClassDecl:
		return i.execClassDecl(d)

	case *ast.StmtDecl:
		return i.execStmt(d.Stmt)
	}
	return nil
}

func (i *Interp) execClassDecl(d *ast.ClassDecl) error {
	var super *Class
	if d.Superclass != nil {
		v, err := i.eval(d.Superclass)
		if err != nil {
			return err
		}
		sc, ok := v.(*Class)
		if !ok {
			return i.errorAt(d.Superclass.Span(), "superclass must be a class")
		}
		super = sc
	}

	i.env.Define(d.Name, types.Nil)

	if super != nil {
		i.env = NewEnvironment(i.env)
		i.env.Define("super", super)
	}

	methods := make(map[string]*Function, len(d.Methods))
	for _, m := range d.Methods {
		methods[m.Name] = &Function{
			decl:    m,
			closure: i.env,
			isInit:  m.Name == "init",
		}
	}
	class := &Class{name: d.Name, super: super, methods: methods}

	if super != nil {
		i.env = i.env.enclosing
	}
	i.env.Assign(d.Name, class)
	return nil
}

func (i *Interp) execStmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.ExprStmt:
		_, err := i.eval(s.Expr)
		return err

	case *ast.PrintStmt:
		v, err := i.eval(s.Expr)
		if err != nil {
			return err
		}
		fmt.Fprintln(i.Out, v.String())
		return nil

	case *ast.ReturnStmt:
		var v types.Value = types.Nil
		if s.Value != nil {
			var err error
			if v, err = i.eval(s.Value); err != nil {
				return err
			}
		}
		return errReturn{value: v}

	case *ast.BlockStmt:
		return i.execBlock(s.Decls, NewEnvironment(i.env))

	case *ast.IfStmt:
		cond, err := i.eval(s.Cond)
		if err != nil {
			return err
		}
		if cond.Truth() {
			return i.execStmt(s.Then)
		}
		if s.Else != nil {
			return i.execStmt(s.Else)
		}
		return nil

	case *ast.WhileStmt:
		for {
			cond, err := i.eval(s.Cond)
			if err != nil {
				return err
			}
			if !cond.Truth() {
				return nil
			}
			if err := i.execStmt(s.Body); err != nil {
				return err
			}
		}
	}
	return nil
}

// execBlock executes decls in env, restoring the previous environment when
// done.
func (i *Interp) execBlock(decls []ast.Decl, env *Environment) error {
	prev := i.env
	i.env = env
	defer func() { i.env = prev }()

	for _, d := range decls {
		if err := i.execDecl(d); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interp) eval(e ast.Expr) (types.Value, error) {
	switch e := e.(type) {
	case *ast.LiteralExpr:
		switch v := e.Value.(type) {
		case nil:
			return types.Nil, nil
		case bool:
			return types.Bool(v), nil
		case float64:
			return types.Number(v), nil
		case string:
			return types.String(v), nil
		}
		return types.Nil, nil

	case *ast.GroupingExpr:
		return i.eval(e.Expr)

	case *ast.VariableExpr:
		return i.lookupVariable(e.ID(), e.Name, e.Span())

	case *ast.AssignExpr:
		v, err := i.eval(e.Value)
		if err != nil {
			return nil, err
		}
		if d, ok := i.dist[e.ID()]; ok {
			i.env.AssignAt(d, e.Name, v)
			return v, nil
		}
		if !i.globals.Assign(e.Name, v) {
			return nil, i.errorAt(e.Span(), fmt.Sprintf("undefined variable '%s'", e.Name))
		}
		return v, nil

	case *ast.UnaryExpr:
		return i.evalUnary(e)

	case *ast.BinaryExpr:
		return i.evalBinary(e)

	case *ast.LogicalExpr:
		left, err := i.eval(e.Left)
		if err != nil {
			return nil, err
		}
		if e.Op == token.OR {
			if left.Truth() {
				return left, nil
			}
		} else if !left.Truth() {
			return left, nil
		}
		return i.eval(e.Right)

	case *ast.CallExpr:
		return i.evalCall(e)

	case *ast.GetExpr:
		obj, err := i.eval(e.Object)
		if err != nil {
			return nil, err
		}
		inst, ok := obj.(*Instance)
		if !ok {
			return nil, i.errorAt(e.NameSpan, "only instances have properties")
		}
		if v, ok := inst.fields[e.Name]; ok {
			return v, nil
		}
		if m := inst.class.findMethod(e.Name); m != nil {
			return m.bind(inst), nil
		}
		return nil, i.errorAt(e.NameSpan, fmt.Sprintf("undefined property '%s'", e.Name))

	case *ast.SetExpr:
		obj, err := i.eval(e.Object)
		if err != nil {
			return nil, err
		}
		inst, ok := obj.(*Instance)
		if !ok {
			return nil, i.errorAt(e.Span(), "only instances have fields")
		}
		v, err := i.eval(e.Value)
		if err != nil {
			return nil, err
		}
		inst.fields[e.Name] = v
		return v, nil

	case *ast.ThisExpr:
		return i.lookupVariable(e.ID(), "this", e.Span())

	case *ast.SuperExpr:
		d := i.dist[e.ID()]
		super, _ := i.env.GetAt(d, "super").(*Class)
		if super == nil {
			return nil, i.errorAt(e.Span(), "can't use 'super' outside of a class")
		}
		inst, _ := i.env.GetAt(d-1, "this").(*Instance)
		m := super.findMethod(e.Method)
		if m == nil {
			return nil, i.errorAt(e.Span(), fmt.Sprintf("undefined property '%s'", e.Method))
		}
		return m.bind(inst), nil
	}
	return types.Nil, nil
}

func (i *Interp) lookupVariable(id ast.ExprID, name string, sp token.Span) (types.Value, error) {
	if d, ok := i.dist[id]; ok {
		return i.env.GetAt(d, name), nil
	}
	if v, ok := i.globals.Get(name); ok {
		return v, nil
	}
	return nil, i.errorAt(sp, fmt.Sprintf("undefined variable '%s'", name))
}

func (i *Interp) evalUnary(e *ast.UnaryExpr) (types.Value, error) {
	right, err := i.eval(e.Right)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case token.MINUS:
		n, ok := right.(types.Number)
		if !ok {
			return nil, i.errorAt(e.Span(), "operand must be a number")
		}
		return -n, nil
	case token.BANG:
		return types.Bool(!right.Truth()), nil
	}
	return types.Nil, nil
}

func (i *Interp) evalBinary(e *ast.BinaryExpr) (types.Value, error) {
	left, err := i.eval(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := i.eval(e.Right)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case token.EQEQ:
		return types.Bool(types.Equal(left, right)), nil
	case token.BANGEQ:
		return types.Bool(!types.Equal(left, right)), nil
	}

	if e.Op == token.PLUS {
		if ln, ok := left.(types.Number); ok {
			if rn, ok := right.(types.Number); ok {
				return ln + rn, nil
			}
		}
		if ls, ok := left.(types.String); ok {
			if rs, ok := right.(types.String); ok {
				return ls + rs, nil
			}
		}
		return nil, i.errorAt(e.Span(), "operands must be two numbers or two strings")
	}

	ln, lok := left.(types.Number)
	rn, rok := right.(types.Number)
	if !lok || !rok {
		return nil, i.errorAt(e.Span(), "operands must be numbers")
	}
	switch e.Op {
	case token.MINUS:
		return ln - rn, nil
	case token.STAR:
		return ln * rn, nil
	case token.SLASH:
		return ln / rn, nil
	case token.GT:
		return types.Bool(ln > rn), nil
	case token.GE:
		return types.Bool(ln >= rn), nil
	case token.LT:
		return types.Bool(ln < rn), nil
	case token.LE:
		return types.Bool(ln <= rn), nil
	}
	return types.Nil, nil
}

func (i *Interp) evalCall(e *ast.CallExpr) (types.Value, error) {
	callee, err := i.eval(e.Callee)
	if err != nil {
		return nil, err
	}

	args := make([]types.Value, len(e.Args))
	for idx, arg := range e.Args {
		if args[idx], err = i.eval(arg); err != nil {
			return nil, err
		}
	}

	fn, ok := callee.(Callable)
	if !ok {
		return nil, i.errorAt(e.Paren, "can only call functions and classes")
	}
	if len(args) != fn.Arity() {
		return nil, i.errorAt(e.Paren,
			fmt.Sprintf("expected %d arguments but got %d", fn.Arity(), len(args)))
	}

	// track user-function frames for backtraces
	switch fn := fn.(type) {
	case *Function:
		i.frames = append(i.frames, types.StackFrame{
			Function: fn.decl.Name,
			Line:     token.Line(i.src, e.Paren.Off),
		})
		defer func() { i.frames = i.frames[:len(i.frames)-1] }()
	case *Class:
		i.frames = append(i.frames, types.StackFrame{
			Function: fn.name,
			Line:     token.Line(i.src, e.Paren.Off),
		})
		defer func() { i.frames = i.frames[:len(i.frames)-1] }()
	}
	return fn.Call(i, args)
}
