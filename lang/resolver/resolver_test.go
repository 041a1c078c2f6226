package resolver

import (
	"testing"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/parser"
	"github.com/mna/blox/lang/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveSrc(t *testing.T, src string) (*ast.Program, *Info, error) {
	t.Helper()
	prog, err := parser.Parse("test.lox", []byte(src))
	require.NoError(t, err)
	info, err := Resolve("test.lox", []byte(src), prog)
	return prog, info, err
}

func resolveOK(t *testing.T, src string) (*ast.Program, *Info) {
	t.Helper()
	prog, info, err := resolveSrc(t, src)
	require.NoError(t, err)
	return prog, info
}

// varUses collects the IDs of all VariableExpr nodes with the given name, in
// walk order.
func varUses(prog *ast.Program, name string) []ast.ExprID {
	var ids []ast.ExprID
	v := exprVisitor(func(e ast.Expr) {
		if ve, ok := e.(*ast.VariableExpr); ok && ve.Name == name {
			ids = append(ids, ve.ID())
		}
	})
	prog.Walk(v)
	return ids
}

type exprVisitor func(e ast.Expr)

func (v exprVisitor) Visit(n ast.Node) ast.Visitor {
	if e, ok := n.(ast.Expr); ok {
		v(e)
	}
	return v
}

func TestGlobalsAbsentFromMap(t *testing.T) {
	prog, info := resolveOK(t, "var x = 1; print x;")
	uses := varUses(prog, "x")
	require.Len(t, uses, 1)
	_, ok := info.Distances[uses[0]]
	assert.False(t, ok, "global use must be absent from the map")
}

func TestLocalDistanceZero(t *testing.T) {
	prog, info := resolveOK(t, "{ var x = 1; print x; }")
	uses := varUses(prog, "x")
	require.Len(t, uses, 1)
	assert.Equal(t, 0, info.Distances[uses[0]])
}

func TestEnclosingScopeDistance(t *testing.T) {
	prog, info := resolveOK(t, "{ var x = 1; { { print x; } } }")
	uses := varUses(prog, "x")
	require.Len(t, uses, 1)
	assert.Equal(t, 2, info.Distances[uses[0]])
}

func TestClosureCapture(t *testing.T) {
	src := "fun outer() { var x = 1; fun inner() { return x; } return inner; }"
	prog, info := resolveOK(t, src)
	uses := varUses(prog, "x")
	require.Len(t, uses, 1)
	// x is one function scope above inner's body scope
	assert.Equal(t, 1, info.Distances[uses[0]])
}

func TestShadowing(t *testing.T) {
	prog, info := resolveOK(t, "var x = 1; { var x = 2; print x; } print x;")
	uses := varUses(prog, "x")
	require.Len(t, uses, 2)
	// inner print resolves to the block-local at distance 0
	assert.Equal(t, 0, info.Distances[uses[0]])
	// outer print is global, absent
	_, ok := info.Distances[uses[1]]
	assert.False(t, ok)
}

func TestDeterminism(t *testing.T) {
	src := "fun f(a) { var b = a; { var c = b; print c; } return b; }"
	prog, err := parser.Parse("test.lox", []byte(src))
	require.NoError(t, err)

	first, err := Resolve("test.lox", []byte(src), prog)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Resolve("test.lox", []byte(src), prog)
		require.NoError(t, err)
		assert.Equal(t, first.Distances, again.Distances)
	}
}

func TestErrors(t *testing.T) {
	cases := map[string]string{
		"return 1;":                              "can't return from top-level code",
		"class Foo { init() { return 1; } }":     "can't return a value from an initializer",
		"print this;":                            "can't use 'this' outside of a class",
		"fun f() { return this; }":               "can't use 'this' outside of a class",
		"print super.foo;":                       "can't use 'super' outside of a class",
		"class X { m() { return super.m(); } }":  "can't use 'super' in a class with no superclass",
		"class X < X {}":                         "a class can't inherit from itself",
		"{ var a = 1; var a = 2; }":              "variable 'a' already declared in this scope",
		"{ var a = a; }":                         "can't read local variable in its own initializer",
	}
	for src, want := range cases {
		_, _, err := resolveSrc(t, src)
		require.Error(t, err, src)
		assert.Contains(t, err.Error(), want, src)
	}
}

func TestMultipleErrorsAccumulate(t *testing.T) {
	_, _, err := resolveSrc(t, "return 1;\nprint this;")
	require.Error(t, err)
	var el scanner.ErrorList
	require.ErrorAs(t, err, &el)
	assert.Len(t, el, 2)
}

func TestInitReturnWithoutValueAllowed(t *testing.T) {
	_, _, err := resolveSrc(t, "class Foo { init() { return; } }")
	assert.NoError(t, err)
}

func TestGlobalRedeclarationAllowed(t *testing.T) {
	_, _, err := resolveSrc(t, "var a = 1; var a = 2;")
	assert.NoError(t, err)
}

func TestThisAndSuperDistances(t *testing.T) {
	src := `class A { greet() { return "A"; } }
class B < A { greet() { return super.greet(); } }`
	prog, info := resolveOK(t, src)

	var superID, thisID ast.ExprID = -1, -1
	v := exprVisitor(func(e ast.Expr) {
		switch e.(type) {
		case *ast.SuperExpr:
			superID = e.ID()
		case *ast.ThisExpr:
			thisID = e.ID()
		}
	})
	prog.Walk(v)

	require.NotEqual(t, ast.ExprID(-1), superID)
	// super is bound in the scope pushed around the subclass methods: the
	// method body is at distance 2 from it (body scope, this scope, super
	// scope).
	assert.Equal(t, 2, info.Distances[superID])
	assert.Equal(t, ast.ExprID(-1), thisID, "no explicit this in source")
}
