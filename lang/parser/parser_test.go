package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse("test.lox", []byte(src))
	require.NoError(t, err)
	return prog
}

func sexp(t *testing.T, src string) string {
	t.Helper()
	return strings.TrimSpace(ast.ToSexp(parseOK(t, src)))
}

func TestExpressions(t *testing.T) {
	cases := map[string]string{
		"1 + 2 * 3;":           "(+ 1 (* 2 3))",
		"(1 + 2) * 3;":         "(* (group (+ 1 2)) 3)",
		"-x.y;":                "(- (. x y))",
		"!true == false;":      "(== (! true) false)",
		"1 < 2 == 3 >= 4;":     "(== (< 1 2) (>= 3 4))",
		"a or b and c;":        "(or a (and b c))",
		"x = y = 1;":           "(= x (= y 1))",
		"obj.field = 42;":      "(.= obj field 42)",
		"foo(1, 2);":           "(call foo 1 2)",
		"foo()(2);":            "(call (call foo) 2)",
		`"s" + "t";`:           `(+ "s" "t")`,
		"nil;":                 "nil",
		"super.greet();":       "(call (super greet))",
		"this.x;":              "(. this x)",
	}
	for src, want := range cases {
		assert.Equal(t, want, sexp(t, src), src)
	}
}

func TestDeclarations(t *testing.T) {
	cases := map[string]string{
		"var x = 42;":                         "(var x 42)",
		"var x;":                              "(var x)",
		"fun foo(a, b) { return a + b; }":     "(fun foo (a b) (return (+ a b)))",
		"class Foo { bar() { return 1; } }":   "(class Foo (fun bar () (return 1)))",
		"class Foo < Bar { }":                 "(class Foo < Bar)",
		"{ var x = 1; print x; }":             "(block (var x 1) (print x))",
		"if (true) print 1; else print 2;":    "(if true (print 1) (print 2))",
		"while (true) print 1;":               "(while true (print 1))",
		"return;":                             "(return)",
	}
	for src, want := range cases {
		assert.Equal(t, want, sexp(t, src), src)
	}
}

func TestForDesugarsToWhile(t *testing.T) {
	got := sexp(t, "for (var i = 0; i < 10; i = i + 1) print i;")
	want := "(block (var i 0) (while (< i 10) (block (print i) (= i (+ i 1)))))"
	assert.Equal(t, want, got)
}

func TestForOmittedClauses(t *testing.T) {
	// omitted condition becomes literal true
	assert.Equal(t, "(while true (block (print 1) (= i (+ i 1))))",
		sexp(t, "for (;; i = i + 1) print 1;"))
	assert.Equal(t, "(while true (print 1))", sexp(t, "for (;;) print 1;"))
	assert.Equal(t, "(block (var i 0) (while true (print 1)))",
		sexp(t, "for (var i = 0;;) print 1;"))
}

func TestUniqueExprIDs(t *testing.T) {
	prog := parseOK(t, "var x = 1 + 2; print x * x;")
	seen := map[ast.ExprID]bool{}
	v := idCollector{seen: seen, t: t}
	prog.Walk(&v)
	assert.GreaterOrEqual(t, len(seen), 6)
}

type idCollector struct {
	seen map[ast.ExprID]bool
	t    *testing.T
}

func (v *idCollector) Visit(n ast.Node) ast.Visitor {
	if e, ok := n.(ast.Expr); ok {
		assert.False(v.t, v.seen[e.ID()], "duplicate expression ID %d", e.ID())
		v.seen[e.ID()] = true
	}
	return v
}

func TestInvalidAssignmentTarget(t *testing.T) {
	_, err := Parse("test.lox", []byte("1 = 2;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid assignment target")

	_, err = Parse("test.lox", []byte("a + b = c;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid assignment target")
}

func TestErrorRecovery(t *testing.T) {
	// two distinct errors are reported, parsing continues after each
	_, err := Parse("test.lox", []byte("var x = ;\nvar = 1;\nvar y = 2;"))
	require.Error(t, err)
	var el scanner.ErrorList
	require.ErrorAs(t, err, &el)
	assert.Len(t, el, 2)
}

func TestScanErrorsPreventParse(t *testing.T) {
	_, err := Parse("test.lox", []byte("var x = @;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected character")
}

func TestArityBoundary(t *testing.T) {
	call := func(n int) string {
		args := make([]string, n)
		for i := range args {
			args[i] = "1"
		}
		return fmt.Sprintf("f(%s);", strings.Join(args, ", "))
	}

	// 255 arguments parse fine
	_, err := Parse("test.lox", []byte(call(255)))
	require.NoError(t, err)

	// 256 arguments is a parse error
	_, err = Parse("test.lox", []byte(call(256)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't have more than 255 arguments")
}

func TestParamBoundary(t *testing.T) {
	params := make([]string, 256)
	for i := range params {
		params[i] = fmt.Sprintf("p%d", i)
	}
	src := fmt.Sprintf("fun f(%s) {}", strings.Join(params, ", "))
	_, err := Parse("test.lox", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't have more than 255 parameters")
}

func TestExpectedMessages(t *testing.T) {
	cases := map[string]string{
		"class { }":       "expected class name",
		"fun () {}":       "expected function name",
		"if true print;":  "expected '(' after 'if'",
		"print 1":         "expected ';' after value",
		"super;":          "expected '.' after 'super'",
		"var x = (1;":     "expected ')' after expression",
	}
	for src, want := range cases {
		_, err := Parse("test.lox", []byte(src))
		require.Error(t, err, src)
		assert.Contains(t, err.Error(), want, src)
	}
}

func TestJSONPrinter(t *testing.T) {
	prog := parseOK(t, "var x = 1;")
	out, err := ast.ToJSON(prog)
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "var"`)
	assert.Contains(t, out, `"name": "x"`)
}
