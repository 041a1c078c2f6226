package codegen

import (
	"strings"
	"testing"

	"github.com/mna/blox/lang/parser"
	"github.com/mna/blox/lang/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileIR(t *testing.T, src string) (string, error) {
	t.Helper()
	prog, err := parser.Parse("test.lox", []byte(src))
	require.NoError(t, err)
	info, err := resolver.Resolve("test.lox", []byte(src), prog)
	require.NoError(t, err)
	return Compile("test.lox", []byte(src), prog, info)
}

func compileIROK(t *testing.T, src string) string {
	t.Helper()
	ir, err := compileIR(t, src)
	require.NoError(t, err)
	return ir
}

func TestMainReturnsZero(t *testing.T) {
	ir := compileIROK(t, "print 1;")
	assert.Contains(t, ir, "define i32 @main()")
	assert.Contains(t, ir, "ret i32 0")
}

func TestRuntimeDeclarations(t *testing.T) {
	ir := compileIROK(t, "print 1;")
	for _, decl := range []string{
		"declare void @lox_print({ i8, i64 } %value)",
		"declare { i8, i64 } @lox_global_get(i8* %name, i64 %name_len)",
		"declare void @lox_global_set(i8* %name, i64 %name_len, { i8, i64 } %value)",
		"declare i1 @lox_value_truthy({ i8, i64 } %value)",
		"declare i8* @lox_alloc_closure(i8* %fn_ptr, i32 %arity, i8* %name, i8* %env, i32 %env_count)",
		"declare i8* @lox_alloc_cell({ i8, i64 } %initial)",
		"declare { i8, i64 } @lox_cell_get(i8* %cell)",
		"declare void @lox_cell_set(i8* %cell, { i8, i64 } %value)",
		"declare { i8, i64 } @lox_clock()",
	} {
		assert.Contains(t, ir, decl)
	}
}

func TestPrintLowering(t *testing.T) {
	ir := compileIROK(t, "print 1 + 2;")
	assert.Contains(t, ir, "fadd double")
	assert.Contains(t, ir, "call void @lox_print")
}

func TestGlobalsRouteThroughRuntime(t *testing.T) {
	ir := compileIROK(t, "var x = 1; print x; x = 2;")
	assert.Contains(t, ir, "call void @lox_global_set")
	assert.Contains(t, ir, "call { i8, i64 } @lox_global_get")
}

func TestNumberPayloadIsBitcastDouble(t *testing.T) {
	// 2.5 = 0x4004000000000000; llir prints this low-entropy i64 in its
	// hexadecimal form
	ir := compileIROK(t, "var x = 2.5;")
	assert.Contains(t, ir, "i64 u0x4004000000000000")
}

func TestFunctionGetsEnvParameter(t *testing.T) {
	ir := compileIROK(t, "fun add(a, b) { return a + b; }")
	assert.Contains(t, ir, "define { i8, i64 } @lox_fn_add(i8* %env, { i8, i64 } %a, { i8, i64 } %b)")
	assert.Contains(t, ir, "call i8* @lox_alloc_closure")
}

func TestCapturedVariableUsesCells(t *testing.T) {
	src := `fun outer() {
  var x = 0;
  fun inner() { x = x + 1; return x; }
  return inner;
}`
	ir := compileIROK(t, src)
	assert.Contains(t, ir, "call i8* @lox_alloc_cell")
	assert.Contains(t, ir, "call { i8, i64 } @lox_cell_get")
	assert.Contains(t, ir, "call void @lox_cell_set")
}

func TestNonCapturedLocalUsesAlloca(t *testing.T) {
	ir := compileIROK(t, "fun f() { var a = 1; return a; }")
	assert.Contains(t, ir, "alloca { i8, i64 }")
	assert.NotContains(t, ir, "call i8* @lox_alloc_cell")
}

func TestIndirectCall(t *testing.T) {
	ir := compileIROK(t, "fun f() { return 1; } print f();")
	// the callee's function pointer and env are loaded out of the closure
	// record and called indirectly
	assert.Contains(t, ir, "inttoptr")
	assert.Contains(t, ir, "load i8*, i8** ")
}

func TestControlFlowBlocks(t *testing.T) {
	ir := compileIROK(t, "if (true) print 1; else print 2;")
	assert.Contains(t, ir, "br i1")
	assert.Contains(t, ir, "if.then")
	assert.Contains(t, ir, "if.else")

	ir = compileIROK(t, "while (true) print 1;")
	assert.Contains(t, ir, "while.cond")
	assert.Contains(t, ir, "while.body")
}

func TestLogicalUsesPhi(t *testing.T) {
	ir := compileIROK(t, "print 1 or 2; print nil and 1;")
	assert.Contains(t, ir, "phi")
	assert.Contains(t, ir, "call i1 @lox_value_truthy")
}

func TestStringConcatViaRuntime(t *testing.T) {
	ir := compileIROK(t, `print "a" + "b";`)
	assert.Contains(t, ir, "call { i8, i64 } @lox_string_concat")
}

func TestStringEqualityViaRuntime(t *testing.T) {
	ir := compileIROK(t, `print "a" == "b";`)
	assert.Contains(t, ir, "call i1 @lox_string_equal")
}

func TestClockInstalled(t *testing.T) {
	ir := compileIROK(t, "print clock();")
	assert.Contains(t, ir, "define { i8, i64 } @lox_clock_wrapper(i8* %env)")
	assert.Contains(t, ir, "call { i8, i64 } @lox_clock()")
}

func TestClassesRejected(t *testing.T) {
	_, err := compileIR(t, "class Foo {}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classes are not supported by the native backend")

	src := `class A { m() { return 1; } } var a = A(); print a.m();`
	_, err = compileIR(t, src)
	require.Error(t, err)
}

func TestReturnLowering(t *testing.T) {
	ir := compileIROK(t, "fun f(n) { if (n < 0) return 0; return n; }")
	// both returns route through the shared exit block
	assert.Equal(t, 1, strings.Count(ir, "define { i8, i64 } @lox_fn_f"),
		"one native function for f")
	assert.Contains(t, ir, "exit:")
}

func TestEnvArrayBuiltAtDeclarationSite(t *testing.T) {
	src := `fun outer() {
  var x = 1;
  fun inner() { return x; }
  return inner;
}`
	ir := compileIROK(t, src)
	// one cell-pointer slot on the caller's stack
	assert.Contains(t, ir, "alloca [1 x i8*]")
}

func TestDuplicateFunctionNamesGetUniqueSymbols(t *testing.T) {
	src := `fun f() { return 1; }
{
  fun g() { return 2; }
}
fun h() { fun g() { return 3; } return g; }`
	ir := compileIROK(t, src)
	assert.Contains(t, ir, "@lox_fn_g")
	assert.Contains(t, ir, "@lox_fn_g.1")
}
