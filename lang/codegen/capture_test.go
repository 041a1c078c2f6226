package codegen

import (
	"testing"

	"github.com/mna/blox/lang/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, src string) *CaptureInfo {
	t.Helper()
	prog, err := parser.Parse("test.lox", []byte(src))
	require.NoError(t, err)
	return AnalyzeCaptures(prog)
}

func TestNoCaptures(t *testing.T) {
	info := analyze(t, "fun f(a) { var b = a; return b; }")
	assert.Empty(t, info.Captured)
	assert.Empty(t, info.FunctionCaptures)
}

func TestTopLevelVarsAreGlobalsNotCaptures(t *testing.T) {
	info := analyze(t, "var x = 1; fun f() { return x; }")
	assert.Empty(t, info.Captured)
	assert.Empty(t, info.FunctionCaptures["f"])
}

func TestSimpleCapture(t *testing.T) {
	info := analyze(t, "fun outer() { var x = 1; fun inner() { return x; } }")
	assert.True(t, info.Captured[VarKey{Name: "x", Fn: "outer"}])
	assert.Equal(t, []string{"x"}, info.FunctionCaptures["inner"])
}

func TestCapturedParameter(t *testing.T) {
	info := analyze(t, "fun outer(p) { fun inner() { return p; } }")
	assert.True(t, info.Captured[VarKey{Name: "p", Fn: "outer"}])
	assert.Equal(t, []string{"p"}, info.FunctionCaptures["inner"])
}

func TestAssignmentCaptures(t *testing.T) {
	info := analyze(t, "fun outer() { var i = 0; fun count() { i = i + 1; return i; } }")
	assert.True(t, info.Captured[VarKey{Name: "i", Fn: "outer"}])
	assert.Equal(t, []string{"i"}, info.FunctionCaptures["count"])
}

func TestIntermediateFunctionThreadsCapture(t *testing.T) {
	src := `fun a() {
  var x = 1;
  fun b() {
    fun c() { return x; }
  }
}`
	info := analyze(t, src)
	assert.True(t, info.Captured[VarKey{Name: "x", Fn: "a"}])
	assert.Equal(t, []string{"x"}, info.FunctionCaptures["c"])
	// b does not use x itself but must thread the cell through its env
	assert.Equal(t, []string{"x"}, info.FunctionCaptures["b"])
}

func TestCaptureOrderIsStable(t *testing.T) {
	src := `fun outer() {
  var a = 1; var b = 2; var c = 3;
  fun inner() { return c + a + b; }
}`
	info := analyze(t, src)
	// reference order, deduplicated
	assert.Equal(t, []string{"c", "a", "b"}, info.FunctionCaptures["inner"])
}

func TestSameFunctionUseIsNotACapture(t *testing.T) {
	info := analyze(t, "fun f() { var x = 1; x = x + 1; return x; }")
	assert.Empty(t, info.Captured)
}

func TestTwoClosuresShareOneCapture(t *testing.T) {
	src := `fun outer() {
  var x = 0;
  fun a() { x = x + 1; }
  fun b() { return x; }
}`
	info := analyze(t, src)
	require.Len(t, info.Captured, 1)
	assert.True(t, info.Captured[VarKey{Name: "x", Fn: "outer"}])
	assert.Equal(t, []string{"x"}, info.FunctionCaptures["a"])
	assert.Equal(t, []string{"x"}, info.FunctionCaptures["b"])
}

func TestShadowingInInnerFunction(t *testing.T) {
	// inner declares its own x: no capture
	info := analyze(t, "fun outer() { var x = 1; fun inner() { var x = 2; return x; } }")
	assert.Empty(t, info.Captured)
}

func TestWalkCoversAllStatements(t *testing.T) {
	src := `fun outer() {
  var x = 0;
  fun inner() {
    if (x > 0) { print x; } else { print -x; }
    while (x < 10) { x = x + 1; }
    return !x;
  }
}`
	info := analyze(t, src)
	assert.True(t, info.Captured[VarKey{Name: "x", Fn: "outer"}])
	assert.Equal(t, []string{"x"}, info.FunctionCaptures["inner"])
}
