package compiler

import (
	"testing"

	"github.com/mna/blox/lang/parser"
	"github.com/mna/blox/lang/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileSrc(t *testing.T, src string) *Chunk {
	t.Helper()
	prog, err := parser.Parse("test.lox", []byte(src))
	require.NoError(t, err)
	_, err = resolver.Resolve("test.lox", []byte(src), prog)
	require.NoError(t, err)
	ch, err := Compile("test.lox", []byte(src), prog)
	require.NoError(t, err)
	return ch
}

func TestCompileArithmetic(t *testing.T) {
	ch := compileSrc(t, "print 1 + 2 * 3;")
	dis := Disassemble(ch, "test")

	assert.Contains(t, dis, "Constant")
	assert.Contains(t, dis, "Multiply")
	assert.Contains(t, dis, "Add")
	assert.Contains(t, dis, "Print")
	// implicit script return
	assert.Contains(t, dis, "Return")
}

func TestComparisonLowering(t *testing.T) {
	// != is Equal;Not, >= is Less;Not, <= is Greater;Not
	dis := Disassemble(compileSrc(t, "print 1 != 2;"), "t")
	assert.Contains(t, dis, "Equal")
	assert.Contains(t, dis, "Not")

	dis = Disassemble(compileSrc(t, "print 1 >= 2;"), "t")
	assert.Contains(t, dis, "Less")
	assert.Contains(t, dis, "Not")

	dis = Disassemble(compileSrc(t, "print 1 <= 2;"), "t")
	assert.Contains(t, dis, "Greater")
	assert.Contains(t, dis, "Not")
}

func TestGlobalsVsLocals(t *testing.T) {
	dis := Disassemble(compileSrc(t, "var g = 1; print g;"), "t")
	assert.Contains(t, dis, "DefineGlobal")
	assert.Contains(t, dis, "GetGlobal")

	dis = Disassemble(compileSrc(t, "{ var l = 1; print l; }"), "t")
	assert.NotContains(t, dis, "DefineGlobal")
	assert.Contains(t, dis, "GetLocal")
	assert.Contains(t, dis, "Pop")
}

func TestFunctionPrototype(t *testing.T) {
	ch := compileSrc(t, "fun add(a, b) { return a + b; }")

	var proto *FnProto
	for _, c := range ch.Constants {
		if c.Kind == KindFunction {
			proto = c.Fn
		}
	}
	require.NotNil(t, proto, "function prototype in constant pool")
	assert.Equal(t, "add", proto.Name)
	assert.Equal(t, 2, proto.Arity)
	assert.Equal(t, 0, proto.UpvalueCount)

	dis := Disassemble(ch, "t")
	assert.Contains(t, dis, "Closure")
	assert.Contains(t, dis, "== fn add ==")
}

func TestUpvalueDescriptors(t *testing.T) {
	src := `fun outer() {
  var x = 1;
  fun inner() { return x; }
  return inner;
}`
	ch := compileSrc(t, src)

	var outer *FnProto
	for _, c := range ch.Constants {
		if c.Kind == KindFunction {
			outer = c.Fn
		}
	}
	require.NotNil(t, outer)

	var inner *FnProto
	for _, c := range outer.Chunk.Constants {
		if c.Kind == KindFunction {
			inner = c.Fn
		}
	}
	require.NotNil(t, inner, "inner prototype nested in outer's pool")
	assert.Equal(t, 1, inner.UpvalueCount)

	// the nested inner chunk (disassembled after outer's) reads x through
	// its upvalue
	dis := Disassemble(outer.Chunk, "outer")
	assert.Contains(t, dis, "GetUpvalue")
	// the Closure instruction carries a (local, index) descriptor
	assert.Contains(t, dis, "local 1")
}

func TestTransitiveUpvalue(t *testing.T) {
	// middle does not use x itself: the chain must thread through it
	src := `fun a() {
  var x = 1;
  fun b() {
    fun c() { return x; }
    return c;
  }
  return b;
}`
	ch := compileSrc(t, src)

	protoA := findFn(t, ch, "a")
	protoB := findFn(t, protoA.Chunk, "b")
	protoC := findFn(t, protoB.Chunk, "c")

	assert.Equal(t, 1, protoB.UpvalueCount, "b re-exports x for c")
	assert.Equal(t, 1, protoC.UpvalueCount)

	// c's descriptor references b's upvalue, not a local
	dis := Disassemble(protoB.Chunk, "b")
	assert.Contains(t, dis, "upvalue 0")
}

func findFn(t *testing.T, ch *Chunk, name string) *FnProto {
	t.Helper()
	for _, c := range ch.Constants {
		if c.Kind == KindFunction && c.Fn.Name == name {
			return c.Fn
		}
	}
	t.Fatalf("prototype %q not found", name)
	return nil
}

func TestJumpPatching(t *testing.T) {
	ch := compileSrc(t, "if (true) print 1; else print 2;")
	dis := Disassemble(ch, "t")
	assert.Contains(t, dis, "JumpIfFalse")
	assert.Contains(t, dis, "Jump")

	ch = compileSrc(t, "while (true) print 1;")
	dis = Disassemble(ch, "t")
	assert.Contains(t, dis, "Loop")
}

func TestClassLowering(t *testing.T) {
	src := `class A { greet() { return "A"; } }
class B < A { greet() { return super.greet() + "B"; } }`
	ch := compileSrc(t, src)
	dis := Disassemble(ch, "t")

	assert.Contains(t, dis, "Class")
	assert.Contains(t, dis, "Inherit")
	assert.Contains(t, dis, "Method")

	protoGreet := findFn(t, ch, "greet")
	_ = protoGreet
	assert.Contains(t, dis, "SuperInvoke")
}

func TestMethodSlotZeroIsThis(t *testing.T) {
	src := `class Foo { getX() { return this.x; } }`
	ch := compileSrc(t, src)
	proto := findFn(t, ch, "getX")

	// this resolves to local slot 0
	dis := Disassemble(proto.Chunk, "getX")
	assert.Contains(t, dis, "GetLocal            0")
}

func TestLines(t *testing.T) {
	ch := compileSrc(t, "var a = 1;\nprint a;")
	require.Equal(t, len(ch.Code), len(ch.Lines))
	// first instruction on line 1, print on line 2
	assert.Equal(t, 1, ch.Lines[0])
	assert.Equal(t, 2, ch.Lines[len(ch.Lines)-3]) // Print precedes Nil;Return
}

func TestConstantDedup(t *testing.T) {
	ch := compileSrc(t, "print 1 + 1 + 1;")
	count := 0
	for _, c := range ch.Constants {
		if c.Kind == KindNumber && c.Num == 1 {
			count++
		}
	}
	assert.Equal(t, 1, count, "identical number constants are pooled once")
}
