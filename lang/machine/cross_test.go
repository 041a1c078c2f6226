package machine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mna/blox/lang/interp"
	"github.com/mna/blox/lang/parser"
	"github.com/mna/blox/lang/resolver"
	"github.com/stretchr/testify/require"
)

// crossSources is a set of deterministic programs used to validate that the
// tree-walk evaluator and the virtual machine produce identical output-line
// sequences.
var crossSources = []string{
	"print 1 + 2 * 3;",
	"var x = 1; { var x = 2; print x; } print x;",
	`fun m() { var i = 0; fun c() { i = i + 1; return i; } return c; }
var c = m(); print c(); print c();`,
	`fun fib(n) { if (n <= 1) return n; return fib(n - 1) + fib(n - 2); }
for (var i = 0; i < 10; i = i + 1) print fib(i);`,
	`class A { greet() { return "A"; } }
class B < A { greet() { return super.greet() + "B"; } }
print B().greet();`,
	`class Foo { init(x) { this.x = x; } getX() { return this.x; } }
print Foo(42).getX();`,
	// truthiness and logical operators
	`print !nil; print !false; print !0; print !""; print nil or 1; print 0 and ""; print false and 1;`,
	// shadowing and closures over loop bodies
	`var fs = nil;
{
  var i = 0;
  while (i < 3) {
    var j = i;
    fun f() { return j; }
    if (j == 2) fs = f;
    i = i + 1;
  }
}
print fs();`,
	// number formatting
	"print 10 / 4; print 8 / 4; print 0.5 + 0.25; print 1000000;",
	// strings
	`print "a" + "b" + "c"; print "x" == "x"; print "x" == "y";`,
	// init with explicit return and field mutation
	`class C { init() { this.n = 0; return; } inc() { this.n = this.n + 1; return this.n; } }
var c = C(); c.inc(); print c.inc();`,
	// bound methods keep their receiver
	`class P { init(v) { this.v = v; } get() { return this.v; } }
var g = P(9).get;
print g();`,
}

func TestEvaluatorVMEquivalence(t *testing.T) {
	for _, src := range crossSources {
		prog, err := parser.Parse("cross.lox", []byte(src))
		require.NoError(t, err, src)
		info, err := resolver.Resolve("cross.lox", []byte(src), prog)
		require.NoError(t, err, src)

		var ibuf bytes.Buffer
		in := interp.New(strings.NewReader(""))
		in.Out = &ibuf
		require.NoError(t, in.Run("cross.lox", []byte(src), prog, info), src)

		var vbuf bytes.Buffer
		ch := compileSrc(t, src)
		vm := New(strings.NewReader(""))
		vm.Out = &vbuf
		require.NoError(t, vm.Run(ch), src)

		require.Equal(t, ibuf.String(), vbuf.String(), "evaluator/VM output mismatch for:\n%s", src)
	}
}
