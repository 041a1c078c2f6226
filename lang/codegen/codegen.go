package codegen

import (
	"fmt"
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/resolver"
	"github.com/mna/blox/lang/scanner"
	"github.com/mna/blox/lang/token"
)

// Compile lowers a parsed and resolved program to a textual LLVM IR module
// that links against the C runtime. The resolver info tells local
// references apart from global ones, exactly as the evaluator consumes it.
//
// The native backend does not lower classes; programs using class
// declarations, this, super or property access are rejected with compile
// errors.
func Compile(filename string, src []byte, prog *ast.Program, info *resolver.Info) (string, error) {
	g := &cg{
		filename: filename,
		src:      src,
		dist:     info.Distances,
		caps:     AnalyzeCaptures(prog),
		names:    make(map[string]int),
		strs:     make(map[string]constant.Constant),
	}

	g.reject(prog)
	if err := g.errors.Err(); err != nil {
		return "", err
	}

	g.m = ir.NewModule()
	g.lv = types.NewStruct(types.I8, types.I64)
	g.closure = types.NewStruct(types.I8Ptr, types.I32, types.I8Ptr, types.I8Ptr, types.I32)
	g.rt = declareRuntime(g.m, g.lv)

	g.emitMain(prog)

	g.errors.Sort()
	if err := g.errors.Err(); err != nil {
		return "", err
	}
	return g.m.String(), nil
}

// varStorage is the storage of one local: a heap cell pointer when the
// variable is captured, a stack slot otherwise.
type varStorage struct {
	cell value.Value // i8* cell pointer
	slot value.Value // alloca of a tagged value
}

type cg struct {
	filename string
	src      []byte
	errors   scanner.ErrorList

	m       *ir.Module
	lv      *types.StructType
	closure *types.StructType
	rt      *runtimeDecls
	caps    *CaptureInfo
	dist    map[ast.ExprID]int

	// current function state
	fn      *ir.Func
	entry   *ir.Block // allocas are hoisted here
	blk     *ir.Block
	retSlot value.Value
	exit    *ir.Block
	curFn   string // name of the function being lowered, "" for main
	scopes  []map[string]varStorage

	names  map[string]int
	strs   map[string]constant.Constant
	labelN int
}

func (g *cg) error(off int, msg string) {
	g.errors.Add(token.Position(g.filename, g.src, off), msg)
}

// reject records an error for every construct outside the native backend's
// covered subset.
func (g *cg) reject(prog *ast.Program) {
	v := rejectVisitor{g: g}
	prog.Walk(&v)
}

type rejectVisitor struct{ g *cg }

func (v *rejectVisitor) Visit(n ast.Node) ast.Visitor {
	switch n := n.(type) {
	case *ast.ClassDecl:
		v.g.error(n.Span().Off, "classes are not supported by the native backend")
		return nil
	case *ast.ThisExpr:
		v.g.error(n.Span().Off, "'this' is not supported by the native backend")
	case *ast.SuperExpr:
		v.g.error(n.Span().Off, "'super' is not supported by the native backend")
	case *ast.GetExpr:
		v.g.error(n.Span().Off, "properties are not supported by the native backend")
	case *ast.SetExpr:
		v.g.error(n.Span().Off, "properties are not supported by the native backend")
	}
	return v
}

// label returns a unique block label with the given prefix.
func (g *cg) label(prefix string) string {
	g.labelN++
	return fmt.Sprintf("%s.%d", prefix, g.labelN)
}

// symbol returns a unique module-level symbol name.
func (g *cg) symbol(base string) string {
	n := g.names[base]
	g.names[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s.%d", base, n)
}

// internString defines (once) a private NUL-terminated global for s and
// returns the constant i8* to its first byte.
func (g *cg) internString(s string) constant.Constant {
	if p, ok := g.strs[s]; ok {
		return p
	}
	arr := constant.NewCharArrayFromString(s + "\x00")
	glob := g.m.NewGlobalDef(g.symbol(".str"), arr)
	glob.Linkage = enum.LinkagePrivate
	glob.Immutable = true
	zero := constant.NewInt(types.I64, 0)
	p := constant.NewGetElementPtr(arr.Typ, glob, zero, zero)
	g.strs[s] = p
	return p
}

// tagged builds a {tag, payload} value.
func (g *cg) tagged(tag int64, payload value.Value) value.Value {
	v := g.blk.NewInsertValue(constant.NewUndef(g.lv), constant.NewInt(types.I8, tag), 0)
	return g.blk.NewInsertValue(v, payload, 1)
}

func (g *cg) nilValue() constant.Constant {
	return constant.NewStruct(g.lv,
		constant.NewInt(types.I8, tagNil), constant.NewInt(types.I64, 0))
}

func (g *cg) boolValue(b bool) constant.Constant {
	p := int64(0)
	if b {
		p = 1
	}
	return constant.NewStruct(g.lv,
		constant.NewInt(types.I8, tagBool), constant.NewInt(types.I64, p))
}

func (g *cg) numberValue(f float64) constant.Constant {
	// the payload is the bit pattern of the double
	return constant.NewStruct(g.lv,
		constant.NewInt(types.I8, tagNumber),
		constant.NewInt(types.I64, int64(math.Float64bits(f))))
}

// payload extracts the i64 payload of a tagged value.
func (g *cg) payload(v value.Value) value.Value {
	return g.blk.NewExtractValue(v, 1)
}

// tag extracts the i8 tag of a tagged value.
func (g *cg) tag(v value.Value) value.Value {
	return g.blk.NewExtractValue(v, 0)
}

// asNumber unboxes the payload into a double through a bit-cast.
func (g *cg) asNumber(v value.Value) value.Value {
	return g.blk.NewBitCast(g.payload(v), types.Double)
}

// boxNumber reboxes a double into a number-tagged value.
func (g *cg) boxNumber(f value.Value) value.Value {
	return g.tagged(tagNumber, g.blk.NewBitCast(f, types.I64))
}

// boxBool zero-extends an i1 into a bool-tagged value.
func (g *cg) boxBool(b value.Value) value.Value {
	return g.tagged(tagBool, g.blk.NewZExt(b, types.I64))
}

// truthy lowers the truthiness test through the runtime helper.
func (g *cg) truthy(v value.Value) value.Value {
	return g.blk.NewCall(g.rt.valueTruthy, v)
}

func (g *cg) beginScope() { g.scopes = append(g.scopes, make(map[string]varStorage)) }
func (g *cg) endScope()   { g.scopes = g.scopes[:len(g.scopes)-1] }

func (g *cg) findLocal(name string) (varStorage, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if st, ok := g.scopes[i][name]; ok {
			return st, true
		}
	}
	return varStorage{}, false
}

// findCell returns the cell pointer of a captured variable visible in the
// current scopes. The capture analysis guarantees it exists.
func (g *cg) findCell(name string, off int) value.Value {
	if st, ok := g.findLocal(name); ok && st.cell != nil {
		return st.cell
	}
	g.error(off, fmt.Sprintf("internal: no cell for captured variable '%s'", name))
	return constant.NewNull(types.I8Ptr)
}

func (g *cg) globalGet(name string) value.Value {
	return g.blk.NewCall(g.rt.globalGet,
		g.internString(name), constant.NewInt(types.I64, int64(len(name))))
}

func (g *cg) globalSet(name string, v value.Value) {
	g.blk.NewCall(g.rt.globalSet,
		g.internString(name), constant.NewInt(types.I64, int64(len(name))), v)
}

// emitMain lowers the top level into the C main function, after installing
// the clock native.
func (g *cg) emitMain(prog *ast.Program) {
	g.fn = g.m.NewFunc("main", types.I32)
	g.entry = g.fn.NewBlock("entry")
	g.blk = g.entry
	g.curFn = ""
	g.scopes = nil

	g.emitClockNative()

	for _, d := range prog.Decls {
		g.decl(d)
	}
	if g.blk.Term == nil {
		g.blk.NewRet(constant.NewInt(types.I32, 0))
	}
}

// emitClockNative wraps lox_clock in the closure ABI and installs it as the
// clock global.
func (g *cg) emitClockNative() {
	wrapper := g.m.NewFunc("lox_clock_wrapper", g.lv, ir.NewParam("env", types.I8Ptr))
	wb := wrapper.NewBlock("entry")
	wb.NewRet(wb.NewCall(g.rt.clock))

	cptr := g.blk.NewCall(g.rt.allocClosure,
		g.blk.NewBitCast(wrapper, types.I8Ptr),
		constant.NewInt(types.I32, 0),
		g.internString("clock"),
		constant.NewNull(types.I8Ptr),
		constant.NewInt(types.I32, 0))
	g.globalSet("clock", g.tagged(tagFunction, g.blk.NewPtrToInt(cptr, types.I64)))
}

func (g *cg) decl(d ast.Decl) {
	switch d := d.(type) {
	case *ast.VarDecl:
		g.varDecl(d)
	case *ast.FunDecl:
		g.funDecl(d.Fn)
	case *ast.StmtDecl:
		g.stmt(d.Stmt)
	case *ast.ClassDecl:
		// rejected before lowering
	}
}

// bindLocal stores a freshly initialized variable in the current scope: in
// a heap cell when captured, in a stack slot otherwise.
func (g *cg) bindLocal(name string, init value.Value) {
	captured := g.caps.Captured[VarKey{Name: name, Fn: g.curFn}]
	if captured {
		cell := g.blk.NewCall(g.rt.allocCell, init)
		g.scopes[len(g.scopes)-1][name] = varStorage{cell: cell}
		return
	}
	slot := g.entry.NewAlloca(g.lv)
	g.blk.NewStore(init, slot)
	g.scopes[len(g.scopes)-1][name] = varStorage{slot: slot}
}

func (g *cg) varDecl(d *ast.VarDecl) {
	var init value.Value = g.nilValue()
	if d.Init != nil {
		init = g.expr(d.Init)
	}
	if len(g.scopes) == 0 {
		g.globalSet(d.Name, init)
		return
	}
	g.bindLocal(d.Name, init)
}

func (g *cg) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		g.expr(s.Expr)

	case *ast.PrintStmt:
		g.blk.NewCall(g.rt.print, g.expr(s.Expr))

	case *ast.ReturnStmt:
		var v value.Value = g.nilValue()
		if s.Value != nil {
			v = g.expr(s.Value)
		}
		g.blk.NewStore(v, g.retSlot)
		g.blk.NewBr(g.exit)
		dead := g.fn.NewBlock(g.label("post.return"))
		dead.NewUnreachable()
		g.blk = dead

	case *ast.BlockStmt:
		g.beginScope()
		for _, d := range s.Decls {
			g.decl(d)
		}
		g.endScope()

	case *ast.IfStmt:
		cond := g.truthy(g.expr(s.Cond))
		thenB := g.fn.NewBlock(g.label("if.then"))
		mergeB := g.fn.NewBlock(g.label("if.end"))
		elseB := mergeB
		if s.Else != nil {
			elseB = g.fn.NewBlock(g.label("if.else"))
		}
		g.blk.NewCondBr(cond, thenB, elseB)

		g.blk = thenB
		g.stmt(s.Then)
		if g.blk.Term == nil {
			g.blk.NewBr(mergeB)
		}
		if s.Else != nil {
			g.blk = elseB
			g.stmt(s.Else)
			if g.blk.Term == nil {
				g.blk.NewBr(mergeB)
			}
		}
		g.blk = mergeB

	case *ast.WhileStmt:
		condB := g.fn.NewBlock(g.label("while.cond"))
		bodyB := g.fn.NewBlock(g.label("while.body"))
		endB := g.fn.NewBlock(g.label("while.end"))
		g.blk.NewBr(condB)

		g.blk = condB
		cond := g.truthy(g.expr(s.Cond))
		g.blk.NewCondBr(cond, bodyB, endB)

		g.blk = bodyB
		g.stmt(s.Body)
		if g.blk.Term == nil {
			g.blk.NewBr(condB)
		}
		g.blk = endB
	}
}
