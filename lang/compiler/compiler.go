package compiler

import (
	"golang.org/x/exp/slices"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/scanner"
	"github.com/mna/blox/lang/token"
)

const maxLocals = 256

// funcKind identifies the kind of function being compiled.
type funcKind uint8

const (
	kindScript funcKind = iota
	kindFunction
	kindMethod
	kindInitializer
)

// Compile compiles a parsed and resolved program into the top-level script
// chunk. Function bodies are compiled into their own chunks, nested in the
// constant pool as prototypes. An AST that resulted in errors in the resolve
// phase should never be passed to the compiler, the behavior is undefined.
func Compile(filename string, src []byte, prog *ast.Program) (*Chunk, error) {
	c := &compiler{filename: filename, src: src}
	c.cur = newFcomp(nil, "<script>", kindScript, 0)

	for _, d := range prog.Decls {
		c.decl(d)
	}
	script := c.endFcomp(token.Line(src, prog.EOF.Off))

	c.errors.Sort()
	if err := c.errors.Err(); err != nil {
		return nil, err
	}
	return script.Chunk, nil
}

// local is one local-variable slot of the function being compiled.
type local struct {
	name     string
	depth    int  // scope depth, -1 while declared but not yet initialized
	captured bool // true if captured by a nested closure
}

// upvalue is one upvalue descriptor of the function being compiled. isLocal
// means the upvalue captures a slot of the immediately enclosing function;
// otherwise it re-references one of the enclosing function's upvalues.
type upvalue struct {
	index   byte
	isLocal bool
}

// fcomp is the per-function compiler state, one per enclosing function being
// compiled.
type fcomp struct {
	enclosing  *fcomp
	fn         *FnProto
	kind       funcKind
	locals     []local
	upvalues   []upvalue
	scopeDepth int
}

func newFcomp(enclosing *fcomp, name string, kind funcKind, arity int) *fcomp {
	fc := &fcomp{
		enclosing: enclosing,
		fn:        &FnProto{Name: name, Arity: arity, Chunk: &Chunk{}},
		kind:      kind,
	}
	// slot 0 is reserved: it holds the receiver in methods and initializers,
	// and is unnameable otherwise.
	slot0 := ""
	if kind == kindMethod || kind == kindInitializer {
		slot0 = "this"
	}
	fc.locals = append(fc.locals, local{name: slot0, depth: 0})
	return fc
}

// classComp tracks the class declarations enclosing the code being compiled.
type classComp struct {
	enclosing *classComp
	hasSuper  bool
}

type compiler struct {
	filename string
	src      []byte
	errors   scanner.ErrorList

	cur      *fcomp
	curClass *classComp
}

func (c *compiler) error(off int, msg string) {
	c.errors.Add(token.Position(c.filename, c.src, off), msg)
}

func (c *compiler) line(sp token.Span) int { return token.Line(c.src, sp.Off) }

func (c *compiler) chunk() *Chunk { return c.cur.fn.Chunk }

func (c *compiler) emit(op Opcode, line int) { c.chunk().WriteOp(op, line) }

func (c *compiler) emitByte(b byte, line int) { c.chunk().WriteByte(b, line) }

// makeConstant adds a constant to the current chunk's pool, deduplicating
// identical entries, and returns its index.
func (c *compiler) makeConstant(cst Constant, off int) byte {
	ch := c.chunk()
	if idx := slices.IndexFunc(ch.Constants, func(e Constant) bool {
		return e.Kind == cst.Kind && e.Kind != KindFunction && e.Num == cst.Num && e.Str == cst.Str
	}); idx >= 0 {
		return byte(idx)
	}
	idx, ok := ch.AddConstant(cst)
	if !ok {
		c.error(off, "too many constants in one chunk")
		return 0
	}
	return idx
}

func (c *compiler) emitConstant(cst Constant, sp token.Span) {
	idx := c.makeConstant(cst, sp.Off)
	line := c.line(sp)
	c.emit(OpConstant, line)
	c.emitByte(idx, line)
}

// identifierConstant interns name in the constant pool and returns its
// index.
func (c *compiler) identifierConstant(name string, off int) byte {
	return c.makeConstant(Constant{Kind: KindString, Str: name}, off)
}

// emitJump emits a forward jump with a placeholder offset and returns the
// position of the operand for later patching.
func (c *compiler) emitJump(op Opcode, line int) int {
	c.emit(op, line)
	c.emitByte(0xff, line)
	c.emitByte(0xff, line)
	return len(c.chunk().Code) - 2
}

// patchJump back-patches the operand at pos to jump to the current end of
// code. Jumps are relative to the byte after the operand.
func (c *compiler) patchJump(pos, off int) {
	jump := len(c.chunk().Code) - pos - 2
	if jump > 0xffff {
		c.error(off, "too much code to jump over")
		jump = 0
	}
	c.chunk().Code[pos] = byte(jump >> 8)
	c.chunk().Code[pos+1] = byte(jump)
}

// emitLoop emits a backward jump to loopStart.
func (c *compiler) emitLoop(loopStart, line, off int) {
	c.emit(OpLoop, line)
	jump := len(c.chunk().Code) - loopStart + 2
	if jump > 0xffff {
		c.error(off, "loop body too large")
		jump = 0
	}
	c.emitByte(byte(jump>>8), line)
	c.emitByte(byte(jump), line)
}

// endFcomp emits the implicit return of the current function, pops the
// compiler state and returns the finished prototype.
func (c *compiler) endFcomp(line int) *FnProto {
	if c.cur.kind == kindInitializer {
		c.emit(OpGetLocal, line)
		c.emitByte(0, line)
	} else {
		c.emit(OpNil, line)
	}
	c.emit(OpReturn, line)

	fc := c.cur
	fc.fn.UpvalueCount = len(fc.upvalues)
	c.cur = fc.enclosing
	return fc.fn
}

func (c *compiler) beginScope() { c.cur.scopeDepth++ }

// endScope pops the locals of the scope being left, closing the upvalues of
// captured ones.
func (c *compiler) endScope(line int) {
	fc := c.cur
	fc.scopeDepth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.scopeDepth {
		if fc.locals[len(fc.locals)-1].captured {
			c.emit(OpCloseUpvalue, line)
		} else {
			c.emit(OpPop, line)
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

// declareVariable registers a new local in the current scope. Globals (depth
// 0) are resolved dynamically and need no slot.
func (c *compiler) declareVariable(name string, sp token.Span) {
	if c.cur.scopeDepth == 0 {
		return
	}
	if len(c.cur.locals) >= maxLocals {
		c.error(sp.Off, "too many local variables in function")
		return
	}
	c.cur.locals = append(c.cur.locals, local{name: name, depth: -1})
}

// markInitialized flips the latest local to initialized, making it
// resolvable.
func (c *compiler) markInitialized() {
	if c.cur.scopeDepth == 0 {
		return
	}
	c.cur.locals[len(c.cur.locals)-1].depth = c.cur.scopeDepth
}

// defineVariable emits the definition of the variable declared last: a
// DefineGlobal at the top level, or marking the local slot initialized.
func (c *compiler) defineVariable(nameIdx byte, line int) {
	if c.cur.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emit(OpDefineGlobal, line)
	c.emitByte(nameIdx, line)
}

// resolveLocal searches the function's locals back-to-front for name and
// returns its slot, or -1 if not found.
func (c *compiler) resolveLocal(fc *fcomp, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name && fc.locals[i].depth >= 0 {
			return i
		}
	}
	return -1
}

// addUpvalue appends an upvalue descriptor, deduplicating identical ones,
// and returns its index.
func (c *compiler) addUpvalue(fc *fcomp, index byte, isLocal bool, off int) int {
	for i, uv := range fc.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fc.upvalues) >= maxLocals {
		c.error(off, "too many closure variables in function")
		return 0
	}
	fc.upvalues = append(fc.upvalues, upvalue{index: index, isLocal: isLocal})
	return len(fc.upvalues) - 1
}

// resolveUpvalue resolves name as a capture from an enclosing function: a
// local of the immediately enclosing function, or transitively one of its
// own upvalues. It marks captured locals so their slot is closed into a cell
// when it goes out of scope.
func (c *compiler) resolveUpvalue(fc *fcomp, name string, off int) int {
	if fc.enclosing == nil {
		return -1
	}
	if idx := c.resolveLocal(fc.enclosing, name); idx >= 0 {
		fc.enclosing.locals[idx].captured = true
		return c.addUpvalue(fc, byte(idx), true, off)
	}
	if idx := c.resolveUpvalue(fc.enclosing, name, off); idx >= 0 {
		return c.addUpvalue(fc, byte(idx), false, off)
	}
	return -1
}

// namedVariable emits the access (or assignment, if set) of name, resolving
// it as a local, an upvalue or a global.
func (c *compiler) namedVariable(name string, sp token.Span, set bool) {
	line := c.line(sp)
	var getOp, setOp Opcode
	var arg byte

	if idx := c.resolveLocal(c.cur, name); idx >= 0 {
		getOp, setOp, arg = OpGetLocal, OpSetLocal, byte(idx)
	} else if idx := c.resolveUpvalue(c.cur, name, sp.Off); idx >= 0 {
		getOp, setOp, arg = OpGetUpvalue, OpSetUpvalue, byte(idx)
	} else {
		getOp, setOp, arg = OpGetGlobal, OpSetGlobal, c.identifierConstant(name, sp.Off)
	}

	if set {
		c.emit(setOp, line)
	} else {
		c.emit(getOp, line)
	}
	c.emitByte(arg, line)
}

func (c *compiler) decl(d ast.Decl) {
	switch d := d.(type) {
	case *ast.VarDecl:
		c.varDecl(d)
	case *ast.FunDecl:
		c.funDecl(d)
	case *ast.ClassDecl:
		c.classDecl(d)
	case *ast.StmtDecl:
		c.stmt(d.Stmt)
	}
}

func (c *compiler) varDecl(d *ast.VarDecl) {
	c.declareVariable(d.Name, d.NameSpan)
	if d.Init != nil {
		c.expr(d.Init)
	} else {
		c.emit(OpNil, c.line(d.NameSpan))
	}
	var nameIdx byte
	if c.cur.scopeDepth == 0 {
		nameIdx = c.identifierConstant(d.Name, d.NameSpan.Off)
	}
	c.defineVariable(nameIdx, c.line(d.NameSpan))
}

func (c *compiler) funDecl(d *ast.FunDecl) {
	// mark initialized immediately so the function can call itself
	c.declareVariable(d.Fn.Name, d.Fn.NameSpan)
	c.markInitialized()
	c.function(d.Fn, kindFunction)
	var nameIdx byte
	if c.cur.scopeDepth == 0 {
		nameIdx = c.identifierConstant(d.Fn.Name, d.Fn.NameSpan.Off)
	}
	c.defineVariable(nameIdx, c.line(d.Fn.NameSpan))
}

// function compiles a function body into its own chunk and emits the
// Closure instruction materializing it, followed by one (is_local, index)
// pair per upvalue.
func (c *compiler) function(fn *ast.Function, kind funcKind) {
	c.cur = newFcomp(c.cur, fn.Name, kind, len(fn.Params))
	c.beginScope()

	for _, prm := range fn.Params {
		c.declareVariable(prm, fn.NameSpan)
		c.markInitialized()
	}
	for _, d := range fn.Body {
		c.decl(d)
	}

	fc := c.cur
	endLine := token.Line(c.src, fn.End)
	proto := c.endFcomp(endLine)

	line := c.line(fn.NameSpan)
	idx, ok := c.chunk().AddConstant(Constant{Kind: KindFunction, Fn: proto})
	if !ok {
		c.error(fn.NameSpan.Off, "too many constants in one chunk")
		return
	}
	c.emit(OpClosure, line)
	c.emitByte(idx, line)
	for _, uv := range fc.upvalues {
		b := byte(0)
		if uv.isLocal {
			b = 1
		}
		c.emitByte(b, line)
		c.emitByte(uv.index, line)
	}
}
