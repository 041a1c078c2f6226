package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/token"
)

// funDecl lowers a function declaration: the body compiles into its own
// native function of type (env, args...) -> value, then the declaration
// site builds the closure record and binds it like any other variable.
func (g *cg) funDecl(fn *ast.Function) {
	caps := g.caps.FunctionCaptures[fn.Name]

	params := make([]*ir.Param, 0, len(fn.Params)+1)
	params = append(params, ir.NewParam("env", types.I8Ptr))
	for _, p := range fn.Params {
		params = append(params, ir.NewParam(p, g.lv))
	}
	llfn := g.m.NewFunc(g.symbol("lox_fn_"+fn.Name), g.lv, params...)

	// save the lowering state of the enclosing function
	savedFn, savedEntry, savedBlk := g.fn, g.entry, g.blk
	savedRet, savedExit := g.retSlot, g.exit
	savedCur, savedScopes := g.curFn, g.scopes

	g.fn = llfn
	g.curFn = fn.Name
	g.entry = llfn.NewBlock("entry")
	g.blk = g.entry
	g.exit = llfn.NewBlock("exit")
	g.retSlot = g.entry.NewAlloca(g.lv)
	g.blk.NewStore(g.nilValue(), g.retSlot)
	g.scopes = []map[string]varStorage{make(map[string]varStorage)}

	// load the captured cell pointers out of the env array
	if len(caps) > 0 {
		envArr := g.blk.NewBitCast(llfn.Params[0], types.NewPointer(types.I8Ptr))
		for i, name := range caps {
			p := g.blk.NewGetElementPtr(types.I8Ptr, envArr, constant.NewInt(types.I64, int64(i)))
			cell := g.blk.NewLoad(types.I8Ptr, p)
			g.scopes[0][name] = varStorage{cell: cell}
		}
	}

	// bind parameters, spilling captured ones to cells
	for i, name := range fn.Params {
		g.bindLocal(name, llfn.Params[i+1])
	}

	for _, d := range fn.Body {
		g.decl(d)
	}
	if g.blk.Term == nil {
		g.blk.NewBr(g.exit)
	}
	g.exit.NewRet(g.exit.NewLoad(g.lv, g.retSlot))

	g.fn, g.entry, g.blk = savedFn, savedEntry, savedBlk
	g.retSlot, g.exit = savedRet, savedExit
	g.curFn, g.scopes = savedCur, savedScopes

	// build the closure record at the declaration site
	if len(g.scopes) == 0 {
		g.globalSet(fn.Name, g.buildClosure(llfn, fn, caps))
		return
	}
	if g.caps.Captured[VarKey{Name: fn.Name, Fn: g.curFn}] {
		// the function captures itself (recursion through a local): its cell
		// must exist before the env array referencing it is assembled
		cell := g.blk.NewCall(g.rt.allocCell, g.nilValue())
		g.scopes[len(g.scopes)-1][fn.Name] = varStorage{cell: cell}
		g.blk.NewCall(g.rt.cellSet, cell, g.buildClosure(llfn, fn, caps))
		return
	}
	g.bindLocal(fn.Name, g.buildClosure(llfn, fn, caps))
}

// buildClosure assembles the env array of cell pointers on the caller's
// stack, one slot per captured name resolved to the same cell the enclosing
// scope holds, and calls lox_alloc_closure.
func (g *cg) buildClosure(llfn *ir.Func, fn *ast.Function, caps []string) value.Value {
	var envPtr value.Value = constant.NewNull(types.I8Ptr)
	if len(caps) > 0 {
		arrTy := types.NewArray(uint64(len(caps)), types.I8Ptr)
		arr := g.entry.NewAlloca(arrTy)
		zero := constant.NewInt(types.I64, 0)
		for i, name := range caps {
			cell := g.findCell(name, fn.NameSpan.Off)
			slot := g.blk.NewGetElementPtr(arrTy, arr, zero, constant.NewInt(types.I64, int64(i)))
			g.blk.NewStore(cell, slot)
		}
		envPtr = g.blk.NewBitCast(arr, types.I8Ptr)
	}

	cptr := g.blk.NewCall(g.rt.allocClosure,
		g.blk.NewBitCast(llfn, types.I8Ptr),
		constant.NewInt(types.I32, int64(len(fn.Params))),
		g.internString(fn.Name),
		envPtr,
		constant.NewInt(types.I32, int64(len(caps))))
	return g.tagged(tagFunction, g.blk.NewPtrToInt(cptr, types.I64))
}

func (g *cg) expr(e ast.Expr) value.Value {
	switch e := e.(type) {
	case *ast.LiteralExpr:
		return g.literal(e)
	case *ast.GroupingExpr:
		return g.expr(e.Expr)
	case *ast.VariableExpr:
		return g.variable(e)
	case *ast.AssignExpr:
		return g.assign(e)
	case *ast.UnaryExpr:
		return g.unary(e)
	case *ast.BinaryExpr:
		return g.binary(e)
	case *ast.LogicalExpr:
		return g.logical(e)
	case *ast.CallExpr:
		return g.call(e)
	}
	// rejected constructs were reported before lowering
	return g.nilValue()
}

func (g *cg) literal(e *ast.LiteralExpr) value.Value {
	switch v := e.Value.(type) {
	case nil:
		return g.nilValue()
	case bool:
		return g.boolValue(v)
	case float64:
		return g.numberValue(v)
	case string:
		p := g.internString(v)
		return g.tagged(tagString, g.blk.NewPtrToInt(p, types.I64))
	}
	return g.nilValue()
}

// variable loads a reference: local slots and cells for resolver-local IDs,
// the globals table otherwise.
func (g *cg) variable(e *ast.VariableExpr) value.Value {
	if _, local := g.dist[e.ID()]; local {
		if st, ok := g.findLocal(e.Name); ok {
			return g.loadStorage(st)
		}
	}
	return g.globalGet(e.Name)
}

func (g *cg) assign(e *ast.AssignExpr) value.Value {
	v := g.expr(e.Value)
	if _, local := g.dist[e.ID()]; local {
		if st, ok := g.findLocal(e.Name); ok {
			g.storeStorage(st, v)
			return v
		}
	}
	g.globalSet(e.Name, v)
	return v
}

func (g *cg) loadStorage(st varStorage) value.Value {
	if st.cell != nil {
		return g.blk.NewCall(g.rt.cellGet, st.cell)
	}
	return g.blk.NewLoad(g.lv, st.slot)
}

func (g *cg) storeStorage(st varStorage, v value.Value) {
	if st.cell != nil {
		g.blk.NewCall(g.rt.cellSet, st.cell, v)
		return
	}
	g.blk.NewStore(v, st.slot)
}

func (g *cg) unary(e *ast.UnaryExpr) value.Value {
	operand := g.expr(e.Right)
	switch e.Op {
	case token.MINUS:
		return g.boxNumber(g.blk.NewFNeg(g.asNumber(operand)))
	case token.BANG:
		t := g.truthy(operand)
		return g.boxBool(g.blk.NewXor(t, constant.NewInt(types.I1, 1)))
	}
	return g.nilValue()
}

func (g *cg) binary(e *ast.BinaryExpr) value.Value {
	left := g.expr(e.Left)
	right := g.expr(e.Right)

	switch e.Op {
	case token.PLUS:
		return g.add(left, right)
	case token.MINUS:
		return g.boxNumber(g.blk.NewFSub(g.asNumber(left), g.asNumber(right)))
	case token.STAR:
		return g.boxNumber(g.blk.NewFMul(g.asNumber(left), g.asNumber(right)))
	case token.SLASH:
		return g.boxNumber(g.blk.NewFDiv(g.asNumber(left), g.asNumber(right)))
	case token.GT:
		return g.boxBool(g.blk.NewFCmp(enum.FPredOGT, g.asNumber(left), g.asNumber(right)))
	case token.GE:
		return g.boxBool(g.blk.NewFCmp(enum.FPredOGE, g.asNumber(left), g.asNumber(right)))
	case token.LT:
		return g.boxBool(g.blk.NewFCmp(enum.FPredOLT, g.asNumber(left), g.asNumber(right)))
	case token.LE:
		return g.boxBool(g.blk.NewFCmp(enum.FPredOLE, g.asNumber(left), g.asNumber(right)))
	case token.EQEQ:
		return g.boxBool(g.equality(left, right, false))
	case token.BANGEQ:
		return g.boxBool(g.equality(left, right, true))
	}
	return g.nilValue()
}

// add dispatches on the operand tags at runtime: two strings concatenate
// through the runtime helper, everything else takes the numeric path.
func (g *cg) add(left, right value.Value) value.Value {
	tag3 := constant.NewInt(types.I8, tagString)
	bothStr := g.blk.NewAnd(
		g.blk.NewICmp(enum.IPredEQ, g.tag(left), tag3),
		g.blk.NewICmp(enum.IPredEQ, g.tag(right), tag3))

	strB := g.fn.NewBlock(g.label("add.str"))
	numB := g.fn.NewBlock(g.label("add.num"))
	mergeB := g.fn.NewBlock(g.label("add.end"))
	g.blk.NewCondBr(bothStr, strB, numB)

	g.blk = strB
	sres := g.blk.NewCall(g.rt.stringConcat, left, right)
	strEnd := g.blk
	g.blk.NewBr(mergeB)

	g.blk = numB
	nres := g.boxNumber(g.blk.NewFAdd(g.asNumber(left), g.asNumber(right)))
	numEnd := g.blk
	g.blk.NewBr(mergeB)

	g.blk = mergeB
	return mergeB.NewPhi(ir.NewIncoming(sres, strEnd), ir.NewIncoming(nres, numEnd))
}

// equality compares tag and payload bitwise, except strings which compare
// by content through the runtime helper. The result is an i1.
func (g *cg) equality(left, right value.Value, negate bool) value.Value {
	tag3 := constant.NewInt(types.I8, tagString)
	bothStr := g.blk.NewAnd(
		g.blk.NewICmp(enum.IPredEQ, g.tag(left), tag3),
		g.blk.NewICmp(enum.IPredEQ, g.tag(right), tag3))

	strB := g.fn.NewBlock(g.label("eq.str"))
	bitB := g.fn.NewBlock(g.label("eq.bits"))
	mergeB := g.fn.NewBlock(g.label("eq.end"))
	g.blk.NewCondBr(bothStr, strB, bitB)

	g.blk = strB
	seq := g.blk.NewCall(g.rt.stringEqual, left, right)
	strEnd := g.blk
	g.blk.NewBr(mergeB)

	g.blk = bitB
	beq := g.blk.NewAnd(
		g.blk.NewICmp(enum.IPredEQ, g.tag(left), g.tag(right)),
		g.blk.NewICmp(enum.IPredEQ, g.payload(left), g.payload(right)))
	bitEnd := g.blk
	g.blk.NewBr(mergeB)

	g.blk = mergeB
	var eq value.Value = mergeB.NewPhi(ir.NewIncoming(seq, strEnd), ir.NewIncoming(beq, bitEnd))
	if negate {
		eq = g.blk.NewXor(eq, constant.NewInt(types.I1, 1))
	}
	return eq
}

// logical lowers and/or with a phi merging the left value and the right
// value over a truthiness branch.
func (g *cg) logical(e *ast.LogicalExpr) value.Value {
	left := g.expr(e.Left)
	cond := g.truthy(left)
	leftEnd := g.blk

	rhsB := g.fn.NewBlock(g.label("logic.rhs"))
	mergeB := g.fn.NewBlock(g.label("logic.end"))
	if e.Op == token.OR {
		// or: skip the right side when the left is truthy
		g.blk.NewCondBr(cond, mergeB, rhsB)
	} else {
		g.blk.NewCondBr(cond, rhsB, mergeB)
	}

	g.blk = rhsB
	right := g.expr(e.Right)
	rhsEnd := g.blk
	g.blk.NewBr(mergeB)

	g.blk = mergeB
	return mergeB.NewPhi(ir.NewIncoming(left, leftEnd), ir.NewIncoming(right, rhsEnd))
}

// call extracts the closure record from the callee value and emits an
// indirect call with the env array as the hidden first argument.
func (g *cg) call(e *ast.CallExpr) value.Value {
	callee := g.expr(e.Callee)

	cptr := g.blk.NewIntToPtr(g.payload(callee), types.NewPointer(g.closure))
	zero := constant.NewInt(types.I32, 0)

	fnPP := g.blk.NewGetElementPtr(g.closure, cptr, zero, constant.NewInt(types.I32, 0))
	fnRaw := g.blk.NewLoad(types.I8Ptr, fnPP)
	envPP := g.blk.NewGetElementPtr(g.closure, cptr, zero, constant.NewInt(types.I32, 3))
	env := g.blk.NewLoad(types.I8Ptr, envPP)

	sigParams := make([]types.Type, 0, len(e.Args)+1)
	sigParams = append(sigParams, types.I8Ptr)
	args := make([]value.Value, 0, len(e.Args)+1)
	args = append(args, env)
	for _, a := range e.Args {
		args = append(args, g.expr(a))
		sigParams = append(sigParams, g.lv)
	}

	sig := types.NewFunc(g.lv, sigParams...)
	fp := g.blk.NewBitCast(fnRaw, types.NewPointer(sig))
	return g.blk.NewCall(fp, args...)
}
