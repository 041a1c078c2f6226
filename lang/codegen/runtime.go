package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// Value tags of the runtime's tagged union. These must match the C
// runtime's tag definitions exactly.
const (
	tagNil      = 0
	tagBool     = 1
	tagNumber   = 2
	tagString   = 3
	tagFunction = 4
	tagClass    = 5
	tagInstance = 6
)

// runtimeDecls holds the external C runtime functions declared in the
// module. All are C linkage and implemented by the linked runtime.
type runtimeDecls struct {
	print        *ir.Func // void lox_print(LoxValue)
	globalGet    *ir.Func // LoxValue lox_global_get(i8* name, i64 len)
	globalSet    *ir.Func // void lox_global_set(i8* name, i64 len, LoxValue)
	valueTruthy  *ir.Func // i1 lox_value_truthy(LoxValue)
	runtimeError *ir.Func // void lox_runtime_error(i8* msg, i64 len, i32 line)
	allocClosure *ir.Func // i8* lox_alloc_closure(i8* fn, i32 arity, i8* name, i8* env, i32 count)
	allocCell    *ir.Func // i8* lox_alloc_cell(LoxValue initial)
	cellGet      *ir.Func // LoxValue lox_cell_get(i8* cell)
	cellSet      *ir.Func // void lox_cell_set(i8* cell, LoxValue)
	stringConcat *ir.Func // LoxValue lox_string_concat(LoxValue, LoxValue)
	stringEqual  *ir.Func // i1 lox_string_equal(LoxValue, LoxValue)
	clock        *ir.Func // LoxValue lox_clock()
}

func declareRuntime(m *ir.Module, lv *types.StructType) *runtimeDecls {
	ptr := types.I8Ptr
	return &runtimeDecls{
		print: m.NewFunc("lox_print", types.Void,
			ir.NewParam("value", lv)),
		globalGet: m.NewFunc("lox_global_get", lv,
			ir.NewParam("name", ptr), ir.NewParam("name_len", types.I64)),
		globalSet: m.NewFunc("lox_global_set", types.Void,
			ir.NewParam("name", ptr), ir.NewParam("name_len", types.I64),
			ir.NewParam("value", lv)),
		valueTruthy: m.NewFunc("lox_value_truthy", types.I1,
			ir.NewParam("value", lv)),
		runtimeError: m.NewFunc("lox_runtime_error", types.Void,
			ir.NewParam("msg", ptr), ir.NewParam("msg_len", types.I64),
			ir.NewParam("line", types.I32)),
		allocClosure: m.NewFunc("lox_alloc_closure", ptr,
			ir.NewParam("fn_ptr", ptr), ir.NewParam("arity", types.I32),
			ir.NewParam("name", ptr), ir.NewParam("env", ptr),
			ir.NewParam("env_count", types.I32)),
		allocCell: m.NewFunc("lox_alloc_cell", ptr,
			ir.NewParam("initial", lv)),
		cellGet: m.NewFunc("lox_cell_get", lv,
			ir.NewParam("cell", ptr)),
		cellSet: m.NewFunc("lox_cell_set", types.Void,
			ir.NewParam("cell", ptr), ir.NewParam("value", lv)),
		stringConcat: m.NewFunc("lox_string_concat", lv,
			ir.NewParam("a", lv), ir.NewParam("b", lv)),
		stringEqual: m.NewFunc("lox_string_equal", types.I1,
			ir.NewParam("a", lv), ir.NewParam("b", lv)),
		clock: m.NewFunc("lox_clock", lv),
	}
}
