// Package machine implements the stack-based virtual machine that executes
// the bytecode-compiled form of the source code.
package machine

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"

	"github.com/mna/blox/lang/compiler"
	"github.com/mna/blox/lang/stdlib"
	"github.com/mna/blox/lang/types"
)

const maxFrames = 1024

// frame is one entry of the call-frame stack: the closure being executed,
// its instruction pointer and the base of its slots on the value stack.
type frame struct {
	closure *Closure
	ip      int
	base    int
}

// VM is the bytecode virtual machine. The zero value is not usable; create
// one with New. Globals persist across Run calls.
type VM struct {
	// Out is the print sink. Defaults to os.Stdout.
	Out io.Writer

	stack   []types.Value
	frames  []frame
	globals *swiss.Map[string, types.Value]
	in      *bufio.Reader

	// open upvalues pointing at live stack slots, sorted by slot index so
	// that closing is a truncation of the tail.
	openUpvalues []*Upvalue
}

// New returns a VM with the native functions defined in its globals. Input
// for the readLine native is read from in, which may be nil to use
// os.Stdin.
func New(in io.Reader) *VM {
	if in == nil {
		in = os.Stdin
	}
	vm := &VM{
		Out:     os.Stdout,
		globals: swiss.NewMap[string, types.Value](16),
		in:      bufio.NewReader(in),
	}

	vm.globals.Put("clock", &Native{Name: "clock", Arity: 0,
		Fn: func(_ *VM, _ []types.Value) (types.Value, error) {
			return types.Number(stdlib.Clock()), nil
		}})
	vm.globals.Put("readLine", &Native{Name: "readLine", Arity: 0,
		Fn: func(vm *VM, _ []types.Value) (types.Value, error) {
			line, ok := stdlib.ReadLine(vm.in)
			if !ok {
				return types.Nil, nil
			}
			return types.String(line), nil
		}})
	vm.globals.Put("toNumber", &Native{Name: "toNumber", Arity: 1,
		Fn: func(_ *VM, args []types.Value) (types.Value, error) {
			switch v := args[0].(type) {
			case types.Number:
				return v, nil
			case types.String:
				if n, ok := stdlib.ParseNumber(string(v)); ok {
					return types.Number(n), nil
				}
			}
			return types.Nil, nil
		}})
	return vm
}

// Run executes a compiled script chunk to completion. The returned error,
// if non-nil, is a *types.RuntimeError with the call stack frozen at the
// point of failure.
func (vm *VM) Run(ch *compiler.Chunk) error {
	script := &Closure{Proto: &compiler.FnProto{Name: "", Chunk: ch}}
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = vm.openUpvalues[:0]

	vm.push(script)
	vm.frames = append(vm.frames, frame{closure: script, base: 0})
	return vm.exec()
}

func (vm *VM) push(v types.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() types.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) types.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// rerr builds a runtime error at the instruction that started at opIP in
// the current frame, freezing the call stack into the backtrace, innermost
// frame first.
func (vm *VM) rerr(opIP int, format string, args ...interface{}) *types.RuntimeError {
	fr := &vm.frames[len(vm.frames)-1]
	lines := fr.closure.Proto.Chunk.Lines
	e := &types.RuntimeError{Msg: fmt.Sprintf(format, args...), Line: lines[opIP]}

	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		ip := f.ip
		if i == len(vm.frames)-1 {
			ip = opIP
		} else if ip > 0 {
			ip--
		}
		e.Frames = append(e.Frames, types.StackFrame{
			Function: f.closure.Proto.Name,
			Line:     f.closure.Proto.Chunk.Lines[ip],
		})
	}
	return e
}

// captureUpvalue returns the open upvalue for the given absolute stack
// slot, reusing an existing one so that all capturing closures share it.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	i, found := slices.BinarySearchFunc(vm.openUpvalues, slot, func(uv *Upvalue, s int) int {
		return uv.slot - s
	})
	if found {
		return vm.openUpvalues[i]
	}
	uv := &Upvalue{slot: slot}
	vm.openUpvalues = slices.Insert(vm.openUpvalues, i, uv)
	return uv
}

// closeUpvalues closes every open upvalue pointing at a slot >= cutoff: the
// stack value is copied into the upvalue and the upvalue leaves the open
// list. Closure references keep observing the same, now heap-resident,
// value.
func (vm *VM) closeUpvalues(cutoff int) {
	i := len(vm.openUpvalues)
	for i > 0 && vm.openUpvalues[i-1].slot >= cutoff {
		uv := vm.openUpvalues[i-1]
		uv.value = vm.stack[uv.slot]
		uv.closed = true
		i--
	}
	vm.openUpvalues = vm.openUpvalues[:i]
}

// call pushes a frame for the closure, whose arguments are already on the
// stack.
func (vm *VM) call(cl *Closure, argCount, opIP int) error {
	if argCount != cl.Proto.Arity {
		return vm.rerr(opIP, "expected %d arguments but got %d", cl.Proto.Arity, argCount)
	}
	if len(vm.frames) >= maxFrames {
		return vm.rerr(opIP, "stack overflow")
	}
	vm.frames = append(vm.frames, frame{
		closure: cl,
		base:    len(vm.stack) - argCount - 1,
	})
	return nil
}

// callValue dispatches a call on the callee sitting argCount+1 below the
// top of the stack.
func (vm *VM) callValue(callee types.Value, argCount, opIP int) error {
	switch callee := callee.(type) {
	case *Closure:
		return vm.call(callee, argCount, opIP)

	case *Native:
		if argCount != callee.Arity {
			return vm.rerr(opIP, "expected %d arguments but got %d", callee.Arity, argCount)
		}
		args := vm.stack[len(vm.stack)-argCount:]
		res, err := callee.Fn(vm, args)
		if err != nil {
			return err
		}
		vm.stack = vm.stack[:len(vm.stack)-argCount-1]
		vm.push(res)
		return nil

	case *Class:
		inst := NewInstance(callee)
		vm.stack[len(vm.stack)-argCount-1] = inst
		if init, ok := callee.Methods.Get("init"); ok {
			return vm.call(init, argCount, opIP)
		}
		if argCount != 0 {
			return vm.rerr(opIP, "expected 0 arguments but got %d", argCount)
		}
		return nil

	case *BoundMethod:
		vm.stack[len(vm.stack)-argCount-1] = callee.Receiver
		return vm.call(callee.Method, argCount, opIP)

	default:
		return vm.rerr(opIP, "can only call functions and classes")
	}
}

// invoke is the fused GetProperty+Call: it dispatches name on the receiver
// sitting argCount below the top without materializing a bound method. A
// field holding a callable still works, at the cost of the slow path.
func (vm *VM) invoke(name string, argCount, opIP int) error {
	receiver := vm.peek(argCount)
	inst, ok := receiver.(*Instance)
	if !ok {
		return vm.rerr(opIP, "only instances have methods")
	}
	if field, ok := inst.Fields.Get(name); ok {
		vm.stack[len(vm.stack)-argCount-1] = field
		return vm.callValue(field, argCount, opIP)
	}
	method, ok := inst.Class.Methods.Get(name)
	if !ok {
		return vm.rerr(opIP, "undefined property '%s'", name)
	}
	return vm.call(method, argCount, opIP)
}

// constantValue converts a pool constant to a runtime value. Function
// prototypes never appear as bare constants, the Closure opcode reads them
// directly.
func (vm *VM) constantValue(c compiler.Constant, opIP int) (types.Value, error) {
	switch c.Kind {
	case compiler.KindNumber:
		return types.Number(c.Num), nil
	case compiler.KindString:
		return types.String(c.Str), nil
	}
	return nil, vm.rerr(opIP, "function constants should be handled by Closure opcode")
}
