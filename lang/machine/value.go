package machine

import (
	"github.com/dolthub/swiss"

	"github.com/mna/blox/lang/compiler"
	"github.com/mna/blox/lang/types"
)

// Closure is a function prototype materialized at runtime, paired with the
// upvalues it captured.
type Closure struct {
	Proto    *compiler.FnProto
	Upvalues []*Upvalue
}

func (c *Closure) Type() string   { return "function" }
func (c *Closure) Truth() bool    { return true }
func (c *Closure) String() string { return "<fn " + c.Proto.Name + ">" }

// Upvalue is a handle to a captured local. While the local lives on the
// stack the upvalue is open and indirects through the slot index; when the
// slot is discarded the value is closed in place and lives in the upvalue
// itself. The same upvalue object is shared by every closure capturing the
// slot, which preserves shared-mutation semantics across the transition.
type Upvalue struct {
	slot   int // absolute stack index while open
	closed bool
	value  types.Value // the closed-over value once closed
}

func (uv *Upvalue) get(vm *VM) types.Value {
	if uv.closed {
		return uv.value
	}
	return vm.stack[uv.slot]
}

func (uv *Upvalue) set(vm *VM, v types.Value) {
	if uv.closed {
		uv.value = v
		return
	}
	vm.stack[uv.slot] = v
}

// Native is a built-in function implemented in Go.
type Native struct {
	Name  string
	Arity int
	Fn    func(vm *VM, args []types.Value) (types.Value, error)
}

func (n *Native) Type() string   { return "function" }
func (n *Native) Truth() bool    { return true }
func (n *Native) String() string { return "<native fn>" }

// Class is a runtime class with its method table. Inherit copies the
// superclass's methods down, so lookup never needs to walk a chain.
type Class struct {
	Name    string
	Methods *swiss.Map[string, *Closure]
}

func NewClass(name string) *Class {
	return &Class{Name: name, Methods: swiss.NewMap[string, *Closure](8)}
}

func (c *Class) Type() string   { return "class" }
func (c *Class) Truth() bool    { return true }
func (c *Class) String() string { return c.Name }

// Instance is a heap record with a property map and a shared reference to
// its class.
type Instance struct {
	Class  *Class
	Fields *swiss.Map[string, types.Value]
}

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: swiss.NewMap[string, types.Value](8)}
}

func (i *Instance) Type() string   { return "instance" }
func (i *Instance) Truth() bool    { return true }
func (i *Instance) String() string { return i.Class.Name + " instance" }

// BoundMethod pairs a method closure with its receiver. Calling it threads
// the receiver as this in slot 0.
type BoundMethod struct {
	Receiver types.Value
	Method   *Closure
}

func (b *BoundMethod) Type() string   { return "function" }
func (b *BoundMethod) Truth() bool    { return true }
func (b *BoundMethod) String() string { return b.Method.String() }
