package interp

import (
	"errors"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/types"
)

// Callable is implemented by all values that can appear as the callee of a
// call expression.
type Callable interface {
	types.Value

	// Arity returns the number of arguments the callable expects.
	Arity() int

	// Call invokes the callable. The argument count has already been checked
	// against Arity.
	Call(i *Interp, args []types.Value) (types.Value, error)
}

// Function is a user-defined function paired with the environment captured
// at its declaration.
type Function struct {
	decl    *ast.Function
	closure *Environment
	isInit  bool
}

func (f *Function) Type() string   { return "function" }
func (f *Function) Truth() bool    { return true }
func (f *Function) String() string { return "<fn " + f.decl.Name + ">" }
func (f *Function) Arity() int     { return len(f.decl.Params) }

func (f *Function) Call(i *Interp, args []types.Value) (types.Value, error) {
	env := NewEnvironment(f.closure)
	for idx, prm := range f.decl.Params {
		env.Define(prm, args[idx])
	}

	if err := i.execBlock(f.decl.Body, env); err != nil {
		var ret errReturn
		if !errors.As(err, &ret) {
			return nil, err
		}
		// an explicit return in an initializer yields this, never the value
		if f.isInit {
			return f.closure.GetAt(0, "this"), nil
		}
		return ret.value, nil
	}
	if f.isInit {
		return f.closure.GetAt(0, "this"), nil
	}
	return types.Nil, nil
}

// bind returns a copy of the method with this bound to inst in a new scope
// parented to the method's closure environment.
func (f *Function) bind(inst *Instance) *Function {
	env := NewEnvironment(f.closure)
	env.Define("this", inst)
	return &Function{decl: f.decl, closure: env, isInit: f.isInit}
}

// Native is a built-in function implemented in Go.
type Native struct {
	name  string
	arity int
	fn    func(i *Interp, args []types.Value) (types.Value, error)
}

func (n *Native) Type() string   { return "function" }
func (n *Native) Truth() bool    { return true }
func (n *Native) String() string { return "<native fn>" }
func (n *Native) Arity() int     { return n.arity }

func (n *Native) Call(i *Interp, args []types.Value) (types.Value, error) {
	return n.fn(i, args)
}

// Class is a user-defined class. Calling it constructs an instance.
type Class struct {
	name    string
	super   *Class
	methods map[string]*Function
}

func (c *Class) Type() string   { return "class" }
func (c *Class) Truth() bool    { return true }
func (c *Class) String() string { return c.name }

// findMethod searches the class and then its superclass chain.
func (c *Class) findMethod(name string) *Function {
	if m, ok := c.methods[name]; ok {
		return m
	}
	if c.super != nil {
		return c.super.findMethod(name)
	}
	return nil
}

func (c *Class) Arity() int {
	if init := c.findMethod("init"); init != nil {
		return init.Arity()
	}
	return 0
}

func (c *Class) Call(i *Interp, args []types.Value) (types.Value, error) {
	inst := &Instance{class: c, fields: make(map[string]types.Value)}
	if init := c.findMethod("init"); init != nil {
		if _, err := init.bind(inst).Call(i, args); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Instance is a heap record with a property map and a shared reference to
// its class.
type Instance struct {
	class  *Class
	fields map[string]types.Value
}

func (inst *Instance) Type() string   { return "instance" }
func (inst *Instance) Truth() bool    { return true }
func (inst *Instance) String() string { return inst.class.name + " instance" }
