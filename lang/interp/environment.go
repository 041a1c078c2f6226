package interp

import "github.com/mna/blox/lang/types"

// Environment is one link of the lexical environment chain: a name-to-value
// mapping with an optional enclosing parent.
type Environment struct {
	values    map[string]types.Value
	enclosing *Environment
}

// NewEnvironment returns an empty environment parented to enclosing, which
// may be nil for the global environment.
func NewEnvironment(enclosing *Environment) *Environment {
	return &Environment{
		values:    make(map[string]types.Value),
		enclosing: enclosing,
	}
}

// Define binds name to v in this environment, overwriting any previous
// binding of the same name.
func (e *Environment) Define(name string, v types.Value) {
	e.values[name] = v
}

// Get returns the value bound to name in this environment only.
func (e *Environment) Get(name string) (types.Value, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Assign rebinds name in this environment if it is already bound, and
// reports whether it was. It does not create a binding.
func (e *Environment) Assign(name string, v types.Value) bool {
	if _, ok := e.values[name]; !ok {
		return false
	}
	e.values[name] = v
	return true
}

// ancestor walks distance parents up the chain.
func (e *Environment) ancestor(distance int) *Environment {
	env := e
	for i := 0; i < distance; i++ {
		env = env.enclosing
	}
	return env
}

// GetAt returns the value bound to name in the environment distance scopes
// above this one. The resolver guarantees the binding exists.
func (e *Environment) GetAt(distance int, name string) types.Value {
	return e.ancestor(distance).values[name]
}

// AssignAt rebinds name in the environment distance scopes above this one.
func (e *Environment) AssignAt(distance int, name string, v types.Value) {
	e.ancestor(distance).values[name] = v
}
