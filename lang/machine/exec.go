package machine

import (
	"fmt"

	"github.com/mna/blox/lang/compiler"
	"github.com/mna/blox/lang/types"
)

// exec is the instruction dispatch loop. It runs until the last frame
// returns or a runtime error occurs.
func (vm *VM) exec() error {
	for {
		fr := &vm.frames[len(vm.frames)-1]
		ch := fr.closure.Proto.Chunk
		opIP := fr.ip

		op := compiler.Opcode(ch.Code[fr.ip])
		fr.ip++

		readByte := func() byte {
			b := ch.Code[fr.ip]
			fr.ip++
			return b
		}
		readU16 := func() uint16 {
			v := ch.ReadU16(fr.ip)
			fr.ip += 2
			return v
		}
		readConstant := func() compiler.Constant {
			return ch.Constants[readByte()]
		}
		readString := func() string {
			return readConstant().Str
		}

		switch op {
		case compiler.OpConstant:
			v, err := vm.constantValue(readConstant(), opIP)
			if err != nil {
				return err
			}
			vm.push(v)

		case compiler.OpNil:
			vm.push(types.Nil)
		case compiler.OpTrue:
			vm.push(types.True)
		case compiler.OpFalse:
			vm.push(types.False)
		case compiler.OpPop:
			vm.pop()

		case compiler.OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[fr.base+slot])

		case compiler.OpSetLocal:
			slot := int(readByte())
			vm.stack[fr.base+slot] = vm.peek(0)

		case compiler.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.rerr(opIP, "undefined variable '%s'", name)
			}
			vm.push(v)

		case compiler.OpSetGlobal:
			name := readString()
			if !vm.globals.Has(name) {
				return vm.rerr(opIP, "undefined variable '%s'", name)
			}
			vm.globals.Put(name, vm.peek(0))

		case compiler.OpDefineGlobal:
			name := readString()
			vm.globals.Put(name, vm.peek(0))
			vm.pop()

		case compiler.OpGetUpvalue:
			idx := int(readByte())
			vm.push(fr.closure.Upvalues[idx].get(vm))

		case compiler.OpSetUpvalue:
			idx := int(readByte())
			fr.closure.Upvalues[idx].set(vm, vm.peek(0))

		case compiler.OpGetProperty:
			name := readString()
			inst, ok := vm.peek(0).(*Instance)
			if !ok {
				return vm.rerr(opIP, "only instances have properties")
			}
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			method, ok := inst.Class.Methods.Get(name)
			if !ok {
				return vm.rerr(opIP, "undefined property '%s'", name)
			}
			vm.pop()
			vm.push(&BoundMethod{Receiver: inst, Method: method})

		case compiler.OpSetProperty:
			name := readString()
			inst, ok := vm.peek(1).(*Instance)
			if !ok {
				return vm.rerr(opIP, "only instances have fields")
			}
			inst.Fields.Put(name, vm.peek(0))
			v := vm.pop()
			vm.pop() // the instance
			vm.push(v)

		case compiler.OpGetSuper:
			name := readString()
			super := vm.pop().(*Class)
			receiver := vm.pop()
			method, ok := super.Methods.Get(name)
			if !ok {
				return vm.rerr(opIP, "undefined property '%s'", name)
			}
			vm.push(&BoundMethod{Receiver: receiver, Method: method})

		case compiler.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(types.Bool(types.Equal(a, b)))

		case compiler.OpGreater, compiler.OpLess:
			bn, bok := vm.peek(0).(types.Number)
			an, aok := vm.peek(1).(types.Number)
			if !aok || !bok {
				return vm.rerr(opIP, "operands must be numbers")
			}
			vm.pop()
			vm.pop()
			if op == compiler.OpGreater {
				vm.push(types.Bool(an > bn))
			} else {
				vm.push(types.Bool(an < bn))
			}

		case compiler.OpAdd:
			if bn, ok := vm.peek(0).(types.Number); ok {
				if an, ok := vm.peek(1).(types.Number); ok {
					vm.pop()
					vm.pop()
					vm.push(an + bn)
					break
				}
			}
			if bs, ok := vm.peek(0).(types.String); ok {
				if as, ok := vm.peek(1).(types.String); ok {
					vm.pop()
					vm.pop()
					vm.push(as + bs)
					break
				}
			}
			return vm.rerr(opIP, "operands must be two numbers or two strings")

		case compiler.OpSubtract, compiler.OpMultiply, compiler.OpDivide:
			bn, bok := vm.peek(0).(types.Number)
			an, aok := vm.peek(1).(types.Number)
			if !aok || !bok {
				return vm.rerr(opIP, "operands must be numbers")
			}
			vm.pop()
			vm.pop()
			switch op {
			case compiler.OpSubtract:
				vm.push(an - bn)
			case compiler.OpMultiply:
				vm.push(an * bn)
			default:
				vm.push(an / bn)
			}

		case compiler.OpNot:
			vm.push(types.Bool(!vm.pop().Truth()))

		case compiler.OpNegate:
			n, ok := vm.peek(0).(types.Number)
			if !ok {
				return vm.rerr(opIP, "operand must be a number")
			}
			vm.pop()
			vm.push(-n)

		case compiler.OpPrint:
			fmt.Fprintln(vm.Out, vm.pop().String())

		case compiler.OpJump:
			fr.ip += int(readU16())

		case compiler.OpJumpIfFalse:
			jump := int(readU16())
			if !vm.peek(0).Truth() {
				fr.ip += jump
			}

		case compiler.OpLoop:
			fr.ip -= int(readU16())

		case compiler.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount, opIP); err != nil {
				return err
			}

		case compiler.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if err := vm.invoke(name, argCount, opIP); err != nil {
				return err
			}

		case compiler.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			super := vm.pop().(*Class)
			method, ok := super.Methods.Get(name)
			if !ok {
				return vm.rerr(opIP, "undefined property '%s'", name)
			}
			if err := vm.call(method, argCount, opIP); err != nil {
				return err
			}

		case compiler.OpClosure:
			c := readConstant()
			if c.Kind != compiler.KindFunction {
				return vm.rerr(opIP, "expected function constant")
			}
			cl := &Closure{
				Proto:    c.Fn,
				Upvalues: make([]*Upvalue, c.Fn.UpvalueCount),
			}
			for i := 0; i < c.Fn.UpvalueCount; i++ {
				isLocal := readByte() == 1
				index := int(readByte())
				if isLocal {
					cl.Upvalues[i] = vm.captureUpvalue(fr.base + index)
				} else {
					cl.Upvalues[i] = fr.closure.Upvalues[index]
				}
			}
			vm.push(cl)

		case compiler.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case compiler.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(fr.base)
			base := fr.base
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return nil
			}
			vm.stack = vm.stack[:base]
			vm.push(result)

		case compiler.OpClass:
			vm.push(NewClass(readString()))

		case compiler.OpInherit:
			super, ok := vm.peek(1).(*Class)
			if !ok {
				return vm.rerr(opIP, "superclass must be a class")
			}
			sub := vm.peek(0).(*Class)
			super.Methods.Iter(func(name string, m *Closure) bool {
				sub.Methods.Put(name, m)
				return false
			})
			vm.pop() // the subclass, leaving the superclass as the super local

		case compiler.OpMethod:
			name := readString()
			method := vm.peek(0).(*Closure)
			class := vm.peek(1).(*Class)
			class.Methods.Put(name, method)
			vm.pop()

		default:
			return vm.rerr(opIP, "unknown opcode %d", byte(op))
		}
	}
}
