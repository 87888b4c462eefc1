// Package vm executes compiled chunks on a stack machine with call
// frames, closures and upvalues. Every state transition is recorded in
// the causality log; the heap is collected between instruction
// dispatches.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/dolthub/swiss"

	"skyhetu-vm/internal/causality"
	"skyhetu-vm/internal/chunk"
	"skyhetu-vm/internal/heap"
	"skyhetu-vm/internal/skyerr"
	"skyhetu-vm/internal/value"
)

// StackMax caps the value stack; overflow is a fatal internal
// condition.
const StackMax = 2048

// FramesMax caps call depth; exceeding it raises a stack overflow
// error.
const FramesMax = 64

// CallFrame is one in-progress invocation: the executing closure, its
// chunk (cached from the prototype), the instruction pointer and the
// stack slot where the frame's window begins.
type CallFrame struct {
	Closure value.Handle
	Chunk   *chunk.Chunk
	IP      int
	Slot    int
}

// Binding is a global variable cell. Non-state bindings are immutable.
type Binding struct {
	Value   value.Value
	IsState bool
}

type VM struct {
	stack  []value.Value
	frames []CallFrame

	globals *swiss.Map[string, Binding]

	Causality *causality.Log
	Heap      *heap.Heap

	functionChunks []*chunk.Chunk
	openUpvalues   []value.Handle

	stdout io.Writer
}

func New() *VM {
	vm := &VM{
		stack:     make([]value.Value, 0, StackMax),
		frames:    make([]CallFrame, 0, FramesMax),
		globals:   swiss.NewMap[string, Binding](64),
		Causality: causality.NewLog(),
		Heap:      heap.New(),
		stdout:    os.Stdout,
	}
	vm.defineNatives()
	return vm
}

// SetOutput redirects program output (print).
func (vm *VM) SetOutput(w io.Writer) {
	vm.stdout = w
}

// DefineNative installs a built-in under name.
func (vm *VM) DefineNative(name string, arity int, fn value.NativeFunc) {
	vm.globals.Put(name, Binding{Value: value.NewNative(name, arity, fn)})
}

// GetGlobal returns a global binding's value.
func (vm *VM) GetGlobal(name string) (value.Value, bool) {
	b, ok := vm.globals.Get(name)
	return b.Value, ok
}

// RegisterChunks adds compiled function chunks to the GC root set so
// resident prototypes survive collection.
func (vm *VM) RegisterChunks(chunks []*chunk.Chunk) {
	vm.functionChunks = append(vm.functionChunks, chunks...)
}

// Run wraps the main chunk in a script closure and executes it to
// completion, returning the program's result value.
func (vm *VM) Run(c *chunk.Chunk) (value.Value, *skyerr.Error) {
	fn := &heap.Function{Name: "<script>", Chunk: c}
	funcHandle := vm.Heap.AllocFunction(fn)
	closureHandle := vm.Heap.AllocClosure(funcHandle, nil)

	// The main chunk's constants are roots too.
	vm.functionChunks = append(vm.functionChunks, c)

	// A fresh run starts from a clean stack; globals and causality
	// persist across runs.
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = vm.openUpvalues[:0]

	// Script closure occupies slot 0.
	vm.push(value.NewClosure(closureHandle))
	vm.frames = append(vm.frames, CallFrame{Closure: closureHandle, Chunk: c, Slot: 0})

	return vm.execute()
}

// Why returns the causality transcript for a variable.
func (vm *VM) Why(variable string) string {
	return vm.Causality.Why(variable)
}

// ==================== Garbage collection ====================

// CollectGarbage runs a full mark-sweep cycle. Roots are the value
// stack, the globals table and the constants of every registered
// chunk; open upvalues are reachable only through live closures and
// are pruned when reclaimed.
func (vm *VM) CollectGarbage() {
	vm.markRoots()
	vm.Heap.TraceReferences()
	vm.Heap.Sweep()

	live := vm.openUpvalues[:0]
	for _, handle := range vm.openUpvalues {
		if _, ok := vm.Heap.GetUpvalue(handle); ok {
			live = append(live, handle)
		}
	}
	vm.openUpvalues = live
}

func (vm *VM) markRoots() {
	for _, v := range vm.stack {
		for _, child := range v.Children() {
			vm.Heap.Mark(child)
		}
	}

	vm.globals.Iter(func(name string, b Binding) bool {
		for _, child := range b.Value.Children() {
			vm.Heap.Mark(child)
		}
		return false
	})

	for _, c := range vm.functionChunks {
		for _, constant := range c.Constants {
			for _, child := range constant.Children() {
				vm.Heap.Mark(child)
			}
		}
	}
}

// ==================== Upvalues ====================

// captureUpvalue finds or creates an open upvalue for the given stack
// location; capture is deduplicated so nested closures share the cell.
func (vm *VM) captureUpvalue(location int) value.Handle {
	for _, handle := range vm.openUpvalues {
		if u, ok := vm.Heap.GetUpvalue(handle); ok && u.IsOpen && u.Slot == location {
			return handle
		}
	}

	handle := vm.Heap.AllocUpvalue(location)
	vm.openUpvalues = append(vm.openUpvalues, handle)
	return handle
}

// closeUpvalues hoists every open upvalue at or above last off the
// stack into its cell.
func (vm *VM) closeUpvalues(last int) {
	i := 0
	for i < len(vm.openUpvalues) {
		handle := vm.openUpvalues[i]
		remove := true

		if u, ok := vm.Heap.GetUpvalue(handle); ok && u.IsOpen {
			if u.Slot >= last {
				u.Closed = vm.stack[u.Slot]
				u.IsOpen = false
			} else {
				remove = false
			}
		}

		if remove {
			vm.openUpvalues[i] = vm.openUpvalues[len(vm.openUpvalues)-1]
			vm.openUpvalues = vm.openUpvalues[:len(vm.openUpvalues)-1]
		} else {
			i++
		}
	}
}

func (vm *VM) readUpvalue(handle value.Handle) value.Value {
	u, ok := vm.Heap.GetUpvalue(handle)
	if !ok {
		return value.NewNil()
	}
	if u.IsOpen {
		return vm.stack[u.Slot]
	}
	return u.Closed
}

func (vm *VM) writeUpvalue(handle value.Handle, v value.Value) {
	u, ok := vm.Heap.GetUpvalue(handle)
	if !ok {
		return
	}
	if u.IsOpen {
		vm.stack[u.Slot] = v
	} else {
		u.Closed = v
	}
}

// ==================== Interpreter loop ====================

func (vm *VM) execute() (value.Value, *skyerr.Error) {
	for {
		if len(vm.frames) == 0 {
			if len(vm.stack) == 0 {
				return value.NewNil(), nil
			}
			return vm.pop(), nil
		}

		if vm.Heap.ShouldCollect() {
			vm.CollectGarbage()
		}

		op := chunk.OpCode(vm.readByte())

		switch op {
		case chunk.OP_CONSTANT:
			idx := vm.readU16()
			vm.push(vm.currentChunk().Constants[idx])

		case chunk.OP_NIL:
			vm.push(value.NewNil())
		case chunk.OP_TRUE:
			vm.push(value.NewBool(true))
		case chunk.OP_FALSE:
			vm.push(value.NewBool(false))

		case chunk.OP_POP:
			vm.pop()

		case chunk.OP_DUP:
			vm.push(vm.peek(0))

		case chunk.OP_DEFINE_GLOBAL:
			name := vm.getName(vm.readU16())
			vm.globals.Put(name, Binding{Value: vm.pop()})

		case chunk.OP_DEFINE_STATE:
			name := vm.getName(vm.readU16())
			vm.globals.Put(name, Binding{Value: vm.pop(), IsState: true})

		case chunk.OP_GET_GLOBAL:
			name := vm.getName(vm.readU16())
			binding, ok := vm.globals.Get(name)
			if !ok {
				return value.Value{}, skyerr.Undefined(name, nil)
			}
			vm.push(binding.Value)

		case chunk.OP_SET_GLOBAL:
			name := vm.getName(vm.readU16())
			binding, ok := vm.globals.Get(name)
			if !ok {
				return value.Value{}, skyerr.Undefined(name, nil)
			}
			if !binding.IsState {
				return value.Value{}, skyerr.Immutable(name, nil)
			}
			binding.Value = vm.peek(0)
			vm.globals.Put(name, binding)

		case chunk.OP_TRANSITION:
			name := vm.getName(vm.readU16())
			newValue := vm.pop()

			binding, ok := vm.globals.Get(name)
			if !ok {
				return value.Value{}, skyerr.Undefined(name, nil)
			}
			if !binding.IsState {
				return value.Value{}, skyerr.Immutable(name, nil)
			}

			vm.Causality.RecordMutation(name, binding.Value, newValue, "")
			binding.Value = newValue
			vm.globals.Put(name, binding)

		case chunk.OP_TRANSITION_LOCAL:
			slot := int(vm.readU16())
			name := vm.getName(vm.readU16())
			newValue := vm.pop()

			stackIdx := vm.currentFrame().Slot + slot
			vm.Causality.RecordMutation(name, vm.stack[stackIdx], newValue, "")
			vm.stack[stackIdx] = newValue

		case chunk.OP_GET_LOCAL:
			slot := int(vm.readU16())
			vm.push(vm.stack[vm.currentFrame().Slot+slot])

		case chunk.OP_SET_LOCAL:
			slot := int(vm.readU16())
			vm.stack[vm.currentFrame().Slot+slot] = vm.peek(0)

		case chunk.OP_ADD:
			b := vm.pop()
			a := vm.pop()
			switch {
			case a.Type == value.VAL_NUMBER && b.Type == value.VAL_NUMBER:
				vm.push(value.NewNumber(a.Num + b.Num))
			case a.Type == value.VAL_STRING && b.Type == value.VAL_STRING:
				vm.push(value.NewString(a.Str + b.Str))
			case a.Type == value.VAL_STRING && b.Type == value.VAL_NUMBER:
				vm.push(value.NewString(a.Str + value.FormatNumber(b.Num)))
			case a.Type == value.VAL_NUMBER && b.Type == value.VAL_STRING:
				vm.push(value.NewString(value.FormatNumber(a.Num) + b.Str))
			default:
				return value.Value{}, skyerr.Mismatch("numbers or strings",
					a.TypeName()+" and "+b.TypeName(), nil)
			}

		case chunk.OP_SUBTRACT:
			if err := vm.binaryOp(func(a, b float64) float64 { return a - b }, "-"); err != nil {
				return value.Value{}, err
			}

		case chunk.OP_MULTIPLY:
			if err := vm.binaryOp(func(a, b float64) float64 { return a * b }, "*"); err != nil {
				return value.Value{}, err
			}

		case chunk.OP_DIVIDE:
			b := vm.pop()
			a := vm.pop()
			if a.Type != value.VAL_NUMBER || b.Type != value.VAL_NUMBER {
				return value.Value{}, skyerr.Mismatch("numbers",
					a.TypeName()+" and "+b.TypeName(), nil)
			}
			if b.Num == 0 {
				return value.Value{}, skyerr.New(skyerr.DivisionByZero, nil, "division by zero")
			}
			vm.push(value.NewNumber(a.Num / b.Num))

		case chunk.OP_MODULO:
			if err := vm.binaryOp(mod, "%"); err != nil {
				return value.Value{}, err
			}

		case chunk.OP_NEGATE:
			v := vm.pop()
			if v.Type != value.VAL_NUMBER {
				return value.Value{}, skyerr.Mismatch("number", v.TypeName(), nil)
			}
			vm.push(value.NewNumber(-v.Num))

		case chunk.OP_EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(value.Equal(a, b)))

		case chunk.OP_NOT_EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(!value.Equal(a, b)))

		case chunk.OP_LESS:
			if err := vm.comparisonOp(func(a, b float64) bool { return a < b }); err != nil {
				return value.Value{}, err
			}
		case chunk.OP_LESS_EQUAL:
			if err := vm.comparisonOp(func(a, b float64) bool { return a <= b }); err != nil {
				return value.Value{}, err
			}
		case chunk.OP_GREATER:
			if err := vm.comparisonOp(func(a, b float64) bool { return a > b }); err != nil {
				return value.Value{}, err
			}
		case chunk.OP_GREATER_EQUAL:
			if err := vm.comparisonOp(func(a, b float64) bool { return a >= b }); err != nil {
				return value.Value{}, err
			}

		case chunk.OP_NOT:
			v := vm.pop()
			vm.push(value.NewBool(!v.IsTruthy()))

		case chunk.OP_JUMP:
			offset := int(vm.readU16())
			vm.currentFrame().IP += offset

		case chunk.OP_JUMP_IF_FALSE:
			offset := int(vm.readU16())
			if !vm.peek(0).IsTruthy() {
				vm.currentFrame().IP += offset
			}

		case chunk.OP_JUMP_IF_TRUE:
			offset := int(vm.readU16())
			if vm.peek(0).IsTruthy() {
				vm.currentFrame().IP += offset
			}

		case chunk.OP_LOOP:
			offset := int(vm.readU16())
			vm.currentFrame().IP -= offset

		case chunk.OP_CALL:
			argCount := int(vm.readByte())
			callee := vm.peek(argCount)
			if err := vm.callValue(callee, argCount); err != nil {
				return value.Value{}, err
			}

		case chunk.OP_RETURN:
			result := vm.pop()
			frame := vm.frames[len(vm.frames)-1]
			vm.frames = vm.frames[:len(vm.frames)-1]

			vm.closeUpvalues(frame.Slot)

			if len(vm.frames) == 0 {
				return result, nil
			}

			vm.stack = vm.stack[:frame.Slot]
			vm.push(result)

		case chunk.OP_CLOSURE:
			idx := vm.readU16()
			funcConst := vm.currentChunk().Constants[idx]
			if funcConst.Type != value.VAL_FUNCTION {
				return value.Value{}, skyerr.Runtime("closure operand must be a function")
			}

			fn, ok := vm.Heap.GetFunction(funcConst.Handle)
			if !ok {
				return value.Value{}, skyerr.Runtime("function not found")
			}

			upvalues := make([]value.Handle, 0, fn.UpvalueCount)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte() != 0
				index := int(vm.readByte())

				if isLocal {
					location := vm.currentFrame().Slot + index
					upvalues = append(upvalues, vm.captureUpvalue(location))
				} else {
					closure, ok := vm.Heap.GetClosure(vm.currentFrame().Closure)
					if !ok {
						return value.Value{}, skyerr.Runtime("enclosing closure missing")
					}
					upvalues = append(upvalues, closure.Upvalues[index])
				}
			}

			vm.push(value.NewClosure(vm.Heap.AllocClosure(funcConst.Handle, upvalues)))

		case chunk.OP_GET_UPVALUE:
			idx := int(vm.readU16())
			closure, ok := vm.Heap.GetClosure(vm.currentFrame().Closure)
			if !ok {
				return value.Value{}, skyerr.Runtime("closure missing")
			}
			vm.push(vm.readUpvalue(closure.Upvalues[idx]))

		case chunk.OP_SET_UPVALUE:
			idx := int(vm.readU16())
			closure, ok := vm.Heap.GetClosure(vm.currentFrame().Closure)
			if !ok {
				return value.Value{}, skyerr.Runtime("closure missing")
			}
			vm.writeUpvalue(closure.Upvalues[idx], vm.peek(0))

		case chunk.OP_TRANSITION_UPVALUE:
			idx := int(vm.readU16())
			name := vm.getName(vm.readU16())
			newValue := vm.pop()

			closure, ok := vm.Heap.GetClosure(vm.currentFrame().Closure)
			if !ok {
				return value.Value{}, skyerr.Runtime("closure missing")
			}
			handle := closure.Upvalues[idx]

			vm.Causality.RecordMutation(name, vm.readUpvalue(handle), newValue, "")
			vm.writeUpvalue(handle, newValue)

		case chunk.OP_CLOSE_UPVALUE:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case chunk.OP_PRINT:
			count := int(vm.readByte())
			parts := make([]string, count)
			for i := count - 1; i >= 0; i-- {
				parts[i] = vm.Heap.Display(vm.pop())
			}
			fmt.Fprintln(vm.stdout, strings.Join(parts, " "))
			vm.push(value.NewNil())

		case chunk.OP_WHY:
			name := vm.getName(vm.readU16())
			vm.push(value.NewString(vm.Causality.Why(name)))

		case chunk.OP_TIME:
			vm.push(value.NewNumber(float64(vm.Causality.CurrentTime())))

		case chunk.OP_ARRAY:
			count := int(vm.readByte())
			elements := make([]value.Value, count)
			for i := count - 1; i >= 0; i-- {
				elements[i] = vm.pop()
			}
			vm.push(value.NewArray(vm.Heap.AllocArray(elements)))

		case chunk.OP_INDEX:
			index := vm.pop()
			container := vm.pop()

			switch {
			case container.Type == value.VAL_ARRAY && index.Type == value.VAL_NUMBER:
				idx := int(index.Num)
				if arr, ok := vm.Heap.GetArray(container.Handle); ok && idx >= 0 && idx < len(arr.Elements) {
					vm.push(arr.Elements[idx])
				} else {
					vm.push(value.NewNil())
				}
			case container.Type == value.VAL_STRING && index.Type == value.VAL_NUMBER:
				idx := int(index.Num)
				runes := []rune(container.Str)
				if idx >= 0 && idx < len(runes) {
					vm.push(value.NewString(string(runes[idx])))
				} else {
					vm.push(value.NewNil())
				}
			default:
				return value.Value{}, skyerr.Mismatch("array or string", container.TypeName(), nil)
			}

		case chunk.OP_CLASS:
			name := vm.getName(vm.readU16())
			vm.push(value.NewClass(vm.Heap.AllocClass(name)))

		case chunk.OP_METHOD:
			name := vm.getName(vm.readU16())
			method := vm.peek(0)
			classVal := vm.peek(1)

			if classVal.Type != value.VAL_CLASS {
				return value.Value{}, skyerr.Runtime("cannot define method on non-class")
			}
			if method.Type != value.VAL_CLOSURE {
				return value.Value{}, skyerr.Runtime("method must be a closure")
			}
			if class, ok := vm.Heap.GetClass(classVal.Handle); ok {
				class.Methods[name] = method.Handle
			}
			vm.pop()

		case chunk.OP_GET_PROPERTY:
			name := vm.getName(vm.readU16())
			receiver := vm.peek(0)

			if receiver.Type != value.VAL_INSTANCE {
				return value.Value{}, skyerr.Runtime("only instances have properties")
			}

			instance, ok := vm.Heap.GetInstance(receiver.Handle)
			if !ok {
				return value.Value{}, skyerr.Runtime("instance missing")
			}

			if field, ok := instance.Fields[name]; ok {
				vm.pop()
				vm.push(field)
				break
			}

			class, _ := vm.Heap.GetClass(instance.Class)
			if class != nil {
				if method, ok := class.Methods[name]; ok {
					bound := vm.Heap.AllocBoundMethod(receiver, method)
					vm.pop()
					vm.push(value.NewBoundMethod(bound))
					break
				}
			}
			return value.Value{}, skyerr.New(skyerr.UndefinedProperty, nil, "undefined property '%s'", name)

		case chunk.OP_SET_PROPERTY:
			name := vm.getName(vm.readU16())
			val := vm.pop()
			receiver := vm.peek(0)

			if receiver.Type != value.VAL_INSTANCE {
				return value.Value{}, skyerr.Runtime("only instances have properties")
			}
			instance, ok := vm.Heap.GetInstance(receiver.Handle)
			if !ok {
				return value.Value{}, skyerr.Runtime("instance missing")
			}
			instance.Fields[name] = val

			vm.pop()
			vm.push(val)

		case chunk.OP_HALT:
			if len(vm.stack) == 0 {
				return value.NewNil(), nil
			}
			return vm.pop(), nil

		default:
			// Break and Continue are lowered to jumps by the compiler
			// and must never reach dispatch.
			return value.Value{}, skyerr.Runtime("unexpected opcode %s", op)
		}
	}
}

// ==================== Calls ====================

func (vm *VM) callValue(callee value.Value, argCount int) *skyerr.Error {
	switch callee.Type {
	case value.VAL_FUNCTION:
		// A bare prototype is wrapped in an empty closure at call time.
		return vm.callFunction(vm.Heap.AllocClosure(callee.Handle, nil), argCount)

	case value.VAL_CLOSURE:
		return vm.callFunction(callee.Handle, argCount)

	case value.VAL_NATIVE:
		native := callee.Native
		if native.Arity >= 0 && argCount != native.Arity {
			return skyerr.Arity(native.Arity, argCount, nil)
		}

		argsStart := len(vm.stack) - argCount
		args := make([]value.Value, argCount)
		copy(args, vm.stack[argsStart:])

		result, err := native.Fn(args)
		if err != nil {
			return skyerr.Runtime("%s", err.Error())
		}

		vm.stack = vm.stack[:argsStart-1]
		vm.push(result)
		return nil

	case value.VAL_CLASS:
		instanceHandle := vm.Heap.AllocInstance(callee.Handle)
		instanceVal := value.NewInstance(instanceHandle)

		class, ok := vm.Heap.GetClass(callee.Handle)
		if !ok {
			return skyerr.Runtime("class missing")
		}

		if init, ok := class.Methods["init"]; ok {
			// The instance replaces the class in the callee slot so
			// init sees it as 'this'.
			vm.stack[len(vm.stack)-1-argCount] = instanceVal
			return vm.callFunction(init, argCount)
		}
		if argCount != 0 {
			return skyerr.Arity(0, argCount, nil)
		}
		vm.pop()
		vm.push(instanceVal)
		return nil

	case value.VAL_BOUND_METHOD:
		bound, ok := vm.Heap.GetBoundMethod(callee.Handle)
		if !ok {
			return skyerr.Runtime("bound method missing")
		}
		vm.stack[len(vm.stack)-1-argCount] = bound.Receiver
		return vm.callFunction(bound.Method, argCount)

	default:
		return skyerr.Mismatch("function", callee.TypeName(), nil)
	}
}

func (vm *VM) callFunction(closureHandle value.Handle, argCount int) *skyerr.Error {
	closure, ok := vm.Heap.GetClosure(closureHandle)
	if !ok {
		return skyerr.Runtime("called value is not a closure")
	}
	fn, ok := vm.Heap.GetFunction(closure.Function)
	if !ok {
		return skyerr.Runtime("function not found")
	}

	if argCount != len(fn.Params) {
		return skyerr.Arity(len(fn.Params), argCount, nil)
	}
	if len(vm.frames) >= FramesMax {
		return skyerr.New(skyerr.StackOverflow, nil, "stack overflow")
	}

	vm.frames = append(vm.frames, CallFrame{
		Closure: closureHandle,
		Chunk:   fn.Chunk,
		Slot:    len(vm.stack) - argCount - 1,
	})
	return nil
}

// ==================== Numeric helpers ====================

func mod(a, b float64) float64 {
	return math.Mod(a, b)
}

func (vm *VM) binaryOp(op func(a, b float64) float64, opName string) *skyerr.Error {
	b := vm.pop()
	a := vm.pop()

	switch {
	case a.Type == value.VAL_NUMBER && b.Type == value.VAL_NUMBER:
		vm.push(value.NewNumber(op(a.Num, b.Num)))
		return nil
	case a.Type == value.VAL_STRING && b.Type == value.VAL_STRING && opName == "+":
		vm.push(value.NewString(a.Str + b.Str))
		return nil
	case a.Type == value.VAL_STRING && b.Type == value.VAL_NUMBER && opName == "*":
		n := int(b.Num)
		if n < 0 {
			n = 0
		}
		vm.push(value.NewString(strings.Repeat(a.Str, n)))
		return nil
	default:
		return skyerr.Mismatch("numbers", a.TypeName()+" and "+b.TypeName(), nil)
	}
}

func (vm *VM) comparisonOp(op func(a, b float64) bool) *skyerr.Error {
	b := vm.pop()
	a := vm.pop()

	if a.Type != value.VAL_NUMBER || b.Type != value.VAL_NUMBER {
		return skyerr.Mismatch("numbers", a.TypeName()+" and "+b.TypeName(), nil)
	}
	vm.push(value.NewBool(op(a.Num, b.Num)))
	return nil
}

// ==================== Stack helpers ====================

func (vm *VM) push(v value.Value) {
	if len(vm.stack) >= StackMax {
		panic("value stack overflow")
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) currentChunk() *chunk.Chunk {
	return vm.currentFrame().Chunk
}

func (vm *VM) readByte() byte {
	frame := vm.currentFrame()
	b := frame.Chunk.Code[frame.IP]
	frame.IP++
	return b
}

func (vm *VM) readU16() uint16 {
	frame := vm.currentFrame()
	v := frame.Chunk.ReadU16(frame.IP)
	frame.IP += 2
	return v
}

func (vm *VM) getName(idx uint16) string {
	return vm.currentChunk().Names[idx]
}
