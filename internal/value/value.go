package value

import (
	"fmt"
	"strconv"
)

// Handle is an opaque index into the heap's object storage. It lives in
// this package so that values can refer to heap objects without
// importing the heap.
type Handle int

type ValueType int

const (
	VAL_NUMBER ValueType = iota
	VAL_STRING
	VAL_BOOL
	VAL_NIL
	VAL_FUNCTION
	VAL_CLOSURE
	VAL_NATIVE
	VAL_ARRAY
	VAL_CLASS
	VAL_INSTANCE
	VAL_BOUND_METHOD
)

// Value is the runtime value representation. Numbers, strings, bools
// and nil are stored inline; everything else is a handle into the heap.
type Value struct {
	Type   ValueType
	Num    float64
	Str    string
	Bool   bool
	Handle Handle
	Native *NativeFn
}

// NativeFunc receives the call arguments and returns a result or an
// error message that the VM wraps in a runtime error. Natives that need
// the VM (allocation, causality queries) are defined as closures over
// it at construction time.
type NativeFunc func(args []Value) (Value, error)

// NativeFn is a built-in function. Arity < 0 means variadic.
type NativeFn struct {
	Name  string
	Arity int
	Fn    NativeFunc
}

func NewNumber(n float64) Value { return Value{Type: VAL_NUMBER, Num: n} }
func NewString(s string) Value  { return Value{Type: VAL_STRING, Str: s} }
func NewBool(b bool) Value      { return Value{Type: VAL_BOOL, Bool: b} }
func NewNil() Value             { return Value{Type: VAL_NIL} }

func NewFunction(h Handle) Value    { return Value{Type: VAL_FUNCTION, Handle: h} }
func NewClosure(h Handle) Value     { return Value{Type: VAL_CLOSURE, Handle: h} }
func NewArray(h Handle) Value       { return Value{Type: VAL_ARRAY, Handle: h} }
func NewClass(h Handle) Value       { return Value{Type: VAL_CLASS, Handle: h} }
func NewInstance(h Handle) Value    { return Value{Type: VAL_INSTANCE, Handle: h} }
func NewBoundMethod(h Handle) Value { return Value{Type: VAL_BOUND_METHOD, Handle: h} }

func NewNative(name string, arity int, fn NativeFunc) Value {
	return Value{Type: VAL_NATIVE, Native: &NativeFn{Name: name, Arity: arity, Fn: fn}}
}

func (v Value) TypeName() string {
	switch v.Type {
	case VAL_NUMBER:
		return "number"
	case VAL_STRING:
		return "string"
	case VAL_BOOL:
		return "bool"
	case VAL_NIL:
		return "nil"
	case VAL_FUNCTION:
		return "function"
	case VAL_CLOSURE:
		return "closure"
	case VAL_NATIVE:
		return "native function"
	case VAL_ARRAY:
		return "array"
	case VAL_CLASS:
		return "class"
	case VAL_INSTANCE:
		return "instance"
	case VAL_BOUND_METHOD:
		return "method"
	default:
		return "unknown"
	}
}

// IsTruthy: nil and false are falsy, as are zero and the empty string.
func (v Value) IsTruthy() bool {
	switch v.Type {
	case VAL_NIL:
		return false
	case VAL_BOOL:
		return v.Bool
	case VAL_NUMBER:
		return v.Num != 0
	case VAL_STRING:
		return v.Str != ""
	default:
		return true
	}
}

// Children returns the heap handles directly referenced by this value,
// for GC root marking.
func (v Value) Children() []Handle {
	switch v.Type {
	case VAL_FUNCTION, VAL_CLOSURE, VAL_ARRAY, VAL_CLASS, VAL_INSTANCE, VAL_BOUND_METHOD:
		return []Handle{v.Handle}
	default:
		return nil
	}
}

// Equal is structural for numbers, strings, bools and nil, and never
// true for heap values.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case VAL_NUMBER:
		return a.Num == b.Num
	case VAL_STRING:
		return a.Str == b.Str
	case VAL_BOOL:
		return a.Bool == b.Bool
	case VAL_NIL:
		return true
	default:
		return false
	}
}

// FormatNumber renders a number the way the language prints it: no
// trailing zeros, no decimal point for integral values.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// String renders the value without heap access; heap-backed variants
// show only their kind. heap.Heap.Display goes through the heap to
// resolve names.
func (v Value) String() string {
	switch v.Type {
	case VAL_NUMBER:
		return FormatNumber(v.Num)
	case VAL_STRING:
		return v.Str
	case VAL_BOOL:
		return strconv.FormatBool(v.Bool)
	case VAL_NIL:
		return "nil"
	case VAL_FUNCTION, VAL_CLOSURE:
		return "<fn>"
	case VAL_NATIVE:
		return fmt.Sprintf("<native fn %s>", v.Native.Name)
	case VAL_ARRAY:
		return "<array>"
	case VAL_CLASS:
		return "<class>"
	case VAL_INSTANCE:
		return "<instance>"
	case VAL_BOUND_METHOD:
		return "<method>"
	default:
		return "unknown"
	}
}
