package vm

import (
	"fmt"
	"math"
	"strconv"

	"skyhetu-vm/internal/value"
)

const variadic = -1

// defineNatives installs the built-in functions. They are closures
// over the VM so they can allocate and query the causality log.
func (vm *VM) defineNatives() {
	vm.DefineNative("len", 1, func(args []value.Value) (value.Value, error) {
		switch args[0].Type {
		case value.VAL_STRING:
			return value.NewNumber(float64(len(args[0].Str))), nil
		case value.VAL_ARRAY:
			arr, ok := vm.Heap.GetArray(args[0].Handle)
			if !ok {
				return value.Value{}, fmt.Errorf("array not found")
			}
			return value.NewNumber(float64(len(arr.Elements))), nil
		default:
			return value.Value{}, fmt.Errorf("len() requires string or array")
		}
	})

	vm.DefineNative("substr", variadic, func(args []value.Value) (value.Value, error) {
		if len(args) < 2 || len(args) > 3 {
			return value.Value{}, fmt.Errorf("substr() takes 2 or 3 arguments")
		}
		if args[0].Type != value.VAL_STRING {
			return value.Value{}, fmt.Errorf("substr() requires a string as first argument")
		}
		if args[1].Type != value.VAL_NUMBER {
			return value.Value{}, fmt.Errorf("substr() requires a number as second argument")
		}
		s := args[0].Str
		start := int(args[1].Num)
		end := len(s)
		if len(args) == 3 {
			if args[2].Type != value.VAL_NUMBER {
				return value.Value{}, fmt.Errorf("substr() requires a number as third argument")
			}
			end = int(args[2].Num)
		}
		if end > len(s) {
			end = len(s)
		}
		if end < 0 {
			end = 0
		}
		if start > end {
			start = end
		}
		if start < 0 {
			start = 0
		}
		return value.NewString(s[start:end]), nil
	})

	vm.DefineNative("str", 1, func(args []value.Value) (value.Value, error) {
		return value.NewString(vm.Heap.Display(args[0])), nil
	})

	vm.DefineNative("num", 1, func(args []value.Value) (value.Value, error) {
		switch args[0].Type {
		case value.VAL_NUMBER:
			return args[0], nil
		case value.VAL_STRING:
			n, err := strconv.ParseFloat(args[0].Str, 64)
			if err != nil {
				return value.Value{}, fmt.Errorf("cannot convert '%s' to number", args[0].Str)
			}
			return value.NewNumber(n), nil
		case value.VAL_BOOL:
			if args[0].Bool {
				return value.NewNumber(1), nil
			}
			return value.NewNumber(0), nil
		default:
			return value.Value{}, fmt.Errorf("cannot convert to number")
		}
	})

	vm.DefineNative("type", 1, func(args []value.Value) (value.Value, error) {
		return value.NewString(args[0].TypeName()), nil
	})

	vm.DefineNative("range", variadic, func(args []value.Value) (value.Value, error) {
		var start, end int64
		switch len(args) {
		case 1:
			if args[0].Type != value.VAL_NUMBER {
				return value.Value{}, fmt.Errorf("range() requires number")
			}
			end = int64(args[0].Num)
		case 2:
			if args[0].Type != value.VAL_NUMBER || args[1].Type != value.VAL_NUMBER {
				return value.Value{}, fmt.Errorf("range() requires numbers")
			}
			start = int64(args[0].Num)
			end = int64(args[1].Num)
		default:
			return value.Value{}, fmt.Errorf("range() takes 1 or 2 arguments")
		}

		values := make([]value.Value, 0)
		for i := start; i < end; i++ {
			values = append(values, value.NewNumber(float64(i)))
		}
		return value.NewArray(vm.Heap.AllocArray(values)), nil
	})

	vm.DefineNative("assert", variadic, func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Value{}, fmt.Errorf("assert() requires at least one argument")
		}
		if !args[0].IsTruthy() {
			if len(args) > 1 {
				return value.Value{}, fmt.Errorf("%s", vm.Heap.Display(args[1]))
			}
			return value.Value{}, fmt.Errorf("assertion failed")
		}
		return value.NewNil(), nil
	})

	vm.DefineNative("abs", 1, numberNative("abs", math.Abs))
	vm.DefineNative("floor", 1, numberNative("floor", math.Floor))
	vm.DefineNative("ceil", 1, numberNative("ceil", math.Ceil))
	vm.DefineNative("round", 1, numberNative("round", math.Round))

	vm.DefineNative("min", 2, func(args []value.Value) (value.Value, error) {
		if args[0].Type != value.VAL_NUMBER || args[1].Type != value.VAL_NUMBER {
			return value.Value{}, fmt.Errorf("min() requires two numbers")
		}
		return value.NewNumber(math.Min(args[0].Num, args[1].Num)), nil
	})

	vm.DefineNative("max", 2, func(args []value.Value) (value.Value, error) {
		if args[0].Type != value.VAL_NUMBER || args[1].Type != value.VAL_NUMBER {
			return value.Value{}, fmt.Errorf("max() requires two numbers")
		}
		return value.NewNumber(math.Max(args[0].Num, args[1].Num)), nil
	})

	vm.DefineNative("causal_graph", variadic, func(args []value.Value) (value.Value, error) {
		if len(args) == 0 || len(args) > 2 {
			return value.Value{}, fmt.Errorf("causal_graph() takes 1 or 2 arguments")
		}
		if args[0].Type != value.VAL_STRING {
			return value.Value{}, fmt.Errorf("causal_graph() requires variable name as string")
		}
		format := "dot"
		if len(args) > 1 {
			if args[1].Type != value.VAL_STRING {
				return value.Value{}, fmt.Errorf("causal_graph() format must be string")
			}
			format = args[1].Str
		}

		switch format {
		case "dot":
			return value.NewString(vm.Causality.ToDot(args[0].Str)), nil
		case "json":
			return value.NewString(vm.Causality.ToJSON(args[0].Str)), nil
		default:
			return value.Value{}, fmt.Errorf("unknown format '%s'. Use 'dot' or 'json'", format)
		}
	})

	vm.DefineNative("transitions", 1, func(args []value.Value) (value.Value, error) {
		if args[0].Type != value.VAL_STRING {
			return value.Value{}, fmt.Errorf("transitions() requires variable name as string")
		}
		return value.NewNumber(float64(vm.Causality.TransitionCount(args[0].Str))), nil
	})

	vm.DefineNative("snapshot", 0, func(args []value.Value) (value.Value, error) {
		return value.NewNumber(float64(vm.Causality.CurrentTime())), nil
	})
}

func numberNative(name string, fn func(float64) float64) value.NativeFunc {
	return func(args []value.Value) (value.Value, error) {
		if args[0].Type != value.VAL_NUMBER {
			return value.Value{}, fmt.Errorf("%s() requires a number", name)
		}
		return value.NewNumber(fn(args[0].Num)), nil
	}
}
