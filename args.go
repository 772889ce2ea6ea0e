package shaderjob

import (
	"math"
	"reflect"
)

// Int32Arg returns args[i] as an int32. Any integer value that fits is
// accepted, so untyped constants passed to Run, which arrive as int, work.
func Int32Arg(id int, args []any, i int) (int32, error) {
	if i >= len(args) {
		return 0, ArgError(id, i, nil)
	}
	if v, ok := args[i].(int32); ok {
		return v, nil
	}
	rv := reflect.ValueOf(args[i])
	switch {
	case rv.CanInt():
		if n := rv.Int(); n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n), nil
		}
	case rv.CanUint():
		if n := rv.Uint(); n <= math.MaxInt32 {
			return int32(n), nil //nolint:gosec // range checked
		}
	}
	return 0, ArgError(id, i, args[i])
}

// Float32Arg returns args[i] as a float32. Float64 values, including untyped
// float constants passed to Run, are narrowed.
func Float32Arg(id int, args []any, i int) (float32, error) {
	if i >= len(args) {
		return 0, ArgError(id, i, nil)
	}
	if v, ok := args[i].(float32); ok {
		return v, nil
	}
	rv := reflect.ValueOf(args[i])
	if !rv.CanFloat() {
		return 0, ArgError(id, i, args[i])
	}
	return float32(rv.Float()), nil
}

// Int32Slice returns args[i] as an []int32. Arrays and pointers to arrays
// are accepted; only a pointer lets kernel writes reach the caller.
func Int32Slice(id int, args []any, i int) ([]int32, error) {
	return sliceArg[int32](id, args, i)
}

// Float32Slice returns args[i] as a []float32. Arrays and pointers to arrays
// are accepted; only a pointer lets kernel writes reach the caller.
func Float32Slice(id int, args []any, i int) ([]float32, error) {
	return sliceArg[float32](id, args, i)
}

func sliceArg[T Scalar](id int, args []any, i int) ([]T, error) {
	if i >= len(args) {
		return nil, ArgError(id, i, nil)
	}
	if v, ok := args[i].([]T); ok {
		return v, nil
	}
	rv := reflect.ValueOf(args[i])
	switch {
	case rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Array:
		rv = rv.Elem()
	case rv.Kind() == reflect.Array:
		// Arrays passed by value are copied; results cannot flow back.
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		rv = cp
	default:
		return nil, ArgError(id, i, args[i])
	}
	if s, ok := rv.Slice(0, rv.Len()).Interface().([]T); ok {
		return s, nil
	}
	return nil, ArgError(id, i, args[i])
}
