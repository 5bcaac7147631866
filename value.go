package quickjs

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/quickjs-runtime/errors"
)

// Kind identifies which variant a Value holds on the host side.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is a JavaScript value copied to the host. Primitives hold their
// data directly; anything non-primitive is carried as an *Object handle
// that still lives inside its engine context.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	obj  *Object
}

// Undefined is the JS undefined value.
func Undefined() Value { return Value{kind: KindUndefined} }

// Null is the JS null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a host bool.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps a host integer. The engine stores it as a JS number; exact
// round-tripping holds for magnitudes up to 2^53.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a host float64.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String wraps a host string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Kind reports the variant held by the value.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is JS undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNull reports whether the value is JS null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload, or false for other kinds.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload. Float values truncate; other kinds
// return zero.
func (v Value) Int() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Float returns the numeric payload as float64. Int values widen; other
// kinds return zero.
func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Str returns the string payload, or "" for other kinds.
func (v Value) Str() string { return v.s }

// Object returns the engine-resident handle, or nil for primitives.
func (v Value) Object() *Object { return v.obj }

// Interface unpacks the value into a plain Go any: nil for null and
// undefined, bool, int64, float64, string, or *Object.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindObject:
		return v.obj
	}
	return nil
}

// String renders the value for debugging. It is not the JS string
// conversion; use Str for string payloads.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindObject:
		return "[object]"
	}
	return "unknown"
}

// fromGo normalizes a host argument into a Value. The accepted set is a
// closed allow-list: nil, booleans, the fixed-width and platform integer
// types, floats, strings, Value itself and *Object. Composites (slices,
// maps, structs) are rejected here; they cross the boundary only through
// the JSON interchange path used by Function calls.
func fromGo(arg any) (Value, error) {
	switch a := arg.(type) {
	case nil:
		return Null(), nil
	case Value:
		return a, nil
	case *Object:
		if a == nil {
			return Null(), nil
		}
		return Value{kind: KindObject, obj: a}, nil
	case bool:
		return Bool(a), nil
	case int:
		return Int(int64(a)), nil
	case int8:
		return Int(int64(a)), nil
	case int16:
		return Int(int64(a)), nil
	case int32:
		return Int(int64(a)), nil
	case int64:
		return Int(a), nil
	case uint:
		return uintValue(uint64(a))
	case uint8:
		return Int(int64(a)), nil
	case uint16:
		return Int(int64(a)), nil
	case uint32:
		return Int(int64(a)), nil
	case uint64:
		return uintValue(a)
	case float32:
		return Float(float64(a)), nil
	case float64:
		return Float(a), nil
	case string:
		return String(a), nil
	}
	return Value{}, errors.Argument("unsupported argument type %T", arg)
}

func uintValue(v uint64) (Value, error) {
	if v > math.MaxInt64 {
		return Value{}, errors.Argument("unsigned value %d overflows the numeric range", v)
	}
	return Int(int64(v)), nil
}

// fromGoAll converts a host argument list, reporting the position of the
// first rejected argument.
func fromGoAll(args []any) ([]Value, error) {
	out := make([]Value, len(args))
	for i, a := range args {
		v, err := fromGo(a)
		if err != nil {
			return nil, errors.Argument("argument %d: %s", i, errDetail(err))
		}
		out[i] = v
	}
	return out, nil
}

func errDetail(err error) string {
	if e, ok := err.(*errors.Error); ok {
		return e.Detail
	}
	return fmt.Sprint(err)
}
