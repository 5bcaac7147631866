package quickjs

import (
	"math"
	"testing"

	"github.com/wippyai/quickjs-runtime/errors"
)

func TestFromGo_Primitives(t *testing.T) {
	tests := []struct {
		name string
		arg  any
		want Kind
	}{
		{"nil", nil, KindNull},
		{"bool", true, KindBool},
		{"int", 42, KindInt},
		{"int8", int8(-3), KindInt},
		{"int64", int64(1 << 40), KindInt},
		{"uint16", uint16(9), KindInt},
		{"uint64", uint64(7), KindInt},
		{"float32", float32(1.5), KindFloat},
		{"float64", 2.5, KindFloat},
		{"string", "hi", KindString},
		{"value passthrough", Int(5), KindInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := fromGo(tt.arg)
			if err != nil {
				t.Fatalf("fromGo(%v): %v", tt.arg, err)
			}
			if v.Kind() != tt.want {
				t.Errorf("kind = %v, want %v", v.Kind(), tt.want)
			}
		})
	}
}

func TestFromGo_Rejected(t *testing.T) {
	tests := []struct {
		name string
		arg  any
	}{
		{"slice", []int{1, 2}},
		{"map", map[string]int{"a": 1}},
		{"struct", struct{ X int }{1}},
		{"chan", make(chan int)},
		{"func", func() {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fromGo(tt.arg); !errors.Is(err, errors.ErrArgument) {
				t.Errorf("fromGo(%T) error = %v, want argument kind", tt.arg, err)
			}
		})
	}
}

func TestFromGo_UintOverflow(t *testing.T) {
	if _, err := fromGo(uint64(math.MaxUint64)); !errors.Is(err, errors.ErrArgument) {
		t.Fatalf("error = %v, want argument kind", err)
	}
	v, err := fromGo(uint64(math.MaxInt64))
	if err != nil {
		t.Fatalf("max int64 as uint64: %v", err)
	}
	if v.Int() != math.MaxInt64 {
		t.Errorf("Int() = %d, want %d", v.Int(), int64(math.MaxInt64))
	}
}

func TestFromGoAll_ReportsPosition(t *testing.T) {
	_, err := fromGoAll([]any{1, "ok", []int{3}})
	if !errors.Is(err, errors.ErrArgument) {
		t.Fatalf("error = %v, want argument kind", err)
	}
	if got := err.Error(); got != "[argument] argument 2: unsupported argument type []int" {
		t.Errorf("message = %q", got)
	}
}

func TestValue_NumericWidening(t *testing.T) {
	if got := Int(3).Float(); got != 3.0 {
		t.Errorf("Int(3).Float() = %v, want 3", got)
	}
	if got := Float(3.9).Int(); got != 3 {
		t.Errorf("Float(3.9).Int() = %v, want 3", got)
	}
}

func TestValue_Interface(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want any
	}{
		{"undefined", Undefined(), nil},
		{"null", Null(), nil},
		{"bool", Bool(true), true},
		{"int", Int(7), int64(7)},
		{"float", Float(1.25), 1.25},
		{"string", String("x"), "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Interface(); got != tt.want {
				t.Errorf("Interface() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined(), "undefined"},
		{Null(), "null"},
		{Bool(false), "false"},
		{Int(-2), "-2"},
		{Float(0.5), "0.5"},
		{String("a\"b"), `"a\"b"`},
	}

	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
