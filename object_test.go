package quickjs

import (
	"strings"
	"testing"

	"github.com/wippyai/quickjs-runtime/errors"
)

func evalObject(t *testing.T, ctx *Context, code string) *Object {
	t.Helper()
	v, err := ctx.Eval(code)
	if err != nil {
		t.Fatalf("eval %q: %v", code, err)
	}
	obj := v.Object()
	if obj == nil {
		t.Fatalf("eval %q: result kind %v, want object", code, v.Kind())
	}
	return obj
}

func TestObject_CallFunction(t *testing.T) {
	ctx := newTestContext(t)

	fn := evalObject(t, ctx, "(function (a, b) { return a + b; })")
	defer fn.Free()

	v, err := fn.Call(40, 2)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v.Int() != 42 {
		t.Errorf("call = %d, want 42", v.Int())
	}
}

func TestObject_CallNonFunction(t *testing.T) {
	ctx := newTestContext(t)

	obj := evalObject(t, ctx, "({})")
	defer obj.Free()

	_, err := obj.Call()
	if !errors.Is(err, errors.ErrException) {
		t.Fatalf("error = %v, want exception kind", err)
	}
	if !strings.Contains(err.Error(), "not a function") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestObject_CallPropagatesThrow(t *testing.T) {
	ctx := newTestContext(t)

	fn := evalObject(t, ctx, `(function () { throw new Error("inner"); })`)
	defer fn.Free()

	_, err := fn.Call()
	if !errors.Is(err, errors.ErrException) {
		t.Fatalf("error = %v, want exception kind", err)
	}
	if !strings.Contains(err.Error(), "inner") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestObject_CrossContext(t *testing.T) {
	a := newTestContext(t)
	b := newTestContext(t)

	fn := evalObject(t, a, "(function (x) { return x; })")
	defer fn.Free()
	foreign := evalObject(t, b, "({})")
	defer foreign.Free()

	_, err := fn.Call(foreign)
	if !errors.Is(err, errors.ErrCrossContext) {
		t.Fatalf("error = %v, want cross-context kind", err)
	}
	if err.Error() != "[cross_context] Can not mix JS objects from different contexts." {
		t.Errorf("message = %q", err.Error())
	}
}

func TestObject_JSON(t *testing.T) {
	ctx := newTestContext(t)

	obj := evalObject(t, ctx, `({b: [1, 2], s: "x"})`)
	defer obj.Free()

	text, err := obj.JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if text != `{"b":[1,2],"s":"x"}` {
		t.Errorf("json = %q", text)
	}
}

func TestObject_JSONUnserializable(t *testing.T) {
	ctx := newTestContext(t)

	fn := evalObject(t, ctx, "(function () {})")
	defer fn.Free()

	if _, err := fn.JSON(); !errors.Is(err, errors.ErrException) {
		t.Fatalf("error = %v, want exception kind", err)
	}
}

func TestObject_FreeIdempotent(t *testing.T) {
	ctx := newTestContext(t)

	obj := evalObject(t, ctx, "({})")
	obj.Free()
	obj.Free()

	if _, err := obj.JSON(); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("json error = %v, want closed kind", err)
	}
	if _, err := obj.Call(); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("call error = %v, want closed kind", err)
	}
}

// A handle must keep working after its context is closed; the engine
// stays up until the last handle is freed.
func TestObject_OutlivesContext(t *testing.T) {
	ctx, err := New()
	if err != nil {
		t.Fatalf("create context: %v", err)
	}

	fn := evalObject(t, ctx, "(function () { return 7; })")
	if err := ctx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := ctx.Eval("1"); !errors.Is(err, errors.ErrClosed) {
		t.Fatalf("context should refuse work after close, got %v", err)
	}

	v, err := fn.Call()
	if err != nil {
		t.Fatalf("call after close: %v", err)
	}
	if v.Int() != 7 {
		t.Errorf("call = %d, want 7", v.Int())
	}
	fn.Free()
}
