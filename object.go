package quickjs

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/quickjs-runtime/errors"
)

// Object is a handle to a value that lives inside an engine context.
// The value itself never crosses the boundary; the handle pins it and
// offers calls and JSON serialization against it.
//
// A handle stays valid after its Context is closed. It becomes invalid
// only through its own Free, which is idempotent.
type Object struct {
	ctx   *Context
	ptr   uint32
	freed atomic.Bool
}

// Call invokes the handle as a function. It fails with an exception
// error when the underlying value is not callable, and with a
// cross-context error when any argument is a handle from another
// context.
func (o *Object) Call(args ...any) (Value, error) {
	vals, err := fromGoAll(args)
	if err != nil {
		return Value{}, err
	}
	for _, v := range vals {
		if v.kind == KindObject && v.obj.ctx != o.ctx {
			return Value{}, errors.CrossContext("Can not mix JS objects from different contexts.")
		}
	}

	c := o.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.freed.Load() {
		return Value{}, errors.Closed("object")
	}

	callable, err := c.eng.IsFunction(context.Background(), c.js, o.ptr)
	if err != nil {
		return Value{}, errors.Engine("callability check trapped", err)
	}
	if !callable {
		return Value{}, errors.Thrown("TypeError: not a function", "")
	}

	return c.callLocked(o.ptr, vals)
}

// JSON serializes the handle's value with the engine's own JSON
// stringifier. Values JSON cannot represent (functions, cycles) fail
// with an exception error.
func (o *Object) JSON() (string, error) {
	c := o.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.freed.Load() {
		return "", errors.Closed("object")
	}

	bg := context.Background()
	ptr, err := c.eng.JSONStringify(bg, c.js, o.ptr)
	if err != nil {
		return "", errors.Engine("json stringify trapped", err)
	}
	v, err := c.valueOwned(ptr)
	if err != nil {
		return "", err
	}
	if v.Kind() != KindString {
		// JSON.stringify of undefined or a bare function yields undefined.
		if v.Kind() == KindObject {
			v.obj.freeLocked()
			// o still pins the context, so this cannot trigger teardown.
			c.release()
		}
		return "", errors.Thrown("TypeError: value is not JSON-serializable", "")
	}
	return v.Str(), nil
}

// Free releases the handle. Safe to call more than once; only the
// first call releases the engine value.
func (o *Object) Free() {
	c := o.ctx
	c.mu.Lock()
	released := o.freeLocked()
	c.mu.Unlock()

	// release may tear the engine down, so it runs outside mu.
	if released {
		c.release()
	}
}

func (o *Object) freeLocked() bool {
	if o.freed.Swap(true) {
		return false
	}
	o.ctx.eng.FreeValue(context.Background(), o.ctx.js, o.ptr)
	return true
}
