package quickjs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/wippyai/quickjs-runtime/errors"
)

// Function binds one named JavaScript function behind a private
// Context. The source runs once at construction; each Call then invokes
// the named global. Unlike raw Context values, Function calls accept
// and return composite data by serializing it through JSON, so results
// arrive as plain Go values instead of engine handles.
type Function struct {
	ctx  *Context
	obj  *Object
	name string
}

// NewFunction compiles source in a fresh context and binds the global
// function called name. Construction fails if the source throws or if
// the named global is not callable.
func NewFunction(name, source string, opts ...Option) (*Function, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}

	completion, err := c.Eval(source)
	if err != nil {
		c.Close()
		return nil, errors.Construction("function source failed to evaluate", err)
	}
	// The completion value is unused; release it when it came back as a
	// handle so it cannot pin the context.
	if obj := completion.Object(); obj != nil {
		obj.Free()
	}

	v, err := c.Get(name)
	if err != nil {
		c.Close()
		return nil, errors.Construction("failed to read the function global", err)
	}
	obj := v.Object()
	if obj == nil {
		c.Close()
		return nil, errors.Construction("global "+name+" is not a function", nil)
	}

	c.mu.Lock()
	callable, cerr := c.eng.IsFunction(context.Background(), c.js, obj.ptr)
	c.mu.Unlock()
	if cerr != nil || !callable {
		obj.Free()
		c.Close()
		return nil, errors.Construction("global "+name+" is not a function", cerr)
	}

	return &Function{ctx: c, obj: obj, name: name}, nil
}

// Name returns the bound global's name.
func (f *Function) Name() string { return f.name }

// Call invokes the function and garbage-collects the private context
// afterwards. Arguments may be primitives, handles from this function's
// context, or JSON-serializable composites (slices, maps, structs).
func (f *Function) Call(args ...any) (any, error) {
	return f.call(args, true)
}

// CallWithoutGC is Call without the post-call collection pass. Useful
// in tight loops; heap growth is then bounded only by the memory limit
// until the engine collects on its own.
func (f *Function) CallWithoutGC(args ...any) (any, error) {
	return f.call(args, false)
}

func (f *Function) call(args []any, runGC bool) (any, error) {
	c := f.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.obj.freed.Load() {
		return nil, errors.Closed("function")
	}

	vals := make([]Value, len(args))
	var temps []*Object
	freeTemps := func() {
		for _, t := range temps {
			if t.freeLocked() {
				// f.obj pins the context, so this cannot trigger teardown.
				c.release()
			}
		}
	}

	for i, a := range args {
		if v, err := fromGo(a); err == nil {
			vals[i] = v
			continue
		}
		v, err := f.jsonArgLocked(i, a)
		if err != nil {
			freeTemps()
			return nil, err
		}
		if v.kind == KindObject {
			temps = append(temps, v.obj)
		}
		vals[i] = v
	}

	ret, callErr := c.callLocked(f.obj.ptr, vals)
	freeTemps()
	if runGC {
		c.eng.RunGC(context.Background(), c.rt)
	}
	if callErr != nil {
		return nil, callErr
	}
	return f.decodeLocked(ret)
}

// jsonArgLocked carries a composite argument across the boundary by
// marshaling it on the host and parsing it inside the engine.
func (f *Function) jsonArgLocked(i int, a any) (Value, error) {
	text, err := json.Marshal(a)
	if err != nil {
		return Value{}, errors.Argument("argument %d: %T is not JSON-serializable", i, a)
	}
	ptr, eerr := f.ctx.eng.JSONParse(context.Background(), f.ctx.js, string(text))
	if eerr != nil {
		return Value{}, errors.Engine("json parse trapped", eerr)
	}
	return f.ctx.valueOwned(ptr)
}

// decodeLocked maps a call result to a plain Go value. Non-function
// objects round-trip through the engine's JSON stringifier; functions
// stay engine-resident and come back as handles.
func (f *Function) decodeLocked(v Value) (any, error) {
	if v.Kind() != KindObject {
		return v.Interface(), nil
	}
	obj := v.Object()

	c := f.ctx
	callable, err := c.eng.IsFunction(context.Background(), c.js, obj.ptr)
	if err != nil {
		return nil, errors.Engine("callability check trapped", err)
	}
	if callable {
		return obj, nil
	}

	ptr, err := c.eng.JSONStringify(context.Background(), c.js, obj.ptr)
	if obj.freeLocked() {
		c.release()
	}
	if err != nil {
		return nil, errors.Engine("json stringify trapped", err)
	}
	sv, err := c.valueOwned(ptr)
	if err != nil {
		return nil, err
	}
	if sv.Kind() != KindString {
		return nil, errors.Thrown("TypeError: result is not JSON-serializable", "")
	}
	return decodeJSON(sv.Str())
}

// decodeJSON parses engine-produced JSON into Go natives, keeping
// integral numbers as int64.
func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Argument("engine produced invalid json: %s", err)
	}
	return normalizeJSON(raw), nil
}

func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	}
	return v
}

// Eval runs extra code in the function's private context.
func (f *Function) Eval(code string) (Value, error) {
	return f.ctx.Eval(code)
}

// AddCallable registers a host function in the private context.
func (f *Function) AddCallable(name string, fn HostFunc) error {
	return f.ctx.AddCallable(name, fn)
}

// ExecutePendingJob runs one queued job in the private context.
func (f *Function) ExecutePendingJob() (bool, error) {
	return f.ctx.ExecutePendingJob()
}

// SetMemoryLimit caps the private context's heap in bytes.
func (f *Function) SetMemoryLimit(bytes uint64) error {
	return f.ctx.SetMemoryLimit(bytes)
}

// SetMaxStackSize caps the private context's native stack in bytes.
func (f *Function) SetMaxStackSize(bytes uint64) error {
	return f.ctx.SetMaxStackSize(bytes)
}

// SetTimeLimit caps wall time per call; non-positive clears the limit.
func (f *Function) SetTimeLimit(d time.Duration) error {
	return f.ctx.SetTimeLimit(d)
}

// Memory returns the private context's heap accounting.
func (f *Function) Memory() (map[string]int64, error) {
	return f.ctx.Memory()
}

// RunGC forces a collection pass in the private context.
func (f *Function) RunGC() error {
	return f.ctx.RunGC()
}

// Close releases the binding and its private context.
func (f *Function) Close() error {
	f.obj.Free()
	return f.ctx.Close()
}
