package quickjs

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/quickjs-runtime/engine"
	"github.com/wippyai/quickjs-runtime/errors"
)

// Context is one isolated JavaScript environment: a private engine
// runtime, a private global object and private resource limits.
//
// All operations on a Context, and on every Object derived from it,
// serialize on an internal mutex. Concurrent callers block; distinct
// Contexts never contend.
type Context struct {
	eng *engine.Bridge
	rt  uint32
	js  uint32

	logger *zap.Logger

	// mu serializes every engine operation for this context. Host
	// callbacks dispatched during an Eval or Call run on the same
	// goroutine with mu already held, so dispatch never locks it.
	mu sync.Mutex

	// refMu guards the handle bookkeeping below. It is never held
	// across an engine call and never nested inside mu.
	refMu  sync.Mutex
	deps   int
	closed bool
	torn   bool

	// callables is mutated only under mu and read by dispatch, which
	// also runs under mu.
	callables []HostFunc
}

// Option configures a Context at construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
	stdout io.Writer
}

// WithLogger sets the structured logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStdout redirects the engine's console output.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// New creates an isolated JavaScript context.
func New(opts ...Option) (*Context, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	bg := context.Background()
	eng, err := engine.New(bg)
	if err != nil {
		return nil, errors.Construction("failed to start the engine", err)
	}
	if o.stdout != nil {
		eng.SetStdout(o.stdout)
	}

	rt, err := eng.NewRuntime(bg)
	if err != nil {
		eng.Close(bg)
		return nil, errors.Construction("failed to create a runtime", err)
	}
	js, err := eng.NewContext(bg, rt)
	if err != nil {
		eng.FreeRuntime(bg, rt)
		eng.Close(bg)
		return nil, errors.Construction("failed to create a context", err)
	}
	if err := eng.AddPrint(bg, js); err != nil {
		eng.FreeContext(bg, js)
		eng.FreeRuntime(bg, rt)
		eng.Close(bg)
		return nil, errors.Construction("failed to install console output", err)
	}

	c := &Context{
		eng:    eng,
		rt:     rt,
		js:     js,
		logger: o.logger,
	}
	eng.SetDispatch(c.dispatch)

	c.logger.Debug("context created")
	return c, nil
}

// Eval runs a script in the context's global scope and returns the
// completion value. Primitive results copy to the host; object results
// come back as engine-resident handles.
func (c *Context) Eval(code string) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return Value{}, errors.Closed("context")
	}
	return c.evalLocked(code, false)
}

// EvalModule runs a script as an ES module. Module evaluation has no
// completion value; errors still surface the same way as Eval.
func (c *Context) EvalModule(code string) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return Value{}, errors.Closed("context")
	}
	return c.evalLocked(code, true)
}

func (c *Context) evalLocked(code string, asModule bool) (Value, error) {
	ptr, err := c.eng.Eval(context.Background(), c.js, code, asModule)
	if err != nil {
		return Value{}, errors.Engine("eval trapped", err)
	}
	return c.valueOwned(ptr)
}

// Get reads a property of the global object.
func (c *Context) Get(name string) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return Value{}, errors.Closed("context")
	}
	ptr, err := c.eng.GetGlobal(context.Background(), c.js, name)
	if err != nil {
		return Value{}, errors.Engine("global read trapped", err)
	}
	return c.valueOwned(ptr)
}

// Set writes a property of the global object. The value follows the
// argument allow-list; composites are rejected.
func (c *Context) Set(name string, value any) error {
	v, err := fromGo(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return errors.Closed("context")
	}

	ptr, err := c.toEngineLocked(v)
	if err != nil {
		return err
	}
	ok, err := c.eng.SetGlobal(context.Background(), c.js, name, ptr)
	if err != nil {
		return errors.Engine("global write trapped", err)
	}
	if !ok {
		return c.takeExceptionLocked()
	}
	return nil
}

// ParseJSON parses a JSON document inside the engine and returns the
// resulting value, composites included, as an engine-resident handle.
func (c *Context) ParseJSON(text string) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return Value{}, errors.Closed("context")
	}
	ptr, err := c.eng.JSONParse(context.Background(), c.js, text)
	if err != nil {
		return Value{}, errors.Engine("json parse trapped", err)
	}
	return c.valueOwned(ptr)
}

// AddCallable exposes a host function as a global JS function. The
// number of callables per context is capped; registering past the cap
// or into an unwritable global fails.
func (c *Context) AddCallable(name string, fn HostFunc) error {
	if fn == nil {
		return errors.Argument("callable %q is nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return errors.Closed("context")
	}
	if len(c.callables) >= maxCallables {
		return errors.Argument("callable table is full (%d entries)", maxCallables)
	}

	slot := uint32(len(c.callables))
	ok, err := c.eng.NewHostFunction(context.Background(), c.js, slot, name)
	if err != nil {
		return errors.Engine("callable registration trapped", err)
	}
	if !ok {
		thrown := c.takeExceptionLocked()
		return errors.Construction("Failed adding the callable.", thrown)
	}
	c.callables = append(c.callables, fn)
	return nil
}

// ExecutePendingJob runs one queued job (a settled promise reaction,
// for example). It reports whether a job ran; false with a nil error
// means the queue was empty.
func (c *Context) ExecutePendingJob() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return false, errors.Closed("context")
	}
	status, err := c.eng.ExecutePendingJob(context.Background(), c.rt)
	if err != nil {
		return false, errors.Engine("job execution trapped", err)
	}
	if status < 0 {
		return false, c.takeExceptionLocked()
	}
	return status > 0, nil
}

// SetMemoryLimit caps the engine heap in bytes. Zero removes the cap.
// Allocations past the cap make JS code fail with an exception.
func (c *Context) SetMemoryLimit(bytes uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return errors.Closed("context")
	}
	if err := c.eng.SetMemoryLimit(context.Background(), c.rt, bytes); err != nil {
		return errors.Engine("memory limit trapped", err)
	}
	return nil
}

// SetMaxStackSize caps the engine's native stack usage in bytes. Zero
// removes the cap.
func (c *Context) SetMaxStackSize(bytes uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return errors.Closed("context")
	}
	if err := c.eng.SetMaxStackSize(context.Background(), c.rt, bytes); err != nil {
		return errors.Engine("stack limit trapped", err)
	}
	return nil
}

// SetTimeLimit caps wall time per Eval or Call. A non-positive duration
// clears the limit. The limit is polled between bytecode instructions,
// so a busy loop is interrupted but a single blocking engine operation
// is not.
func (c *Context) SetTimeLimit(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return errors.Closed("context")
	}
	seconds := d.Seconds()
	if d <= 0 {
		seconds = 0
	}
	if err := c.eng.SetTimeLimit(context.Background(), c.rt, seconds); err != nil {
		return errors.Engine("time limit trapped", err)
	}
	return nil
}

// Memory returns the engine's own accounting of its heap: byte and
// object counts per category, as reported by the engine.
func (c *Context) Memory() (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return nil, errors.Closed("context")
	}
	usage, err := c.eng.ComputeMemoryUsage(context.Background(), c.rt)
	if err != nil {
		return nil, errors.Engine("memory usage trapped", err)
	}
	return usage, nil
}

// RunGC forces a garbage collection pass inside the engine.
func (c *Context) RunGC() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return errors.Closed("context")
	}
	if err := c.eng.RunGC(context.Background(), c.rt); err != nil {
		return errors.Engine("gc trapped", err)
	}
	return nil
}

// Close releases the context. Further Context operations fail with a
// closed error, but live Object handles keep working; the engine is
// torn down once the last handle is freed.
func (c *Context) Close() error {
	c.refMu.Lock()
	if c.closed {
		c.refMu.Unlock()
		return nil
	}
	c.closed = true
	tear := c.deps == 0 && !c.torn
	if tear {
		c.torn = true
	}
	c.refMu.Unlock()

	if tear {
		return c.teardown()
	}
	c.logger.Debug("context closed, teardown deferred",
		zap.Int("live_handles", c.depCount()))
	return nil
}

func (c *Context) isClosed() bool {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	return c.closed
}

func (c *Context) depCount() int {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	return c.deps
}

func (c *Context) retain() {
	c.refMu.Lock()
	c.deps++
	c.refMu.Unlock()
}

func (c *Context) release() {
	c.refMu.Lock()
	c.deps--
	tear := c.closed && c.deps == 0 && !c.torn
	if tear {
		c.torn = true
	}
	c.refMu.Unlock()

	if tear {
		if err := c.teardown(); err != nil {
			c.logger.Warn("deferred context teardown failed", zap.Error(err))
		}
	}
}

func (c *Context) teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bg := context.Background()
	c.eng.FreeContext(bg, c.js)
	c.eng.FreeRuntime(bg, c.rt)
	err := c.eng.Close(bg)
	c.logger.Debug("context torn down")
	return err
}

// valueOwned converts an engine value the host now owns. Primitives are
// extracted and their box freed; non-primitives become Object handles
// that keep owning the box. Exception markers pop and translate the
// pending exception.
func (c *Context) valueOwned(ptr uint32) (Value, error) {
	bg := context.Background()
	tag, err := c.eng.ValueTag(bg, ptr)
	if err != nil {
		return Value{}, errors.Engine("value inspection trapped", err)
	}

	switch tag {
	case engine.TagException:
		c.eng.FreeValue(bg, c.js, ptr)
		return Value{}, c.takeExceptionLocked()
	case engine.TagUndefined:
		c.eng.FreeValue(bg, c.js, ptr)
		return Undefined(), nil
	case engine.TagNull:
		c.eng.FreeValue(bg, c.js, ptr)
		return Null(), nil
	case engine.TagBool:
		b, err := c.eng.ToBool(bg, ptr)
		c.eng.FreeValue(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("bool extraction trapped", err)
		}
		return Bool(b), nil
	case engine.TagInt:
		n, err := c.eng.ToInt64(bg, c.js, ptr)
		c.eng.FreeValue(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("int extraction trapped", err)
		}
		return Int(n), nil
	case engine.TagFloat:
		f, err := c.eng.ToFloat64(bg, c.js, ptr)
		c.eng.FreeValue(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("float extraction trapped", err)
		}
		return Float(f), nil
	case engine.TagString:
		s, err := c.eng.ToString(bg, c.js, ptr)
		c.eng.FreeValue(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("string extraction trapped", err)
		}
		return String(s), nil
	}

	obj := &Object{ctx: c, ptr: ptr}
	c.retain()
	return Value{kind: KindObject, obj: obj}, nil
}

// toEngineLocked materializes a host Value inside the engine and
// returns a box the caller owns. Object values must belong to this
// context.
func (c *Context) toEngineLocked(v Value) (uint32, error) {
	bg := context.Background()
	switch v.kind {
	case KindUndefined:
		return c.eng.NewUndefined(bg)
	case KindNull:
		return c.eng.NewNull(bg)
	case KindBool:
		return c.eng.NewBool(bg, v.b)
	case KindInt:
		return c.eng.NewInt64(bg, c.js, v.i)
	case KindFloat:
		return c.eng.NewFloat64(bg, c.js, v.f)
	case KindString:
		return c.eng.NewString(bg, c.js, v.s)
	case KindObject:
		if v.obj.ctx != c {
			return 0, errors.CrossContext("Can not mix JS objects from different contexts.")
		}
		if v.obj.freed.Load() {
			return 0, errors.Closed("object")
		}
		return c.eng.DupValue(bg, c.js, v.obj.ptr)
	}
	return 0, errors.Argument("unsupported value kind %s", v.kind)
}

// takeExceptionLocked pops the pending engine exception and translates
// it into a structured error.
func (c *Context) takeExceptionLocked() error {
	message, stack, err := c.eng.TakeException(context.Background(), c.js)
	if err != nil {
		return errors.Engine("exception retrieval trapped", err)
	}
	return errors.Thrown(message, stack)
}

// callLocked invokes a JS function value with converted arguments. The
// fn box is not consumed; argument boxes are created and released here.
func (c *Context) callLocked(fn uint32, args []Value) (Value, error) {
	bg := context.Background()

	boxes := make([]uint32, 0, len(args))
	freeBoxes := func() {
		for _, b := range boxes {
			c.eng.FreeValue(bg, c.js, b)
		}
	}
	for _, a := range args {
		b, err := c.toEngineLocked(a)
		if err != nil {
			freeBoxes()
			return Value{}, err
		}
		boxes = append(boxes, b)
	}

	ret, err := c.eng.Call(bg, c.js, fn, boxes)
	freeBoxes()
	if err != nil {
		return Value{}, errors.Engine("call trapped", err)
	}
	return c.valueOwned(ret)
}

// dispatch routes env.host_call back to the registered Go callable. It
// runs on the engine goroutine while mu is already held by the Eval or
// Call that entered the engine, so it must not lock mu. Argument boxes
// are borrowed: the glue releases them after dispatch returns, so
// primitives are read in place and objects duplicated into handles
// scoped to this call, released here once the callable has returned and
// any aliasing result has been duplicated again. The returned box is
// owned by the glue.
func (c *Context) dispatch(ctx context.Context, jsCtx uint32, slot uint32, argPtrs []uint32) (uint32, bool) {
	if int(slot) >= len(c.callables) {
		c.logger.Warn("host call for unknown slot", zap.Uint32("slot", slot))
		return 0, false
	}
	fn := c.callables[slot]

	args := make([]Value, len(argPtrs))
	var temps []*Object
	defer func() {
		for _, t := range temps {
			t.freeLocked()
		}
	}()
	for i, p := range argPtrs {
		v, err := c.valueBorrowed(p)
		if err != nil {
			c.logger.Warn("host call argument conversion failed", zap.Error(err))
			return 0, false
		}
		if v.kind == KindObject {
			temps = append(temps, v.obj)
		}
		args[i] = v
	}

	result, err := fn(args...)
	if err != nil {
		c.logger.Debug("host callable returned an error", zap.Error(err))
		return 0, false
	}

	rv, err := fromGo(result)
	if err != nil {
		c.logger.Warn("host call result conversion failed", zap.Error(err))
		return 0, false
	}
	box, err := c.toEngineLocked(rv)
	if err != nil {
		c.logger.Warn("host call result materialization failed", zap.Error(err))
		return 0, false
	}
	return box, true
}

// valueBorrowed converts an engine value without taking ownership of
// its box. Objects are duplicated into handles valid only for the
// duration of the dispatch that asked for them; the dispatcher frees
// them, so they never count as context dependents.
func (c *Context) valueBorrowed(ptr uint32) (Value, error) {
	bg := context.Background()
	tag, err := c.eng.ValueTag(bg, ptr)
	if err != nil {
		return Value{}, errors.Engine("value inspection trapped", err)
	}

	switch tag {
	case engine.TagUndefined:
		return Undefined(), nil
	case engine.TagNull:
		return Null(), nil
	case engine.TagBool:
		b, err := c.eng.ToBool(bg, ptr)
		if err != nil {
			return Value{}, errors.Engine("bool extraction trapped", err)
		}
		return Bool(b), nil
	case engine.TagInt:
		n, err := c.eng.ToInt64(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("int extraction trapped", err)
		}
		return Int(n), nil
	case engine.TagFloat:
		f, err := c.eng.ToFloat64(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("float extraction trapped", err)
		}
		return Float(f), nil
	case engine.TagString:
		s, err := c.eng.ToString(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("string extraction trapped", err)
		}
		return String(s), nil
	case engine.TagObject:
		dup, err := c.eng.DupValue(bg, c.js, ptr)
		if err != nil {
			return Value{}, errors.Engine("value duplication trapped", err)
		}
		return Value{kind: KindObject, obj: &Object{ctx: c, ptr: dup}}, nil
	}
	return Value{}, errors.Argument("unexpected engine tag %d", tag)
}
