package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
)

// Tag is the stable value classification the glue reports; it does not
// track the engine's internal JS_TAG numbering.
type Tag int32

const (
	TagUndefined Tag = iota
	TagNull
	TagBool
	TagInt
	TagFloat
	TagString
	TagObject
	TagException
)

// alloc reserves size bytes on the guest heap.
func (b *Bridge) alloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.fnAlloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("guest allocation of %d bytes failed", size)
	}
	return ptr, nil
}

func (b *Bridge) free(ctx context.Context, ptr uint32) {
	_, _ = b.fnFree.Call(ctx, uint64(ptr))
}

// writeString copies s into the guest heap NUL-terminated. The caller
// frees the returned pointer.
func (b *Bridge) writeString(ctx context.Context, s string) (uint32, error) {
	ptr, err := b.alloc(ctx, uint32(len(s)+1))
	if err != nil {
		return 0, err
	}
	data := make([]byte, len(s)+1)
	copy(data, s)
	if !b.memory.Write(ptr, data) {
		b.free(ctx, ptr)
		return 0, fmt.Errorf("write %d bytes to guest memory", len(data))
	}
	return ptr, nil
}

// readCString reads a NUL-terminated string in chunks so it does not
// depend on a fixed maximum length.
func (b *Bridge) readCString(ptr uint32) string {
	const chunk = 256
	var out []byte
	for off := uint32(0); ; off += chunk {
		buf, ok := b.memory.Read(ptr+off, chunk)
		if !ok {
			// Hit the end of memory; take what is addressable.
			if buf, ok = b.memory.Read(ptr+off, b.memory.Size()-(ptr+off)); !ok {
				break
			}
		}
		if idx := bytes.IndexByte(buf, 0); idx >= 0 {
			return string(append(out, buf[:idx]...))
		}
		out = append(out, buf...)
	}
	return string(out)
}

// NewRuntime creates an engine runtime with the interrupt handler
// installed.
func (b *Bridge) NewRuntime(ctx context.Context) (uint32, error) {
	results, err := b.fnNewRuntime.Call(ctx)
	if err != nil {
		return 0, err
	}
	rt := uint32(results[0])
	if rt == 0 {
		return 0, fmt.Errorf("engine runtime allocation failed")
	}
	return rt, nil
}

func (b *Bridge) FreeRuntime(ctx context.Context, rt uint32) error {
	_, err := b.fnFreeRuntime.Call(ctx, uint64(rt))
	return err
}

func (b *Bridge) NewContext(ctx context.Context, rt uint32) (uint32, error) {
	results, err := b.fnNewContext.Call(ctx, uint64(rt))
	if err != nil {
		return 0, err
	}
	jsCtx := uint32(results[0])
	if jsCtx == 0 {
		return 0, fmt.Errorf("engine context allocation failed")
	}
	return jsCtx, nil
}

func (b *Bridge) FreeContext(ctx context.Context, jsCtx uint32) error {
	_, err := b.fnFreeContext.Call(ctx, uint64(jsCtx))
	return err
}

// Eval evaluates code and returns the boxed result value, which may
// carry the exception tag.
func (b *Bridge) Eval(ctx context.Context, jsCtx uint32, code string, asModule bool) (uint32, error) {
	codePtr, err := b.writeString(ctx, code)
	if err != nil {
		return 0, err
	}
	defer b.free(ctx, codePtr)

	var module uint64
	if asModule {
		module = 1
	}
	results, err := b.fnEval.Call(ctx, uint64(jsCtx), uint64(codePtr), uint64(len(code)), module)
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

// GetGlobal reads a global binding; absent names come back as the
// undefined value.
func (b *Bridge) GetGlobal(ctx context.Context, jsCtx uint32, name string) (uint32, error) {
	namePtr, err := b.writeString(ctx, name)
	if err != nil {
		return 0, err
	}
	defer b.free(ctx, namePtr)

	results, err := b.fnGetGlobal.Call(ctx, uint64(jsCtx), uint64(namePtr))
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

// SetGlobal binds val to a global name, consuming val. ok=false means
// the engine left an exception pending on jsCtx.
func (b *Bridge) SetGlobal(ctx context.Context, jsCtx uint32, name string, val uint32) (bool, error) {
	namePtr, err := b.writeString(ctx, name)
	if err != nil {
		return false, err
	}
	defer b.free(ctx, namePtr)

	results, err := b.fnSetGlobal.Call(ctx, uint64(jsCtx), uint64(namePtr), uint64(val))
	if err != nil {
		return false, err
	}
	return int32(results[0]) >= 0, nil
}

// Call invokes fn with args. Neither fn nor args are consumed; the
// boxed result may carry the exception tag.
func (b *Bridge) Call(ctx context.Context, jsCtx uint32, fn uint32, args []uint32) (uint32, error) {
	var argvPtr uint32
	if len(args) > 0 {
		var err error
		argvPtr, err = b.alloc(ctx, uint32(len(args))*4)
		if err != nil {
			return 0, err
		}
		defer b.free(ctx, argvPtr)

		buf := make([]byte, len(args)*4)
		for i, arg := range args {
			binary.LittleEndian.PutUint32(buf[i*4:], arg)
		}
		if !b.memory.Write(argvPtr, buf) {
			return 0, fmt.Errorf("write call arguments to guest memory")
		}
	}

	results, err := b.fnCall.Call(ctx, uint64(jsCtx), uint64(fn), uint64(len(args)), uint64(argvPtr))
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

func (b *Bridge) ValueTag(ctx context.Context, val uint32) (Tag, error) {
	results, err := b.fnValueTag.Call(ctx, uint64(val))
	if err != nil {
		return TagUndefined, err
	}
	return Tag(int32(results[0])), nil
}

func (b *Bridge) ToBool(ctx context.Context, val uint32) (bool, error) {
	results, err := b.fnToBool.Call(ctx, uint64(val))
	if err != nil {
		return false, err
	}
	return int32(results[0]) != 0, nil
}

func (b *Bridge) ToInt64(ctx context.Context, jsCtx, val uint32) (int64, error) {
	out, err := b.alloc(ctx, 8)
	if err != nil {
		return 0, err
	}
	defer b.free(ctx, out)

	results, err := b.fnToInt64.Call(ctx, uint64(jsCtx), uint64(val), uint64(out))
	if err != nil {
		return 0, err
	}
	if int32(results[0]) != 0 {
		return 0, fmt.Errorf("int64 conversion failed")
	}
	v, ok := b.memory.ReadUint64Le(out)
	if !ok {
		return 0, fmt.Errorf("read conversion result from guest memory")
	}
	return int64(v), nil
}

func (b *Bridge) ToFloat64(ctx context.Context, jsCtx, val uint32) (float64, error) {
	out, err := b.alloc(ctx, 8)
	if err != nil {
		return 0, err
	}
	defer b.free(ctx, out)

	results, err := b.fnToFloat64.Call(ctx, uint64(jsCtx), uint64(val), uint64(out))
	if err != nil {
		return 0, err
	}
	if int32(results[0]) != 0 {
		return 0, fmt.Errorf("float64 conversion failed")
	}
	bits, ok := b.memory.ReadUint64Le(out)
	if !ok {
		return 0, fmt.Errorf("read conversion result from guest memory")
	}
	return math.Float64frombits(bits), nil
}

// ToString converts val with the engine's ToString semantics.
func (b *Bridge) ToString(ctx context.Context, jsCtx, val uint32) (string, error) {
	results, err := b.fnToCString.Call(ctx, uint64(jsCtx), uint64(val))
	if err != nil {
		return "", err
	}
	strPtr := uint32(results[0])
	if strPtr == 0 {
		return "", nil
	}
	s := b.readCString(strPtr)
	_, _ = b.fnFreeCString.Call(ctx, uint64(jsCtx), uint64(strPtr))
	return s, nil
}

func (b *Bridge) NewUndefined(ctx context.Context) (uint32, error) {
	return b.callValue(ctx, b.fnNewUndefined)
}

func (b *Bridge) NewNull(ctx context.Context) (uint32, error) {
	return b.callValue(ctx, b.fnNewNull)
}

func (b *Bridge) NewBool(ctx context.Context, v bool) (uint32, error) {
	var arg uint64
	if v {
		arg = 1
	}
	return b.callValue(ctx, b.fnNewBool, arg)
}

func (b *Bridge) NewInt64(ctx context.Context, jsCtx uint32, v int64) (uint32, error) {
	return b.callValue(ctx, b.fnNewInt64, uint64(jsCtx), uint64(v))
}

func (b *Bridge) NewFloat64(ctx context.Context, jsCtx uint32, v float64) (uint32, error) {
	return b.callValue(ctx, b.fnNewFloat64, uint64(jsCtx), api.EncodeF64(v))
}

func (b *Bridge) NewString(ctx context.Context, jsCtx uint32, s string) (uint32, error) {
	strPtr, err := b.writeString(ctx, s)
	if err != nil {
		return 0, err
	}
	defer b.free(ctx, strPtr)
	return b.callValue(ctx, b.fnNewString, uint64(jsCtx), uint64(strPtr), uint64(len(s)))
}

func (b *Bridge) callValue(ctx context.Context, fn api.Function, args ...uint64) (uint32, error) {
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

// DupValue returns a new box holding an additional reference to val.
func (b *Bridge) DupValue(ctx context.Context, jsCtx, val uint32) (uint32, error) {
	return b.callValue(ctx, b.fnDupValue, uint64(jsCtx), uint64(val))
}

// FreeValue releases the engine reference and the box.
func (b *Bridge) FreeValue(ctx context.Context, jsCtx, val uint32) error {
	_, err := b.fnFreeValue.Call(ctx, uint64(jsCtx), uint64(val))
	return err
}

func (b *Bridge) IsFunction(ctx context.Context, jsCtx, val uint32) (bool, error) {
	results, err := b.fnIsFunction.Call(ctx, uint64(jsCtx), uint64(val))
	if err != nil {
		return false, err
	}
	return int32(results[0]) != 0, nil
}

// TakeException pops the pending exception and flattens it to message
// text plus the JS backtrace when one exists.
func (b *Bridge) TakeException(ctx context.Context, jsCtx uint32) (message, stack string, err error) {
	results, err := b.fnGetException.Call(ctx, uint64(jsCtx))
	if err != nil {
		return "", "", err
	}
	exc := uint32(results[0])
	defer func() { _ = b.FreeValue(ctx, jsCtx, exc) }()

	message, err = b.ToString(ctx, jsCtx, exc)
	if err != nil {
		return "", "", err
	}

	results, err = b.fnExceptionStack.Call(ctx, uint64(jsCtx), uint64(exc))
	if err != nil {
		return "", "", err
	}
	if stackPtr := uint32(results[0]); stackPtr != 0 {
		stack = b.readCString(stackPtr)
		_, _ = b.fnFreeCString.Call(ctx, uint64(jsCtx), uint64(stackPtr))
	}
	return message, stack, nil
}

// JSONParse parses text as JSON; the boxed result may carry the
// exception tag.
func (b *Bridge) JSONParse(ctx context.Context, jsCtx uint32, text string) (uint32, error) {
	textPtr, err := b.writeString(ctx, text)
	if err != nil {
		return 0, err
	}
	defer b.free(ctx, textPtr)
	return b.callValue(ctx, b.fnJSONParse, uint64(jsCtx), uint64(textPtr), uint64(len(text)))
}

// JSONStringify serializes val; the boxed result is a string value, the
// undefined value for unserializable input, or an exception.
func (b *Bridge) JSONStringify(ctx context.Context, jsCtx, val uint32) (uint32, error) {
	return b.callValue(ctx, b.fnJSONStringify, uint64(jsCtx), uint64(val))
}

// ExecutePendingJob runs one queued promise job. Returns 1 when a job
// ran, 0 when the queue was empty, negative when the job threw.
func (b *Bridge) ExecutePendingJob(ctx context.Context, rt uint32) (int32, error) {
	results, err := b.fnExecutePendingJob.Call(ctx, uint64(rt))
	if err != nil {
		return 0, err
	}
	return int32(results[0]), nil
}

// NewHostFunction binds a global JS function that dispatches to the
// Bridge's HostDispatch with the given slot. ok=false means the global
// could not be defined (for example a non-writable property).
func (b *Bridge) NewHostFunction(ctx context.Context, jsCtx uint32, slot uint32, name string) (bool, error) {
	namePtr, err := b.writeString(ctx, name)
	if err != nil {
		return false, err
	}
	defer b.free(ctx, namePtr)

	results, err := b.fnNewHostFunction.Call(ctx, uint64(jsCtx), uint64(slot), uint64(namePtr))
	if err != nil {
		return false, err
	}
	return int32(results[0]) == 0, nil
}

// AddPrint installs print and console.log forwarding to the Bridge's
// stdout writer.
func (b *Bridge) AddPrint(ctx context.Context, jsCtx uint32) error {
	_, err := b.fnAddPrint.Call(ctx, uint64(jsCtx))
	return err
}
