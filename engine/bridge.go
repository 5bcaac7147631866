package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/quickjs-runtime/wasm"
)

// Compilation cache shared by all Bridge instances. Compiling the
// engine module is expensive; instantiation is not.
var (
	globalCache     wazero.CompilationCache
	globalCacheOnce sync.Once
)

func initGlobalCache() {
	globalCache = wazero.NewCompilationCache()
}

// HostDispatch handles a JavaScript call into a registered host
// function. jsCtx is the engine context pointer, slot the registration
// id, args boxed argument values owned by the engine for the duration
// of the call. Returning ok=false makes the engine throw.
type HostDispatch func(ctx context.Context, jsCtx uint32, slot uint32, args []uint32) (result uint32, ok bool)

// Bridge is one instantiated engine module and the table of its
// exported functions.
type Bridge struct {
	runtime  wazero.Runtime
	module   api.Module
	memory   api.Memory
	dispatch HostDispatch
	stdout   io.Writer
	mu       sync.Mutex // guards dispatch and stdout

	fnAlloc              api.Function
	fnFree               api.Function
	fnNewRuntime         api.Function
	fnFreeRuntime        api.Function
	fnNewContext         api.Function
	fnFreeContext        api.Function
	fnEval               api.Function
	fnGetGlobal          api.Function
	fnSetGlobal          api.Function
	fnCall               api.Function
	fnValueTag           api.Function
	fnToBool             api.Function
	fnToInt64            api.Function
	fnToFloat64          api.Function
	fnToCString          api.Function
	fnFreeCString        api.Function
	fnNewUndefined       api.Function
	fnNewNull            api.Function
	fnNewBool            api.Function
	fnNewInt64           api.Function
	fnNewFloat64         api.Function
	fnNewString          api.Function
	fnDupValue           api.Function
	fnFreeValue          api.Function
	fnIsFunction         api.Function
	fnGetException       api.Function
	fnExceptionStack     api.Function
	fnJSONParse          api.Function
	fnJSONStringify      api.Function
	fnRunGC              api.Function
	fnSetMemoryLimit     api.Function
	fnSetMaxStackSize    api.Function
	fnSetTimeLimit       api.Function
	fnComputeMemoryUsage api.Function
	fnExecutePendingJob  api.Function
	fnNewHostFunction    api.Function
	fnAddPrint           api.Function
}

// New instantiates a fresh engine module. Each Bridge has its own
// linear memory and is fully isolated from every other Bridge.
func New(ctx context.Context) (*Bridge, error) {
	globalCacheOnce.Do(initGlobalCache)

	cfg := wazero.NewRuntimeConfig().
		WithCompilationCache(globalCache).
		WithDebugInfoEnabled(false)

	b := &Bridge{
		runtime: wazero.NewRuntimeWithConfig(ctx, cfg),
		stdout:  os.Stdout,
	}

	wasi_snapshot_preview1.MustInstantiate(ctx, b.runtime)

	_, err := b.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(b.hostCall).
		Export("host_call").
		NewFunctionBuilder().
		WithFunc(b.hostWrite).
		Export("host_write").
		Instantiate(ctx)
	if err != nil {
		b.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	compiled, err := b.runtime.CompileModule(ctx, wasm.Engine)
	if err != nil {
		b.runtime.Close(ctx)
		return nil, fmt.Errorf("compile engine module: %w", err)
	}

	// The glue is built as a WASI reactor, so initialization runs
	// through _initialize rather than _start.
	b.module, err = b.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithStartFunctions("_initialize"))
	if err != nil {
		b.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate engine module: %w", err)
	}

	b.memory = b.module.Memory()
	if b.memory == nil {
		b.runtime.Close(ctx)
		return nil, fmt.Errorf("engine module has no memory")
	}

	if err := b.initFunctions(); err != nil {
		b.runtime.Close(ctx)
		return nil, err
	}

	Logger().Debug("engine module instantiated",
		zap.Int("wasm_bytes", len(wasm.Engine)),
		zap.Uint32("memory_bytes", b.memory.Size()))

	return b, nil
}

func (b *Bridge) initFunctions() error {
	var err error
	getFn := func(name string) api.Function {
		fn := b.module.ExportedFunction(name)
		if fn == nil && err == nil {
			err = fmt.Errorf("engine export %s not found", name)
		}
		return fn
	}

	b.fnAlloc = getFn("qjs_alloc")
	b.fnFree = getFn("qjs_free")
	b.fnNewRuntime = getFn("qjs_new_runtime")
	b.fnFreeRuntime = getFn("qjs_free_runtime")
	b.fnNewContext = getFn("qjs_new_context")
	b.fnFreeContext = getFn("qjs_free_context")
	b.fnEval = getFn("qjs_eval")
	b.fnGetGlobal = getFn("qjs_get_global")
	b.fnSetGlobal = getFn("qjs_set_global")
	b.fnCall = getFn("qjs_call")
	b.fnValueTag = getFn("qjs_value_tag")
	b.fnToBool = getFn("qjs_to_bool")
	b.fnToInt64 = getFn("qjs_to_int64")
	b.fnToFloat64 = getFn("qjs_to_float64")
	b.fnToCString = getFn("qjs_to_cstring")
	b.fnFreeCString = getFn("qjs_free_cstring")
	b.fnNewUndefined = getFn("qjs_new_undefined")
	b.fnNewNull = getFn("qjs_new_null")
	b.fnNewBool = getFn("qjs_new_bool")
	b.fnNewInt64 = getFn("qjs_new_int64")
	b.fnNewFloat64 = getFn("qjs_new_float64")
	b.fnNewString = getFn("qjs_new_string")
	b.fnDupValue = getFn("qjs_dup_value")
	b.fnFreeValue = getFn("qjs_free_value")
	b.fnIsFunction = getFn("qjs_is_function")
	b.fnGetException = getFn("qjs_get_exception")
	b.fnExceptionStack = getFn("qjs_exception_stack")
	b.fnJSONParse = getFn("qjs_json_parse")
	b.fnJSONStringify = getFn("qjs_json_stringify")
	b.fnRunGC = getFn("qjs_run_gc")
	b.fnSetMemoryLimit = getFn("qjs_set_memory_limit")
	b.fnSetMaxStackSize = getFn("qjs_set_max_stack_size")
	b.fnSetTimeLimit = getFn("qjs_set_time_limit")
	b.fnComputeMemoryUsage = getFn("qjs_compute_memory_usage")
	b.fnExecutePendingJob = getFn("qjs_execute_pending_job")
	b.fnNewHostFunction = getFn("qjs_new_host_function")
	b.fnAddPrint = getFn("qjs_add_print")

	return err
}

// Close tears down the wasm instance and everything inside it.
func (b *Bridge) Close(ctx context.Context) error {
	return b.runtime.Close(ctx)
}

// SetDispatch installs the handler for host_call. Must be set before
// any host function is registered with NewHostFunction.
func (b *Bridge) SetDispatch(d HostDispatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatch = d
}

// SetStdout redirects print/console.log output.
func (b *Bridge) SetStdout(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stdout = w
}
