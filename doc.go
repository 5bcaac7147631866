// Package quickjs embeds the QuickJS-ng JavaScript engine and exposes
// isolated evaluation contexts to Go code.
//
// The engine is compiled to WebAssembly and executed with wazero, so
// the package needs no cgo and no system dependencies. Each Context is
// its own wasm instance: a private heap, a private global object and a
// private set of resource limits.
//
// # Architecture Overview
//
//	quickjs-runtime/
//	├── value.go        tagged Value union and host conversion rules
//	├── context.go      Context: one engine runtime+context pair
//	├── object.go       Object: handle to an engine-resident value
//	├── function.go     Function: a named JS function with a private Context
//	├── callable.go     host functions callable from JavaScript
//	├── engine/         wazero bridge to the compiled engine
//	├── errors/         error taxonomy
//	├── wasm/           embedded engine artifact
//	└── native/         C glue and Makefile producing the artifact
//
// # Quick Start
//
// Evaluate code in a context:
//
//	ctx, err := quickjs.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	v, err := ctx.Eval("40 + 2")
//	fmt.Println(v.Int()) // 42
//
// Bind a function once, call it many times from any goroutine:
//
//	f, err := quickjs.NewFunction("adder", `
//	    function adder(x, y) { return x + y; }
//	`)
//	defer f.Close()
//
//	sum, err := f.Call(1, 2) // int64(3)
//
// # Values and the interchange format
//
// Primitives (null/undefined, bool, integers, floats, strings) copy
// directly across the boundary. Composite values cross only through
// JSON: Function call arguments and results are serialized and
// re-parsed on the other side, which loses functions, cycles and
// anything else JSON cannot represent. Non-primitive results of
// Context.Eval stay engine-resident and come back as *Object handles.
//
// # Limits
//
// Each context can cap engine heap memory, wall time per call and
// native stack depth. The time limit is polled cooperatively between
// bytecode instructions, so enforcement granularity is the polling
// interval, not exact.
//
// # Concurrency
//
// The engine is single-threaded per context. All operations on one
// Context (and everything derived from it) serialize on one mutex;
// calls from multiple goroutines block until the lock is free.
// Distinct Contexts are fully independent.
package quickjs
