// Package wasm embeds the QuickJS-ng engine compiled to a WASI core
// module. The artifact is produced by native/Makefile from the engine
// sources and the C glue in native/; rebuild it there after changing
// either.
package wasm

import _ "embed"

// Engine is the compiled QuickJS-ng module with the qjs_* glue exports.
//
//go:embed quickjs.wasm
var Engine []byte
