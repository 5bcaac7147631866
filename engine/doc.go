// Package engine drives the QuickJS-ng engine compiled to WebAssembly.
//
// The engine is executed with wazero and treated as a black box: this
// package only knows the qjs_* exports of the glue in native/ and the
// two host imports (host_call for host-callable dispatch, host_write
// for print output). JavaScript values live on the guest heap and are
// referred to by boxed pointers; the Bridge hands those pointers to the
// binding layer above, which decides ownership and lifetime.
//
// A Bridge is one wasm instance and therefore one isolation domain.
// Nothing in this package serializes access; the binding layer holds a
// mutex per context because the engine is single-threaded.
package engine
