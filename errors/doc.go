// Package errors defines the error taxonomy for the QuickJS binding.
//
// Every failure that crosses the engine boundary is converted into an
// *Error before it reaches the caller. The Kind field places the failure
// in a fixed taxonomy so callers can branch with errors.Is without
// parsing message text:
//
//	KindArgument      host value the codec cannot convert
//	KindCrossContext  object handle used with a context that did not create it
//	KindException     value thrown by evaluated or called JavaScript code
//	KindStackOverflow native stack exhausted inside the engine
//	KindConstruction  context or function creation failed
//	KindClosed        operation on a released context
//	KindEngine        wasm-level trap or instantiation failure below JS
//
// Engine exceptions are flattened to message text plus an optional
// backtrace; the engine's error value structure never escapes the
// binding.
package errors
