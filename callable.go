package quickjs

// HostFunc is a Go function exposed to JavaScript through AddCallable.
// Arguments arrive converted to Values; the result follows the same
// allow-list as other host arguments, so returning an argument Value
// passes it straight back. A returned error makes the JS call site
// throw.
//
// A HostFunc runs while the context's lock is held by the evaluation
// that triggered it. Object handles among the arguments are owned by
// the runtime and released when the callable returns; do not Free them,
// keep them past the call, or invoke Context or Object methods from
// inside the callable.
type HostFunc func(args ...Value) (any, error)

// maxCallables caps the registration table per context. Slots index a
// 16-bit field in the engine trampoline.
const maxCallables = 1<<16 - 1
