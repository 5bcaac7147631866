package quickjs

// Version of the binding. The engine revision is pinned by the embedded
// artifact; see native/Makefile.
const Version = "1.0.0"

// Probe exercises the whole pipeline: instantiate the embedded engine,
// evaluate a trivial expression and copy the result back. It returns 42
// when the binding is healthy.
func Probe() (int64, error) {
	ctx, err := New()
	if err != nil {
		return 0, err
	}
	defer ctx.Close()

	v, err := ctx.Eval("6 * 7")
	if err != nil {
		return 0, err
	}
	return v.Int(), nil
}
