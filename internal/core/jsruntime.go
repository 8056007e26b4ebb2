package core

// JSRuntime abstracts the embedded JavaScript engine (V8 or QuickJS) behind
// a common interface, so internal/v8engine and internal/quickjsengine can
// install the bridge's entrypoint the same way regardless of which engine
// backs a given build.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// fn's Go types are marshaled to/from JS automatically; a (T, error)
	// return throws a JS exception on non-nil error instead of returning T.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the JS engine's microtask queue.
	RunMicrotasks()
}
