//go:build !v8

// Package quickjsengine embeds the bridge in a modernc.org/quickjs VM. This
// is the default build (no v8 build tag): it trades peak throughput for a
// pure Go, cgo-free JS engine.
//
// It runs a single VM per Engine, with no per-site pooling, and drops the
// C-API ArrayBuffer binary transfer path entirely: this bridge only ever
// moves wire messages as base64 strings, so there is nothing for
// direct-memory transfer to speed up.
package quickjsengine

import (
	"fmt"

	"github.com/cryguy/ipcbridge/internal/core"
	"modernc.org/quickjs"
)

// qjsRuntime implements core.JSRuntime for the QuickJS engine.
type qjsRuntime struct {
	vm *quickjs.VM
}

var _ core.JSRuntime = (*qjsRuntime)(nil)

// Eval evaluates JavaScript and discards the result.
func (r *qjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *qjsRuntime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Multi-value Go returns (T, error) are unwrapped in a JS shim: on success
// returns T, on error throws a TypeError, since the QuickJS Go wrapper
// otherwise returns multi-value results as a plain JS array.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// SetGlobal sets a global property on the VM's global object. Part of
// core.JSRuntime's surface for injecting host values before evaluation; no
// current bridge call site uses it yet.
func (r *qjsRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks pumps the QuickJS microtask queue. Part of core.JSRuntime's
// surface for draining queued promise reactions between dispatch cycles; no
// current bridge call site uses it yet.
func (r *qjsRuntime) RunMicrotasks() {
	executePendingJobs(r.vm)
}
