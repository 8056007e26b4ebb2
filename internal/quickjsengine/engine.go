//go:build !v8

package quickjsengine

import (
	"encoding/base64"
	"fmt"

	"github.com/cryguy/ipcbridge/internal/bridge"
	"github.com/cryguy/ipcbridge/internal/core"
	"modernc.org/quickjs"
)

// receiveGlobal is the hook a worker script loaded into an Engine is
// expected to define: a synchronous function taking the base64 payload of
// an Evaluate the bridge is sending out, returning the base64 payload of
// the peer's reply.
const receiveGlobal = "__ipcReceive"

// dispatchGlobal is the message-handler entry point installed on the
// engine's global object: the worker script calls this with the base64
// payload of an Evaluate it wants native to process.
const dispatchGlobal = "__ipcDispatch"

// Engine owns one QuickJS VM embedding the bridge runtime.
type Engine struct {
	vm     *quickjs.VM
	rt     *qjsRuntime
	Global *bridge.Global
}

// NewEngine creates a VM, wires a fresh bridge.Global around it, and
// installs the dispatch entry point as a global function.
func NewEngine(cfg core.Config) (*Engine, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating quickjs VM: %w", err)
	}

	rt := &qjsRuntime{vm: vm}
	g := bridge.New(cfg)

	e := &Engine{vm: vm, rt: rt, Global: g}
	g.BindCaller(e.sendToPeer)

	if err := rt.RegisterFunc(dispatchGlobal, func(b64 string) (any, error) {
		if err := g.Handler.HandleEntry(b64, e.sendToPeer); err != nil {
			return nil, err
		}
		return nil, nil
	}); err != nil {
		vm.Close()
		return nil, fmt.Errorf("installing %s: %w", dispatchGlobal, err)
	}

	return e, nil
}

// sendToPeer implements dispatch.Sender for this VM: it calls the worker
// script's __ipcReceive hook with buf's base64 encoding and decodes its
// string return value back to bytes.
func (e *Engine) sendToPeer(buf []byte) ([]byte, error) {
	b64 := base64.StdEncoding.EncodeToString(buf)
	js := fmt.Sprintf("globalThis[%q](%q)", receiveGlobal, b64)
	reply, err := e.rt.EvalString(js)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", receiveGlobal, err)
	}
	if reply == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(reply)
}

// Eval runs arbitrary JS in the VM, e.g. to load a worker script that
// defines __ipcReceive and calls __ipcDispatch.
func (e *Engine) Eval(js string) error {
	return e.rt.Eval(js)
}

// Close disposes the VM.
func (e *Engine) Close() {
	e.vm.Close()
}
