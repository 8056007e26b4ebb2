// Package peer implements the peer-function wrapper and peer-object
// wrapper: JS-side values that stand in for a native function or a native
// object handle, and that forward calls across the transport via
// internal/wire and internal/dispatch.
package peer

import (
	"fmt"
	"runtime"

	"github.com/cryguy/ipcbridge/internal/core"
	"github.com/cryguy/ipcbridge/internal/dispatch"
	"github.com/cryguy/ipcbridge/internal/telemetry"
	"github.com/cryguy/ipcbridge/internal/wire"
)

// FuncWrapper is the JS-side value standing in for a native function handed
// across the boundary as a Callback. Calling it builds an Evaluate message
// for the wrapped function ID, drives the dispatch loop on the reply, and
// decodes the single return value. Garbage collection of the wrapper tells
// the native peer, via a one-shot reserved-function-ID Evaluate, that it can
// release its side of the reference.
type FuncWrapper struct {
	FnID       uint32
	ParamTypes []wire.Descriptor
	ReturnType wire.Descriptor

	handler *dispatch.Handler
	send    dispatch.Sender
}

// NewFuncWrapper constructs a wrapper and arms its finalizer. handler drives
// re-entrant nested Evaluates that might arrive while waiting on the call's
// reply; send reaches the "outbound calls from JS to the peer" endpoint.
func NewFuncWrapper(fnID uint32, params []wire.Descriptor, ret wire.Descriptor, handler *dispatch.Handler, send dispatch.Sender) *FuncWrapper {
	w := &FuncWrapper{FnID: fnID, ParamTypes: params, ReturnType: ret, handler: handler, send: send}
	runtime.SetFinalizer(w, (*FuncWrapper).finalize)
	return w
}

// finalize sends the drop-native-reference Evaluate. Errors are swallowed:
// there is no caller left to report them to by the time a finalizer runs.
func (w *FuncWrapper) finalize() {
	if w.handler.Trace != nil {
		w.handler.Trace.Record(telemetry.EventDropRef, w.FnID, "")
	}
	buf := buildDropReference(w.FnID)
	if reply, err := w.send(buf); err == nil {
		_, _ = w.handler.Drive(reply, w.send)
	}
}

// Call implements core.Callable: it calls the wrapped function ID with the
// wrapper's own parameter and return descriptors. A NativeCallback decoded
// from a Callback-typed value goes through CallNative instead.
func (w *FuncWrapper) Call(args []any) (any, error) {
	return w.CallNative(w.FnID, w.ParamTypes, w.ReturnType, args)
}

// CallNative builds an Evaluate for fnID with the given parameter/return
// descriptors, sends it, and decodes the single return value from the
// eventual Respond. Nested re-entrant Evaluates the peer issues while
// processing the call are handled transparently by handler.Drive.
func (w *FuncWrapper) CallNative(fnID uint32, params []wire.Descriptor, ret wire.Descriptor, args []any) (any, error) {
	return callNative(w.handler, w.send, w, fnID, params, ret, args)
}

// callNative is the shared implementation behind FuncWrapper.CallNative and
// Caller.CallNative: build a one-shot Evaluate, send it, and decode the
// return value from the eventual Respond. caller becomes ctx.Caller, so any
// Callback-typed argument or return value nested in this same call decodes
// to a NativeCallback routed back through the same caller.
func callNative(handler *dispatch.Handler, send dispatch.Sender, caller wire.NativeCaller, fnID uint32, params []wire.Descriptor, ret wire.Descriptor, args []any) (any, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("%w: call to fn %d given %d args, expected %d", core.ErrProtocolViolation, fnID, len(args), len(params))
	}

	e := wire.NewEncoder()
	e.PushU8(dispatch.MsgEvaluate)
	e.PushU32(0) // no reservation scope: a single outbound call is not batched

	e.PushU32(fnID)
	e.PushU8(wire.MarkerFull)
	e.PushU32(fnID) // the function id doubles as the type id for an ad hoc single call
	e.PushU8(uint8(len(params)))
	for _, p := range params {
		writeDescriptorTag(e, p)
	}
	writeDescriptorTag(e, ret)

	ctx := &wire.Context{Heap: handler.Heap, Caller: caller}
	for i, p := range params {
		if err := p.Encode(ctx, e, args[i]); err != nil {
			return nil, err
		}
	}

	// e is an Evaluate *we* originate, so it goes out through the raw
	// transport, not through Drive (which interprets a buffer as work to
	// perform). The peer's reply, in contrast, may itself be a nested
	// Evaluate calling back into our own registry before it finally
	// answers — that's what Drive threads through recursively.
	reply, err := send(e.Finalize())
	if err != nil {
		return nil, fmt.Errorf("%w: transport failure calling fn %d: %v", core.ErrProtocolViolation, fnID, err)
	}
	d, err := handler.Drive(reply, send)
	if err != nil {
		return nil, err
	}
	result, err := ret.Decode(ctx, d)
	if err != nil {
		return nil, err
	}
	if !d.IsEmpty() {
		return nil, fmt.Errorf("%w: leftover bytes after reading call result for fn %d", core.ErrProtocolViolation, fnID)
	}
	return result, nil
}

// buildDropReference builds the one-shot Evaluate whose only operation
// informs the peer, by native function ID, that a JS-held wrapper for it
// has been collected.
func buildDropReference(nativeFnID uint32) []byte {
	e := wire.NewEncoder()
	e.PushU8(dispatch.MsgEvaluate)
	e.PushU32(0)
	e.PushU32(dispatch.FnDropNativeReference)
	e.PushU8(wire.MarkerFull)
	e.PushU32(dispatch.FnDropNativeReference)
	e.PushU8(1)
	writeDescriptorTag(e, wire.U32)
	writeDescriptorTag(e, wire.Null)
	e.PushU32(nativeFnID)
	return e.Finalize()
}

// writeDescriptorTag writes the u8 tag sequence ParseDescriptor expects for
// a (possibly composite) descriptor built from the package-level
// descriptors in internal/wire. Composite descriptors used by a
// FuncWrapper's own parameter/return types are written structurally.
func writeDescriptorTag(e *wire.Encoder, d wire.Descriptor) {
	e.PushU8(uint8(d.Tag()))
	switch desc := d.(type) {
	case wire.CallbackDesc:
		e.PushU8(uint8(len(desc.Params)))
		for _, p := range desc.Params {
			writeDescriptorTag(e, p)
		}
		writeDescriptorTag(e, desc.Return)
	case wire.OptionDesc:
		writeDescriptorTag(e, desc.Inner)
	case wire.ResultDesc:
		writeDescriptorTag(e, desc.Ok)
		writeDescriptorTag(e, desc.Err)
	case wire.ArrayDesc:
		writeDescriptorTag(e, desc.Elem)
	case wire.StringEnumDesc:
		e.PushU8(uint8(len(desc.Variants)))
		for _, v := range desc.Variants {
			e.PushU8(uint8(len(v)))
			e.PushBytes([]byte(v))
		}
	}
}
