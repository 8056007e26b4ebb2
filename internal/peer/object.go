package peer

import (
	"fmt"
	"runtime"

	"github.com/cryguy/ipcbridge/internal/core"
	"github.com/cryguy/ipcbridge/internal/dispatch"
	"github.com/cryguy/ipcbridge/internal/wire"
)

// ObjectWrapper is a JS-side handle standing in for a native object. It
// targets the reserved call-exported-peer-method function ID,
// prefixing every argument list with a "ClassName::method" selector string
// and the object's integer handle. Garbage collection arms a `__drop`
// finalizer call through the same mechanism.
type ObjectWrapper struct {
	ClassName string
	Handle    uint32

	handler *dispatch.Handler
	send    dispatch.Sender
}

// NewObjectWrapper constructs a handle-backed wrapper and arms its
// finalizer to send a `__drop` call when the wrapper is collected.
func NewObjectWrapper(className string, handle uint32, handler *dispatch.Handler, send dispatch.Sender) *ObjectWrapper {
	w := &ObjectWrapper{ClassName: className, Handle: handle, handler: handler, send: send}
	runtime.SetFinalizer(w, (*ObjectWrapper).finalize)
	return w
}

func (w *ObjectWrapper) finalize() {
	_, _ = w.CallMethod("__drop", nil, nil, wire.Null)
}

// CallMethod invokes method on the wrapped object, encoding params in
// argTypes and decoding the result with returnType. args and argTypes must
// be the same length.
func (w *ObjectWrapper) CallMethod(method string, args []any, argTypes []wire.Descriptor, returnType wire.Descriptor) (any, error) {
	if len(args) != len(argTypes) {
		return nil, fmt.Errorf("%w: call to %s::%s given %d args, expected %d", core.ErrProtocolViolation, w.ClassName, method, len(args), len(argTypes))
	}

	e := wire.NewEncoder()
	e.PushU8(dispatch.MsgEvaluate)
	e.PushU32(0)

	e.PushU32(dispatch.FnCallExportedPeerMethod)
	e.PushU8(wire.MarkerFull)
	e.PushU32(dispatch.FnCallExportedPeerMethod)
	e.PushU8(uint8(2 + len(argTypes)))
	writeDescriptorTag(e, wire.String)
	writeDescriptorTag(e, wire.U32)
	for _, t := range argTypes {
		writeDescriptorTag(e, t)
	}
	writeDescriptorTag(e, returnType)

	ctx := &wire.Context{Heap: w.handler.Heap, Caller: w}
	selector := w.ClassName + "::" + method
	if err := wire.String.Encode(ctx, e, selector); err != nil {
		return nil, err
	}
	if err := wire.U32.Encode(ctx, e, w.Handle); err != nil {
		return nil, err
	}
	for i, t := range argTypes {
		if err := t.Encode(ctx, e, args[i]); err != nil {
			return nil, err
		}
	}

	reply, err := w.send(e.Finalize())
	if err != nil {
		return nil, fmt.Errorf("%w: transport failure calling %s: %v", core.ErrProtocolViolation, selector, err)
	}
	d, err := w.handler.Drive(reply, w.send)
	if err != nil {
		return nil, err
	}
	result, err := returnType.Decode(ctx, d)
	if err != nil {
		return nil, err
	}
	if !d.IsEmpty() {
		return nil, fmt.Errorf("%w: leftover bytes after reading result for %s", core.ErrProtocolViolation, selector)
	}
	return result, nil
}

// CallNative implements wire.NativeCaller so an ObjectWrapper can serve as
// ctx.Caller in CallMethod. It always returns a protocol error: object
// methods are reached by name through CallMethod, not by function ID.
func (w *ObjectWrapper) CallNative(fnID uint32, paramTypes []wire.Descriptor, returnType wire.Descriptor, args []any) (any, error) {
	return nil, fmt.Errorf("%w: object wrapper methods are called by name, not by function id %d", core.ErrProtocolViolation, fnID)
}
