package peer

import (
	"github.com/cryguy/ipcbridge/internal/dispatch"
	"github.com/cryguy/ipcbridge/internal/wire"
)

// Caller is the ambient wire.NativeCaller bound once per embedded engine
// instance (see internal/bridge.Global.BindCaller) and installed as
// Handler.Caller. Every
// Callback-typed value decoded anywhere in that engine's dispatch loop
// resolves to a NativeCallback carrying a specific FnID but sharing this
// same Caller, which is what actually builds and sends the Evaluate for
// whichever FnID the peer later invokes it with (internal/wire's
// CallbackDesc.Decode).
type Caller struct {
	handler *dispatch.Handler
	send    dispatch.Sender
}

// NewCaller binds a Caller to the handler/send pair of one engine instance.
// Unlike FuncWrapper/ObjectWrapper, Caller carries no identity of its own
// and needs no finalizer: it outlives every individual call.
func NewCaller(handler *dispatch.Handler, send dispatch.Sender) *Caller {
	return &Caller{handler: handler, send: send}
}

// CallNative implements wire.NativeCaller.
func (c *Caller) CallNative(fnID uint32, params []wire.Descriptor, ret wire.Descriptor, args []any) (any, error) {
	return callNative(c.handler, c.send, c, fnID, params, ret, args)
}
