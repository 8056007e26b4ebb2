// Package bridge assembles the heap, registry, type cache, dispatch handler
// and trace recorder into the single ambient bundle an embedding engine
// installs itself around: a single global heap, registry and dispatcher
// reachable without explicit plumbing. It exists as its own package, rather
// than living on internal/core, because core is a leaf package every other
// piece depends on — bundling them together here is what keeps that
// dependency graph acyclic.
package bridge

import (
	"github.com/cryguy/ipcbridge/internal/core"
	"github.com/cryguy/ipcbridge/internal/dispatch"
	"github.com/cryguy/ipcbridge/internal/heap"
	"github.com/cryguy/ipcbridge/internal/peer"
	"github.com/cryguy/ipcbridge/internal/telemetry"
	"github.com/cryguy/ipcbridge/internal/wire"
)

// Global is the ambient bundle a single embedded engine instance (one V8
// isolate, one QuickJS runtime) owns for its lifetime.
type Global struct {
	Heap     *heap.Heap
	Types    *wire.TypeCache
	Registry *core.Registry
	Trace    *telemetry.Recorder
	Handler  *dispatch.Handler
	Config   core.Config
}

// New constructs a fresh Global, wiring a Handler over a new Heap/Registry/
// TypeCache/Recorder. The Handler's Caller is left unset: an embedding
// engine calls BindCaller once it has a Sender able to reach the JS side
// in-process, since that Sender doesn't exist until the JS runtime itself
// has been created.
func New(cfg core.Config) *Global {
	h := heap.New(cfg)
	reg := core.NewRegistry()
	types := wire.NewTypeCache()
	trace := telemetry.NewRecorder()

	handler := dispatch.NewHandler(h, reg, types, nil, cfg)
	handler.Trace = trace

	return &Global{
		Heap:     h,
		Types:    types,
		Registry: reg,
		Trace:    trace,
		Handler:  handler,
		Config:   cfg,
	}
}

// BindCaller installs the ambient wire.NativeCaller that resolves every
// Callback-typed value decoded by this Global's dispatch loop, once the
// owning engine has a Sender that can reach its JS runtime.
func (g *Global) BindCaller(send dispatch.Sender) *peer.Caller {
	caller := peer.NewCaller(g.Handler, send)
	g.Handler.Caller = caller
	return caller
}
