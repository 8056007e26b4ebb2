// Package dispatch implements the re-entrant dispatch loop: parsing a
// batched Evaluate message, resolving argument/return types (possibly via
// the type cache), invoking the local function registry, and re-entering
// the transport when a called function synchronously invokes a
// peer-function wrapper.
package dispatch

import (
	"encoding/base64"
	"fmt"

	"github.com/cryguy/ipcbridge/internal/core"
	"github.com/cryguy/ipcbridge/internal/heap"
	"github.com/cryguy/ipcbridge/internal/telemetry"
	"github.com/cryguy/ipcbridge/internal/wire"
)

// Message types.
const (
	MsgEvaluate uint8 = 0
	MsgRespond  uint8 = 1
)

// Reserved function IDs, never present in the registry. See the Open
// Question resolved in DESIGN.md.
const (
	FnDropNativeReference    uint32 = 0xFFFFFFFF
	FnCallExportedPeerMethod uint32 = 0xFFFFFFFE
)

// Sender performs one synchronous round trip of the transport: send buf,
// return the peer's reply bytes (or an error if the transport itself
// failed). A nil byte slice with a nil error represents a closed/empty
// reply and is treated as a protocol error by Drive.
type Sender func(buf []byte) ([]byte, error)

// Handler owns the heap, function registry, and type cache, and drives the
// Evaluate/Respond loop. It is not safe for concurrent use.
type Handler struct {
	Heap     *heap.Heap
	Registry *core.Registry
	Types    *wire.TypeCache
	Caller   wire.NativeCaller
	Config   core.Config

	// Trace records dispatch events for a devtools sidecar or tracestore
	// writer. Nil disables recording entirely.
	Trace *telemetry.Recorder

	depth int
}

// NewHandler wires a Handler's collaborators together.
func NewHandler(h *heap.Heap, reg *core.Registry, types *wire.TypeCache, caller wire.NativeCaller, cfg core.Config) *Handler {
	return &Handler{Heap: h, Registry: reg, Types: types, Caller: caller, Config: cfg}
}

func (h *Handler) trace(kind telemetry.EventKind, fnID uint32, detail string) {
	if h.Trace != nil {
		h.Trace.Record(kind, fnID, detail)
	}
}

func (h *Handler) ctx() *wire.Context {
	return &wire.Context{Heap: h.Heap, Caller: h.Caller}
}

// HandleEntry is the one entry point the peer calls from outside: a
// message-handler entry point taking base64 in, returning undefined, with
// errors surfaced by throwing. It decodes buf and drives it via send, which
// must reach the "replies to callbacks the peer initiated" endpoint.
func (h *Handler) HandleEntry(b64 string, send Sender) error {
	buf, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("%w: invalid base64 payload: %v", core.ErrProtocolViolation, err)
	}
	d, err := h.Drive(buf, send)
	if err != nil {
		return err
	}
	if d != nil && !d.IsEmpty() {
		return fmt.Errorf("%w: leftover bytes after entry point dispatch", core.ErrProtocolViolation)
	}
	return nil
}

// Drive decodes buf as a message. If it is a Respond, the decoder is
// returned to the caller so it can read the expected return values itself
// (internal/peer does this after calling a native function). If it is an
// Evaluate, Drive processes every batched operation, builds a Respond
// message from the results, sends it via send, and recurses on whatever
// comes back — the peer may answer a Respond with another Evaluate, a
// callback from within the peer's own processing.
func (h *Handler) Drive(buf []byte, send Sender) (d *wire.Decoder, err error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty response from transport", core.ErrProtocolViolation)
	}

	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("%w: malformed message buffer: %v", core.ErrProtocolViolation, r)
		}
	}()

	d = wire.NewDecoder(buf)
	msgType := d.ReadU8()

	switch msgType {
	case MsgRespond:
		return d, nil
	case MsgEvaluate:
		return h.handleEvaluate(d, send)
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", core.ErrProtocolViolation, msgType)
	}
}

func (h *Handler) handleEvaluate(d *wire.Decoder, send Sender) (*wire.Decoder, error) {
	if h.depth >= h.Config.MaxReentryDepth {
		return nil, fmt.Errorf("%w: dispatch recursion too deep (> %d)", core.ErrProtocolViolation, h.Config.MaxReentryDepth)
	}
	h.depth++
	defer func() { h.depth-- }()

	reservedCount := d.ReadU32()
	pushedScope := reservedCount > 0
	if pushedScope {
		h.Heap.PushReservationScope(reservedCount)
	}
	frame := h.Heap.PushBorrowFrame()
	defer func() {
		h.Heap.PopBorrowFrame(frame)
		if pushedScope {
			h.Heap.PopReservationScope()
		}
	}()

	respEnc := wire.NewEncoder()
	respEnc.PushU8(MsgRespond)
	ctx := h.ctx()

	h.trace(telemetry.EventEvaluate, 0, fmt.Sprintf("reserved=%d", reservedCount))

	for d.HasMoreWords() {
		fnID := d.ReadU32()
		ft, err := h.Types.ParseTypeSlot(d)
		if err != nil {
			h.trace(telemetry.EventError, fnID, err.Error())
			return nil, err
		}

		args := make([]any, len(ft.Params))
		for i, p := range ft.Params {
			v, err := p.Decode(ctx, d)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

		fn, ok := h.Registry.Lookup(fnID)
		if !ok {
			err := fmt.Errorf("%w: unknown function id %d", core.ErrProtocolViolation, fnID)
			h.trace(telemetry.EventError, fnID, err.Error())
			return nil, err
		}

		result, callErr := fn(args)
		if callErr != nil {
			h.trace(telemetry.EventError, fnID, callErr.Error())
			return nil, callErr
		}
		h.trace(telemetry.EventCallNative, fnID, "")

		if ft.Return.Tag() == wire.TagHeapRef && pushedScope && h.Heap.HasActiveScope() {
			if _, err := h.Heap.FillNextReserved(result); err != nil {
				return nil, err
			}
		} else if err := ft.Return.Encode(ctx, respEnc, result); err != nil {
			return nil, err
		}
	}

	respBuf := respEnc.Finalize()
	h.trace(telemetry.EventRespond, 0, fmt.Sprintf("%d bytes", len(respBuf)))
	next, err := send(respBuf)
	if err != nil {
		return nil, fmt.Errorf("%w: transport failure sending respond: %v", core.ErrProtocolViolation, err)
	}
	return h.Drive(next, send)
}
