package dispatch

import (
	"testing"

	"github.com/cryguy/ipcbridge/internal/core"
	"github.com/cryguy/ipcbridge/internal/heap"
	"github.com/cryguy/ipcbridge/internal/wire"
)

func newHandler() (*Handler, *heap.Heap, *core.Registry) {
	cfg := core.DefaultConfig()
	h := heap.New(cfg)
	reg := core.NewRegistry()
	types := wire.NewTypeCache()
	hd := NewHandler(h, reg, types, nil, cfg)
	return hd, h, reg
}

// buildEvaluate assembles a synthetic Evaluate message for one operation:
// fnID, a MarkerFull type slot with the given params/return, then the
// encoded arguments.
func buildEvaluate(reserved uint32, fnID uint32, typeID uint32, params []wire.Descriptor, ret wire.Descriptor, args []any) []byte {
	e := wire.NewEncoder()
	e.PushU8(MsgEvaluate)
	e.PushU32(reserved)
	e.PushU32(fnID)
	e.PushU8(wire.MarkerFull)
	e.PushU32(typeID)
	e.PushU8(uint8(len(params)))
	for _, p := range params {
		pushDescriptorTag(e, p)
	}
	pushDescriptorTag(e, ret)
	ctx := &wire.Context{Heap: heap.New(core.DefaultConfig())}
	for i, p := range params {
		if err := p.Encode(ctx, e, args[i]); err != nil {
			panic(err)
		}
	}
	return e.Finalize()
}

// pushDescriptorTag writes the u8 tag sequence ParseDescriptor expects for
// the scalar descriptors exercised by these tests.
func pushDescriptorTag(e *wire.Encoder, d wire.Descriptor) {
	e.PushU8(uint8(d.Tag()))
}

func TestDispatchSingleOperation(t *testing.T) {
	hd, _, reg := newHandler()
	reg.Set(7, func(args []any) (any, error) {
		a := args[0].(uint32)
		b := args[0].(uint32)
		_ = b
		return a + 1, nil
	})

	buf := buildEvaluate(0, 7, 1, []wire.Descriptor{wire.U32}, wire.U32, []any{uint32(41)})

	var sent []byte
	d, err := hd.Drive(buf, func(resp []byte) ([]byte, error) {
		sent = resp
		// Terminal ack: an empty Respond message.
		e := wire.NewEncoder()
		e.PushU8(MsgRespond)
		return e.Finalize(), nil
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !d.IsEmpty() {
		t.Fatalf("expected the returned ack decoder to be empty")
	}

	// The result travels in the Respond the handler sent to the peer.
	rd := wire.NewDecoder(sent)
	if rd.ReadU8() != MsgRespond {
		t.Fatalf("sent message is not a Respond")
	}
	got := rd.ReadU32()
	if got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
	if !rd.IsEmpty() {
		t.Fatalf("expected decoder fully drained")
	}
}

func TestDispatchTwoOperationsBatched(t *testing.T) {
	hd, _, reg := newHandler()
	reg.Set(1, func(args []any) (any, error) { return args[0].(uint32) * 2, nil })
	reg.Set(2, func(args []any) (any, error) { return args[0].(uint32) + 100, nil })

	e := wire.NewEncoder()
	e.PushU8(MsgEvaluate)
	e.PushU32(0) // no reservations

	ctx := &wire.Context{Heap: heap.New(core.DefaultConfig())}

	// op 1: fn 1, U32->U32, arg 5
	e.PushU32(1)
	e.PushU8(wire.MarkerFull)
	e.PushU32(10)
	e.PushU8(1)
	e.PushU8(uint8(wire.TagU32))
	e.PushU8(uint8(wire.TagU32))
	wire.U32.Encode(ctx, e, uint32(5))

	// op 2: fn 2, reuses cached type 10 (same shape), arg 5
	e.PushU32(2)
	e.PushU8(wire.MarkerCached)
	e.PushU32(10)
	wire.U32.Encode(ctx, e, uint32(5))

	buf := e.Finalize()

	var sent []byte
	_, err := hd.Drive(buf, func(resp []byte) ([]byte, error) {
		sent = resp
		ack := wire.NewEncoder()
		ack.PushU8(MsgRespond)
		return ack.Finalize(), nil
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	d := wire.NewDecoder(sent)
	if d.ReadU8() != MsgRespond {
		t.Fatalf("sent message is not a Respond")
	}
	if got := d.ReadU32(); got != 10 {
		t.Fatalf("op1 result = %d, want 10", got)
	}
	if got := d.ReadU32(); got != 105 {
		t.Fatalf("op2 result = %d, want 105", got)
	}
}

func TestDispatchUnknownFunctionIsProtocolError(t *testing.T) {
	hd, _, _ := newHandler()
	buf := buildEvaluate(0, 999, 1, []wire.Descriptor{wire.U32}, wire.U32, []any{uint32(1)})
	_, err := hd.Drive(buf, func(resp []byte) ([]byte, error) {
		t.Fatalf("send should not be reached")
		return nil, nil
	})
	if err == nil {
		t.Fatalf("expected error for unknown function id")
	}
}

func TestDispatchReentrantCallbackFromWithinEvaluate(t *testing.T) {
	hd, _, reg := newHandler()
	reg.Set(5, func(args []any) (any, error) { return args[0].(uint32), nil })

	buf := buildEvaluate(0, 5, 1, []wire.Descriptor{wire.U32}, wire.U32, []any{uint32(9)})

	calls := 0
	var last []byte
	_, err := hd.Drive(buf, func(resp []byte) ([]byte, error) {
		calls++
		last = resp
		if calls == 1 {
			// The peer answers our Respond with a nested Evaluate calling
			// fn 5 again before finally acking.
			return buildEvaluate(0, 5, 1, []wire.Descriptor{wire.U32}, wire.U32, []any{uint32(20)}), nil
		}
		ack := wire.NewEncoder()
		ack.PushU8(MsgRespond)
		return ack.Finalize(), nil
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 round trips, got %d", calls)
	}
	// The last Respond sent carries the nested call's result.
	d := wire.NewDecoder(last)
	if d.ReadU8() != MsgRespond {
		t.Fatalf("last sent message is not a Respond")
	}
	if got := d.ReadU32(); got != 20 {
		t.Fatalf("final result = %d, want 20 (from the nested re-entrant call)", got)
	}
}

func TestDispatchEmptyTransportResponseIsProtocolError(t *testing.T) {
	hd, _, reg := newHandler()
	reg.Set(1, func(args []any) (any, error) { return args[0], nil })
	buf := buildEvaluate(0, 1, 1, []wire.Descriptor{wire.U32}, wire.U32, []any{uint32(1)})
	_, err := hd.Drive(buf, func(resp []byte) ([]byte, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatalf("expected protocol error for empty transport response")
	}
}

func TestDispatchReservationScopeFillsPlaceholder(t *testing.T) {
	hd, hp, reg := newHandler()
	reg.Set(3, func(args []any) (any, error) { return "hello", nil })

	buf := buildEvaluate(1, 3, 1, []wire.Descriptor{}, wire.HeapRef, nil)

	before := hp.WaterMark()
	_, err := hd.Drive(buf, func(resp []byte) ([]byte, error) {
		ack := wire.NewEncoder()
		ack.PushU8(MsgRespond)
		return ack.Finalize(), nil
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	v, ok := hp.Get(before)
	if !ok || v != "hello" {
		t.Fatalf("reserved slot %d = %#v, ok=%v, want \"hello\"", before, v, ok)
	}
}
