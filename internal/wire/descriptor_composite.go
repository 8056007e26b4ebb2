package wire

import (
	"fmt"

	"github.com/cryguy/ipcbridge/internal/core"
)

// CallbackDesc describes a callback parameter/return type: its own
// parameter and return descriptors. The native function ID is not part of
// the descriptor; it is carried on the wire with each callback value.
type CallbackDesc struct {
	Params []Descriptor
	Return Descriptor
}

func (CallbackDesc) Tag() Tag { return TagCallback }

// NativeCallback is what CallbackDesc.Decode returns: a JS-callable value
// standing in for a native function. Calling it drives ctx.Caller, which
// internal/peer implements as "build an Evaluate message, send it, decode
// the Respond".
type NativeCallback struct {
	FnID   uint32
	Params []Descriptor
	Return Descriptor
	Caller NativeCaller
}

// Call implements core.Callable.
func (nc *NativeCallback) Call(args []any) (any, error) {
	return nc.Caller.CallNative(nc.FnID, nc.Params, nc.Return, args)
}

// Encode writes back the native function ID of a previously decoded
// NativeCallback. Encoding an arbitrary JS function that was never backed
// by a native ID has no wire representation in this protocol — the peer
// only ever hands JS a callback by ID, so there is nothing to assign one
// to on the way back out.
func (c CallbackDesc) Encode(_ *Context, e *Encoder, v any) error {
	nc, ok := v.(*NativeCallback)
	if !ok {
		return fmt.Errorf("%w: callback value has no native function id to encode", core.ErrProtocolViolation)
	}
	e.PushU64(uint64(nc.FnID))
	return nil
}

// Decode reads a 64-bit native function ID and returns a JS callable that
// forwards its arguments through the peer-function-wrapper machinery.
func (c CallbackDesc) Decode(ctx *Context, d *Decoder) (any, error) {
	fnID := uint32(d.ReadU64())
	return &NativeCallback{FnID: fnID, Params: c.Params, Return: c.Return, Caller: ctx.Caller}, nil
}

// OptionDesc implements `Option(inner)`: tag 0 = absent, 1 = present
// followed by the inner payload.
type OptionDesc struct {
	Inner Descriptor
}

func (OptionDesc) Tag() Tag { return TagOption }

func (o OptionDesc) Encode(ctx *Context, e *Encoder, v any) error {
	if v == nil {
		e.PushU8(0)
		return nil
	}
	if _, isNull := v.(core.Null); isNull {
		e.PushU8(0)
		return nil
	}
	e.PushU8(1)
	return o.Inner.Encode(ctx, e, v)
}

func (o OptionDesc) Decode(ctx *Context, d *Decoder) (any, error) {
	tag := d.ReadU8()
	if tag == 0 {
		return nil, nil
	}
	if tag != 1 {
		return nil, fmt.Errorf("%w: option tag %d is neither 0 nor 1", core.ErrProtocolViolation, tag)
	}
	return o.Inner.Decode(ctx, d)
}

// ResultDesc implements `Result(ok, err)`: tag 1 = ok, 0 = err.
// Values are represented as map[string]any{"ok": v} or
// map[string]any{"err": v}.
type ResultDesc struct {
	Ok  Descriptor
	Err Descriptor
}

func (ResultDesc) Tag() Tag { return TagResult }

func (r ResultDesc) Encode(ctx *Context, e *Encoder, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: result value is not a map", core.ErrInvalidResultVariant)
	}
	if okVal, present := m["ok"]; present {
		e.PushU8(1)
		return r.Ok.Encode(ctx, e, okVal)
	}
	if errVal, present := m["err"]; present {
		e.PushU8(0)
		return r.Err.Encode(ctx, e, errVal)
	}
	return fmt.Errorf("%w: map has neither \"ok\" nor \"err\" key", core.ErrInvalidResultVariant)
}

func (r ResultDesc) Decode(ctx *Context, d *Decoder) (any, error) {
	tag := d.ReadU8()
	switch tag {
	case 1:
		v, err := r.Ok.Decode(ctx, d)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": v}, nil
	case 0:
		v, err := r.Err.Decode(ctx, d)
		if err != nil {
			return nil, err
		}
		return map[string]any{"err": v}, nil
	default:
		return nil, fmt.Errorf("%w: result tag %d is neither 0 nor 1", core.ErrProtocolViolation, tag)
	}
}

// ArrayDesc implements `Array(element)`: u32 length followed by that many
// encoded elements.
type ArrayDesc struct {
	Elem Descriptor
}

func (ArrayDesc) Tag() Tag { return TagArray }

func (a ArrayDesc) Encode(ctx *Context, e *Encoder, v any) error {
	elems, err := toAnySlice(v)
	if err != nil {
		return err
	}
	e.PushU32(uint32(len(elems)))
	for _, el := range elems {
		if err := a.Elem.Encode(ctx, e, el); err != nil {
			return err
		}
	}
	return nil
}

func (a ArrayDesc) Decode(ctx *Context, d *Decoder) (any, error) {
	n := d.ReadU32()
	out := make([]any, n)
	for i := range out {
		v, err := a.Elem.Decode(ctx, d)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toAnySlice(v any) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []int:
		out := make([]any, len(s))
		for i, n := range s {
			out[i] = n
		}
		return out, nil
	case []byte:
		out := make([]any, len(s))
		for i, n := range s {
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(s))
		for i, n := range s {
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: value is not an array", core.ErrProtocolViolation)
	}
}

// u8ClampedDesc implements U8Clamped: a length-prefixed byte run decoded to
// a clamped byte array.
type u8ClampedDesc struct{}

func (u8ClampedDesc) Tag() Tag { return TagU8Clamped }

func (u8ClampedDesc) Encode(_ *Context, e *Encoder, v any) error {
	b, err := toClampedBytes(v)
	if err != nil {
		return err
	}
	e.PushU32(uint32(len(b)))
	e.PushBytes(b)
	return nil
}

func (u8ClampedDesc) Decode(_ *Context, d *Decoder) (any, error) {
	n := int(d.ReadU32())
	b := make([]byte, n)
	copy(b, d.ReadBytes(n))
	return b, nil
}

// U8Clamped is the U8Clamped type descriptor.
var U8Clamped Descriptor = u8ClampedDesc{}

func toClampedBytes(v any) ([]byte, error) {
	switch s := v.(type) {
	case []byte:
		return s, nil
	case []int:
		out := make([]byte, len(s))
		for i, n := range s {
			switch {
			case n < 0:
				out[i] = 0
			case n > 255:
				out[i] = 255
			default:
				out[i] = byte(n)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: value is not a byte run", core.ErrProtocolViolation)
	}
}

// StringEnumDesc implements `StringEnum(variants[])`: transmitted as a u32
// index into the variant table. Unknown strings encode to the reserved
// invalid slot at index len(variants).
type StringEnumDesc struct {
	Variants []string
}

func (StringEnumDesc) Tag() Tag { return TagStringEnum }

func (s StringEnumDesc) Encode(_ *Context, e *Encoder, v any) error {
	str, _ := v.(string)
	for i, variant := range s.Variants {
		if variant == str {
			e.PushU32(uint32(i))
			return nil
		}
	}
	e.PushU32(uint32(len(s.Variants)))
	return nil
}

func (s StringEnumDesc) Decode(_ *Context, d *Decoder) (any, error) {
	idx := d.ReadU32()
	if int(idx) >= len(s.Variants) {
		return core.Undefined{}, nil
	}
	return s.Variants[idx], nil
}
