package wire

import (
	"fmt"

	"github.com/cryguy/ipcbridge/internal/core"
	"github.com/cryguy/ipcbridge/internal/heap"
)

// Tag is the single-byte type identifier used on the wire.
type Tag uint8

const (
	TagNull        Tag = 0
	TagBool        Tag = 1
	TagU8          Tag = 2
	TagU16         Tag = 3
	TagU32         Tag = 4
	TagU64         Tag = 5
	TagU128        Tag = 6
	TagI8          Tag = 7
	TagI16         Tag = 8
	TagI32         Tag = 9
	TagI64         Tag = 10
	TagI128        Tag = 11
	TagF32         Tag = 12
	TagF64         Tag = 13
	TagUsize       Tag = 14
	TagIsize       Tag = 15
	TagString      Tag = 16
	TagHeapRef     Tag = 17
	TagCallback    Tag = 18
	TagOption      Tag = 19
	TagResult      Tag = 20
	TagArray       Tag = 21
	TagBorrowedRef Tag = 22
	TagU8Clamped   Tag = 23
	TagStringEnum  Tag = 24
)

// NativeCaller is implemented by the peer-function-wrapper machinery
// (internal/peer.FuncWrapper). It is referenced here only as an interface
// so that wire never imports peer, avoiding an import cycle: peer builds
// messages with wire.Encoder/Descriptor, and Callback.Decode needs to hand
// back a value that, when called, drives peer's Call.
type NativeCaller interface {
	CallNative(fnID uint32, paramTypes []Descriptor, returnType Descriptor, args []any) (any, error)
}

// Context carries the collaborators a descriptor's Encode/Decode needs
// beyond the raw byte streams: the object heap (for HeapRef/BorrowedRef)
// and a way to reach the native peer (for Callback).
type Context struct {
	Heap   *heap.Heap
	Caller NativeCaller
}

// Descriptor is a self-describing type tree node. It must satisfy
// decode(encode(v)) == v for every valid v of its JS type.
type Descriptor interface {
	Tag() Tag
	Encode(ctx *Context, e *Encoder, v any) error
	Decode(ctx *Context, d *Decoder) (any, error)
}

// ---- scalar descriptors -------------------------------------------------

type nullDesc struct{}

func (nullDesc) Tag() Tag { return TagNull }
func (nullDesc) Encode(_ *Context, _ *Encoder, _ any) error { return nil }
func (nullDesc) Decode(_ *Context, _ *Decoder) (any, error) { return core.Null{}, nil }

// Null is the Null type descriptor.
var Null Descriptor = nullDesc{}

type boolDesc struct{}

func (boolDesc) Tag() Tag { return TagBool }
func (boolDesc) Encode(_ *Context, e *Encoder, v any) error {
	b, _ := v.(bool)
	var u uint8
	if b {
		u = 1
	}
	e.PushU8(u)
	return nil
}
func (boolDesc) Decode(_ *Context, d *Decoder) (any, error) { return d.ReadU8() != 0, nil }

// Bool is the Bool type descriptor.
var Bool Descriptor = boolDesc{}

// intDesc implements every fixed-width integer variant via a width/signedness
// pair, since the wire shapes are identical modulo width and sign-extension.
type intDesc struct {
	tag    Tag
	bits   int
	signed bool
}

func (d intDesc) Tag() Tag { return d.tag }

func toI64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

func (id intDesc) Encode(_ *Context, e *Encoder, v any) error {
	n := toI64(v)
	switch id.bits {
	case 8:
		e.PushU8(uint8(n))
	case 16:
		e.PushU16(uint16(n))
	case 32:
		e.PushU32(uint32(n))
	case 64:
		e.PushU64(uint64(n))
	case 128:
		// Transmitted as two 64-bit halves; for a 128-bit logical value
		// callers pass a [2]uint64{lo, hi} instead of a native int.
		if pair, ok := v.([2]uint64); ok {
			e.PushU128(pair[0], pair[1])
			return nil
		}
		lo := uint64(n)
		var hi uint64
		if id.signed && n < 0 {
			hi = ^uint64(0)
		}
		e.PushU128(lo, hi)
	default:
		return fmt.Errorf("%w: unsupported integer width %d", core.ErrProtocolViolation, id.bits)
	}
	return nil
}

func (id intDesc) Decode(_ *Context, d *Decoder) (any, error) {
	switch id.bits {
	case 8:
		v := d.ReadU8()
		if id.signed {
			return int8(v), nil
		}
		return v, nil
	case 16:
		v := d.ReadU16()
		if id.signed {
			return int16(v), nil
		}
		return v, nil
	case 32:
		v := d.ReadU32()
		if id.signed {
			return int32(v), nil
		}
		return v, nil
	case 64:
		v := d.ReadU64()
		if id.signed {
			return int64(v), nil
		}
		return v, nil
	case 128:
		lo, hi := d.ReadU128()
		return [2]uint64{lo, hi}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported integer width %d", core.ErrProtocolViolation, id.bits)
	}
}

var (
	U8    Descriptor = intDesc{TagU8, 8, false}
	U16   Descriptor = intDesc{TagU16, 16, false}
	U32   Descriptor = intDesc{TagU32, 32, false}
	U64   Descriptor = intDesc{TagU64, 64, false}
	U128  Descriptor = intDesc{TagU128, 128, false}
	I8    Descriptor = intDesc{TagI8, 8, true}
	I16   Descriptor = intDesc{TagI16, 16, true}
	I32   Descriptor = intDesc{TagI32, 32, true}
	I64   Descriptor = intDesc{TagI64, 64, true}
	I128  Descriptor = intDesc{TagI128, 128, true}
	Usize Descriptor = intDesc{TagUsize, 64, false} // transmitted as 64-bit
	Isize Descriptor = intDesc{TagIsize, 64, true}
)

type f32Desc struct{}

func (f32Desc) Tag() Tag { return TagF32 }
func (f32Desc) Encode(_ *Context, e *Encoder, v any) error {
	f, _ := v.(float32)
	e.PushF32(f)
	return nil
}
func (f32Desc) Decode(_ *Context, d *Decoder) (any, error) { return d.ReadF32(), nil }

// F32 is the F32 type descriptor.
var F32 Descriptor = f32Desc{}

type f64Desc struct{}

func (f64Desc) Tag() Tag { return TagF64 }
func (f64Desc) Encode(_ *Context, e *Encoder, v any) error {
	switch f := v.(type) {
	case float64:
		e.PushF64(f)
	case float32:
		e.PushF64(float64(f))
	default:
		e.PushF64(0)
	}
	return nil
}
func (f64Desc) Decode(_ *Context, d *Decoder) (any, error) { return d.ReadF64(), nil }

// F64 is the F64 type descriptor.
var F64 Descriptor = f64Desc{}

type stringDesc struct{}

func (stringDesc) Tag() Tag { return TagString }
func (stringDesc) Encode(_ *Context, e *Encoder, v any) error {
	s, _ := v.(string)
	e.PushString(s)
	return nil
}
func (stringDesc) Decode(_ *Context, d *Decoder) (any, error) { return d.ReadString(), nil }

// String is the String type descriptor.
var String Descriptor = stringDesc{}

// ---- reference descriptors ----------------------------------------------

type heapRefDesc struct{}

func (heapRefDesc) Tag() Tag { return TagHeapRef }

// Encode inserts v into the heap. The ID is *not* written to the wire: the
// peer re-derives it from the synchronised water-mark (see
// internal/dispatch's reservation-scope handling).
func (heapRefDesc) Encode(ctx *Context, _ *Encoder, v any) error {
	ctx.Heap.Insert(v)
	return nil
}

// Decode reads a 64-bit ID and resolves it against the heap.
func (heapRefDesc) Decode(ctx *Context, d *Decoder) (any, error) {
	id := uint32(d.ReadU64())
	v, ok := ctx.Heap.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: heap ref %d not found", core.ErrProtocolViolation, id)
	}
	return v, nil
}

// HeapRef is the HeapRef type descriptor.
var HeapRef Descriptor = heapRefDesc{}

type borrowedRefDesc struct{}

func (borrowedRefDesc) Tag() Tag { return TagBorrowedRef }

// Encode pushes v onto the borrow stack. The ID is not written to the wire
// either, for the same reason as HeapRef.
func (borrowedRefDesc) Encode(ctx *Context, _ *Encoder, v any) error {
	_, err := ctx.Heap.AddBorrowedRef(v)
	return err
}

// Decode reads a 64-bit ID, which may fall in either the borrow or
// allocated range.
func (borrowedRefDesc) Decode(ctx *Context, d *Decoder) (any, error) {
	id := uint32(d.ReadU64())
	v, ok := ctx.Heap.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: borrowed ref %d not found", core.ErrProtocolViolation, id)
	}
	return v, nil
}

// BorrowedRef is the BorrowedRef type descriptor.
var BorrowedRef Descriptor = borrowedRefDesc{}
