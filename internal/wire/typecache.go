package wire

import (
	"fmt"

	"github.com/cryguy/ipcbridge/internal/core"
	"golang.org/x/exp/maps"
)

// Full/cached markers for a type slot on the wire.
const (
	MarkerFull   = 0xFE
	MarkerCached = 0xFF
)

// FuncType is the signature of one batched call: its parameter descriptors
// and its single return descriptor. This is the shape transmitted after a
// MarkerFull type slot and looked up by ID after a MarkerCached one.
type FuncType struct {
	Params []Descriptor
	Return Descriptor
}

// ParseDescriptor reads one type descriptor from the decoder's u8 stream,
// recursing into composite tags.
func ParseDescriptor(d *Decoder) (Descriptor, error) {
	switch tag := Tag(d.ReadU8()); tag {
	case TagNull:
		return Null, nil
	case TagBool:
		return Bool, nil
	case TagU8:
		return U8, nil
	case TagU16:
		return U16, nil
	case TagU32:
		return U32, nil
	case TagU64:
		return U64, nil
	case TagU128:
		return U128, nil
	case TagI8:
		return I8, nil
	case TagI16:
		return I16, nil
	case TagI32:
		return I32, nil
	case TagI64:
		return I64, nil
	case TagI128:
		return I128, nil
	case TagF32:
		return F32, nil
	case TagF64:
		return F64, nil
	case TagUsize:
		return Usize, nil
	case TagIsize:
		return Isize, nil
	case TagString:
		return String, nil
	case TagHeapRef:
		return HeapRef, nil
	case TagBorrowedRef:
		return BorrowedRef, nil
	case TagU8Clamped:
		return U8Clamped, nil
	case TagCallback:
		paramCount := int(d.ReadU8())
		params := make([]Descriptor, paramCount)
		for i := range params {
			p, err := ParseDescriptor(d)
			if err != nil {
				return nil, err
			}
			params[i] = p
		}
		ret, err := ParseDescriptor(d)
		if err != nil {
			return nil, err
		}
		return CallbackDesc{Params: params, Return: ret}, nil
	case TagOption:
		inner, err := ParseDescriptor(d)
		if err != nil {
			return nil, err
		}
		return OptionDesc{Inner: inner}, nil
	case TagResult:
		okDesc, err := ParseDescriptor(d)
		if err != nil {
			return nil, err
		}
		errDesc, err := ParseDescriptor(d)
		if err != nil {
			return nil, err
		}
		return ResultDesc{Ok: okDesc, Err: errDesc}, nil
	case TagArray:
		elem, err := ParseDescriptor(d)
		if err != nil {
			return nil, err
		}
		return ArrayDesc{Elem: elem}, nil
	case TagStringEnum:
		variantCount := int(d.ReadU8())
		variants := make([]string, variantCount)
		for i := range variants {
			n := int(d.ReadU8())
			variants[i] = string(d.ReadBytes(n))
		}
		return StringEnumDesc{Variants: variants}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type tag %d", core.ErrProtocolViolation, tag)
	}
}

// TypeCache maps 32-bit type IDs to parsed function signatures.
type TypeCache struct {
	entries map[uint32]*FuncType
}

// NewTypeCache returns an empty TypeCache.
func NewTypeCache() *TypeCache {
	return &TypeCache{entries: make(map[uint32]*FuncType)}
}

// ParseTypeSlot reads a type-slot marker and ID from the decoder. MarkerFull
// additionally reads a paramCount and that many recursively-parsed param
// descriptors plus one return descriptor, then installs the result into the
// cache under typeId.
// MarkerCached looks the signature up by typeId. Any other marker, or a
// cache miss, is a protocol error.
func (tc *TypeCache) ParseTypeSlot(d *Decoder) (*FuncType, error) {
	marker := d.ReadU8()
	typeID := d.ReadU32()

	switch marker {
	case MarkerFull:
		paramCount := int(d.ReadU8())
		params := make([]Descriptor, paramCount)
		for i := range params {
			p, err := ParseDescriptor(d)
			if err != nil {
				return nil, fmt.Errorf("%w: parsing param %d of type %d: %v", core.ErrProtocolViolation, i, typeID, err)
			}
			params[i] = p
		}
		ret, err := ParseDescriptor(d)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing return type of type %d: %v", core.ErrProtocolViolation, typeID, err)
		}
		ft := &FuncType{Params: params, Return: ret}
		tc.entries[typeID] = ft
		return ft, nil
	case MarkerCached:
		ft, ok := tc.entries[typeID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown cached type id %d", core.ErrProtocolViolation, typeID)
		}
		return ft, nil
	default:
		return nil, fmt.Errorf("%w: unknown type marker 0x%02x", core.ErrProtocolViolation, marker)
	}
}

// CachedTypeIDs lists the type IDs currently installed, for diagnostics.
func (tc *TypeCache) CachedTypeIDs() []uint32 {
	return maps.Keys(tc.entries)
}
