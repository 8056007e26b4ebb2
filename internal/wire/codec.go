// Package wire implements the binary wire codec and the type-directed
// marshalling layer built on top of it: type descriptors, a type-ID cache,
// and the Null/Bool/integer/float/String/HeapRef/BorrowedRef/Callback/
// Option/Result/Array/U8Clamped/StringEnum descriptor variants.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cryguy/ipcbridge/internal/core"
)

// headerSize is the fixed 12-byte header: three little-endian u32 section
// offsets (u16, u8, string).
const headerSize = 12

// Encoder accumulates pushes into four independent streams and materialises
// the final aligned multi-buffer layout on Finalize. Pushes may happen in
// any order within each stream; only the relative order within a single
// stream is preserved.
type Encoder struct {
	words  []uint32
	halves []uint16
	bytes  []byte
	str    []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// PushU32 appends a 32-bit word to the u32 stream.
func (e *Encoder) PushU32(v uint32) { e.words = append(e.words, v) }

// PushU16 appends a 16-bit half to the u16 stream.
func (e *Encoder) PushU16(v uint16) { e.halves = append(e.halves, v) }

// PushU8 appends a byte to the u8 stream.
func (e *Encoder) PushU8(v uint8) { e.bytes = append(e.bytes, v) }

// PushBytes appends raw bytes to the u8 stream (used by U8Clamped payloads).
func (e *Encoder) PushBytes(b []byte) { e.bytes = append(e.bytes, b...) }

// PushU64 transmits a 64-bit value as low:u32, high:u32.
func (e *Encoder) PushU64(v uint64) {
	e.PushU32(uint32(v))
	e.PushU32(uint32(v >> 32))
}

// PushI64 transmits a signed 64-bit value as its two's-complement bit
// pattern via PushU64.
func (e *Encoder) PushI64(v int64) { e.PushU64(uint64(v)) }

// PushU128 extends the 64-bit scheme with two 64-bit halves (low, high).
func (e *Encoder) PushU128(lo, hi uint64) {
	e.PushU64(lo)
	e.PushU64(hi)
}

// PushF32 transmits the bit pattern of an IEEE-754 single.
func (e *Encoder) PushF32(v float32) { e.PushU32(math.Float32bits(v)) }

// PushF64 transmits the bit pattern of an IEEE-754 double as a 64-bit value.
func (e *Encoder) PushF64(v float64) { e.PushU64(math.Float64bits(v)) }

// PushString transmits a u32 length into the u32 stream followed by the
// UTF-8 bytes appended to the string section.
func (e *Encoder) PushString(s string) {
	e.PushU32(uint32(len(s)))
	e.str = append(e.str, s...)
}

// Finalize materialises the encoder's streams into the wire layout: a
// 12-byte header of section offsets, the u32 section (immediately after
// the header), then u16, u8, and string sections, all little-endian.
func (e *Encoder) Finalize() []byte {
	u32Len := len(e.words) * 4
	u16Off := headerSize + u32Len
	u8Off := u16Off + len(e.halves)*2
	strOff := u8Off + len(e.bytes)
	total := strOff + len(e.str)

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(u16Off))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(u8Off))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(strOff))

	off := headerSize
	for _, w := range e.words {
		binary.LittleEndian.PutUint32(buf[off:off+4], w)
		off += 4
	}
	off = u16Off
	for _, h := range e.halves {
		binary.LittleEndian.PutUint16(buf[off:off+2], h)
		off += 2
	}
	copy(buf[u8Off:strOff], e.bytes)
	copy(buf[strOff:total], e.str)
	return buf
}

// Decoder reads back the four streams of a finalised buffer independently.
// Reading past a stream's end is a programmer error and panics.
type Decoder struct {
	words  []uint32
	halves []uint16
	bytes  []byte
	str    []byte

	wordPos, halfPos, bytePos, strPos int
}

// NewDecoder parses buf's header and slices out the four sections. It
// panics if buf is shorter than the header or the offsets are inconsistent;
// callers decoding peer-supplied buffers should recover and translate that
// into core.ErrProtocolViolation (see internal/dispatch).
func NewDecoder(buf []byte) *Decoder {
	if len(buf) < headerSize {
		panic(fmt.Errorf("%w: buffer shorter than header", core.ErrProtocolViolation))
	}
	u16Off := int(binary.LittleEndian.Uint32(buf[0:4]))
	u8Off := int(binary.LittleEndian.Uint32(buf[4:8]))
	strOff := int(binary.LittleEndian.Uint32(buf[8:12]))
	if u16Off < headerSize || u8Off < u16Off || strOff < u8Off || strOff > len(buf) {
		panic(fmt.Errorf("%w: inconsistent section offsets", core.ErrProtocolViolation))
	}

	d := &Decoder{}
	u32Bytes := buf[headerSize:u16Off]
	d.words = make([]uint32, len(u32Bytes)/4)
	for i := range d.words {
		d.words[i] = binary.LittleEndian.Uint32(u32Bytes[i*4 : i*4+4])
	}
	u16Bytes := buf[u16Off:u8Off]
	d.halves = make([]uint16, len(u16Bytes)/2)
	for i := range d.halves {
		d.halves[i] = binary.LittleEndian.Uint16(u16Bytes[i*2 : i*2+2])
	}
	d.bytes = buf[u8Off:strOff]
	d.str = buf[strOff:]
	return d
}

func (d *Decoder) ReadU32() uint32 {
	v := d.words[d.wordPos]
	d.wordPos++
	return v
}

func (d *Decoder) ReadU16() uint16 {
	v := d.halves[d.halfPos]
	d.halfPos++
	return v
}

func (d *Decoder) ReadU8() uint8 {
	v := d.bytes[d.bytePos]
	d.bytePos++
	return v
}

// ReadBytes reads n raw bytes from the u8 stream.
func (d *Decoder) ReadBytes(n int) []byte {
	b := d.bytes[d.bytePos : d.bytePos+n]
	d.bytePos += n
	return b
}

// ReadU64 reconstructs a 64-bit value from low:u32, high:u32.
func (d *Decoder) ReadU64() uint64 {
	lo := uint64(d.ReadU32())
	hi := uint64(d.ReadU32())
	return lo | hi<<32
}

// ReadI64 sign-extends the high half before reconstructing a signed value.
func (d *Decoder) ReadI64() int64 { return int64(d.ReadU64()) }

// ReadU128 reads two 64-bit halves (low, high).
func (d *Decoder) ReadU128() (lo, hi uint64) {
	lo = d.ReadU64()
	hi = d.ReadU64()
	return
}

func (d *Decoder) ReadF32() float32 { return math.Float32frombits(d.ReadU32()) }
func (d *Decoder) ReadF64() float64 { return math.Float64frombits(d.ReadU64()) }

// ReadString reads a u32 length from the u32 stream followed by that many
// UTF-8 bytes from the string section.
func (d *Decoder) ReadString() string {
	n := int(d.ReadU32())
	s := string(d.str[d.strPos : d.strPos+n])
	d.strPos += n
	return s
}

// HasMoreWords reports whether the u32 stream has unread words remaining.
func (d *Decoder) HasMoreWords() bool { return d.wordPos < len(d.words) }

// RemainingBytes reports how many unread bytes remain in the u8 stream.
func (d *Decoder) RemainingBytes() int { return len(d.bytes) - d.bytePos }

// SkipBytes advances the u8 stream cursor by n without reading.
func (d *Decoder) SkipBytes(n int) { d.bytePos += n }

// IsEmpty reports whether every stream has been fully consumed. The
// dispatch loop uses this to detect the "leftover bytes" protocol error.
func (d *Decoder) IsEmpty() bool {
	return d.wordPos >= len(d.words) &&
		d.halfPos >= len(d.halves) &&
		d.bytePos >= len(d.bytes) &&
		d.strPos >= len(d.str)
}
