package wire

import "testing"

func TestCodecRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.PushU32(42)
	e.PushU16(7)
	e.PushU8(9)
	e.PushU64(0x1122334455667788)
	e.PushI64(-1)
	e.PushF32(3.5)
	e.PushF64(2.25)
	e.PushString("hello")
	e.PushU32(100)

	buf := e.Finalize()
	d := NewDecoder(buf)

	if got := d.ReadU32(); got != 42 {
		t.Fatalf("u32 = %d, want 42", got)
	}
	if got := d.ReadU16(); got != 7 {
		t.Fatalf("u16 = %d, want 7", got)
	}
	if got := d.ReadU8(); got != 9 {
		t.Fatalf("u8 = %d, want 9", got)
	}
	if got := d.ReadU64(); got != 0x1122334455667788 {
		t.Fatalf("u64 = %x, want 1122334455667788", got)
	}
	if got := d.ReadI64(); got != -1 {
		t.Fatalf("i64 = %d, want -1", got)
	}
	if got := d.ReadF32(); got != 3.5 {
		t.Fatalf("f32 = %v, want 3.5", got)
	}
	if got := d.ReadF64(); got != 2.25 {
		t.Fatalf("f64 = %v, want 2.25", got)
	}
	if got := d.ReadString(); got != "hello" {
		t.Fatalf("string = %q, want hello", got)
	}
	if got := d.ReadU32(); got != 100 {
		t.Fatalf("trailing u32 = %d, want 100", got)
	}
	if !d.IsEmpty() {
		t.Fatalf("expected decoder to be fully drained")
	}
}

func TestCodecStreamsIndependent(t *testing.T) {
	e := NewEncoder()
	// Interleave pushes across streams; each stream must preserve its own
	// push order regardless of interleaving.
	e.PushU8(1)
	e.PushU32(100)
	e.PushU8(2)
	e.PushU16(10)
	e.PushU32(200)
	e.PushU16(20)
	e.PushU8(3)

	buf := e.Finalize()
	d := NewDecoder(buf)

	if d.ReadU32() != 100 || d.ReadU32() != 200 {
		t.Fatalf("u32 stream order not preserved")
	}
	if d.ReadU16() != 10 || d.ReadU16() != 20 {
		t.Fatalf("u16 stream order not preserved")
	}
	if d.ReadU8() != 1 || d.ReadU8() != 2 || d.ReadU8() != 3 {
		t.Fatalf("u8 stream order not preserved")
	}
}

func TestHeaderOffsetsLittleEndian(t *testing.T) {
	e := NewEncoder()
	e.PushU32(1)
	e.PushU16(2)
	e.PushU8(3)
	e.PushString("ab")
	buf := e.Finalize()

	if len(buf) < headerSize {
		t.Fatalf("buffer too short")
	}
	// u32 section is 1 word = 4 bytes, so u16 offset should be 12+4=16.
	u16Off := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	if u16Off != 16 {
		t.Fatalf("u16 offset = %d, want 16", u16Off)
	}
}

func TestIsEmptyFalseWithLeftoverBytes(t *testing.T) {
	e := NewEncoder()
	e.PushU8(1)
	e.PushU8(2)
	buf := e.Finalize()
	d := NewDecoder(buf)
	d.ReadU8()
	if d.IsEmpty() {
		t.Fatalf("expected decoder to report leftover bytes")
	}
}
