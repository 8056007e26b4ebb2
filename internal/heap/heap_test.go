package heap

import (
	"errors"
	"testing"

	"github.com/cryguy/ipcbridge/internal/core"
)

func testCfg() core.Config {
	return core.DefaultConfig()
}

func TestSpecialSlotsResolve(t *testing.T) {
	h := New(testCfg())

	cases := []struct {
		id   uint32
		want any
	}{
		{IDUndefined, core.Undefined{}},
		{IDNull, core.Null{}},
		{IDTrue, true},
		{IDFalse, false},
	}
	for _, c := range cases {
		got, ok := h.Get(c.id)
		if !ok {
			t.Fatalf("slot %d: not found", c.id)
		}
		if got != c.want {
			t.Fatalf("slot %d = %#v, want %#v", c.id, got, c.want)
		}
	}
}

func TestInsertRemoveLiveCount(t *testing.T) {
	h := New(testCfg())

	a := h.Insert("a")
	b := h.Insert("b")
	c := h.Insert("c")

	if got := h.LiveCount(); got != 3 {
		t.Fatalf("liveCount = %d, want 3", got)
	}
	if !h.Has(a) || !h.Has(b) || !h.Has(c) {
		t.Fatalf("expected a, b, c to be live")
	}

	h.Remove(b)
	if h.Has(b) {
		t.Fatalf("expected b to be removed")
	}
	if got := h.LiveCount(); got != 2 {
		t.Fatalf("liveCount after remove = %d, want 2", got)
	}

	// Re-inserting must not reuse b's freed ID within this sequence since
	// the water-mark is monotonic; it lands past c.
	d := h.Insert("d")
	if d == b {
		t.Fatalf("freed id %d was reused immediately, want monotonic allocation", b)
	}
	if !h.Has(d) {
		t.Fatalf("expected d to be live")
	}
}

func TestRemoveSpecialIsNoop(t *testing.T) {
	h := New(testCfg())
	h.Remove(IDTrue)
	v, ok := h.Get(IDTrue)
	if !ok || v != true {
		t.Fatalf("removing a special slot must be a no-op, got %#v, %v", v, ok)
	}
}

func TestBorrowFrameNesting(t *testing.T) {
	h := New(testCfg())

	outer := h.PushBorrowFrame()
	a, err := h.AddBorrowedRef("a")
	if err != nil {
		t.Fatal(err)
	}

	inner := h.PushBorrowFrame()
	b, err := h.AddBorrowedRef("b")
	if err != nil {
		t.Fatal(err)
	}

	h.PopBorrowFrame(inner)
	h.PopBorrowFrame(outer)

	if h.borrowPtr != h.cfg.BorrowStackDepth+1 {
		t.Fatalf("borrow pointer = %d, want reset to %d", h.borrowPtr, h.cfg.BorrowStackDepth+1)
	}
	if _, ok := h.Get(a); ok {
		t.Fatalf("expected a (%d) to be cleared after popping frames", a)
	}
	if _, ok := h.Get(b); ok {
		t.Fatalf("expected b (%d) to be cleared after popping frames", b)
	}
}

func TestBorrowStackOverflow(t *testing.T) {
	cfg := testCfg()
	cfg.BorrowStackDepth = 3
	h := New(cfg)

	for i := 0; i < 3; i++ {
		if _, err := h.AddBorrowedRef(i); err != nil {
			t.Fatalf("unexpected error on ref %d: %v", i, err)
		}
	}
	if _, err := h.AddBorrowedRef("overflow"); !errors.Is(err, core.ErrBorrowStackOverflow) {
		t.Fatalf("expected ErrBorrowStackOverflow, got %v", err)
	}
}

func TestReservationScopeCoordination(t *testing.T) {
	h := New(testCfg())

	w := h.WaterMark()
	h.PushReservationScope(3)

	// A nested, non-return-value allocation goes through the normal
	// water-mark path and must not collide with the reserved block.
	mid := h.Insert("unrelated")
	if mid < w+3 {
		t.Fatalf("nested allocation %d landed inside the reserved block [%d,%d)", mid, w, w+3)
	}

	ids := make([]uint32, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := h.FillNextReserved(i)
		if err != nil {
			t.Fatalf("fillNextReserved(%d): %v", i, err)
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		if want := w + uint32(i); id != want {
			t.Fatalf("reserved id[%d] = %d, want %d", i, id, want)
		}
	}

	h.PopReservationScope()
	if _, err := h.FillNextReserved("overflow"); !errors.Is(err, core.ErrReservationExhausted) {
		t.Fatalf("expected ErrReservationExhausted with no active scope, got %v", err)
	}
}

func TestReservationScopeExhaustion(t *testing.T) {
	h := New(testCfg())
	h.PushReservationScope(1)
	if _, err := h.FillNextReserved("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.FillNextReserved("b"); !errors.Is(err, core.ErrReservationExhausted) {
		t.Fatalf("expected ErrReservationExhausted, got %v", err)
	}
}
