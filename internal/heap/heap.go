// Package heap implements the slotted object heap: a slot map that gives
// stable numeric identities to JS values held by the native peer,
// partitioned into a borrow range, a special range, and an allocated range
// growing from a monotonic water-mark.
//
// The heap is not safe for concurrent use. The runtime is single-threaded
// cooperative; there is deliberately no locking here.
package heap

import (
	"fmt"

	"github.com/cryguy/ipcbridge/internal/core"
	"github.com/dustin/go-humanize"
)

// Reserved special slot IDs, in a fixed order.
const (
	IDUndefined uint32 = 128
	IDNull      uint32 = 129
	IDTrue      uint32 = 130
	IDFalse     uint32 = 131
)

// Frame is a saved borrow-stack pointer. Popping a frame clears every
// borrow-stack slot between the current pointer and the saved one.
type Frame struct {
	savedPtr uint32
}

// scope is a reservation scope: a block of IDs speculatively handed out by
// the peer as placeholders for return values.
type scope struct {
	start     uint32
	count     uint32
	nextIndex uint32
}

// Heap is the object heap. Zero value is not usable; construct with New.
type Heap struct {
	cfg core.Config

	slots map[uint32]any // allocated + borrow + special slots

	waterMark uint32
	freeList  []uint32

	borrowPtr uint32 // descends from cfg.BorrowStackDepth+1, bounded below by 1
	scopes    []*scope
}

// New creates a Heap with its four special slots pre-initialised. IDs
// partition into borrow/special/allocated ranges and ID 0 is never
// assigned.
func New(cfg core.Config) *Heap {
	h := &Heap{
		cfg:       cfg,
		slots:     make(map[uint32]any),
		waterMark: cfg.AllocatedFloor,
		borrowPtr: cfg.BorrowStackDepth + 1,
	}
	h.slots[IDUndefined] = core.Undefined{}
	h.slots[IDNull] = core.Null{}
	h.slots[IDTrue] = true
	h.slots[IDFalse] = false
	return h
}

// IsSpecial reports whether id names one of the four reserved special
// slots.
func IsSpecial(id uint32) bool {
	return id >= IDUndefined && id <= IDFalse
}

// IsBorrow reports whether id falls in the borrow range (1..BorrowStackDepth).
func (h *Heap) IsBorrow(id uint32) bool {
	return id >= 1 && id <= h.cfg.BorrowStackDepth
}

// Insert assigns the current water-mark as id, advances the water-mark,
// stores v, and returns the id. Freed IDs are never reused.
func (h *Heap) Insert(v any) uint32 {
	id := h.waterMark
	h.waterMark++
	h.slots[id] = v
	return id
}

// Get returns the value stored at id, including special and borrow-stack
// IDs. Returns false if nothing is stored there.
func (h *Heap) Get(id uint32) (any, bool) {
	v, ok := h.slots[id]
	return v, ok
}

// Remove clears the slot at id and pushes id onto the free list. A no-op
// for special slots (id < cfg.AllocatedFloor); borrow-stack slots are
// cleared only by popping their frame.
func (h *Heap) Remove(id uint32) {
	if id < h.cfg.AllocatedFloor {
		return
	}
	if _, ok := h.slots[id]; !ok {
		return
	}
	delete(h.slots, id)
	h.freeList = append(h.freeList, id)
}

// Has reports whether id is within the allocated range and not on the free
// list.
func (h *Heap) Has(id uint32) bool {
	if id < h.cfg.AllocatedFloor || id >= h.waterMark {
		return false
	}
	_, ok := h.slots[id]
	return ok
}

// LiveCount returns the number of live allocated (non-special, non-borrow)
// objects: water-mark minus free-list length minus the allocated floor.
func (h *Heap) LiveCount() int {
	return int(h.waterMark-h.cfg.AllocatedFloor) - len(h.freeList)
}

// AddBorrowedRef decrements the borrow-stack pointer, stores v there, and
// returns the new pointer. The pointer starts at BorrowStackDepth+1 and is
// bounded below by 1; reaching 1 without room for v is a borrow-stack
// overflow.
func (h *Heap) AddBorrowedRef(v any) (uint32, error) {
	if h.borrowPtr <= 1 {
		return 0, fmt.Errorf("%w: more than %d borrowed references active", core.ErrBorrowStackOverflow, h.cfg.BorrowStackDepth)
	}
	h.borrowPtr--
	h.slots[h.borrowPtr] = v
	return h.borrowPtr, nil
}

// PushBorrowFrame saves the current borrow-stack pointer.
func (h *Heap) PushBorrowFrame() Frame {
	return Frame{savedPtr: h.borrowPtr}
}

// PopBorrowFrame restores the borrow-stack pointer to f's saved value,
// clearing every slot between the current pointer and the saved one.
func (h *Heap) PopBorrowFrame(f Frame) {
	for id := h.borrowPtr; id < f.savedPtr; id++ {
		delete(h.slots, id)
	}
	h.borrowPtr = f.savedPtr
}

// PushReservationScope advances the water-mark by n and records a scope
// starting at the old water-mark. Scopes nest; the innermost is active.
func (h *Heap) PushReservationScope(n uint32) {
	s := &scope{start: h.waterMark, count: n}
	h.waterMark += n
	h.scopes = append(h.scopes, s)
}

// PopReservationScope removes the innermost reservation scope.
func (h *Heap) PopReservationScope() {
	if len(h.scopes) == 0 {
		return
	}
	h.scopes = h.scopes[:len(h.scopes)-1]
}

// FillNextReserved stores v at the innermost scope's next placeholder slot
// and advances its index. Fails if no scope is active or the scope is
// already full.
func (h *Heap) FillNextReserved(v any) (uint32, error) {
	if len(h.scopes) == 0 {
		return 0, fmt.Errorf("%w: fillNextReserved with no active scope", core.ErrReservationExhausted)
	}
	s := h.scopes[len(h.scopes)-1]
	if s.nextIndex >= s.count {
		return 0, fmt.Errorf("%w: reservation scope of size %d already full", core.ErrReservationExhausted, s.count)
	}
	id := s.start + s.nextIndex
	s.nextIndex++
	h.slots[id] = v
	return id, nil
}

// HasActiveScope reports whether a reservation scope is currently pushed.
// It does not check whether that scope has room left; FillNextReserved
// reports a full scope. Used by the dispatch loop to decide between
// FillNextReserved and a normal Insert.
func (h *Heap) HasActiveScope() bool {
	return len(h.scopes) > 0
}

// WaterMark returns the next unused allocated heap ID.
func (h *Heap) WaterMark() uint32 {
	return h.waterMark
}

// Stats summarises heap occupancy for diagnostics.
type Stats struct {
	WaterMark   uint32
	LiveCount   int
	FreeListLen int
	BorrowDepth uint32 // number of borrow-stack slots currently in use
}

// Stats returns a snapshot of current heap occupancy.
func (h *Heap) Stats() Stats {
	return Stats{
		WaterMark:   h.waterMark,
		LiveCount:   h.LiveCount(),
		FreeListLen: len(h.freeList),
		BorrowDepth: h.cfg.BorrowStackDepth + 1 - h.borrowPtr,
	}
}

// String renders a human-readable summary, e.g. for log lines, with the
// live-object count comma-grouped for readability.
func (s Stats) String() string {
	return fmt.Sprintf("heap: %s live objects, water-mark=%d, free=%d, borrow-depth=%d",
		humanize.Comma(int64(s.LiveCount)), s.WaterMark, s.FreeListLen, s.BorrowDepth)
}
