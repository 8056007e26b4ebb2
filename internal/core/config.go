// Package core holds configuration and interfaces shared across the bridge
// runtime: the heap, wire, dispatch and peer packages all depend on core,
// and core imports none of them.
package core

import "time"

// Config tunes the bridge runtime. All fields have sane zero-free defaults
// via DefaultConfig; a caller only needs to override what it cares about.
type Config struct {
	// BorrowStackDepth is the number of IDs available to the borrow stack
	// (slots 1..BorrowStackDepth). The spec fixes this at 127.
	BorrowStackDepth uint32

	// SpecialSlotCount is the number of reserved special slots following
	// the borrow range (undefined, null, true, false). The spec fixes
	// this at 4.
	SpecialSlotCount uint32

	// AllocatedFloor is the first ordinary heap ID, i.e.
	// BorrowStackDepth + SpecialSlotCount + 1. Derived, not configurable,
	// but kept on Config so callers can read it without reconstructing
	// the arithmetic.
	AllocatedFloor uint32

	// MaxReentryDepth bounds how many nested Evaluate messages the
	// dispatch loop will service recursively before raising a protocol
	// error. See DESIGN.md's Open Question decision.
	MaxReentryDepth int

	// CallTimeout bounds how long a single outbound peer call may block
	// on the transport before the call is abandoned.
	CallTimeout time.Duration
}

// DefaultConfig returns the configuration's standard fixed ranges.
func DefaultConfig() Config {
	return Config{
		BorrowStackDepth: 127,
		SpecialSlotCount: 4,
		AllocatedFloor:   132,
		MaxReentryDepth:  64,
		CallTimeout:      30 * time.Second,
	}
}
