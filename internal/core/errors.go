package core

import "errors"

// Sentinel errors raised by the bridge runtime. All are fatal and
// non-resumable.
var (
	// ErrProtocolViolation covers unknown message types, unknown type
	// markers, unknown cached type IDs, unknown function IDs, a fresh
	// type ID that fails descriptor parsing, and leftover bytes after a
	// fully consumed operation.
	ErrProtocolViolation = errors.New("ipcbridge: protocol violation")

	// ErrBorrowStackOverflow is raised when more than BorrowStackDepth
	// borrowed references are active simultaneously in one outbound call.
	ErrBorrowStackOverflow = errors.New("ipcbridge: borrow stack overflow")

	// ErrReservationExhausted is raised by fillNextReserved with no
	// active scope, or a scope whose nextIndex has reached its count.
	ErrReservationExhausted = errors.New("ipcbridge: reservation scope exhausted")

	// ErrInvalidResultVariant is raised encoding a Result type from a
	// value that is neither ok-shaped nor err-shaped.
	ErrInvalidResultVariant = errors.New("ipcbridge: invalid result variant")
)
