// Package telemetry buffers per-dispatch-cycle trace events for later
// inspection by a devtools sidecar or a durable tracestore writer.
package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// maxEvents bounds a single cycle's buffered events.
const maxEvents = 1000

// maxDetailSize truncates an overlong detail string.
const maxDetailSize = 4096

// EventKind labels what a TraceEvent records.
type EventKind string

const (
	EventEvaluate   EventKind = "evaluate"
	EventRespond    EventKind = "respond"
	EventCallNative EventKind = "call_native"
	EventDropRef    EventKind = "drop_reference"
	EventError      EventKind = "error"
)

// TraceEvent is one recorded moment in the dispatch loop.
type TraceEvent struct {
	Kind   EventKind
	FnID   uint32
	Detail string
	Time   time.Time
}

// Recorder accumulates events for the current dispatch cycle. It is safe
// for concurrent use: a devtools sidecar may drain it from another
// goroutine while the dispatch loop keeps recording, even though the
// dispatch loop itself is single-threaded.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event, truncating an overlong detail and dropping the
// event entirely once maxEvents is reached for this cycle.
func (r *Recorder) Record(kind EventKind, fnID uint32, detail string) {
	if len(detail) > maxDetailSize {
		detail = detail[:maxDetailSize] + "...(truncated)"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) >= maxEvents {
		return
	}
	r.events = append(r.events, TraceEvent{Kind: kind, FnID: fnID, Detail: detail, Time: time.Now()})
}

// Drain returns every buffered event and resets the buffer, for a devtools
// sidecar or tracestore writer to consume one cycle's worth at a time.
func (r *Recorder) Drain() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// String renders a short human-readable summary, e.g. for a CLI dry-run.
func (e TraceEvent) String() string {
	return fmt.Sprintf("[%s] fn=%d %s", e.Kind, e.FnID, e.Detail)
}
