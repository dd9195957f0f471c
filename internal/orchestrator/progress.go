package orchestrator

import (
	"fmt"

	"github.com/cratelab/painter/internal/crates"
)

// Status of one work item as it moves through a phase.
type Status int

const (
	StatusWorking Status = iota
	StatusDone
	StatusFailed
)

// Event is one progress update emitted by a worker.
type Event struct {
	Crate   crates.Crate
	Phase   string
	Status  Status
	Message string
}

// Reporter fans progress events out through a buffered channel.
type Reporter struct {
	ch chan Event
}

// NewReporter creates a Reporter with a buffered channel of size 64.
func NewReporter() *Reporter {
	return &Reporter{ch: make(chan Event, 64)}
}

// Emit sends a progress event in a non-blocking fashion. If the channel is
// full, the event is dropped; progress is advisory.
func (r *Reporter) Emit(event Event) {
	select {
	case r.ch <- event:
	default:
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (r *Reporter) Subscribe() <-chan Event {
	return r.ch
}

// Close closes the progress event channel.
func (r *Reporter) Close() {
	close(r.ch)
}

// Format renders an event as a human-readable status line.
func Format(event Event) string {
	switch event.Status {
	case StatusWorking:
		return fmt.Sprintf("  ● %s %s...", event.Phase, event.Crate)
	case StatusDone:
		return fmt.Sprintf("  ✓ %s %s", event.Phase, event.Crate)
	case StatusFailed:
		return fmt.Sprintf("  ✗ %s %s: %s", event.Phase, event.Crate, event.Message)
	default:
		return fmt.Sprintf("  ? %s %s", event.Phase, event.Crate)
	}
}
