package testutil

import (
	"sync"

	"github.com/hupe1980/agentpack/event"
)

// Recorder is an event.Publisher that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Publish implements event.Publisher.
func (r *Recorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// OfType returns the recorded events of type typ in publish order.
func (r *Recorder) OfType(typ event.Type) []event.Event {
	var out []event.Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of type typ were recorded.
func (r *Recorder) Count(typ event.Type) int { return len(r.OfType(typ)) }
