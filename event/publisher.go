package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the channel capacity used by NewHub when size <= 0.
const DefaultBufferSize = 256

// Publisher is the fire-and-forget sink for progress events. Implementations
// must never block the caller.
type Publisher interface {
	Publish(e Event)
}

// PublisherFunc adapts an ordinary function to the Publisher interface.
type PublisherFunc func(e Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(e Event) { f(e) }

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(Event) {}

// Hub is a bounded asynchronous Publisher. Events are buffered in a channel;
// when the buffer is full the event is dropped and counted instead of blocking
// the publishing task.
type Hub struct {
	ch      chan Event
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewHub creates a Hub with the given buffer size.
func NewHub(size int) *Hub {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Hub{ch: make(chan Event, size)}
}

// Publish enqueues e without blocking. Events published after Close are dropped.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.ch <- e:
	default:
		h.dropped.Add(1)
	}
}

// Events returns the receive side of the hub. It is closed by Close.
func (h *Hub) Events() <-chan Event { return h.ch }

// Dropped returns how many events were discarded because the buffer was full
// or the hub was closed.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close stops accepting events and closes the channel. It is safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.ch)
}

// Sink consumes events drained from a Hub.
type Sink interface {
	Handle(e Event) error
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc func(e Event) error

// Handle implements Sink.
func (f SinkFunc) Handle(e Event) error { return f(e) }

// Drain delivers every event from events to all sinks until the channel is
// closed or ctx is done. Sink errors are reported to onErr (if non-nil) and do
// not stop delivery.
func Drain(ctx context.Context, events <-chan Event, onErr func(Event, error), sinks ...Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			for _, s := range sinks {
				if err := s.Handle(e); err != nil && onErr != nil {
					onErr(e, err)
				}
			}
		}
	}
}
