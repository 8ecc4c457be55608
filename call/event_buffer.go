package call

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventBuffer holds platform events that arrive before the orchestrator is
// ready to handle them (cold start from a locked or closed application).
//
// The buffer is bounded; when full, the oldest event is dropped so that the
// most recent user intent (for example answering from the lock screen) is kept.
type EventBuffer struct {
	events   []PlatformEvent
	capacity int
	ready    bool
	// replaying keeps new events queued behind the ones being replayed
	replaying bool
	mu        sync.Mutex
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBuffer{capacity: capacity}
}

// Offer buffers ev if the buffer is not ready yet.
// It returns true when the caller should dispatch ev itself.
func (b *EventBuffer) Offer(ev PlatformEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready && !b.replaying {
		return true
	}

	if len(b.events) == b.capacity {
		dropped := b.events[0]
		b.events = b.events[1:]
		logrus.WithFields(logrus.Fields{
			"function": "EventBuffer.Offer",
			"kind":     dropped.Kind,
			"call_id":  dropped.CallID,
			"capacity": b.capacity,
		}).Warn("Event buffer full, dropping oldest platform event")
	}
	b.events = append(b.events, ev)

	logrus.WithFields(logrus.Fields{
		"function": "EventBuffer.Offer",
		"kind":     ev.Kind,
		"call_id":  ev.CallID,
		"buffered": len(b.events),
	}).Debug("Platform event buffered until ready")

	return false
}

// MarkReady switches the buffer to pass-through and returns the buffered
// events in arrival order. Subsequent calls return nil.
//
// While the returned events are being replayed, newly offered events are
// still queued; the caller drains them with ReplayNext until it returns nil.
func (b *EventBuffer) MarkReady() []PlatformEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return nil
	}
	b.ready = true
	out := b.events
	b.events = nil
	b.replaying = len(out) > 0
	return out
}

// ReplayNext returns events that arrived during replay. When none remain it
// ends replay mode and returns nil.
func (b *EventBuffer) ReplayNext() []PlatformEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		b.replaying = false
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// IsReady reports whether MarkReady was called.
func (b *EventBuffer) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
