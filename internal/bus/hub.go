package bus

import (
	"sync"
	"time"
)

const defaultSubscriberBuffer = 64

// Hub stores recent events and fans new ones out to subscribers.
type Hub struct {
	mu       sync.Mutex
	capacity int
	buffer   []Event
	nextSeq  uint64
	subs     map[int]chan Event
	nextSub  int
	closed   bool
}

// NewHub constructs a hub retaining up to capacity recent events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		capacity: capacity,
		subs:     make(map[int]chan Event),
	}
}

// Publish appends the event to the ring and delivers it to every subscriber.
// Delivery is best-effort: when a subscriber's channel is full its oldest
// undelivered event is dropped to make room.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)

	for _, ch := range h.subs {
		for {
			select {
			case ch <- evt:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release the subscription; the channel is closed on cancel and on
// hub close.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, defaultSubscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Tail returns up to limit most recent events without blocking.
func (h *Hub) Tail(limit int) []Event {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.buffer) {
		limit = len(h.buffer)
	}
	events := make([]Event, limit)
	copy(events, h.buffer[len(h.buffer)-limit:])
	return events
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
