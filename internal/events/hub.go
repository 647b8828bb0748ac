// Package events fans inbound chat events out to subscribers.
package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lydakis/wcfx/internal/wire"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription is one subscriber's queue. C is closed when the subscription
// is cancelled or the hub is closed.
type Subscription struct {
	ID string
	C  <-chan wire.Event

	ch      chan wire.Event
	mu      sync.Mutex
	dropped uint64
}

// Dropped returns how many events were discarded because C was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Hub delivers each published event to every subscriber, in publish order.
// Delivery is best effort: a subscriber whose queue is full loses the event
// rather than stalling the ingestion loop.
type Hub struct {
	Logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Subscribe registers a subscriber with a queue of buffer events. The
// returned function cancels it and is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (*Subscription, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan wire.Event, buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return sub, func() {}
	}
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger().Debug("event subscriber added", "subscriber", sub.ID)
	return sub, func() { h.unsubscribe(sub.ID) }
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(sub.ch)
		h.logger().Debug("event subscriber removed", "subscriber", id, "dropped", sub.Dropped())
	}
}

// Publish hands ev to every subscriber without blocking. It has the
// session.Handler signature.
func (h *Hub) Publish(ev wire.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.mu.Lock()
			sub.dropped++
			n := sub.dropped
			sub.mu.Unlock()
			h.logger().Warn("event subscriber queue full, dropping event",
				"subscriber", sub.ID, "msg_id", ev.ID, "dropped", n)
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close cancels every subscription. Later Subscribe calls get an already
// closed queue.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
}
