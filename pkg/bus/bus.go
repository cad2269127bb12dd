package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmflow/swarmflow/pkg/logger"
)

// EventBus fans coordination events out to subscribers. Publish never
// blocks: a subscriber that falls behind loses events rather than stalling
// the kernel.
type EventBus struct {
	subscribers map[int]chan Event
	nextID      int
	dropped     atomic.Uint64
	closed      bool
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
	}
}

// Publish delivers evt to every subscriber. Missing timestamps are filled
// in. No-op after Close.
func (eb *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}

	for id, ch := range eb.subscribers {
		select {
		case ch <- evt:
		default:
			eb.dropped.Add(1)
			logger.WarnCF("bus", "Subscriber full, event dropped", map[string]any{
				"subscriber": id,
				"type":       string(evt.Type),
			})
		}
	}
}

// Subscribe registers a buffered subscription. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (eb *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	ch := make(chan Event, buffer)
	if eb.closed {
		close(ch)
		eb.mu.Unlock()
		return ch, func() {}
	}
	eb.subscribers[id] = ch
	eb.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			eb.mu.Lock()
			if _, ok := eb.subscribers[id]; ok {
				delete(eb.subscribers, id)
				close(ch)
			}
			eb.mu.Unlock()
		})
	}
	return ch, cancel
}

// Next returns the next event from ch, or false when the context is
// cancelled or the subscription is closed.
func Next(ctx context.Context, ch <-chan Event) (Event, bool) {
	select {
	case evt, ok := <-ch:
		return evt, ok
	case <-ctx.Done():
		return Event{}, false
	}
}

// Dropped reports how many events were discarded due to full subscribers.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for id, ch := range eb.subscribers {
		delete(eb.subscribers, id)
		close(ch)
	}
}
