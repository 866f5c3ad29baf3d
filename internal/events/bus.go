package events

import (
	"sync"

	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/pkg/debug"
)

// subscriberBuffer is the per-observer event queue depth. A subscriber that
// falls further behind than this loses events; delivery is at-most-once.
const subscriberBuffer = 256

// Bus broadcasts telemetry events to every subscribed observer. Publishing
// never blocks: a slow observer's queue fills and overflowing events are
// dropped for that observer only.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan models.Event
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]chan models.Event),
	}
}

// Subscribe registers an observer and returns its event channel. The channel
// is closed by Unsubscribe.
func (b *Bus) Subscribe(id string) <-chan models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		return ch
	}

	ch := make(chan models.Event, subscriberBuffer)
	b.subscribers[id] = ch
	debug.Info("Observer %s subscribed, total observers: %d", id, len(b.subscribers))
	return ch
}

// Unsubscribe removes an observer and closes its channel
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
		debug.Info("Observer %s unsubscribed, total observers: %d", id, len(b.subscribers))
	}
}

// Publish fans the event out to all current observers without blocking
func (b *Bus) Publish(event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			debug.Warning("Observer %s queue full, dropping %s event", id, event.Type)
		}
	}
}

// SubscriberCount returns the number of connected observers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
