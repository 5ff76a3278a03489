// Package events provides the synchronous signal bus that decouples content
// modules from the progression engine.
package events

import "sync"

// Handler receives the payload of a published signal.
type Handler func(payload int)

// Subscription identifies one registered handler so it can be removed later.
type Subscription uint64

// Bus is a named-signal dispatcher.
type Bus interface {
	Subscribe(signal Signal, handler Handler) Subscription
	Unsubscribe(signal Signal, sub Subscription)
	Publish(signal Signal, payload int)
}

type subscriber struct {
	id      Subscription
	handler Handler
}

// EventBus is the in-process Bus. Publish runs every handler on the calling
// goroutine, in subscription order, before it returns.
type EventBus struct {
	mu       sync.Mutex
	nextID   Subscription
	handlers map[Signal][]subscriber
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[Signal][]subscriber),
	}
}

// Subscribe registers handler for signal.
func (b *EventBus) Subscribe(signal Signal, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[signal] = append(b.handlers[signal], subscriber{id: b.nextID, handler: handler})
	return b.nextID
}

// Unsubscribe removes a handler. Unknown subscriptions are ignored.
func (b *EventBus) Unsubscribe(signal Signal, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.handlers[signal]
	for i, s := range current {
		if s.id != sub {
			continue
		}
		// Copy instead of reslicing in place: an in-flight Publish may hold the old slice.
		next := make([]subscriber, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, signal)
		} else {
			b.handlers[signal] = next
		}
		return
	}
}

// Publish invokes the handlers subscribed to signal when Publish was called.
// Handlers may publish, subscribe or unsubscribe; changes apply to the next Publish.
func (b *EventBus) Publish(signal Signal, payload int) {
	b.mu.Lock()
	snapshot := b.handlers[signal]
	b.mu.Unlock()

	for _, s := range snapshot {
		s.handler(payload)
	}
}

// SubscriberCount returns the number of handlers registered for signal.
func (b *EventBus) SubscriberCount(signal Signal) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[signal])
}
