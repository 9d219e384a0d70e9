package pipeline

import (
	"sync"
	"sync/atomic"
)

// EventHandler consumes detection events synchronously.
type EventHandler interface {
	OnDetections(event *DetectionEvent)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(event *DetectionEvent)

func (f EventHandlerFunc) OnDetections(event *DetectionEvent) { f(event) }

// EventBus provides pub/sub for detection events. The session publishes
// once per processed frame; the ledger writer and the websocket hub are
// independent subscribers.
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
	dropped     atomic.Uint64
}

type eventSubscription struct {
	channel chan *DetectionEvent
	handler EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for detection events.
// Returns an unsubscribe function.
func (b *EventBus) Subscribe(handler EventHandler) func() {
	sub := &eventSubscription{handler: handler}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a buffered channel of detection events and
// an unsubscribe function. A full channel drops events rather than
// blocking the publisher.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan *DetectionEvent, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *DetectionEvent, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish delivers an event to all subscribers. Handlers run
// synchronously to preserve frame ordering; channel subscribers that
// cannot keep up lose the event.
func (b *EventBus) Publish(event *DetectionEvent) {
	if event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.handler != nil {
			sub.handler.OnDetections(event)
		} else if sub.channel != nil {
			select {
			case sub.channel <- event:
			default:
				b.dropped.Add(1)
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many events full channel subscribers have missed.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close unsubscribes all subscribers and closes their channels.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
