// Package events carries stage and pipeline progress notifications
// from the scheduler to its consumers: the plain-mode logger and the
// watch TUI.
package events

import (
	"sync"
)

// EventBus fans published events out to subscriber channels, either
// per topic or across all topics at once.
//
// Delivery is best-effort: the scheduler must never stall because a
// consumer is slow, so publishing to a full subscriber drops the event
// for that subscriber only.
type EventBus struct {
	mu        sync.RWMutex
	topicSubs map[string][]chan Event
	allSubs   []chan Event
	closed    bool
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		topicSubs: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events published to one topic.
// A bufSize at or below zero defaults to 256. Subscribing to a closed
// bus yields an already-closed channel.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := newSubChannel(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.topicSubs[topic] = append(b.topicSubs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := newSubChannel(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

func newSubChannel(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	return make(chan Event, bufSize)
}

// Publish delivers an event to the topic's subscribers and to every
// all-topic subscriber. Never blocks; full subscribers miss the event.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.topicSubs[topic] {
		offer(ch, event)
	}
	for _, ch := range b.allSubs {
		offer(ch, event)
	}
}

func offer(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		// Subscriber backed up; drop rather than stall the run.
	}
}

// Close shuts the bus down and closes every subscriber channel, which
// is how consumers learn the run is over. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.topicSubs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
