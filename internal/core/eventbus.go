package core

import (
	"sync"
	"sync/atomic"
)

// EventType says which part of the state changed.
type EventType string

const (
	ColorChangedEvent   EventType = "color_changed"
	PrimaryChangedEvent EventType = "primary_changed"
)

// Event carries the full state after the change and the input that caused it.
type Event struct {
	Type   EventType
	Source Source
	State  Snapshot
}

// Subscription receives events on C until Close.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	types   map[EventType]bool
	bus     *EventBus
	once    sync.Once
	dropped atomic.Uint64
}

// Dropped counts events lost because C was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription and closes C. It is safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs, s)
		close(s.ch)
	})
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// EventBus fans state changes out to subscribers. Publishers never block:
// a subscriber that is not keeping up loses events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers for the given types, or all types when none are
// given. buffer is the capacity of C.
func (eb *EventBus) Subscribe(buffer int, types ...EventType) *Subscription {
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: eb}
	if len(types) > 0 {
		s.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	eb.mu.Lock()
	eb.subs[s] = struct{}{}
	eb.mu.Unlock()
	return s
}

// Publish delivers ev to every interested subscriber.
func (eb *EventBus) Publish(ev Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for s := range eb.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}
