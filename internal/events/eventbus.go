package events

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 64

// EventBus delivers every published event to each subscriber's buffered
// channel. Publishing never blocks: a full subscriber buffer drops the event
// for that subscriber only.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	name string
	ch   chan Event
	// filter is nil to accept every type
	filter map[Type]bool
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a consumer. Only the listed types are delivered; none
// means all. The returned cancel func unsubscribes and closes the channel.
func (eb *EventBus) Subscribe(name string, buffer int, types ...Type) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	s := &subscriber{name: name, ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.filter = make(map[Type]bool, len(types))
		for _, t := range types {
			s.filter[t] = true
		}
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	id := eb.nextID
	eb.nextID++
	eb.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if _, ok := eb.subs[id]; ok {
				delete(eb.subs, id)
				close(s.ch)
			}
		})
	}
}

// TryPublish offers ev to every matching subscriber. It reports whether at
// least one subscriber accepted it.
func (eb *EventBus) TryPublish(ev Event) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return false
	}
	eb.published.Add(1)

	accepted := false
	for _, s := range eb.subs {
		if s.filter != nil && !s.filter[ev.Type] {
			continue
		}
		select {
		case s.ch <- ev:
			eb.delivered.Add(1)
			accepted = true
		default:
			eb.dropped.Add(1)
		}
	}
	return accepted
}

// Close closes every subscriber channel. Later publishes are ignored.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for id, s := range eb.subs {
		close(s.ch)
		delete(eb.subs, id)
	}
}

// GetStats returns a snapshot of the counters.
func (eb *EventBus) GetStats() EventBusStats {
	eb.mu.RLock()
	n := len(eb.subs)
	eb.mu.RUnlock()
	return EventBusStats{
		Published:   eb.published.Load(),
		Delivered:   eb.delivered.Load(),
		Dropped:     eb.dropped.Load(),
		Subscribers: n,
	}
}
