package pubsub

import (
	"sync"

	"messenger-service/internal/observability"
)

// subscriptionBuffer bounds how far a slow subscriber may lag before events
// are dropped for it.
const subscriptionBuffer = 32

// Event is a published payload tagged with its topic.
type Event struct {
	Topic   string
	Payload any
}

// Bus is an in-process topic-keyed publish/subscribe fan-out. Publishing is
// fire-and-forget: it never blocks on a subscriber and never fails.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription is a registered listener over one or more topics.
type Subscription struct {
	bus    *Bus
	topics []string
	ch     chan Event
	once   sync.Once
}

// C returns the subscription's event stream. The channel is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for _, topic := range s.topics {
			if set, ok := s.bus.subs[topic]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(s.bus.subs, topic)
				}
			}
		}
		close(s.ch)
	})
}

// Subscribe registers a listener for the given topics.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		bus:    b,
		topics: topics,
		ch:     make(chan Event, subscriptionBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		if _, ok := b.subs[topic]; !ok {
			b.subs[topic] = make(map[*Subscription]struct{})
		}
		b.subs[topic][sub] = struct{}{}
	}
	return sub
}

// Publish delivers the payload to every current subscriber of the topic.
// Subscribers whose buffer is full miss the event; the drop is counted.
func (b *Bus) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}

	// Sends happen under the read lock so Close cannot close a channel with a
	// send in flight. Sends are non-blocking, so the lock is held briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()

	observability.IncBusEventPublished(topic)
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- event:
		default:
			observability.IncBusEventDropped(topic)
		}
	}
}
