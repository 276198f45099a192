// Package changebus implements the capability change bus (C6): three
// single-producer/multi-consumer topics (tools, prompts, resources) with
// best-effort, non-blocking fan-out.
package changebus

import "sync"

// Kind identifies which capability list changed.
type Kind string

const (
	KindTools     Kind = "tools"
	KindPrompts   Kind = "prompts"
	KindResources Kind = "resources"
)

// Event carries no payload beyond the source connection id: subscribers
// re-query the plugin on receipt rather than trust a payload.
type Event struct {
	Kind               Kind
	SourceConnectionID string
}

// Subscription is a disposable handle released on unsubscribe; the
// subscriber owns it and must release it on every exit path. Each send is
// guarded by the subscription's own mutex so a concurrent Close never
// races a fan-out into a send on a closed channel.
type Subscription struct {
	bus *Bus

	mu     sync.Mutex
	closed bool
	ch     chan Event
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

// C returns the channel to range over for events.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// send delivers event unless the subscription is closed or its buffer is
// full. Non-blocking, so holding the mutex across the send cannot stall a
// publisher behind a slow reader.
func (s *Subscription) send(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
	}
}

// Bus is a reentrancy-safe in-process pub/sub. Publishing never blocks on a
// slow subscriber: the subscriber simply misses the event instead.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new consumer and returns a Subscription. Delivery
// is in registration order.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{bus: b, ch: make(chan Event, 16)}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish fans out event to every current subscriber. Non-blocking: a
// subscriber whose buffer is full simply misses this event rather than
// stalling the publisher. Subscribers must not block inside the handler.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.send(event)
	}
}

// SubscriberCount reports the current number of subscriptions, for metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
