package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Envelope is what a subscriber actually receives. Lagged is nonzero
// exactly once, on the first successful receive after one or more
// events were dropped, and reports how many were lost; Event is nil
// on a Lagged-only envelope.
type Envelope struct {
	Event  *DomainEvent
	Lagged int
}

const defaultQueueSize = 256

type subscriber struct {
	id      string
	ch      chan Envelope
	dropped atomic.Int64
}

// Bus is the Event Bus (C10). It always uses the framebus DropNew
// policy: a full subscriber queue drops the new event rather than
// blocking the publisher or evicting older, un-delivered ones, so
// subscribers see events in publish order modulo the gaps a Lagged
// signal reports.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	log  *zap.SugaredLogger
}

// NewBus builds an empty Bus. Subscribers get a queue of
// defaultQueueSize (256) unless overridden per-call by SubscribeSized.
func NewBus(log *zap.SugaredLogger) *Bus {
	return &Bus{subs: make(map[string]*subscriber), log: log}
}

// Subscribe registers a new subscriber and returns its receive channel
// and an unsubscribe func. id must be unique; a duplicate id replaces
// the previous subscriber under that id (its channel is closed).
func (b *Bus) Subscribe(id string) (<-chan Envelope, func()) {
	return b.SubscribeSized(id, defaultQueueSize)
}

// SubscribeSized is Subscribe with an explicit queue size, used by
// tests to exercise the drop path without publishing 256 events.
func (b *Bus) SubscribeSized(id string, queueSize int) (<-chan Envelope, func()) {
	sub := &subscriber{id: id, ch: make(chan Envelope, queueSize)}

	b.mu.Lock()
	if old, exists := b.subs[id]; exists {
		close(old.ch)
	}
	b.subs[id] = sub
	b.mu.Unlock()

	return sub.ch, func() { b.unsubscribe(id, sub) }
}

func (b *Bus) unsubscribe(id string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.subs[id]; ok && current == sub {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish broadcasts ev to every subscriber. It never blocks: a
// subscriber whose queue is full has the event counted against its
// dropped total instead of delivered, and learns about it via a
// synthetic Lagged envelope sent ahead of its next successful receive.
func (b *Bus) Publish(ev DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev DomainEvent) {
	if n := sub.dropped.Load(); n > 0 {
		select {
		case sub.ch <- Envelope{Lagged: int(n)}:
			sub.dropped.Add(-n)
		default:
			sub.dropped.Add(1)
			return
		}
	}

	e := ev
	select {
	case sub.ch <- Envelope{Event: &e}:
	default:
		sub.dropped.Add(1)
		if b.log != nil {
			b.log.Debugw("events: dropping event for lagging subscriber", "subscriber", sub.id, "type", ev.Type)
		}
	}
}

// SubscriberCount reports the number of currently registered
// subscribers, for /healthz and metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
