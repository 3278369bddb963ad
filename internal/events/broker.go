// Package events fans NewWave notifications out to any number of subscribers.
//
// Publishing never blocks: each subscriber owns a bounded buffer and an event
// that does not fit is dropped for that subscriber only. Subscribers see events
// in publish order and never receive events published before they subscribed.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
)

// DefaultBuffer is the per-subscriber buffer used when Subscribe is given 0.
const DefaultBuffer = 64

// NewWave is emitted once for every accepted wave.
type NewWave struct {
	Index     int                `json:"index"`
	From      waveledger.Address `json:"from"`
	Timestamp int64              `json:"timestamp"`
	Message   string             `json:"message"`
}

// FromRecord builds the notification for a freshly appended record.
func FromRecord(r waveledger.Record) NewWave {
	return NewWave{Index: r.Index, From: r.Waver, Timestamp: r.Timestamp, Message: r.Message}
}

// DropRecorder is an optional callback invoked when an event is dropped.
type DropRecorder func(subscriberID string)

// Broker is an in-process publish/subscribe hub for NewWave events.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	onDrop DropRecorder
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]*Subscription)}
}

// SetDropRecorder configures the callback for dropped events.
func (b *Broker) SetDropRecorder(fn DropRecorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscription is a single listener. Read events from C; call Close to unsubscribe.
type Subscription struct {
	ID      string
	C       <-chan NewWave
	ch      chan NewWave
	broker  *Broker
	dropped atomic.Uint64
	once    sync.Once
}

// Dropped returns how many events did not fit into this subscriber's buffer.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.ID)
	})
}

// Subscribe registers a listener with the given buffer size (0 = DefaultBuffer).
// Subscribing to a closed broker returns a subscription whose channel is already closed.
func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan NewWave, buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	return sub
}

// Publish delivers ev to every current subscriber without blocking.
// Callers must publish in append order; the broker preserves that order per subscriber.
func (b *Broker) Publish(ev NewWave) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(id)
			}
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later Publish calls are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}
