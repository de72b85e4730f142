// Package bus implements a named publish/subscribe bus for the risk
// pipeline. Delivery is at-most-once, unordered across topics, FIFO per
// (publisher, topic, subscriber). Payloads are opaque bytes — each
// processor owns its own topic's encode/decode.
package bus

import (
	"log"
	"sync"
)

// DefaultQueueSize is the bounded per-subscriber queue depth.
const DefaultQueueSize = 1024

// Bus is the interface every processor depends on. Both the in-process
// implementation and any external-broker-backed implementation satisfy it.
type Bus interface {
	Publish(topic string, payload []byte)
	Subscribe(topic string) *Subscription
	Unsubscribe(sub *Subscription)
	Close()
}

// Subscription is a single subscriber's bounded inbox for one topic.
type Subscription struct {
	Topic string
	ch    chan []byte
	bus   *InProcessBus
}

// C returns the receive channel. It is closed when the bus shuts down or
// the subscription is explicitly unsubscribed.
func (s *Subscription) C() <-chan []byte { return s.ch }

// InProcessBus is the default, always-available pub/sub implementation.
// It tolerates slow subscribers by dropping the oldest buffered message for
// that subscriber rather than blocking the publisher.
type InProcessBus struct {
	mu          sync.RWMutex
	subscribers map[string][]*Subscription
	queueSize   int
	logger      *log.Logger
	closed      bool

	dropsMu sync.Mutex
	drops   map[string]int64 // topic -> cumulative drop count, for logs and DropCount
}

// NewInProcessBus creates an in-process bus with the default bounded queue.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{
		subscribers: make(map[string][]*Subscription),
		queueSize:   DefaultQueueSize,
		logger:      log.New(log.Writer(), "[BUS] ", log.LstdFlags),
		drops:       make(map[string]int64),
	}
}

// Subscribe registers a new bounded inbox for the given topic.
func (b *InProcessBus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		Topic: topic,
		ch:    make(chan []byte, b.queueSize),
		bus:   b,
	}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *InProcessBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *InProcessBus) removeLocked(sub *Subscription) {
	subs := b.subscribers[sub.Topic]
	filtered := make([]*Subscription, 0, len(subs))
	found := false
	for _, s := range subs {
		if s != sub {
			filtered = append(filtered, s)
		} else {
			found = true
		}
	}
	b.subscribers[sub.Topic] = filtered
	// A subscription no longer registered was already closed by Close.
	if found {
		close(sub.ch)
	}
}

// Publish delivers payload to every subscriber of topic. If a subscriber's
// inbox is full, the oldest buffered message is dropped to make room —
// publishers are never blocked by a slow subscriber.
func (b *InProcessBus) Publish(topic string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers[topic] {
		b.sendOrDropOldest(sub, payload)
	}
}

func (b *InProcessBus) sendOrDropOldest(sub *Subscription, payload []byte) {
	select {
	case sub.ch <- payload:
		return
	default:
	}

	// Inbox full: evict the oldest buffered message, then retry once.
	select {
	case <-sub.ch:
		b.recordDrop(sub.Topic)
	default:
	}

	select {
	case sub.ch <- payload:
	default:
		// Another publisher raced us; give up silently rather than block.
		b.recordDrop(sub.Topic)
	}
}

func (b *InProcessBus) recordDrop(topic string) {
	b.dropsMu.Lock()
	b.drops[topic]++
	n := b.drops[topic]
	b.dropsMu.Unlock()
	if n%100 == 1 {
		b.logger.Printf("dropped oldest message for slow subscriber on %q (total drops=%d)", topic, n)
	}
}

// DropCount returns the cumulative number of dropped messages for a topic.
func (b *InProcessBus) DropCount(topic string) int64 {
	b.dropsMu.Lock()
	defer b.dropsMu.Unlock()
	return b.drops[topic]
}

// Close closes every outstanding subscription. Safe to call once at
// shutdown; further Publish calls are no-ops.
func (b *InProcessBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subscribers = make(map[string][]*Subscription)
}

var _ Bus = (*InProcessBus)(nil)
