// Package realtime implements Component I of spec.md §2/§4.I: topic-based
// real-time fan-out to in-process subscribers (the websocket Hub) and,
// via internal/nats, to other processes. Grounded on
// internal/events.Bus (subscription-by-target, buffered per-subscriber
// channel, backpressure-then-drop) fused with internal/server.Hub
// (websocket client registry). The teacher retries-then-drops the new
// event; spec.md §4.I instead requires dropping the oldest queued event
// and marking the subscriber as lagging, so sendWithBackpressure here is
// a drop-oldest ring rather than a bounded retry loop.
package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/telemetry"
)

// Message is the envelope delivered to every subscriber, the JSON DTO
// mirror spec.md §4.I calls for ("JSON payloads mirroring the DTOs of
// §6").
type Message struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sentAt"`
	Lag     bool        `json:"lag,omitempty"`
}

const subscriberBufferSize = 256

type subscription struct {
	id      uint64
	topics  map[string]bool
	ch      chan Message
	lagging int32 // atomic bool
}

func (s *subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	return s.topics[topic]
}

// Bus is the process-local topic fan-out. It implements the narrow
// Publisher interface (`Publish(topic string, payload interface{})`)
// shared by internal/execution, internal/heartbeat, internal/ingestion,
// and internal/alerts.
type Bus struct {
	mu            sync.RWMutex
	subs          map[uint64]*subscription
	nextID        uint64
	droppedEvents uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a new subscriber for the given topics (nil/empty
// means every topic) and returns its receive channel and an unsubscribe
// function.
func (b *Bus) Subscribe(topics ...string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[t] = true
	}
	sub := &subscription{id: id, topics: topicSet, ch: make(chan Message, subscriberBufferSize)}
	b.subs[id] = sub
	telemetry.SetWebsocketClients(len(b.subs))

	return sub.ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
	telemetry.SetWebsocketClients(len(b.subs))
}

// Publish fans payload out to every subscriber whose topic filter
// matches. Satisfies the Publisher interface.
func (b *Bus) Publish(topic string, payload interface{}) {
	msg := Message{Topic: topic, Payload: payload, SentAt: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.wants(topic) {
			b.send(sub, msg)
		}
	}
}

// send delivers msg to sub, dropping the oldest queued message and
// marking the subscriber lagging if its buffer is full, per spec.md
// §4.I's "best-effort... oldest events are dropped and a Lag marker is
// sent; no event is ever blocked on slow consumers".
func (b *Bus) send(sub *subscription, msg Message) {
	if atomic.CompareAndSwapInt32(&sub.lagging, 1, 0) {
		msg.Lag = true
	}
	select {
	case sub.ch <- msg:
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}
	atomic.StoreInt32(&sub.lagging, 1)
	atomic.AddUint64(&b.droppedEvents, 1)
	telemetry.RecordWebsocketDropped(msg.Topic)

	select {
	case sub.ch <- msg:
	default:
	}
}

// DroppedEventCount returns the total number of events dropped across
// all subscribers, exposed via internal/telemetry.
func (b *Bus) DroppedEventCount() uint64 {
	return atomic.LoadUint64(&b.droppedEvents)
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
