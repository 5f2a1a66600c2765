// Package eventbus implements §4.12 EventBus: typed best-effort pub/sub
// over topic groups (call/{id}, agent/{id}, campaign/{id}, queue/{name},
// supervisors), with bounded drop-oldest subscriber queues. The
// buffered-channel-plus-non-blocking-send idiom is carried over from the
// teacher's baseStreamer input/output channels
// (internal/channel/webrtc/base_streamer.go), adapted here to drop the
// oldest queued message on overflow instead of the newest, per spec.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/rapidaai/dialer/internal/logging"
)

// DefaultQueueSize is the per-subscriber buffered channel capacity.
const DefaultQueueSize = 64

// Event is one published message.
type Event struct {
	Topic   string
	Payload interface{}
}

// Subscription is a long-lived per-topic receive handle. Callers range
// over Events until Close is called or the bus is closed.
type Subscription struct {
	id       uint64
	topic    string
	ch       chan Event
	overflow *uint64
	bus      *Bus
}

// Events returns the channel to range over.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Overflow returns how many messages this subscription has dropped due
// to a full queue.
func (s *Subscription) Overflow() uint64 { return atomic.LoadUint64(s.overflow) }

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

type subscriber struct {
	sub *Subscription
}

// Bus is an in-process publish/subscribe fan-out keyed by topic string.
// Delivery is best-effort, at-most-once, and in-order per subscriber;
// there is no persistence or replay.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	logger      logging.Logger
	nextID      uint64
	queueSize   int
}

func New(logger logging.Logger) *Bus {
	return &Bus{subscribers: make(map[string][]*subscriber), logger: logger, queueSize: DefaultQueueSize}
}

// Subscribe registers a new subscription on topic with the bus's default
// queue size.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	overflow := new(uint64)
	sub := &Subscription{id: b.nextID, topic: topic, ch: make(chan Event, b.queueSize), overflow: overflow, bus: b}
	b.subscribers[topic] = append(b.subscribers[topic], &subscriber{sub: sub})
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subscribers[sub.topic]
	for i, s := range list {
		if s.sub.id == sub.id {
			b.subscribers[sub.topic] = append(list[:i], list[i+1:]...)
			close(sub.ch)
			break
		}
	}
	if len(b.subscribers[sub.topic]) == 0 {
		delete(b.subscribers, sub.topic)
	}
}

// Publish fans payload out to every subscriber of topic. A subscriber
// whose queue is full has its oldest queued event dropped (counted in
// Overflow) to make room for the new one, rather than blocking the
// publisher or dropping the new event.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	subs := append([]*subscriber(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	evt := Event{Topic: topic, Payload: payload}
	for _, s := range subs {
		select {
		case s.sub.ch <- evt:
		default:
			select {
			case <-s.sub.ch:
				atomic.AddUint64(s.sub.overflow, 1)
			default:
			}
			select {
			case s.sub.ch <- evt:
			default:
				b.logger.Warnf("eventbus: dropped event on topic %s after eviction attempt", topic)
			}
		}
	}
}

// SubscriberCount reports how many subscriptions are active on topic,
// for diagnostics/tests.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
