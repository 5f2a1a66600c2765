package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rapidaai/dialer/internal/logging"
)

func TestPublishDeliversToAllTopicSubscribers(t *testing.T) {
	bus := New(logging.Noop{})
	sub1 := bus.Subscribe("call/1")
	sub2 := bus.Subscribe("call/1")
	defer sub1.Close()
	defer sub2.Close()

	bus.Publish("call/1", "ringing")

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case evt := <-sub.Events():
			if evt.Payload != "ringing" {
				t.Fatalf("unexpected payload: %v", evt.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	bus := New(logging.Noop{})
	sub := bus.Subscribe("agent/a1")
	defer sub.Close()

	bus.Publish("agent/a2", "busy")

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected delivery across topics: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestOverflowDropsOldestAndCountsIt covers the spec's backpressure
// rule: a slow subscriber's bounded queue drops the oldest message on
// overflow rather than the newest, and records a counter.
func TestOverflowDropsOldestAndCountsIt(t *testing.T) {
	bus := New(logging.Noop{})
	bus.queueSize = 2
	sub := bus.Subscribe("supervisors")
	defer sub.Close()

	bus.Publish("supervisors", 1)
	bus.Publish("supervisors", 2)
	bus.Publish("supervisors", 3) // queue full at publish time, should evict "1"

	first := <-sub.Events()
	second := <-sub.Events()
	require.Equal(t, 2, first.Payload, "expected oldest event dropped")
	require.Equal(t, 3, second.Payload)
	require.Equal(t, uint64(1), sub.Overflow())
}

func TestCloseUnsubscribesAndClosesChannel(t *testing.T) {
	bus := New(logging.Noop{})
	sub := bus.Subscribe("queue/sales")
	require.Equal(t, 1, bus.SubscriberCount("queue/sales"), "expected 1 subscriber before close")

	sub.Close()
	require.Equal(t, 0, bus.SubscriberCount("queue/sales"), "expected 0 subscribers after close")

	_, ok := <-sub.Events()
	require.False(t, ok, "expected channel closed")
}
