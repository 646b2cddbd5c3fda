package realtime

import (
	"testing"
	"time"
)

func drain(t *testing.T, ch <-chan Message, n int) []Message {
	t.Helper()
	var out []Message
	for i := 0; i < n; i++ {
		select {
		case m := <-ch:
			out = append(out, m)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d/%d", i+1, n)
		}
	}
	return out
}

func TestPublishDeliversToMatchingTopicSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe("alerts.new")
	defer unsub()

	bus.Publish("alerts.new", map[string]string{"hello": "world"})
	bus.Publish("servers.status", map[string]string{"ignored": "true"})

	got := drain(t, ch, 1)
	if got[0].Topic != "alerts.new" {
		t.Errorf("expected alerts.new, got %s", got[0].Topic)
	}
}

func TestSubscribeWithNoTopicsReceivesEverything(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	bus.Publish("logs.all", "a")
	bus.Publish("servers.status", "b")

	got := drain(t, ch, 2)
	if got[0].Topic != "logs.all" || got[1].Topic != "servers.status" {
		t.Errorf("expected both topics delivered in order, got %v", got)
	}
}

func TestSendDropsOldestWhenSubscriberBufferFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe("logs.all")
	defer unsub()

	for i := 0; i < subscriberBufferSize+5; i++ {
		bus.Publish("logs.all", i)
	}

	if bus.DroppedEventCount() == 0 {
		t.Error("expected at least one dropped event once the buffer overflowed")
	}

	msgs := drain(t, ch, subscriberBufferSize)
	foundLag := false
	for _, m := range msgs {
		if m.Lag {
			foundLag = true
			break
		}
	}
	if !foundLag {
		t.Error("expected at least one delivered message to carry the Lag marker")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe("alerts.new")
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected the channel to be closed after unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", bus.SubscriberCount())
	}
}
