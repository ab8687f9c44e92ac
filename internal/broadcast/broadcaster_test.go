package broadcast

import (
	"fmt"
	"testing"
	"time"

	"wagate/internal/logging"
	"wagate/internal/provider"
)

func TestBroadcaster_PublishDeliversInOrder(t *testing.T) {
	b := New(WithLogger(logging.Nop()))
	sub := b.Subscribe("alice")
	defer b.Unsubscribe(sub)

	b.Publish("alice", provider.QrEvent{Code: "qr-1"})
	b.Publish("alice", provider.AuthenticatedEvent{})
	b.Publish("alice", provider.ReadyEvent{})

	want := []string{"qr", "authenticated", "ready"}
	for i, kind := range want {
		select {
		case ev := <-sub.C:
			if ev.Kind() != kind {
				t.Errorf("Event %d: expected %s, got %s", i, kind, ev.Kind())
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for event %d (%s)", i, kind)
		}
	}
}

func TestBroadcaster_FanOutToAllSubscribers(t *testing.T) {
	b := New(WithLogger(logging.Nop()))
	first := b.Subscribe("alice")
	second := b.Subscribe("alice")
	defer b.Unsubscribe(first)
	defer b.Unsubscribe(second)

	b.Publish("alice", provider.DisconnectedEvent{Reason: "logged out"})

	for i, sub := range []*Subscription{first, second} {
		select {
		case ev := <-sub.C:
			if ev.Kind() != "disconnected" {
				t.Errorf("Subscriber %d: expected disconnected, got %s", i, ev.Kind())
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d did not receive the event", i)
		}
	}
}

func TestBroadcaster_AccountIsolation(t *testing.T) {
	b := New(WithLogger(logging.Nop()))
	alice := b.Subscribe("alice")
	bob := b.Subscribe("bob")
	defer b.Unsubscribe(alice)
	defer b.Unsubscribe(bob)

	b.Publish("alice", provider.ReadyEvent{})

	select {
	case ev := <-alice.C:
		if ev.Kind() != "ready" {
			t.Errorf("Expected ready, got %s", ev.Kind())
		}
	case <-time.After(time.Second):
		t.Fatal("Alice did not receive her event")
	}

	select {
	case ev := <-bob.C:
		t.Errorf("Bob received Alice's event: %s", ev.Kind())
	default:
	}
}

func TestBroadcaster_PublishWithNoSubscribersIsNoOp(t *testing.T) {
	b := New(WithLogger(logging.Nop()))
	// Must not panic or block.
	b.Publish("nobody", provider.ReadyEvent{})
}

func TestBroadcaster_SlowSubscriberIsPruned(t *testing.T) {
	b := New(WithLogger(logging.Nop()))
	slow := b.Subscribe("alice")
	fast := b.Subscribe("alice")

	// Overflow the slow subscriber's buffer while draining the healthy one
	// after every publish so only the slow one falls behind.
	fastCount := 0
	for i := 0; i <= subscriberBuffer; i++ {
		b.Publish("alice", provider.LoadingEvent{Percent: i, Message: fmt.Sprintf("step %d", i)})
		select {
		case <-fast.C:
			fastCount++
		case <-time.After(time.Second):
			t.Fatalf("Fast subscriber missed event %d", i)
		}
	}

	if got := b.SubscriberCount("alice"); got != 1 {
		t.Errorf("Expected 1 remaining subscriber, got %d", got)
	}

	// The pruned channel is closed after its buffered events drain.
	drained := 0
	for range slow.C {
		drained++
	}
	if drained != subscriberBuffer {
		t.Errorf("Expected %d buffered events before close, got %d", subscriberBuffer, drained)
	}

	if fastCount != subscriberBuffer+1 {
		t.Errorf("Expected %d events for fast subscriber, got %d", subscriberBuffer+1, fastCount)
	}
	b.Unsubscribe(fast)
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	b := New(WithLogger(logging.Nop()))
	sub := b.Subscribe("alice")

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	if got := b.SubscriberCount("alice"); got != 0 {
		t.Errorf("Expected 0 subscribers, got %d", got)
	}

	if _, ok := <-sub.C; ok {
		t.Error("Expected channel to be closed after unsubscribe")
	}
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(WithLogger(logging.Nop()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.Publish("alice", provider.ReadyEvent{})
		}
	}()

	for i := 0; i < 50; i++ {
		sub := b.Subscribe("alice")
		b.Unsubscribe(sub)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publisher goroutine did not finish")
	}
}
