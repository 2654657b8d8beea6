package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeSyncCompleted, Data: "x"})

	select {
	case e := <-ch:
		if e.Type != TypeSyncCompleted || e.Data != "x" {
			t.Fatalf("unexpected event: %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatalf("expected publish to stamp the event time")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // buffer full, dropped

	e := <-ch
	if e.Type != "a" {
		t.Fatalf("got %q, want first event", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected overflow event dropped, got %q", e.Type)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Must not panic on the closed channel.
	b.Publish(Event{Type: "a"})

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
}

func TestOnEventCallback(t *testing.T) {
	b := New()
	got := make(chan Event, 1)
	stop := OnEvent(context.Background(), b, 4, func(e Event) { got <- e })
	defer stop()

	b.Publish(Event{Type: TypeTargetAdded})
	select {
	case e := <-got:
		if e.Type != TypeTargetAdded {
			t.Fatalf("got %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("callback never ran")
	}
}
