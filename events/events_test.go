package events

import (
	"testing"
	"time"

	"chaincore/types"
)

func importEvent(tag string) ChainEvent {
	hash := types.HashBytes([]byte(tag))
	return NewImportNotification(hash, types.Header{Number: 1}, true, nil, []types.Hash{hash})
}

func finalityEvent(tag string) ChainEvent {
	hash := types.HashBytes([]byte(tag))
	return NewFinalityNotification(hash, types.Header{Number: 1}, []types.Hash{hash}, nil)
}

func recv(t *testing.T, ch <-chan ChainEvent) ChainEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while expecting an event")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSubscribePublishReceive(t *testing.T) {
	bus := NewEventBus(4)
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	sent := importEvent("block-a")
	bus.Publish(sent)

	got := recv(t, ch)
	if got.Type() != EventBlockImported {
		t.Errorf("expected %s, got %s", EventBlockImported, got.Type())
	}
	if got.BlockHash() != sent.BlockHash() {
		t.Errorf("expected hash %s, got %s", sent.BlockHash().Short(), got.BlockHash().Short())
	}
	imp, ok := got.(*ImportNotification)
	if !ok {
		t.Fatalf("expected import notification, got %T", got)
	}
	if !imp.IsNewBest() || len(imp.Enacted()) != 1 {
		t.Error("notification payload lost in transit")
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	bus := NewEventBus(8)
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	tags := []string{"b1", "b2", "b3"}
	for _, tag := range tags {
		bus.Publish(importEvent(tag))
	}
	for _, tag := range tags {
		if recv(t, ch).BlockHash() != types.HashBytes([]byte(tag)) {
			t.Fatalf("events delivered out of order at %s", tag)
		}
	}
}

func TestSubscribeFilter(t *testing.T) {
	bus := NewEventBus(4)
	id, ch := bus.Subscribe(EventBlockFinalized)
	defer bus.Unsubscribe(id)

	bus.Publish(importEvent("ignored"))
	bus.Publish(finalityEvent("wanted"))

	got := recv(t, ch)
	if got.Type() != EventBlockFinalized {
		t.Errorf("filter leaked event type %s", got.Type())
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra event: %s", extra.Type())
	default:
	}
}

func TestSlowSubscriberEvicted(t *testing.T) {
	bus := NewEventBus(2)
	slowID, slowCh := bus.Subscribe()
	fastID, fastCh := bus.Subscribe()
	defer bus.Unsubscribe(fastID)

	// Two events fill the slow queue; the third evicts the subscriber.
	for _, tag := range []string{"e1", "e2", "e3"} {
		bus.Publish(importEvent(tag))
		recv(t, fastCh)
	}

	if bus.HasSubscriber(slowID) {
		t.Error("overflowing subscriber should have been evicted")
	}
	if !bus.HasSubscriber(fastID) {
		t.Error("keeping-up subscriber must survive")
	}

	// The evicted channel drains its queued events, then closes.
	drained := 0
	for range slowCh {
		drained++
	}
	if drained != 2 {
		t.Errorf("expected 2 queued events before close, got %d", drained)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(4)
	id, ch := bus.Subscribe()

	if !bus.Unsubscribe(id) {
		t.Fatal("unsubscribe reported failure for live subscriber")
	}
	if bus.Unsubscribe(id) {
		t.Error("second unsubscribe should report false")
	}
	if bus.GetTotalSubscriptions() != 0 {
		t.Errorf("expected 0 subscriptions, got %d", bus.GetTotalSubscriptions())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestConsumeSurvivesPanickingHandler(t *testing.T) {
	bus := NewEventBus(4)
	id, ch := bus.Subscribe()

	seen := make(chan types.Hash, 4)
	Consume("test-consumer", ch, func(ev ChainEvent) {
		if ev.BlockHash() == types.HashBytes([]byte("boom")) {
			panic("handler exploded")
		}
		seen <- ev.BlockHash()
	})

	bus.Publish(importEvent("ok"))
	select {
	case h := <-seen:
		if h != types.HashBytes([]byte("ok")) {
			t.Errorf("unexpected hash %s", h.Short())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handled event")
	}

	bus.Publish(importEvent("boom"))
	bus.Unsubscribe(id)
}
