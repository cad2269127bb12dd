package bus

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishSubscribe(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ch, cancel := eb.Subscribe(8)
	defer cancel()

	eb.Publish(Event{Type: EventAgentRegistered, Source: "swarm"})

	ctx, ctxCancel := context.WithTimeout(context.Background(), time.Second)
	defer ctxCancel()

	evt, ok := Next(ctx, ch)
	if !ok {
		t.Fatal("Next() returned no event")
	}
	if evt.Type != EventAgentRegistered {
		t.Errorf("Type = %q, want %q", evt.Type, EventAgentRegistered)
	}
	if evt.Timestamp.IsZero() {
		t.Error("Timestamp not filled in")
	}
}

func TestFullSubscriberDropsEvents(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	_, cancel := eb.Subscribe(1)
	defer cancel()

	eb.Publish(Event{Type: EventTaskAssigned})
	eb.Publish(Event{Type: EventTaskAssigned}) // buffer full, dropped

	if got := eb.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ch, cancel := eb.Subscribe(4)
	cancel()
	cancel() // safe to call twice

	// Channel is closed; reads drain immediately.
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	eb.Publish(Event{Type: EventWorkflowStarted})
}

func TestCloseUnblocksSubscribers(t *testing.T) {
	eb := NewEventBus()
	ch, _ := eb.Subscribe(4)

	eb.Close()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after bus Close")
	}

	// Subscribe after close returns a closed channel.
	ch2, cancel2 := eb.Subscribe(4)
	defer cancel2()
	if _, ok := <-ch2; ok {
		t.Error("expected closed channel when subscribing after Close")
	}
}

func TestNextContextCancelled(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ch, cancel := eb.Subscribe(4)
	defer cancel()

	ctx, ctxCancel := context.WithCancel(context.Background())
	ctxCancel()

	if _, ok := Next(ctx, ch); ok {
		t.Error("Next() = ok with cancelled context, want false")
	}
}
