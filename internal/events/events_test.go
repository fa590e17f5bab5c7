package events

import (
	"testing"
	"time"
)

func publishJob(b *Bus, t EventType, id int64) {
	b.Publish(&JobEvent{BaseEvent: BaseEvent{EventType: t, Time: time.Now()}, JobID: id})
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	all := bus.SubscribeAll()
	publishJob(bus, EventJobAdmitted, 1)
	publishJob(bus, EventJobSucceeded, 1)

	if got := len(all); got != 2 {
		t.Errorf("buffered events = %d, want 2", got)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	_ = bus.SubscribeAll()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			publishJob(bus, EventJobAdmitted, int64(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if bus.Dropped() == 0 {
		t.Error("expected dropped events with a full buffer")
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	bus := NewBus(1)
	ch := bus.SubscribeAll()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("channel still open after Close")
	}

	// Publishing and closing again are no-ops.
	publishJob(bus, EventJobAdmitted, 1)
	bus.Close()
}
