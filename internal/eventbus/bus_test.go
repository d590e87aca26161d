package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.OnHover(3, "5", "2", true)

	select {
	case got := <-ch:
		if got.Type != EventHover {
			t.Fatalf("expected hover event, got %v", got.Type)
		}
		if got.Seq != 3 || got.Node != "5" || got.Token != "2" || !got.Enter {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestResetCarriesResetMessage(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()
	bus.OnReset(1)
	got := <-ch
	if got.Type != EventReset || !got.Message.Reset {
		t.Fatalf("unexpected reset event: %+v", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	cancel()
	if bus.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestLaggingSubscriberIsClosed(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	slow, cancelSlow := bus.Subscribe()
	defer cancelSlow()
	bus.depth = 8
	fast, cancelFast := bus.Subscribe()
	defer cancelFast()

	done := make(chan struct{})
	go func() {
		bus.OnReset(1)
		bus.OnReset(2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}

	if got := <-slow; got.Seq != 1 {
		t.Fatalf("expected buffered event before close, got %+v", got)
	}
	if _, ok := <-slow; ok {
		t.Fatalf("expected lagging subscriber to be closed")
	}
	if got := <-fast; got.Seq != 1 {
		t.Fatalf("unexpected first event %+v", got)
	}
	if got := <-fast; got.Seq != 2 {
		t.Fatalf("unexpected second event %+v", got)
	}
	if bus.Subscribers() != 1 {
		t.Fatalf("expected one remaining subscriber, got %d", bus.Subscribers())
	}
}
