package notifier

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	failing bool
}

func (s *recordingSink) Send(e Event) error {
	if s.failing {
		return errors.New("sink closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubDeliversToSessionSubscriber(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sink := &recordingSink{}
	h.Subscribe("s1", sink)

	h.Emit(Event{Kind: EventUserMessage, SessionID: "s1", Payload: MessagePayload{Content: "hi"}})

	waitFor(t, func() bool { return len(sink.received()) == 1 })
}

func TestHubDoesNotDeliverToOtherSessions(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sink := &recordingSink{}
	h.Subscribe("s1", sink)

	h.Emit(Event{Kind: EventUserMessage, SessionID: "s2", Payload: nil})
	h.Emit(Event{Kind: EventUserMessage, SessionID: "s1", Payload: nil})

	waitFor(t, func() bool { return len(sink.received()) == 1 })
}

func TestHubBroadcastsSessionlessEventToAllSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	a := &recordingSink{}
	b := &recordingSink{}
	h.Subscribe("s1", a)
	h.Subscribe("s2", b)
	h.SubscribeAll(a)
	h.SubscribeAll(b)

	h.Emit(Event{Kind: EventToolStatus, Payload: nil})

	waitFor(t, func() bool { return len(a.received()) == 1 && len(b.received()) == 1 })
}

func TestHubDropsDeadSinkWithoutStallingOthers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	dead := &recordingSink{failing: true}
	alive := &recordingSink{}
	h.Subscribe("s1", dead)
	h.Subscribe("s1", alive)

	h.Emit(Event{Kind: EventUserMessage, SessionID: "s1"})
	waitFor(t, func() bool { return len(alive.received()) == 1 })

	waitFor(t, func() bool { return h.SubscriberCount("s1") == 1 })
}

func TestHubPreservesEmissionOrderPerSink(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sink := &recordingSink{}
	h.Subscribe("s1", sink)

	for i := 0; i < 10; i++ {
		h.Emit(Event{Kind: EventAssistantMessage, SessionID: "s1", Payload: i})
	}

	waitFor(t, func() bool { return len(sink.received()) == 10 })

	events := sink.received()
	for i, e := range events {
		if e.Payload.(int) != i {
			t.Fatalf("event %d out of order: got payload %v", i, e.Payload)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sink := &recordingSink{}
	h.Subscribe("s1", sink)
	h.Unsubscribe("s1", sink)

	h.Emit(Event{Kind: EventUserMessage, SessionID: "s1"})
	time.Sleep(20 * time.Millisecond)

	if len(sink.received()) != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d events", len(sink.received()))
	}
}
