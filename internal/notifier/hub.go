package notifier

import (
	"sync"

	"loom/pkg/logger"
)

// Hub maintains the set of subscribed sinks and fans Event values out to
// them. It is the in-process implementation of spec's Realtime Notifier:
// subscribe/unsubscribe a sink against a session, emit an event, and let
// delivery happen without blocking the emitter on a slow subscriber.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[Sink]struct{}
	global   map[Sink]struct{}

	queue chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewHub creates a Hub and starts its delivery loop. Call Close to stop it.
func NewHub() *Hub {
	h := &Hub{
		sessions: make(map[string]map[Sink]struct{}),
		global:   make(map[Sink]struct{}),
		queue:    make(chan Event, 256),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// Subscribe registers sink to receive events for sessionID (and any
// session-less broadcast). A sink may be subscribed to more than one
// session; repeated Subscribe calls for the same pair are idempotent.
func (h *Hub) Subscribe(sessionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[Sink]struct{})
		h.sessions[sessionID] = set
	}
	set[sink] = struct{}{}
}

// Unsubscribe removes sink from sessionID's subscriber set.
func (h *Hub) Unsubscribe(sessionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.sessions[sessionID]; ok {
		delete(set, sink)
		if len(set) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// SubscribeAll registers sink to receive every event regardless of
// session, mirroring the teacher's session-less broadcast path.
func (h *Hub) SubscribeAll(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.global[sink] = struct{}{}
}

// UnsubscribeAll removes sink from the global subscriber set and every
// session it was individually subscribed to.
func (h *Hub) UnsubscribeAll(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.global, sink)
	for id, set := range h.sessions {
		delete(set, sink)
		if len(set) == 0 {
			delete(h.sessions, id)
		}
	}
}

// Emit queues an event for delivery. It returns immediately; delivery
// happens on the Hub's own goroutine so a slow subscriber never stalls
// the caller. If the internal queue is itself full (an overloaded Hub),
// the event is dropped and logged rather than blocking the orchestrator.
func (h *Hub) Emit(event Event) {
	select {
	case h.queue <- event:
	default:
		logger.Warn().Str("kind", string(event.Kind)).Str("session", event.SessionID).
			Msg("notifier queue full, dropping event")
	}
}

// run is the Hub's single delivery goroutine: it drains queue and fans
// each event out to its matching subscribers in emission order, so events
// from one turn reach a given sink in the order they were emitted.
func (h *Hub) run() {
	for {
		select {
		case event := <-h.queue:
			h.deliver(event)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) deliver(event Event) {
	h.mu.RLock()
	var targets []Sink
	if event.SessionID == "" {
		for sink := range h.global {
			targets = append(targets, sink)
		}
	} else {
		for sink := range h.sessions[event.SessionID] {
			targets = append(targets, sink)
		}
		for sink := range h.global {
			targets = append(targets, sink)
		}
	}
	h.mu.RUnlock()

	var dead []Sink
	for _, sink := range targets {
		if err := sink.Send(event); err != nil {
			dead = append(dead, sink)
		}
	}
	for _, sink := range dead {
		h.UnsubscribeAll(sink)
		if event.SessionID != "" {
			h.Unsubscribe(event.SessionID, sink)
		}
	}
}

// Close stops the Hub's delivery loop. Queued events not yet delivered
// are discarded.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// SubscriberCount returns the number of distinct sinks subscribed to
// sessionID, including global subscribers.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) + len(h.global)
}
