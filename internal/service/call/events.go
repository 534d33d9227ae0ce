package call

import "sync"

// EventKind names a stream of events a Bus can deliver.
type EventKind string

const (
	// Controller events.
	EventStateChanged     EventKind = "state_changed"
	EventTick             EventKind = "tick"
	EventMuteChanged      EventKind = "mute_changed"
	EventAgentSpeaking    EventKind = "agent_speaking"
	EventPermissionDenied EventKind = "permission_denied"

	// Room events, re-published by the controller while a call is live.
	EventTrackSubscribed   EventKind = "track_subscribed"
	EventTrackUnsubscribed EventKind = "track_unsubscribed"
	EventActiveSpeakers    EventKind = "active_speakers"
	EventRoomDisconnected  EventKind = "room_disconnected"
)

// Event is delivered to handlers subscribed to its Kind.
type Event struct {
	Kind      EventKind
	SessionID string
	Data      any
}

// Handler receives events. It runs on the publisher's goroutine.
type Handler func(Event)

// Subscription is the handle returned by Subscribe. Pass it to Release on teardown.
type Subscription struct {
	id   uint64
	kind EventKind
}

// Kind reports which events the subscription receives.
func (s Subscription) Kind() EventKind { return s.kind }

// Bus fans events out to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[EventKind]map[uint64]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[EventKind]map[uint64]Handler)}
}

// Subscribe registers h for kind.
func (b *Bus) Subscribe(kind EventKind, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]Handler)
	}
	b.handlers[kind][b.next] = h
	return Subscription{id: b.next, kind: kind}
}

// Release removes a subscription. It reports false when the handle was already released.
func (b *Bus) Release(s Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.handlers[s.kind]
	if !ok {
		return false
	}
	if _, ok := set[s.id]; !ok {
		return false
	}
	delete(set, s.id)
	if len(set) == 0 {
		delete(b.handlers, s.kind)
	}
	return true
}

// Publish delivers e to a snapshot of the current handlers for e.Kind.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	set := b.handlers[e.Kind]
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.handlers {
		n += len(set)
	}
	return n
}
