// Package events fans domain changes out to websocket subscribers.
package events

import (
	"sync"
	"time"
)

// Event types pushed to subscribers.
const (
	TypeIndexUpdated   = "index.updated"
	TypeIndexCleared   = "index.cleared"
	TypeMemoryUpdated  = "memory.updated"
	TypeModelsDetected = "models.detected"
	TypeConfigChanged  = "config.changed"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Broadcast broadcasts a generic event to all subscribers.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep broadcasters non-blocking.
		}
	}
}

// BroadcastIndex emits index.updated, or index.cleared for a clear.
func (b *Broadcaster) BroadcastIndex(kind, source string, chunks, total int) {
	eventType := TypeIndexUpdated
	if kind == "cleared" {
		eventType = TypeIndexCleared
	}
	payload := map[string]any{
		"kind":   kind,
		"chunks": chunks,
		"total":  total,
	}
	if source != "" {
		payload["source"] = source
	}
	b.Broadcast(Event{Type: eventType, Payload: payload})
}

// BroadcastMemory emits memory.updated.
func (b *Broadcaster) BroadcastMemory(kind string, facts int, agent, key string) {
	payload := map[string]any{
		"kind":  kind,
		"facts": facts,
	}
	if agent != "" {
		payload["agent"] = agent
	}
	if key != "" {
		payload["key"] = key
	}
	b.Broadcast(Event{Type: TypeMemoryUpdated, Payload: payload})
}

// BroadcastModels emits models.detected with a detection snapshot.
func (b *Broadcaster) BroadcastModels(detection any) {
	b.Broadcast(Event{Type: TypeModelsDetected, Payload: detection})
}

// BroadcastConfig emits config.changed with the hot-reloadable settings.
func (b *Broadcaster) BroadcastConfig(settings any) {
	b.Broadcast(Event{Type: TypeConfigChanged, Payload: settings})
}

// Close closes all subscriber channels. Later subscriptions receive a
// closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
