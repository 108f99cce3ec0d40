package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
	}
	return Event{}
}

func TestBroadcaster_SubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}

	b.Broadcast(Event{
		Type:    TypeIndexUpdated,
		Payload: map[string]any{"chunks": 3},
	})

	event := receive(t, ch)
	if event.Type != TypeIndexUpdated {
		t.Fatalf("type = %q, want %s", event.Type, TypeIndexUpdated)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("timestamp should be set")
	}

	b.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Unsubscribe(ch)
}

func TestBroadcaster_DomainHelpers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(8)

	b.BroadcastIndex("indexed", "readme.md", 2, 10)
	b.BroadcastIndex("cleared", "", 0, 0)
	b.BroadcastMemory("short_term", 4, "orquestador", "task")
	b.BroadcastModels(map[string]any{"totalModels": 2})
	b.BroadcastConfig(map[string]any{"log_level": "debug"})

	want := []string{TypeIndexUpdated, TypeIndexCleared, TypeMemoryUpdated, TypeModelsDetected, TypeConfigChanged}
	for i, typ := range want {
		event := receive(t, ch)
		if event.Type != typ {
			t.Fatalf("event %d type = %q, want %q", i, event.Type, typ)
		}
		if i == 0 {
			payload := event.Payload.(map[string]any)
			if payload["source"] != "readme.md" || payload["total"] != 10 {
				t.Fatalf("index payload = %v", payload)
			}
		}
		if i == 1 {
			if _, ok := event.Payload.(map[string]any)["source"]; ok {
				t.Fatal("cleared payload should omit empty source")
			}
		}
		if i == 2 {
			payload := event.Payload.(map[string]any)
			if payload["agent"] != "orquestador" || payload["key"] != "task" {
				t.Fatalf("memory payload = %v", payload)
			}
		}
	}
}

func TestBroadcaster_DropsOnOverflow(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.BroadcastMemory("remembered", 1, "", "")
	b.BroadcastMemory("remembered", 2, "", "")

	event := receive(t, ch)
	if got := event.Payload.(map[string]any)["facts"]; got != 1 {
		t.Fatalf("facts = %v, want first event to be kept", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %v", extra)
	default:
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	late := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("subscription after close should be closed")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", b.Subscribers())
	}
}
