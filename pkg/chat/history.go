package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RuFFyGTLP/TC/pkg/storage"
	"github.com/RuFFyGTLP/TC/pkg/storage/noop"
)

// Entry types.
const (
	EntryUser  = "user"
	EntryAgent = "agent"
)

// DefaultHistoryLimit bounds Recent when no limit is given.
const DefaultHistoryLimit = 50

const isoMillis = "2006-01-02T15:04:05.000Z"

// Entry is one recorded chat message.
type Entry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Role maps the entry type to a chat role.
func (e Entry) Role() string {
	if e.Type == EntryUser {
		return RoleUser
	}
	return RoleAssistant
}

// History records chat messages in memory and persists them best-effort to
// the chatHistory collection.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}

	backend   storage.Backend
	logger    chatLogger
	now       func() time.Time
	newSuffix func() string
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithHistoryLogger sets the history logger.
func WithHistoryLogger(l chatLogger) HistoryOption {
	return func(h *History) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHistoryClock replaces the time source.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

// WithHistoryIDGenerator replaces the random id suffix source.
func WithHistoryIDGenerator(fn func() string) HistoryOption {
	return func(h *History) {
		if fn != nil {
			h.newSuffix = fn
		}
	}
}

// NewHistory creates a history persisted to backend. A nil backend keeps
// the history in memory only.
func NewHistory(backend storage.Backend, opts ...HistoryOption) *History {
	if backend == nil {
		backend = noop.New()
	}
	h := &History{
		ids:     make(map[string]struct{}),
		backend: backend,
		logger:  nopLogger{},
		now:     time.Now,
		newSuffix: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Append records a message of entryType for agent.
func (h *History) Append(ctx context.Context, entryType, agent, text string) Entry {
	now := h.now().UTC()
	e := Entry{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), h.newSuffix()),
		Type:      entryType,
		Agent:     agent,
		Text:      text,
		Timestamp: now,
	}

	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.ids[e.ID] = struct{}{}
	h.mu.Unlock()

	rec := &storage.Record{
		Key:     e.ID,
		Type:    e.Type,
		Content: e.Text,
		Metadata: map[string]any{
			"agent":     e.Agent,
			"timestamp": e.Timestamp.Format(isoMillis),
		},
		UpdatedAt: e.Timestamp,
	}
	if err := h.backend.Save(ctx, storage.CollectionChatHistory, rec); err != nil {
		h.logger.Warn("failed to persist chat message", "id", e.ID, "error", err)
	}
	return e
}

// Recent returns up to limit entries, oldest first, that belong to agent
// or were sent by the user. An empty agent selects everything.
func (h *History) Recent(agent string, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	h.mu.RLock()
	out := make([]Entry, 0, len(h.entries))
	for _, e := range h.entries {
		if agent == "" || e.Agent == agent || e.Type == EntryUser {
			out = append(out, e)
		}
	}
	h.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clear removes the entries of agent, or all entries when agent is empty.
// It returns the number of entries removed.
func (h *History) Clear(ctx context.Context, agent string) int {
	h.mu.Lock()
	var removed []Entry
	if agent == "" {
		removed = h.entries
		h.entries = nil
		h.ids = make(map[string]struct{})
	} else {
		kept := h.entries[:0:0]
		for _, e := range h.entries {
			if e.Agent == agent {
				removed = append(removed, e)
				delete(h.ids, e.ID)
				continue
			}
			kept = append(kept, e)
		}
		h.entries = kept
	}
	h.mu.Unlock()

	if agent == "" {
		if err := h.backend.Clear(ctx, storage.CollectionChatHistory); err != nil {
			h.logger.Warn("failed to clear persisted chat history", "error", err)
		}
		return len(removed)
	}
	for _, e := range removed {
		if err := h.backend.Delete(ctx, storage.CollectionChatHistory, e.ID); err != nil {
			h.logger.Warn("failed to delete chat message", "id", e.ID, "error", err)
		}
	}
	return len(removed)
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Load restores persisted entries not already in memory.
func (h *History) Load(ctx context.Context) (int, error) {
	recs, err := h.backend.GetAll(ctx, storage.CollectionChatHistory, nil)
	if err != nil {
		return 0, fmt.Errorf("chat: load history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	loaded := 0
	for _, rec := range recs {
		if _, ok := h.ids[rec.Key]; ok {
			continue
		}
		e := Entry{
			ID:        rec.Key,
			Type:      rec.Type,
			Text:      rec.Content,
			Timestamp: rec.UpdatedAt,
		}
		if agent, ok := rec.Metadata["agent"].(string); ok {
			e.Agent = agent
		}
		if ts, ok := rec.Metadata["timestamp"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				e.Timestamp = t
			}
		}
		h.entries = append(h.entries, e)
		h.ids[e.ID] = struct{}{}
		loaded++
	}
	sort.SliceStable(h.entries, func(i, j int) bool { return h.entries[i].Timestamp.Before(h.entries[j].Timestamp) })
	return loaded, nil
}
