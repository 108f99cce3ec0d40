package memory

import "time"

// ShortTermEntry is a per-agent value with the time it was stored.
type ShortTermEntry struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// RememberShortTerm stores value under key for agent, replacing any
// previous value.
func (s *Store) RememberShortTerm(agent, key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	entries, ok := s.shortTerm[agent]
	if !ok {
		entries = make(map[string]ShortTermEntry)
		s.shortTerm[agent] = entries
	}
	entries[key] = ShortTermEntry{Value: value, Timestamp: s.now().UTC()}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeShortTerm, Agent: agent, Key: key})
	return nil
}

// RecallShortTerm returns the value stored under key for agent.
func (s *Store) RecallShortTerm(agent, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.shortTerm[agent][key]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// ShortTermEntries returns a copy of agent's short-term entries.
func (s *Store) ShortTermEntries(agent string) map[string]ShortTermEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ShortTermEntry, len(s.shortTerm[agent]))
	for k, v := range s.shortTerm[agent] {
		out[k] = v
	}
	return out
}

// ForgetShortTerm removes a single short-term entry.
func (s *Store) ForgetShortTerm(agent, key string) {
	s.mu.Lock()
	delete(s.shortTerm[agent], key)
	if len(s.shortTerm[agent]) == 0 {
		delete(s.shortTerm, agent)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeShortTerm, Agent: agent, Key: key})
}

// ClearShortTerm drops agent's short-term memory, or every agent's when
// agent is empty.
func (s *Store) ClearShortTerm(agent string) {
	s.mu.Lock()
	if agent == "" {
		s.shortTerm = make(map[string]map[string]ShortTermEntry)
	} else {
		delete(s.shortTerm, agent)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeShortTerm, Agent: agent})
}
