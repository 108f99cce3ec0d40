package memory

// SetWorking stores a working-context value.
func (s *Store) SetWorking(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	s.working[key] = value
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeWorking, Key: key})
	return nil
}

// GetWorking returns a working-context value.
func (s *Store) GetWorking(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.working[key]
	return v, ok
}

// WorkingContext returns a shallow copy of the working context.
func (s *Store) WorkingContext() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.working))
	for k, v := range s.working {
		out[k] = v
	}
	return out
}

// ClearWorking empties the working context.
func (s *Store) ClearWorking() {
	s.mu.Lock()
	s.working = make(map[string]any)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeWorking})
}
