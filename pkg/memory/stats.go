package memory

import "math"

// Stats summarizes the store.
type Stats struct {
	ShortTermAgents    int     `json:"shortTermAgents"`
	LongTermFacts      int     `json:"longTermFacts"`
	WorkingContextKeys int     `json:"workingContextKeys"`
	AvgImportance      float64 `json:"avgImportance"`
}

// Stats returns counts and the mean importance rounded to two decimals.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		ShortTermAgents:    len(s.shortTerm),
		LongTermFacts:      len(s.longTerm),
		WorkingContextKeys: len(s.working),
	}
	if len(s.longTerm) > 0 {
		var sum float64
		for _, f := range s.longTerm {
			sum += f.Importance
		}
		st.AvgImportance = math.Round(sum/float64(len(s.longTerm))*100) / 100
	}
	return st
}
