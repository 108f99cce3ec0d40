package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

const (
	// recencyWeight scales the recency boost added to every relevance score.
	recencyWeight = 0.5
	// recallBoost is the prune score added per recall.
	recallBoost = 0.1
	// minQueryTokenRunes is the shortest query token used by Recall, exclusive.
	minQueryTokenRunes = 3

	isoMillis = "2006-01-02T15:04:05.000Z"
)

// Fact is a long-term memory entry.
type Fact struct {
	ID           string     `json:"id"`
	Fact         string     `json:"fact"`
	Importance   float64    `json:"importance"`
	CreatedAt    time.Time  `json:"createdAt"`
	RecallCount  int        `json:"recallCount"`
	LastRecalled *time.Time `json:"lastRecalled"`
}

func (f *Fact) clone() Fact {
	out := *f
	if f.LastRecalled != nil {
		t := *f.LastRecalled
		out.LastRecalled = &t
	}
	return out
}

// Recalled is a fact returned by Recall with its relevance score.
type Recalled struct {
	Fact
	Relevance float64 `json:"relevance"`
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// Remember stores fact with a computed importance. The store is pruned in
// the same critical section when it grows past the cap, so readers never
// see more than MaxFacts facts. Any string is accepted, blank included.
// Persistence failures are logged. The only error is a done ctx.
func (s *Store) Remember(ctx context.Context, fact string) (Fact, error) {
	if err := ctx.Err(); err != nil {
		return Fact{}, err
	}
	ctx, span := tracer().Start(ctx, "memory.remember")
	defer span.End()

	now := s.now().UTC()
	f := &Fact{
		ID:         fmt.Sprintf("mem-%d-%s", now.UnixMilli(), s.newSuffix()),
		Fact:       fact,
		Importance: Importance(fact),
		CreatedAt:  now,
	}
	span.SetAttributes(attribute.Float64("memory.importance", f.Importance))

	s.mu.Lock()
	s.longTerm = append(s.longTerm, f)
	s.saving[f.ID] = false
	stale, pruned := s.trimLocked()
	survived := !s.saving[f.ID]
	if !survived {
		delete(s.saving, f.ID)
	}
	stored := f.clone()
	count := len(s.longTerm)
	s.mu.Unlock()

	if survived {
		s.persist(ctx, f)
		s.settle(ctx, f.ID)
	}
	s.deleteFacts(ctx, stale)
	s.recorder.RecordFactRemembered()
	if pruned > 0 {
		s.recorder.RecordPrune()
		s.logger.Info("memory pruned", "removed", pruned, "kept", count)
	}

	s.recorder.SetFactCount(count)
	s.logger.Debug("fact remembered", "id", f.ID, "importance", f.Importance)
	s.notify(Change{Kind: ChangeRemembered, Facts: count})
	if pruned > 0 {
		s.notify(Change{Kind: ChangePruned, Facts: count})
	}
	return stored, nil
}

// settle ends the in-flight save of id. A fact pruned while its Save was
// running is deleted again so a later Load cannot restore it.
func (s *Store) settle(ctx context.Context, id string) {
	s.mu.Lock()
	prunedMeanwhile := s.saving[id]
	delete(s.saving, id)
	s.mu.Unlock()

	if prunedMeanwhile {
		s.deleteFacts(ctx, []string{id})
	}
}

func (s *Store) persist(ctx context.Context, f *Fact) {
	rec := &storage.Record{
		Key:     f.ID,
		Type:    storage.TypeMemory,
		Content: f.Fact,
		Metadata: map[string]any{
			"importance": f.Importance,
			"createdAt":  f.CreatedAt.Format(isoMillis),
		},
		UpdatedAt: f.CreatedAt,
	}
	if err := s.backend.Save(ctx, storage.CollectionProjectContext, rec); err != nil {
		s.logger.Warn("failed to persist fact", "id", f.ID, "error", err)
	}
}

// Recall returns up to limit facts ranked by relevance to query. Relevance
// is the number of query words (longer than three characters) found in the
// fact times its importance, plus a recency boost that decays linearly to
// zero over the recency window. Returned facts have their recall stats
// updated. A non-positive limit uses the configured default.
func (s *Store) Recall(ctx context.Context, query string, limit int) []Recalled {
	_, span := tracer().Start(ctx, "memory.recall")
	defer span.End()

	if limit <= 0 {
		limit = s.cfg.RecallLimit
	}
	words := queryTokens(query)
	now := s.now()
	window := float64(s.cfg.RecencyWindow)

	s.mu.Lock()
	type scored struct {
		fact      *Fact
		relevance float64
	}
	ranked := make([]scored, len(s.longTerm))
	for i, f := range s.longTerm {
		lower := strings.ToLower(f.Fact)
		matches := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				matches++
			}
		}

		relevance := float64(matches) * f.Importance
		age := float64(now.Sub(f.CreatedAt))
		if boost := 1 - age/window; boost > 0 {
			relevance += boost * recencyWeight
		}
		ranked[i] = scored{fact: f, relevance: relevance}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].relevance > ranked[j].relevance
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]Recalled, 0, len(ranked))
	recalledAt := now.UTC()
	for _, r := range ranked {
		if r.relevance <= 0 {
			continue
		}
		r.fact.RecallCount++
		t := recalledAt
		r.fact.LastRecalled = &t
		results = append(results, Recalled{Fact: r.fact.clone(), Relevance: r.relevance})
	}
	s.mu.Unlock()

	s.recorder.RecordRecall(len(results) > 0)
	span.SetAttributes(attribute.Int("memory.words", len(words)), attribute.Int("memory.results", len(results)))
	return results
}

func queryTokens(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(w)) > minQueryTokenRunes {
			out = append(out, w)
		}
	}
	return out
}

// Prune trims the store to the configured size when it holds more than the
// cap, keeping the facts with the highest importance plus recall bonus.
// Remember and Load already trim on every insert, so this is a guard that
// normally removes nothing. It returns the number of facts removed.
func (s *Store) Prune(ctx context.Context) int {
	n, count := s.prune(ctx)
	if n > 0 {
		s.recorder.SetFactCount(count)
		s.notify(Change{Kind: ChangePruned, Facts: count})
	}
	return n
}

func (s *Store) prune(ctx context.Context) (removed, count int) {
	s.mu.Lock()
	stale, removed := s.trimLocked()
	count = len(s.longTerm)
	s.mu.Unlock()

	s.deleteFacts(ctx, stale)
	if removed > 0 {
		s.recorder.RecordPrune()
		s.logger.Info("memory pruned", "removed", removed, "kept", count)
	}
	return removed, count
}

// trimLocked cuts longTerm down to PruneTo when it exceeds MaxFacts. It
// returns the persisted ids that must be deleted from the backend and the
// number of facts removed. Facts whose Save is still running are flagged in
// saving instead; their owner deletes them once the Save returns. The
// caller holds s.mu.
func (s *Store) trimLocked() (stale []string, removed int) {
	if len(s.longTerm) <= s.cfg.MaxFacts {
		return nil, 0
	}

	sort.SliceStable(s.longTerm, func(i, j int) bool {
		return pruneScore(s.longTerm[i]) > pruneScore(s.longTerm[j])
	})
	for _, f := range s.longTerm[s.cfg.PruneTo:] {
		removed++
		if _, inFlight := s.saving[f.ID]; inFlight {
			s.saving[f.ID] = true
			continue
		}
		stale = append(stale, f.ID)
	}
	kept := make([]*Fact, s.cfg.PruneTo)
	copy(kept, s.longTerm[:s.cfg.PruneTo])
	s.longTerm = kept
	return stale, removed
}

func (s *Store) deleteFacts(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := s.backend.Delete(ctx, storage.CollectionProjectContext, id); err != nil {
			s.logger.Warn("failed to delete pruned fact", "id", id, "error", err)
		}
	}
}

func pruneScore(f *Fact) float64 {
	return f.Importance + float64(f.RecallCount)*recallBoost
}

// Facts returns a snapshot of all long-term facts in store order.
func (s *Store) Facts() []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, len(s.longTerm))
	for i, f := range s.longTerm {
		out[i] = f.clone()
	}
	return out
}

// FactCount returns the number of long-term facts.
func (s *Store) FactCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.longTerm)
}

// Load restores persisted facts. Missing importance defaults to 0.5 and
// missing creation time to now. Facts already present are skipped. The
// store is pruned if the result exceeds the cap.
func (s *Store) Load(ctx context.Context) (int, error) {
	recs, err := s.backend.GetAll(ctx, storage.CollectionProjectContext, storage.ByType(storage.TypeMemory))
	if err != nil {
		return 0, fmt.Errorf("memory: load facts: %w", err)
	}

	now := s.now().UTC()
	s.mu.Lock()
	known := make(map[string]struct{}, len(s.longTerm))
	for _, f := range s.longTerm {
		known[f.ID] = struct{}{}
	}

	restored := 0
	for _, rec := range recs {
		if _, ok := known[rec.Key]; ok {
			continue
		}
		importance := floatValue(rec.Metadata["importance"])
		if importance == 0 {
			importance = baseImportance
		}
		created, ok := timeValue(rec.Metadata["createdAt"])
		if !ok {
			created = now
		}
		s.longTerm = append(s.longTerm, &Fact{
			ID:         rec.Key,
			Fact:       rec.Content,
			Importance: importance,
			CreatedAt:  created,
		})
		restored++
	}
	s.mu.Unlock()

	_, count := s.prune(ctx)
	s.recorder.SetFactCount(count)
	s.logger.Info("memory loaded", "restored", restored, "facts", count)
	s.notify(Change{Kind: ChangeLoaded, Facts: count})
	return restored, nil
}

func floatValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
