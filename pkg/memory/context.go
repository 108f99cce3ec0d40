package memory

import (
	"context"
	"strings"
)

const memoryHeader = "### Memoria del Agente:\n"

// BuildContext renders the facts most relevant to query as a prompt block,
// or "" when nothing is recalled. Recalled facts count as recalls.
func (s *Store) BuildContext(ctx context.Context, query string) string {
	facts := s.Recall(ctx, query, s.cfg.ContextLimit)
	if len(facts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(memoryHeader)
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f.Fact.Fact)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
