package memory

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"
)

var (
	decisionPattern   = regexp.MustCompile(`(?i)(?:decidí|decidimos|usaremos|implementaremos|elegí)\s+.{20,100}`)
	notePattern       = regexp.MustCompile(`(?i)(?:importante:|nota:|recuerda:)\s*.{20,150}`)
	notePrefixPattern = regexp.MustCompile(`(?i)^(?:importante:|nota:|recuerda:)\s*`)
	codeFencePattern  = regexp.MustCompile("```[\\s\\S]{50,}?```")
)

// summaryThreshold is the response length above which an exchange summary
// is stored.
const summaryThreshold = 200

// ExtractFacts pulls memorable statements out of an assistant response:
// decision sentences, notes with their prefix removed, and a summary line
// when the response shares a code block.
func ExtractFacts(message, response string) []string {
	var facts []string

	facts = append(facts, decisionPattern.FindAllString(response, -1)...)

	for _, m := range notePattern.FindAllString(response, -1) {
		facts = append(facts, notePrefixPattern.ReplaceAllString(m, ""))
	}

	if codeFencePattern.MatchString(response) {
		facts = append(facts, fmt.Sprintf("Se compartió código relacionado con: %s...", prefixRunes(message, 50)))
	}
	return facts
}

// LearnFromConversation remembers every fact extracted from the exchange and,
// for long responses, a one-line summary of it.
func (s *Store) LearnFromConversation(ctx context.Context, message, response string) ([]Fact, error) {
	var learned []Fact
	for _, fact := range ExtractFacts(message, response) {
		f, err := s.Remember(ctx, fact)
		if err != nil {
			return learned, err
		}
		learned = append(learned, f)
	}

	if n := utf8.RuneCountInString(response); n > summaryThreshold {
		summary := fmt.Sprintf("Usuario preguntó sobre \"%s...\" - Respuesta incluye %d caracteres", prefixRunes(message, 50), n)
		f, err := s.Remember(ctx, summary)
		if err != nil {
			return learned, err
		}
		learned = append(learned, f)
	}
	return learned, nil
}

func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
