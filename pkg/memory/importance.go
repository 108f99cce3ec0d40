package memory

import (
	"regexp"
	"unicode/utf8"
)

const (
	baseImportance = 0.5
	importanceStep = 0.1
)

var importancePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)importante|crítico|urgente|priorit`),
	regexp.MustCompile(`(?i)error|bug|problema|fallo`),
	regexp.MustCompile(`(?i)decisión|arquitectura|diseño`),
	regexp.MustCompile(`(?i)usuario|cliente|requisito`),
	regexp.MustCompile(`(?i)api|endpoint|integración`),
}

// Importance scores a fact in [0.5, 1]: 0.1 per matched keyword category
// plus 0.1 each for facts longer than 100 and 200 characters.
func Importance(fact string) float64 {
	score := baseImportance
	for _, p := range importancePatterns {
		if p.MatchString(fact) {
			score += importanceStep
		}
	}

	n := utf8.RuneCountInString(fact)
	if n > 100 {
		score += importanceStep
	}
	if n > 200 {
		score += importanceStep
	}
	if score > 1 {
		score = 1
	}
	return score
}
