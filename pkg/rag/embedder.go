package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTokenRunes is the shortest token kept by Embed, exclusive.
const minTokenRunes = 2

// TermFrequencyMap maps a normalized word to its count divided by the
// highest count in the same text.
type TermFrequencyMap map[string]float64

// Embed builds a normalized term-frequency vector for text. Text with no
// qualifying tokens yields an empty map.
func Embed(text string) TermFrequencyMap {
	counts := make(map[string]int)
	maxCount := 0
	for _, tok := range tokenize(text) {
		counts[tok]++
		if counts[tok] > maxCount {
			maxCount = counts[tok]
		}
	}

	tf := make(TermFrequencyMap, len(counts))
	for tok, c := range counts {
		tf[tok] = float64(c) / float64(maxCount)
	}
	return tf
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return -1
	}, strings.ToLower(text))

	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > minTokenRunes {
			out = append(out, f)
		}
	}
	return out
}

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	case strings.ContainsRune("áéíóúüñ", r):
		return true
	}
	return unicode.IsSpace(r)
}
