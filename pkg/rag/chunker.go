package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// wordsPerOverlapUnit converts an overlap length into a word count.
const wordsPerOverlapUnit = 5

// ChunkText splits text into sentence-aligned chunks of roughly size runes.
// When a chunk is flushed, the next one starts with its last overlap/5
// words. A single sentence longer than size is emitted whole.
func ChunkText(text string, size, overlap int) []string {
	var (
		chunks  []string
		current string
	)

	keep := overlap / wordsPerOverlapUnit
	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence) > size && current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
			current = overlapTail(current, keep) + sentence
			continue
		}
		if current != "" {
			current += " "
		}
		current += sentence
	}

	if last := strings.TrimSpace(current); last != "" {
		chunks = append(chunks, last)
	}
	return chunks
}

// overlapTail returns the last n space-separated words of s followed by a
// space, or "" when n is zero.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Split(s, " ")
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ") + " "
}

// splitSentences cuts text at every whitespace run that follows '.', '!'
// or '?'. The whitespace itself is dropped.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)

	for i := 0; i < len(text); {
		r, width := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) && isTerminator(prev) {
			out = append(out, text[start:i])
			j := i
			for j < len(text) {
				r2, w2 := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += w2
			}
			start = j
			i = j
			prev = 0
			continue
		}
		prev = r
		i += width
	}
	return append(out, text[start:])
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
