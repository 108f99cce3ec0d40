package rag

import "math"

// CosineSimilarity compares two term-frequency maps over the union of their
// keys. It returns 0 when either map has zero norm.
func CosineSimilarity(a, b TermFrequencyMap) float64 {
	var dot, normA, normB float64

	for word, va := range a {
		normA += va * va
		dot += va * b[word]
	}
	for _, vb := range b {
		normB += vb * vb
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
