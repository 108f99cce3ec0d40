package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// DefaultMaxContextTokens bounds the context block built by BuildContext.
const DefaultMaxContextTokens = 2000

const (
	contextHeader  = "### Contexto Relevante:\n\n"
	questionHeader = "\n\n### Pregunta del Usuario:\n"
	defaultLabel   = "Documento"
)

// BuildContext renders the best matching chunks for query as a prompt
// block of at most maxTokens whitespace tokens. A chunk that would exceed
// the budget ends the block. It returns "" when nothing matches.
func (idx *Index) BuildContext(ctx context.Context, query string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	results := idx.Search(ctx, query, idx.contextTopK)
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(contextHeader)

	tokens := 0
	for _, r := range results {
		n := len(strings.Fields(r.Chunk.Content))
		if tokens+n > maxTokens {
			break
		}

		label := r.Chunk.Source()
		if label == "" {
			label = defaultLabel
		}
		fmt.Fprintf(&b, "**[%s]** (relevancia: %d%%)\n", label, int(math.Round(r.Similarity*100)))
		b.WriteString(r.Chunk.Content)
		b.WriteString("\n\n")
		tokens += n
	}
	return b.String()
}

// AugmentMessage prefixes question with a context block. The question is
// returned unchanged when block is empty.
func AugmentMessage(block, question string) string {
	if block == "" {
		return question
	}
	return block + questionHeader + question
}
