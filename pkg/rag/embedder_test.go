package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want TermFrequencyMap
	}{
		{
			name: "normalizes by max count",
			text: "El perro y EL PERRO corren",
			want: TermFrequencyMap{"perro": 1, "corren": 0.5},
		},
		{
			name: "strips punctuation",
			text: "¡Hola, mundo!",
			want: TermFrequencyMap{"hola": 1, "mundo": 1},
		},
		{
			name: "keeps spanish diacritics",
			text: "Canción del Ñandú",
			want: TermFrequencyMap{"canción": 1, "del": 1, "ñandú": 1},
		},
		{
			name: "drops other letters",
			text: "français",
			want: TermFrequencyMap{"franais": 1},
		},
		{
			name: "keeps digits and underscores",
			text: "user_id 404 ok",
			want: TermFrequencyMap{"user_id": 1, "404": 1},
		},
		{
			name: "no qualifying tokens",
			text: "a de él ?!",
			want: TermFrequencyMap{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Embed(tt.text))
		})
	}
}

func TestEmbed_ValuesInUnitRange(t *testing.T) {
	tf := Embed("uno uno uno dos dos tres")
	for word, v := range tf {
		assert.Greater(t, v, 0.0, word)
		assert.LessOrEqual(t, v, 1.0, word)
	}
	assert.InDelta(t, 1.0/3.0, tf["tres"], 1e-9)
}
